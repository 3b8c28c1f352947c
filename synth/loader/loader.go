package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/cwbudde/algo-patch/synth/audiograph"
	"github.com/cwbudde/algo-patch/synth/registry"
)

var (
	// ErrLoad wraps every failure returned by Loader.Load.
	ErrLoad = errors.New("loader: load failed")
	// ErrFetch reports that a module description could not be retrieved.
	ErrFetch = errors.New("loader: fetch failed")
	// ErrInstantiate reports that a description could not be turned into a node.
	ErrInstantiate = errors.New("loader: instantiate failed")
	// ErrUnknownAddress is returned when setting a parameter that has no native address.
	ErrUnknownAddress = errors.New("loader: no native address")
)

// Channels is the channel count of each side of a live node.
type Channels struct {
	Inputs  int `json:"inputs"`
	Outputs int `json:"outputs"`
}

// LiveNode is a processing node instantiated for one module.
//
// All input channels are carried on input port 0 and all output channels on
// output port 0, so a node with Channels{2, 1} reports InputPorts() == [2]
// and OutputPorts() == [1].
type LiveNode interface {
	audiograph.Node

	// ParameterAddresses lists the node's native parameter addresses.
	ParameterAddresses() []string
	// SetParameterValue sets a native parameter.
	SetParameterValue(address string, value float64) error
	Channels() Channels
	// Dispose releases node resources. The node must not be used afterwards.
	Dispose()
}

// StepNotifier is implemented by sequencer nodes that report step changes.
// The handler runs on the rendering goroutine.
type StepNotifier interface {
	SetStepHandler(fn func(step int))
}

// Source instantiates native nodes by module type id.
type Source interface {
	Load(ctx context.Context, typeID string, pc *audiograph.Context) (LiveNode, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, typeID string, pc *audiograph.Context) (LiveNode, error)

// Load calls f.
func (f SourceFunc) Load(ctx context.Context, typeID string, pc *audiograph.Context) (LiveNode, error) {
	return f(ctx, typeID, pc)
}

// AddressTable maps engine parameter names to native addresses.
type AddressTable map[string]string

// Address returns the native address for an engine parameter name.
func (t AddressTable) Address(name string) (string, bool) {
	addr, ok := t[name]
	return addr, ok
}

// Names returns the mapped engine parameter names in sorted order.
func (t AddressTable) Names() []string {
	names := make([]string, 0, len(t))
	for n := range t {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// Loaded is a live node together with its parameter address table.
type Loaded struct {
	Node      LiveNode
	Addresses AddressTable
}

// Set pushes an engine parameter value to the node. It returns
// ErrUnknownAddress when the name has no native address.
func (l *Loaded) Set(name string, value float64) error {
	addr, ok := l.Addresses.Address(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, name)
	}

	return l.Node.SetParameterValue(addr, value)
}

// Option configures a Loader.
type Option func(*Loader)

// WithResolver replaces the default address resolver.
func WithResolver(r *Resolver) Option {
	return func(l *Loader) {
		if r != nil {
			l.resolver = r
		}
	}
}

// WithLogger sets the logger for dropped addresses.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Loader loads module types from a Source and resolves their addresses.
type Loader struct {
	source   Source
	resolver *Resolver
	logger   *slog.Logger
}

// New creates a loader over src.
func New(src Source, opts ...Option) *Loader {
	l := &Loader{
		source:   src,
		resolver: DefaultResolver(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load instantiates the node for def inside pc and resolves its addresses.
// Every returned error wraps ErrLoad. A canceled ctx aborts the load and
// disposes any node that arrived in the meantime.
func (l *Loader) Load(ctx context.Context, def registry.ModuleTypeDef, pc *audiograph.Context) (*Loaded, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, def.ID, err)
	}

	node, err := l.source.Load(ctx, def.ID, pc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, def.ID, err)
	}

	if node == nil {
		return nil, fmt.Errorf("%w: %s: %w: nil node", ErrLoad, def.ID, ErrInstantiate)
	}

	if err := ctx.Err(); err != nil {
		node.Dispose()
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, def.ID, err)
	}

	if err := checkChannels(def, node.Channels()); err != nil {
		node.Dispose()
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, def.ID, err)
	}

	table, dropped := l.resolver.Resolve(def, node.ParameterAddresses())
	for _, addr := range dropped {
		l.logger.Debug("native parameter ignored", "module", def.ID, "address", addr)
	}

	return &Loaded{Node: node, Addresses: table}, nil
}

// checkChannels verifies that every port's channel index exists on the node.
func checkChannels(def registry.ModuleTypeDef, ch Channels) error {
	for _, p := range def.Inputs {
		if p.Channel >= ch.Inputs {
			return fmt.Errorf("%w: input %q uses channel %d of %d", ErrInstantiate, p.Name, p.Channel, ch.Inputs)
		}
	}

	for _, p := range def.Outputs {
		if p.Channel >= ch.Outputs {
			return fmt.Errorf("%w: output %q uses channel %d of %d", ErrInstantiate, p.Name, p.Channel, ch.Outputs)
		}
	}

	return nil
}
