package modules

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/cwbudde/algo-patch/synth/audiograph"
	"github.com/cwbudde/algo-patch/synth/loader"
)

//go:embed descriptions/*.json
var embedded embed.FS

// Factory builds a kernel for a sample rate.
type Factory func(sampleRate float64) (Kernel, error)

// Option configures a Source.
type Option func(*Source)

// WithFS reads descriptions from fsys instead of the embedded set.
// Files are named <type>.json at the root of fsys.
func WithFS(fsys fs.FS) Option {
	return func(s *Source) {
		if fsys != nil {
			s.fsys = fsys
		}
	}
}

// WithFactory registers or replaces the kernel factory for a module type.
func WithFactory(typeID string, f Factory) Option {
	return func(s *Source) {
		s.factories[typeID] = f
	}
}

// Source instantiates built-in modules. It is safe for concurrent use.
type Source struct {
	fsys      fs.FS
	factories map[string]Factory

	mu    sync.Mutex
	cache map[string]*Description
}

var _ loader.Source = (*Source)(nil)

// NewSource returns a source over the embedded descriptions and the
// built-in kernels.
func NewSource(opts ...Option) *Source {
	sub, err := fs.Sub(embedded, "descriptions")
	if err != nil {
		panic(err)
	}

	s := &Source{
		fsys:      sub,
		factories: defaultFactories(),
		cache:     make(map[string]*Description),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Description fetches and parses the description of a module type.
func (s *Source) Description(typeID string) (*Description, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.cache[typeID]; ok {
		return d, nil
	}

	data, err := fs.ReadFile(s.fsys, typeID+".json")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", loader.ErrFetch, typeID, err)
	}

	d, err := ParseDescription(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", loader.ErrInstantiate, typeID, err)
	}

	s.cache[typeID] = d

	return d, nil
}

// Load implements loader.Source.
func (s *Source) Load(ctx context.Context, typeID string, pc *audiograph.Context) (loader.LiveNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	desc, err := s.Description(typeID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	factory, ok := s.factories[typeID]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s: no kernel", loader.ErrInstantiate, typeID)
	}

	kernel, err := factory(pc.SampleRate())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", loader.ErrInstantiate, typeID, err)
	}

	want := loader.Channels{Inputs: desc.Inputs, Outputs: desc.Outputs}
	if got := kernel.Channels(); got != want {
		return nil, fmt.Errorf("%w: %s: kernel channels %+v, description %+v", loader.ErrInstantiate, typeID, got, want)
	}

	node, err := newNode(desc, kernel)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", loader.ErrInstantiate, typeID, err)
	}

	return node, nil
}
