package patch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math"
	"sync"
	"time"

	"github.com/cwbudde/algo-patch/synth/audiograph"
	"github.com/cwbudde/algo-patch/synth/loader"
	"github.com/cwbudde/algo-patch/synth/registry"
	"github.com/cwbudde/algo-patch/synth/routing"
)

const (
	// DefaultSampleRate is used when no sample rate is configured.
	DefaultSampleRate = 48000.0
	// DefaultLoadTimeout bounds the parallel load phase of Start.
	DefaultLoadTimeout = 5 * time.Second
)

var (
	// ErrUnknownModule is returned for module ids that are not registered.
	ErrUnknownModule = errors.New("patch: unknown module")
	// ErrUnknownPort is returned for ports missing from a module's layout.
	ErrUnknownPort = errors.New("patch: unknown port")
	// ErrInvalidValue is returned for NaN or infinite parameter values.
	ErrInvalidValue = errors.New("patch: invalid parameter value")
	// ErrStopped is returned by Start when Stop ran while modules were loading.
	ErrStopped = errors.New("patch: stopped while starting")
)

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger for swallowed failures.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithSampleRate sets the processing sample rate.
func WithSampleRate(sampleRate float64) Option {
	return func(g *Graph) {
		if sampleRate > 0 {
			g.sampleRate = sampleRate
		}
	}
}

// WithLoadTimeout bounds how long Start waits for module loads. Loads still
// pending at the deadline are abandoned and their modules stay silent.
func WithLoadTimeout(d time.Duration) Option {
	return func(g *Graph) {
		if d > 0 {
			g.loadTimeout = d
		}
	}
}

// WithAnalyserSize sets the analysis tap's FFT size.
func WithAnalyserSize(size int) Option {
	return func(g *Graph) {
		g.analyserSize = size
	}
}

// WithRoutingReporter receives the result of every live routing action.
func WithRoutingReporter(fn routing.Reporter) Option {
	return func(g *Graph) {
		g.reporter = fn
	}
}

type module struct {
	def      registry.ModuleTypeDef
	params   map[string]float64
	position registry.Position

	live *loader.Loaded
	att  *routing.Attachment
}

// Graph is a live-rewireable patch. The zero value is not usable; call New.
type Graph struct {
	mu sync.Mutex

	reg          *registry.Registry
	loader       *loader.Loader
	logger       *slog.Logger
	sampleRate   float64
	loadTimeout  time.Duration
	analyserSize int
	reporter     routing.Reporter

	order   []string
	modules map[string]*module
	cables  []Cable

	running  bool
	starting bool
	gen      uint64
	pc       *audiograph.Context
	router   *routing.Router
	tap      *routing.OutputTap

	onReady     func()
	onStep      func(step int)
	step        int
	stepPending bool
}

// New creates a stopped graph with one module per registered type at its
// default parameters and position, and no cables.
func New(reg *registry.Registry, l *loader.Loader, opts ...Option) *Graph {
	g := &Graph{
		reg:          reg,
		loader:       l,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		sampleRate:   DefaultSampleRate,
		loadTimeout:  DefaultLoadTimeout,
		analyserSize: audiograph.DefaultAnalyserSize,
		modules:      make(map[string]*module),
	}

	for _, opt := range opts {
		opt(g)
	}

	for _, def := range reg.Defs() {
		g.order = append(g.order, def.ID)
		g.modules[def.ID] = &module{def: def, params: def.Defaults(), position: def.Position}
	}

	return g
}

// ModuleDefs returns the definitions of all modules in registration order.
func (g *Graph) ModuleDefs() []registry.ModuleTypeDef {
	return g.reg.Defs()
}

// SampleRate returns the processing sample rate.
func (g *Graph) SampleRate() float64 {
	return g.sampleRate
}

// Running reports whether Start completed and Stop has not been called since.
func (g *Graph) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.running
}

// Live reports whether module id currently has a live node.
func (g *Graph) Live(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.modules[id]

	return ok && m.att != nil
}

// Analyser returns the output module's analysis tap, or nil when stopped.
func (g *Graph) Analyser() *audiograph.Analyser {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.tap == nil {
		return nil
	}

	return g.tap.Analyser()
}

// OnReady registers fn to run after every successful Start.
func (g *Graph) OnReady(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.onReady = fn
}

// OnStep registers fn to receive sequencer step changes. It is called from
// Render after the graph lock is released, at most once per Render with the
// latest step.
func (g *Graph) OnStep(fn func(step int)) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.onStep = fn
}

// SetParameter stores a parameter value and pushes it to the live node.
// Names unknown to the module type are stored but never reach a node.
func (g *Graph) SetParameter(id, name string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s.%s = %v", ErrInvalidValue, id, name, value)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.modules[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModule, id)
	}

	m.params[name] = value
	g.push(m, name, value)

	return nil
}

// GetParameter returns the stored value of a parameter.
func (g *Graph) GetParameter(id, name string) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.modules[id]
	if !ok {
		return 0, false
	}

	v, ok := m.params[name]

	return v, ok
}

// Params returns a copy of a module's parameter values.
func (g *Graph) Params(id string) (map[string]float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.modules[id]
	if !ok {
		return nil, false
	}

	return maps.Clone(m.params), true
}

// Position returns a module's editor position.
func (g *Graph) Position(id string) (registry.Position, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.modules[id]
	if !ok {
		return registry.Position{}, false
	}

	return m.position, true
}

// SetPosition moves a module on the editor canvas.
func (g *Graph) SetPosition(id string, pos registry.Position) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.modules[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModule, id)
	}

	m.position = pos

	return nil
}

// push sends a value to the live node if there is one. Names without a
// native address are skipped.
func (g *Graph) push(m *module, name string, value float64) {
	if m.live == nil {
		return
	}

	err := m.live.Set(name, value)
	if err == nil || errors.Is(err, loader.ErrUnknownAddress) {
		return
	}

	g.logger.Warn("parameter push failed", "module", m.def.ID, "param", name, "err", err)
}

// Render renders one buffer of the destination into out and reports
// whether the graph was running. A stopped graph renders silence.
func (g *Graph) Render(out audiograph.Bus) bool {
	g.mu.Lock()

	if !g.running {
		g.mu.Unlock()
		out.Clear()

		return false
	}

	g.pc.Render(out)

	step, pending, fn := g.step, g.stepPending, g.onStep
	g.stepPending = false
	g.mu.Unlock()

	if pending && fn != nil {
		fn(step)
	}

	return true
}

// latchStep runs inside Render while the graph lock is held.
func (g *Graph) latchStep(step int) {
	g.step = step
	g.stepPending = true
}
