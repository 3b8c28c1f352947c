package patch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwbudde/algo-patch/synth/audiograph"
	"github.com/cwbudde/algo-patch/synth/loader"
	"github.com/cwbudde/algo-patch/synth/modules"
	"github.com/cwbudde/algo-patch/synth/registry"
	"github.com/cwbudde/algo-patch/synth/routing"
)

// faultySource wraps the built-in module source. Types in fail return the
// error; types in stall block until their channel is closed, even when the
// load context is done.
type faultySource struct {
	base    loader.Source
	fail    map[string]error
	stall   map[string]chan struct{}
	entered chan string
	loaded  chan *trackedNode
}

func newFaultySource() *faultySource {
	return &faultySource{
		base:    modules.NewSource(),
		fail:    map[string]error{},
		stall:   map[string]chan struct{}{},
		entered: make(chan string, 16),
		loaded:  make(chan *trackedNode, 16),
	}
}

func (s *faultySource) Load(ctx context.Context, typeID string, pc *audiograph.Context) (loader.LiveNode, error) {
	if err, ok := s.fail[typeID]; ok {
		return nil, err
	}

	release, stalled := s.stall[typeID]
	if stalled {
		s.entered <- typeID
		<-release

		ctx = context.WithoutCancel(ctx)
	}

	node, err := s.base.Load(ctx, typeID, pc)
	if err != nil {
		return nil, err
	}

	if !stalled {
		return node, nil
	}

	tracked := &trackedNode{LiveNode: node}
	s.loaded <- tracked

	return tracked, nil
}

type trackedNode struct {
	loader.LiveNode
	disposed atomic.Bool
}

func (n *trackedNode) Dispose() {
	n.disposed.Store(true)
	n.LiveNode.Dispose()
}

func newGraph(t *testing.T, src loader.Source, opts ...Option) *Graph {
	t.Helper()

	g := New(registry.Default(), loader.New(src), opts...)
	t.Cleanup(g.Stop)

	return g
}

func startGraph(t *testing.T, g *Graph) {
	t.Helper()

	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

// renderFrames renders n frames of stereo output in blocks of 512.
func renderFrames(g *Graph, n int) [][]float64 {
	out := [][]float64{make([]float64, 0, n), make([]float64, 0, n)}
	bus := audiograph.NewBus(2, 512)

	for len(out[0]) < n {
		g.Render(bus)
		out[0] = append(out[0], bus[0]...)
		out[1] = append(out[1], bus[1]...)
	}

	return out
}

func ref(s string) routing.PortRef {
	return routing.MustParsePortRef(s)
}

// liveValue reads a native parameter value back from a running module.
func liveValue(t *testing.T, g *Graph, id, name string) float64 {
	t.Helper()

	g.mu.Lock()
	defer g.mu.Unlock()

	m := g.modules[id]
	if m.live == nil {
		t.Fatalf("module %q is not live", id)
	}

	addr, ok := m.live.Addresses.Address(name)
	if !ok {
		t.Fatalf("module %q has no address for %q", id, name)
	}

	node, ok := m.live.Node.(*modules.Node)
	if !ok {
		t.Fatalf("module %q node is %T", id, m.live.Node)
	}

	v, _ := node.Value(addr)

	return v
}

// routed reports whether the cable is materialized in the live context.
func routed(g *Graph, c Cable) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pc == nil {
		return false
	}

	src, err := routing.ResolveOutput(c.From, g.resolve)
	if err != nil {
		return false
	}

	dst, err := routing.ResolveInput(c.To, g.resolve)
	if err != nil {
		return false
	}

	return g.pc.Connected(src.Node, src.Port, dst.Node, dst.Port)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}

		time.Sleep(5 * time.Millisecond)
	}
}
