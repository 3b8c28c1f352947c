package patch

import (
	"context"
	"fmt"

	"github.com/cwbudde/algo-patch/synth/audiograph"
	"github.com/cwbudde/algo-patch/synth/loader"
	"github.com/cwbudde/algo-patch/synth/registry"
	"github.com/cwbudde/algo-patch/synth/routing"
)

type loadResult struct {
	id     string
	loaded *loader.Loaded
	err    error
}

// Start creates a processing context, loads every module in parallel and
// materializes the stored parameters and cables. A module that fails or
// does not finish loading within the load timeout stays silent; Start
// itself only fails when ctx is canceled or Stop runs concurrently.
// Calling Start on a running or starting graph is a no-op.
func (g *Graph) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running || g.starting {
		g.mu.Unlock()
		return nil
	}

	g.gen++
	gen := g.gen
	g.starting = true
	pc := audiograph.NewContext(g.sampleRate)
	g.pc = pc

	defs := make([]registry.ModuleTypeDef, 0, len(g.order))
	for _, id := range g.order {
		defs = append(defs, g.modules[id].def)
	}
	g.mu.Unlock()

	results := g.loadAll(ctx, pc, defs)

	g.mu.Lock()

	if g.gen != gen {
		g.mu.Unlock()
		disposeAll(results)
		pc.Close()

		return ErrStopped
	}

	if err := ctx.Err(); err != nil {
		g.starting = false
		g.pc = nil
		g.mu.Unlock()
		disposeAll(results)
		pc.Close()

		return fmt.Errorf("patch: start: %w", err)
	}

	for _, res := range results {
		g.attach(res)
	}

	g.setupOutput()

	g.router = routing.NewRouter(pc, routing.WithLogger(g.logger), routing.WithReporter(g.reporter))

	for _, id := range g.order {
		m := g.modules[id]
		for name, v := range m.params {
			g.push(m, name, v)
		}
	}

	for _, c := range g.cables {
		g.route(c)
	}

	g.starting = false
	g.running = true
	onReady := g.onReady
	cables := len(g.cables)
	g.mu.Unlock()

	g.logger.Info("patch started", "modules", len(results), "cables", cables)

	if onReady != nil {
		onReady()
	}

	return nil
}

// loadAll loads defs concurrently and returns the loads that finished before
// the timeout. Stragglers are disposed when they eventually arrive.
func (g *Graph) loadAll(ctx context.Context, pc *audiograph.Context, defs []registry.ModuleTypeDef) []loadResult {
	loadCtx, cancel := context.WithTimeout(ctx, g.loadTimeout)
	defer cancel()

	ch := make(chan loadResult, len(defs))
	for _, def := range defs {
		go func() {
			loaded, err := g.loader.Load(loadCtx, def, pc)
			ch <- loadResult{id: def.ID, loaded: loaded, err: err}
		}()
	}

	results := make([]loadResult, 0, len(defs))
	pending := len(defs)

	for pending > 0 {
		select {
		case res := <-ch:
			pending--

			if res.err != nil {
				g.logger.Warn("module load failed", "module", res.id, "err", res.err)
				continue
			}

			results = append(results, res)
		case <-loadCtx.Done():
			g.logger.Warn("module loads abandoned", "pending", pending, "err", loadCtx.Err())
			go g.drain(ch, pending)

			return results
		}
	}

	return results
}

func (g *Graph) drain(ch <-chan loadResult, pending int) {
	for range pending {
		res := <-ch
		if res.loaded != nil {
			g.logger.Debug("disposing late module", "module", res.id)
			res.loaded.Node.Dispose()
		}
	}
}

func disposeAll(results []loadResult) {
	for _, res := range results {
		if res.loaded != nil {
			res.loaded.Node.Dispose()
		}
	}
}

func (g *Graph) attach(res loadResult) {
	m, ok := g.modules[res.id]
	if !ok {
		res.loaded.Node.Dispose()
		return
	}

	att, err := routing.Attach(g.pc, res.loaded.Node)
	if err != nil {
		g.logger.Warn("module attach failed", "module", res.id, "err", err)
		res.loaded.Node.Dispose()

		return
	}

	m.live = res.loaded
	m.att = att

	if m.def.Sequencer {
		if n, ok := res.loaded.Node.(loader.StepNotifier); ok {
			n.SetStepHandler(g.latchStep)
		}
	}
}

func (g *Graph) setupOutput() {
	def, ok := g.reg.OutputModule()
	if !ok {
		g.logger.Warn("no output module registered")
		return
	}

	m := g.modules[def.ID]
	if m == nil || m.att == nil {
		g.logger.Warn("output module not live", "module", def.ID)
		return
	}

	tap, err := routing.SetupOutput(g.pc, m.att, g.analyserSize)
	if err != nil {
		g.logger.Warn("output setup failed", "module", def.ID, "err", err)
		return
	}

	g.tap = tap
}

// Stop tears down the processing context. Cables, parameters and positions
// are kept for the next Start. Stopping a stopped graph is a no-op; stopping
// a starting graph makes that Start return ErrStopped.
func (g *Graph) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running && !g.starting {
		return
	}

	g.gen++

	if g.tap != nil {
		g.tap.Teardown()
	}

	for _, id := range g.order {
		m := g.modules[id]
		if m.att != nil {
			m.att.Detach()
		}

		m.att = nil
		m.live = nil
	}

	if g.pc != nil {
		g.pc.Close()
	}

	g.pc = nil
	g.router = nil
	g.tap = nil
	g.running = false
	g.starting = false
	g.stepPending = false

	g.logger.Info("patch stopped")
}

// resolve is the routing.Resolver over the live modules.
func (g *Graph) resolve(id string) (*routing.Attachment, registry.ModuleTypeDef, bool) {
	m, ok := g.modules[id]
	if !ok || m.att == nil {
		return nil, registry.ModuleTypeDef{}, false
	}

	return m.att, m.def, true
}

func (g *Graph) route(c Cable) {
	if g.router != nil {
		g.router.Connect(c.From, c.To, g.resolve)
	}
}

func (g *Graph) unroute(c Cable) {
	if g.router != nil {
		g.router.Disconnect(c.From, c.To, g.resolve)
	}
}
