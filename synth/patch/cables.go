package patch

import (
	"fmt"
	"slices"

	"github.com/cwbudde/algo-patch/synth/routing"
)

// Connections returns a copy of the intended cable list.
func (g *Graph) Connections() []Cable {
	g.mu.Lock()
	defer g.mu.Unlock()

	return slices.Clone(g.cables)
}

// Connect adds a cable. An input accepts one cable, so any cable already
// ending at to is replaced. When running, the change is routed live.
func (g *Graph) Connect(from, to routing.PortRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := Cable{From: from, To: to}
	if err := g.validate(c); err != nil {
		return err
	}

	kept, replaced := splitByDestination(g.cables, to)
	g.cables = append(kept, c)

	for _, old := range replaced {
		g.unroute(old)
	}

	g.route(c)

	return nil
}

// Disconnect removes the cable from → to if present.
func (g *Graph) Disconnect(from, to routing.PortRef) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := Cable{From: from, To: to}

	i := slices.Index(g.cables, c)
	if i < 0 {
		return
	}

	g.cables = slices.Delete(g.cables, i, i+1)
	g.unroute(c)
}

// DisconnectAllInto removes every cable ending at to.
func (g *Graph) DisconnectAllInto(to routing.PortRef) {
	g.mu.Lock()
	defer g.mu.Unlock()

	kept, removed := splitByDestination(g.cables, to)
	g.cables = kept

	for _, c := range removed {
		g.unroute(c)
	}
}

// SetConnections replaces the whole cable list. Every cable is validated
// first; on error nothing changes. If several cables share a destination
// the last one wins.
func (g *Graph) SetConnections(cables []Cable) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range cables {
		if err := g.validate(c); err != nil {
			return err
		}
	}

	g.replaceCables(dedupeDestinations(cables))

	return nil
}

func (g *Graph) replaceCables(cables []Cable) {
	for _, c := range g.cables {
		g.unroute(c)
	}

	g.cables = cables

	for _, c := range g.cables {
		g.route(c)
	}
}

func (g *Graph) validate(c Cable) error {
	src, ok := g.modules[c.From.Module]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModule, c.From.Module)
	}

	dst, ok := g.modules[c.To.Module]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModule, c.To.Module)
	}

	if _, ok := src.def.Output(c.From.Port); !ok {
		return fmt.Errorf("%w: output %s", ErrUnknownPort, c.From)
	}

	if _, ok := dst.def.Input(c.To.Port); !ok {
		return fmt.Errorf("%w: input %s", ErrUnknownPort, c.To)
	}

	return nil
}

// splitByDestination partitions cables into those not ending at to and
// those that do. The input slice is not modified.
func splitByDestination(cables []Cable, to routing.PortRef) (kept, matched []Cable) {
	kept = make([]Cable, 0, len(cables))

	for _, c := range cables {
		if c.To == to {
			matched = append(matched, c)
			continue
		}

		kept = append(kept, c)
	}

	return kept, matched
}

func dedupeDestinations(cables []Cable) []Cable {
	out := make([]Cable, 0, len(cables))
	for _, c := range cables {
		out, _ = splitByDestination(out, c.To)
		out = append(out, c)
	}

	return out
}
