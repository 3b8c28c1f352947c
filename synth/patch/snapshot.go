package patch

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// Snapshot returns a deep copy of the graph's topology and parameters.
func (g *Graph) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Snapshot{
		Modules: make(map[string]ModuleState, len(g.modules)),
		Cables:  slices.Clone(g.cables),
	}

	for id, m := range g.modules {
		s.Modules[id] = ModuleState{Position: m.position, Params: maps.Clone(m.params)}
	}

	return s
}

// Restore replaces the graph's state with s. Each module starts from its
// defaults with the snapshot's values laid over them; modules missing from
// s are reset. Unknown modules and invalid cables are dropped with a
// warning. A non-finite parameter value rejects the whole snapshot.
// When running, parameters and cables are applied live.
func (g *Graph) Restore(s Snapshot) error {
	for id, st := range s.Modules {
		for name, v := range st.Params {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s.%s = %v", ErrInvalidValue, id, name, v)
			}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for id := range s.Modules {
		if _, ok := g.modules[id]; !ok {
			g.logger.Warn("snapshot module ignored", "module", id)
		}
	}

	for _, id := range g.order {
		m := g.modules[id]
		m.params = m.def.Defaults()
		m.position = m.def.Position

		if st, ok := s.Modules[id]; ok {
			maps.Copy(m.params, st.Params)
			m.position = st.Position
		}
	}

	cables := make([]Cable, 0, len(s.Cables))
	for _, c := range s.Cables {
		if err := g.validate(c); err != nil {
			g.logger.Warn("snapshot cable ignored", "cable", c.String(), "err", err)
			continue
		}

		cables = append(cables, c)
	}

	for _, id := range g.order {
		m := g.modules[id]
		for name, v := range m.params {
			g.push(m, name, v)
		}
	}

	g.replaceCables(dedupeDestinations(cables))

	return nil
}

// Reset restores the starter patch.
func (g *Graph) Reset() {
	// DefaultSnapshot only holds registry defaults, which are finite.
	_ = g.Restore(DefaultSnapshot(g.reg))
}
