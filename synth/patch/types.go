package patch

import (
	"maps"

	"github.com/cwbudde/algo-patch/synth/registry"
	"github.com/cwbudde/algo-patch/synth/routing"
)

// Cable is a directed connection from an output port to an input port.
type Cable struct {
	From routing.PortRef `json:"from"`
	To   routing.PortRef `json:"to"`
}

func (c Cable) String() string {
	return c.From.String() + " -> " + c.To.String()
}

// ModuleState is the persisted state of one module.
type ModuleState struct {
	Position registry.Position  `json:"position"`
	Params   map[string]float64 `json:"params"`
}

// Snapshot is the full topology and parameter state of a graph.
type Snapshot struct {
	Modules map[string]ModuleState `json:"modules"`
	Cables  []Cable                `json:"cables"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Modules: make(map[string]ModuleState, len(s.Modules)),
		Cables:  append([]Cable(nil), s.Cables...),
	}

	for id, st := range s.Modules {
		out.Modules[id] = ModuleState{Position: st.Position, Params: maps.Clone(st.Params)}
	}

	return out
}

// DefaultCables is the starter patch: the clock drives the sequencer, the
// sequencer gate triggers the envelope, and the oscillator runs through the
// filter and amplifier into both output channels.
func DefaultCables() []Cable {
	pairs := [][2]string{
		{"clk.clock", "seq.clock"},
		{"seq.gate", "env.gate"},
		{"vco.out", "vcf.in"},
		{"vcf.out", "vca.in"},
		{"env.out", "vca.cv"},
		{"vca.out", "out.inL"},
		{"vca.out", "out.inR"},
	}

	cables := make([]Cable, len(pairs))
	for i, p := range pairs {
		cables[i] = Cable{From: routing.MustParsePortRef(p[0]), To: routing.MustParsePortRef(p[1])}
	}

	return cables
}

// DefaultSnapshot returns every registered module at its default parameters
// and position, wired with DefaultCables.
func DefaultSnapshot(reg *registry.Registry) Snapshot {
	s := Snapshot{Modules: make(map[string]ModuleState), Cables: DefaultCables()}
	for _, def := range reg.Defs() {
		s.Modules[def.ID] = ModuleState{Position: def.Position, Params: def.Defaults()}
	}

	return s
}
