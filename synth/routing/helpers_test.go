package routing

import (
	"github.com/cwbudde/algo-patch/synth/audiograph"
	"github.com/cwbudde/algo-patch/synth/loader"
	"github.com/cwbudde/algo-patch/synth/registry"
)

// stubNode emits a constant per output channel and copies its first input
// channels through when it has as many outputs as inputs.
type stubNode struct {
	channels loader.Channels
	values   []float64
	lastIn   [][]float64
	disposed bool
}

func constant(values ...float64) *stubNode {
	return &stubNode{channels: loader.Channels{Outputs: len(values)}, values: values}
}

func passThrough(channels int) *stubNode {
	return &stubNode{channels: loader.Channels{Inputs: channels, Outputs: channels}}
}

func sink(channels int) *stubNode {
	return &stubNode{channels: loader.Channels{Inputs: channels, Outputs: 1}}
}

func (n *stubNode) InputPorts() []int {
	if n.channels.Inputs == 0 {
		return nil
	}

	return []int{n.channels.Inputs}
}

func (n *stubNode) OutputPorts() []int {
	if n.channels.Outputs == 0 {
		return nil
	}

	return []int{n.channels.Outputs}
}

func (n *stubNode) Process(in, out []audiograph.Bus) {
	if len(in) > 0 {
		n.lastIn = make([][]float64, len(in[0]))
		for ch := range in[0] {
			n.lastIn[ch] = append([]float64(nil), in[0][ch]...)
		}
	}

	for ch := range out[0] {
		switch {
		case n.values != nil:
			for i := range out[0][ch] {
				out[0][ch][i] = n.values[ch]
			}
		case len(in) > 0 && ch < len(in[0]):
			copy(out[0][ch], in[0][ch])
		}
	}
}

func (n *stubNode) ParameterAddresses() []string            { return nil }
func (n *stubNode) SetParameterValue(string, float64) error { return nil }
func (n *stubNode) Channels() loader.Channels               { return n.channels }
func (n *stubNode) Dispose()                                { n.disposed = true }

type liveSet map[string]*Attachment

func (s liveSet) resolve(module string) (*Attachment, registry.ModuleTypeDef, bool) {
	att, ok := s[module]
	if !ok {
		return nil, registry.ModuleTypeDef{}, false
	}

	def, ok := registry.Default().Lookup(module)

	return att, def, ok
}
