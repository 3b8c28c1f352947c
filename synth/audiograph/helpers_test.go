package audiograph

import "math"

// constNode emits a constant per output channel on a single output port.
type constNode struct {
	values []float64
}

func (n *constNode) InputPorts() []int  { return nil }
func (n *constNode) OutputPorts() []int { return []int{len(n.values)} }

func (n *constNode) Process(_, out []Bus) {
	for ch, v := range n.values {
		for i := range out[0][ch] {
			out[0][ch][i] = v
		}
	}
}

// sineNode emits a mono sine wave.
type sineNode struct {
	phase, step float64
}

func (n *sineNode) InputPorts() []int  { return nil }
func (n *sineNode) OutputPorts() []int { return []int{1} }

func (n *sineNode) Process(_, out []Bus) {
	for i := range out[0][0] {
		out[0][0][i] = math.Sin(n.phase)
		n.phase += n.step
	}
}

// gainNode scales a mono input.
type gainNode struct {
	gain  float64
	calls int
}

func (n *gainNode) InputPorts() []int  { return []int{1} }
func (n *gainNode) OutputPorts() []int { return []int{1} }

func (n *gainNode) Process(in, out []Bus) {
	n.calls++
	for i, x := range in[0][0] {
		out[0][0][i] = n.gain * x
	}
}
