package audiograph

// Destination is the context's final stereo sink.
type Destination struct{}

func (*Destination) InputPorts() []int  { return []int{2} }
func (*Destination) OutputPorts() []int { return nil }
func (*Destination) Process(_, _ []Bus) {}

// Splitter exposes each channel of one multi-channel input as its own mono output port.
type Splitter struct {
	channels int
	outputs  []int
}

// NewSplitter returns a splitter for a channels-wide input.
func NewSplitter(channels int) *Splitter {
	outs := make([]int, channels)
	for i := range outs {
		outs[i] = 1
	}

	return &Splitter{channels: channels, outputs: outs}
}

// Channels returns the number of split channels.
func (s *Splitter) Channels() int { return s.channels }

func (s *Splitter) InputPorts() []int  { return []int{s.channels} }
func (s *Splitter) OutputPorts() []int { return s.outputs }

func (s *Splitter) Process(in, out []Bus) {
	for ch := range out {
		copy(out[ch][0], in[0][ch])
	}
}

// Merger combines mono input ports into one multi-channel output port.
type Merger struct {
	channels int
	inputs   []int
}

// NewMerger returns a merger with channels mono inputs.
func NewMerger(channels int) *Merger {
	ins := make([]int, channels)
	for i := range ins {
		ins[i] = 1
	}

	return &Merger{channels: channels, inputs: ins}
}

// Channels returns the number of merged channels.
func (m *Merger) Channels() int { return m.channels }

func (m *Merger) InputPorts() []int  { return m.inputs }
func (m *Merger) OutputPorts() []int { return []int{m.channels} }

func (m *Merger) Process(in, out []Bus) {
	for ch := range in {
		copy(out[0][ch], in[ch][0])
	}
}
