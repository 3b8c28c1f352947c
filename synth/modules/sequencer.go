package modules

import (
	"math"
	"strings"

	"github.com/cwbudde/algo-patch/synth/loader"
)

const (
	maxSteps   = 8
	clockLevel = 0.5
	// pitch output is 1/12 per semitone relative to this note.
	pitchRoot = 48
)

// sequencer advances one step per rising clock edge and emits the step's
// pitch and, while the clock is high, its gate.
type sequencer struct {
	pitch  [maxSteps]float64
	gate   [maxSteps]float64
	length int

	step      int
	prevClock float64
	onStep    func(step int)
}

func newSequencer(float64) (Kernel, error) {
	return &sequencer{length: maxSteps, step: -1}, nil
}

func (k *sequencer) Channels() loader.Channels { return loader.Channels{Inputs: 1, Outputs: 2} }

func (k *sequencer) setStepHandler(fn func(step int)) { k.onStep = fn }

func (k *sequencer) Set(name string, v float64) error {
	if name == "length" {
		k.length = int(clamp(math.Round(v), 1, maxSteps))
		return nil
	}

	head, kind, ok := strings.Cut(name, "_")
	if !ok {
		return nil
	}

	i, ok := indexedName(head, "step")
	if !ok || i < 0 || i >= maxSteps {
		return nil
	}

	switch kind {
	case "pitch":
		k.pitch[i] = v
	case "gate":
		k.gate[i] = v
	}

	return nil
}

func (k *sequencer) Process(in, out [][]float64) {
	pitch, gate := out[0], out[1]

	var clk []float64
	if len(in) > 0 {
		clk = in[0]
	}

	for i := range pitch {
		c := 0.0
		if i < len(clk) {
			c = clk[i]
		}

		if c >= clockLevel && k.prevClock < clockLevel {
			k.step = (k.step + 1) % k.length
			if k.onStep != nil {
				k.onStep(k.step)
			}
		}

		k.prevClock = c

		if k.step < 0 {
			continue
		}

		pitch[i] = (k.pitch[k.step] - pitchRoot) / 12

		if k.gate[k.step] >= 0.5 && c >= clockLevel {
			gate[i] = 1
		}
	}
}
