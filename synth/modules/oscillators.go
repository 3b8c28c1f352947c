package modules

import (
	"math"
	"math/rand/v2"

	"github.com/cwbudde/algo-patch/synth/loader"
)

const (
	waveSine = iota
	waveSaw
	waveSquare
	waveTriangle
)

// polyBLEP is the band-limited step residual at phase t for increment dt.
func polyBLEP(t, dt float64) float64 {
	switch {
	case t < dt:
		t /= dt
		return t + t - t*t - 1
	case t > 1-dt:
		t = (t - 1) / dt
		return t*t + t + t + 1
	default:
		return 0
	}
}

// shape evaluates waveform at phase in [0, 1). A zero inc disables band limiting.
func shape(waveform int, phase, inc float64) float64 {
	switch waveform {
	case waveSaw:
		return 2*phase - 1 - polyBLEP(phase, inc)
	case waveSquare:
		v := 1.0
		if phase >= 0.5 {
			v = -1
		}

		return v + polyBLEP(phase, inc) - polyBLEP(math.Mod(phase+0.5, 1), inc)
	case waveTriangle:
		return 1 - 4*math.Abs(phase-0.5)
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

type phasor struct {
	phase, inc float64
}

func (p *phasor) advance() {
	p.phase += p.inc
	if p.phase >= 1 {
		p.phase -= math.Floor(p.phase)
	}
}

type vco struct {
	sampleRate   float64
	waveform     int
	coarse, fine float64
	level        float64
	osc          phasor
}

func newVCO(sampleRate float64) (Kernel, error) {
	return &vco{sampleRate: sampleRate, coarse: 48, level: 0.5}, nil
}

func (k *vco) Channels() loader.Channels { return loader.Channels{Outputs: 1} }

func (k *vco) Set(name string, v float64) error {
	switch name {
	case "waveform":
		k.waveform = int(math.Round(v))
	case "coarse":
		k.coarse = v
	case "fine":
		k.fine = v
	case "level":
		k.level = v
	}

	k.osc.inc = math.Min(noteToHz(k.coarse+k.fine/100)/k.sampleRate, 0.5)

	return nil
}

func (k *vco) Process(_, out [][]float64) {
	dst := out[0]
	for i := range dst {
		dst[i] = k.level * shape(k.waveform, k.osc.phase, k.osc.inc)
		k.osc.advance()
	}
}

type noise struct {
	rng          *rand.Rand
	color, level float64
	brown        float64
}

func newNoise(float64) (Kernel, error) {
	return &noise{rng: rand.New(rand.NewPCG(0x9e3779b97f4a7c15, 0x2545f4914f6cdd1d)), level: 0.3}, nil
}

func (k *noise) Channels() loader.Channels { return loader.Channels{Outputs: 1} }

func (k *noise) Set(name string, v float64) error {
	switch name {
	case "color":
		k.color = v
	case "level":
		k.level = v
	}

	return nil
}

// Process blends white noise with a leaky-integrated (brown) copy by color.
func (k *noise) Process(_, out [][]float64) {
	dst := out[0]
	for i := range dst {
		white := 2*k.rng.Float64() - 1
		k.brown += 0.02 * (white - k.brown)
		dst[i] = k.level * ((1-k.color)*white + k.color*3.5*k.brown)
	}
}

type lfo struct {
	sampleRate float64
	waveform   int
	depth      float64
	osc        phasor
}

func newLFO(sampleRate float64) (Kernel, error) {
	return &lfo{sampleRate: sampleRate, depth: 1, osc: phasor{inc: 1 / sampleRate}}, nil
}

func (k *lfo) Channels() loader.Channels { return loader.Channels{Outputs: 1} }

func (k *lfo) Set(name string, v float64) error {
	switch name {
	case "rate":
		k.osc.inc = v / k.sampleRate
	case "waveform":
		k.waveform = int(math.Round(v))
	case "depth":
		k.depth = v
	}

	return nil
}

func (k *lfo) Process(_, out [][]float64) {
	dst := out[0]
	for i := range dst {
		dst[i] = k.depth * shape(k.waveform, k.osc.phase, 0)
		k.osc.advance()
	}
}

// clock emits sixteenth-note pulses. Swing lengthens even steps and shortens
// odd ones by the same amount so pairs stay on the beat.
type clock struct {
	sampleRate float64
	bpm, swing float64
	pos        float64
	odd        bool
}

func newClock(sampleRate float64) (Kernel, error) {
	return &clock{sampleRate: sampleRate, bpm: 120}, nil
}

func (k *clock) Channels() loader.Channels { return loader.Channels{Outputs: 1} }

func (k *clock) Set(name string, v float64) error {
	switch name {
	case "bpm":
		k.bpm = v
	case "swing":
		k.swing = v
	}

	return nil
}

func (k *clock) Process(_, out [][]float64) {
	period := k.sampleRate * 60 / math.Max(k.bpm, 1) / 4

	dst := out[0]
	for i := range dst {
		dur := period * (1 + k.swing)
		if k.odd {
			dur = period * (1 - k.swing)
		}

		if k.pos < dur/2 {
			dst[i] = 1
		}

		k.pos++
		if k.pos >= dur {
			k.pos -= dur
			k.odd = !k.odd
		}
	}
}
