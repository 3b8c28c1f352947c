package modules

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/filter/moog"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-patch/synth/loader"
)

const (
	minCutoffHz = 20.0
	// cutoff CV range in octaves at full depth
	cutoffCVOctaves = 4.0
	// registry resonance [0, 1) maps onto the ladder's [0, 4) feedback
	ladderResonance = 4.0
	// drive range accepted by the ladder
	minLadderDrive = 0.1
	maxLadderDrive = 24.0
)

type vcf struct {
	sampleRate float64
	filter     *moog.Filter

	cutoff  float64
	cvDepth float64
	applied float64
}

func newVCF(sampleRate float64) (Kernel, error) {
	f, err := moog.New(sampleRate,
		moog.WithCutoffHz(1000),
		moog.WithResonance(0.5*ladderResonance),
		moog.WithNormalizeOutput(true),
	)
	if err != nil {
		return nil, fmt.Errorf("vcf: %w", err)
	}

	return &vcf{sampleRate: sampleRate, filter: f, cutoff: 1000, applied: 1000}, nil
}

func (k *vcf) Channels() loader.Channels { return loader.Channels{Inputs: 2, Outputs: 1} }

func (k *vcf) Set(name string, v float64) error {
	switch name {
	case "cutoff":
		k.cutoff = v
	case "resonance":
		if err := k.filter.SetResonance(clamp(v, 0, 0.99) * ladderResonance); err != nil {
			return fmt.Errorf("vcf: %w", err)
		}
	case "cvDepth":
		k.cvDepth = v
	case "drive":
		if err := k.filter.SetDrive(clamp(v, minLadderDrive, maxLadderDrive)); err != nil {
			return fmt.Errorf("vcf: %w", err)
		}
	}

	return nil
}

// Process applies the cutoff CV once per block.
func (k *vcf) Process(in, out [][]float64) {
	audio, cv := in[0], in[1]

	fc := k.cutoff * exp2(mean(cv)*k.cvDepth*cutoffCVOctaves)
	fc = clamp(fc, minCutoffHz, 0.45*k.sampleRate)

	if fc != k.applied {
		if err := k.filter.SetCutoffHz(fc); err == nil {
			k.applied = fc
		}
	}

	dst := out[0]
	for i := range dst {
		dst[i] = k.filter.ProcessSample(audio[i])
	}
}

type vca struct {
	gain, cvDepth float64
	curve         []float64
}

func newVCA(float64) (Kernel, error) {
	return &vca{gain: 0.8, cvDepth: 1}, nil
}

func (k *vca) Channels() loader.Channels { return loader.Channels{Inputs: 2, Outputs: 1} }

func (k *vca) Set(name string, v float64) error {
	switch name {
	case "gain":
		k.gain = v
	case "cvDepth":
		k.cvDepth = v
	}

	return nil
}

// Process scales the input by gain·((1-depth) + depth·cv), with cv clamped to [0, 1].
func (k *vca) Process(in, out [][]float64) {
	audio, cv := in[0], in[1]
	curve := scratch(&k.curve, len(out[0]))

	for i := range curve {
		curve[i] = k.gain * (1 - k.cvDepth + k.cvDepth*clamp(cv[i], 0, 1))
	}

	vecmath.MulBlock(out[0], audio, curve)
}

const (
	stageIdle = iota
	stageAttack
	stageDecay
	stageSustain
	stageRelease
)

// envelope is a gate-driven ADSR with a linear attack and exponential
// decay and release segments.
type envelope struct {
	sampleRate float64

	attack, sustain  float64
	decayK, releaseK float64
	stage            int
	level            float64
	gate             bool
}

func newEnvelope(sampleRate float64) (Kernel, error) {
	return &envelope{
		sampleRate: sampleRate,
		attack:     0.01,
		sustain:    0.6,
		decayK:     decayCoef(0.2, sampleRate),
		releaseK:   decayCoef(0.3, sampleRate),
	}, nil
}

func (k *envelope) Channels() loader.Channels { return loader.Channels{Inputs: 1, Outputs: 1} }

func (k *envelope) Set(name string, v float64) error {
	switch name {
	case "attack":
		k.attack = v
	case "decay":
		k.decayK = decayCoef(v, k.sampleRate)
	case "sustain":
		k.sustain = v
	case "release":
		k.releaseK = decayCoef(v, k.sampleRate)
	}

	return nil
}

func (k *envelope) Process(in, out [][]float64) {
	gateIn, dst := in[0], out[0]
	attackStep := 1 / (k.attack * k.sampleRate)

	for i := range dst {
		g := gateIn[i] >= 0.5

		switch {
		case g && !k.gate:
			k.stage = stageAttack
		case !g && k.gate:
			k.stage = stageRelease
		}

		k.gate = g

		switch k.stage {
		case stageAttack:
			k.level += attackStep
			if k.level >= 1 {
				k.level = 1
				k.stage = stageDecay
			}
		case stageDecay:
			k.level = k.sustain + (k.level-k.sustain)*k.decayK
			if k.level-k.sustain < 1e-4 {
				k.level = k.sustain
				k.stage = stageSustain
			}
		case stageSustain:
			k.level = k.sustain
		case stageRelease:
			k.level *= k.releaseK
			if k.level < 1e-5 {
				k.level = 0
				k.stage = stageIdle
			}
		}

		dst[i] = k.level
	}
}
