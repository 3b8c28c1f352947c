package modules

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/delay"
	"github.com/cwbudde/algo-dsp/dsp/effects/reverb"

	"github.com/cwbudde/algo-patch/synth/loader"
)

const (
	maxDelaySeconds = 2.0
	// seconds of delay added per unit of time CV
	delayCVSeconds = 0.5
	// read-before-write needs two samples of history for the Hermite taps
	minDelaySamples = 2.0
)

type echo struct {
	sampleRate float64
	line       *delay.Line

	time, feedback, mix float64
}

func newEcho(sampleRate float64) (Kernel, error) {
	size := int((maxDelaySeconds+delayCVSeconds)*sampleRate) + 4

	line, err := delay.New(size)
	if err != nil {
		return nil, fmt.Errorf("dly: %w", err)
	}

	return &echo{sampleRate: sampleRate, line: line, time: 0.3, feedback: 0.4, mix: 0.3}, nil
}

func (k *echo) Channels() loader.Channels { return loader.Channels{Inputs: 2, Outputs: 1} }

func (k *echo) Set(name string, v float64) error {
	switch name {
	case "time":
		k.time = v
	case "feedback":
		k.feedback = v
	case "mix":
		k.mix = v
	}

	return nil
}

func (k *echo) Process(in, out [][]float64) {
	audio, cv := in[0], in[1]
	maxDelay := float64(k.line.Len() - 3)

	dst := out[0]
	for i := range dst {
		d := clamp((k.time+delayCVSeconds*cv[i])*k.sampleRate, minDelaySamples, maxDelay)
		wet := k.line.ReadFractional(d)
		k.line.Write(audio[i] + k.feedback*wet)
		dst[i] = (1-k.mix)*audio[i] + k.mix*wet
	}
}

const (
	minRT60 = 0.3
	maxRT60 = 5.0
)

// room maps size onto RT60 and mix onto an equal-sum wet/dry balance.
type room struct {
	fdn *reverb.FDNReverb
}

func newReverb(sampleRate float64) (Kernel, error) {
	fdn, err := reverb.NewFDNReverb(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("rev: %w", err)
	}

	return &room{fdn: fdn}, nil
}

func (k *room) Channels() loader.Channels { return loader.Channels{Inputs: 1, Outputs: 1} }

func (k *room) Set(name string, v float64) error {
	switch name {
	case "size":
		if err := k.fdn.SetRT60(minRT60 + clamp(v, 0, 1)*(maxRT60-minRT60)); err != nil {
			return fmt.Errorf("rev: %w", err)
		}
	case "damping":
		if err := k.fdn.SetDamp(clamp(v, 0, 1)); err != nil {
			return fmt.Errorf("rev: %w", err)
		}
	case "mix":
		v = clamp(v, 0, 1)
		if err := errors.Join(k.fdn.SetWet(v), k.fdn.SetDry(1-v)); err != nil {
			return fmt.Errorf("rev: %w", err)
		}
	}

	return nil
}

func (k *room) Process(in, out [][]float64) {
	src, dst := in[0], out[0]
	for i := range dst {
		dst[i] = k.fdn.ProcessSample(src[i])
	}
}
