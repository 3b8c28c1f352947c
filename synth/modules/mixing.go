package modules

import (
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-patch/synth/loader"
)

const mixerChannels = 4

type mixer struct {
	levels [mixerChannels]float64
	master float64
	tmp    []float64
}

func newMixer(float64) (Kernel, error) {
	return &mixer{levels: [mixerChannels]float64{0.8, 0.8, 0.8, 0.8}, master: 0.8}, nil
}

func (k *mixer) Channels() loader.Channels {
	return loader.Channels{Inputs: mixerChannels, Outputs: 1}
}

// Set accepts level1..level4 and master.
func (k *mixer) Set(name string, v float64) error {
	if name == "master" {
		k.master = v
		return nil
	}

	if i, ok := indexedName(name, "level"); ok && i >= 1 && i <= mixerChannels {
		k.levels[i-1] = v
	}

	return nil
}

func (k *mixer) Process(in, out [][]float64) {
	dst := out[0]
	tmp := scratch(&k.tmp, len(dst))

	for ch, src := range in {
		vecmath.ScaleBlock(tmp, src, k.levels[ch]*k.master)
		vecmath.AddBlockInPlace(dst, tmp)
	}
}

type output struct {
	volume float64
}

func newOutput(float64) (Kernel, error) {
	return &output{volume: 0.8}, nil
}

func (k *output) Channels() loader.Channels { return loader.Channels{Inputs: 2, Outputs: 2} }

func (k *output) Set(name string, v float64) error {
	if name == "master_volume" {
		k.volume = v
	}

	return nil
}

func (k *output) Process(in, out [][]float64) {
	for ch := range out {
		vecmath.ScaleBlock(out[ch], in[ch], k.volume)
	}
}
