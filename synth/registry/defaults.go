package registry

import "strconv"

const seqSteps = 8

func audioPort(name, label string, ch int) Port {
	return Port{Name: name, Label: label, Kind: Audio, Channel: ch}
}

func ctrlPort(name, label string, ch int) Port {
	return Port{Name: name, Label: label, Kind: Control, Channel: ch}
}

func knob(name, label string, def, lo, hi, step float64) Param {
	return Param{Name: name, Label: label, Default: def, Min: lo, Max: hi, Step: step}
}

// Default returns a registry pre-populated with the built-in module types.
//
//nolint:funlen
func Default() *Registry {
	r := NewRegistry()

	r.MustRegister(ModuleTypeDef{
		ID: "vco", Label: "VCO",
		Outputs: []Port{audioPort("out", "OUT", 0)},
		Params: []Param{
			knob("waveform", "WAVE", 0, 0, 3, 1),
			knob("coarse", "PITCH", 48, 24, 72, 1),
			knob("fine", "FINE", 0, -50, 50, 1),
		},
		Position: Position{X: 560, Y: 40},
	})
	r.MustRegister(ModuleTypeDef{
		ID: "noise", Label: "NOISE",
		Outputs:  []Port{audioPort("out", "OUT", 0)},
		Params:   []Param{knob("color", "COLOR", 0.5, 0, 1, 0.01)},
		Position: Position{X: 740, Y: 40},
	})
	r.MustRegister(ModuleTypeDef{
		ID: "vcf", Label: "VCF",
		Inputs:  []Port{audioPort("in", "IN", 0), ctrlPort("cutoffCv", "CV", 1)},
		Outputs: []Port{audioPort("out", "OUT", 0)},
		Params: []Param{
			{Name: "cutoff", Label: "CUTOFF", Default: 1000, Min: 20, Max: 20000, Step: 1, Log: true},
			knob("resonance", "RES", 0.5, 0, 0.99, 0.01),
			knob("cvDepth", "CV", 0.5, 0, 1, 0.01),
		},
		Position: Position{X: 920, Y: 40},
	})
	r.MustRegister(ModuleTypeDef{
		ID: "vca", Label: "VCA",
		Inputs:  []Port{audioPort("in", "IN", 0), ctrlPort("cv", "CV", 1)},
		Outputs: []Port{audioPort("out", "OUT", 0)},
		Params: []Param{
			knob("gain", "GAIN", 0.8, 0, 1, 0.01),
			knob("cvDepth", "CV", 1, 0, 1, 0.01),
		},
		Position: Position{X: 400, Y: 300},
	})
	r.MustRegister(ModuleTypeDef{
		ID: "env", Label: "ENV",
		Inputs:  []Port{ctrlPort("gate", "GATE", 0)},
		Outputs: []Port{ctrlPort("out", "OUT", 0)},
		Params: []Param{
			knob("attack", "A", 0.01, 0.001, 2, 0.001),
			knob("decay", "D", 0.2, 0.001, 2, 0.001),
			knob("sustain", "S", 0.6, 0, 1, 0.01),
			knob("release", "R", 0.3, 0.001, 4, 0.001),
		},
		Position: Position{X: 220, Y: 300},
	})
	r.MustRegister(ModuleTypeDef{
		ID: "lfo", Label: "LFO",
		Outputs: []Port{ctrlPort("out", "OUT", 0)},
		Params: []Param{
			knob("rate", "RATE", 1, 0.1, 20, 0.1),
			knob("waveform", "WAVE", 0, 0, 3, 1),
			knob("depth", "DEPTH", 1, 0, 1, 0.01),
		},
		Position: Position{X: 40, Y: 300},
	})
	r.MustRegister(ModuleTypeDef{
		ID: "seq", Label: "SEQ",
		Inputs:    []Port{ctrlPort("clock", "CLK", 0)},
		Outputs:   []Port{ctrlPort("pitch", "PITCH", 0), ctrlPort("gate", "GATE", 1)},
		Params:    sequencerParams(),
		Wide:      true,
		Sequencer: true,
		Position:  Position{X: 220, Y: 40},
	})
	r.MustRegister(ModuleTypeDef{
		ID: "clk", Label: "CLK",
		Outputs: []Port{ctrlPort("clock", "CLK", 0)},
		Params: []Param{
			knob("bpm", "BPM", 120, 20, 300, 1),
			knob("swing", "SWING", 0, 0, 0.5, 0.01),
		},
		Position: Position{X: 40, Y: 40},
	})
	r.MustRegister(ModuleTypeDef{
		ID: "dly", Label: "DLY",
		Inputs:  []Port{audioPort("in", "IN", 0), ctrlPort("timeCv", "CV", 1)},
		Outputs: []Port{audioPort("out", "OUT", 0)},
		Params: []Param{
			knob("time", "TIME", 0.3, 0.01, 2, 0.01),
			knob("feedback", "FDBK", 0.4, 0, 0.95, 0.01),
			knob("mix", "MIX", 0.3, 0, 1, 0.01),
		},
		Position: Position{X: 580, Y: 300},
	})
	r.MustRegister(ModuleTypeDef{
		ID: "rev", Label: "REV",
		Inputs:  []Port{audioPort("in", "IN", 0)},
		Outputs: []Port{audioPort("out", "OUT", 0)},
		Params: []Param{
			knob("size", "SIZE", 0.5, 0, 1, 0.01),
			knob("damping", "DAMP", 0.5, 0, 1, 0.01),
			knob("mix", "MIX", 0.3, 0, 1, 0.01),
		},
		Position: Position{X: 760, Y: 300},
	})
	r.MustRegister(ModuleTypeDef{
		ID: "mix", Label: "MIX",
		Inputs: []Port{
			audioPort("in1", "1", 0), audioPort("in2", "2", 1),
			audioPort("in3", "3", 2), audioPort("in4", "4", 3),
		},
		Outputs: []Port{audioPort("out", "OUT", 0)},
		Params: []Param{
			knob("level1", "CH1", 0.8, 0, 1, 0.01),
			knob("level2", "CH2", 0.8, 0, 1, 0.01),
			knob("level3", "CH3", 0.8, 0, 1, 0.01),
			knob("level4", "CH4", 0.8, 0, 1, 0.01),
			knob("master", "MSTR", 0.8, 0, 1, 0.01),
		},
		Position: Position{X: 940, Y: 300},
	})
	r.MustRegister(ModuleTypeDef{
		ID: "out", Label: "OUT",
		Inputs:   []Port{audioPort("inL", "L", 0), audioPort("inR", "R", 1)},
		Params:   []Param{knob("volume", "VOL", 0.8, 0, 1, 0.01)},
		HasScope: true,
		Sink:     true,
		Position: Position{X: 1120, Y: 300},
	})

	return r
}

func sequencerParams() []Param {
	// Steps 4 and 6 start muted.
	gates := [seqSteps]float64{1, 1, 1, 1, 0, 1, 0, 1}

	params := make([]Param, 0, 2*seqSteps)
	for i := range seqSteps {
		n := strconv.Itoa(i)
		params = append(params, knob("step"+n, "STEP "+n, 48, 24, 72, 1))
	}

	for i := range seqSteps {
		n := strconv.Itoa(i)
		params = append(params, knob("gate"+n, "GATE "+n, gates[i], 0, 1, 1))
	}

	return params
}
