package testutil

import "math"

// DeterministicSine generates a deterministic sine wave.
func DeterministicSine(freqHz, sampleRate, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}
	return out
}

// DC generates a constant-valued signal.
func DC(value float64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = value
	}
	return out
}

// Gate returns a signal that is 1 in [on, off) and 0 elsewhere.
func Gate(length, on, off int) []float64 {
	out := make([]float64, length)
	for i := max(on, 0); i < min(off, length); i++ {
		out[i] = 1
	}
	return out
}

// RMS returns the root mean square of x, or 0 for an empty slice.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// RisingEdges returns the indices where x crosses threshold upwards.
func RisingEdges(x []float64, threshold float64) []int {
	var out []int
	for i := 1; i < len(x); i++ {
		if x[i-1] < threshold && x[i] >= threshold {
			out = append(out, i)
		}
	}
	return out
}
