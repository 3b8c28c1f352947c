package modules

import (
	"math"
	"strconv"
	"strings"

	"github.com/meko-christian/algo-approx"
)

const ln2 = 0.693147180559945309417232121458

func defaultFactories() map[string]Factory {
	return map[string]Factory{
		"vco":   newVCO,
		"noise": newNoise,
		"vcf":   newVCF,
		"vca":   newVCA,
		"env":   newEnvelope,
		"lfo":   newLFO,
		"seq":   newSequencer,
		"clk":   newClock,
		"dly":   newEcho,
		"rev":   newReverb,
		"mix":   newMixer,
		"out":   newOutput,
	}
}

// exp2 is 2^x.
func exp2(x float64) float64 {
	return approx.FastExp(x * ln2)
}

// noteToHz converts a MIDI note number (fractional allowed) to Hz.
func noteToHz(note float64) float64 {
	return 440 * exp2((note-69)/12)
}

// decayCoef returns the per-sample multiplier that decays by 60 dB over seconds.
func decayCoef(seconds, sampleRate float64) float64 {
	return approx.FastExp(-6.907755278982137 / (seconds * sampleRate))
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// indexedName splits names like "level3" into ("level", 3).
func indexedName(name, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}

	i, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}

	return i, true
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range x {
		sum += v
	}

	return sum / float64(len(x))
}

func scratch(buf *[]float64, n int) []float64 {
	if cap(*buf) < n {
		*buf = make([]float64, n)
	}

	return (*buf)[:n]
}
