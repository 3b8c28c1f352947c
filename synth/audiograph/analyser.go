package audiograph

import (
	"fmt"
	"math"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/window"
	"github.com/cwbudde/algo-vecmath"
)

const (
	// DefaultAnalyserSize is the FFT size used when none is configured.
	DefaultAnalyserSize = 2048

	minAnalyserSize   = 32
	maxAnalyserSize   = 32768
	analyserSmoothing = 0.8
	analyserFloorDB   = -130.0
)

// Analyser is a mono pass-through tap that keeps the most recent Size()
// samples for time-domain and spectrum readout. Readers may call its
// accessors from any goroutine while the context renders.
type Analyser struct {
	mu sync.Mutex

	size    int
	ring    []float64
	write   int
	filled  int
	window  []float64
	winGain float64

	plan   *algofft.Plan[complex128]
	input  []complex128
	output []complex128
	re     []float64
	im     []float64
	mag    []float64
	db     []float64
	primed bool
}

// NewAnalyser creates an analyser tap, registers it with the context and
// keeps it rendering even when nothing consumes its output.
func (c *Context) NewAnalyser(size int) (*Analyser, error) {
	if c.closed {
		return nil, ErrClosed
	}

	a, err := newAnalyser(size)
	if err != nil {
		return nil, err
	}

	c.vertices[a] = newVertex(a)
	c.sinks = append(c.sinks, a)

	return a, nil
}

func newAnalyser(size int) (*Analyser, error) {
	if size < minAnalyserSize || size > maxAnalyserSize || size&(size-1) != 0 {
		return nil, fmt.Errorf("audiograph: analyser size must be a power of two in [%d, %d]: %d",
			minAnalyserSize, maxAnalyserSize, size)
	}

	win := window.Generate(window.TypeBlackman, size, window.WithPeriodic())
	if len(win) != size {
		return nil, fmt.Errorf("audiograph: invalid analyser window size: %d", size)
	}

	sum := 0.0
	for _, w := range win {
		sum += w
	}

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("audiograph: analyser fft plan: %w", err)
	}

	bins := size/2 + 1

	a := &Analyser{
		size:    size,
		ring:    make([]float64, size),
		window:  win,
		winGain: sum / float64(size),
		plan:    plan,
		input:   make([]complex128, size),
		output:  make([]complex128, size),
		re:      make([]float64, bins),
		im:      make([]float64, bins),
		mag:     make([]float64, bins),
		db:      make([]float64, bins),
	}

	for i := range a.db {
		a.db[i] = analyserFloorDB
	}

	return a, nil
}

// Size returns the analysis window length in samples.
func (a *Analyser) Size() int { return a.size }

// Bins returns the number of frequency bins (Size()/2 + 1).
func (a *Analyser) Bins() int { return a.size/2 + 1 }

func (a *Analyser) InputPorts() []int  { return []int{1} }
func (a *Analyser) OutputPorts() []int { return []int{1} }

func (a *Analyser) Process(in, out []Bus) {
	src := in[0][0]
	copy(out[0][0], src)

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, x := range src {
		a.ring[a.write] = x

		a.write++
		if a.write >= a.size {
			a.write = 0
		}
	}

	a.filled = min(a.size, a.filled+len(src))
}

// TimeDomain copies the newest min(len(dst), Size()) samples into dst,
// oldest first, and returns the number written.
func (a *Analyser) TimeDomain(dst []float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := min(len(dst), a.size)
	start := a.write - n

	if start < 0 {
		start += a.size
	}

	for i := range n {
		dst[i] = a.ring[(start+i)%a.size]
	}

	return n
}

// ByteTimeDomain is TimeDomain scaled to unsigned bytes centred on 128.
func (a *Analyser) ByteTimeDomain(dst []byte) int {
	tmp := make([]float64, min(len(dst), a.size))
	n := a.TimeDomain(tmp)

	for i := range n {
		v := 128 * (1 + tmp[i])
		dst[i] = byte(math.Max(0, math.Min(255, math.Floor(v))))
	}

	return n
}

// FrequencyDB writes smoothed magnitude bins in dBFS into dst and returns
// the number written. Bins are recomputed from the current window on every call.
func (a *Analyser) FrequencyDB(dst []float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.updateSpectrum()

	return copy(dst, a.db)
}

func (a *Analyser) updateSpectrum() {
	const eps = 1e-12

	if a.filled == 0 {
		return
	}

	read := a.write
	for i := range a.size {
		a.input[i] = complex(a.ring[read]*a.window[i], 0)

		read++
		if read >= a.size {
			read = 0
		}
	}

	if err := a.plan.Forward(a.output, a.input); err != nil {
		return
	}

	for k := range a.re {
		a.re[k] = real(a.output[k])
		a.im[k] = imag(a.output[k])
	}

	vecmath.Magnitude(a.mag, a.re, a.im)

	norm := float64(a.size) * math.Max(a.winGain, eps)
	last := len(a.mag) - 1

	for k, m := range a.mag {
		m /= norm
		if k > 0 && k < last {
			m *= 2
		}

		v := math.Max(20*math.Log10(math.Max(eps, m)), analyserFloorDB)
		if a.primed {
			v = analyserSmoothing*a.db[k] + (1-analyserSmoothing)*v
		}

		a.db[k] = v
	}

	a.primed = true
}
