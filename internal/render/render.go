// Package render writes a patch's output to WAV files offline.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cwbudde/algo-patch/synth/audiograph"
)

const (
	channels  = 2
	blockSize = 512
)

// ErrFormat is returned for unsupported render parameters.
var ErrFormat = errors.New("render: unsupported format")

// Source renders one stereo block per call. *patch.Graph implements it.
type Source interface {
	Render(out audiograph.Bus) bool
}

// WAV renders seconds of src as a stereo PCM WAV file with the given bit
// depth (16 or 24).
func WAV(w io.WriteSeeker, src Source, sampleRate int, seconds float64, bitDepth int) error {
	if bitDepth != 16 && bitDepth != 24 {
		return fmt.Errorf("%w: bit depth %d", ErrFormat, bitDepth)
	}

	if sampleRate <= 0 || seconds <= 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return fmt.Errorf("%w: %d Hz for %v s", ErrFormat, sampleRate, seconds)
	}

	frames := int(math.Round(seconds * float64(sampleRate)))
	peak := float64(int(1)<<(bitDepth-1) - 1)

	enc := wav.NewEncoder(w, sampleRate, bitDepth, channels, 1)
	bus := audiograph.NewBus(channels, blockSize)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, channels*blockSize),
		SourceBitDepth: bitDepth,
	}

	for done := 0; done < frames; {
		n := min(blockSize, frames-done)

		src.Render(bus)

		buf.Data = buf.Data[:channels*n]
		for i := range n {
			for ch := range channels {
				buf.Data[i*channels+ch] = quantize(bus[ch][i], peak)
			}
		}

		if err := enc.Write(buf); err != nil {
			return fmt.Errorf("render: write: %w", err)
		}

		done += n
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("render: finalize: %w", err)
	}

	return nil
}

func quantize(x, peak float64) int {
	if math.IsNaN(x) {
		return 0
	}

	return int(math.Round(math.Max(-1, math.Min(1, x)) * peak))
}
