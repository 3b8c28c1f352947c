// Package playback streams a patch to the default audio output through
// PortAudio.
package playback

import (
	"context"
	"errors"
	"fmt"

	pa "github.com/gordonklaus/portaudio"

	"github.com/cwbudde/algo-patch/synth/audiograph"
)

// Source renders one stereo block per call. *patch.Graph implements it.
type Source interface {
	Render(out audiograph.Bus) bool
}

// Player owns a PortAudio output stream fed by a Source.
type Player struct {
	src    Source
	stream *pa.Stream
	bus    audiograph.Bus
}

// Open initializes PortAudio and opens a stereo float32 stream on the
// default output device.
func Open(src Source, sampleRate float64, blockSize int) (*Player, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("playback: initialize: %w", err)
	}

	p := &Player{src: src, bus: audiograph.NewBus(2, blockSize)}

	stream, err := pa.OpenDefaultStream(0, 2, sampleRate, blockSize, p.process)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("playback: open stream: %w", err)
	}

	p.stream = stream

	return p, nil
}

// SampleRate returns the rate the device actually runs at.
func (p *Player) SampleRate() float64 {
	return p.stream.Info().SampleRate
}

func (p *Player) process(out [][]float32) {
	if n := len(out[0]); p.bus.Frames() != n {
		p.bus = audiograph.NewBus(2, n)
	}

	p.src.Render(p.bus)
	fill(out, p.bus)
}

// fill converts the rendered bus into the device buffers, hard-clipping to
// [-1, 1]. A mono device receives the left channel.
func fill(out [][]float32, bus audiograph.Bus) {
	for ch := range out {
		src := bus[min(ch, len(bus)-1)]
		for i := range out[ch] {
			out[ch][i] = float32(max(-1, min(1, src[i])))
		}
	}
}

// Run plays until ctx is done and then closes the player.
func (p *Player) Run(ctx context.Context) error {
	if err := p.stream.Start(); err != nil {
		return errors.Join(fmt.Errorf("playback: start: %w", err), p.Close())
	}

	<-ctx.Done()

	return p.Close()
}

// Close stops the stream and releases PortAudio.
func (p *Player) Close() error {
	var errs []error

	if p.stream != nil {
		if err := p.stream.Stop(); err != nil && !errors.Is(err, pa.StreamIsStopped) {
			errs = append(errs, err)
		}

		errs = append(errs, p.stream.Close())
		p.stream = nil
	}

	errs = append(errs, pa.Terminate())

	return errors.Join(errs...)
}
