package routing

import (
	"fmt"

	"github.com/cwbudde/algo-patch/synth/audiograph"
)

// OutputTap is the output module's route to the destination plus its
// analysis tap.
type OutputTap struct {
	pc       *audiograph.Context
	merger   *audiograph.Merger
	analyser *audiograph.Analyser
	// direct is set for the mono route straight into the destination.
	direct *Endpoint
}

// SetupOutput routes the output module to the destination. A stereo node
// feeds a 2-channel merger into the destination and the left channel into
// the analyser; a mono node feeds its only channel into both.
func SetupOutput(pc *audiograph.Context, att *Attachment, analyserSize int) (*OutputTap, error) {
	if att.Channels().Outputs < 1 {
		return nil, fmt.Errorf("%w: output module has no output channels", ErrUnresolved)
	}

	tap := &OutputTap{pc: pc}

	left, err := att.Output(0)
	if err != nil {
		return nil, err
	}

	if att.Channels().Outputs >= 2 {
		var right Endpoint

		right, err = att.Output(1)
		if err != nil {
			return nil, err
		}

		tap.merger = audiograph.NewMerger(2)

		err = firstErr(
			pc.Add(tap.merger),
			pc.Connect(left.Node, left.Port, tap.merger, 0),
			pc.Connect(right.Node, right.Port, tap.merger, 1),
			pc.Connect(tap.merger, 0, pc.Destination(), 0),
		)
	} else {
		err = pc.Connect(left.Node, left.Port, pc.Destination(), 0)
		if err == nil {
			tap.direct = &left
		}
	}

	if err != nil {
		tap.Teardown()
		return nil, fmt.Errorf("routing: output: %w", err)
	}

	tap.analyser, err = pc.NewAnalyser(analyserSize)
	if err == nil {
		err = pc.Connect(left.Node, left.Port, tap.analyser, 0)
	}

	if err != nil {
		tap.Teardown()
		return nil, fmt.Errorf("routing: analyser: %w", err)
	}

	return tap, nil
}

// Analyser returns the analysis tap, or nil after Teardown.
func (t *OutputTap) Analyser() *audiograph.Analyser {
	return t.analyser
}

// Teardown removes the destination route and the analyser from the context.
func (t *OutputTap) Teardown() {
	if t.direct != nil && t.pc.Contains(t.direct.Node) {
		_ = t.pc.Disconnect(t.direct.Node, t.direct.Port, t.pc.Destination(), 0)
	}

	if t.merger != nil && t.pc.Contains(t.merger) {
		_ = t.pc.Remove(t.merger)
	}

	if t.analyser != nil && t.pc.Contains(t.analyser) {
		_ = t.pc.Remove(t.analyser)
	}

	t.merger = nil
	t.analyser = nil
	t.direct = nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}
