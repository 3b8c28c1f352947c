package routing

import (
	"fmt"

	"github.com/cwbudde/algo-patch/synth/audiograph"
	"github.com/cwbudde/algo-patch/synth/loader"
)

// Endpoint is a concrete connection point in the processing context.
type Endpoint struct {
	Node audiograph.Node
	Port int
}

// Attachment is a live node registered with a context, plus the splitter
// and merger interposed for multi-channel sides.
type Attachment struct {
	pc       *audiograph.Context
	node     loader.LiveNode
	channels loader.Channels
	splitter *audiograph.Splitter
	merger   *audiograph.Merger
}

// Attach adds node to pc. A side with more than one channel gets a splitter
// (outputs) or merger (inputs) so that each channel is addressable on its own.
func Attach(pc *audiograph.Context, node loader.LiveNode) (*Attachment, error) {
	a := &Attachment{pc: pc, node: node, channels: node.Channels()}

	if err := pc.Add(node); err != nil {
		return nil, fmt.Errorf("routing: attach: %w", err)
	}

	if a.channels.Outputs > 1 {
		a.splitter = audiograph.NewSplitter(a.channels.Outputs)
		if err := a.interpose(a.splitter, func() error { return pc.Connect(node, 0, a.splitter, 0) }); err != nil {
			return nil, err
		}
	}

	if a.channels.Inputs > 1 {
		a.merger = audiograph.NewMerger(a.channels.Inputs)
		if err := a.interpose(a.merger, func() error { return pc.Connect(a.merger, 0, node, 0) }); err != nil {
			return nil, err
		}
	}

	return a, nil
}

func (a *Attachment) remove(n audiograph.Node) {
	if a.pc.Contains(n) {
		_ = a.pc.Remove(n)
	}
}

func (a *Attachment) interpose(n audiograph.Node, connect func() error) error {
	if err := a.pc.Add(n); err != nil {
		a.Detach()
		return fmt.Errorf("routing: attach: %w", err)
	}

	if err := connect(); err != nil {
		a.Detach()
		return fmt.Errorf("routing: attach: %w", err)
	}

	return nil
}

// Node returns the attached live node.
func (a *Attachment) Node() loader.LiveNode { return a.node }

// Channels returns the node's channel counts.
func (a *Attachment) Channels() loader.Channels { return a.channels }

// Output resolves output channel ch.
func (a *Attachment) Output(ch int) (Endpoint, error) {
	if ch < 0 || ch >= a.channels.Outputs {
		return Endpoint{}, fmt.Errorf("%w: output channel %d of %d", ErrUnresolved, ch, a.channels.Outputs)
	}

	if a.splitter != nil {
		return Endpoint{Node: a.splitter, Port: ch}, nil
	}

	return Endpoint{Node: a.node, Port: 0}, nil
}

// Input resolves input channel ch.
func (a *Attachment) Input(ch int) (Endpoint, error) {
	if ch < 0 || ch >= a.channels.Inputs {
		return Endpoint{}, fmt.Errorf("%w: input channel %d of %d", ErrUnresolved, ch, a.channels.Inputs)
	}

	if a.merger != nil {
		return Endpoint{Node: a.merger, Port: ch}, nil
	}

	return Endpoint{Node: a.node, Port: 0}, nil
}

// Detach removes the node and its adapters from the context and disposes
// the node. Errors from an already closed context are ignored.
func (a *Attachment) Detach() {
	if a.splitter != nil {
		a.remove(a.splitter)
	}

	if a.merger != nil {
		a.remove(a.merger)
	}

	a.remove(a.node)
	a.node.Dispose()
}
