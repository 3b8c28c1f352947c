package loader

import (
	"context"

	"github.com/cwbudde/algo-patch/synth/audiograph"
)

type fakeNode struct {
	addresses []string
	channels  Channels
	values    map[string]float64
	disposed  bool
}

func newFakeNode(ch Channels, addresses ...string) *fakeNode {
	return &fakeNode{addresses: addresses, channels: ch, values: map[string]float64{}}
}

func (n *fakeNode) InputPorts() []int {
	if n.channels.Inputs == 0 {
		return nil
	}

	return []int{n.channels.Inputs}
}

func (n *fakeNode) OutputPorts() []int {
	if n.channels.Outputs == 0 {
		return nil
	}

	return []int{n.channels.Outputs}
}

func (n *fakeNode) Process(_, _ []audiograph.Bus) {}
func (n *fakeNode) ParameterAddresses() []string  { return n.addresses }
func (n *fakeNode) Channels() Channels            { return n.channels }
func (n *fakeNode) Dispose()                      { n.disposed = true }

func (n *fakeNode) SetParameterValue(address string, value float64) error {
	n.values[address] = value
	return nil
}

func sourceOf(node LiveNode, err error) Source {
	return SourceFunc(func(context.Context, string, *audiograph.Context) (LiveNode, error) {
		return node, err
	})
}
