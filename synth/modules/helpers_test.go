package modules

import (
	"context"
	"testing"

	"github.com/cwbudde/algo-patch/synth/audiograph"
)

const testSampleRate = 48000

func load(t *testing.T, typeID string, params map[string]float64) *Node {
	t.Helper()

	ln, err := NewSource().Load(context.Background(), typeID, audiograph.NewContext(testSampleRate))
	if err != nil {
		t.Fatalf("Load(%q): %v", typeID, err)
	}

	node := ln.(*Node)

	for addr, v := range params {
		if err := node.SetParameterValue(addr, v); err != nil {
			t.Fatalf("SetParameterValue(%q): %v", addr, err)
		}
	}

	return node
}

// process renders frames through node in one block. inputs are copied into
// the node's input channels in order.
func process(node *Node, frames int, inputs ...[]float64) [][]float64 {
	ch := node.Channels()

	var in []audiograph.Bus
	if ch.Inputs > 0 {
		bus := audiograph.NewBus(ch.Inputs, frames)
		for i, x := range inputs {
			copy(bus[i], x)
		}

		in = append(in, bus)
	}

	out := []audiograph.Bus{audiograph.NewBus(ch.Outputs, frames)}
	node.Process(in, out)

	return out[0]
}
