package modules

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-patch/synth/audiograph"
	"github.com/cwbudde/algo-patch/synth/loader"
)

// Kernel is the signal processing core of a module.
type Kernel interface {
	Channels() loader.Channels
	// Set receives a clamped native value by control name (last address
	// segment). A rejected value leaves the previous setting in place.
	Set(name string, value float64) error
	// Process renders one block; in and out hold one slice per channel.
	Process(in, out [][]float64)
}

type stepper interface {
	setStepHandler(fn func(step int))
}

// Node is a live module instance. It carries all channels of a side on a
// single port.
type Node struct {
	desc     *Description
	kernel   Kernel
	values   map[string]float64
	disposed bool
}

var _ loader.LiveNode = (*Node)(nil)

func newNode(desc *Description, kernel Kernel) (*Node, error) {
	n := &Node{
		desc:   desc,
		kernel: kernel,
		values: make(map[string]float64, len(desc.UI)),
	}

	for _, c := range desc.UI {
		if err := kernel.Set(c.Name(), c.Init); err != nil {
			return nil, fmt.Errorf("modules: %s: init: %w", c.Address, err)
		}

		n.values[c.Address] = c.Init
	}

	return n, nil
}

// Description returns the node's module description.
func (n *Node) Description() *Description { return n.desc }

func (n *Node) Channels() loader.Channels {
	return loader.Channels{Inputs: n.desc.Inputs, Outputs: n.desc.Outputs}
}

func (n *Node) InputPorts() []int {
	if n.desc.Inputs == 0 {
		return nil
	}

	return []int{n.desc.Inputs}
}

func (n *Node) OutputPorts() []int {
	if n.desc.Outputs == 0 {
		return nil
	}

	return []int{n.desc.Outputs}
}

func (n *Node) ParameterAddresses() []string {
	return n.desc.Addresses()
}

// SetParameterValue clamps value to the control range and forwards it to the kernel.
func (n *Node) SetParameterValue(address string, value float64) error {
	c, ok := n.desc.Control(address)
	if !ok {
		return fmt.Errorf("%w: %s", loader.ErrUnknownAddress, address)
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("modules: %s: non-finite value", address)
	}

	value = c.Clamp(value)
	if err := n.kernel.Set(c.Name(), value); err != nil {
		return fmt.Errorf("modules: %s: %w", address, err)
	}

	n.values[address] = value

	return nil
}

// Value returns the current native value at address.
func (n *Node) Value(address string) (float64, bool) {
	v, ok := n.values[address]
	return v, ok
}

// SetStepHandler registers fn for step changes. Nodes whose kernel does not
// sequence never call it.
func (n *Node) SetStepHandler(fn func(step int)) {
	if s, ok := n.kernel.(stepper); ok {
		s.setStepHandler(fn)
	}
}

func (n *Node) Process(in, out []audiograph.Bus) {
	if n.disposed || len(out) == 0 {
		return
	}

	var ins [][]float64
	if len(in) > 0 {
		ins = in[0]
	}

	n.kernel.Process(ins, out[0])
}

// Dispose silences the node.
func (n *Node) Dispose() {
	n.disposed = true
	n.SetStepHandler(nil)
}
