// Package audiograph is a small pull-based block renderer for live,
// rewireable signal graphs.
//
// A [Context] owns a set of nodes and the port-to-port edges between them.
// Every node exposes a fixed number of input and output ports, each with a
// fixed channel count. Rendering pulls from the [Destination], from every
// [Analyser] and then from every remaining node in render quanta of
// [RenderQuantum] frames, so unpatched nodes keep running. Edges may form
// feedback cycles; a node reached again while it is being processed supplies
// its previous quantum.
//
// A Context is not safe for concurrent use. Its owner serializes access.
package audiograph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cwbudde/algo-vecmath"
)

// RenderQuantum is the number of frames processed per graph pass.
const RenderQuantum = 128

var (
	// ErrClosed is returned by operations on a closed context.
	ErrClosed = errors.New("audiograph: context closed")
	// ErrUnknownNode is returned when an endpoint was never added or has been removed.
	ErrUnknownNode = errors.New("audiograph: unknown node")
	// ErrPortIndex is returned for out-of-range port indices.
	ErrPortIndex = errors.New("audiograph: port index out of range")
	// ErrNotConnected is returned when disconnecting an edge that does not exist.
	ErrNotConnected = errors.New("audiograph: not connected")
)

// Bus is one port's signal: channels × frames.
type Bus [][]float64

// NewBus allocates a zeroed bus.
func NewBus(channels, frames int) Bus {
	b := make(Bus, channels)
	for c := range b {
		b[c] = make([]float64, frames)
	}

	return b
}

// Frames returns the frame count of the bus.
func (b Bus) Frames() int {
	if len(b) == 0 {
		return 0
	}

	return len(b[0])
}

// Clear zeroes every channel.
func (b Bus) Clear() {
	for _, ch := range b {
		clear(ch)
	}
}

// Node is a processing unit with fixed port layout.
type Node interface {
	// InputPorts returns the channel count of each input port.
	InputPorts() []int
	// OutputPorts returns the channel count of each output port.
	OutputPorts() []int
	// Process renders one quantum. in has one bus per input port, out one
	// bus per output port; out buses are zeroed before the call.
	Process(in, out []Bus)
}

type edge struct {
	src  Node
	port int
}

type vertex struct {
	node   Node
	inputs [][]edge
	in     []Bus
	out    []Bus
	stamp  uint64
	busy   bool
}

// Context owns a live processing graph.
type Context struct {
	sampleRate float64
	vertices   map[Node]*vertex
	dest       *Destination
	sinks      []Node
	// order lists every added vertex in registration order.
	order   []*vertex
	scratch []float64
	block   uint64
	closed  bool
}

// NewContext creates a context rendering at sampleRate.
func NewContext(sampleRate float64) *Context {
	c := &Context{
		sampleRate: sampleRate,
		vertices:   make(map[Node]*vertex),
		dest:       &Destination{},
	}
	c.vertices[c.dest] = newVertex(c.dest)

	return c
}

func newVertex(n Node) *vertex {
	return &vertex{
		node:   n,
		inputs: make([][]edge, len(n.InputPorts())),
	}
}

// SampleRate returns the render sample rate in Hz.
func (c *Context) SampleRate() float64 {
	return c.sampleRate
}

// Destination returns the final stereo sink.
func (c *Context) Destination() *Destination {
	return c.dest
}

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	return c.closed
}

// Add registers a node with the context. Adding a node twice is a no-op.
func (c *Context) Add(n Node) error {
	if c.closed {
		return ErrClosed
	}

	if n == nil {
		return fmt.Errorf("%w: nil", ErrUnknownNode)
	}

	if _, ok := c.vertices[n]; ok {
		return nil
	}

	v := newVertex(n)
	c.vertices[n] = v
	c.order = append(c.order, v)

	return nil
}

// Remove detaches every edge touching n and forgets the node.
func (c *Context) Remove(n Node) error {
	if c.closed {
		return ErrClosed
	}

	if n == c.dest {
		return fmt.Errorf("audiograph: cannot remove destination")
	}

	if _, ok := c.vertices[n]; !ok {
		return ErrUnknownNode
	}

	for _, v := range c.vertices {
		for p := range v.inputs {
			v.inputs[p] = dropEdges(v.inputs[p], func(e edge) bool { return e.src == n })
		}
	}

	c.order = slices.DeleteFunc(c.order, func(v *vertex) bool { return v.node == n })
	delete(c.vertices, n)

	for i, s := range c.sinks {
		if s == n {
			c.sinks = append(c.sinks[:i], c.sinks[i+1:]...)
			break
		}
	}

	return nil
}

// Connect routes output port out of src into input port in of dst.
// Connecting an existing edge again is a no-op.
func (c *Context) Connect(src Node, out int, dst Node, in int) error {
	_, dv, err := c.endpoints(src, out, dst, in)
	if err != nil {
		return err
	}

	for _, e := range dv.inputs[in] {
		if e.src == src && e.port == out {
			return nil
		}
	}

	dv.inputs[in] = append(dv.inputs[in], edge{src: src, port: out})

	return nil
}

// Disconnect removes the edge from src port out to dst port in.
func (c *Context) Disconnect(src Node, out int, dst Node, in int) error {
	_, dv, err := c.endpoints(src, out, dst, in)
	if err != nil {
		return err
	}

	before := len(dv.inputs[in])

	dv.inputs[in] = dropEdges(dv.inputs[in], func(e edge) bool { return e.src == src && e.port == out })
	if len(dv.inputs[in]) == before {
		return ErrNotConnected
	}

	return nil
}

// DisconnectAll removes every outgoing edge of src.
func (c *Context) DisconnectAll(src Node) error {
	if c.closed {
		return ErrClosed
	}

	if _, ok := c.vertices[src]; !ok {
		return ErrUnknownNode
	}

	for _, v := range c.vertices {
		for p := range v.inputs {
			v.inputs[p] = dropEdges(v.inputs[p], func(e edge) bool { return e.src == src })
		}
	}

	return nil
}

// Connected reports whether the edge src:out → dst:in exists.
func (c *Context) Connected(src Node, out int, dst Node, in int) bool {
	dv, ok := c.vertices[dst]
	if !ok || in < 0 || in >= len(dv.inputs) {
		return false
	}

	for _, e := range dv.inputs[in] {
		if e.src == src && e.port == out {
			return true
		}
	}

	return false
}

// Contains reports whether n is registered with the context.
func (c *Context) Contains(n Node) bool {
	_, ok := c.vertices[n]
	return ok
}

// Close releases the graph. Every later mutation returns ErrClosed.
func (c *Context) Close() {
	c.closed = true
	c.vertices = map[Node]*vertex{}
	c.sinks = nil
	c.order = nil
}

func (c *Context) endpoints(src Node, out int, dst Node, in int) (*vertex, *vertex, error) {
	if c.closed {
		return nil, nil, ErrClosed
	}

	sv, ok := c.vertices[src]
	if !ok {
		return nil, nil, fmt.Errorf("%w: source", ErrUnknownNode)
	}

	dv, ok := c.vertices[dst]
	if !ok {
		return nil, nil, fmt.Errorf("%w: destination", ErrUnknownNode)
	}

	if out < 0 || out >= len(src.OutputPorts()) {
		return nil, nil, fmt.Errorf("%w: output %d of %d", ErrPortIndex, out, len(src.OutputPorts()))
	}

	if in < 0 || in >= len(dst.InputPorts()) {
		return nil, nil, fmt.Errorf("%w: input %d of %d", ErrPortIndex, in, len(dst.InputPorts()))
	}

	return sv, dv, nil
}

func dropEdges(edges []edge, match func(edge) bool) []edge {
	kept := edges[:0]
	for _, e := range edges {
		if !match(e) {
			kept = append(kept, e)
		}
	}

	return kept
}

// Render fills out (one slice per channel, equal lengths) from the destination.
// Missing destination channels are left silent.
func (c *Context) Render(out Bus) {
	out.Clear()

	if c.closed {
		return
	}

	frames := out.Frames()
	for offset := 0; offset < frames; offset += RenderQuantum {
		n := min(RenderQuantum, frames-offset)
		c.renderQuantum(n)

		dv := c.vertices[c.dest]
		for ch := range out {
			if ch >= len(dv.in[0]) {
				break
			}

			copy(out[ch][offset:offset+n], dv.in[0][ch][:n])
		}
	}
}

func (c *Context) renderQuantum(frames int) {
	c.block++

	for _, s := range c.sinks {
		if v, ok := c.vertices[s]; ok {
			c.pull(v, frames)
		}
	}

	c.pull(c.vertices[c.dest], frames)

	// Nodes with nothing downstream still advance.
	for _, v := range c.order {
		c.pull(v, frames)
	}
}

// pull renders v for the current block and returns its output buses.
func (c *Context) pull(v *vertex, frames int) []Bus {
	if v.stamp == c.block || v.busy {
		return v.out
	}

	v.busy = true

	ins := v.node.InputPorts()
	v.in = sizeBuses(v.in, ins, frames)

	for p, edges := range v.inputs {
		for _, e := range edges {
			sv, ok := c.vertices[e.src]
			if !ok {
				continue
			}

			srcOut := c.pull(sv, frames)
			if e.port < len(srcOut) {
				c.mixInto(v.in[p], srcOut[e.port], frames)
			}
		}
	}

	v.out = sizeBuses(v.out, v.node.OutputPorts(), frames)
	v.node.Process(v.in, v.out)

	v.stamp = c.block
	v.busy = false

	return v.out
}

func sizeBuses(buses []Bus, layout []int, frames int) []Bus {
	if len(buses) != len(layout) {
		buses = make([]Bus, len(layout))
	}

	for p, channels := range layout {
		b := buses[p]
		if len(b) != channels || (channels > 0 && cap(b[0]) < frames) {
			b = NewBus(channels, frames)
		}

		for ch := range b {
			b[ch] = b[ch][:frames]
			clear(b[ch])
		}

		buses[p] = b
	}

	return buses
}

// mixInto sums src into dst with channel adaptation: mono fans out to every
// channel, many-into-mono averages, otherwise channels pair up by index.
func (c *Context) mixInto(dst, src Bus, frames int) {
	if len(dst) == 0 || len(src) == 0 {
		return
	}

	n := min(frames, src.Frames(), dst.Frames())

	switch {
	case len(src) == 1:
		for ch := range dst {
			vecmath.AddBlockInPlace(dst[ch][:n], src[0][:n])
		}
	case len(dst) == 1:
		scale := 1 / float64(len(src))
		if cap(c.scratch) < n {
			c.scratch = make([]float64, max(n, RenderQuantum))
		}

		tmp := c.scratch[:n]

		for ch := range src {
			vecmath.ScaleBlock(tmp, src[ch][:n], scale)
			vecmath.AddBlockInPlace(dst[0][:n], tmp)
		}
	default:
		for ch := 0; ch < len(dst) && ch < len(src); ch++ {
			vecmath.AddBlockInPlace(dst[ch][:n], src[ch][:n])
		}
	}
}
