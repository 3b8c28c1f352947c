// Package midictl maps MIDI control changes onto patch parameters.
package midictl

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/cwbudde/algo-patch/synth/registry"
)

// ErrBinding is returned for bindings that do not name a ranged parameter.
var ErrBinding = errors.New("midictl: invalid binding")

// Target receives scaled parameter values. *patch.Graph implements it.
type Target interface {
	SetParameter(id, name string, value float64) error
}

// Binding maps one controller number to a module parameter.
type Binding struct {
	Controller uint8
	Module     string
	Param      registry.Param
}

// Option configures a Controller.
type Option func(*Controller)

// WithChannel restricts input to one zero-based MIDI channel. -1 accepts all.
func WithChannel(ch int) Option {
	return func(c *Controller) {
		c.channel = ch
	}
}

// WithLogger sets the logger for rejected parameter updates.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller applies control change messages to a Target.
type Controller struct {
	target   Target
	bindings map[uint8]Binding
	channel  int
	logger   *slog.Logger
}

// New resolves bindings of the form cc → "module.param" against reg.
func New(target Target, reg *registry.Registry, bindings map[int]string, opts ...Option) (*Controller, error) {
	c := &Controller{
		target:   target,
		bindings: make(map[uint8]Binding, len(bindings)),
		channel:  -1,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(c)
	}

	for cc, ref := range bindings {
		b, err := resolve(reg, cc, ref)
		if err != nil {
			return nil, err
		}

		c.bindings[b.Controller] = b
	}

	return c, nil
}

func resolve(reg *registry.Registry, cc int, ref string) (Binding, error) {
	if cc < 0 || cc > 127 {
		return Binding{}, fmt.Errorf("%w: controller %d", ErrBinding, cc)
	}

	module, name, ok := strings.Cut(ref, registry.PortDelimiter)
	if !ok {
		return Binding{}, fmt.Errorf("%w: %q is not module.param", ErrBinding, ref)
	}

	def, ok := reg.Lookup(module)
	if !ok {
		return Binding{}, fmt.Errorf("%w: unknown module %q", ErrBinding, module)
	}

	p, ok := def.Param(name)
	if !ok || !p.HasRange() {
		return Binding{}, fmt.Errorf("%w: %q has no ranged parameter %q", ErrBinding, module, name)
	}

	return Binding{Controller: uint8(cc), Module: module, Param: p}, nil
}

// Bindings returns the resolved bindings ordered by controller number.
func (c *Controller) Bindings() []Binding {
	out := make([]Binding, 0, len(c.bindings))
	for _, b := range c.bindings {
		out = append(out, b)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Controller < out[j].Controller })

	return out
}

// HandleMessage applies msg if it is a bound control change on the
// configured channel and reports whether it did.
func (c *Controller) HandleMessage(msg midi.Message) bool {
	var ch, cc, val uint8
	if !msg.GetControlChange(&ch, &cc, &val) {
		return false
	}

	if c.channel >= 0 && int(ch) != c.channel {
		return false
	}

	b, ok := c.bindings[cc]
	if !ok {
		return false
	}

	v := Scale(b.Param, val)
	if err := c.target.SetParameter(b.Module, b.Param.Name, v); err != nil {
		c.logger.Warn("midi parameter update failed", "module", b.Module, "param", b.Param.Name, "err", err)
		return false
	}

	c.logger.Debug("midi parameter update", "module", b.Module, "param", b.Param.Name, "cc", cc, "value", v)

	return true
}

// Listen applies every control change arriving on in until stop is called.
func (c *Controller) Listen(in drivers.In) (stop func(), err error) {
	return midi.ListenTo(in, func(msg midi.Message, _ int32) {
		c.HandleMessage(msg)
	})
}

// Scale maps a 7-bit controller value onto p's range. Log parameters use an
// exponential taper; the result is quantized to p.Step.
func Scale(p registry.Param, v uint8) float64 {
	t := float64(min(v, 127)) / 127

	var x float64
	if p.Log && p.Min > 0 {
		x = p.Min * math.Pow(p.Max/p.Min, t)
	} else {
		x = p.Min + t*(p.Max-p.Min)
	}

	if p.Step > 0 {
		x = p.Min + math.Round((x-p.Min)/p.Step)*p.Step
	}

	return math.Max(p.Min, math.Min(p.Max, x))
}

// FindInPort returns the first MIDI input whose name contains hint, ignoring
// case. An empty hint selects the first input.
func FindInPort(hint string) (drivers.In, error) {
	ins := midi.GetInPorts()
	if len(ins) == 0 {
		return nil, errors.New("midictl: no MIDI inputs available")
	}

	lower := strings.ToLower(hint)
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), lower) {
			return in, nil
		}
	}

	return nil, fmt.Errorf("midictl: no MIDI input contains %q", hint)
}
