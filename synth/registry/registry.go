package registry

import (
	"errors"
	"fmt"
	"strings"
)

// PortDelimiter separates module id and port name in textual port references.
const PortDelimiter = "."

var (
	// ErrDuplicateType is returned when a module type id is registered twice.
	ErrDuplicateType = errors.New("duplicate module type")
	// ErrInvalidDef is returned when a module type definition fails validation.
	ErrInvalidDef = errors.New("invalid module type definition")
)

// SignalKind tags a port as carrying audio-rate or control-rate signal.
type SignalKind int

const (
	Audio SignalKind = iota
	Control
)

func (k SignalKind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Control:
		return "control"
	default:
		return fmt.Sprintf("SignalKind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k SignalKind) MarshalText() ([]byte, error) {
	switch k {
	case Audio, Control:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("registry: invalid signal kind %d", int(k))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *SignalKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "audio":
		*k = Audio
	case "control", "ctrl":
		*k = Control
	default:
		return fmt.Errorf("registry: unknown signal kind %q", text)
	}

	return nil
}

// Port is a named connection point on a module side.
type Port struct {
	Name  string     `json:"name"`
	Label string     `json:"label"`
	Kind  SignalKind `json:"kind"`
	// Channel is the index of this port within the node's channels on its side.
	Channel int `json:"channel"`
}

// Param describes one module parameter and its control range.
type Param struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Default float64 `json:"default"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Step    float64 `json:"step"`
	Log     bool    `json:"log,omitempty"`
}

// HasRange reports whether the parameter declares a usable control range.
func (p Param) HasRange() bool {
	return p.Max > p.Min
}

// Position is a module location on the editor canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ModuleTypeDef is an immutable registry entry.
type ModuleTypeDef struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Inputs  []Port  `json:"inputs"`
	Outputs []Port  `json:"outputs"`
	Params  []Param `json:"params"`

	// Wide modules use the double-width editor layout.
	Wide bool `json:"wide,omitempty"`
	// Sequencer marks the step sequencer whose current step the editor highlights.
	Sequencer bool `json:"sequencer,omitempty"`
	// HasScope modules display the analysis tap.
	HasScope bool `json:"hasScope,omitempty"` //nolint:tagliatelle
	// Sink marks the module routed to the audio destination.
	Sink bool `json:"output,omitempty"`

	Position Position `json:"position"`
}

// Input returns the input port with the given name.
func (d ModuleTypeDef) Input(name string) (Port, bool) {
	return findPort(d.Inputs, name)
}

// Output returns the output port with the given name.
func (d ModuleTypeDef) Output(name string) (Port, bool) {
	return findPort(d.Outputs, name)
}

// Param returns the parameter with the given name.
func (d ModuleTypeDef) Param(name string) (Param, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}

	return Param{}, false
}

// Defaults returns a fresh map of parameter name to default value.
func (d ModuleTypeDef) Defaults() map[string]float64 {
	out := make(map[string]float64, len(d.Params))
	for _, p := range d.Params {
		out[p.Name] = p.Default
	}

	return out
}

// Validate checks naming and uniqueness invariants of the definition.
//
//nolint:cyclop
func (d ModuleTypeDef) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: empty type id", ErrInvalidDef)
	}

	if strings.Contains(d.ID, PortDelimiter) {
		return fmt.Errorf("%w: type id %q contains %q", ErrInvalidDef, d.ID, PortDelimiter)
	}

	for side, ports := range map[string][]Port{"input": d.Inputs, "output": d.Outputs} {
		names := make(map[string]struct{}, len(ports))
		channels := make(map[int]struct{}, len(ports))

		for _, p := range ports {
			if p.Name == "" || strings.Contains(p.Name, PortDelimiter) {
				return fmt.Errorf("%w: %s: invalid %s port name %q", ErrInvalidDef, d.ID, side, p.Name)
			}

			if _, dup := names[p.Name]; dup {
				return fmt.Errorf("%w: %s: duplicate %s port %q", ErrInvalidDef, d.ID, side, p.Name)
			}

			if p.Channel < 0 {
				return fmt.Errorf("%w: %s: negative channel on %s port %q", ErrInvalidDef, d.ID, side, p.Name)
			}

			if _, dup := channels[p.Channel]; dup {
				return fmt.Errorf("%w: %s: %s channel %d used twice", ErrInvalidDef, d.ID, side, p.Channel)
			}

			names[p.Name] = struct{}{}
			channels[p.Channel] = struct{}{}
		}
	}

	params := make(map[string]struct{}, len(d.Params))
	for _, p := range d.Params {
		if p.Name == "" {
			return fmt.Errorf("%w: %s: empty parameter name", ErrInvalidDef, d.ID)
		}

		if _, dup := params[p.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate parameter %q", ErrInvalidDef, d.ID, p.Name)
		}

		if p.HasRange() && (p.Default < p.Min || p.Default > p.Max) {
			return fmt.Errorf("%w: %s: default of %q outside [%g, %g]", ErrInvalidDef, d.ID, p.Name, p.Min, p.Max)
		}

		params[p.Name] = struct{}{}
	}

	return nil
}

func findPort(ports []Port, name string) (Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}

	return Port{}, false
}

// Registry maps module type ids to their definitions.
type Registry struct {
	defs  map[string]ModuleTypeDef
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]ModuleTypeDef)}
}

// Register adds a module type definition.
func (r *Registry) Register(def ModuleTypeDef) error {
	if err := def.Validate(); err != nil {
		return err
	}

	if _, exists := r.defs[def.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, def.ID)
	}

	r.defs[def.ID] = cloneDef(def)
	r.order = append(r.order, def.ID)

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(def ModuleTypeDef) {
	if err := r.Register(def); err != nil {
		panic("registry: " + err.Error())
	}
}

// Lookup returns the definition for typeID.
func (r *Registry) Lookup(typeID string) (ModuleTypeDef, bool) {
	def, ok := r.defs[typeID]
	if !ok {
		return ModuleTypeDef{}, false
	}

	return cloneDef(def), true
}

// Types returns the registered type ids in registration order.
func (r *Registry) Types() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)

	return out
}

// Defs returns all definitions in registration order.
func (r *Registry) Defs() []ModuleTypeDef {
	out := make([]ModuleTypeDef, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneDef(r.defs[id]))
	}

	return out
}

// OutputModule returns the first registered module flagged as the output stage.
func (r *Registry) OutputModule() (ModuleTypeDef, bool) {
	for _, id := range r.order {
		if r.defs[id].Sink {
			return cloneDef(r.defs[id]), true
		}
	}

	return ModuleTypeDef{}, false
}

func cloneDef(d ModuleTypeDef) ModuleTypeDef {
	d.Inputs = append([]Port(nil), d.Inputs...)
	d.Outputs = append([]Port(nil), d.Outputs...)
	d.Params = append([]Param(nil), d.Params...)

	return d
}
