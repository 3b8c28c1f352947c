package modules

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var errDescription = errors.New("modules: invalid description")

// Control is one native parameter of a compiled module.
type Control struct {
	Address string  `json:"address"`
	Init    float64 `json:"init"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Step    float64 `json:"step"`
}

// Name returns the last path segment of the address.
func (c Control) Name() string {
	return c.Address[strings.LastIndexByte(c.Address, '/')+1:]
}

// Clamp limits v to the control range.
func (c Control) Clamp(v float64) float64 {
	return math.Max(c.Min, math.Min(c.Max, v))
}

// Description is the metadata of a compiled module: its channel counts and
// native parameter controls.
type Description struct {
	Name    string    `json:"name"`
	Inputs  int       `json:"inputs"`
	Outputs int       `json:"outputs"`
	UI      []Control `json:"ui"`
}

// ParseDescription decodes and validates a description document.
func ParseDescription(data []byte) (*Description, error) {
	var d Description
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %w", errDescription, err)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return &d, nil
}

// Validate checks channel counts and control ranges.
func (d *Description) Validate() error {
	if d.Inputs < 0 || d.Outputs < 0 {
		return fmt.Errorf("%w: negative channel count", errDescription)
	}

	seen := make(map[string]bool, len(d.UI))

	for _, c := range d.UI {
		if !strings.HasPrefix(c.Address, "/") || strings.HasSuffix(c.Address, "/") {
			return fmt.Errorf("%w: bad address %q", errDescription, c.Address)
		}

		if seen[c.Address] {
			return fmt.Errorf("%w: duplicate address %q", errDescription, c.Address)
		}

		seen[c.Address] = true

		if c.Min > c.Max || c.Init < c.Min || c.Init > c.Max {
			return fmt.Errorf("%w: %s: init %g outside [%g, %g]", errDescription, c.Address, c.Init, c.Min, c.Max)
		}
	}

	return nil
}

// Control returns the control at address.
func (d *Description) Control(address string) (Control, bool) {
	for _, c := range d.UI {
		if c.Address == address {
			return c, true
		}
	}

	return Control{}, false
}

// Addresses lists every control address in declaration order.
func (d *Description) Addresses() []string {
	out := make([]string, len(d.UI))
	for i, c := range d.UI {
		out[i] = c.Address
	}

	return out
}
