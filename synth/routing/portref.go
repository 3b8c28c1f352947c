package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/algo-patch/synth/registry"
)

var (
	// ErrInvalidPortRef is returned for malformed "module.port" strings.
	ErrInvalidPortRef = errors.New("routing: invalid port reference")
	// ErrUnresolved is reported when an endpoint has no live connection point.
	ErrUnresolved = errors.New("routing: endpoint not resolved")
)

// PortRef is a logical port address. Its direction is implied by use.
type PortRef struct {
	Module string
	Port   string
}

// ParsePortRef parses "module.port". The delimiter must appear exactly once
// with non-empty text on both sides.
func ParsePortRef(s string) (PortRef, error) {
	if strings.Count(s, registry.PortDelimiter) != 1 {
		return PortRef{}, fmt.Errorf("%w: %q", ErrInvalidPortRef, s)
	}

	module, port, _ := strings.Cut(s, registry.PortDelimiter)
	if module == "" || port == "" {
		return PortRef{}, fmt.Errorf("%w: %q", ErrInvalidPortRef, s)
	}

	return PortRef{Module: module, Port: port}, nil
}

// MustParsePortRef is ParsePortRef that panics on error.
func MustParsePortRef(s string) PortRef {
	ref, err := ParsePortRef(s)
	if err != nil {
		panic(err)
	}

	return ref
}

func (r PortRef) String() string {
	return r.Module + registry.PortDelimiter + r.Port
}

// IsZero reports whether r is the zero reference.
func (r PortRef) IsZero() bool {
	return r == PortRef{}
}

func (r PortRef) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *PortRef) UnmarshalText(text []byte) error {
	ref, err := ParsePortRef(string(text))
	if err != nil {
		return err
	}

	*r = ref

	return nil
}
