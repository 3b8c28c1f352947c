package loader

import (
	"regexp"
	"strings"

	"github.com/cwbudde/algo-patch/synth/registry"
)

// RenameRule translates a native parameter name to an engine name for one
// module type. Pattern is matched against the last path segment of the
// native address; Rename receives the submatches.
type RenameRule struct {
	TypeID  string
	Pattern *regexp.Regexp
	Rename  func(match []string) string
}

// Resolver maps native parameter addresses to engine parameter names.
type Resolver struct {
	rules []RenameRule
}

// NewResolver returns a resolver with the given rename rules.
func NewResolver(rules ...RenameRule) *Resolver {
	return &Resolver{rules: append([]RenameRule(nil), rules...)}
}

// DefaultResolver carries the naming exceptions of the built-in modules:
// sequencer step<N>_pitch / step<N>_gate become step<N> / gate<N>, and the
// output module's master_volume becomes volume.
func DefaultResolver() *Resolver {
	return NewResolver(
		RenameRule{
			TypeID:  "seq",
			Pattern: regexp.MustCompile(`^step(\d+)_(pitch|gate)$`),
			Rename: func(m []string) string {
				if m[2] == "pitch" {
					return "step" + m[1]
				}

				return "gate" + m[1]
			},
		},
		RenameRule{
			TypeID:  "out",
			Pattern: regexp.MustCompile(`^master_volume$`),
			Rename:  func([]string) string { return "volume" },
		},
	)
}

// Add appends a rename rule. Rules are tried in order.
func (r *Resolver) Add(rule RenameRule) {
	r.rules = append(r.rules, rule)
}

// Name returns the engine name candidate for a native address.
func (r *Resolver) Name(typeID, address string) string {
	name := address
	if i := strings.LastIndexByte(address, '/'); i >= 0 {
		name = address[i+1:]
	}

	for _, rule := range r.rules {
		if rule.TypeID != typeID || rule.Pattern == nil {
			continue
		}

		if m := rule.Pattern.FindStringSubmatch(name); m != nil {
			return rule.Rename(m)
		}
	}

	return name
}

// Resolve builds the address table for def. Addresses whose name is not a
// parameter of def are returned in dropped. When two addresses resolve to
// the same name the later one wins.
func (r *Resolver) Resolve(def registry.ModuleTypeDef, addresses []string) (AddressTable, []string) {
	table := make(AddressTable, len(def.Params))

	var dropped []string

	for _, addr := range addresses {
		name := r.Name(def.ID, addr)
		if _, ok := def.Param(name); !ok {
			dropped = append(dropped, addr)
			continue
		}

		table[name] = addr
	}

	return table, dropped
}
