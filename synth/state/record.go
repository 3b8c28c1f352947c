package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/cwbudde/algo-patch/synth/patch"
	"github.com/cwbudde/algo-patch/synth/registry"
)

// ErrDecode is returned for malformed records and share tokens.
var ErrDecode = errors.New("state: decode failed")

// Record is the portable form of a patch snapshot:
//
//	{"modules": {"vco": {"position": {"x": 0, "y": 0}, "params": {"coarse": 48}}},
//	 "cables": [{"from": "vco.out", "to": "vcf.in"}]}
type Record struct {
	Modules map[string]ModuleRecord `json:"modules"`
	Cables  []patch.Cable           `json:"cables"`
}

// ModuleRecord is the persisted state of one module.
type ModuleRecord struct {
	Position registry.Position  `json:"position"`
	Params   map[string]float64 `json:"params"`
}

// UnmarshalJSON accepts the current form and the older flat form
// {"x": 0, "y": 0, "params": {...}}.
func (m *ModuleRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		Position *registry.Position `json:"position"`
		X        *float64           `json:"x"`
		Y        *float64           `json:"y"`
		Params   map[string]float64 `json:"params"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = ModuleRecord{Params: raw.Params}

	switch {
	case raw.Position != nil:
		m.Position = *raw.Position
	case raw.X != nil || raw.Y != nil:
		if raw.X != nil {
			m.Position.X = *raw.X
		}

		if raw.Y != nil {
			m.Position.Y = *raw.Y
		}
	}

	return nil
}

// Serialize converts a snapshot to its portable record.
func Serialize(s patch.Snapshot) Record {
	r := Record{
		Modules: make(map[string]ModuleRecord, len(s.Modules)),
		Cables:  append([]patch.Cable(nil), s.Cables...),
	}

	for id, st := range s.Modules {
		r.Modules[id] = ModuleRecord{Position: st.Position, Params: maps.Clone(st.Params)}
	}

	return r
}

// Deserialize converts a record back to a snapshot.
func Deserialize(r Record) patch.Snapshot {
	s := patch.Snapshot{
		Modules: make(map[string]patch.ModuleState, len(r.Modules)),
		Cables:  append([]patch.Cable(nil), r.Cables...),
	}

	for id, m := range r.Modules {
		s.Modules[id] = patch.ModuleState{Position: m.Position, Params: maps.Clone(m.Params)}
	}

	return s
}

// Marshal encodes a snapshot as record JSON.
func Marshal(s patch.Snapshot) ([]byte, error) {
	data, err := json.Marshal(Serialize(s))
	if err != nil {
		return nil, fmt.Errorf("state: encode: %w", err)
	}

	return data, nil
}

// Unmarshal decodes record JSON. Every failure wraps ErrDecode and no
// partial snapshot is returned.
func Unmarshal(data []byte) (patch.Snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return patch.Snapshot{}, fmt.Errorf("%w: not a JSON object", ErrDecode)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return patch.Snapshot{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return Deserialize(r), nil
}
