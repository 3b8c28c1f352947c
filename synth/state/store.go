package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/cwbudde/algo-patch/synth/patch"
)

var (
	// ErrNotFound is returned for missing slots and missing backend keys.
	ErrNotFound = errors.New("state: not found")
	// ErrStorage wraps backend read and write failures.
	ErrStorage = errors.New("state: storage failure")
	// ErrInvalidName is returned for empty or unprintable slot names.
	ErrInvalidName = errors.New("state: invalid slot name")
)

// DefaultKey is the backend key holding all named slots.
const DefaultKey = "algo-patch.patches"

// Backend stores opaque documents by key. Read returns an error wrapping
// ErrNotFound when the key has never been written.
type Backend interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) StoreOption {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// Store keeps named patch slots in a single document under one backend key.
type Store struct {
	backend Backend
	key     string
}

// NewStore returns a slot store over b.
func NewStore(b Backend, opts ...StoreOption) *Store {
	s := &Store{backend: b, key: DefaultKey}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Save stores s under name, replacing any previous slot of that name.
// A corrupt document is reported and left untouched.
func (s *Store) Save(name string, snap patch.Snapshot) error {
	if err := validName(name); err != nil {
		return err
	}

	doc, err := s.read()
	if err != nil {
		return err
	}

	doc[name] = Serialize(snap)

	return s.write(doc)
}

// Load returns the slot stored under name.
func (s *Store) Load(name string) (patch.Snapshot, error) {
	doc, err := s.read()
	if err != nil {
		return patch.Snapshot{}, err
	}

	r, ok := doc[name]
	if !ok {
		return patch.Snapshot{}, fmt.Errorf("%w: slot %q", ErrNotFound, name)
	}

	return Deserialize(r), nil
}

// Remove deletes the slot stored under name. Removing a missing slot is
// not an error.
func (s *Store) Remove(name string) error {
	doc, err := s.read()
	if err != nil {
		return err
	}

	if _, ok := doc[name]; !ok {
		return nil
	}

	delete(doc, name)

	return s.write(doc)
}

// List returns the slot names in sorted order.
func (s *Store) List() ([]string, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}

	slices.Sort(names)

	return names, nil
}

func (s *Store) read() (map[string]Record, error) {
	data, err := s.backend.Read(s.key)
	if errors.Is(err, ErrNotFound) {
		return map[string]Record{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %w", ErrStorage, s.key, err)
	}

	doc := map[string]Record{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: slot document %q: %w", ErrDecode, s.key, err)
	}

	if doc == nil {
		doc = map[string]Record{}
	}

	return doc, nil
}

func (s *Store) write(doc map[string]Record) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("state: encode slots: %w", err)
	}

	if err := s.backend.Write(s.key, data); err != nil {
		return fmt.Errorf("%w: write %q: %w", ErrStorage, s.key, err)
	}

	return nil
}

func validName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}

	for _, r := range name {
		if !unicode.IsPrint(r) {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}

	return nil
}
