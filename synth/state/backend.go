package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MemoryBackend is an in-process Backend.
type MemoryBackend struct {
	mu   sync.Mutex
	docs map[string][]byte
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: map[string][]byte{}}
}

func (b *MemoryBackend) Read(key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.docs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}

	return append([]byte(nil), data...), nil
}

func (b *MemoryBackend) Write(key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.docs[key] = append([]byte(nil), data...)

	return nil
}

// FileBackend stores each key as <dir>/<key>.json.
type FileBackend struct {
	dir string
}

// NewFileBackend returns a backend rooted at dir. The directory is created
// on first write.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

// Dir returns the backend's root directory.
func (b *FileBackend) Dir() string { return b.dir }

func (b *FileBackend) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("state: invalid backend key %q", key)
	}

	return filepath.Join(b.dir, key+".json"), nil
}

func (b *FileBackend) Read(key string) ([]byte, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	return data, err
}

// Write replaces the document atomically through a temporary file in the
// same directory.
func (b *FileBackend) Write(key string, data []byte) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.dir, key+".*.tmp")
	if err != nil {
		return err
	}

	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
