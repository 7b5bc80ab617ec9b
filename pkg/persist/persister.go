package persist

import (
	"errors"
	"fmt"
	"os"
)

// dirPerm is the permission of the persister's directory.
const dirPerm = 0o750

// ErrNotFound is returned by Load when no state is stored under a name.
var ErrNotFound = errors.New("state not found")

// Persister stores values of one type in a directory, one file per name.
type Persister[T any] struct {
	dir   string
	codec Codec
}

// NewPersister creates a persister over dir, creating it if needed.
func NewPersister[T any](dir string, codec Codec) (*Persister[T], error) {
	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	return &Persister[T]{dir: dir, codec: codec}, nil
}

// Dir returns the directory the persister writes to.
func (p *Persister[T]) Dir() string {
	return p.dir
}

// Save writes state under name, replacing any previous value.
func (p *Persister[T]) Save(name string, state *T) error {
	return SaveState(p.dir, name, p.codec, state)
}

// Load restores the value stored under name.
func (p *Persister[T]) Load(name string) (*T, error) {
	var state T

	err := LoadState(p.dir, name, p.codec, &state)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err != nil {
		return nil, err
	}

	return &state, nil
}

// Remove deletes the value stored under name.
func (p *Persister[T]) Remove(name string) error {
	return RemoveState(p.dir, name, p.codec)
}
