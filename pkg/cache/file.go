package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/codetree/pkg/persist"
)

// FileStore keeps one file per entry, named by Key.Hash.
type FileStore struct {
	persister *persist.Persister[Entry]
}

// OpenFile creates a file store rooted at dir.
func OpenFile(dir string, codec persist.Codec) (*FileStore, error) {
	p, err := persist.NewPersister[Entry](dir, codec)
	if err != nil {
		return nil, err
	}

	return &FileStore{persister: p}, nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, key Key) (*Entry, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	entry, err := s.persister.Load(key.Hash())
	if errors.Is(err, persist.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("load cache entry %s: %w", key, err)
	}

	if entry.Version != SchemaVersion || entry.Key() != key {
		return nil, fmt.Errorf("%w: %s (stale schema)", ErrNotFound, key)
	}

	return entry, nil
}

// Set implements Store.
func (s *FileStore) Set(ctx context.Context, entry *Entry) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	err = s.persister.Save(entry.Key().Hash(), entry)
	if err != nil {
		return fmt.Errorf("save cache entry %s: %w", entry.Key(), err)
	}

	return nil
}

// Clear implements Store.
func (s *FileStore) Clear(ctx context.Context, key Key) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	return s.persister.Remove(key.Hash())
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
