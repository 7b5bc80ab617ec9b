package cache

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Sumatoshi-tech/codetree/pkg/persist"
)

// BoltFileName is the database file created inside the cache directory.
const BoltFileName = "codetree.db"

const (
	entriesBucket = "entries"
	boltOpenWait  = 2 * time.Second
	boltFilePerm  = 0o600
	cacheDirPerm  = 0o750
)

// BoltStore keeps all entries in one bbolt database, keyed by Key.Hash.
type BoltStore struct {
	db           *bolt.DB
	codec        persist.Codec
	maxEntrySize int64
}

// OpenBolt opens (or creates) the database in dir. A maxEntrySize of zero
// disables the size check.
func OpenBolt(dir string, codec persist.Codec, maxEntrySize int64) (*BoltStore, error) {
	err := os.MkdirAll(dir, cacheDirPerm)
	if err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, BoltFileName), boltFilePerm, &bolt.Options{Timeout: boltOpenWait})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, bucketErr := tx.CreateBucketIfNotExists([]byte(entriesBucket))

		return bucketErr
	})
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("create cache bucket: %w", err)
	}

	return &BoltStore{db: db, codec: codec, maxEntrySize: maxEntrySize}, nil
}

// Get implements Store.
func (s *BoltStore) Get(ctx context.Context, key Key) (*Entry, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	var data []byte

	err = s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(entriesBucket)).Get([]byte(key.Hash()))
		if raw != nil {
			data = bytes.Clone(raw)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}

	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	var entry Entry

	err = s.codec.Decode(bytes.NewReader(data), &entry)
	if err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}

	if entry.Version != SchemaVersion || entry.Key() != key {
		return nil, fmt.Errorf("%w: %s (stale schema)", ErrNotFound, key)
	}

	return &entry, nil
}

// Set implements Store.
func (s *BoltStore) Set(ctx context.Context, entry *Entry) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	var buf bytes.Buffer

	err = s.codec.Encode(&buf, entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	if s.maxEntrySize > 0 && int64(buf.Len()) > s.maxEntrySize {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrEntryTooLarge, entry.Key(), buf.Len(), s.maxEntrySize)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).Put([]byte(entry.Key().Hash()), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}

	return nil
}

// Clear implements Store.
func (s *BoltStore) Clear(ctx context.Context, key Key) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).Delete([]byte(key.Hash()))
	})
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}

	return nil
}

// Len returns the number of stored entries.
func (s *BoltStore) Len() (int, error) {
	var n int

	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(entriesBucket)).Stats().KeyN

		return nil
	})

	return n, err
}

// Close implements Store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
