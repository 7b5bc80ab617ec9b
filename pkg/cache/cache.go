// Package cache stores hydrated analysis results per repository and branch.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/codetree/pkg/filetree"
	"github.com/Sumatoshi-tech/codetree/pkg/gitlog"
	"github.com/Sumatoshi-tech/codetree/pkg/refresh"
)

// SchemaVersion is bumped whenever Entry changes incompatibly. Entries with a
// different version are treated as missing.
const SchemaVersion = 2

// Backend names.
const (
	BackendBolt   = "bolt"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Sentinel errors.
var (
	ErrNotFound       = errors.New("cache entry not found")
	ErrEntryTooLarge  = errors.New("cache entry exceeds size limit")
	ErrUnknownBackend = errors.New("unknown cache backend")
)

func init() {
	gob.Register(&filetree.Blob{})
	gob.Register(&filetree.Tree{})
}

// DefaultDir returns the default cache directory (~/.codetree/cache).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(home, ".codetree", "cache")
}

// Key identifies one cached analysis.
type Key struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
}

// String returns "repository@branch".
func (k Key) String() string {
	return k.Repository + "@" + k.Branch
}

// Hash returns a short stable digest of the key, safe as a file name.
func (k Key) Hash() string {
	h := sha256.Sum256([]byte(k.Repository + "\x00" + k.Branch))

	return hex.EncodeToString(h[:8])
}

// Entry is everything persisted for one Key.
type Entry struct {
	Version    int    `json:"version"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	// LastCommit is the newest commit contained in Commits.
	LastCommit string                 `json:"lastCommit"`
	Commits    []*gitlog.CommitRecord `json:"commits"`

	// Tree is the hydrated snapshot before hiding and alias union.
	Tree *filetree.Tree `json:"tree"`
	// Output is Tree with hidden files removed and author aliases merged.
	Output *filetree.Tree `json:"output"`

	Hidden       []string   `json:"hidden"`
	HideVendored bool       `json:"hideVendored"`
	Aliases      [][]string `json:"aliases"`
	Since        int64      `json:"since"`
	Until        int64      `json:"until"`

	// Computed records when each data item was last recomputed (unix seconds).
	Computed  map[refresh.DataItem]int64 `json:"computed"`
	UpdatedAt time.Time                  `json:"updatedAt"`
}

// Key returns the entry's key.
func (e *Entry) Key() Key {
	return Key{Repository: e.Repository, Branch: e.Branch}
}

// Clone returns a deep copy of the entry. Commit records are shared; they
// are never modified after parsing.
func (e *Entry) Clone() *Entry {
	out := *e
	out.Commits = slices.Clone(e.Commits)
	out.Hidden = slices.Clone(e.Hidden)
	out.Computed = maps.Clone(e.Computed)

	out.Aliases = make([][]string, len(e.Aliases))
	for i, group := range e.Aliases {
		out.Aliases[i] = slices.Clone(group)
	}

	if e.Tree != nil {
		out.Tree = e.Tree.Clone()
	}

	if e.Output != nil {
		out.Output = e.Output.Clone()
	}

	return &out
}

// Store persists entries.
type Store interface {
	// Get returns the entry for key or ErrNotFound.
	Get(ctx context.Context, key Key) (*Entry, error)
	// Set replaces the entry stored under entry.Key().
	Set(ctx context.Context, entry *Entry) error
	// Clear removes the entry for key. Clearing a missing key is not an error.
	Clear(ctx context.Context, key Key) error
	// Close releases the store's resources.
	Close() error
}

// probeKey never names a real repository.
var probeKey = Key{Repository: "codetree-readiness-probe"}

// Ping reports whether store answers lookups. A miss counts as healthy.
func Ping(ctx context.Context, store Store) error {
	_, err := store.Get(ctx, probeKey)
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}

	return err
}
