// Package attribution credits every commit's line changes to the authors of
// the blobs they touched, following files across renames.
package attribution

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Sumatoshi-tech/codetree/pkg/filetree"
	"github.com/Sumatoshi-tech/codetree/pkg/gitlog"
	"github.com/Sumatoshi-tech/codetree/pkg/identity"
	"github.com/Sumatoshi-tech/codetree/pkg/renames"
)

// Counter receives one call per consumed commit.
type Counter interface {
	Increment()
}

// Window restricts crediting to commits with Since <= timestamp <= Until.
// A zero bound is open.
type Window struct {
	Since int64 `json:"since"`
	Until int64 `json:"until"`
}

// Contains reports whether ts lies inside the window.
func (w Window) Contains(ts int64) bool {
	if w.Since != 0 && ts < w.Since {
		return false
	}

	if w.Until != 0 && ts > w.Until {
		return false
	}

	return true
}

// Stats summarizes one aggregation.
type Stats struct {
	Commits     int `json:"commits"`
	Credited    int `json:"credited"`
	OutOfRange  int `json:"outOfRange"`
	Unresolved  int `json:"unresolved"`
	MissingBlob int `json:"missingBlob"`
	Merges      int `json:"merges"`
}

// Aggregator hydrates the blobs of a snapshot tree from commit history.
type Aggregator struct {
	Table  *renames.Table
	Window Window

	blobs    map[string]*filetree.Blob
	walked   map[renameKey]bool
	progress Counter
	logger   *slog.Logger
	stats    Stats
}

// renameKey names a rename away from a path at one timestamp.
type renameKey struct {
	from string
	ts   int64
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithProgress reports every consumed commit to counter.
func WithProgress(counter Counter) Option {
	return func(a *Aggregator) { a.progress = counter }
}

// WithLogger sets the logger used for dropped changes.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// WithWindow limits crediting to the given window.
func WithWindow(window Window) Option {
	return func(a *Aggregator) { a.Window = window }
}

// New creates an aggregator writing into root.
func New(root *filetree.Tree, table *renames.Table, opts ...Option) *Aggregator {
	a := &Aggregator{
		Table:  table,
		blobs:  root.Index(),
		walked: map[renameKey]bool{},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Stats returns the counters accumulated so far.
func (a *Aggregator) Stats() Stats {
	return a.stats
}

// Run consumes commits newest first. The input order is not trusted: commits
// are stably sorted by descending timestamp. The context is checked between
// commits.
func (a *Aggregator) Run(ctx context.Context, commits []*gitlog.CommitRecord) error {
	ordered := NewestFirst(commits)

	for _, commit := range ordered {
		err := ctx.Err()
		if err != nil {
			return fmt.Errorf("aggregation aborted after %d commits: %w", a.stats.Commits, err)
		}

		a.Consume(commit)
	}

	if a.stats.Merges > 0 {
		a.logger.Warn("merge commits attributed by first-parent diff only", "merges", a.stats.Merges)
	}

	if a.stats.Unresolved+a.stats.MissingBlob > 0 {
		a.logger.Info("dropped changes outside the snapshot",
			"unresolved", a.stats.Unresolved, "missing_blob", a.stats.MissingBlob)
	}

	return nil
}

// Consume credits one commit. Callers must feed commits newest first.
func (a *Aggregator) Consume(commit *gitlog.CommitRecord) {
	a.stats.Commits++

	if a.progress != nil {
		defer a.progress.Increment()
	}

	defer a.noteRenames(commit)

	if commit.IsMerge() {
		a.stats.Merges++
	}

	if !a.Window.Contains(commit.Timestamp) {
		a.stats.OutOfRange++

		return
	}

	identities := commit.Identities()
	touched := map[*filetree.Blob]bool{}

	for _, path := range sortedPaths(commit.FileChanges) {
		change := commit.FileChanges[path]

		canonical, ok := a.resolve(path, commit.Timestamp)
		if !ok {
			a.stats.Unresolved++
			a.logger.Debug("unresolved rename target", "path", path, "commit", commit.Hash)

			continue
		}

		blob, ok := a.blobs[canonical]
		if !ok {
			a.stats.MissingBlob++
			a.logger.Debug("no blob at canonical path", "path", canonical, "commit", commit.Hash)

			continue
		}

		weight := change.Weight()
		for _, id := range identities {
			blob.Credit(authorName(id), weight)
		}

		a.stats.Credited++

		if touched[blob] {
			continue
		}

		touched[blob] = true
		blob.NoCommits++
		blob.Commits = append(blob.Commits, commit.Hash)

		if blob.LastChangeEpoch == nil {
			ts := commit.Timestamp
			blob.LastChangeEpoch = &ts
		}
	}
}

// noteRenames records the renames of a consumed commit. Commits sharing its
// timestamp that come later in the walk still see the old names.
func (a *Aggregator) noteRenames(commit *gitlog.CommitRecord) {
	for _, ev := range commit.Renames {
		if !ev.IsCreation() {
			a.walked[renameKey{from: ev.From, ts: ev.Timestamp}] = true
		}
	}
}

// resolve maps path to its canonical name at ts. The rename table treats a
// rename at ts as already done at ts; for an older commit with the same
// timestamp the name that ended at ts is used instead.
func (a *Aggregator) resolve(path string, ts int64) (string, bool) {
	canonical, ok := a.Table.Lookup(path, ts)
	if ok {
		return canonical, true
	}

	if a.walked[renameKey{from: path, ts: ts}] {
		return a.Table.LookupEnding(path, ts)
	}

	return "", false
}

func authorName(sig gitlog.Signature) string {
	if sig.Name == "" {
		return identity.AuthorMissingName
	}

	return sig.Name
}

func sortedPaths(changes map[string]gitlog.FileChange) []string {
	paths := make([]string, 0, len(changes))
	for path := range changes {
		paths = append(paths, path)
	}

	sort.Strings(paths)

	return paths
}

// NewestFirst returns a copy of commits stably sorted by descending timestamp.
func NewestFirst(commits []*gitlog.CommitRecord) []*gitlog.CommitRecord {
	ordered := make([]*gitlog.CommitRecord, len(commits))
	copy(ordered, commits)

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp > ordered[j].Timestamp
	})

	return ordered
}
