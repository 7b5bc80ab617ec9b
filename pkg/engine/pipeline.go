package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/codetree/pkg/attribution"
	"github.com/Sumatoshi-tech/codetree/pkg/cache"
	"github.com/Sumatoshi-tech/codetree/pkg/filetree"
	"github.com/Sumatoshi-tech/codetree/pkg/gitlog"
	"github.com/Sumatoshi-tech/codetree/pkg/identity"
	"github.com/Sumatoshi-tech/codetree/pkg/observability"
	"github.com/Sumatoshi-tech/codetree/pkg/progress"
	"github.com/Sumatoshi-tech/codetree/pkg/refresh"
	"github.com/Sumatoshi-tech/codetree/pkg/renames"
)

// pass is the state of one run.
type pass struct {
	analyzer *Analyzer
	req      Request
	runID    string
	reporter *progress.Reporter
	logger   *slog.Logger
	stats    observability.AnalysisStats

	previous *cache.Entry
	stale    refresh.Set
	head     string
	commits  []*gitlog.CommitRecord
	snapshot []gitlog.SnapshotEntry
}

// execute computes the result and the entry to store. It never writes the
// cache, so a failing run leaves the previous entry untouched.
func (p *pass) execute(ctx context.Context) (*Result, *cache.Entry, error) {
	aliases, err := identity.NewAliasMap(p.req.Aliases)
	if err != nil {
		return nil, nil, err
	}

	p.loadPrevious(ctx)
	p.stale = p.staleItems()

	p.reporter.Advance(progress.StatusReadingCommits)

	p.head, err = p.analyzer.provider.Head(ctx, p.req.Branch)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", p.req.Branch, err)
	}

	needTree := p.previous == nil || p.previous.Tree == nil ||
		p.stale.Any(refresh.ItemCache, refresh.ItemTree, refresh.ItemTimeRange) ||
		p.head != p.previous.LastCommit

	err = p.read(ctx, needTree)
	if err != nil {
		return nil, nil, err
	}

	p.reporter.SetTotal(int64(len(p.commits)))
	p.reporter.Advance(progress.StatusGeneratingTree)

	result := &Result{
		RunID:      p.runID,
		Key:        p.analyzer.key,
		Head:       p.head,
		Commits:    len(p.commits),
		NewCommits: int(p.stats.CommitsRead),
		FullRead:   p.stats.FullRead,
	}

	var root *filetree.Tree

	if needTree {
		p.stale.Add(refresh.ItemTree, refresh.ItemMetrics)

		root, err = p.hydrate(ctx, result)
		if err != nil {
			return nil, nil, err
		}
	} else {
		root = p.previous.Tree
		p.reporter.Add(int64(len(p.commits)))
	}

	output := p.previousOutput()
	if needTree || output == nil || p.stale.Any(refresh.ItemHiddenFiles, refresh.ItemAuthorUnions) {
		p.stale.Add(refresh.ItemHiddenFiles, refresh.ItemAuthorUnions)
		output = root.Prune(func(b *filetree.Blob) bool { return p.req.Hidden.Hidden(b.Path) })
		identity.UnionTree(output, aliases)
	}

	now := time.Now()
	computed := map[refresh.DataItem]int64{}

	if p.previous != nil {
		maps.Copy(computed, p.previous.Computed)
	}

	for item := range p.stale {
		computed[item] = now.Unix()
	}

	result.Tree = output
	result.Recomputed = p.stale.Sorted()
	result.UpdatedAt = now

	for _, item := range result.Recomputed {
		p.stats.Recomputed = append(p.stats.Recomputed, string(item))
	}

	if result.FromCache() {
		return result, nil, nil
	}

	entry := &cache.Entry{
		Version:      cache.SchemaVersion,
		Repository:   p.analyzer.key.Repository,
		Branch:       p.analyzer.key.Branch,
		LastCommit:   p.head,
		Commits:      p.commits,
		Tree:         root,
		Output:       output,
		Hidden:       slices.Clone(p.req.Hidden.Patterns),
		HideVendored: p.req.Hidden.HideVendored,
		Aliases:      p.req.Aliases,
		Since:        p.req.Window.Since,
		Until:        p.req.Window.Until,
		Computed:     computed,
		UpdatedAt:    now,
	}

	return result, entry, nil
}

func (p *pass) loadPrevious(ctx context.Context) {
	entry, err := p.analyzer.engine.store.Get(ctx, p.analyzer.key)

	switch {
	case err == nil:
		p.previous = entry
		p.stats.CacheHit = true
	case errors.Is(err, cache.ErrNotFound):
		p.logger.DebugContext(ctx, "no cached entry")
	default:
		p.logger.WarnContext(ctx, "cached entry unreadable, recomputing", "error", err)
	}
}

func (p *pass) previousOutput() *filetree.Tree {
	if p.previous == nil {
		return nil
	}

	return p.previous.Output
}

// staleItems combines the policy for the request's reason with the items
// whose inputs differ from the ones the cached entry was computed with.
func (p *pass) staleItems() refresh.Set {
	if p.previous == nil {
		return refresh.ItemsToUpdate(refresh.ReasonRefresh)
	}

	stale := refresh.ItemsToUpdate(p.req.Reason)

	for item := range p.req.paramsDiffer(p.previous) {
		stale.Add(item)
	}

	return stale
}

// read loads the commit history and, when needed, the snapshot listing.
// Both come from git and run concurrently.
func (p *pass) read(ctx context.Context, needTree bool) error {
	ctx, span := p.analyzer.engine.tracer.Start(ctx, "codetree.analysis.read")
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.readCommits(gctx)
	})

	if needTree {
		g.Go(func() error {
			entries, err := p.analyzer.provider.Snapshot(gctx, p.head)
			if err != nil {
				return fmt.Errorf("list files at %s: %w", p.head, err)
			}

			p.snapshot = entries

			return nil
		})
	}

	err := g.Wait()

	span.SetAttributes(
		attribute.Int("analysis.commits", len(p.commits)),
		attribute.Int("analysis.files", len(p.snapshot)),
	)

	return err
}

func (p *pass) readCommits(ctx context.Context) error {
	prev := p.previous
	full := prev == nil || p.stale.Has(refresh.ItemCache)

	if !full && p.head == prev.LastCommit {
		p.commits = prev.Commits

		return nil
	}

	if !full {
		fresh, err := p.log(ctx, prev.LastCommit)
		if err != nil {
			return err
		}

		if connects(fresh, prev.LastCommit) {
			p.commits = append(fresh, prev.Commits...)
			p.stats.CommitsRead = int64(len(fresh))
			p.logger.DebugContext(ctx, "incremental history read", "new_commits", len(fresh))

			return nil
		}

		p.logger.InfoContext(ctx, "cached history no longer reachable from head, reading it again",
			"last_commit", prev.LastCommit, "head", p.head)
	}

	total, err := p.analyzer.provider.CountCommits(ctx, p.req.Branch, "")
	if err == nil {
		p.reporter.SetTotal(int64(total))
	}

	commits, err := p.log(ctx, "")
	if err != nil {
		return err
	}

	p.commits = commits
	p.stats.CommitsRead = int64(len(commits))
	p.stats.FullRead = true

	return nil
}

func (p *pass) log(ctx context.Context, since string) ([]*gitlog.CommitRecord, error) {
	raw, err := p.analyzer.provider.Log(ctx, p.req.Branch, since)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	commits, err := gitlog.ParseLog(raw)
	if err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}

	return commits, nil
}

// connects reports whether the commits read since last continue the cached
// history, i.e. one of them has last as a parent.
func connects(fresh []*gitlog.CommitRecord, last string) bool {
	for _, c := range fresh {
		if slices.Contains(c.Parents, last) {
			return true
		}
	}

	return false
}

// hydrate builds the snapshot tree and credits the history to it.
func (p *pass) hydrate(ctx context.Context, result *Result) (*filetree.Tree, error) {
	ctx, span := p.analyzer.engine.tracer.Start(ctx, "codetree.analysis.hydrate",
		trace.WithAttributes(attribute.Int("analysis.commits", len(p.commits))))
	defer span.End()

	entries := make([]filetree.Entry, 0, len(p.snapshot))
	for _, s := range p.snapshot {
		entries = append(entries, filetree.Entry{Path: s.Path, Size: s.Size, IsBinary: s.IsBinary})
	}

	root := filetree.Build(filepath.Base(p.analyzer.key.Repository), entries)

	table, renameStats := renames.Resolve(gitlog.RenameEvents(p.commits), root.Paths())
	result.Renames = renameStats

	p.logger.DebugContext(ctx, "rename table built",
		"events", renameStats.Events, "applied", renameStats.Applied,
		"unresolved", renameStats.Unresolved, "intervals", table.Len())

	agg := attribution.New(root, table,
		attribution.WithProgress(p.reporter),
		attribution.WithLogger(p.logger),
		attribution.WithWindow(p.req.Window),
	)

	err := agg.Run(ctx, p.commits)

	stats := agg.Stats()
	result.Attribution = stats
	p.stats.Commits = int64(stats.Commits)
	p.stats.Unresolved = int64(stats.Unresolved)
	p.stats.MissingBlob = int64(stats.MissingBlob)
	p.stats.Merges = int64(stats.Merges)

	span.SetAttributes(
		attribute.Int("analysis.credited", stats.Credited),
		attribute.Int("analysis.unresolved", stats.Unresolved),
		attribute.Int("analysis.merges", stats.Merges),
	)

	if err != nil {
		return nil, err
	}

	for _, blob := range root.Blobs() {
		blob.PreviousPaths = table.PreviousNames(blob.Path)
	}

	return root, nil
}
