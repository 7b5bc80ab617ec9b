package attribution_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codetree/pkg/attribution"
	"github.com/Sumatoshi-tech/codetree/pkg/filetree"
	"github.com/Sumatoshi-tech/codetree/pkg/gitlog"
	"github.com/Sumatoshi-tech/codetree/pkg/identity"
	"github.com/Sumatoshi-tech/codetree/pkg/renames"
)

type counter struct{ n atomic.Int64 }

func (c *counter) Increment() { c.n.Add(1) }

func commit(hash, author string, ts int64, changes map[string]gitlog.FileChange) *gitlog.CommitRecord {
	return &gitlog.CommitRecord{
		Hash:        hash,
		Parents:     []string{"p" + hash},
		Author:      gitlog.Signature{Name: author, Email: author + "@example.com"},
		CoAuthors:   []gitlog.Signature{},
		Timestamp:   ts,
		FileChanges: changes,
	}
}

func lines(add, del int) gitlog.FileChange {
	return gitlog.FileChange{Additions: add, Deletions: del}
}

func hydrate(t *testing.T, paths []string, commits []*gitlog.CommitRecord, opts ...attribution.Option) (*filetree.Tree, attribution.Stats) {
	t.Helper()

	entries := make([]filetree.Entry, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, filetree.Entry{Path: p, Size: 10})
	}

	root := filetree.Build("repo", entries)
	table, _ := renames.Resolve(gitlog.RenameEvents(commits), root.Paths())

	agg := attribution.New(root, table, opts...)
	require.NoError(t, agg.Run(context.Background(), commits))

	return root, agg.Stats()
}

func TestRun_SumsWeights(t *testing.T) {
	t.Parallel()

	root, stats := hydrate(t, []string{"a.go"}, []*gitlog.CommitRecord{
		commit("c3", "Alice", 30, map[string]gitlog.FileChange{"a.go": lines(100, 0)}),
		commit("c2", "Alice", 20, map[string]gitlog.FileChange{"a.go": lines(40, 10)}),
		commit("c1", "Alice", 10, map[string]gitlog.FileChange{"a.go": lines(150, 50)}),
	})

	blob, ok := root.Lookup("a.go")
	require.True(t, ok)
	assert.Equal(t, map[string]int{"Alice": 350}, blob.Authors)
	assert.Equal(t, 3, blob.NoCommits)
	assert.Equal(t, []string{"c3", "c2", "c1"}, blob.Commits)
	require.NotNil(t, blob.LastChangeEpoch)
	assert.Equal(t, int64(30), *blob.LastChangeEpoch)
	assert.Equal(t, 3, stats.Credited)
}

func TestRun_BinaryCountsOncePerCommit(t *testing.T) {
	t.Parallel()

	bin := gitlog.FileChange{IsBinary: true}

	root, _ := hydrate(t, []string{"logo.png"}, []*gitlog.CommitRecord{
		commit("c2", "Bob", 20, map[string]gitlog.FileChange{"logo.png": bin}),
		commit("c1", "Bob", 10, map[string]gitlog.FileChange{"logo.png": bin}),
	})

	blob, ok := root.Lookup("logo.png")
	require.True(t, ok)
	assert.Equal(t, 2, blob.Authors["Bob"])
}

func TestRun_CoAuthorsShareCredit(t *testing.T) {
	t.Parallel()

	c := commit("c1", "Bob", 10, map[string]gitlog.FileChange{"a.go": lines(7, 3)})
	c.CoAuthors = []gitlog.Signature{{Name: "Alice", Email: "alice@example.com"}}

	root, _ := hydrate(t, []string{"a.go"}, []*gitlog.CommitRecord{c})

	blob, ok := root.Lookup("a.go")
	require.True(t, ok)
	assert.Equal(t, map[string]int{"Bob": 10, "Alice": 10}, blob.Authors)
	assert.Equal(t, 1, blob.NoCommits)
}

func TestRun_MissingAuthorName(t *testing.T) {
	t.Parallel()

	root, _ := hydrate(t, []string{"a.go"}, []*gitlog.CommitRecord{
		commit("c1", "", 10, map[string]gitlog.FileChange{"a.go": lines(1, 0)}),
	})

	blob, ok := root.Lookup("a.go")
	require.True(t, ok)
	assert.Equal(t, 1, blob.Authors[identity.AuthorMissingName])
}

func TestRun_FollowsRenames(t *testing.T) {
	t.Parallel()

	moved := commit("c2", "Bob", 20, map[string]gitlog.FileChange{"src/b.go": lines(2, 0)})
	moved.Renames = []gitlog.RenameEvent{{From: "a.go", To: "src/b.go", Timestamp: 20, Commit: "c2"}}

	root, stats := hydrate(t, []string{"src/b.go"}, []*gitlog.CommitRecord{
		moved,
		commit("c1", "Alice", 10, map[string]gitlog.FileChange{"a.go": lines(5, 0)}),
	})

	blob, ok := root.Lookup("src/b.go")
	require.True(t, ok)
	assert.Equal(t, map[string]int{"Alice": 5, "Bob": 2}, blob.Authors)
	assert.Equal(t, 2, blob.NoCommits)
	assert.Zero(t, stats.Unresolved)
}

func TestRun_DropsDeletedFiles(t *testing.T) {
	t.Parallel()

	root, stats := hydrate(t, []string{"a.go"}, []*gitlog.CommitRecord{
		commit("c2", "Alice", 20, map[string]gitlog.FileChange{"a.go": lines(1, 0)}),
		commit("c1", "Alice", 10, map[string]gitlog.FileChange{"gone.go": lines(9, 0), "a.go": lines(1, 0)}),
	})

	blob, ok := root.Lookup("a.go")
	require.True(t, ok)
	assert.Equal(t, 2, blob.Authors["Alice"])
	assert.Equal(t, 1, stats.Unresolved)
	assert.Zero(t, stats.MissingBlob)
}

func TestRun_InputOrderIrrelevant(t *testing.T) {
	t.Parallel()

	build := func() []*gitlog.CommitRecord {
		return []*gitlog.CommitRecord{
			commit("c3", "Carol", 30, map[string]gitlog.FileChange{"a.go": lines(3, 0), "b.go": lines(1, 1)}),
			commit("c2", "Bob", 20, map[string]gitlog.FileChange{"b.go": lines(8, 0)}),
			commit("c1", "Alice", 10, map[string]gitlog.FileChange{"a.go": lines(5, 5)}),
		}
	}

	forward, _ := hydrate(t, []string{"a.go", "b.go"}, build())

	reversed := build()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}

	backward, _ := hydrate(t, []string{"a.go", "b.go"}, reversed)

	want, err := json.Marshal(forward)
	require.NoError(t, err)

	got, err := json.Marshal(backward)
	require.NoError(t, err)

	assert.JSONEq(t, string(want), string(got))
}

func TestRun_Window(t *testing.T) {
	t.Parallel()

	progress := &counter{}

	root, stats := hydrate(t, []string{"a.go"}, []*gitlog.CommitRecord{
		commit("c3", "Carol", 30, map[string]gitlog.FileChange{"a.go": lines(3, 0)}),
		commit("c2", "Bob", 20, map[string]gitlog.FileChange{"a.go": lines(2, 0)}),
		commit("c1", "Alice", 10, map[string]gitlog.FileChange{"a.go": lines(1, 0)}),
	}, attribution.WithWindow(attribution.Window{Since: 15, Until: 25}), attribution.WithProgress(progress))

	blob, ok := root.Lookup("a.go")
	require.True(t, ok)
	assert.Equal(t, map[string]int{"Bob": 2}, blob.Authors)
	assert.Equal(t, 2, stats.OutOfRange)
	assert.Equal(t, int64(3), progress.n.Load())
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	root := filetree.Build("repo", []filetree.Entry{{Path: "a.go"}})
	table, _ := renames.Resolve(nil, root.Paths())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := attribution.New(root, table)
	err := agg.Run(ctx, []*gitlog.CommitRecord{
		commit("c1", "Alice", 10, map[string]gitlog.FileChange{"a.go": lines(1, 0)}),
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_CountsMerges(t *testing.T) {
	t.Parallel()

	merge := commit("m1", "Alice", 10, map[string]gitlog.FileChange{"a.go": lines(1, 0)})
	merge.Parents = []string{"p1", "p2"}

	_, stats := hydrate(t, []string{"a.go"}, []*gitlog.CommitRecord{merge})

	assert.Equal(t, 1, stats.Merges)
}

func TestWindow_Contains(t *testing.T) {
	t.Parallel()

	assert.True(t, attribution.Window{}.Contains(0))
	assert.True(t, attribution.Window{Since: 5}.Contains(5))
	assert.False(t, attribution.Window{Since: 5}.Contains(4))
	assert.True(t, attribution.Window{Until: 5}.Contains(5))
	assert.False(t, attribution.Window{Until: 5}.Contains(6))
}

func TestRun_EditBeforeRenameInSameSecond(t *testing.T) {
	t.Parallel()

	moved := commit("c3", "Bob", 100, map[string]gitlog.FileChange{})
	moved.Renames = []gitlog.RenameEvent{{From: "a.go", To: "b.go", Timestamp: 100, Commit: "c3"}}

	root, stats := hydrate(t, []string{"b.go"}, []*gitlog.CommitRecord{
		moved,
		commit("c2", "Alice", 100, map[string]gitlog.FileChange{"a.go": lines(5, 0)}),
		commit("c1", "Alice", 50, map[string]gitlog.FileChange{"a.go": lines(7, 0)}),
	})

	blob, ok := root.Lookup("b.go")
	require.True(t, ok)
	assert.Equal(t, map[string]int{"Alice": 12}, blob.Authors)
	assert.Equal(t, []string{"c2", "c1"}, blob.Commits)
	assert.Zero(t, stats.Unresolved)
}
