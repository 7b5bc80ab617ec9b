package gitlog_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codetree/pkg/gitlog"
)

func newMemoryRepository(t *testing.T, files map[string][]byte) (*git.Repository, string) {
	t.Helper()

	fs := memfs.New()

	repo, err := git.Init(memory.NewStorage(), fs)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	for path, content := range files {
		require.NoError(t, util.WriteFile(fs, path, content, 0o644))

		_, addErr := wt.Add(path)
		require.NoError(t, addErr)
	}

	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Alice", Email: "alice@example.com", When: time.Unix(100, 0)},
	})
	require.NoError(t, err)

	return repo, hash.String()
}

func TestRepository_Snapshot(t *testing.T) {
	t.Parallel()

	repo, head := newMemoryRepository(t, map[string][]byte{
		"README.md":      []byte("# hello\n"),
		"src/main.go":    []byte("package main\n"),
		"assets/img.bin": {0x00, 0x01, 0x02, 0x00},
	})

	provider := gitlog.NewRepository(repo, gitlog.NewCLI("", ""))

	got, err := provider.Head(context.Background(), "HEAD")
	require.NoError(t, err)
	assert.Equal(t, head, got)

	entries, err := provider.Snapshot(context.Background(), "HEAD")
	require.NoError(t, err)

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	assert.Equal(t, []gitlog.SnapshotEntry{
		{Path: "README.md", Size: 8},
		{Path: "assets/img.bin", Size: 4, IsBinary: true},
		{Path: "src/main.go", Size: 13},
	}, entries)
}

func TestRepository_SnapshotUnknownRef(t *testing.T) {
	t.Parallel()

	repo, _ := newMemoryRepository(t, map[string][]byte{"a.txt": []byte("a")})
	provider := gitlog.NewRepository(repo, gitlog.NewCLI("", ""))

	_, err := provider.Snapshot(context.Background(), "no-such-branch")
	require.Error(t, err)
}

func TestOpenRepository_Missing(t *testing.T) {
	t.Parallel()

	_, err := gitlog.OpenRepository(t.TempDir(), "")
	require.ErrorIs(t, err, gitlog.ErrRepositoryOpen)
}
