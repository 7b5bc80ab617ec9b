package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codetree/pkg/cache"
	"github.com/Sumatoshi-tech/codetree/pkg/filetree"
	"github.com/Sumatoshi-tech/codetree/pkg/gitlog"
	"github.com/Sumatoshi-tech/codetree/pkg/persist"
	"github.com/Sumatoshi-tech/codetree/pkg/refresh"
)

func sampleEntry(repo, branch string) *cache.Entry {
	tree := filetree.Build("repo", []filetree.Entry{{Path: "src/main.go", Size: 42}})
	blob, _ := tree.Lookup("src/main.go")
	blob.Credit("Alice", 12)
	blob.NoCommits = 1
	blob.Commits = []string{"c1"}

	epoch := int64(1700000000)
	blob.LastChangeEpoch = &epoch

	return &cache.Entry{
		Version:    cache.SchemaVersion,
		Repository: repo,
		Branch:     branch,
		LastCommit: "c1",
		Commits: []*gitlog.CommitRecord{{
			Hash:        "c1",
			Author:      gitlog.Signature{Name: "Alice", Email: "alice@example.com"},
			Timestamp:   epoch,
			FileChanges: map[string]gitlog.FileChange{"src/main.go": {Additions: 12}},
		}},
		Tree:      tree,
		Output:    tree.Clone(),
		Hidden:    []string{"*.lock"},
		Aliases:   [][]string{{"Alice", "alice"}},
		Computed:  map[refresh.DataItem]int64{refresh.ItemCache: epoch, refresh.ItemTree: epoch},
		UpdatedAt: time.Unix(epoch, 0).UTC(),
	}
}

func stores(t *testing.T) map[string]cache.Store {
	t.Helper()

	bolt, err := cache.OpenBolt(t.TempDir(), persist.NewLZ4Codec(persist.NewGobCodec()), 0)
	require.NoError(t, err)

	file, err := cache.OpenFile(t.TempDir(), persist.NewJSONCodec())
	require.NoError(t, err)

	all := map[string]cache.Store{
		cache.BackendBolt:   bolt,
		cache.BackendFile:   file,
		cache.BackendMemory: cache.NewMemory(4),
	}

	t.Cleanup(func() {
		for _, s := range all {
			s.Close()
		}
	})

	return all
}

func TestStores_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := cache.Key{Repository: "/src/project", Branch: "main"}

			_, err := store.Get(ctx, key)
			require.ErrorIs(t, err, cache.ErrNotFound)

			require.NoError(t, store.Set(ctx, sampleEntry(key.Repository, key.Branch)))

			got, err := store.Get(ctx, key)
			require.NoError(t, err)

			assert.Equal(t, key, got.Key())
			assert.Equal(t, "c1", got.LastCommit)
			require.Len(t, got.Commits, 1)
			assert.Equal(t, 12, got.Commits[0].FileChanges["src/main.go"].Additions)
			assert.Equal(t, []string{"*.lock"}, got.Hidden)
			assert.Equal(t, [][]string{{"Alice", "alice"}}, got.Aliases)
			assert.Equal(t, int64(1700000000), got.Computed[refresh.ItemTree])
			assert.True(t, got.UpdatedAt.Equal(time.Unix(1700000000, 0)))

			for _, tree := range []*filetree.Tree{got.Tree, got.Output} {
				blob, ok := tree.Lookup("src/main.go")
				require.True(t, ok)
				assert.Equal(t, map[string]int{"Alice": 12}, blob.Authors)
				assert.Equal(t, []string{"c1"}, blob.Commits)
				require.NotNil(t, blob.LastChangeEpoch)
				assert.Equal(t, int64(1700000000), *blob.LastChangeEpoch)
			}

			require.NoError(t, store.Clear(ctx, key))
			require.NoError(t, store.Clear(ctx, key))

			_, err = store.Get(ctx, key)
			require.ErrorIs(t, err, cache.ErrNotFound)
		})
	}
}

func TestStores_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, sampleEntry("/a", "main")))

			other := sampleEntry("/a", "dev")
			other.LastCommit = "c2"
			require.NoError(t, store.Set(ctx, other))

			got, err := store.Get(ctx, cache.Key{Repository: "/a", Branch: "main"})
			require.NoError(t, err)
			assert.Equal(t, "c1", got.LastCommit)

			got, err = store.Get(ctx, cache.Key{Repository: "/a", Branch: "dev"})
			require.NoError(t, err)
			assert.Equal(t, "c2", got.LastCommit)
		})
	}
}

func TestStores_StaleSchemaIsMissing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for name, store := range stores(t) {
		if name == cache.BackendMemory {
			continue
		}

		t.Run(name, func(t *testing.T) {
			entry := sampleEntry("/old", "main")
			entry.Version = cache.SchemaVersion + 1
			require.NoError(t, store.Set(ctx, entry))

			_, err := store.Get(ctx, entry.Key())
			require.ErrorIs(t, err, cache.ErrNotFound)
		})
	}
}

func TestStores_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, store := range stores(t) {
		_, err := store.Get(ctx, cache.Key{Repository: "/a"})
		require.ErrorIs(t, err, context.Canceled, name)
		require.ErrorIs(t, store.Set(ctx, sampleEntry("/a", "")), context.Canceled, name)
	}
}

func TestBoltStore_MaxEntrySize(t *testing.T) {
	t.Parallel()

	store, err := cache.OpenBolt(t.TempDir(), persist.NewJSONCodec(), 64)
	require.NoError(t, err)

	defer store.Close()

	err = store.Set(context.Background(), sampleEntry("/big", "main"))
	require.ErrorIs(t, err, cache.ErrEntryTooLarge)

	n, err := store.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := cache.NewMemory(2)

	require.NoError(t, store.Set(ctx, sampleEntry("/a", "main")))
	require.NoError(t, store.Set(ctx, sampleEntry("/b", "main")))

	_, err := store.Get(ctx, cache.Key{Repository: "/a", Branch: "main"})
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, sampleEntry("/c", "main")))

	_, err = store.Get(ctx, cache.Key{Repository: "/b", Branch: "main"})
	require.ErrorIs(t, err, cache.ErrNotFound)

	stats := store.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 0.001)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := cache.NewMemory(1)
	entry := sampleEntry("/a", "main")

	require.NoError(t, store.Set(ctx, entry))

	blob, _ := entry.Tree.Lookup("src/main.go")
	blob.Credit("Mallory", 99)

	got, err := store.Get(ctx, entry.Key())
	require.NoError(t, err)

	stored, _ := got.Tree.Lookup("src/main.go")
	assert.NotContains(t, stored.Authors, "Mallory")
}

func TestKey_Hash(t *testing.T) {
	t.Parallel()

	a := cache.Key{Repository: "/a", Branch: "main"}
	b := cache.Key{Repository: "/a", Branch: "dev"}

	assert.Len(t, a.Hash(), 16)
	assert.Equal(t, a.Hash(), a.Hash())
	assert.NotEqual(t, a.Hash(), b.Hash())
	assert.Equal(t, "/a@main", a.String())
}

func TestOpen(t *testing.T) {
	t.Parallel()

	for _, backend := range []string{cache.BackendBolt, cache.BackendFile, cache.BackendMemory} {
		store, err := cache.Open(cache.Options{Backend: backend, Dir: t.TempDir(), Codec: persist.CodecGobLZ4})
		require.NoError(t, err, backend)
		require.NoError(t, store.Close())
	}

	_, err := cache.Open(cache.Options{Backend: "redis", Dir: t.TempDir()})
	require.ErrorIs(t, err, cache.ErrUnknownBackend)

	_, err = cache.Open(cache.Options{Backend: cache.BackendFile, Dir: t.TempDir(), Codec: "xml"})
	require.ErrorIs(t, err, persist.ErrUnknownCodec)
}

type brokenStore struct{ cache.Store }

func (brokenStore) Get(context.Context, cache.Key) (*cache.Entry, error) {
	return nil, errors.New("bolt: database not open")
}

func TestPing(t *testing.T) {
	t.Parallel()

	for name, store := range stores(t) {
		assert.NoError(t, cache.Ping(context.Background(), store), name)
	}

	assert.Error(t, cache.Ping(context.Background(), brokenStore{}))
}
