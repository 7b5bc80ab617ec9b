package filetree_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codetree/pkg/filetree"
)

func sampleTree() *filetree.Tree {
	return filetree.Build("repo", []filetree.Entry{
		{Path: "src/main.go", Size: 120},
		{Path: "README.md", Size: 10},
		{Path: "src/util/strings.go", Size: 30},
		{Path: "assets/logo.png", Size: 2048, IsBinary: true},
	})
}

func TestBuild_Hierarchy(t *testing.T) {
	t.Parallel()

	root := sampleTree()

	assert.Equal(t, "repo", root.Name)
	assert.Equal(t, []string{"README.md", "assets/logo.png", "src/main.go", "src/util/strings.go"}, root.Paths())

	names := make([]string, 0, len(root.Children))
	for _, child := range root.Children {
		names = append(names, child.NodeName())
	}

	assert.Equal(t, []string{"README.md", "assets", "src"}, names)

	blob, ok := root.Lookup("src/main.go")
	require.True(t, ok)
	assert.Equal(t, "main.go", blob.Name)
	assert.Equal(t, "Go", blob.Language)
	assert.Equal(t, int64(120), blob.SizeInBytes)
	assert.Equal(t, 0, blob.NoCommits)
	assert.Nil(t, blob.LastChangeEpoch)

	logo, ok := root.Lookup("assets/logo.png")
	require.True(t, ok)
	assert.True(t, logo.IsBinary)
}

func TestLookup_Misses(t *testing.T) {
	t.Parallel()

	root := sampleTree()

	for _, p := range []string{"src", "src/missing.go", "src/main.go/extra", "nope/x"} {
		_, ok := root.Lookup(p)
		assert.False(t, ok, p)
	}
}

func TestBlob_CreditAndTopAuthor(t *testing.T) {
	t.Parallel()

	blob := &filetree.Blob{}
	blob.Credit("bob", 3)
	blob.Credit("alice", 3)
	blob.Credit("carol", 1)

	name, weight := blob.TopAuthor()
	assert.Equal(t, "alice", name)
	assert.Equal(t, 3, weight)
	assert.Equal(t, 7, blob.TotalWeight())

	name, weight = (&filetree.Blob{}).TopAuthor()
	assert.Empty(t, name)
	assert.Zero(t, weight)
}

func TestClone_IsDeep(t *testing.T) {
	t.Parallel()

	root := sampleTree()
	blob, _ := root.Lookup("README.md")
	epoch := int64(42)
	blob.LastChangeEpoch = &epoch
	blob.Credit("alice", 1)
	blob.PreviousPaths = []string{"README"}

	clone := root.Clone()
	cloned, ok := clone.Lookup("README.md")
	require.True(t, ok)

	cloned.Credit("bob", 5)
	*cloned.LastChangeEpoch = 7
	cloned.PreviousPaths[0] = "readme.txt"

	assert.Equal(t, map[string]int{"alice": 1}, blob.Authors)
	assert.Equal(t, int64(42), *blob.LastChangeEpoch)
	assert.Equal(t, []string{"README"}, blob.PreviousPaths)
}

func TestPrune_DropsEmptyTrees(t *testing.T) {
	t.Parallel()

	root := sampleTree()
	pruned := root.Prune(func(b *filetree.Blob) bool { return b.IsBinary })

	assert.Equal(t, []string{"README.md", "src/main.go", "src/util/strings.go"}, pruned.Paths())

	for _, child := range pruned.Children {
		assert.NotEqual(t, "assets", child.NodeName())
	}

	assert.Len(t, root.Paths(), 4)
}

func TestJSON_RoundTripKeepsNodeTypes(t *testing.T) {
	t.Parallel()

	root := sampleTree()
	blob, _ := root.Lookup("src/main.go")
	epoch := int64(1700000000)
	blob.LastChangeEpoch = &epoch
	blob.Credit("alice", 10)
	blob.NoCommits = 2
	blob.Commits = []string{"b", "a"}

	data, err := json.Marshal(root)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"tree"`)
	assert.Contains(t, string(data), `"type":"blob"`)

	var decoded filetree.Tree
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, root, &decoded)
}

func TestJSON_UnknownType(t *testing.T) {
	t.Parallel()

	var decoded filetree.Tree

	err := json.Unmarshal([]byte(`{"type":"tree","path":"","name":"r","children":[{"type":"link"}]}`), &decoded)
	require.ErrorIs(t, err, filetree.ErrUnknownNodeType)
}

func TestHiddenFilter(t *testing.T) {
	t.Parallel()

	filter := filetree.HiddenFilter{Patterns: []string{"*.lock", "docs", "build/"}}

	assert.True(t, filter.Hidden("yarn.lock"))
	assert.True(t, filter.Hidden("web/package.lock"))
	assert.True(t, filter.Hidden("docs/intro.md"))
	assert.True(t, filter.Hidden("build/out/app.js"))
	assert.False(t, filter.Hidden("src/docs.go"))

	vendored := filetree.HiddenFilter{HideVendored: true}
	assert.True(t, vendored.Hidden("vendor/github.com/x/y.go"))
	assert.False(t, vendored.Hidden("src/main.go"))
}

func TestTreeAuthors(t *testing.T) {
	t.Parallel()

	root := sampleTree()
	a, _ := root.Lookup("README.md")
	b, _ := root.Lookup("src/main.go")

	a.Credit("alice", 2)
	b.Credit("alice", 3)
	b.Credit("bob", 1)

	assert.Equal(t, map[string]int{"alice": 5, "bob": 1}, root.Authors())
}
