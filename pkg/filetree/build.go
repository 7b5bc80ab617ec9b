package filetree

import (
	"path"
	"sort"
	"strings"

	"github.com/src-d/enry/v2"
)

// Entry is one file of the snapshot listing.
type Entry struct {
	Path     string
	Size     int64
	IsBinary bool
}

// Build creates a tree named rootName from a flat listing. Entries are
// placed under intermediate trees created on demand; children are sorted
// by name so that equal listings always produce equal trees.
func Build(rootName string, entries []Entry) *Tree {
	root := &Tree{Name: rootName}
	dirs := map[string]*Tree{"": root}

	for _, entry := range entries {
		clean := strings.Trim(path.Clean("/"+entry.Path), "/")
		if clean == "" {
			continue
		}

		parent := ensureDir(dirs, path.Dir(clean))
		language, _ := enry.GetLanguageByExtension(clean)

		parent.Children = append(parent.Children, &Blob{
			Path:        clean,
			Name:        path.Base(clean),
			Authors:     map[string]int{},
			IsBinary:    entry.IsBinary,
			Commits:     []string{},
			Language:    language,
			SizeInBytes: entry.Size,
		})
	}

	sortChildren(root)

	return root
}

func ensureDir(dirs map[string]*Tree, dir string) *Tree {
	if dir == "." {
		dir = ""
	}

	if tree, ok := dirs[dir]; ok {
		return tree
	}

	parent := ensureDir(dirs, path.Dir(dir))
	tree := &Tree{Path: dir, Name: path.Base(dir)}
	parent.Children = append(parent.Children, tree)
	dirs[dir] = tree

	return tree
}

func sortChildren(tree *Tree) {
	sort.SliceStable(tree.Children, func(i, j int) bool {
		return tree.Children[i].NodeName() < tree.Children[j].NodeName()
	})

	for _, child := range tree.Children {
		if sub, ok := child.(*Tree); ok {
			sortChildren(sub)
		}
	}
}

// HiddenFilter decides which snapshot paths are hidden from analysis.
type HiddenFilter struct {
	Patterns     []string
	HideVendored bool
}

// Hidden reports whether p matches a pattern (against the full path, the
// base name, or any leading directory) or is a vendored path.
func (f HiddenFilter) Hidden(p string) bool {
	if f.HideVendored && enry.IsVendor(p) {
		return true
	}

	for _, pattern := range f.Patterns {
		if matchPattern(pattern, p) {
			return true
		}
	}

	return false
}

func matchPattern(pattern, p string) bool {
	pattern = strings.TrimSuffix(pattern, "/")

	if ok, _ := path.Match(pattern, p); ok {
		return true
	}

	if ok, _ := path.Match(pattern, path.Base(p)); ok {
		return true
	}

	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if ok, _ := path.Match(pattern, dir); ok {
			return true
		}

		if ok, _ := path.Match(pattern, path.Base(dir)); ok {
			return true
		}
	}

	return false
}
