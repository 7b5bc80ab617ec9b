package filetree

import (
	"maps"
	"slices"
	"strings"
)

// Walk calls fn for every node in depth-first pre-order. Returning false
// from fn skips the children of a tree.
func Walk(node Node, fn func(Node) bool) {
	switch n := node.(type) {
	case *Blob:
		fn(n)
	case *Tree:
		if !fn(n) {
			return
		}

		for _, child := range n.Children {
			Walk(child, fn)
		}
	}
}

// Blobs returns every blob under the tree in walk order.
func (t *Tree) Blobs() []*Blob {
	var blobs []*Blob

	Walk(t, func(node Node) bool {
		if blob, ok := node.(*Blob); ok {
			blobs = append(blobs, blob)
		}

		return true
	})

	return blobs
}

// Index maps every blob path to its node.
func (t *Tree) Index() map[string]*Blob {
	index := map[string]*Blob{}
	for _, blob := range t.Blobs() {
		index[blob.Path] = blob
	}

	return index
}

// Paths returns the paths of all blobs in walk order.
func (t *Tree) Paths() []string {
	blobs := t.Blobs()
	paths := make([]string, len(blobs))

	for i, blob := range blobs {
		paths[i] = blob.Path
	}

	return paths
}

// Lookup finds the blob at p by descending through the path segments.
func (t *Tree) Lookup(p string) (*Blob, bool) {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	current := t

	for i, segment := range segments {
		var next Node

		for _, child := range current.Children {
			if child.NodeName() == segment {
				next = child

				break
			}
		}

		switch n := next.(type) {
		case *Blob:
			return n, i == len(segments)-1
		case *Tree:
			current = n
		default:
			return nil, false
		}
	}

	return nil, false
}

// Authors sums author weights over every blob of the tree.
func (t *Tree) Authors() map[string]int {
	totals := map[string]int{}

	for _, blob := range t.Blobs() {
		for name, weight := range blob.Authors {
			totals[name] += weight
		}
	}

	return totals
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	out := &Tree{Path: t.Path, Name: t.Name, Children: make([]Node, 0, len(t.Children))}

	for _, child := range t.Children {
		switch n := child.(type) {
		case *Blob:
			out.Children = append(out.Children, n.Clone())
		case *Tree:
			out.Children = append(out.Children, n.Clone())
		}
	}

	return out
}

// Clone returns a deep copy of the blob.
func (b *Blob) Clone() *Blob {
	out := *b
	out.Authors = maps.Clone(b.Authors)
	out.Commits = slices.Clone(b.Commits)
	out.PreviousPaths = slices.Clone(b.PreviousPaths)

	if b.LastChangeEpoch != nil {
		epoch := *b.LastChangeEpoch
		out.LastChangeEpoch = &epoch
	}

	return &out
}

// Prune returns a copy of the tree without the blobs for which drop returns
// true. Trees left without children are removed as well, except the root.
func (t *Tree) Prune(drop func(*Blob) bool) *Tree {
	out := &Tree{Path: t.Path, Name: t.Name, Children: []Node{}}

	for _, child := range t.Children {
		switch n := child.(type) {
		case *Blob:
			if !drop(n) {
				out.Children = append(out.Children, n.Clone())
			}
		case *Tree:
			sub := n.Prune(drop)
			if len(sub.Children) > 0 {
				out.Children = append(out.Children, sub)
			}
		}
	}

	return out
}
