// Package filetree provides the snapshot file tree hydrated by the analysis.
//
// A tree is a strict hierarchy of *Tree and *Blob nodes. Node is a closed sum
// type: every type switch over it handles exactly these two cases.
package filetree

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Node type tags used in serialized trees.
const (
	TypeBlob = "blob"
	TypeTree = "tree"
)

// ErrUnknownNodeType is returned when decoding a node with an unknown type tag.
var ErrUnknownNodeType = errors.New("unknown node type")

// Node is a file tree node: either *Blob or *Tree.
type Node interface {
	NodePath() string
	NodeName() string
	isNode()
}

// Blob is a tracked file with its aggregated history.
type Blob struct {
	Path            string         `json:"path"`
	Name            string         `json:"name"`
	Authors         map[string]int `json:"authors"`
	NoCommits       int            `json:"noCommits"`
	LastChangeEpoch *int64         `json:"lastChangeEpoch"`
	IsBinary        bool           `json:"isBinary"`
	Commits         []string       `json:"commits"`
	Language        string         `json:"language,omitempty"`
	SizeInBytes     int64          `json:"sizeInBytes"`
	// PreviousPaths lists the names the file was known by before Path,
	// oldest first.
	PreviousPaths []string `json:"previousPaths,omitempty"`
}

// Tree is a directory owning its children.
type Tree struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Children []Node `json:"children"`
}

// NodePath implements Node.
func (b *Blob) NodePath() string { return b.Path }

// NodeName implements Node.
func (b *Blob) NodeName() string { return b.Name }

func (b *Blob) isNode() {}

// NodePath implements Node.
func (t *Tree) NodePath() string { return t.Path }

// NodeName implements Node.
func (t *Tree) NodeName() string { return t.Name }

func (t *Tree) isNode() {}

// Credit adds weight to author.
func (b *Blob) Credit(author string, weight int) {
	if b.Authors == nil {
		b.Authors = map[string]int{}
	}

	b.Authors[author] += weight
}

// TotalWeight returns the sum of all author weights.
func (b *Blob) TotalWeight() int {
	total := 0
	for _, w := range b.Authors {
		total += w
	}

	return total
}

// TopAuthor returns the author with the largest weight, ties broken by name.
func (b *Blob) TopAuthor() (string, int) {
	names := make([]string, 0, len(b.Authors))
	for name := range b.Authors {
		names = append(names, name)
	}

	sort.Strings(names)

	best, bestWeight := "", -1

	for _, name := range names {
		if b.Authors[name] > bestWeight {
			best, bestWeight = name, b.Authors[name]
		}
	}

	if bestWeight < 0 {
		return "", 0
	}

	return best, bestWeight
}

type blobJSON struct {
	Type string `json:"type"`
	*blobAlias
}

type blobAlias Blob

// MarshalJSON adds the type tag.
func (b *Blob) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(blobJSON{Type: TypeBlob, blobAlias: (*blobAlias)(b)})
	if err != nil {
		return nil, fmt.Errorf("marshal blob %s: %w", b.Path, err)
	}

	return data, nil
}

type treeJSON struct {
	Type     string            `json:"type"`
	Path     string            `json:"path"`
	Name     string            `json:"name"`
	Children []json.RawMessage `json:"children"`
}

// MarshalJSON adds the type tag.
func (t *Tree) MarshalJSON() ([]byte, error) {
	out := treeJSON{Type: TypeTree, Path: t.Path, Name: t.Name, Children: make([]json.RawMessage, 0, len(t.Children))}

	for _, child := range t.Children {
		data, err := json.Marshal(child)
		if err != nil {
			return nil, err
		}

		out.Children = append(out.Children, data)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal tree %s: %w", t.Path, err)
	}

	return data, nil
}

// UnmarshalJSON decodes a tree and its children by type tag.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var in treeJSON

	err := json.Unmarshal(data, &in)
	if err != nil {
		return fmt.Errorf("unmarshal tree: %w", err)
	}

	t.Path, t.Name = in.Path, in.Name
	t.Children = make([]Node, 0, len(in.Children))

	for _, raw := range in.Children {
		child, childErr := decodeNode(raw)
		if childErr != nil {
			return childErr
		}

		t.Children = append(t.Children, child)
	}

	return nil
}

func decodeNode(raw json.RawMessage) (Node, error) {
	var tag struct {
		Type string `json:"type"`
	}

	err := json.Unmarshal(raw, &tag)
	if err != nil {
		return nil, fmt.Errorf("unmarshal node: %w", err)
	}

	switch tag.Type {
	case TypeBlob:
		var alias blobAlias

		err = json.Unmarshal(raw, &alias)
		if err != nil {
			return nil, fmt.Errorf("unmarshal blob: %w", err)
		}

		blob := Blob(alias)

		return &blob, nil
	case TypeTree:
		tree := &Tree{}

		err = tree.UnmarshalJSON(raw)
		if err != nil {
			return nil, err
		}

		return tree, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, tag.Type)
	}
}
