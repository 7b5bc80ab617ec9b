package identity

import (
	"bufio"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/codetree/pkg/filetree"
)

// Sentinel errors for alias configuration.
var (
	ErrConflictingAlias = errors.New("alias maps to two canonical authors")
	ErrEmptyGroup       = errors.New("empty alias group")
)

// AliasMap maps every known alias, canonical names included, to its
// canonical author name. It is idempotent: m[m[x]] == m[x].
type AliasMap map[string]string

// NewAliasMap builds the map from alias groups. The first entry of each group
// is the canonical name. Groups sharing a canonical name are merged; an
// alias claimed by two different canonical names, or a canonical name that
// is also an alias of another one, is rejected.
func NewAliasMap(groups [][]string) (AliasMap, error) {
	m := AliasMap{}

	for i, group := range groups {
		names := trimNames(group)
		if len(names) == 0 {
			return nil, fmt.Errorf("%w at index %d", ErrEmptyGroup, i)
		}

		canonical := names[0]

		for _, alias := range names {
			if prev, ok := m[alias]; ok && prev != canonical {
				return nil, fmt.Errorf("%w: %q (%q, %q)", ErrConflictingAlias, alias, prev, canonical)
			}

			m[alias] = canonical
		}
	}

	for alias, canonical := range m {
		if m[canonical] != canonical {
			return nil, fmt.Errorf("%w: %q (%q, %q)", ErrConflictingAlias, canonical, alias, m[canonical])
		}
	}

	return m, nil
}

func trimNames(group []string) []string {
	names := make([]string, 0, len(group))

	for _, name := range group {
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}

	return names
}

// Canonical returns the canonical name of author, or author itself when it
// is not a known alias.
func (m AliasMap) Canonical(author string) string {
	if canonical, ok := m[author]; ok {
		return canonical
	}

	return author
}

// Groups returns the alias groups, canonical name first, sorted by canonical name.
func (m AliasMap) Groups() [][]string {
	byCanonical := map[string][]string{}

	for alias, canonical := range m {
		if alias != canonical {
			byCanonical[canonical] = append(byCanonical[canonical], alias)
		}
	}

	groups := make([][]string, 0, len(byCanonical))

	for _, canonical := range slices.Sorted(maps.Keys(byCanonical)) {
		aliases := byCanonical[canonical]
		slices.Sort(aliases)
		groups = append(groups, append([]string{canonical}, aliases...))
	}

	return groups
}

// Union merges the weights of aliases into their canonical names. The input
// is not modified. Union(Union(a, m), m) equals Union(a, m).
func Union(authors map[string]int, m AliasMap) map[string]int {
	out := make(map[string]int, len(authors))

	for name, weight := range authors {
		out[m.Canonical(name)] += weight
	}

	return out
}

// UnionTree applies Union to every blob of the tree in place.
func UnionTree(root *filetree.Tree, m AliasMap) {
	if len(m) == 0 {
		return
	}

	for _, blob := range root.Blobs() {
		blob.Authors = Union(blob.Authors, m)
	}
}

// LoadGroups reads alias groups from path. Files ending in .yaml or .yml
// are read as YAML; anything else uses the people-dict format with one
// group per line and aliases separated by "|".
func LoadGroups(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAMLGroups(path)
	default:
		return LoadPeopleDict(path)
	}
}

// LoadPeopleDict reads "canonical|alias|alias" lines. Blank lines and lines
// starting with "#" are skipped.
func LoadPeopleDict(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loadPeopleDict: %w", err)
	}
	defer file.Close()

	var groups [][]string

	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		groups = append(groups, strings.Split(line, "|"))
	}

	err = scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("loadPeopleDict: %w", err)
	}

	return groups, nil
}

// yamlAliases is the YAML layout of an alias file.
type yamlAliases struct {
	Aliases [][]string `yaml:"aliases"`
}

// LoadYAMLGroups reads an "aliases:" list of groups from a YAML file.
func LoadYAMLGroups(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aliases: %w", err)
	}

	var doc yamlAliases

	err = yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("parse aliases: %w", err)
	}

	return doc.Aliases, nil
}
