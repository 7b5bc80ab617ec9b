// Package gitlog parses the raw commit log emitted by the git provider into
// structured commit records and exposes the providers that produce it.
package gitlog

// Signature identifies a commit author or co-author.
type Signature struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FileChange holds the line statistics of a single path in one commit.
type FileChange struct {
	Additions int  `json:"additions"`
	Deletions int  `json:"deletions"`
	IsBinary  bool `json:"isBinary"`
}

// Weight returns the contribution weight of the change: 1 for binary files,
// otherwise the number of changed lines.
func (c FileChange) Weight() int {
	if c.IsBinary {
		return 1
	}

	return c.Additions + c.Deletions
}

// RenameEvent is a name transition observed in a commit.
// From is empty when the file was created rather than renamed.
type RenameEvent struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Timestamp int64  `json:"timestamp"`
	Commit    string `json:"commit"`
}

// IsCreation reports whether the event records a file creation.
func (e RenameEvent) IsCreation() bool {
	return e.From == ""
}

// CommitRecord is one parsed commit. It is never mutated after parsing.
type CommitRecord struct {
	Hash        string                `json:"hash"`
	Parents     []string              `json:"parents"`
	Author      Signature             `json:"author"`
	CoAuthors   []Signature           `json:"coauthors,omitempty"`
	Timestamp   int64                 `json:"timestamp"`
	Message     string                `json:"message"`
	FileChanges map[string]FileChange `json:"fileChanges"`
	Renames     []RenameEvent         `json:"renames,omitempty"`
}

// IsRoot reports whether the commit has no parents.
func (c *CommitRecord) IsRoot() bool {
	return len(c.Parents) == 0
}

// IsMerge reports whether the commit has two or more parents. Only the diff
// against the first parent is attributed for merges.
func (c *CommitRecord) IsMerge() bool {
	return len(c.Parents) > 1
}

// Identities returns the author followed by every co-author whose name
// differs from the ones already listed.
func (c *CommitRecord) Identities() []Signature {
	ids := make([]Signature, 0, 1+len(c.CoAuthors))
	ids = append(ids, c.Author)

	seen := map[string]bool{c.Author.Name: true}

	for _, co := range c.CoAuthors {
		if seen[co.Name] {
			continue
		}

		seen[co.Name] = true

		ids = append(ids, co)
	}

	return ids
}

// RenameEvents collects the rename events of all commits in the given order.
func RenameEvents(commits []*CommitRecord) []RenameEvent {
	var events []RenameEvent

	for _, c := range commits {
		events = append(events, c.Renames...)
	}

	return events
}
