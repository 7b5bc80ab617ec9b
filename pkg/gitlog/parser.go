package gitlog

import (
	"strconv"
	"strings"
)

// SplitBlocks splits raw log text into one block per commit record. Text
// before the first record separator must be blank.
func SplitBlocks(raw string) ([]string, error) {
	parts := strings.Split(raw, RecordSeparator)

	if lead := strings.TrimSpace(parts[0]); lead != "" {
		line, _, _ := strings.Cut(lead, "\n")

		return nil, &MalformedCommitError{Field: FieldHash, Line: line}
	}

	return parts[1:], nil
}

// ParseLog parses every commit in raw, preserving the provider's order
// (newest first for git log). The first malformed block aborts parsing.
func ParseLog(raw string) ([]*CommitRecord, error) {
	blocks, err := SplitBlocks(raw)
	if err != nil {
		return nil, err
	}

	commits := make([]*CommitRecord, 0, len(blocks))

	for _, block := range blocks {
		commit, parseErr := ParseCommit(block)
		if parseErr != nil {
			return nil, parseErr
		}

		commits = append(commits, commit)
	}

	return commits, nil
}

// headerLines is the number of single-line fields before the message.
const headerLines = 4

// ParseCommit parses one raw commit block. A leading record separator is
// optional.
func ParseCommit(block string) (*CommitRecord, error) {
	block = strings.TrimPrefix(block, RecordSeparator)
	lines := strings.SplitN(strings.TrimRight(block, "\n"), "\n", headerLines+1)

	commit := &CommitRecord{FileChanges: map[string]FileChange{}}

	groups, ok := captures(commitRe, lines[0])
	if !ok {
		return nil, &MalformedCommitError{Field: FieldHash, Line: lines[0]}
	}

	commit.Hash = groups["hash"]

	headers := []struct {
		field string
		apply func(string) bool
	}{
		{FieldParents, commit.applyParents},
		{FieldAuthor, commit.applyAuthor},
		{FieldDate, commit.applyDate},
	}

	for i, header := range headers {
		if i+1 >= len(lines) {
			return nil, &MalformedCommitError{Field: header.field, Hash: commit.Hash}
		}

		if !header.apply(lines[i+1]) {
			return nil, &MalformedCommitError{Field: header.field, Hash: commit.Hash, Line: lines[i+1]}
		}
	}

	if len(lines) <= headerLines {
		return nil, &MalformedCommitError{Field: FieldMessage, Hash: commit.Hash}
	}

	stats, err := commit.applyMessage(lines[headerLines])
	if err != nil {
		return nil, err
	}

	err = commit.applyStats(strings.Split(stats, "\n"))
	if err != nil {
		return nil, err
	}

	commit.CoAuthors = uniqueSignatures(ExtractCoAuthors(commit.Message))

	return commit, nil
}

func (c *CommitRecord) applyParents(line string) bool {
	groups, ok := captures(parentsRe, line)
	if !ok {
		return false
	}

	c.Parents = strings.Fields(groups["parents"])

	return true
}

func (c *CommitRecord) applyAuthor(line string) bool {
	groups, ok := captures(authorRe, line)
	if !ok {
		return false
	}

	c.Author = Signature{Name: strings.TrimSpace(groups["name"]), Email: strings.TrimSpace(groups["email"])}

	return c.Author.Name != "" || c.Author.Email != ""
}

func (c *CommitRecord) applyDate(line string) bool {
	groups, ok := captures(dateRe, line)
	if !ok {
		return false
	}

	epoch, err := strconv.ParseInt(groups["epoch"], 10, 64)
	if err != nil {
		return false
	}

	c.Timestamp = epoch

	return true
}

// applyMessage reads the message field from the rest of the record and
// returns the text following it. The body may contain any line, including
// ones that look like headers; it ends at the last terminator of the record,
// since git quotes control characters in the paths that follow.
func (c *CommitRecord) applyMessage(rest string) (string, error) {
	body, found := strings.CutPrefix(rest, messageStart)
	if !found {
		line, _, _ := strings.Cut(rest, "\n")

		return "", &MalformedCommitError{Field: FieldMessage, Hash: c.Hash, Line: line}
	}

	end := strings.LastIndex(body, MessageTerminator)
	if end < 0 {
		return "", &MalformedCommitError{Field: FieldMessage, Hash: c.Hash}
	}

	c.Message = strings.TrimRight(body[:end], " \t\r\n")

	return body[end+len(MessageTerminator):], nil
}

// applyStats reads numstat and summary lines. Deleted targets and zero-line
// changes are dropped from FileChanges; renames and creations are recorded
// in Renames regardless of their line counts.
func (c *CommitRecord) applyStats(lines []string) error {
	renamed := map[string]bool{}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		if stat, ok := parseStatLine(line); ok {
			c.addStat(stat, renamed)

			continue
		}

		if groups, ok := captures(createRe, line); ok {
			c.Renames = append(c.Renames, RenameEvent{
				To: unquotePath(groups["path"]), Timestamp: c.Timestamp, Commit: c.Hash,
			})

			continue
		}

		if groups, ok := captures(renameSumRe, line); ok {
			from, to := splitRenamePath(groups["spec"])
			if from != "" && !renamed[to] && !isDeletedTarget(to) {
				renamed[to] = true
				c.Renames = append(c.Renames, RenameEvent{From: from, To: to, Timestamp: c.Timestamp, Commit: c.Hash})
			}

			continue
		}

		if deleteRe.MatchString(line) || modeChangeRe.MatchString(line) {
			continue
		}

		return &MalformedCommitError{Field: FieldStats, Hash: c.Hash, Line: line}
	}

	return nil
}

func (c *CommitRecord) addStat(stat statLine, renamed map[string]bool) {
	if isDeletedTarget(stat.To) {
		return
	}

	if stat.Renamed() && !renamed[stat.To] {
		renamed[stat.To] = true
		c.Renames = append(c.Renames, RenameEvent{From: stat.From, To: stat.To, Timestamp: c.Timestamp, Commit: c.Hash})
	}

	if !stat.Change.IsBinary && stat.Change.Additions+stat.Change.Deletions == 0 {
		return
	}

	existing, ok := c.FileChanges[stat.To]
	if ok {
		stat.Change = FileChange{
			Additions: existing.Additions + stat.Change.Additions,
			Deletions: existing.Deletions + stat.Change.Deletions,
			IsBinary:  existing.IsBinary || stat.Change.IsBinary,
		}
	}

	c.FileChanges[stat.To] = stat.Change
}
