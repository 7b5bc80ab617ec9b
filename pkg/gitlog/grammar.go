package gitlog

import (
	"regexp"
	"strconv"
	"strings"
)

// Log grammar, version 2. Each header field is wrapped in "<|" and "|>" so that
// free-form values (author names) cannot be confused with the surrounding
// syntax. Records start with an ASCII record separator and the message body
// is closed by an ASCII unit separator, neither of which appears in commit
// messages or in git's (quoted) path output.
//
//	\x1ecommit <|HASH|>
//	parents <|P1 P2|>
//	author <|NAME|> <|EMAIL|>
//	date <|EPOCH|>
//	message <|BODY\x1f|>
//	ADD<TAB>DEL<TAB>PATH   or   PATH | +ADD -DEL   or   PATH | Bin
//	create mode NNNNNN PATH
//	delete mode NNNNNN PATH
const (
	// FormatVersion identifies the grammar understood by the parser.
	FormatVersion = 2

	// LogFormat is the --format argument that makes git emit the grammar headers.
	LogFormat = "%x1ecommit <|%H|>%nparents <|%P|>%nauthor <|%an|> <|%ae|>%ndate <|%at|>%nmessage <|%B%x1f|>"

	// RecordSeparator starts every commit record.
	RecordSeparator = "\x1e"

	// MessageTerminator closes the message field.
	MessageTerminator = "\x1f" + fieldClose

	fieldOpen    = "<|"
	fieldClose   = "|>"
	messageStart = "message " + fieldOpen

	// DevNull is the rename target git uses for a deleted path.
	DevNull = "dev/null"

	binaryMarker = "-"
)

var (
	commitRe  = regexp.MustCompile(`^commit <\|(?P<hash>[0-9a-fA-F]+)\|>$`)
	parentsRe = regexp.MustCompile(`^parents <\|(?P<parents>[0-9a-fA-F ]*)\|>$`)
	authorRe  = regexp.MustCompile(`^author <\|(?P<name>.*?)\|> <\|(?P<email>.*?)\|>$`)
	dateRe    = regexp.MustCompile(`^date <\|(?P<epoch>-?\d+)\|>$`)

	numstatTabRe  = regexp.MustCompile(`^(?P<add>\d+|-)\t(?P<del>\d+|-)\t(?P<path>.+)$`)
	numstatPipeRe = regexp.MustCompile(`^\s*(?P<path>.+?)\s+\|\s+(?:(?P<bin>Bin)\b.*|\+(?P<add>\d+)\s+-(?P<del>\d+))\s*$`)

	braceRenameRe = regexp.MustCompile(`^(?P<prefix>[^{]*)\{(?P<from>[^{}]*) => (?P<to>[^{}]*)\}(?P<suffix>.*)$`)
	bareRenameRe  = regexp.MustCompile(`^(?P<from>.+?) => (?P<to>.+)$`)

	createRe     = regexp.MustCompile(`^\s*create mode (?P<mode>\d+) (?P<path>.+)$`)
	deleteRe     = regexp.MustCompile(`^\s*delete mode (?P<mode>\d+) (?P<path>.+)$`)
	renameSumRe  = regexp.MustCompile(`^\s*(?:rename|copy) (?P<spec>.+) \((?P<similarity>\d+)%\)$`)
	modeChangeRe = regexp.MustCompile(`^\s*mode change \d+ => \d+ (?P<path>.+)$`)

	coAuthorRe = regexp.MustCompile(`(?im)^co-authored-by:[ \t]*(?P<name>[^<\n]*?)[ \t]*<(?P<email>[^>\n]*)>[ \t]*$`)
)

// captures matches line against re and returns the named groups.
func captures(re *regexp.Regexp, line string) (map[string]string, bool) {
	match := re.FindStringSubmatch(line)
	if match == nil {
		return nil, false
	}

	groups := make(map[string]string, len(match))

	for i, name := range re.SubexpNames() {
		if name != "" {
			groups[name] = match[i]
		}
	}

	return groups, true
}

// statLine is one numstat entry with the raw path already split.
type statLine struct {
	From   string
	To     string
	Change FileChange
}

// Renamed reports whether the entry encodes a move.
func (s statLine) Renamed() bool {
	return s.From != "" && s.From != s.To
}

// parseStatLine recognises both numstat syntaxes.
func parseStatLine(line string) (statLine, bool) {
	if groups, ok := captures(numstatTabRe, line); ok {
		from, to := splitRenamePath(groups["path"])

		if groups["add"] == binaryMarker || groups["del"] == binaryMarker {
			return statLine{From: from, To: to, Change: FileChange{IsBinary: true}}, true
		}

		return statLine{From: from, To: to, Change: FileChange{
			Additions: atoi(groups["add"]),
			Deletions: atoi(groups["del"]),
		}}, true
	}

	if groups, ok := captures(numstatPipeRe, line); ok {
		from, to := splitRenamePath(groups["path"])

		if groups["bin"] != "" {
			return statLine{From: from, To: to, Change: FileChange{IsBinary: true}}, true
		}

		return statLine{From: from, To: to, Change: FileChange{
			Additions: atoi(groups["add"]),
			Deletions: atoi(groups["del"]),
		}}, true
	}

	return statLine{}, false
}

// splitRenamePath splits a raw numstat path into its old and new names.
// For a path that is not a rename, from is empty and to is the path.
func splitRenamePath(raw string) (from, to string) {
	raw = unquotePath(strings.TrimSpace(raw))

	if groups, ok := captures(braceRenameRe, raw); ok {
		from = cleanJoin(groups["prefix"], groups["from"], groups["suffix"])
		to = cleanJoin(groups["prefix"], groups["to"], groups["suffix"])

		return from, to
	}

	if groups, ok := captures(bareRenameRe, raw); ok {
		return unquotePath(groups["from"]), unquotePath(groups["to"])
	}

	return "", raw
}

// cleanJoin glues the pieces of a brace rename, collapsing the double slash
// left behind by an empty side ("a/{ => b}/c" becomes "a/c").
func cleanJoin(prefix, middle, suffix string) string {
	joined := prefix + middle + suffix

	for strings.Contains(joined, "//") {
		joined = strings.ReplaceAll(joined, "//", "/")
	}

	return strings.TrimPrefix(joined, "/")
}

// unquotePath undoes git's C-style quoting of unusual paths.
func unquotePath(p string) string {
	if len(p) < 2 || p[0] != '"' || p[len(p)-1] != '"' {
		return p
	}

	unquoted, err := strconv.Unquote(p)
	if err != nil {
		return p
	}

	return unquoted
}

// isDeletedTarget reports whether a rename target denotes a deletion.
func isDeletedTarget(path string) bool {
	return strings.TrimPrefix(path, "/") == DevNull
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}

	return n
}
