package gitlog

import (
	"errors"
	"fmt"
)

// ErrMalformedCommit is the sentinel matched by every *MalformedCommitError.
var ErrMalformedCommit = errors.New("malformed commit")

// Field names reported by MalformedCommitError.
const (
	FieldHash    = "hash"
	FieldParents = "parents"
	FieldAuthor  = "author"
	FieldDate    = "date"
	FieldMessage = "message"
	FieldStats   = "numstat"
)

// MalformedCommitError reports a raw commit block that does not follow the log grammar.
type MalformedCommitError struct {
	Field string
	Hash  string
	Line  string
}

func (e *MalformedCommitError) Error() string {
	switch {
	case e.Line != "" && e.Hash != "":
		return fmt.Sprintf("malformed commit %s: bad %s line %q", e.Hash, e.Field, e.Line)
	case e.Line != "":
		return fmt.Sprintf("malformed commit: bad %s line %q", e.Field, e.Line)
	case e.Hash != "":
		return fmt.Sprintf("malformed commit %s: missing %s", e.Hash, e.Field)
	default:
		return "malformed commit: missing " + e.Field
	}
}

// Unwrap returns ErrMalformedCommit.
func (e *MalformedCommitError) Unwrap() error {
	return ErrMalformedCommit
}
