package gitlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the tracer wrapping every git invocation.
const tracerName = "codetree/gitlog"

// EmptyTreeHash is git's well-known empty tree object. Root commits are
// diffed against it (git log --root), so their whole content is credited to
// the initial author.
const EmptyTreeHash = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// DefaultGitBinary is the git executable looked up on PATH.
const DefaultGitBinary = "git"

// ErrGitCommand is returned when the git executable exits with an error.
var ErrGitCommand = errors.New("git command failed")

// SnapshotEntry is one file present at the analyzed commit.
type SnapshotEntry struct {
	Path     string
	Size     int64
	IsBinary bool
}

// Provider reads the raw history of one repository.
type Provider interface {
	// Head resolves the branch to its tip commit hash.
	Head(ctx context.Context, branch string) (string, error)
	// Log returns the raw log text of branch, newest first. When since is
	// non-empty only commits not reachable from since are returned.
	Log(ctx context.Context, branch, since string) (string, error)
	// CountCommits returns the number of commits Log would return.
	CountCommits(ctx context.Context, branch, since string) (int, error)
	// Snapshot lists the files present at ref.
	Snapshot(ctx context.Context, ref string) ([]SnapshotEntry, error)
}

// CLI runs the git executable to produce log text.
type CLI struct {
	Dir    string
	Binary string
}

// NewCLI creates a CLI runner for the repository at dir.
func NewCLI(dir, binary string) *CLI {
	if binary == "" {
		binary = DefaultGitBinary
	}

	return &CLI{Dir: dir, Binary: binary}
}

// LogArgs returns the git arguments producing the log grammar for branch.
func LogArgs(branch, since string) []string {
	return []string{
		"log",
		"--format=" + LogFormat,
		"--numstat",
		"--summary",
		"--root",
		"--find-renames",
		"--diff-merges=first-parent",
		"--no-color",
		"--no-ext-diff",
		revisionRange(branch, since),
		"--",
	}
}

func revisionRange(branch, since string) string {
	if since == "" {
		return branch
	}

	return since + ".." + branch
}

// Log implements Provider.Log.
func (c *CLI) Log(ctx context.Context, branch, since string) (string, error) {
	return c.run(ctx, LogArgs(branch, since)...)
}

// CountCommits implements Provider.CountCommits.
func (c *CLI) CountCommits(ctx context.Context, branch, since string) (int, error) {
	out, err := c.run(ctx, "rev-list", "--count", revisionRange(branch, since), "--")
	if err != nil {
		return 0, err
	}

	count, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("parse commit count: %w", err)
	}

	return count, nil
}

// Head implements Provider.Head.
func (c *CLI) Head(ctx context.Context, branch string) (string, error) {
	out, err := c.run(ctx, "rev-parse", "--verify", branch+"^{commit}")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

func (c *CLI) run(ctx context.Context, args ...string) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "codetree.git.exec",
		trace.WithAttributes(attribute.String("git.command", args[0])))
	defer span.End()

	full := append([]string{"-C", c.Dir}, args...)
	cmd := exec.CommandContext(ctx, c.Binary, full...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		span.SetStatus(codes.Error, "git failed")

		return "", fmt.Errorf("%w: git %s: %w (%s)", ErrGitCommand, args[0], err, strings.TrimSpace(stderr.String()))
	}

	span.SetAttributes(attribute.Int("git.output_bytes", stdout.Len()))

	return stdout.String(), nil
}
