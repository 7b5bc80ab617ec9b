package gitlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrRepositoryOpen is returned when the repository cannot be opened.
var ErrRepositoryOpen = errors.New("open repository")

// Repository combines the git CLI, which renders the log grammar, with a
// go-git handle used for ref resolution and tree listing.
type Repository struct {
	*CLI

	repo *git.Repository
}

// OpenRepository opens the repository at dir.
func OpenRepository(dir, gitBinary string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrRepositoryOpen, dir, err)
	}

	return NewRepository(repo, NewCLI(dir, gitBinary)), nil
}

// NewRepository wraps an already opened go-git repository.
func NewRepository(repo *git.Repository, cli *CLI) *Repository {
	return &Repository{CLI: cli, repo: repo}
}

// Head implements Provider.Head without spawning git.
func (r *Repository) Head(_ context.Context, branch string) (string, error) {
	hash, err := r.resolve(branch)
	if err != nil {
		return "", err
	}

	return hash.String(), nil
}

// Snapshot implements Provider.Snapshot by walking the tree of ref.
func (r *Repository) Snapshot(ctx context.Context, ref string) ([]SnapshotEntry, error) {
	hash, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}

	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", hash, err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree of %s: %w", hash, err)
	}

	var entries []SnapshotEntry

	err = tree.Files().ForEach(func(file *object.File) error {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return ctxErr
		}

		binary, binErr := file.IsBinary()
		if binErr != nil {
			return fmt.Errorf("inspect %s: %w", file.Name, binErr)
		}

		entries = append(entries, SnapshotEntry{Path: file.Name, Size: file.Size, IsBinary: binary})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files of %s: %w", hash, err)
	}

	return entries, nil
}

func (r *Repository) resolve(ref string) (plumbing.Hash, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve %s: %w", ref, err)
	}

	return *hash, nil
}
