package engine

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/codetree/pkg/attribution"
	"github.com/Sumatoshi-tech/codetree/pkg/cache"
	"github.com/Sumatoshi-tech/codetree/pkg/filetree"
	"github.com/Sumatoshi-tech/codetree/pkg/identity"
	"github.com/Sumatoshi-tech/codetree/pkg/refresh"
	"github.com/Sumatoshi-tech/codetree/pkg/renames"
)

// DefaultBranch is analyzed when a request names no branch.
const DefaultBranch = "HEAD"

// Request describes one analysis trigger.
type Request struct {
	Repository string
	Branch     string
	Reason     refresh.InvocationReason
	Hidden     filetree.HiddenFilter
	// Aliases are alias groups; the first name of each group is canonical.
	Aliases [][]string
	Window  attribution.Window
}

// Key returns the cache key of the request.
func (r Request) Key() cache.Key {
	return cache.Key{Repository: r.Repository, Branch: r.Branch}
}

// Normalize resolves the repository to an absolute path, fills the default
// branch and classifies the reason. Invalid requests wrap ErrInvalidRequest.
func (r Request) Normalize() (Request, error) {
	if strings.TrimSpace(r.Repository) == "" {
		return r, fmt.Errorf("%w: repository is required", ErrInvalidRequest)
	}

	abs, err := filepath.Abs(r.Repository)
	if err != nil {
		return r, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	r.Repository = abs

	if r.Branch == "" {
		r.Branch = DefaultBranch
	}

	r.Reason = refresh.ParseReason(string(r.Reason))

	if r.Window.Until != 0 && r.Window.Since > r.Window.Until {
		return r, fmt.Errorf("%w: since %d is after until %d", ErrInvalidRequest, r.Window.Since, r.Window.Until)
	}

	_, err = identity.NewAliasMap(r.Aliases)
	if err != nil {
		return r, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	return r, nil
}

// fingerprint identifies requests that can share one run.
func (r Request) fingerprint() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s|%q|%t|%d|%d", r.Reason, r.Hidden.Patterns, r.Hidden.HideVendored, r.Window.Since, r.Window.Until)

	for _, group := range r.Aliases {
		fmt.Fprintf(&b, "|%q", group)
	}

	return b.String()
}

// paramsDiffer returns the items made stale by parameters that differ from
// the ones the entry was computed with.
func (r Request) paramsDiffer(entry *cache.Entry) refresh.Set {
	stale := refresh.Set{}

	if !slices.Equal(entry.Hidden, r.Hidden.Patterns) || entry.HideVendored != r.Hidden.HideVendored {
		stale.Add(refresh.ItemHiddenFiles, refresh.ItemMetrics)
	}

	sameGroup := func(a, b []string) bool { return slices.Equal(a, b) }
	if !slices.EqualFunc(entry.Aliases, r.Aliases, sameGroup) {
		stale.Add(refresh.ItemAuthorUnions, refresh.ItemAuthorColors, refresh.ItemMetrics)
	}

	if entry.Since != r.Window.Since || entry.Until != r.Window.Until {
		stale.Add(refresh.ItemTimeRange, refresh.ItemTree, refresh.ItemMetrics)
	}

	return stale
}

// Result is the outcome of a successful run. Results may be shared between
// joined callers and must be treated as read-only.
type Result struct {
	RunID string    `json:"runId"`
	Key   cache.Key `json:"key"`
	Head  string    `json:"head"`
	// Tree is the hydrated snapshot with hidden files removed and aliases merged.
	Tree *filetree.Tree `json:"tree"`
	// Commits is the number of commits in the analyzed history.
	Commits int `json:"commits"`
	// NewCommits is the number of commits read from git by this run.
	NewCommits  int                `json:"newCommits"`
	FullRead    bool               `json:"fullRead"`
	Recomputed  []refresh.DataItem `json:"recomputed"`
	Attribution attribution.Stats  `json:"attribution"`
	Renames     renames.Stats      `json:"renames"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// FromCache reports whether the result was served without recomputation.
func (r *Result) FromCache() bool {
	return len(r.Recomputed) == 0 && r.NewCommits == 0
}
