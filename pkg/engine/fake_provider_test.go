package engine_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Sumatoshi-tech/codetree/pkg/gitlog"
)

type fakeCommit struct {
	hash    string
	parents []string
	author  string
	ts      int64
	lines   []string
	message string
}

// fakeProvider renders an in-memory history in the log grammar.
type fakeProvider struct {
	mu      sync.Mutex
	commits []fakeCommit // newest first
	files   []gitlog.SnapshotEntry
	broken  bool

	// gate, when set, blocks the first Log call until closed.
	gate    chan struct{}
	entered chan struct{}

	logCalls      atomic.Int32
	snapshotCalls atomic.Int32
	sinces        []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		commits: []fakeCommit{
			{hash: "c2", parents: []string{"c1"}, author: "alice", ts: 200, lines: []string{
				"3\t1\tsrc/{util.go => helpers.go}",
				"2\t0\tREADME.md",
			}},
			{hash: "c1", author: "Bob", ts: 100, lines: []string{
				"10\t0\tsrc/util.go",
				"1\t0\tREADME.md",
				"-\t-\tlogo.png",
				"4\t0\tvendor/lib/lib.go",
			}, message: "initial\n\nCo-authored-by: Carol <carol@example.com>"},
		},
		files: []gitlog.SnapshotEntry{
			{Path: "README.md", Size: 12},
			{Path: "src/helpers.go", Size: 80},
			{Path: "logo.png", Size: 2048, IsBinary: true},
			{Path: "vendor/lib/lib.go", Size: 40},
		},
	}
}

func (f *fakeProvider) push(c fakeCommit) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.commits = append([]fakeCommit{c}, f.commits...)
}

func (f *fakeProvider) Head(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.commits[0].hash, nil
}

func (f *fakeProvider) Log(ctx context.Context, _, since string) (string, error) {
	call := f.logCalls.Add(1)

	if call == 1 && f.gate != nil {
		f.entered <- struct{}{}

		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sinces = append(f.sinces, since)

	if f.broken {
		return "garbage before the first commit\n", nil
	}

	var b strings.Builder

	for _, c := range f.commits {
		if c.hash == since {
			break
		}

		fmt.Fprintf(&b, gitlog.RecordSeparator+"commit <|%s|>\nparents <|%s|>\nauthor <|%s|> <|%s@example.com|>\ndate <|%d|>\nmessage <|%s"+gitlog.MessageTerminator+"\n\n",
			c.hash, strings.Join(c.parents, " "), c.author, strings.ToLower(c.author), c.ts, c.message)

		for _, line := range c.lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	return b.String(), nil
}

func (f *fakeProvider) CountCommits(_ context.Context, _, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.commits), nil
}

func (f *fakeProvider) Snapshot(_ context.Context, _ string) ([]gitlog.SnapshotEntry, error) {
	f.snapshotCalls.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]gitlog.SnapshotEntry(nil), f.files...), nil
}
