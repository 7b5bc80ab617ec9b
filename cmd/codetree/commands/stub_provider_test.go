package commands

import (
	"context"

	"github.com/Sumatoshi-tech/codetree/pkg/gitlog"
)

const stubLog = gitlog.RecordSeparator + "commit <|c2|>\nparents <|c1|>\nauthor <|Alice|> <|alice@example.com|>\ndate <|200|>\nmessage <|fix" + gitlog.MessageTerminator + "\n\n" +
	"3\t1\tmain.go\n" +
	gitlog.RecordSeparator + "commit <|c1|>\nparents <||>\nauthor <|Bob|> <|bob@example.com|>\ndate <|100|>\nmessage <|initial" + gitlog.MessageTerminator + "\n\n" +
	"10\t0\tmain.go\n" +
	"2\t0\tREADME.md\n"

// stubProvider serves a fixed two-commit history.
type stubProvider struct{}

func (stubProvider) Head(context.Context, string) (string, error) { return "c2", nil }

func (stubProvider) Log(context.Context, string, string) (string, error) { return stubLog, nil }

func (stubProvider) CountCommits(context.Context, string, string) (int, error) { return 2, nil }

func (stubProvider) Snapshot(context.Context, string) ([]gitlog.SnapshotEntry, error) {
	return []gitlog.SnapshotEntry{
		{Path: "README.md", Size: 20},
		{Path: "main.go", Size: 300},
	}, nil
}

func stubFactory(string) (gitlog.Provider, error) { return stubProvider{}, nil }
