package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codetree/pkg/config"
	"github.com/Sumatoshi-tech/codetree/pkg/engine"
	"github.com/Sumatoshi-tech/codetree/pkg/identity"
	"github.com/Sumatoshi-tech/codetree/pkg/observability"
	"github.com/Sumatoshi-tech/codetree/pkg/progress"
	"github.com/Sumatoshi-tech/codetree/pkg/refresh"
	"github.com/Sumatoshi-tech/codetree/pkg/version"
)

const (
	analyzeCmdUse   = "analyze [repository]"
	analyzeCmdShort = "Hydrate the file tree of a repository branch with its history"
	aliasSeparator  = "|"
	outputFilePerm  = 0o600
	progressPoll    = 100 * time.Millisecond
	progressWidth   = 30
	defaultTopItems = 10
)

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

// AnalyzeOptions holds the flags of the analyze command.
type AnalyzeOptions struct {
	Branch       string
	Reason       string
	Since        string
	Until        string
	Aliases      []string
	AliasesFile  string
	Hidden       []string
	HideVendored bool
	Format       string
	Output       string
	Top          int
	File         string
	MetricsAddr  string
	Timeout      time.Duration
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	opts := &AnalyzeOptions{}

	cmd := &cobra.Command{
		Use:   analyzeCmdUse,
		Short: analyzeCmdShort,
		Long: `Hydrate the snapshot tree of a branch with per-file authorship.

The reason tells the engine what changed since the last run so it only
recomputes what is stale: open, refresh, hide, unhide, groupAuthors,
rerollColors, timeRangeStart or timeRangeEnd.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := "."
			if len(args) > 0 {
				repo = args[0]
			}

			return runAnalyze(cmd, repo, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Branch, "branch", "b", "", "branch or revision to analyze (default from config, HEAD)")
	flags.StringVar(&opts.Reason, "reason", string(refresh.ReasonOpen), "invocation reason driving cache reuse")
	flags.StringVar(&opts.Since, "since", "", "credit only commits at or after this time (RFC 3339, YYYY-MM-DD or unix)")
	flags.StringVar(&opts.Until, "until", "", "credit only commits at or before this time")
	flags.StringArrayVar(&opts.Aliases, "alias", nil, `alias group "Canonical|alias|alias" (repeatable)`)
	flags.StringVar(&opts.AliasesFile, "aliases-file", "", "alias groups file (people dict or YAML)")
	flags.StringArrayVar(&opts.Hidden, "hide", nil, "glob of files to hide from the output (repeatable)")
	flags.BoolVar(&opts.HideVendored, "hide-vendored", false, "hide vendored files")
	flags.StringVarP(&opts.Format, "format", "f", formatTable, "output format: table, json or yaml")
	flags.StringVarP(&opts.Output, "output", "o", "", "write the result to a file instead of stdout")
	flags.IntVar(&opts.Top, "top", defaultTopItems, "rows of the author and file tables")
	flags.StringVar(&opts.File, "file", "", "show the history of one file instead of the whole tree")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address while running (default from config)")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "abort the analysis after this duration (default from config, none)")

	return cmd
}

func runAnalyze(cmd *cobra.Command, repo string, opts *AnalyzeOptions) error {
	if !validFormat(opts.Format) {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}

	flags := readGlobalFlags(cmd)

	a, err := newApp(flags, appOptions{mode: observability.ModeCLI, metricsAddr: opts.MetricsAddr})
	if err != nil {
		return err
	}

	defer func() {
		closeErr := a.Close(context.Background())
		if closeErr != nil {
			a.logger.Warn("shutdown failed", "error", closeErr)
		}
	}()

	if a.metricsAddr != "" {
		diag, diagErr := observability.NewDiagnosticsServer(a.metricsAddr, version.String(),
			a.providers.MetricsHandler, cacheCheck(a.store))
		if diagErr != nil {
			return diagErr
		}

		defer func() { _ = diag.Close(context.Background()) }()

		a.logger.Info("diagnostics listening", "addr", diag.Addr())
	}

	req, err := buildRequest(a.cfg, repo, opts)
	if err != nil {
		return err
	}

	req, err = req.Normalize()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = a.cfg.Analysis.Timeout
	}

	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcomes, err := a.engine.Start(req)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !flags.quiet {
		bar = newProgressBar(os.Stderr)
	}

	result, err := awaitResult(ctx, outcomes, func() (progress.Snapshot, bool) {
		return a.engine.Progress(req.Key())
	}, bar)
	if err != nil {
		return err
	}

	return writeResult(cmd.OutOrStdout(), result, opts)
}

// buildRequest merges command flags over the analysis section of cfg.
func buildRequest(cfg *config.Config, repo string, opts *AnalyzeOptions) (engine.Request, error) {
	analysis := cfg.Analysis

	if opts.Branch != "" {
		analysis.Branch = opts.Branch
	}

	if opts.Since != "" {
		analysis.Since = opts.Since
	}

	if opts.Until != "" {
		analysis.Until = opts.Until
	}

	window, err := analysis.Window()
	if err != nil {
		return engine.Request{}, err
	}

	aliases, err := analysis.Aliases()
	if err != nil {
		return engine.Request{}, err
	}

	if opts.AliasesFile != "" {
		groups, loadErr := identity.LoadGroups(opts.AliasesFile)
		if loadErr != nil {
			return engine.Request{}, loadErr
		}

		aliases = append(aliases, groups...)
	}

	aliases = append(aliases, parseAliasFlags(opts.Aliases)...)

	hidden := analysis.HiddenFilter()
	hidden.Patterns = append(hidden.Patterns, opts.Hidden...)
	hidden.HideVendored = hidden.HideVendored || opts.HideVendored

	return engine.Request{
		Repository: repo,
		Branch:     analysis.Branch,
		Reason:     refresh.InvocationReason(opts.Reason),
		Hidden:     hidden,
		Aliases:    aliases,
		Window:     window,
	}, nil
}

func parseAliasFlags(values []string) [][]string {
	groups := make([][]string, 0, len(values))

	for _, value := range values {
		groups = append(groups, strings.Split(value, aliasSeparator))
	}

	return groups
}

func newProgressBar(w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions64(-1,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(progressWidth),
		progressbar.OptionSetDescription("[cyan]"+progress.StatusStarting.String()+"[reset]"),
		progressbar.OptionSetWriter(w),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]#[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: "-",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// awaitResult waits for the single outcome of a background run, polling its
// progress into bar. bar may be nil.
func awaitResult(
	ctx context.Context,
	outcomes <-chan engine.Outcome,
	poll func() (progress.Snapshot, bool),
	bar *progressbar.ProgressBar,
) (*engine.Result, error) {
	ticker := time.NewTicker(progressPoll)
	defer ticker.Stop()

	for {
		select {
		case outcome := <-outcomes:
			if bar != nil {
				_ = bar.Finish()
			}

			return outcome.Result, outcome.Err
		case <-ctx.Done():
			if bar != nil {
				_ = bar.Exit()
			}

			return nil, fmt.Errorf("%w: %w", engine.ErrAborted, context.Cause(ctx))
		case <-ticker.C:
			snapshot, ok := poll()
			if ok && bar != nil {
				updateBar(bar, snapshot)
			}
		}
	}
}

func updateBar(bar *progressbar.ProgressBar, snapshot progress.Snapshot) {
	if snapshot.TotalCommits > 0 && bar.GetMax64() != snapshot.TotalCommits {
		bar.ChangeMax64(snapshot.TotalCommits)
	}

	bar.Describe("[cyan]" + snapshot.Status.String() + "[reset]")
	_ = bar.Set64(snapshot.ProcessedCommits)
}

func writeResult(stdout io.Writer, result *engine.Result, opts *AnalyzeOptions) error {
	write := func(w io.Writer) error {
		if opts.File != "" {
			return renderFile(w, result, opts.File, opts.Format, opts.Top)
		}

		return render(w, result, opts.Format, opts.Top)
	}

	if opts.Output == "" {
		return write(stdout)
	}

	file, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, outputFilePerm)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}

	renderErr := write(file)
	closeErr := file.Close()

	return errors.Join(renderErr, closeErr)
}
