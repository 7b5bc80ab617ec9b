// Package main provides the entry point for the codetree CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codetree/cmd/codetree/commands"
	"github.com/Sumatoshi-tech/codetree/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "codetree",
		Short: "codetree - git history hydration for file tree visualizations",
		Long: `codetree walks the history of a git branch and hydrates the snapshot file
tree with per-file authorship, following renames and caching the result.

Commands:
  analyze   Hydrate (or reuse) the tree of a repository branch
  serve     Run the analysis engine behind an HTTP API
  cache     Manage cached results`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	commands.AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(commands.NewAnalyzeCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewCacheCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintln(os.Stdout, version.String())
		},
	}
}
