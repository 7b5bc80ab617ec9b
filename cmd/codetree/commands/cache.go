package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codetree/pkg/engine"
	"github.com/Sumatoshi-tech/codetree/pkg/observability"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached analysis results",
	}

	cmd.AddCommand(newCacheClearCommand())
	cmd.AddCommand(newCacheInfoCommand())

	return cmd
}

func newCacheClearCommand() *cobra.Command {
	var branch string

	cmd := &cobra.Command{
		Use:   "clear [repository]",
		Short: "Drop the cached result of a repository branch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := "."
			if len(args) > 0 {
				repo = args[0]
			}

			a, err := newApp(readGlobalFlags(cmd), appOptions{mode: observability.ModeCLI})
			if err != nil {
				return err
			}

			defer func() { _ = a.Close(context.Background()) }()

			if branch == "" {
				branch = a.cfg.Analysis.Branch
			}

			req, err := engine.Request{Repository: repo, Branch: branch}.Normalize()
			if err != nil {
				return err
			}

			err = a.engine.Clear(cmd.Context(), req.Key())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("cleared %s", req.Key()))

			return nil
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch whose entry is dropped (default from config, HEAD)")

	return cmd
}

func newCacheInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show where and how results are cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(readGlobalFlags(cmd), appOptions{mode: observability.ModeCLI})
			if err != nil {
				return err
			}

			defer func() { _ = a.Close(context.Background()) }()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend:        %s\n", a.cfg.Cache.Backend)
			fmt.Fprintf(out, "directory:      %s\n", a.cfg.Cache.Directory)
			fmt.Fprintf(out, "codec:          %s\n", a.cfg.Cache.Codec)
			fmt.Fprintf(out, "max entry size: %s\n", a.cfg.Cache.MaxEntrySize)

			if counter, ok := a.store.(interface{ Len() (int, error) }); ok {
				n, lenErr := counter.Len()
				if lenErr != nil {
					return lenErr
				}

				fmt.Fprintf(out, "entries:        %d\n", n)
			}

			return nil
		},
	}
}
