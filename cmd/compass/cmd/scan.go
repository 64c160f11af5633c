package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filecompass/compass/internal/cerrors"
	"github.com/filecompass/compass/internal/engine"
)

func newScanCmd() *cobra.Command {
	var forceRebuild bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Build or incrementally update the index",
		Long: `Scan walks the configured project roots, chunks every file, embeds each
chunk, and writes the result into the Vector Index and Metadata Store.

Without --force-rebuild, scan diffs the current file tree's Merkle root against the
last persisted build and only reprocesses added, modified, or removed files.
With --force-rebuild, scan discards all persisted state and rebuilds from scratch.`,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()
			logger := newLogger()

			eng, err := openEngine(ctx, logger)
			if err != nil {
				return fmt.Errorf("open engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			var stats *engine.BuildStats
			var buildErr error
			if forceRebuild {
				stats, buildErr = eng.FullBuild(ctx)
			} else {
				stats, buildErr = eng.IncrementalBuild(ctx)
			}
			if buildErr != nil {
				c.SilenceUsage = true
				return exitWithKind(c, buildErr)
			}

			if jsonOutput {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			fmt.Fprintf(c.OutOrStdout(), "%+v\n", stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&forceRebuild, "force-rebuild", false, "Discard persisted state and rebuild from scratch")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output build statistics as JSON")

	return cmd
}

// exitWithKind prints a structured error and sets the exit code matching
// its cerrors.Kind without leaking internal detail.
func exitWithKind(c *cobra.Command, err error) error {
	fmt.Fprint(c.ErrOrStderr(), cerrors.FormatForCLI(err))
	c.SilenceErrors = true
	return &cliError{err: err}
}

type cliError struct{ err error }

func (e *cliError) Error() string { return e.err.Error() }
