package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPreviewCmd() *cobra.Command {
	var lineStart, lineEnd int

	cmd := &cobra.Command{
		Use:   "preview <path>",
		Short: "Print a line-numbered content slice of a file under the project root",
		Long: `Preview resolves path against the project root, rejecting anything
outside it, and prints the requested line range (or the whole file when
line-start/line-end are omitted).`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			logger := newLogger()

			eng, err := openEngine(ctx, logger)
			if err != nil {
				return fmt.Errorf("open engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			result, err := eng.Preview(ctx, args[0], lineStart, lineEnd)
			if err != nil {
				c.SilenceUsage = true
				return exitWithKind(c, err)
			}

			out := c.OutOrStdout()
			for i, line := range result.Lines {
				fmt.Fprintf(out, "%6d\t%s\n", result.LineStart+i, line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&lineStart, "line-start", 0, "First line to include (1-based; 0 = start of file)")
	cmd.Flags().IntVar(&lineEnd, "line-end", 0, "Last line to include (inclusive; 0 = end of file)")

	return cmd
}
