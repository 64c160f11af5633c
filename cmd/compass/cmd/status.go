package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report index size, last build time, and a file-type histogram",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()
			logger := newLogger()

			eng, err := openEngine(ctx, logger)
			if err != nil {
				return fmt.Errorf("open engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			st, err := eng.Status(ctx)
			if err != nil {
				c.SilenceUsage = true
				return exitWithKind(c, err)
			}

			if jsonOutput {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			out := c.OutOrStdout()
			fmt.Fprintf(out, "files:    %d\n", st.FilesIndexed)
			fmt.Fprintf(out, "chunks:   %d\n", st.ChunksIndexed)
			fmt.Fprintf(out, "symbols:  %d\n", st.SymbolsIndexed)
			fmt.Fprintf(out, "vectors:  %d\n", st.VectorsIndexed)
			fmt.Fprintf(out, "merkle:   %s\n", st.MerkleRootHex)
			fmt.Fprintf(out, "data_dir: %s\n", st.DataDir)
			if !st.LastBuildTime.IsZero() {
				fmt.Fprintf(out, "last_build: %s\n", st.LastBuildTime.Format(time.RFC3339))
			}
			for _, fc := range st.FileTypeCounts {
				fmt.Fprintf(out, "  %-12s %d\n", fc.FileType, fc.Count)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}
