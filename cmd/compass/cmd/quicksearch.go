package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/filecompass/compass/internal/quickindex"
)

func newQuickSearchCmd() *cobra.Command {
	var (
		topK       int
		fileTypes  []string
		directory  string
		recentDays int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "quick-search <query>",
		Short: "Lexical/symbol search without the embedding backend",
		Long: `Quick-search answers sub-100ms filename, path-fragment, and symbol
queries directly against the Quick Index, without calling the embedding
service. Use it when the embedding backend is unavailable or the query is
well served by exact/fragment matching.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			logger := newLogger()

			eng, err := openEngine(ctx, logger)
			if err != nil {
				return fmt.Errorf("open engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			results, err := eng.QuickSearch(ctx, quickindex.SearchParams{
				Query:      strings.Join(args, " "),
				TopK:       topK,
				FileTypes:  fileTypes,
				Directory:  directory,
				RecentDays: recentDays,
			})
			if err != nil {
				c.SilenceUsage = true
				return exitWithKind(c, err)
			}

			if jsonOutput {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			printQuickResults(c, results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "n", 10, "Maximum number of results")
	cmd.Flags().StringSliceVar(&fileTypes, "file-types", nil, "Filter by file type (repeatable)")
	cmd.Flags().StringVar(&directory, "directory", "", "Filter to a relative-path-prefix directory")
	cmd.Flags().IntVar(&recentDays, "recent-days", 0, "Only files modified within this many days")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func printQuickResults(c *cobra.Command, results []*quickindex.QuickResult) {
	out := c.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return
	}
	for i, r := range results {
		line := fmt.Sprintf("%d. %s  [%s]  score=%.3f", i+1, r.FilePath, r.FileType, r.Score)
		if r.MatchedSymbol != "" {
			line += fmt.Sprintf("  symbol=%s", r.MatchedSymbol)
		}
		fmt.Fprintln(out, line)
	}
}
