package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/filecompass/compass/internal/query"
)

func newSearchCmd() *cobra.Command {
	var (
		topK         int
		fileTypes    []string
		directory    string
		gitOnly      bool
		minRelevance float64
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over the indexed project",
		Long: `Search embeds the query, over-fetches candidates from the Vector Index,
joins them against the Metadata Store, applies filters, and returns ranked,
explained results.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			logger := newLogger()

			eng, err := openEngine(ctx, logger)
			if err != nil {
				return fmt.Errorf("open engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			params := query.SearchParams{
				Query: strings.Join(args, " "),
				TopK:  topK,
				Filters: query.Filters{
					FileTypes:    fileTypes,
					Directory:    directory,
					GitOnly:      gitOnly,
					MinRelevance: minRelevance,
				},
			}

			results, err := eng.Search(ctx, params)
			if err != nil {
				c.SilenceUsage = true
				return exitWithKind(c, err)
			}

			if jsonOutput {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			printResults(c, results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "n", 10, "Maximum number of results (1-50)")
	cmd.Flags().StringSliceVar(&fileTypes, "file-types", nil, "Filter by file type (repeatable, e.g. python,markdown)")
	cmd.Flags().StringVar(&directory, "directory", "", "Filter to a relative-path-prefix directory")
	cmd.Flags().BoolVar(&gitOnly, "git-only", false, "Only return git-tracked files")
	cmd.Flags().Float64Var(&minRelevance, "min-relevance", 0, "Minimum relevance in [0,1]")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func printResults(c *cobra.Command, results []query.Result) {
	out := c.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return
	}
	for i, r := range results {
		fmt.Fprintf(out, "%d. %s:%d-%d  [%s %s]  relevance=%.3f\n",
			i+1, r.FilePath, r.LineStart, r.LineEnd, r.ChunkType, r.ChunkName, r.Relevance)
		if r.Summary != "" {
			fmt.Fprintf(out, "   %s\n", r.Summary)
		}
		fmt.Fprintf(out, "   %s\n", r.Preview)
	}
}
