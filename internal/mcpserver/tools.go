package mcpserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/filecompass/compass/internal/query"
	"github.com/filecompass/compass/internal/quickindex"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query        string   `json:"query" jsonschema:"the search query to execute"`
	TopK         int      `json:"top_k,omitempty" jsonschema:"maximum number of results, 1-50, default 10"`
	FileTypes    []string `json:"file_types,omitempty" jsonschema:"restrict results to these file types, e.g. python, markdown"`
	Directory    string   `json:"directory,omitempty" jsonschema:"restrict results to a relative-path-prefix directory"`
	GitOnly      bool     `json:"git_only,omitempty" jsonschema:"restrict results to git-tracked files"`
	MinRelevance float64  `json:"min_relevance,omitempty" jsonschema:"minimum relevance in [0,1]"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
}

// SearchResultOutput is one ranked, explained search hit.
type SearchResultOutput struct {
	FilePath  string   `json:"file_path"`
	LineStart int      `json:"line_start"`
	LineEnd   int      `json:"line_end"`
	FileType  string   `json:"file_type"`
	ChunkType string   `json:"chunk_type"`
	ChunkName string   `json:"chunk_name,omitempty"`
	Preview   string   `json:"preview"`
	Relevance float64  `json:"relevance"`
	Summary   string   `json:"summary,omitempty"`
	Reasons   []string `json:"match_reasons,omitempty"`
}

func toSearchResultOutput(r query.Result) SearchResultOutput {
	reasons := make([]string, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		reasons = append(reasons, string(reason.Type))
	}
	return SearchResultOutput{
		FilePath:  r.FilePath,
		LineStart: r.LineStart,
		LineEnd:   r.LineEnd,
		FileType:  r.FileType,
		ChunkType: r.ChunkType,
		ChunkName: r.ChunkName,
		Preview:   r.Preview,
		Relevance: r.Relevance,
		Summary:   r.Summary,
		Reasons:   reasons,
	}
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	results, err := s.engine.Search(ctx, query.SearchParams{
		Query: input.Query,
		TopK:  input.TopK,
		Filters: query.Filters{
			FileTypes:    input.FileTypes,
			Directory:    input.Directory,
			GitOnly:      input.GitOnly,
			MinRelevance: input.MinRelevance,
		},
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, toSearchResultOutput(r))
	}
	return nil, out, nil
}

// QuickSearchInput is the input schema for the quick_search tool.
type QuickSearchInput struct {
	Query      string   `json:"query" jsonschema:"the filename/path/symbol query to execute"`
	TopK       int      `json:"top_k,omitempty" jsonschema:"maximum number of results, default 20"`
	FileTypes  []string `json:"file_types,omitempty" jsonschema:"restrict results to these file types"`
	Directory  string   `json:"directory,omitempty" jsonschema:"restrict results to a relative-path-prefix directory"`
	RecentDays int      `json:"recent_days,omitempty" jsonschema:"only files modified within this many days"`
}

// QuickSearchOutput is the output schema for the quick_search tool.
type QuickSearchOutput struct {
	Results []QuickResultOutput `json:"results"`
}

// QuickResultOutput is one ranked lexical/symbol hit.
type QuickResultOutput struct {
	FilePath      string  `json:"file_path"`
	FileType      string  `json:"file_type"`
	Score         float64 `json:"score"`
	MatchedSymbol string  `json:"matched_symbol,omitempty"`
}

func (s *Server) handleQuickSearch(ctx context.Context, _ *mcp.CallToolRequest, input QuickSearchInput) (*mcp.CallToolResult, QuickSearchOutput, error) {
	results, err := s.engine.QuickSearch(ctx, quickindex.SearchParams{
		Query:      input.Query,
		TopK:       input.TopK,
		FileTypes:  input.FileTypes,
		Directory:  input.Directory,
		RecentDays: input.RecentDays,
	})
	if err != nil {
		return nil, QuickSearchOutput{}, MapError(err)
	}

	out := QuickSearchOutput{Results: make([]QuickResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, QuickResultOutput{
			FilePath:      r.FilePath,
			FileType:      r.FileType,
			Score:         r.Score,
			MatchedSymbol: r.MatchedSymbol,
		})
	}
	return nil, out, nil
}

// PreviewInput is the input schema for the preview tool.
type PreviewInput struct {
	Path      string `json:"path" jsonschema:"path to preview, absolute or relative to the project root"`
	LineStart int    `json:"line_start,omitempty" jsonschema:"first line to include, 1-based; omit for start of file"`
	LineEnd   int    `json:"line_end,omitempty" jsonschema:"last line to include, inclusive; omit for end of file"`
}

// PreviewOutput is the output schema for the preview tool.
type PreviewOutput struct {
	Path      string   `json:"path"`
	LineStart int      `json:"line_start"`
	LineEnd   int      `json:"line_end"`
	Lines     []string `json:"lines"`
}

func (s *Server) handlePreview(ctx context.Context, _ *mcp.CallToolRequest, input PreviewInput) (*mcp.CallToolResult, PreviewOutput, error) {
	result, err := s.engine.Preview(ctx, input.Path, input.LineStart, input.LineEnd)
	if err != nil {
		return nil, PreviewOutput{}, MapError(err)
	}
	return nil, PreviewOutput{
		Path:      result.Path,
		LineStart: result.LineStart,
		LineEnd:   result.LineEnd,
		Lines:     result.Lines,
	}, nil
}

// StatusInput is the (empty) input schema for the status tool.
type StatusInput struct{}

// StatusOutput is the output schema for the status tool.
type StatusOutput struct {
	FilesIndexed   int                   `json:"files_indexed"`
	ChunksIndexed  int                   `json:"chunks_indexed"`
	SymbolsIndexed int                   `json:"symbols_indexed"`
	VectorsIndexed int                   `json:"vectors_indexed"`
	MerkleRootHex  string                `json:"merkle_root_hex"`
	LastBuildISO   string                `json:"last_build_iso,omitempty"`
	FileTypeCounts []FileTypeCountOutput `json:"file_type_counts"`
}

// FileTypeCountOutput is one bucket of the status file-type histogram.
type FileTypeCountOutput struct {
	FileType string `json:"file_type"`
	Count    int    `json:"count"`
}

func (s *Server) handleStatus(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	st, err := s.engine.Status(ctx)
	if err != nil {
		return nil, StatusOutput{}, MapError(err)
	}

	out := StatusOutput{
		FilesIndexed:   st.FilesIndexed,
		ChunksIndexed:  st.ChunksIndexed,
		SymbolsIndexed: st.SymbolsIndexed,
		VectorsIndexed: st.VectorsIndexed,
		MerkleRootHex:  st.MerkleRootHex,
	}
	if !st.LastBuildTime.IsZero() {
		out.LastBuildISO = st.LastBuildTime.Format(time.RFC3339)
	}
	for _, fc := range st.FileTypeCounts {
		out.FileTypeCounts = append(out.FileTypeCounts, FileTypeCountOutput{FileType: fc.FileType, Count: fc.Count})
	}
	return nil, out, nil
}

// ScanInput is the input schema for the scan tool.
type ScanInput struct {
	ForceRebuild bool `json:"force_rebuild,omitempty" jsonschema:"discard persisted state and rebuild from scratch instead of incrementally updating"`
}

// ScanOutput is the output schema for the scan tool.
type ScanOutput struct {
	FilesIndexed    int     `json:"files_indexed,omitempty"`
	FilesAdded      int     `json:"files_added"`
	FilesModified   int     `json:"files_modified"`
	FilesRemoved    int     `json:"files_removed"`
	ChunksIndexed   int     `json:"chunks_indexed"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (s *Server) handleScan(ctx context.Context, _ *mcp.CallToolRequest, input ScanInput) (*mcp.CallToolResult, ScanOutput, error) {
	if input.ForceRebuild {
		st, e := s.engine.FullBuild(ctx)
		if e != nil {
			return nil, ScanOutput{}, MapError(e)
		}
		return nil, ScanOutput{
			FilesIndexed:    st.FilesIndexed,
			ChunksIndexed:   st.ChunksIndexed,
			DurationSeconds: st.DurationSeconds,
		}, nil
	}

	st, err := s.engine.IncrementalBuild(ctx)
	if err != nil {
		return nil, ScanOutput{}, MapError(err)
	}
	return nil, ScanOutput{
		FilesAdded:      st.FilesAdded,
		FilesModified:   st.FilesModified,
		FilesRemoved:    st.FilesRemoved,
		ChunksIndexed:   st.ChunksIndexed,
		DurationSeconds: st.DurationSeconds,
	}, nil
}
