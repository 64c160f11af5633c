package query

import (
	"context"
	"sort"
	"strings"

	"github.com/filecompass/compass/internal/cerrors"
	"github.com/filecompass/compass/internal/store"
)

// QueryEmbedder is the slice of embed.Embedder the executor needs: turning a
// natural-language query into the same vector space the Vector Index was
// built in.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the slice of store.VectorStore the executor needs.
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error)
}

// ChunkFileStore is the slice of store.MetadataStore the executor needs to
// join a vector hit back to its owning chunk and file record.
type ChunkFileStore interface {
	GetChunk(ctx context.Context, id string) (*store.Chunk, error)
	GetFileByID(ctx context.Context, id string) (*store.File, error)
}

// GitTracker reports whether a relative path is tracked by git. A nil
// GitTracker makes the git_tracked filter a no-op; the git_only parameter
// is best-effort since the core data model carries no VCS metadata.
type GitTracker interface {
	IsTracked(relPath string) bool
}

// Executor implements the hybrid query algorithm: embed, ANN
// over-fetch, metadata join, filter, normalize, rank, explain.
type Executor struct {
	embedder QueryEmbedder
	vectors  VectorSearcher
	metadata ChunkFileStore
	git      GitTracker
}

// NewExecutor builds an Executor over the given collaborators. git may be
// nil.
func NewExecutor(embedder QueryEmbedder, vectors VectorSearcher, metadata ChunkFileStore, git GitTracker) *Executor {
	return &Executor{embedder: embedder, vectors: vectors, metadata: metadata, git: git}
}

// Search runs the full query pipeline over the injected collaborators.
func (e *Executor) Search(ctx context.Context, params SearchParams) ([]Result, error) {
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return nil, cerrors.New(cerrors.InvalidArgument, "query must not be empty")
	}
	topK := params.TopK
	if topK <= 0 {
		topK = 10
	}
	if topK > 50 {
		topK = 50
	}

	// Step 1: embed the query.
	queryVector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	// Step 2: ask the Vector Index for top_k * over_fetch candidates.
	overfetch := topK * OverfetchMultiplier
	if overfetch < MinOverfetch {
		overfetch = MinOverfetch
	}
	candidates, err := e.vectors.Search(ctx, queryVector, overfetch)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, topK)
	for _, cand := range candidates {
		// Step 3: fetch the owning chunk and file record.
		chunk, err := e.metadata.GetChunk(ctx, cand.ID)
		if err != nil {
			if cerrors.Is(err, cerrors.NotFound) {
				continue // stale vector referencing a since-deleted chunk
			}
			return nil, err
		}
		file, err := e.metadata.GetFileByID(ctx, chunk.FileID)
		if err != nil {
			if cerrors.Is(err, cerrors.NotFound) {
				continue
			}
			return nil, err
		}

		// Step 5: the Vector Index already returns a normalized [0,1]
		// similarity; clamp defensively before filtering on it, since
		// min_relevance filters on the normalized value.
		relevance := clampRelevance(cand.Score)

		// Step 4: discard candidates failing any filter.
		if !passesFilters(params.Filters, file, relevance, e.git) {
			continue
		}

		results = append(results, Result{
			ChunkID:    chunk.ID,
			FilePath:   file.Path,
			FileType:   file.FileType,
			ChunkType:  string(chunk.ChunkType),
			ChunkName:  chunk.Name,
			Preview:    chunk.Preview,
			LineStart:  chunk.StartLine,
			LineEnd:    chunk.EndLine,
			ModifiedAt: file.ModTime,
			Relevance:  relevance,
		})
	}

	// Rank stability: relevance descending, ties by relative
	// path ascending then line_start ascending.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		if results[i].FilePath != results[j].FilePath {
			return results[i].FilePath < results[j].FilePath
		}
		return results[i].LineStart < results[j].LineStart
	})

	// Step 6: take the first top_k after filtering.
	if len(results) > topK {
		results = results[:topK]
	}

	// Step 7: hand each to the Explainer.
	for i := range results {
		reasons, summary := Explain(query, results[i])
		results[i].Reasons = reasons
		results[i].Summary = summary
	}

	return results, nil
}

// clampRelevance guards against a backend returning a score fractionally
// outside [0, 1] due to floating-point rounding.
func clampRelevance(score float32) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return float64(score)
}

func passesFilters(f Filters, file *store.File, relevance float64, git GitTracker) bool {
	if len(f.FileTypes) > 0 && !containsFold(f.FileTypes, file.FileType) {
		return false
	}
	if f.Directory != "" && !hasPathPrefix(file.Path, f.Directory) {
		return false
	}
	if f.GitOnly && git != nil && !git.IsTracked(file.Path) {
		return false
	}
	// min_relevance filter is strict: a candidate
	// exactly at the floor does not pass.
	if f.MinRelevance > 0 && relevance <= f.MinRelevance {
		return false
	}
	return true
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

// hasPathPrefix reports whether rel is under dir, treating dir as a
// directory-component prefix rather than a raw string prefix so "src"
// doesn't match "srcthing/a.go".
func hasPathPrefix(rel, dir string) bool {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return true
	}
	rel = strings.TrimPrefix(rel, "./")
	return rel == dir || strings.HasPrefix(rel, dir+"/")
}
