package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecompass/compass/internal/cerrors"
	"github.com/filecompass/compass/internal/store"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeVectorSearcher struct {
	results []*store.VectorResult
}

func (f *fakeVectorSearcher) Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error) {
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}

type fakeMetadataStore struct {
	chunks map[string]*store.Chunk
	files  map[string]*store.File
}

func (f *fakeMetadataStore) GetChunk(ctx context.Context, id string) (*store.Chunk, error) {
	c, ok := f.chunks[id]
	if !ok {
		return nil, cerrors.New(cerrors.NotFound, "chunk not found")
	}
	return c, nil
}

func (f *fakeMetadataStore) GetFileByID(ctx context.Context, id string) (*store.File, error) {
	file, ok := f.files[id]
	if !ok {
		return nil, cerrors.New(cerrors.NotFound, "file not found")
	}
	return file, nil
}

func newFixture() (*fakeEmbedder, *fakeVectorSearcher, *fakeMetadataStore) {
	files := map[string]*store.File{
		"file-auth": {ID: "file-auth", Path: "internal/auth/login.go", FileType: "go", ModTime: time.Unix(1000, 0)},
		"file-docs": {ID: "file-docs", Path: "docs/readme.md", FileType: "markdown", ModTime: time.Unix(2000, 0)},
	}
	chunks := map[string]*store.Chunk{
		"chunk-1": {ID: "chunk-1", FileID: "file-auth", ChunkType: store.ChunkTypeFunction, Name: "Authenticate", Preview: "func Authenticate(token string) error", StartLine: 10, EndLine: 30},
		"chunk-2": {ID: "chunk-2", FileID: "file-docs", ChunkType: store.ChunkTypeSection, Name: "", Preview: "## Setup", StartLine: 1, EndLine: 5},
	}
	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	searcher := &fakeVectorSearcher{results: []*store.VectorResult{
		{ID: "chunk-1", Score: 0.91},
		{ID: "chunk-2", Score: 0.4},
		{ID: "chunk-missing", Score: 0.2}, // stale vector, should be skipped
	}}
	metadata := &fakeMetadataStore{chunks: chunks, files: files}
	return embedder, searcher, metadata
}

func TestExecutorSearchBasic(t *testing.T) {
	embedder, searcher, metadata := newFixture()
	exec := NewExecutor(embedder, searcher, metadata, nil)

	results, err := exec.Search(context.Background(), SearchParams{Query: "authenticate token", TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 2, "stale vector should be skipped")
	assert.Equal(t, "internal/auth/login.go", results[0].FilePath, "highest-relevance result first")
	assert.NotEmpty(t, results[0].Reasons, "Explain should populate reasons")
}

func TestExecutorSearchEmptyQuery(t *testing.T) {
	embedder, searcher, metadata := newFixture()
	exec := NewExecutor(embedder, searcher, metadata, nil)

	_, err := exec.Search(context.Background(), SearchParams{Query: "   "})
	assert.True(t, cerrors.Is(err, cerrors.InvalidArgument))
}

func TestExecutorSearchFileTypeFilter(t *testing.T) {
	embedder, searcher, metadata := newFixture()
	exec := NewExecutor(embedder, searcher, metadata, nil)

	results, err := exec.Search(context.Background(), SearchParams{
		Query:   "setup",
		TopK:    10,
		Filters: Filters{FileTypes: []string{"markdown"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "markdown", results[0].FileType)
}

func TestExecutorSearchDirectoryFilter(t *testing.T) {
	embedder, searcher, metadata := newFixture()
	exec := NewExecutor(embedder, searcher, metadata, nil)

	results, err := exec.Search(context.Background(), SearchParams{
		Query:   "authenticate",
		TopK:    10,
		Filters: Filters{Directory: "internal/auth"},
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "internal/auth/login.go", r.FilePath, "directory filter leaked unrelated file")
	}
}

func TestExecutorSearchMinRelevanceStrict(t *testing.T) {
	embedder, searcher, metadata := newFixture()
	exec := NewExecutor(embedder, searcher, metadata, nil)

	results, err := exec.Search(context.Background(), SearchParams{
		Query:   "authenticate",
		TopK:    10,
		Filters: Filters{MinRelevance: 0.91},
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Greater(t, r.Relevance, 0.91, "expected strict min_relevance exclusion")
	}
}

func TestExecutorSearchEmbedderError(t *testing.T) {
	embedder, searcher, metadata := newFixture()
	embedder.err = cerrors.New(cerrors.BackendUnavailable, "embedding service down")
	exec := NewExecutor(embedder, searcher, metadata, nil)

	_, err := exec.Search(context.Background(), SearchParams{Query: "anything"})
	assert.True(t, cerrors.Is(err, cerrors.BackendUnavailable))
}

type fakeGitTracker struct {
	tracked map[string]bool
}

func (f *fakeGitTracker) IsTracked(relPath string) bool {
	return f.tracked[relPath]
}

func TestExecutorSearchGitOnlyFilter(t *testing.T) {
	embedder, searcher, metadata := newFixture()
	git := &fakeGitTracker{tracked: map[string]bool{"internal/auth/login.go": true}}
	exec := NewExecutor(embedder, searcher, metadata, git)

	results, err := exec.Search(context.Background(), SearchParams{
		Query:   "authenticate setup",
		TopK:    10,
		Filters: Filters{GitOnly: true},
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "docs/readme.md", r.FilePath, "untracked file should be excluded by git_only filter")
	}
}
