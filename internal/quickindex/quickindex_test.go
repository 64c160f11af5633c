package quickindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries(now time.Time) []Entry {
	return []Entry{
		{
			FileID:      "f1",
			FilePath:    "internal/auth/login_handler.go",
			FileType:    "go",
			ModifiedAt:  now,
			SymbolNames: []string{"HandleLogin", "validateCredentials"},
		},
		{
			FileID:      "f2",
			FilePath:    "docs/auth.md",
			FileType:    "markdown",
			ModifiedAt:  now.Add(-72 * time.Hour),
			SymbolNames: nil,
		},
		{
			FileID:      "f3",
			FilePath:    "internal/billing/invoice.py",
			FileType:    "python",
			ModifiedAt:  now.Add(-240 * time.Hour),
			SymbolNames: []string{"generate_invoice"},
		},
	}
}

func newTestIndex(t *testing.T) *QuickIndex {
	t.Helper()
	qi, err := NewQuickIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = qi.Close() })
	return qi
}

func TestQuickIndex_ExactFilenameMatchRanksFirst(t *testing.T) {
	qi := newTestIndex(t)
	now := time.Now()
	require.NoError(t, qi.Index(context.Background(), sampleEntries(now)))

	results, err := qi.Search(context.Background(), SearchParams{Query: "invoice.py", TopK: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "f3", results[0].FileID)
}

func TestQuickIndex_SymbolNameMatch(t *testing.T) {
	qi := newTestIndex(t)
	now := time.Now()
	require.NoError(t, qi.Index(context.Background(), sampleEntries(now)))

	results, err := qi.Search(context.Background(), SearchParams{Query: "validateCredentials", TopK: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "f1", results[0].FileID)
}

func TestQuickIndex_FilterByFileType(t *testing.T) {
	qi := newTestIndex(t)
	now := time.Now()
	require.NoError(t, qi.Index(context.Background(), sampleEntries(now)))

	results, err := qi.Search(context.Background(), SearchParams{
		Query:     "auth",
		TopK:      10,
		FileTypes: []string{"go"},
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "go", r.FileType)
	}
}

func TestQuickIndex_FilterByDirectory(t *testing.T) {
	qi := newTestIndex(t)
	now := time.Now()
	require.NoError(t, qi.Index(context.Background(), sampleEntries(now)))

	results, err := qi.Search(context.Background(), SearchParams{
		Query:     "handler",
		TopK:      10,
		Directory: "internal/auth",
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Contains(t, r.FilePath, "internal/auth")
	}
}

func TestQuickIndex_FilterByRecentDays(t *testing.T) {
	qi := newTestIndex(t)
	now := time.Now()
	require.NoError(t, qi.Index(context.Background(), sampleEntries(now)))

	results, err := qi.Search(context.Background(), SearchParams{
		Query:      "auth",
		TopK:       10,
		RecentDays: 10,
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "f3", r.FileID, "file modified 10 days ago should be excluded by RecentDays filter")
	}
}

func TestQuickIndex_DeleteRemovesFromResults(t *testing.T) {
	qi := newTestIndex(t)
	now := time.Now()
	require.NoError(t, qi.Index(context.Background(), sampleEntries(now)))
	require.NoError(t, qi.Delete(context.Background(), []string{"f3"}))

	results, err := qi.Search(context.Background(), SearchParams{Query: "invoice", TopK: 10})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "f3", r.FileID)
	}
}

func TestQuickIndex_EmptyQueryReturnsNoResults(t *testing.T) {
	qi := newTestIndex(t)
	results, err := qi.Search(context.Background(), SearchParams{Query: "   "})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQuickIndex_GetStatus(t *testing.T) {
	qi := newTestIndex(t)
	now := time.Now()
	require.NoError(t, qi.Index(context.Background(), sampleEntries(now)))

	status := qi.GetStatus()
	assert.Equal(t, 3, status.DocumentCount)
}

func TestTokenizePathLike_SplitsCamelAndSnakeCase(t *testing.T) {
	tokens := TokenizePathLike("getUserById_v2.go")
	assert.Contains(t, tokens, "get")
	assert.Contains(t, tokens, "user")
	assert.Contains(t, tokens, "by")
	assert.Contains(t, tokens, "id")
	assert.Contains(t, tokens, "go")
}
