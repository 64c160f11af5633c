// Package quickindex implements the lexical fast path: filename,
// path-fragment, and symbol lookup that never touches the embedding
// backend, so it stays responsive even when the embedding service is down
// or slow. It wraps bleve/v2 with a custom tokenizer and stop-word filter
// registered against bleve's registry, scoring filename, path, and symbol
// fields with independent boosts instead of full-text document content.
package quickindex

import "time"

// Entry is one file's worth of lexical signal: its record plus the symbols
// discovered in it. A file with zero symbols (failed chunking, or a file
// type with no extractor) is still indexed by filename and path.
type Entry struct {
	FileID      string
	FilePath    string
	FileType    string
	ModifiedAt  time.Time
	SymbolNames []string
}

// SearchParams is a single quick-search request.
type SearchParams struct {
	Query      string
	TopK       int
	FileTypes  []string // empty = no filter
	Directory  string   // relative-path prefix containment; empty = no filter
	RecentDays int      // 0 = no filter
}

// QuickResult is a single ranked hit.
type QuickResult struct {
	FileID        string
	FilePath      string
	FileType      string
	ModifiedAt    time.Time
	Score         float64
	MatchedSymbol string // set when a symbol match contributed to the score
}

// Status reports the index's current size for the status operation.
type Status struct {
	DocumentCount int
}

// Ranking weights for the composite score: exact filename match, filename
// fragment match, symbol-name match, and path-fragment match, each weighted.
// Exact filename beats every other signal; path-fragment is the weakest
// since every file under a matching directory shares it.
const (
	ExactFilenameBoost    = 8.0
	FilenameFragmentBoost = 4.0
	SymbolNameBoost       = 3.0
	PathFragmentBoost     = 1.0
)
