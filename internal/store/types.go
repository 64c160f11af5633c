// Package store provides the Vector Index (HNSW) and Metadata Store (SQLite)
// persistence layers.
package store

import (
	"context"
	"fmt"
	"time"
)

// ContentType represents the type of content in a chunk.
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
)

// ChunkType is the closed chunk-type vocabulary: whole_file
// chunks are the fallback when no other strategy clears min_tokens; function
// and class come from the code chunker's AST strategy; module is an
// uncovered-lines run within a code file; section is a markdown heading
// block; window is the sliding-window fallback.
type ChunkType string

const (
	ChunkTypeWholeFile ChunkType = "whole_file"
	ChunkTypeFunction  ChunkType = "function"
	ChunkTypeClass     ChunkType = "class"
	ChunkTypeModule    ChunkType = "module"
	ChunkTypeSection   ChunkType = "section"
	ChunkTypeWindow    ChunkType = "window"
)

// SymbolType represents the type of code symbol.
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeType      SymbolType = "type"
	SymbolTypeVariable  SymbolType = "variable"
	SymbolTypeConstant  SymbolType = "constant"
	SymbolTypeMethod    SymbolType = "method"
)

// Symbol is a named definition discovered in a file: extracted by
// cheap pattern/parsing, not required to match chunk boundaries.
type Symbol struct {
	FileID     string
	Name       string
	Type       SymbolType
	StartLine  int
	EndLine    int
	Signature  string // For functions
	DocComment string
}

// Chunk is the Metadata Store's persisted record of a chunk.
// VectorID is nil until the chunk has been embedded and inserted into the
// Vector Index; it is the integer arena index coder/hnsw assigned the
// vector, not the chunk's own string ID.
type Chunk struct {
	ID          string // content-addressable: SHA256(file_path + content_hash)
	FileID      string // parent file ID
	FilePath    string // relative to a configured root
	ChunkType   ChunkType
	Name        string // symbolic name; empty for window/whole_file chunks and uncovered-line module chunks
	Content     string // full content with surrounding context (code only)
	RawContent  string // exact file bytes in [LineStart, LineEnd], no reformatting
	Context     string // imports, package decl (code chunks only)
	ContentType ContentType
	Language    string
	StartLine   int // 1-indexed, inclusive
	EndLine     int // inclusive
	Preview     string
	VectorID    *int64
	Symbols     []*Symbol
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// File is the Metadata Store's persisted record of a scanned file.
type File struct {
	ID          string // content-addressable: SHA256(relative_path)
	Path        string // relative to the configured root
	Size        int64
	ModTime     time.Time
	ContentHash string // 256-bit digest over raw file bytes
	FileType    string // python, markdown, json, yaml, javascript, typescript, other
	Language    string // chunker parser selector, broader than FileType
	IndexedAt   time.Time
}

// MetadataStore is the durable relational store owning file, chunk, and
// symbol records plus the meta key-value table. Each
// indexing batch is atomic with respect to read-only queries.
type MetadataStore interface {
	// File operations
	SaveFiles(ctx context.Context, files []*File) error
	GetFileByPath(ctx context.Context, path string) (*File, error)
	GetFileByID(ctx context.Context, id string) (*File, error)
	GetAllFiles(ctx context.Context) ([]*File, error)
	ListFilesByType(ctx context.Context, fileType string) ([]*File, error)
	DeleteFile(ctx context.Context, fileID string) error // cascades to chunks
	DeleteAllFiles(ctx context.Context) error

	// Chunk operations
	SaveChunks(ctx context.Context, chunks []*Chunk) error
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
	GetChunksByFile(ctx context.Context, fileID string) ([]*Chunk, error)
	DeleteChunksByFile(ctx context.Context, fileID string) error
	SetChunkVectorID(ctx context.Context, chunkID string, vectorID int64) error
	// MaxVectorID returns the highest vector_id currently persisted, or 0
	// when no chunk has been embedded yet. Seeds the engine's monotonic
	// vector-id counter so new ids never collide with live ones.
	MaxVectorID(ctx context.Context) (int64, error)

	// Symbol operations
	SaveSymbols(ctx context.Context, fileID string, symbols []*Symbol) error
	SearchSymbols(ctx context.Context, name string, limit int) ([]*Symbol, error)
	DeleteSymbolsByFile(ctx context.Context, fileID string) error

	// State operations (key-value store for runtime/build state)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

// Meta table keys.
const (
	MetaKeyLastBuildISO  = "last_build_iso"
	MetaKeyMerkleRootHex = "merkle_root_hex"
	MetaKeyVectorDim     = "vector_dim"
)

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension; it must match the embedder's
	// output width (768 by default).
	Dimensions int

	// Quantization names a vector precision: "f32", "f16", "i8" (default:
	// "f16"). HNSWStore does not read it and always stores float32 vectors.
	Quantization string

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean) (default: "cos")
	Metric string

	// M is HNSW max connections per layer (default: 32)
	M int

	// EfConstruction is an HNSW build-time search width (default: 128).
	// HNSWStore does not read it.
	EfConstruction int

	// EfSearch is HNSW query-time search width (default: 64)
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Quantization:   "f16",
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorStore provides semantic search using HNSW algorithm.
type VectorStore interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds k nearest neighbors to query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all vector IDs in the store (for consistency checks)
	AllIDs() []string

	// Contains checks if ID exists.
	Contains(id string) bool

	// Count returns number of vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'compass scan --force-rebuild')", e.Expected, e.Got)
}

// ErrIndexCorrupt indicates the on-disk Vector Index failed its version
// check at load and requires a full rebuild.
type ErrIndexCorrupt struct {
	Path   string
	Reason string
}

func (e ErrIndexCorrupt) Error() string {
	return fmt.Sprintf("vector index at %s is corrupt: %s (run 'compass scan --force-rebuild')", e.Path, e.Reason)
}

// IndexVersion is the on-disk format version for the Vector Index file. A
// mismatch on load is fatal and non-recoverable.
const IndexVersion = 1
