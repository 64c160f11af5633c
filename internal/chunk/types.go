package chunk

import (
	"context"
	"time"
)

// Chunk sizing defaults; token counts are approximated at 4 chars/token.
const (
	DefaultMaxChunkTokens = 512
	DefaultOverlapTokens  = 64 // ~12.5% of the default window
	MinChunkTokens        = 100
	TokensPerChar         = 4
)

// ContentType distinguishes how a chunk's text should be read downstream.
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
)

// ChunkType is the closed vocabulary a chunker must tag every chunk with:
// whole_file is the fallback when nothing else clears MinChunkTokens,
// function/class come from AST-aware strategies, module groups lines an
// AST strategy left uncovered, section is a markdown heading block, and
// window is the sliding-window fallback for untyped content.
type ChunkType string

const (
	ChunkTypeWholeFile ChunkType = "whole_file"
	ChunkTypeFunction  ChunkType = "function"
	ChunkTypeClass     ChunkType = "class"
	ChunkTypeModule    ChunkType = "module"
	ChunkTypeSection   ChunkType = "section"
	ChunkTypeWindow    ChunkType = "window"
)

// Chunk is the unit of embedding and retrieval: a line-bounded region of
// one file plus the context needed to embed it well.
type Chunk struct {
	ID          string            // content-addressed, stable across line shifts
	FilePath    string            // Relative to project root
	ChunkType   ChunkType         // whole_file, function, class, module, section, window
	Name        string            // symbolic name; empty for window/whole_file chunks and uncovered-line module chunks
	Content     string            // Full content with context
	RawContent  string            // Just the symbol, no context (code only)
	Context     string            // Imports, package decl (code only)
	ContentType ContentType       // code, markdown, text
	Language    string            // go, typescript, python, etc.
	StartLine   int               // 1-indexed
	EndLine     int               // Inclusive
	Preview     string            // short human-readable snippet, truncated with "..."
	VectorID    *int64            // set once embedded and inserted into the vector index
	Symbols     []*Symbol         // Functions, classes, etc.
	Metadata    map[string]string // Custom metadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FileInput is one file handed to a chunking strategy.
type FileInput struct {
	Path     string // Relative path
	Content  []byte // File content
	Language string // go, typescript, python, etc.
}

// Chunker is a single chunking strategy.
type Chunker interface {
	// Chunk splits a file into semantic chunks.
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)

	// SupportedExtensions lists the file extensions this chunker handles.
	SupportedExtensions() []string
}

// SymbolType is the kind of definition a Symbol names.
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

// Symbol is a named definition found by the extractor.
type Symbol struct {
	Name       string
	Type       SymbolType
	StartLine  int
	EndLine    int
	Signature  string
	DocComment string
}

// Tree is a parsed file: the converted AST plus the source it spans.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is one AST node, copied out of the parser's representation.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a zero-indexed position in the source.
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// LanguageConfig names the grammar node types that define each kind of
// symbol in one language, plus the file extensions that select it.
type LanguageConfig struct {
	Name       string
	Extensions []string

	FunctionTypes  []string
	MethodTypes    []string
	ClassTypes     []string
	InterfaceTypes []string
	TypeDefTypes   []string
	ConstantTypes  []string
	VariableTypes  []string

	// NameField is the grammar's field name for a symbol's identifier.
	NameField string
}
