package chunk

import (
	"context"
	"time"
)

// codeLanguages is the set of Language values routed to the AST-aware
// CodeChunker. Every other language with a known ContentType routes to a
// dedicated strategy; anything else falls through to the sliding window.
var codeLanguages = map[string]bool{
	"go":         true,
	"python":     true,
	"javascript": true,
	"typescript": true,
}

// Dispatcher is the top-level Chunker: it routes a file to the strategy
// appropriate for its language (AST-aware for code, heading-based for
// markdown, sliding-window for everything else and for any parse failure),
// then guarantees every file produces at least one chunk by falling back to
// a single whole_file chunk when the chosen strategy comes up empty.
type Dispatcher struct {
	code     *CodeChunker
	markdown *MarkdownChunker
	window   *WindowChunker

	// MinTokens is the minimum chunk size that counts as viable output; a
	// file whose only chunks fall below this are treated as uncovered and
	// replaced by the whole_file fallback. Zero disables the check.
	MinTokens int
}

// DispatcherOptions configures chunk sizing shared across every strategy.
type DispatcherOptions struct {
	MaxChunkTokens int
	OverlapTokens  int
	MinChunkTokens int
}

// NewDispatcher creates a Dispatcher with default chunk sizing.
func NewDispatcher() *Dispatcher {
	return NewDispatcherWithOptions(DispatcherOptions{})
}

// NewDispatcherWithOptions creates a Dispatcher with the given chunk sizing,
// falling back to package defaults for zero fields.
func NewDispatcherWithOptions(opts DispatcherOptions) *Dispatcher {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	if opts.MinChunkTokens == 0 {
		opts.MinChunkTokens = MinChunkTokens
	}

	return &Dispatcher{
		code:      NewCodeChunkerWithOptions(CodeChunkerOptions{MaxChunkTokens: opts.MaxChunkTokens, OverlapTokens: opts.OverlapTokens}),
		markdown:  NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{MaxChunkTokens: opts.MaxChunkTokens, OverlapTokens: opts.OverlapTokens}),
		window:    NewWindowChunker(opts.MaxChunkTokens, opts.OverlapTokens),
		MinTokens: opts.MinChunkTokens,
	}
}

var _ Chunker = (*Dispatcher)(nil)

// SupportedExtensions reports every extension any strategy can parse with
// its dedicated path; the window chunker handles the rest as a fallback and
// is not reflected here.
func (d *Dispatcher) SupportedExtensions() []string {
	exts := append([]string{}, d.code.SupportedExtensions()...)
	exts = append(exts, d.markdown.SupportedExtensions()...)
	return exts
}

// Chunk routes file to the strategy matching its language/content type and
// falls back to a single whole_file chunk if that strategy produces nothing
// viable.
func (d *Dispatcher) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	chunks, err := d.dispatch(ctx, file)
	if err != nil {
		return nil, err
	}

	if d.coversContent(chunks) {
		return chunks, nil
	}

	return []*Chunk{d.wholeFileChunk(file)}, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	switch {
	case file.Language == "markdown":
		return d.markdown.Chunk(ctx, file)
	case codeLanguages[file.Language]:
		return d.code.Chunk(ctx, file)
	default:
		return d.window.Chunk(file, ContentTypeText), nil
	}
}

// coversContent reports whether the strategy's output stands on its own.
// Structural chunks (functions, classes, sections, module runs) are always
// viable no matter how small: a one-line function is still the right
// retrieval unit. Window output is only viable when at least one window
// clears MinTokens; a tiny untyped file is better served by a single
// whole_file chunk than by an undersized fragment.
func (d *Dispatcher) coversContent(chunks []*Chunk) bool {
	if len(chunks) == 0 {
		return false
	}
	for _, c := range chunks {
		if c.ChunkType != ChunkTypeWindow {
			return true
		}
	}
	if d.MinTokens <= 0 {
		return true
	}
	for _, c := range chunks {
		if estimateWordTokens(c.Content) >= d.MinTokens {
			return true
		}
	}
	return false
}

func (d *Dispatcher) wholeFileChunk(file *FileInput) *Chunk {
	content := string(file.Content)
	now := time.Now()
	lineCount := 1
	for _, r := range content {
		if r == '\n' {
			lineCount++
		}
	}

	contentType := ContentTypeText
	switch {
	case file.Language == "markdown":
		contentType = ContentTypeMarkdown
	case codeLanguages[file.Language]:
		contentType = ContentTypeCode
	}

	return &Chunk{
		ID:          generateChunkID(file.Path, content),
		FilePath:    file.Path,
		ChunkType:   ChunkTypeWholeFile,
		Content:     content,
		RawContent:  content,
		ContentType: contentType,
		Language:    file.Language,
		StartLine:   1,
		EndLine:     lineCount,
		Preview:     makePreview(content),
		Metadata:    make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Close releases resources held by the underlying strategies.
func (d *Dispatcher) Close() {
	d.code.Close()
	d.markdown.Close()
}
