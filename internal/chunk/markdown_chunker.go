package chunk

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// MarkdownChunkerOptions sets the token budget handed to the sliding-window
// fallback for heading-less documents.
type MarkdownChunkerOptions struct {
	MaxChunkTokens int
	OverlapTokens  int
}

// MarkdownChunker splits a document into one section chunk per heading.
// A heading's section runs until the next heading of equal or higher level
// (or EOF), so a deeper subsection is contained in its parent's section and
// also gets a section of its own. A document with no headings at all falls
// through to the sliding window.
type MarkdownChunker struct {
	options MarkdownChunkerOptions
}

// headingPattern matches ATX headings, levels 1-6.
var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// heading is one matched heading line, index zero-based.
type heading struct {
	index int
	level int
	title string
}

// NewMarkdownChunker creates a markdown chunker with the default budget.
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{})
}

// NewMarkdownChunkerWithOptions creates a markdown chunker, filling zero
// options with the package defaults.
func NewMarkdownChunkerWithOptions(opts MarkdownChunkerOptions) *MarkdownChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	return &MarkdownChunker{options: opts}
}

// Close is a no-op; the markdown chunker holds no parser state. It exists
// so the dispatcher can close every strategy uniformly.
func (c *MarkdownChunker) Close() {}

// SupportedExtensions returns the markdown extension set.
func (c *MarkdownChunker) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

// Chunk splits a markdown file into section chunks, one per heading.
func (c *MarkdownChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	lines := strings.Split(content, "\n")
	headings := scanHeadings(lines)

	if len(headings) == 0 {
		window := NewWindowChunker(c.options.MaxChunkTokens, c.options.OverlapTokens)
		return window.Chunk(file, ContentTypeMarkdown), nil
	}

	now := time.Now()
	chunks := make([]*Chunk, 0, len(headings))
	for i, h := range headings {
		if chunk := c.sectionChunk(file, lines, headings, i, h, now); chunk != nil {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

// scanHeadings collects every heading line with its level and title.
func scanHeadings(lines []string) []heading {
	var headings []heading
	for i, line := range lines {
		if match := headingPattern.FindStringSubmatch(line); match != nil {
			headings = append(headings, heading{
				index: i,
				level: len(match[1]),
				title: strings.TrimSpace(match[2]),
			})
		}
	}
	return headings
}

// sectionChunk builds the chunk for headings[i], or nil when the section
// has no body. The section ends at the next heading of equal or higher
// level; trailing blank lines are excluded so the chunk's content is
// exactly the text of its line range.
func (c *MarkdownChunker) sectionChunk(file *FileInput, lines []string, headings []heading, i int, h heading, now time.Time) *Chunk {
	end := len(lines)
	for _, later := range headings[i+1:] {
		if later.level <= h.level {
			end = later.index
			break
		}
	}

	span := lines[h.index:end]
	for len(span) > 0 && strings.TrimSpace(span[len(span)-1]) == "" {
		span = span[:len(span)-1]
	}

	// A heading with nothing under it is an empty section.
	if len(span) <= 1 {
		return nil
	}

	content := strings.Join(span, "\n")
	return &Chunk{
		ID:          generateChunkID(file.Path, content),
		FilePath:    file.Path,
		ChunkType:   ChunkTypeSection,
		Name:        h.title,
		Content:     content,
		RawContent:  content,
		ContentType: ContentTypeMarkdown,
		Language:    "markdown",
		StartLine:   h.index + 1,
		EndLine:     h.index + len(span),
		Preview:     makePreview(content),
		Metadata:    make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
