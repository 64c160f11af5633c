package chunk

import (
	"strings"
	"time"
)

// WindowChunker splits content into overlapping line-based windows. It is
// the fallback strategy used for json/yaml/other file types and for any
// code/markdown file that fails to parse. The overlap between consecutive
// windows is computed by walking the previous window's lines in reverse and
// re-including them until the overlap budget (in characters) is spent,
// rather than by a fixed line count.
type WindowChunker struct {
	MaxChunkTokens int
	OverlapTokens  int
}

// NewWindowChunker creates a WindowChunker with the given token budget,
// falling back to the package defaults when either is zero.
func NewWindowChunker(maxChunkTokens, overlapTokens int) *WindowChunker {
	if maxChunkTokens == 0 {
		maxChunkTokens = DefaultMaxChunkTokens
	}
	if overlapTokens == 0 {
		overlapTokens = DefaultOverlapTokens
	}
	return &WindowChunker{MaxChunkTokens: maxChunkTokens, OverlapTokens: overlapTokens}
}

// Chunk splits content into window chunks. It never returns an error; a
// parse-failure fallback should always be able to produce something.
func (w *WindowChunker) Chunk(file *FileInput, contentType ContentType) []*Chunk {
	content := string(file.Content)
	lines := strings.Split(content, "\n")

	totalTokens := estimateWordTokens(content)
	if totalTokens == 0 {
		return nil
	}

	charsPerToken := float64(len(content)) / float64(totalTokens)
	maxChars := int(float64(w.MaxChunkTokens) * charsPerToken)
	overlapChars := int(float64(w.OverlapTokens) * charsPerToken)
	if maxChars <= 0 {
		maxChars = 1
	}

	now := time.Now()
	var chunks []*Chunk
	var current []string
	currentChars := 0
	chunkStartLine := 1

	flush := func(endLine int) {
		content := strings.Join(current, "\n")
		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, content),
			FilePath:    file.Path,
			ChunkType:   ChunkTypeWindow,
			Content:     content,
			RawContent:  content,
			ContentType: contentType,
			Language:    file.Language,
			StartLine:   chunkStartLine,
			EndLine:     endLine,
			Preview:     makePreview(content),
			Metadata:    make(map[string]string),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	for i, line := range lines {
		lineNum := i + 1
		lineChars := len(line) + 1

		if currentChars+lineChars > maxChars && len(current) > 0 {
			flush(lineNum - 1)

			var overlapLines []string
			overlapSize := 0
			for j := len(current) - 1; j >= 0; j-- {
				prev := current[j]
				if overlapSize+len(prev) > overlapChars {
					break
				}
				overlapLines = append([]string{prev}, overlapLines...)
				overlapSize += len(prev) + 1
			}

			current = overlapLines
			currentChars = overlapSize
			chunkStartLine = lineNum - len(overlapLines)
		}

		current = append(current, line)
		currentChars += lineChars
	}

	if len(current) > 0 {
		flush(len(lines))
	}

	return chunks
}

// estimateWordTokens estimates tokens as word count times 1.3, used only by
// the window chunker to derive a stable chars-per-token ratio; the rest of
// the package uses the cheaper chars/4 approximation for size decisions that
// don't need that precision.
func estimateWordTokens(content string) int {
	words := strings.Fields(content)
	return int(float64(len(words)) * 1.3)
}
