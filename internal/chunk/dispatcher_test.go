package chunk

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RoutesGoToCodeChunker(t *testing.T) {
	source := `package main

import "fmt"

func Hello() {
	fmt.Println("Hello")
}
`
	d := NewDispatcher()
	defer d.Close()

	chunks, err := d.Chunk(context.Background(), &FileInput{
		Path:     "main.go",
		Content:  []byte(source),
		Language: "go",
	})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkTypeFunction, chunks[0].ChunkType)
	assert.Equal(t, "Hello", chunks[0].Name)
}

func TestDispatcher_RoutesMarkdownToMarkdownChunker(t *testing.T) {
	source := "# Title\n\nSome body text.\n\n## Section\n\nMore text.\n"
	d := NewDispatcher()
	defer d.Close()

	chunks, err := d.Chunk(context.Background(), &FileInput{
		Path:     "README.md",
		Content:  []byte(source),
		Language: "markdown",
	})

	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, ChunkTypeSection, chunks[0].ChunkType)
}

func TestDispatcher_RoutesUnknownLanguageToWindow(t *testing.T) {
	// Large enough that the window output clears the viability floor.
	var b strings.Builder
	b.WriteString("{\n")
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&b, "  \"setting_number_%03d\": \"a reasonably descriptive value string\",\n", i)
	}
	b.WriteString("  \"end\": true\n}\n")

	d := NewDispatcher()
	defer d.Close()

	chunks, err := d.Chunk(context.Background(), &FileInput{
		Path:     "config.json",
		Content:  []byte(b.String()),
		Language: "json",
	})

	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, ChunkTypeWindow, chunks[0].ChunkType)
}

func TestDispatcher_TinyUntypedFileBecomesWholeFile(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	chunks, err := d.Chunk(context.Background(), &FileInput{
		Path:     "config.json",
		Content:  []byte(`{"key": "value"}`),
		Language: "json",
	})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkTypeWholeFile, chunks[0].ChunkType)
}

func TestDispatcher_FallsBackToWholeFileWhenNoSymbols(t *testing.T) {
	// A Go file with only a package clause and import produces zero symbol
	// nodes from CodeChunker (no func/type/const/var declarations), which
	// the dispatcher must still cover with a whole_file chunk.
	source := "package main\n\nimport \"fmt\"\n"
	d := NewDispatcherWithOptions(DispatcherOptions{MinChunkTokens: 0})
	defer d.Close()

	chunks, err := d.Chunk(context.Background(), &FileInput{
		Path:     "vars.go",
		Content:  []byte(source),
		Language: "go",
	})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkTypeWholeFile, chunks[0].ChunkType)
	assert.Equal(t, ContentTypeCode, chunks[0].ContentType)
}

func TestDispatcher_EmptyContentReturnsNoChunks(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	chunks, err := d.Chunk(context.Background(), &FileInput{Path: "empty.go", Language: "go"})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
