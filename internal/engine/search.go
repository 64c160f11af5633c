package engine

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/filecompass/compass/internal/cerrors"
	"github.com/filecompass/compass/internal/query"
	"github.com/filecompass/compass/internal/quickindex"
	"github.com/filecompass/compass/internal/store"
)

// statusCheckSymbolLimit bounds the SearchSymbols("") sweep Status uses to
// count symbols; well above any project this engine is expected to index.
const statusCheckSymbolLimit = 1_000_000

// Search runs a semantic query through the Query Executor.
func (e *Engine) Search(ctx context.Context, params query.SearchParams) ([]query.Result, error) {
	if e.vectors.Count() == 0 {
		return nil, cerrors.New(cerrors.NotIndexed, "project has not been indexed yet; run a scan first")
	}
	return e.executor.Search(ctx, params)
}

// QuickSearch runs a lexical/symbol query through the Quick Index without
// touching the embedding backend.
func (e *Engine) QuickSearch(ctx context.Context, params quickindex.SearchParams) ([]*quickindex.QuickResult, error) {
	status := e.quick.GetStatus()
	if status.DocumentCount == 0 {
		return nil, cerrors.New(cerrors.NotIndexed, "project has not been indexed yet; run a scan first")
	}
	return e.quick.Search(ctx, params)
}

// Preview returns a line-numbered slice of a file's content. The
// path-safety check runs strictly before any filesystem access, so a denied
// path never leaks existence information.
func (e *Engine) Preview(ctx context.Context, path string, lineStart, lineEnd int) (*PreviewResult, error) {
	absPath, err := e.resolveUnderRoot(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerrors.New(cerrors.NotFound, "file does not exist")
		}
		return nil, cerrors.Wrap(cerrors.Internal, "read file for preview", err)
	}

	lines := splitLines(data)
	if lineStart == 0 {
		lineStart = 1
	}
	if lineEnd == 0 {
		lineEnd = len(lines)
	}
	if lineStart < 1 || lineEnd < lineStart || lineStart > len(lines) {
		return nil, cerrors.New(cerrors.InvalidArgument, "line range out of bounds")
	}
	if lineEnd > len(lines) {
		lineEnd = len(lines)
	}

	return &PreviewResult{
		Path:      relPathUnder(e.root, absPath),
		LineStart: lineStart,
		LineEnd:   lineEnd,
		Lines:     lines[lineStart-1 : lineEnd],
	}, nil
}

// resolveUnderRoot resolves path (absolute or project-relative) to an
// absolute path and rejects anything outside the project root, without
// revealing the root itself in the error: the denial message must not
// disclose the allowed roots.
func (e *Engine) resolveUnderRoot(path string) (string, error) {
	var candidate string
	if filepath.IsAbs(path) {
		candidate = filepath.Clean(path)
	} else {
		candidate = filepath.Clean(filepath.Join(e.root, path))
	}

	rootWithSep := e.root + string(filepath.Separator)
	if candidate != e.root && !strings.HasPrefix(candidate, rootWithSep) {
		return "", cerrors.New(cerrors.AccessDenied, "path is not accessible")
	}
	return candidate, nil
}

func relPathUnder(root, abs string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

func splitLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

// Status reports index size, last build time, and a file-type histogram
// .
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	files, err := e.metadata.GetAllFiles(ctx)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "list files for status", err)
	}

	histogram := make(map[string]int)
	chunksIndexed := 0
	for _, f := range files {
		histogram[f.FileType]++
		chunks, err := e.metadata.GetChunksByFile(ctx, f.ID)
		if err == nil {
			chunksIndexed += len(chunks)
		}
	}

	symbols, err := e.metadata.SearchSymbols(ctx, "", statusCheckSymbolLimit)
	symbolsIndexed := 0
	if err == nil {
		symbolsIndexed = len(symbols)
	}

	var lastBuild time.Time
	if iso, err := e.metadata.GetState(ctx, store.MetaKeyLastBuildISO); err == nil && iso != "" {
		if t, parseErr := time.Parse(time.RFC3339, iso); parseErr == nil {
			lastBuild = t
		}
	}
	merkleRoot, _ := e.metadata.GetState(ctx, store.MetaKeyMerkleRootHex)

	counts := make([]FileTypeCount, 0, len(histogram))
	for ft, n := range histogram {
		counts = append(counts, FileTypeCount{FileType: ft, Count: n})
	}

	return &Status{
		FilesIndexed:   len(files),
		ChunksIndexed:  chunksIndexed,
		SymbolsIndexed: symbolsIndexed,
		VectorsIndexed: e.vectors.Count(),
		LastBuildTime:  lastBuild,
		MerkleRootHex:  merkleRoot,
		FileTypeCounts: counts,
		DataDir:        e.dataDir,
	}, nil
}
