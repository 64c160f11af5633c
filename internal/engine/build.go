package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/filecompass/compass/internal/cerrors"
	"github.com/filecompass/compass/internal/chunk"
	"github.com/filecompass/compass/internal/merkle"
	"github.com/filecompass/compass/internal/quickindex"
	"github.com/filecompass/compass/internal/scanner"
	"github.com/filecompass/compass/internal/store"
)

// scannedFile is the intermediate record produced by walking the tree:
// enough to decide added/modified/removed without yet paying for chunking
// or embedding.
type scannedFile struct {
	info        *scanner.FileInfo
	contentHash string
}

// FullBuild discards all persisted state and rebuilds it from the current
// file tree.
func (e *Engine) FullBuild(ctx context.Context) (*BuildStats, error) {
	if err := e.lockBuild(ctx); err != nil {
		return nil, err
	}
	defer e.unlockBuild()

	buildID := uuid.NewString()
	start := time.Now()
	e.logger.Info("full build starting", "build_id", buildID)

	scanned, err := e.scanTree(ctx)
	if err != nil {
		return nil, err
	}

	if old, err := e.metadata.GetAllFiles(ctx); err == nil {
		ids := make([]string, len(old))
		for i, f := range old {
			ids[i] = f.ID
		}
		_ = e.quick.Delete(ctx, ids)
	}
	if err := e.metadata.DeleteAllFiles(ctx); err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "clear metadata store for full rebuild", err)
	}
	for _, id := range e.vectors.AllIDs() {
		_ = e.vectors.Delete(ctx, []string{id})
	}

	stats := &BuildStats{}
	var (
		leaves []merkle.Leaf
		mu     sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workerCount())
	for _, sf := range scanned {
		sf := sf
		g.Go(func() error {
			chunksIndexed, leaf, err := e.indexOneFile(gctx, sf)
			if err != nil {
				e.logger.Warn("failed to index file during full build", "path", sf.info.Path, "error", err)
				return nil
			}
			mu.Lock()
			stats.FilesIndexed++
			stats.ChunksIndexed += chunksIndexed
			leaves = append(leaves, leaf)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "index files during full build", err)
	}

	newTree := merkle.Build(leaves)
	if err := e.persistBuild(newTree); err != nil {
		return nil, err
	}

	stats.DurationSeconds = time.Since(start).Seconds()
	e.logger.Info("full build complete", "build_id", buildID, "files_indexed", stats.FilesIndexed, "duration_seconds", stats.DurationSeconds)
	return stats, nil
}

// IncrementalBuild diffs the current file tree against the last persisted
// Merkle tree and only re-processes what changed.
func (e *Engine) IncrementalBuild(ctx context.Context) (*BuildStats, error) {
	if err := e.lockBuild(ctx); err != nil {
		return nil, err
	}
	defer e.unlockBuild()

	buildID := uuid.NewString()
	start := time.Now()
	e.logger.Info("incremental build starting", "build_id", buildID)

	scanned, err := e.scanTree(ctx)
	if err != nil {
		return nil, err
	}

	currentByPath := make(map[string]*scannedFile, len(scanned))
	var leaves []merkle.Leaf
	for _, sf := range scanned {
		currentByPath[sf.info.Path] = sf
		chunkCount := e.existingChunkCount(ctx, sf.info.Path)
		leaves = append(leaves, merkle.Leaf{
			RelativePath: sf.info.Path,
			ContentHash:  sf.contentHash,
			ChunkCount:   chunkCount,
			ModifiedAt:   sf.info.ModTime,
		})
	}

	newTree := merkle.Build(leaves)
	diff := merkle.DiffTrees(e.merkleTree, newTree)

	stats := &BuildStats{
		FilesAdded:    len(diff.Added),
		FilesModified: len(diff.Modified),
		FilesRemoved:  len(diff.Removed),
	}

	for _, path := range diff.Removed {
		if err := e.removeFile(ctx, path); err != nil {
			e.logger.Warn("failed to remove stale file", "path", path, "error", err)
		}
	}

	modifiedToReindex := make([]string, 0, len(diff.Modified))
	for _, path := range diff.Modified {
		if err := e.removeFile(ctx, path); err != nil {
			e.logger.Warn("failed to clear modified file's prior state", "path", path, "error", err)
			continue
		}
		modifiedToReindex = append(modifiedToReindex, path)
	}

	var chunksIndexed int64
	var mu sync.Mutex
	indexedLeaves := make(map[string]merkle.Leaf)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workerCount())

	for _, path := range modifiedToReindex {
		path := path
		sf := currentByPath[path]
		g.Go(func() error {
			n, leaf, err := e.indexOneFile(gctx, sf)
			if err != nil {
				e.logger.Warn("failed to reindex modified file", "path", path, "error", err)
				return nil
			}
			mu.Lock()
			chunksIndexed += int64(n)
			indexedLeaves[path] = leaf
			mu.Unlock()
			return nil
		})
	}
	for _, path := range diff.Added {
		path := path
		sf := currentByPath[path]
		g.Go(func() error {
			n, leaf, err := e.indexOneFile(gctx, sf)
			if err != nil {
				e.logger.Warn("failed to index added file", "path", path, "error", err)
				return nil
			}
			mu.Lock()
			chunksIndexed += int64(n)
			indexedLeaves[path] = leaf
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "index changed files during incremental build", err)
	}
	stats.ChunksIndexed = int(chunksIndexed)

	// Re-derive the tree from the chunk counts just written, so the next
	// incremental build does not see re-indexed files as modified again.
	for i, l := range leaves {
		if nl, ok := indexedLeaves[l.RelativePath]; ok {
			leaves[i] = nl
		}
	}
	newTree = merkle.Build(leaves)

	if err := e.persistBuild(newTree); err != nil {
		return nil, err
	}

	stats.DurationSeconds = time.Since(start).Seconds()
	e.logger.Info("incremental build complete", "build_id", buildID,
		"files_added", stats.FilesAdded, "files_modified", stats.FilesModified,
		"files_removed", stats.FilesRemoved, "duration_seconds", stats.DurationSeconds)
	return stats, nil
}

// scanTree walks the project root and computes each file's content hash,
// the cheap part of indexing shared by full and incremental builds.
func (e *Engine) scanTree(ctx context.Context) ([]*scannedFile, error) {
	results, err := e.scanner.Scan(ctx, &scanner.ScanOptions{
		RootDir:          e.root,
		IncludePatterns:  e.cfg.Paths.Include,
		ExcludePatterns:  e.cfg.Paths.Exclude,
		RespectGitignore: true,
	})
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "scan project tree", err)
	}

	var (
		scanned []*scannedFile
		mu      sync.Mutex
	)

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(e.workerCount())

	for res := range results {
		if res.Error != nil {
			e.logger.Warn("scan error", "error", res.Error)
			continue
		}
		fi := res.File
		g.Go(func() error {
			data, err := os.ReadFile(fi.AbsPath)
			if err != nil {
				e.logger.Warn("failed to read file during scan", "path", fi.Path, "error", err)
				return nil
			}
			hash := contentHashHex(data)

			mu.Lock()
			scanned = append(scanned, &scannedFile{info: fi, contentHash: hash})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return scanned, nil
}

func (e *Engine) workerCount() int {
	if e.cfg.Index.Workers > 0 {
		return e.cfg.Index.Workers
	}
	return 4
}

// existingChunkCount looks up the chunk count last persisted for path,
// without re-chunking it, so the incremental Merkle leaf reflects the
// durable state rather than forcing every file through the chunker just to
// compute a diff.
func (e *Engine) existingChunkCount(ctx context.Context, path string) int {
	existing, err := e.metadata.GetFileByPath(ctx, path)
	if err != nil {
		return 0
	}
	chunks, err := e.metadata.GetChunksByFile(ctx, existing.ID)
	if err != nil {
		return 0
	}
	return len(chunks)
}

// indexOneFile runs the per-file state machine UNKNOWN->SCANNED->CHUNKED->
// INDEXED: save the file record unconditionally, then chunk and
// embed, leaving the file SCANNED-only (zero chunks persisted for this
// build) if the content changed mid-processing, chunking failed, or
// embedding failed after retries. Vector ids come from the engine's
// persistent monotonic counter, so concurrent files and later builds
// never reuse a live id.
func (e *Engine) indexOneFile(ctx context.Context, sf *scannedFile) (chunksIndexed int, leaf merkle.Leaf, err error) {
	fi := sf.info
	leaf = merkle.Leaf{RelativePath: fi.Path, ContentHash: sf.contentHash, ModifiedAt: fi.ModTime}

	record := &store.File{
		ID:          fileIDFor(fi.Path),
		Path:        fi.Path,
		Size:        fi.Size,
		ModTime:     fi.ModTime,
		ContentHash: sf.contentHash,
		FileType:    string(fi.FileType),
		Language:    fi.Language,
		IndexedAt:   time.Now(),
	}
	if err := e.metadata.SaveFiles(ctx, []*store.File{record}); err != nil {
		return 0, leaf, cerrors.Wrap(cerrors.Internal, "save file record", err)
	}

	// Index the file by name and path before chunking, so a file left
	// SCANNED-only below is still found by quick search; a fully indexed
	// file's entry is replaced at the end with one carrying symbol names.
	if err := e.quick.Index(ctx, []quickindex.Entry{{
		FileID:     record.ID,
		FilePath:   record.Path,
		FileType:   record.FileType,
		ModifiedAt: record.ModTime,
	}}); err != nil {
		e.logger.Warn("failed to update quick index", "path", fi.Path, "error", err)
	}

	// Re-read and re-hash immediately before chunking: if the content
	// changed since the scan pass, leave the file scanned-only for this
	// build rather than index stale or torn content; the next incremental
	// build picks it up as modified.
	data, err := os.ReadFile(fi.AbsPath)
	if err != nil {
		e.logger.Warn("file vanished before chunking", "path", fi.Path, "error", err)
		return 0, leaf, nil
	}
	if contentHashHex(data) != sf.contentHash {
		e.logger.Warn("file changed mid-scan, deferring to next build", "path", fi.Path)
		return 0, leaf, nil
	}

	chunks, err := e.chunker.Chunk(ctx, &chunk.FileInput{Path: fi.Path, Content: data, Language: fi.Language})
	if err != nil {
		e.logger.Warn("chunking failed, file left SCANNED-only", "path", fi.Path, "error", err)
		return 0, leaf, nil
	}
	if len(chunks) == 0 {
		return 0, leaf, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		e.logger.Warn("embedding batch failed, file left SCANNED-only", "path", fi.Path, "error", err)
		return 0, leaf, nil
	}

	storeChunks := make([]*store.Chunk, 0, len(chunks))
	vectorIDs := make([]string, 0, len(chunks))
	vecs := make([][]float32, 0, len(chunks))
	var symbols []*store.Symbol

	for i, c := range chunks {
		vid := e.nextVectorID.Add(1)
		sc := toStoreChunk(c, record.ID, vid)
		storeChunks = append(storeChunks, sc)
		vectorIDs = append(vectorIDs, sc.ID)
		vecs = append(vecs, vectors[i])

		for _, sym := range c.Symbols {
			symbols = append(symbols, &store.Symbol{
				FileID:     record.ID,
				Name:       sym.Name,
				Type:       store.SymbolType(sym.Type),
				StartLine:  sym.StartLine,
				EndLine:    sym.EndLine,
				Signature:  sym.Signature,
				DocComment: sym.DocComment,
			})
		}
	}

	if err := e.vectors.Add(ctx, vectorIDs, vecs); err != nil {
		return 0, leaf, cerrors.Wrap(cerrors.Internal, "insert vectors", err)
	}
	if err := e.metadata.SaveChunks(ctx, storeChunks); err != nil {
		return 0, leaf, cerrors.Wrap(cerrors.Internal, "save chunks", err)
	}
	if len(symbols) > 0 {
		if err := e.metadata.SaveSymbols(ctx, record.ID, symbols); err != nil {
			return 0, leaf, cerrors.Wrap(cerrors.Internal, "save symbols", err)
		}
	}

	var symbolNames []string
	for _, s := range symbols {
		symbolNames = append(symbolNames, s.Name)
	}
	if err := e.quick.Index(ctx, []quickindex.Entry{{
		FileID:      record.ID,
		FilePath:    record.Path,
		FileType:    record.FileType,
		ModifiedAt:  record.ModTime,
		SymbolNames: symbolNames,
	}}); err != nil {
		e.logger.Warn("failed to update quick index", "path", fi.Path, "error", err)
	}

	leaf.ChunkCount = len(storeChunks)
	return len(storeChunks), leaf, nil
}

// removeFile cascade-deletes a path's file, chunks, symbols, and vectors
// .
func (e *Engine) removeFile(ctx context.Context, path string) error {
	existing, err := e.metadata.GetFileByPath(ctx, path)
	if err != nil {
		if cerrors.Is(err, cerrors.NotFound) {
			return nil
		}
		return err
	}

	chunks, err := e.metadata.GetChunksByFile(ctx, existing.ID)
	if err != nil {
		return err
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if len(ids) > 0 {
		if err := e.vectors.Delete(ctx, ids); err != nil {
			return err
		}
	}

	if err := e.metadata.DeleteFile(ctx, existing.ID); err != nil {
		return err
	}
	return e.quick.Delete(ctx, []string{existing.ID})
}

// persistBuild runs once every file has been processed: it saves the vector
// index (temp file, then rename) and the Merkle tree, then records the build
// metadata. It does not isolate the build from searches: the metadata-store,
// vector-index and quick-index writes for each file are visible to
// concurrent searches as soon as that file has been processed.
func (e *Engine) persistBuild(newTree *merkle.Tree) error {
	if err := e.vectors.Save(e.paths.hnsw); err != nil {
		return cerrors.Wrap(cerrors.Internal, "persist vector index", err)
	}
	if err := merkle.Persist(newTree, e.paths.merkle); err != nil {
		return cerrors.Wrap(cerrors.Internal, "persist merkle state", err)
	}

	e.merkleTree = newTree
	ctx := context.Background()
	_ = e.metadata.SetState(ctx, store.MetaKeyLastBuildISO, time.Now().UTC().Format(time.RFC3339))
	_ = e.metadata.SetState(ctx, store.MetaKeyMerkleRootHex, newTree.RootHex())
	_ = e.metadata.SetState(ctx, store.MetaKeyVectorDim, strconv.Itoa(e.embedder.Dimensions()))
	return nil
}

func (e *Engine) lockBuild(ctx context.Context) error {
	locked, err := e.buildLock.TryLockContext(ctx, 200*time.Millisecond)
	if err != nil {
		return cerrors.Wrap(cerrors.Internal, "acquire build lock", err)
	}
	if !locked {
		return cerrors.New(cerrors.Internal, "another build is already in progress")
	}
	return nil
}

func (e *Engine) unlockBuild() {
	_ = e.buildLock.Unlock()
}

func toStoreChunk(c *chunk.Chunk, fileID string, vectorID int64) *store.Chunk {
	vid := vectorID
	return &store.Chunk{
		ID:          c.ID,
		FileID:      fileID,
		FilePath:    c.FilePath,
		ChunkType:   store.ChunkType(c.ChunkType),
		Name:        c.Name,
		Content:     c.Content,
		RawContent:  c.RawContent,
		Context:     c.Context,
		ContentType: store.ContentType(c.ContentType),
		Language:    c.Language,
		StartLine:   c.StartLine,
		EndLine:     c.EndLine,
		Preview:     c.Preview,
		VectorID:    &vid,
		Metadata:    c.Metadata,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func fileIDFor(relPath string) string {
	sum := sha256.Sum256([]byte(relPath))
	return hex.EncodeToString(sum[:])
}

func contentHashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
