package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/filecompass/compass/internal/cerrors"
	"github.com/filecompass/compass/internal/chunk"
	"github.com/filecompass/compass/internal/config"
	"github.com/filecompass/compass/internal/embed"
	"github.com/filecompass/compass/internal/merkle"
	"github.com/filecompass/compass/internal/query"
	"github.com/filecompass/compass/internal/quickindex"
	"github.com/filecompass/compass/internal/scanner"
	"github.com/filecompass/compass/internal/store"
)

const (
	hnswFileName  = "file_compass.hnsw"
	sqliteFile    = "files.db"
	merkleFile    = "merkle.state"
	quickIndexDir = "quick.bleve"
	lockFileName  = "build.lock"
)

// Engine owns every durable index component for a single project root and
// exposes the build, search, preview, and status operations over them.
type Engine struct {
	root    string
	dataDir string
	cfg     *config.Config
	logger  *slog.Logger

	scanner  *scanner.Scanner
	chunker  *chunk.Dispatcher
	embedder embed.Embedder
	metadata store.MetadataStore
	vectors  store.VectorStore
	quick    *quickindex.QuickIndex
	git      *gitTracker

	executor *query.Executor

	buildLock  *flock.Flock
	merkleTree *merkle.Tree

	// nextVectorID hands out the integer vector-id recorded on each chunk
	// row. Seeded from the store's high-water mark at open so ids stay
	// unique across builds and process restarts.
	nextVectorID atomic.Int64

	paths enginePaths
}

type enginePaths struct {
	hnsw   string
	sqlite string
	merkle string
	quick  string
	lock   string
}

// New constructs an Engine over the project rooted at root, opening (or
// creating) every persisted store under the resolved data directory.
func New(ctx context.Context, root string, cfg *config.Config, embedder embed.Embedder, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.InvalidArgument, "resolve project root", err)
	}

	dataDir, err := config.ResolveDataDir(cfg, absRoot)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "resolve data directory", err)
	}
	if err := config.EnsureDataDir(dataDir); err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "create data directory", err)
	}

	paths := enginePaths{
		hnsw:   filepath.Join(dataDir, hnswFileName),
		sqlite: filepath.Join(dataDir, sqliteFile),
		merkle: filepath.Join(dataDir, merkleFile),
		quick:  filepath.Join(dataDir, quickIndexDir),
		lock:   filepath.Join(dataDir, lockFileName),
	}

	sc, err := scanner.New()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "create scanner", err)
	}

	chunker := chunk.NewDispatcherWithOptions(chunk.DispatcherOptions{
		MaxChunkTokens: cfg.Chunk.MaxTokens,
		OverlapTokens:  overlapTokens(cfg.Chunk.MaxTokens, cfg.Chunk.OverlapRatio),
		MinChunkTokens: cfg.Chunk.MinTokens,
	})

	metadataStore, err := store.NewSQLiteMetadataStore(paths.sqlite)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "open metadata store", err)
	}

	vsCfg := store.DefaultVectorStoreConfig(embedder.Dimensions())
	if cfg.Index.M > 0 {
		vsCfg.M = cfg.Index.M
	}
	if cfg.Index.EfSearch > 0 {
		vsCfg.EfSearch = cfg.Index.EfSearch
	}
	vectorStore, err := store.NewHNSWStore(vsCfg)
	if err != nil {
		metadataStore.Close()
		return nil, cerrors.Wrap(cerrors.Internal, "create vector store", err)
	}
	if fileExists(paths.hnsw) {
		if err := vectorStore.Load(paths.hnsw); err != nil {
			metadataStore.Close()
			var corrupt store.ErrIndexCorrupt
			if errors.As(err, &corrupt) {
				return nil, cerrors.Wrap(cerrors.IndexCorrupt, "vector index failed integrity check", err)
			}
			return nil, cerrors.Wrap(cerrors.Internal, "load vector index", err)
		}
	}

	quickIdx, err := quickindex.NewQuickIndex(paths.quick)
	if err != nil {
		vectorStore.Close()
		metadataStore.Close()
		return nil, err
	}

	merkleTree, err := merkle.Load(paths.merkle)
	if err != nil {
		quickIdx.Close()
		vectorStore.Close()
		metadataStore.Close()
		return nil, cerrors.Wrap(cerrors.Internal, "load merkle state", err)
	}

	maxVectorID, err := metadataStore.MaxVectorID(ctx)
	if err != nil {
		quickIdx.Close()
		vectorStore.Close()
		metadataStore.Close()
		return nil, cerrors.Wrap(cerrors.Internal, "read vector id high-water mark", err)
	}

	git := newGitTracker(absRoot)
	executor := query.NewExecutor(embedder, vectorStore, metadataStore, git)

	eng := &Engine{
		root:       absRoot,
		dataDir:    dataDir,
		cfg:        cfg,
		logger:     logger,
		scanner:    sc,
		chunker:    chunker,
		embedder:   embedder,
		metadata:   metadataStore,
		vectors:    vectorStore,
		quick:      quickIdx,
		git:        git,
		executor:   executor,
		buildLock:  flock.New(paths.lock),
		merkleTree: merkleTree,
		paths:      paths,
	}
	eng.nextVectorID.Store(maxVectorID)
	return eng, nil
}

// Close flushes every persisted store and releases resources.
func (e *Engine) Close() error {
	var errs []error

	if err := e.vectors.Save(e.paths.hnsw); err != nil {
		errs = append(errs, fmt.Errorf("save vector index: %w", err))
	}
	if err := e.vectors.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close vector index: %w", err))
	}
	if err := e.quick.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close quick index: %w", err))
	}
	if err := e.metadata.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close metadata store: %w", err))
	}
	e.chunker.Close()

	if len(errs) > 0 {
		return cerrors.Wrap(cerrors.Internal, "engine shutdown encountered errors", fmt.Errorf("%v", errs))
	}
	return nil
}

// DataDir returns the resolved data directory backing this engine's stores.
func (e *Engine) DataDir() string { return e.dataDir }

// Root returns the absolute project root this engine indexes.
func (e *Engine) Root() string { return e.root }

func overlapTokens(maxTokens, overlapPct int) int {
	if maxTokens <= 0 || overlapPct <= 0 {
		return chunk.DefaultOverlapTokens
	}
	return maxTokens * overlapPct / 100
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
