package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"github.com/filecompass/compass/internal/cerrors"
)

// SQLiteMetadataStore implements MetadataStore on top of modernc.org/sqlite:
// WAL mode with a single writer connection over the
// files/chunks/symbols/meta schema.
type SQLiteMetadataStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	path TEXT UNIQUE NOT NULL,
	file_type TEXT NOT NULL,
	language TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	modified_at DATETIME NOT NULL,
	content_hash TEXT NOT NULL,
	indexed_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_file_type ON files(file_type);
CREATE INDEX IF NOT EXISTS idx_files_path ON files(path);
CREATE INDEX IF NOT EXISTS idx_files_modified_at ON files(modified_at);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	chunk_type TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	raw_content TEXT NOT NULL,
	context TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	line_start INTEGER NOT NULL,
	line_end INTEGER NOT NULL,
	preview TEXT NOT NULL DEFAULT '',
	vector_id INTEGER UNIQUE,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_file_id ON chunks(file_id);
CREATE INDEX IF NOT EXISTS idx_chunks_vector_id ON chunks(vector_id);

CREATE TABLE IF NOT EXISTS symbols (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	symbol_type TEXT NOT NULL,
	line_number INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_file_id ON symbols(file_id);

CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewSQLiteMetadataStore opens (creating if absent) the metadata database at
// path. An empty path opens an in-memory database, used by tests.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, cerrors.Wrap(cerrors.Internal, "create metadata store directory", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "open metadata store", err)
	}

	// Single writer, many readers: serializes structure-modifying
	// transactions without external locking.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, cerrors.Wrap(cerrors.Internal, "set metadata store pragma", err)
		}
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, cerrors.Wrap(cerrors.IndexCorrupt, "initialize metadata schema", err)
	}

	return &SQLiteMetadataStore{db: db, path: path}, nil
}

func (s *SQLiteMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// SaveFiles upserts file records. Each call runs inside a single
// transaction so concurrent read-only queries see either the pre- or
// post-batch state.
func (s *SQLiteMetadataStore) SaveFiles(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerrors.Wrap(cerrors.Internal, "begin save-files transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (id, path, file_type, language, size_bytes, modified_at, content_hash, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path=excluded.path, file_type=excluded.file_type, language=excluded.language,
			size_bytes=excluded.size_bytes, modified_at=excluded.modified_at,
			content_hash=excluded.content_hash, indexed_at=excluded.indexed_at
	`)
	if err != nil {
		return cerrors.Wrap(cerrors.Internal, "prepare save-files statement", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, f.ID, f.Path, f.FileType, f.Language, f.Size, f.ModTime, f.ContentHash, f.IndexedAt); err != nil {
			return cerrors.Wrap(cerrors.Internal, fmt.Sprintf("save file %s", f.Path), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return cerrors.Wrap(cerrors.Internal, "commit save-files transaction", err)
	}
	return nil
}

func (s *SQLiteMetadataStore) GetFileByPath(ctx context.Context, path string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, file_type, language, size_bytes, modified_at, content_hash, indexed_at
		FROM files WHERE path = ?`, path)
	return scanFile(row)
}

func (s *SQLiteMetadataStore) GetFileByID(ctx context.Context, id string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, file_type, language, size_bytes, modified_at, content_hash, indexed_at
		FROM files WHERE id = ?`, id)
	return scanFile(row)
}

func (s *SQLiteMetadataStore) GetAllFiles(ctx context.Context) ([]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, file_type, language, size_bytes, modified_at, content_hash, indexed_at FROM files`)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "query all files", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

func (s *SQLiteMetadataStore) ListFilesByType(ctx context.Context, fileType string) ([]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, file_type, language, size_bytes, modified_at, content_hash, indexed_at
		FROM files WHERE file_type = ?`, fileType)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "query files by type", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

// DeleteFile cascades to chunks and symbols via the foreign-key ON DELETE
// CASCADE clauses; the caller remains responsible for issuing the matching
// Vector Index deletions in the same build step.
func (s *SQLiteMetadataStore) DeleteFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID); err != nil {
		return cerrors.Wrap(cerrors.Internal, "delete file", err)
	}
	return nil
}

func (s *SQLiteMetadataStore) DeleteAllFiles(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM files`); err != nil {
		return cerrors.Wrap(cerrors.Internal, "delete all files", err)
	}
	return nil
}

func (s *SQLiteMetadataStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerrors.Wrap(cerrors.Internal, "begin save-chunks transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, file_id, chunk_type, name, content, raw_content, context,
			content_type, language, line_start, line_end, preview, vector_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chunk_type=excluded.chunk_type, name=excluded.name, content=excluded.content,
			raw_content=excluded.raw_content, context=excluded.context, content_type=excluded.content_type,
			language=excluded.language, line_start=excluded.line_start, line_end=excluded.line_end,
			preview=excluded.preview, vector_id=excluded.vector_id, metadata=excluded.metadata,
			updated_at=excluded.updated_at
	`)
	if err != nil {
		return cerrors.Wrap(cerrors.Internal, "prepare save-chunks statement", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		var vectorID interface{}
		if c.VectorID != nil {
			vectorID = *c.VectorID
		}
		metaJSON := encodeMetadata(c.Metadata)
		if _, err := stmt.ExecContext(ctx, c.ID, c.FileID, string(c.ChunkType), c.Name, c.Content, c.RawContent,
			c.Context, string(c.ContentType), c.Language, c.StartLine, c.EndLine, c.Preview, vectorID, metaJSON,
			c.CreatedAt, c.UpdatedAt); err != nil {
			return cerrors.Wrap(cerrors.Internal, fmt.Sprintf("save chunk %s", c.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return cerrors.Wrap(cerrors.Internal, "commit save-chunks transaction", err)
	}
	return nil
}

func (s *SQLiteMetadataStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, chunkSelectQuery+` WHERE id = ?`, id)
	return scanChunk(row)
}

func (s *SQLiteMetadataStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, chunkSelectQuery+fmt.Sprintf(` WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "query chunks by id", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteMetadataStore) GetChunksByFile(ctx context.Context, fileID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, chunkSelectQuery+` WHERE file_id = ? ORDER BY line_start ASC`, fileID)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "query chunks by file", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteMetadataStore) DeleteChunksByFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return cerrors.Wrap(cerrors.Internal, "delete chunks by file", err)
	}
	return nil
}

func (s *SQLiteMetadataStore) SetChunkVectorID(ctx context.Context, chunkID string, vectorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `UPDATE chunks SET vector_id = ? WHERE id = ?`, vectorID, chunkID); err != nil {
		return cerrors.Wrap(cerrors.Internal, "set chunk vector id", err)
	}
	return nil
}

// MaxVectorID returns the highest assigned vector_id, 0 when none exists.
func (s *SQLiteMetadataStore) MaxVectorID(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var maxID int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(vector_id), 0) FROM chunks`).Scan(&maxID)
	if err != nil {
		return 0, cerrors.Wrap(cerrors.Internal, "query max vector id", err)
	}
	return maxID, nil
}

func (s *SQLiteMetadataStore) SaveSymbols(ctx context.Context, fileID string, symbols []*Symbol) error {
	if len(symbols) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerrors.Wrap(cerrors.Internal, "begin save-symbols transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (file_id, name, symbol_type, line_number) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return cerrors.Wrap(cerrors.Internal, "prepare save-symbols statement", err)
	}
	defer stmt.Close()

	for _, sym := range symbols {
		if _, err := stmt.ExecContext(ctx, fileID, sym.Name, string(sym.Type), sym.StartLine); err != nil {
			return cerrors.Wrap(cerrors.Internal, fmt.Sprintf("save symbol %s", sym.Name), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return cerrors.Wrap(cerrors.Internal, "commit save-symbols transaction", err)
	}
	return nil
}

func (s *SQLiteMetadataStore) SearchSymbols(ctx context.Context, name string, limit int) ([]*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, name, symbol_type, line_number FROM symbols
		WHERE name LIKE ? ORDER BY (name = ?) DESC, name ASC LIMIT ?`,
		"%"+name+"%", name, limit)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "search symbols", err)
	}
	defer rows.Close()

	var out []*Symbol
	for rows.Next() {
		var sym Symbol
		if err := rows.Scan(&sym.FileID, &sym.Name, &sym.Type, &sym.StartLine); err != nil {
			return nil, cerrors.Wrap(cerrors.Internal, "scan symbol row", err)
		}
		out = append(out, &sym)
	}
	return out, rows.Err()
}

func (s *SQLiteMetadataStore) DeleteSymbolsByFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM symbols WHERE file_id = ?`, fileID); err != nil {
		return cerrors.Wrap(cerrors.Internal, "delete symbols by file", err)
	}
	return nil
}

func (s *SQLiteMetadataStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", cerrors.Wrap(cerrors.Internal, "get state", err)
	}
	return value, nil
}

func (s *SQLiteMetadataStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return cerrors.Wrap(cerrors.Internal, "set state", err)
	}
	return nil
}

const chunkSelectQuery = `
	SELECT id, file_id, chunk_type, name, content, raw_content, context, content_type,
		language, line_start, line_end, preview, vector_id, metadata, created_at, updated_at
	FROM chunks`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var chunkType, contentType string
	var vectorID sql.NullInt64
	var metaJSON string

	err := row.Scan(&c.ID, &c.FileID, &chunkType, &c.Name, &c.Content, &c.RawContent, &c.Context,
		&contentType, &c.Language, &c.StartLine, &c.EndLine, &c.Preview, &vectorID, &metaJSON,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, cerrors.New(cerrors.NotFound, "chunk not found")
	}
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "scan chunk row", err)
	}

	c.ChunkType = ChunkType(chunkType)
	c.ContentType = ContentType(contentType)
	if vectorID.Valid {
		v := vectorID.Int64
		c.VectorID = &v
	}
	c.Metadata = decodeMetadata(metaJSON)
	return &c, nil
}

func scanChunks(rows *sql.Rows) ([]*Chunk, error) {
	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanFile(row rowScanner) (*File, error) {
	var f File
	err := row.Scan(&f.ID, &f.Path, &f.FileType, &f.Language, &f.Size, &f.ModTime, &f.ContentHash, &f.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, cerrors.New(cerrors.NotFound, "file not found")
	}
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "scan file row", err)
	}
	return &f, nil
}

func scanFiles(rows *sql.Rows) ([]*File, error) {
	var out []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func encodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeMetadata(s string) map[string]string {
	m := make(map[string]string)
	if s == "" || s == "{}" {
		return m
	}
	_ = json.Unmarshal([]byte(s), &m)
	return m
}
