package quickindex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/filecompass/compass/internal/cerrors"
)

const (
	// QuickTokenizerName is the registered name of the camelCase/snake_case
	// aware tokenizer shared by filename, path, and symbol fields.
	QuickTokenizerName = "quick_tokenizer"

	// QuickStopFilterName filters out filesystem- and code-noise tokens that
	// would otherwise dominate every query ("the", "src", "index",...).
	QuickStopFilterName = "quick_stop"

	// QuickAnalyzerName combines the tokenizer, lowercasing, and the stop
	// filter into the analyzer used for every tokenized field.
	QuickAnalyzerName = "quick_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(QuickTokenizerName, quickTokenizerConstructor)
	_ = registry.RegisterTokenFilter(QuickStopFilterName, quickStopFilterConstructor)
}

// DefaultStopWords filters path and extension noise that would otherwise
// swamp every ranking, since they appear in nearly every repository.
var DefaultStopWords = []string{
	"src", "lib", "internal", "pkg", "cmd", "test", "tests", "index",
	"the", "and", "for",
}

func buildStopWordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

// quickDoc is the document shape indexed into bleve, one per file.
type quickDoc struct {
	FilenameExact string    `json:"filename_exact"`
	Filename      string    `json:"filename"`
	Path          string    `json:"path"`
	Directory     string    `json:"directory"`
	FileType      string    `json:"file_type"`
	Symbols       string    `json:"symbols"`
	ModifiedAt    time.Time `json:"modified_at"`
}

// QuickIndex is a bleve-backed lexical index
// over filename, path, and symbol-name fields with per-field boosts, kept
// separate from the BM25-over-chunk-content concern the rest of the system
// doesn't have (chunk search goes through the Vector Index instead).
type QuickIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var docFields = []string{"path", "filename", "file_type", "modified_at", "symbols"}

// NewQuickIndex opens or creates the index at path. An empty path creates an
// in-memory index, used for tests and for "explain-only" tooling that never
// persists.
func NewQuickIndex(path string) (*QuickIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "failed to build quick index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, cerrors.Wrap(cerrors.Internal, "failed to create quick index directory", mkErr)
		}

		if corruptErr := checkIndexIntegrity(path); corruptErr != nil {
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, cerrors.Wrap(cerrors.IndexCorrupt, "quick index corrupt and cannot be removed", rmErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, cerrors.Wrap(cerrors.IndexCorrupt, "quick index open failed and cannot be cleared", rmErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "failed to open quick index", err)
	}

	return &QuickIndex{index: idx, path: path}, nil
}

// checkIndexIntegrity verifies the on-disk bleve index has a readable,
// non-empty index_meta.json before attempting to open it. A half-written
// index from a killed process otherwise fails Open with an opaque error.
func checkIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected end of JSON") ||
		strings.Contains(s, "error parsing mapping JSON") ||
		strings.Contains(s, "failed to load segment") ||
		strings.Contains(s, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(QuickAnalyzerName, map[string]any{
		"type":      custom.Name,
		"tokenizer": QuickTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			QuickStopFilterName,
		},
	}); err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	doc := bleve.NewDocumentMapping()

	exactField := bleve.NewTextFieldMapping()
	exactField.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("filename_exact", exactField)

	tokenizedField := func() *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = QuickAnalyzerName
		return f
	}
	doc.AddFieldMappingsAt("filename", tokenizedField())
	doc.AddFieldMappingsAt("path", tokenizedField())
	doc.AddFieldMappingsAt("symbols", tokenizedField())

	keywordField := func() *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		return f
	}
	doc.AddFieldMappingsAt("directory", keywordField())
	doc.AddFieldMappingsAt("file_type", keywordField())

	doc.AddFieldMappingsAt("modified_at", bleve.NewDateTimeFieldMapping())

	im.DefaultMapping = doc
	im.DefaultAnalyzer = QuickAnalyzerName
	return im, nil
}

// Index adds or replaces entries in the index, one document per file.
func (q *QuickIndex) Index(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return cerrors.New(cerrors.Internal, "quick index is closed")
	}

	batch := q.index.NewBatch()
	for _, e := range entries {
		doc := quickDoc{
			FilenameExact: strings.ToLower(filepath.Base(e.FilePath)),
			Filename:      filepath.Base(e.FilePath),
			Path:          e.FilePath,
			Directory:     strings.ToLower(filepath.ToSlash(filepath.Dir(e.FilePath))),
			FileType:      e.FileType,
			Symbols:       strings.Join(e.SymbolNames, " "),
			ModifiedAt:    e.ModifiedAt,
		}
		if err := batch.Index(e.FileID, doc); err != nil {
			return cerrors.Wrap(cerrors.Internal, fmt.Sprintf("failed to index %s", e.FilePath), err)
		}
	}

	if err := q.index.Batch(batch); err != nil {
		return cerrors.Wrap(cerrors.Internal, "failed to execute quick index batch", err)
	}
	return nil
}

// Delete removes entries by file ID; removed files cascade out of every
// index, including this one.
func (q *QuickIndex) Delete(ctx context.Context, fileIDs []string) error {
	if len(fileIDs) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return cerrors.New(cerrors.Internal, "quick index is closed")
	}

	batch := q.index.NewBatch()
	for _, id := range fileIDs {
		batch.Delete(id)
	}
	if err := q.index.Batch(batch); err != nil {
		return cerrors.Wrap(cerrors.Internal, "failed to delete from quick index", err)
	}
	return nil
}

// Search answers a quick-search request without consulting the Embedding
// Client, applying filters before ranking so the filtered-out majority of a
// large corpus never costs a scoring pass.
func (q *QuickIndex) Search(ctx context.Context, params SearchParams) ([]*QuickResult, error) {
	trimmed := strings.TrimSpace(params.Query)
	if trimmed == "" {
		return []*QuickResult{}, nil
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, cerrors.New(cerrors.Internal, "quick index is closed")
	}

	topK := params.TopK
	if topK <= 0 {
		topK = 20
	}

	var filters []query.Query
	if len(params.FileTypes) > 0 {
		typeQueries := make([]query.Query, 0, len(params.FileTypes))
		for _, ft := range params.FileTypes {
			tq := bleve.NewTermQuery(strings.ToLower(ft))
			tq.SetField("file_type")
			typeQueries = append(typeQueries, tq)
		}
		typeFilter := bleve.NewDisjunctionQuery(typeQueries...)
		typeFilter.SetMin(1)
		filters = append(filters, typeFilter)
	}
	if params.Directory != "" {
		dirQuery := bleve.NewPrefixQuery(strings.ToLower(filepath.ToSlash(params.Directory)))
		dirQuery.SetField("directory")
		filters = append(filters, dirQuery)
	}
	if params.RecentDays > 0 {
		from := time.Now().Add(-time.Duration(params.RecentDays) * 24 * time.Hour)
		to := time.Now().Add(time.Minute) // tolerate clock skew on just-written files
		dateQuery := bleve.NewDateRangeQuery(from, to)
		dateQuery.SetField("modified_at")
		filters = append(filters, dateQuery)
	}

	rankQuery := q.buildRankQuery(trimmed)

	var finalQuery query.Query = rankQuery
	if len(filters) > 0 {
		finalQuery = bleve.NewConjunctionQuery(append(filters, rankQuery)...)
	}

	req := bleve.NewSearchRequest(finalQuery)
	req.Size = topK
	req.Fields = docFields
	req.IncludeLocations = true

	result, err := q.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "quick index search failed", err)
	}

	results := make([]*QuickResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, hitToResult(hit))
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].ModifiedAt.Equal(results[j].ModifiedAt) {
			return results[i].FilePath < results[j].FilePath
		}
		return results[i].ModifiedAt.After(results[j].ModifiedAt)
	})

	return results, nil
}

func (q *QuickIndex) buildRankQuery(text string) query.Query {
	exact := bleve.NewTermQuery(strings.ToLower(text))
	exact.SetField("filename_exact")
	exact.SetBoost(ExactFilenameBoost)

	filenameFrag := bleve.NewMatchQuery(text)
	filenameFrag.SetField("filename")
	filenameFrag.SetBoost(FilenameFragmentBoost)

	symbol := bleve.NewMatchQuery(text)
	symbol.SetField("symbols")
	symbol.SetBoost(SymbolNameBoost)

	pathFrag := bleve.NewMatchQuery(text)
	pathFrag.SetField("path")
	pathFrag.SetBoost(PathFragmentBoost)

	disjunction := bleve.NewDisjunctionQuery(exact, filenameFrag, symbol, pathFrag)
	disjunction.SetMin(1)
	return disjunction
}

func hitToResult(hit *search.DocumentMatch) *QuickResult {
	r := &QuickResult{
		FileID: hit.ID,
		Score:  hit.Score,
	}
	if v, ok := hit.Fields["path"].(string); ok {
		r.FilePath = v
	}
	if v, ok := hit.Fields["file_type"].(string); ok {
		r.FileType = v
	}
	if v, ok := hit.Fields["modified_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			r.ModifiedAt = t
		}
	}
	if v, ok := hit.Fields["symbols"].(string); ok {
		r.MatchedSymbol = firstMatchedSymbol(hit, v)
	}
	return r
}

// firstMatchedSymbol returns the first symbol name (from the stored,
// space-joined symbols field) whose tokenization contains a term bleve
// matched in the "symbols" field, or "" if the match came from another
// field entirely.
func firstMatchedSymbol(hit *search.DocumentMatch, symbolsField string) string {
	locations, ok := hit.Locations["symbols"]
	if !ok || len(locations) == 0 {
		return ""
	}
	var matchedTerms []string
	for term := range locations {
		matchedTerms = append(matchedTerms, term)
	}

	for _, name := range strings.Fields(symbolsField) {
		tokens := TokenizePathLike(name)
		for _, token := range tokens {
			for _, term := range matchedTerms {
				if token == term {
					return name
				}
			}
		}
	}
	return ""
}

// GetStatus reports the current document count.
func (q *QuickIndex) GetStatus() Status {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return Status{}
	}
	count, _ := q.index.DocCount()
	return Status{DocumentCount: int(count)}
}

// Close releases the underlying bleve index.
func (q *QuickIndex) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	return q.index.Close()
}

// quickTokenizerConstructor builds the tokenizer bleve invokes per field.
func quickTokenizerConstructor(config map[string]any, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &pathTokenizer{}, nil
}

type pathTokenizer struct{}

func (t *pathTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := TokenizePathLike(text)

	stream := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		stream = append(stream, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return stream
}

func quickStopFilterConstructor(config map[string]any, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &stopFilter{stopWords: buildStopWordSet(DefaultStopWords)}, nil
}

type stopFilter struct {
	stopWords map[string]struct{}
}

func (f *stopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, stop := f.stopWords[strings.ToLower(string(token.Term))]; !stop {
			result = append(result, token)
		}
	}
	return result
}
