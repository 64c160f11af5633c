package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/filecompass/compass/internal/cerrors"
)

// HTTPEmbedderConfig configures the HTTP embedding client.
type HTTPEmbedderConfig struct {
	// Host is the embedding service endpoint (default: http://localhost:11434).
	Host string

	// Model is the embedding model name sent with every request.
	Model string

	// Dimensions can be set to skip auto-detection (0 = detect from a probe
	// call made by NewHTTPEmbedder).
	Dimensions int

	// BatchSize caps how many texts are sent in a single request.
	BatchSize int

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// MaxRetries is the number of retries on a transient failure.
	MaxRetries int

	// PoolSize bounds the HTTP connection pool.
	PoolSize int
}

// DefaultHTTPEmbedderConfig returns sensible defaults matching the service
// contract: model "nomic-embed-text", dimension 768, batch size 32.
func DefaultHTTPEmbedderConfig() HTTPEmbedderConfig {
	return HTTPEmbedderConfig{
		Host:       "http://localhost:11434",
		Model:      "nomic-embed-text",
		Dimensions: DefaultDimensions,
		BatchSize:  DefaultBatchSize,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		PoolSize:   4,
	}
}

// embedRequest is the wire request: POST {model, input}.
type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string for a single text, []string for a batch
}

// embedResponse is the wire response: {embeddings}.
type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// HTTPEmbedder implements Embedder against a plain HTTP embedding service
// speaking the {model, input} / {embeddings} wire contract.
type HTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPEmbedderConfig
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder creates an HTTPEmbedder and, unless Dimensions is already
// set, detects the embedding dimension from a probe call.
func NewHTTPEmbedder(ctx context.Context, cfg HTTPEmbedderConfig) (*HTTPEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHTTPEmbedderConfig().Host
	}
	if cfg.Model == "" {
		cfg.Model = DefaultHTTPEmbedderConfig().Model
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	e := &HTTPEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}

	if e.dims == 0 {
		dims, err := e.detectDimensions(ctx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, cerrors.Wrap(cerrors.BackendUnavailable, "failed to reach embedding service", err)
		}
		e.dims = dims
	}

	return e, nil
}

func (e *HTTPEmbedder) detectDimensions(ctx context.Context) (int, error) {
	embeddings, err := e.doEmbedWithRetry(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return 0, cerrors.New(cerrors.BackendProtocol, "embedding service returned an empty embedding")
	}
	return len(embeddings[0]), nil
}

// Embed generates an embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, cerrors.New(cerrors.Internal, "embedder is closed")
	}

	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dims), nil
	}

	embeddings, err := e.doEmbedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, cerrors.New(cerrors.BackendProtocol, "embedding service returned no embedding")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts, chunking internally
// at BatchSize and substituting zero vectors for blank inputs without a
// round trip.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, cerrors.New(cerrors.Internal, "embedder is closed")
	}

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
			continue
		}
		nonEmpty = append(nonEmpty, indexedText{i, text})
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		embeddings, err := e.doEmbedWithRetry(ctx, batchTexts)
		if err != nil {
			if cerrors.GetKind(err) != "" {
				return nil, err
			}
			return nil, cerrors.Wrap(cerrors.BackendUnavailable, "failed to embed batch", err)
		}
		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
	}

	return results, nil
}

// doEmbedWithRetry wraps doEmbed with cerrors.RetryWithResult's exponential
// backoff. Each attempt gets its own timeout; classified protocol errors
// surface immediately.
func (e *HTTPEmbedder) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	cfg := cerrors.DefaultRetryConfig()
	cfg.MaxRetries = e.config.MaxRetries

	return cerrors.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
		timeoutCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
		return e.doEmbed(timeoutCtx, texts)
	})
}

// doEmbed performs a single batch embedding request.
func (e *HTTPEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	url := strings.TrimRight(e.config.Host, "/") + "/api/embed"

	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	body, err := json.Marshal(embedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "failed to marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Internal, "failed to build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.BackendUnavailable, "embedding service unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, cerrors.New(cerrors.BackendProtocol,
			fmt.Sprintf("embedding request failed with status %d: %s", resp.StatusCode, string(respBody)))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, cerrors.Wrap(cerrors.BackendProtocol, "failed to decode embedding response", err)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		// Shape violations never retry: the service answered, it just
		// answered wrong.
		if e.dims > 0 && len(emb) != e.dims {
			return nil, cerrors.New(cerrors.BackendProtocol,
				fmt.Sprintf("embedding %d has dimension %d, want %d", i, len(emb), e.dims))
		}
		embedding := make([]float32, len(emb))
		for j, v := range emb {
			// Checked after narrowing: a float64 near 1e39 is finite but
			// overflows float32 to +Inf.
			f := float32(v)
			if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
				return nil, cerrors.New(cerrors.BackendProtocol,
					fmt.Sprintf("embedding %d contains a non-finite value at index %d", i, j))
			}
			embedding[j] = f
		}
		embeddings[i] = normalizeVector(embedding)
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *HTTPEmbedder) ModelName() string {
	return e.config.Model
}

// Available checks whether the embedding service responds to a probe call.
func (e *HTTPEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}

	_, err := e.doEmbed(ctx, []string{"ping"})
	return err == nil
}

// Close releases the connection pool.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.transport != nil {
		e.transport.CloseIdleConnections()
	}
	return nil
}
