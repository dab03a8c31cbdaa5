package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amanmem/internal/errors"
)

// OllamaEmbedder generates embeddings through Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	modelName string
	dims      int

	mu       sync.RWMutex
	closed   bool
	lastCall time.Time
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder connects to Ollama, makes sure the model is present
// (pulling it when allowed) and detects its dimension.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	def := DefaultOllamaConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = def.PoolSize
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = def.Retry
	}
	if cfg.Retry.RetryIf == nil {
		cfg.Retry.RetryIf = amerrors.IsRetryable
	}

	// No client-level timeout: each request gets a context deadline
	// chosen by warm/cold state.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}
	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}
	if cfg.SkipHealthCheck {
		return e, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, DefaultColdTimeout)
	defer cancel()

	if err := e.ensureModel(checkCtx); err != nil {
		transport.CloseIdleConnections()
		return nil, err
	}
	if e.dims == 0 {
		vecs, err := e.embedRetry(checkCtx, []string{"dimension detection"})
		if err != nil {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
		}
		e.dims = len(vecs[0])
	}

	slog.Info("ollama embedder ready",
		slog.String("host", cfg.Host),
		slog.String("model", e.modelName),
		slog.Int("dims", e.dims))
	return e, nil
}

// ensureModel resolves the configured model against /api/tags, pulling it
// under the data-dir lock when missing.
func (e *OllamaEmbedder) ensureModel(ctx context.Context) error {
	name, err := e.findModel(ctx)
	if err == nil {
		e.modelName = name
		return nil
	}
	if !e.config.PullMissing || amerrors.IsRetryable(err) {
		return err
	}

	if e.config.LockDir != "" {
		lock := NewFileLock(e.config.LockDir)
		if err := lock.Lock(); err != nil {
			return amerrors.New(amerrors.ErrCodeModelDownload, "could not lock model pull", err)
		}
		defer func() { _ = lock.Unlock() }()

		// Another process may have pulled it while we waited.
		if name, err := e.findModel(ctx); err == nil {
			e.modelName = name
			return nil
		}
	}

	pullCtx, cancel := context.WithTimeout(ctx, DefaultPullTimeout)
	defer cancel()
	err = amerrors.Retry(pullCtx, e.config.Retry, func() error {
		return e.pull(pullCtx)
	})
	if err != nil {
		return err
	}
	name, err = e.findModel(ctx)
	if err != nil {
		return err
	}
	e.modelName = name
	return nil
}

func (e *OllamaEmbedder) listModels(ctx context.Context) ([]ollamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp); err != nil {
		return nil, err
	}
	var out ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Models, nil
}

// findModel matches the configured model by full name or by base name
// without the tag.
func (e *OllamaEmbedder) findModel(ctx context.Context) (string, error) {
	models, err := e.listModels(ctx)
	if err != nil {
		return "", err
	}

	want := strings.ToLower(e.config.Model)
	wantBase := strings.Split(want, ":")[0]
	for _, m := range models {
		name := strings.ToLower(m.Name)
		if name == want || strings.Split(name, ":")[0] == wantBase {
			return m.Name, nil
		}
	}
	return "", amerrors.New(amerrors.ErrCodeEmbeddingFailed,
		fmt.Sprintf("model %s is not available in ollama", e.config.Model), nil).
		WithSuggestion("Run: ollama pull " + e.config.Model)
}

func (e *OllamaEmbedder) pull(ctx context.Context) error {
	slog.Info("pulling ollama model", slog.String("model", e.config.Model))
	body, _ := json.Marshal(ollamaPullRequest{Model: e.config.Model, Stream: false})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp); err != nil {
		return amerrors.New(amerrors.ErrCodeModelDownload, "model pull failed", err)
	}
	var out ollamaPullResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode pull response: %w", err)
	}
	if out.Error != "" {
		return amerrors.New(amerrors.ErrCodeModelDownload, "model pull failed: "+out.Error, nil)
	}
	return nil
}

// Embed implements Embedder. Blank text yields a zero vector.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	results := make([][]float32, len(texts))
	var idx []int
	var pending []string
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
			continue
		}
		idx = append(idx, i)
		pending = append(pending, text)
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(pending))
		vecs, err := e.embedRetry(ctx, pending[start:end])
		if err != nil {
			return nil, err
		}
		for j, v := range vecs {
			results[idx[start+j]] = v
		}
	}
	return results, nil
}

func (e *OllamaEmbedder) embedRetry(ctx context.Context, texts []string) ([][]float32, error) {
	return amerrors.RetryWithResult(ctx, e.config.Retry, func() ([][]float32, error) {
		reqCtx, cancel := context.WithTimeout(ctx, e.timeout())
		defer cancel()
		return e.doEmbed(reqCtx, texts)
	})
}

// timeout picks the cold timeout until the model has answered recently.
func (e *OllamaEmbedder) timeout() time.Duration {
	e.mu.RLock()
	last := e.lastCall
	e.mu.RUnlock()
	if last.IsZero() || time.Since(last) > ModelUnloadThreshold {
		return DefaultColdTimeout
	}
	return DefaultWarmTimeout
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.modelName, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp); err != nil {
		return nil, err
	}
	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("ollama returned %d embeddings for %d inputs", len(out.Embeddings), len(texts)), nil)
	}

	vecs := make([][]float32, len(out.Embeddings))
	for i, emb := range out.Embeddings {
		v := make([]float32, len(emb))
		for j, f := range emb {
			v[j] = float32(f)
		}
		if e.dims != 0 && len(v) != e.dims {
			return nil, amerrors.New(amerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d", e.dims, len(v)), nil)
		}
		vecs[i] = normalizeVector(v)
	}

	e.mu.Lock()
	e.lastCall = time.Now()
	e.mu.Unlock()
	return vecs, nil
}

// networkError classifies a transport failure as retryable.
func networkError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return amerrors.New(amerrors.ErrCodeNetworkTimeout, "ollama request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return amerrors.New(amerrors.ErrCodeNetworkUnavailable, "cannot reach ollama", err).
		WithSuggestion("Start Ollama with: ollama serve")
}

// statusError maps non-200 responses: 5xx is retryable, 4xx is not.
func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := fmt.Sprintf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode >= 500 {
		return amerrors.New(amerrors.ErrCodeNetworkUnavailable, msg, nil)
	}
	return amerrors.New(amerrors.ErrCodeEmbeddingFailed, msg, nil)
}

// Dimensions implements Embedder.
func (e *OllamaEmbedder) Dimensions() int { return e.dims }

// ModelName implements Embedder.
func (e *OllamaEmbedder) ModelName() string { return e.modelName }

// Available implements Embedder.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}
	_, err := e.findModel(ctx)
	return err == nil
}

// Close implements Embedder.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
