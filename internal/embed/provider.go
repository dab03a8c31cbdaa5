package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Factory builds the pipeline for a model key. It may be slow: loading a
// model or pulling it from a server.
type Factory func(ctx context.Context, modelKey string) (Embedder, error)

// Provider hands out one warm Embedder per model key. Concurrent callers
// asking for a cold key share a single factory call; a failed call is not
// remembered, so the next caller tries again. Warm is irreversible until
// Close.
type Provider struct {
	factory    Factory
	defaultKey string

	mu        sync.RWMutex
	pipelines map[string]Embedder
	group     singleflight.Group
	closed    bool
}

// NewProvider creates a provider. defaultKey is used by Embed.
func NewProvider(factory Factory, defaultKey string) *Provider {
	return &Provider{
		factory:    factory,
		defaultKey: defaultKey,
		pipelines:  make(map[string]Embedder),
	}
}

// DefaultKey returns the model key used by Embed.
func (p *Provider) DefaultKey() string {
	return p.defaultKey
}

// Pipeline returns the warm embedder for modelKey, building it on first use.
// The shared initialization is detached from any one caller's cancellation;
// a caller whose ctx ends stops waiting without failing the others.
func (p *Provider) Pipeline(ctx context.Context, modelKey string) (Embedder, error) {
	if modelKey == "" {
		modelKey = p.defaultKey
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, errors.New("embedding provider is closed")
	}
	if e, ok := p.pipelines[modelKey]; ok {
		p.mu.RUnlock()
		return e, nil
	}
	p.mu.RUnlock()

	initCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(modelKey, func() (any, error) {
		p.mu.RLock()
		e, ok := p.pipelines[modelKey]
		p.mu.RUnlock()
		if ok {
			return e, nil
		}

		start := time.Now()
		e, err := p.factory(initCtx, modelKey)
		if err != nil {
			return nil, fmt.Errorf("initialize embedding model %s: %w", modelKey, err)
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			_ = e.Close()
			return nil, errors.New("embedding provider is closed")
		}
		p.pipelines[modelKey] = e
		slog.Info("embedding model warm",
			slog.String("model_key", modelKey),
			slog.String("model", e.ModelName()),
			slog.Int("dims", e.Dimensions()),
			slog.Duration("duration", time.Since(start)))
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Embedder), nil
	}
}

// Embed embeds text with the default model.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.EmbedWith(ctx, p.defaultKey, text)
}

// EmbedWith embeds text with modelKey. The result is L2-normalized.
func (p *Provider) EmbedWith(ctx context.Context, modelKey, text string) ([]float32, error) {
	e, err := p.Pipeline(ctx, modelKey)
	if err != nil {
		return nil, err
	}
	v, err := e.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return normalizeVector(v), nil
}

// EmbedBatchWith embeds texts with modelKey, normalizing every vector.
func (p *Provider) EmbedBatchWith(ctx context.Context, modelKey string, texts []string) ([][]float32, error) {
	e, err := p.Pipeline(ctx, modelKey)
	if err != nil {
		return nil, err
	}
	vecs, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, v := range vecs {
		vecs[i] = normalizeVector(v)
	}
	return vecs, nil
}

// Dimensions returns the vector length of modelKey, warming it if needed.
func (p *Provider) Dimensions(ctx context.Context, modelKey string) (int, error) {
	e, err := p.Pipeline(ctx, modelKey)
	if err != nil {
		return 0, err
	}
	return e.Dimensions(), nil
}

// IsWarm reports whether modelKey has been initialized.
func (p *Provider) IsWarm(modelKey string) bool {
	if modelKey == "" {
		modelKey = p.defaultKey
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.pipelines[modelKey]
	return ok
}

// WarmKeys lists initialized model keys.
func (p *Provider) WarmKeys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.pipelines))
	for k := range p.pipelines {
		keys = append(keys, k)
	}
	return keys
}

// Close closes every pipeline.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for key, e := range p.pipelines {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	p.pipelines = nil
	return errors.Join(errs...)
}
