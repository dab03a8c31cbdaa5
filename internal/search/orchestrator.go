package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	amerrors "github.com/Aman-CERP/amanmem/internal/errors"
	"github.com/Aman-CERP/amanmem/internal/store"
)

// Defaults applied when Config fields are zero.
const (
	DefaultLimit = 10
	MaxLimit     = 100
	DefaultTable = store.TableDocumentation
)

// Config tunes an Orchestrator.
type Config struct {
	DefaultTable        string
	DefaultLimit        int
	VectorWeight        float64
	OverfetchMultiplier int
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		DefaultTable:        DefaultTable,
		DefaultLimit:        DefaultLimit,
		VectorWeight:        DefaultVectorWeight,
		OverfetchMultiplier: DefaultOverfetchMultiplier,
	}
}

// Orchestrator runs keyword, vector and hybrid searches over one table at a
// time. Read failures never propagate: they are logged and become empty
// results. Only invalid input returns an error.
type Orchestrator struct {
	keyword  store.KeywordIndex
	vector   store.VectorIndex
	embedder QueryEmbedder
	analyzer *Analyzer
	cfg      Config
}

// NewOrchestrator wires the indexes and the query embedder. A nil analyzer
// gets a default-sized one.
func NewOrchestrator(keyword store.KeywordIndex, vector store.VectorIndex, embedder QueryEmbedder, analyzer *Analyzer, cfg Config) *Orchestrator {
	if analyzer == nil {
		analyzer = NewAnalyzer(0)
	}
	if cfg.DefaultTable == "" {
		cfg.DefaultTable = DefaultTable
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.OverfetchMultiplier < 1 {
		cfg.OverfetchMultiplier = DefaultOverfetchMultiplier
	}
	cfg.VectorWeight = clampWeight(cfg.VectorWeight)
	return &Orchestrator{
		keyword:  keyword,
		vector:   vector,
		embedder: embedder,
		analyzer: analyzer,
		cfg:      cfg,
	}
}

// Analyzer returns the shared query analyzer.
func (o *Orchestrator) Analyzer() *Analyzer {
	return o.analyzer
}

// resolved is Options with defaults applied.
type resolved struct {
	table   string
	project string
	limit   int
	weight  float64
	minSim  *float64
}

func (o *Orchestrator) resolve(opts Options) (resolved, error) {
	r := resolved{
		table:   opts.Table,
		project: opts.Project,
		limit:   opts.Limit,
		weight:  o.cfg.VectorWeight,
		minSim:  opts.MinSimilarity,
	}
	if r.table == "" {
		r.table = o.cfg.DefaultTable
	}
	if !store.ValidTable(r.table) {
		return r, amerrors.New(amerrors.ErrCodeUnknownTable, "unknown table: "+r.table, nil).
			WithSuggestion("Use one of: " + strings.Join(store.SearchableTables, ", "))
	}
	if r.limit <= 0 {
		r.limit = o.cfg.DefaultLimit
	}
	r.limit = min(r.limit, MaxLimit)
	if opts.VectorWeight != nil {
		r.weight = clampWeight(*opts.VectorWeight)
	}
	return r, nil
}

func (r resolved) threshold(route float64) float64 {
	if r.minSim != nil {
		return *r.minSim
	}
	return route
}

// HybridSearch routes the query by its analysis, or by opts.Strategy when
// set, and returns at most opts.Limit results.
func (o *Orchestrator) HybridSearch(ctx context.Context, query string, opts Options) ([]*Result, error) {
	r, err := o.resolve(opts)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return []*Result{}, nil
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = o.analyzer.Analyze(query).Strategy
	}

	start := time.Now()
	var results []*Result
	switch strategy {
	case StrategyKeyword:
		results = o.keywordRoute(ctx, query, r, r.limit)
	case StrategyVector:
		results = o.vectorRoute(ctx, query, r, r.threshold(SemanticRouteThreshold))
	case StrategyKeywordBoost:
		results = o.keywordBoostRoute(ctx, query, r)
	default:
		strategy = StrategyHybrid
		results = o.hybridRoute(ctx, query, r)
	}

	slog.Debug("hybrid search",
		slog.String("strategy", string(strategy)),
		slog.String("table", r.table),
		slog.Int("results", len(results)),
		slog.Duration("latency", time.Since(start)))
	return results, nil
}

// SemanticSearch runs a vector-only search. The default threshold is
// HybridVectorThreshold.
func (o *Orchestrator) SemanticSearch(ctx context.Context, query string, opts Options) ([]*Result, error) {
	r, err := o.resolve(opts)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return []*Result{}, nil
	}
	return o.vectorRoute(ctx, query, r, r.threshold(HybridVectorThreshold)), nil
}

// KeywordSearch runs a keyword-only search.
func (o *Orchestrator) KeywordSearch(ctx context.Context, query string, opts Options) ([]*Result, error) {
	r, err := o.resolve(opts)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return []*Result{}, nil
	}
	return o.keywordRoute(ctx, query, r, r.limit), nil
}

func (o *Orchestrator) keywordRoute(ctx context.Context, query string, r resolved, limit int) []*Result {
	hits, err := o.keywordHits(ctx, query, r, limit)
	return keywordResults(r.table, degradeToEmpty(ctx, hits, err))
}

func (o *Orchestrator) vectorRoute(ctx context.Context, query string, r resolved, threshold float64) []*Result {
	hits, err := o.vectorHits(ctx, query, r, r.limit, threshold)
	return vectorResults(r.table, degradeToEmpty(ctx, hits, err))
}

// keywordBoostRoute asks the keyword index for half the limit and tops up
// with vector results when it finds fewer than KeywordBoostMinResults.
func (o *Orchestrator) keywordBoostRoute(ctx context.Context, query string, r resolved) []*Result {
	results := o.keywordRoute(ctx, query, r, max(r.limit/2, 1))
	if len(results) >= KeywordBoostMinResults {
		return results
	}

	hits, err := o.vectorHits(ctx, query, r, r.limit, r.threshold(KeywordBoostVectorThreshold))
	seen := make(map[string]struct{}, len(results))
	for _, res := range results {
		seen[res.EmbeddingID] = struct{}{}
	}
	for _, res := range vectorResults(r.table, degradeToEmpty(ctx, hits, err)) {
		if len(results) >= r.limit {
			break
		}
		if _, dup := seen[res.EmbeddingID]; dup {
			continue
		}
		results = append(results, res)
	}
	return results
}

// hybridRoute queries both indexes concurrently and fuses the results. A
// failing index contributes nothing; the other still answers.
func (o *Orchestrator) hybridRoute(ctx context.Context, query string, r resolved) []*Result {
	g, gctx := errgroup.WithContext(ctx)

	var (
		kwHits  []*store.KeywordHit
		vecHits []*store.VectorHit
		kwErr   error
		vecErr  error
	)
	g.Go(func() error {
		kwHits, kwErr = o.keywordHits(gctx, query, r, r.limit)
		return nil
	})
	g.Go(func() error {
		vecHits, vecErr = o.vectorHits(gctx, query, r, r.limit, r.threshold(HybridVectorThreshold))
		return nil
	})
	_ = g.Wait()

	return Fuse(r.table,
		degradeToEmpty(ctx, kwHits, kwErr),
		degradeToEmpty(ctx, vecHits, vecErr),
		r.weight, r.limit)
}

func (o *Orchestrator) keywordHits(ctx context.Context, query string, r resolved, limit int) ([]*store.KeywordHit, error) {
	return searchKeyword(ctx, o.keyword, store.KeywordQuery{
		Table:     r.table,
		ProjectID: r.project,
		Query:     query,
		Limit:     limit,
	})
}

// vectorHits embeds the query, over-fetches limit*OverfetchMultiplier
// neighbors and keeps those in the project at or above threshold.
func (o *Orchestrator) vectorHits(ctx context.Context, query string, r resolved, limit int, threshold float64) ([]*store.VectorHit, error) {
	vec, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &SearchError{Source: SourceVector, Table: r.table, Err: err}
	}
	if isZeroVector(vec) {
		return []*store.VectorHit{}, nil
	}

	hits, err := o.vector.Search(ctx, r.table, vec, limit*o.cfg.OverfetchMultiplier)
	if err != nil {
		return nil, &SearchError{Source: SourceVector, Table: r.table, Err: err}
	}
	return filterHits(hits, r.project, threshold, limit), nil
}

// filterHits applies the project and similarity filters, keeping order.
func filterHits(hits []*store.VectorHit, project string, threshold float64, limit int) []*store.VectorHit {
	out := make([]*store.VectorHit, 0, min(len(hits), limit))
	for _, h := range hits {
		if len(out) >= limit {
			break
		}
		if project != "" && h.ProjectID != project {
			continue
		}
		if h.Similarity() < threshold {
			continue
		}
		out = append(out, h)
	}
	return out
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
