package memory

import (
	"context"
	"strings"

	amerrors "github.com/Aman-CERP/amanmem/internal/errors"
	"github.com/Aman-CERP/amanmem/internal/search"
	"github.com/Aman-CERP/amanmem/internal/store"
)

// SearchInput is the payload shared by the three search tools.
type SearchInput struct {
	Query   string `json:"query"`
	Table   string `json:"table,omitempty"`
	Project string `json:"project,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	// VectorWeight overrides the configured fusion weight.
	VectorWeight *float64 `json:"vector_weight,omitempty"`
	// Strategy forces a route; empty auto-routes.
	Strategy      string   `json:"strategy,omitempty"`
	MinSimilarity *float64 `json:"min_similarity,omitempty"`
}

// options resolves the project name to an id. A project that does not
// exist has no rows: ok is false.
func (s *Service) options(ctx context.Context, in SearchInput) (opts search.Options, ok bool, err error) {
	strategy, err := search.ParseStrategy(in.Strategy)
	if err != nil {
		return opts, false, amerrors.ValidationError(err.Error(), err)
	}
	projectID, found, err := s.readProject(ctx, in.Project)
	if err != nil || !found {
		return opts, false, err
	}
	return search.Options{
		Table:         in.Table,
		Project:       projectID,
		Limit:         in.Limit,
		VectorWeight:  in.VectorWeight,
		Strategy:      strategy,
		MinSimilarity: in.MinSimilarity,
	}, true, nil
}

type searchFunc func(context.Context, string, search.Options) ([]*search.Result, error)

func (s *Service) run(ctx context.Context, in SearchInput, fn searchFunc) ([]*search.Result, error) {
	if in.Table != "" && !store.ValidTable(in.Table) {
		return nil, amerrors.New(amerrors.ErrCodeUnknownTable, "unknown table: "+in.Table, nil).
			WithSuggestion("Use one of: " + strings.Join(store.SearchableTables, ", "))
	}
	opts, ok, err := s.options(ctx, in)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*search.Result{}, nil
	}
	return fn(ctx, in.Query, opts)
}

// HybridSearch auto-routes the query, or follows in.Strategy.
func (s *Service) HybridSearch(ctx context.Context, in SearchInput) ([]*search.Result, error) {
	return s.run(ctx, in, s.search.HybridSearch)
}

// SemanticSearch runs a vector-only search.
func (s *Service) SemanticSearch(ctx context.Context, in SearchInput) ([]*search.Result, error) {
	return s.run(ctx, in, s.search.SemanticSearch)
}

// KeywordSearch runs a keyword-only search.
func (s *Service) KeywordSearch(ctx context.Context, in SearchInput) ([]*search.Result, error) {
	return s.run(ctx, in, s.search.KeywordSearch)
}

// AnalyzeQuery exposes the routing decision for a query.
func (s *Service) AnalyzeQuery(query string) search.Analysis {
	return s.analyzer.Analyze(query)
}
