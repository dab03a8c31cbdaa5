// Package search routes queries to the keyword index, the vector index or
// both, and fuses their scores into one ranked list.
package search

import (
	"context"
	"fmt"
)

// Strategy is the retrieval route chosen for a query.
type Strategy string

const (
	StrategyKeyword      Strategy = "keyword"
	StrategyVector       Strategy = "vector"
	StrategyKeywordBoost Strategy = "keyword_boost"
	StrategyHybrid       Strategy = "hybrid"
)

// ParseStrategy accepts "" (auto-route) and the four strategy names.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyKeyword, StrategyVector, StrategyKeywordBoost, StrategyHybrid:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown strategy: %s (valid options: keyword, vector, keyword_boost, hybrid)", s)
}

// QueryType describes what the query looks like.
type QueryType string

const (
	QueryTypeCodeSearch       QueryType = "code_search"
	QueryTypeSemanticQuestion QueryType = "semantic_question"
	QueryTypeSpecificLookup   QueryType = "specific_lookup"
	QueryTypeMixedQuery       QueryType = "mixed_query"
)

// Analysis is the classification of a query.
type Analysis struct {
	Type              QueryType `json:"type"`
	Strategy          Strategy  `json:"strategy"`
	Keywords          []string  `json:"keywords"`
	HasCodeElements   bool      `json:"hasCodeElements"`
	HasSpecificTerms  bool      `json:"hasSpecificTerms"`
	IsNaturalLanguage bool      `json:"isNaturalLanguage"`
	IsNavigational    bool      `json:"isNavigational"`
	Confidence        float64   `json:"confidence"`
}

// Options configures a search.
type Options struct {
	// Table is the searchable table. Empty means DefaultTable.
	Table string
	// Project is a project id. Empty searches every project.
	Project string
	Limit   int
	// VectorWeight overrides DefaultVectorWeight for fusion.
	VectorWeight *float64
	// Strategy forces a route. Empty auto-routes through the analyzer.
	Strategy Strategy
	// MinSimilarity overrides the route's vector threshold.
	MinSimilarity *float64
}

// Result is one ranked row.
type Result struct {
	ID           string            `json:"id"`
	EmbeddingID  string            `json:"embedding_id"`
	ProjectID    string            `json:"project_id"`
	Table        string            `json:"table"`
	Text         string            `json:"text"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	VectorScore  float64           `json:"vector_score"`
	KeywordScore float64           `json:"keyword_score"`
	Score        float64           `json:"combined_score"`
	Source       string            `json:"source"`
}

// Result sources.
const (
	SourceKeyword = "keyword"
	SourceVector  = "vector"
	SourceHybrid  = "hybrid"
)

// QueryEmbedder turns a query into a vector.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchError is an index failure at the query boundary.
type SearchError struct {
	Source string
	Table  string
	Err    error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("%s search on %s: %v", e.Source, e.Table, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}
