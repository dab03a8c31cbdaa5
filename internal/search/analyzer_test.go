package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Query classification
// =============================================================================

func TestAnalyze_Routes(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		strategy Strategy
		qtype    QueryType
		conf     float64
	}{
		{"call syntax", "getUserById()", StrategyKeyword, QueryTypeCodeSearch, 0.9},
		{"question without technical term", "how should I structure authentication", StrategyVector, QueryTypeSemanticQuestion, 0.8},
		{"short technical lookup", "jwt auth", StrategyKeywordBoost, QueryTypeSpecificLookup, 0.85},
		{"plain phrase", "improve the onboarding flow", StrategyHybrid, QueryTypeMixedQuery, 0.7},
		{"file path", "internal/store/hnsw.go", StrategyKeyword, QueryTypeCodeSearch, 0.9},
		{"file name", "config.yaml settings", StrategyKeyword, QueryTypeCodeSearch, 0.9},
		{"camelCase identifier", "tokenBucket limits", StrategyKeyword, QueryTypeCodeSearch, 0.9},
		{"snake_case identifier", "rate_limiter", StrategyKeyword, QueryTypeCodeSearch, 0.9},
		{"declaration keyword", "func main", StrategyKeyword, QueryTypeCodeSearch, 0.9},
		{"arrow", "x => x + 1", StrategyKeyword, QueryTypeCodeSearch, 0.9},
		{"scoped identifier", "std::vector", StrategyKeyword, QueryTypeCodeSearch, 0.9},
		{"question with technical term", "why jwt", StrategyKeywordBoost, QueryTypeSpecificLookup, 0.85},
		{"long technical question", "how do we rotate jwt signing keys across regions", StrategyHybrid, QueryTypeMixedQuery, 0.7},
		{"interrogative mid-query", "decide where logs live", StrategyVector, QueryTypeSemanticQuestion, 0.8},
		{"english interface", "how should the user interface handle errors", StrategyVector, QueryTypeSemanticQuestion, 0.8},
		{"english return", "what should we return to the client", StrategyVector, QueryTypeSemanticQuestion, 0.8},
		{"english let", "why did we let users skip onboarding", StrategyVector, QueryTypeSemanticQuestion, 0.8},
		{"english const", "where do we keep the const values documented", StrategyVector, QueryTypeSemanticQuestion, 0.8},
		{"english async", "why are async jobs and await points slow", StrategyVector, QueryTypeSemanticQuestion, 0.8},
		{"const declaration", "const limit = 10", StrategyKeyword, QueryTypeCodeSearch, 0.9},
		{"go import", `import "fmt"`, StrategyKeyword, QueryTypeCodeSearch, 0.9},
		{"class declaration", "class Account", StrategyKeyword, QueryTypeCodeSearch, 0.9},
		{"python import", "from os import path", StrategyKeyword, QueryTypeCodeSearch, 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: analyzing the query
			a := Analyze(tt.query)

			// Then: it routes as expected
			assert.Equal(t, tt.strategy, a.Strategy)
			assert.Equal(t, tt.qtype, a.Type)
			assert.InDelta(t, tt.conf, a.Confidence, 1e-9)
		})
	}
}

func TestAnalyze_Flags(t *testing.T) {
	a := Analyze("how should I structure authentication")
	assert.True(t, a.IsNaturalLanguage)
	assert.False(t, a.HasSpecificTerms)
	assert.False(t, a.HasCodeElements)
	assert.False(t, a.IsNavigational)

	a = Analyze("getUserById()")
	assert.True(t, a.HasCodeElements)
	assert.True(t, a.IsNavigational)
}

func TestAnalyze_Keywords(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"jwt auth", []string{"jwt", "auth"}},
		{"how should I structure authentication", []string{"structure", "authentication"}},
		{"the the cache cache", []string{"cache"}},
		{"a an to of", []string{}},
		{"", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, Analyze(tt.query).Keywords)
		})
	}
}

func TestAnalyze_EmptyQueryIsHybrid(t *testing.T) {
	a := Analyze("   ")
	assert.Equal(t, StrategyHybrid, a.Strategy)
	assert.Empty(t, a.Keywords)
}

func TestAnalyzer_CachesByNormalizedQuery(t *testing.T) {
	// Given: an analyzer
	an := NewAnalyzer(8)

	// When: analyzing the same query with different spacing
	first := an.Analyze("jwt   auth")
	second := an.Analyze("  jwt auth ")

	// Then: one entry is cached and both results match
	assert.Equal(t, 1, an.Len())
	assert.Equal(t, first, second)

	// Mutating a returned analysis does not touch the cache
	first.Keywords[0] = "changed"
	assert.Equal(t, "jwt", an.Analyze("jwt auth").Keywords[0])
}

func TestAnalyzer_KeepsCase(t *testing.T) {
	an := NewAnalyzer(0)
	assert.Equal(t, StrategyKeyword, an.Analyze("getUserById").Strategy)
	assert.Equal(t, StrategyHybrid, an.Analyze("getuserbyid").Strategy)
	assert.Equal(t, 2, an.Len())
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"", "keyword", "vector", "keyword_boost", "hybrid"} {
		got, err := ParseStrategy(s)
		assert.NoError(t, err)
		assert.Equal(t, Strategy(s), got)
	}
	_, err := ParseStrategy("rrf")
	assert.Error(t, err)
}
