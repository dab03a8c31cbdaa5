package search

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultAnalyzerCacheSize bounds the Analyzer's LRU.
const DefaultAnalyzerCacheSize = 512

// Route confidences.
const (
	confidenceCode     = 0.9
	confidenceQuestion = 0.8
	confidenceLookup   = 0.85
	confidenceMixed    = 0.7
)

// maxLookupKeywords is the keyword count up to which a technical query is a lookup.
const maxLookupKeywords = 3

// Analyze classifies query. Rules apply in order: code or navigational
// signals first, then interrogatives without technical terms, then short
// technical lookups, then hybrid.
func Analyze(query string) Analysis {
	query = strings.TrimSpace(query)
	tokens := lowerTokens(query)

	a := Analysis{
		Keywords:          extractKeywords(tokens),
		HasCodeElements:   hasCodeElements(query),
		HasSpecificTerms:  containsAny(tokens, technicalTerms),
		IsNaturalLanguage: containsAny(tokens, interrogatives),
		IsNavigational:    isNavigational(query),
	}

	switch {
	case a.HasCodeElements || a.IsNavigational:
		a.Type, a.Strategy, a.Confidence = QueryTypeCodeSearch, StrategyKeyword, confidenceCode
	case a.IsNaturalLanguage && !a.HasSpecificTerms:
		a.Type, a.Strategy, a.Confidence = QueryTypeSemanticQuestion, StrategyVector, confidenceQuestion
	case a.HasSpecificTerms && len(a.Keywords) <= maxLookupKeywords:
		a.Type, a.Strategy, a.Confidence = QueryTypeSpecificLookup, StrategyKeywordBoost, confidenceLookup
	default:
		a.Type, a.Strategy, a.Confidence = QueryTypeMixedQuery, StrategyHybrid, confidenceMixed
	}
	return a
}

// Analyzer memoizes Analyze by normalized query.
type Analyzer struct {
	cache *lru.Cache[string, Analysis]
}

// NewAnalyzer creates an Analyzer. size <= 0 uses DefaultAnalyzerCacheSize.
func NewAnalyzer(size int) *Analyzer {
	if size <= 0 {
		size = DefaultAnalyzerCacheSize
	}
	cache, _ := lru.New[string, Analysis](size)
	return &Analyzer{cache: cache}
}

// Analyze returns the cached analysis or computes it.
func (a *Analyzer) Analyze(query string) Analysis {
	key := normalizeQuery(query)
	if cached, ok := a.cache.Get(key); ok {
		return cloneAnalysis(cached)
	}
	result := Analyze(key)
	a.cache.Add(key, result)
	return cloneAnalysis(result)
}

// Len returns the number of cached analyses.
func (a *Analyzer) Len() int {
	return a.cache.Len()
}

// normalizeQuery collapses whitespace. Case is kept: identifier shape matters.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

func cloneAnalysis(a Analysis) Analysis {
	keywords := make([]string, len(a.Keywords))
	copy(keywords, a.Keywords)
	a.Keywords = keywords
	return a
}
