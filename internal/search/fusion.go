package search

import (
	"math"
	"sort"

	"github.com/Aman-CERP/amanmem/internal/store"
)

// Fusion policy. Keyword scores are raw full-text ranks and can exceed 1,
// so they are scaled down and capped before blending with similarities.
const (
	// KeywordScoreScale divides the raw keyword rank: k = min(raw/10, 1).
	KeywordScoreScale = 10.0
	// DualHitBoost multiplies the combined score of items found by both sources.
	DualHitBoost = 1.2
	// DefaultVectorWeight is w in combined = v*w + k*(1-w).
	DefaultVectorWeight = 0.5
)

// Vector similarity thresholds per route.
const (
	SemanticRouteThreshold      = 0.25
	KeywordBoostVectorThreshold = 0.3
	HybridVectorThreshold       = 0.2
)

// KeywordBoostMinResults is the keyword result count below which the
// keyword_boost route tops up with vector results.
const KeywordBoostMinResults = 3

// DefaultOverfetchMultiplier widens vector retrieval before filtering.
const DefaultOverfetchMultiplier = 2

const absentRank = math.MaxInt

// NormalizeKeywordScore maps a raw keyword rank into [0, 1].
func NormalizeKeywordScore(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return math.Min(raw/KeywordScoreScale, 1)
}

// fusedItem carries ranks for tie-breaking.
type fusedItem struct {
	*Result
	vecRank int
	kwRank  int
}

// Fuse merges keyword and vector hits of one table by embedding id.
//
// An item counts as a dual hit only when both weighted contributions are
// positive; items whose combined score is zero are dropped. With weight 1
// the order is the vector order and with weight 0 it is the keyword order.
// Ties break on the rank in the heavier-weighted source, then the other
// source, then id.
func Fuse(table string, keyword []*store.KeywordHit, vector []*store.VectorHit, vectorWeight float64, limit int) []*Result {
	vectorWeight = clampWeight(vectorWeight)
	keywordWeight := 1 - vectorWeight

	items := make(map[string]*fusedItem, len(keyword)+len(vector))
	get := func(id string) *fusedItem {
		if it, ok := items[id]; ok {
			return it
		}
		it := &fusedItem{
			Result:  &Result{EmbeddingID: id, Table: table},
			vecRank: absentRank,
			kwRank:  absentRank,
		}
		items[id] = it
		return it
	}

	for rank, h := range vector {
		it := get(h.ID)
		if it.vecRank != absentRank {
			continue
		}
		it.vecRank = rank
		it.ID = h.RowID
		it.ProjectID = h.ProjectID
		it.Text = h.Text
		it.Metadata = h.Metadata
		it.VectorScore = h.Similarity()
	}
	for rank, h := range keyword {
		it := get(h.EmbeddingID)
		if it.kwRank != absentRank {
			continue
		}
		it.kwRank = rank
		if it.ID == "" {
			it.ID = h.RowID
			it.ProjectID = h.ProjectID
			it.Text = h.Text
		}
		it.KeywordScore = NormalizeKeywordScore(h.Score)
	}

	fused := make([]*fusedItem, 0, len(items))
	for _, it := range items {
		v := it.VectorScore * vectorWeight
		k := it.KeywordScore * keywordWeight
		it.Score = v + k
		switch {
		case v > 0 && k > 0:
			it.Score *= DualHitBoost
			it.Source = SourceHybrid
		case v > 0:
			it.Source = SourceVector
		default:
			it.Source = SourceKeyword
		}
		if it.Score <= 0 {
			continue
		}
		fused = append(fused, it)
	}

	vectorFirst := vectorWeight >= keywordWeight
	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ap, as, bp, bs := a.vecRank, a.kwRank, b.vecRank, b.kwRank
		if !vectorFirst {
			ap, as, bp, bs = a.kwRank, a.vecRank, b.kwRank, b.vecRank
		}
		if ap != bp {
			return ap < bp
		}
		if as != bs {
			return as < bs
		}
		return a.EmbeddingID < b.EmbeddingID
	})

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	results := make([]*Result, len(fused))
	for i, it := range fused {
		results[i] = it.Result
	}
	return results
}

func clampWeight(w float64) float64 {
	if math.IsNaN(w) {
		return DefaultVectorWeight
	}
	return math.Max(0, math.Min(1, w))
}

// vectorResults converts filtered vector hits to results in index order.
func vectorResults(table string, hits []*store.VectorHit) []*Result {
	results := make([]*Result, len(hits))
	for i, h := range hits {
		sim := h.Similarity()
		results[i] = &Result{
			ID:          h.RowID,
			EmbeddingID: h.ID,
			ProjectID:   h.ProjectID,
			Table:       table,
			Text:        h.Text,
			Metadata:    h.Metadata,
			VectorScore: sim,
			Score:       sim,
			Source:      SourceVector,
		}
	}
	return results
}

// keywordResults converts keyword hits to results in rank order.
func keywordResults(table string, hits []*store.KeywordHit) []*Result {
	results := make([]*Result, len(hits))
	for i, h := range hits {
		k := NormalizeKeywordScore(h.Score)
		results[i] = &Result{
			ID:           h.RowID,
			EmbeddingID:  h.EmbeddingID,
			ProjectID:    h.ProjectID,
			Table:        table,
			Text:         h.Text,
			KeywordScore: k,
			Score:        k,
			Source:       SourceKeyword,
		}
	}
	return results
}
