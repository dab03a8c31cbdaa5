package search

import (
	"context"
	"sync"

	"github.com/Aman-CERP/amanmem/internal/store"
)

// --- Test Helpers ---

func kwHit(id, project string, score float64) *store.KeywordHit {
	return &store.KeywordHit{
		RowID:       "row-" + id,
		EmbeddingID: id,
		ProjectID:   project,
		Text:        "text " + id,
		Score:       score,
	}
}

func vecHit(id, project string, distance float32) *store.VectorHit {
	return &store.VectorHit{
		ID:        id,
		RowID:     "row-" + id,
		ProjectID: project,
		Text:      "text " + id,
		Metadata:  map[string]string{},
		Distance:  distance,
	}
}

func embeddingIDs(results []*Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.EmbeddingID
	}
	return ids
}

func ptr[T any](v T) *T {
	return &v
}

// fakeKeyword serves canned hits, applying the project filter before the limit.
type fakeKeyword struct {
	mu      sync.Mutex
	hits    []*store.KeywordHit
	err     error
	queries []store.KeywordQuery
}

func (f *fakeKeyword) Search(_ context.Context, q store.KeywordQuery) ([]*store.KeywordHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	var out []*store.KeywordHit
	for _, h := range f.hits {
		if q.ProjectID != "" && h.ProjectID != q.ProjectID {
			continue
		}
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		out = append(out, h)
	}
	return out, nil
}

func (f *fakeKeyword) Add(context.Context, string, ...*store.KeywordDocument) error { return nil }
func (f *fakeKeyword) Rebuild(context.Context, string) error                       { return nil }
func (f *fakeKeyword) Built(context.Context, string) bool                          { return true }
func (f *fakeKeyword) Backend() string                                             { return "fake" }
func (f *fakeKeyword) Close() error                                                { return nil }

func (f *fakeKeyword) calls() []store.KeywordQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.KeywordQuery(nil), f.queries...)
}

// fakeVector serves canned hits in order without filtering.
type fakeVector struct {
	mu     sync.Mutex
	hits   []*store.VectorHit
	err    error
	limits []int
}

func (f *fakeVector) Search(_ context.Context, _ string, _ []float32, limit int) ([]*store.VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.hits) {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func (f *fakeVector) Add(context.Context, string, *store.EmbeddingRecord) error { return nil }
func (f *fakeVector) Contains(string, string) bool                              { return false }
func (f *fakeVector) Count(string) int                                          { return len(f.hits) }
func (f *fakeVector) Dimensions(string) int                                     { return 3 }
func (f *fakeVector) ResetTable(string, int) error                              { return nil }
func (f *fakeVector) Close() error                                              { return nil }

func (f *fakeVector) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.limits...)
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.vec == nil {
		return []float32{1, 0, 0}, nil
	}
	return f.vec, nil
}
