package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmem/internal/embed"
	"github.com/Aman-CERP/amanmem/internal/search"
	"github.com/Aman-CERP/amanmem/internal/store"
)

// --- Test Helpers ---

type testEnv struct {
	svc      *Service
	store    *store.SQLiteStore
	keyword  store.KeywordIndex
	vector   *flakyVector
	provider *embed.Provider
	embedErr *atomic.Bool
}

// newTestEnv builds a service over an in-memory store, FTS5 keyword index,
// in-memory HNSW index and the static embedders.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open("")
	require.NoError(t, err)
	kw, err := store.NewKeywordIndex(store.KeywordBackendSQLite, st, "")
	require.NoError(t, err)
	hnsw, err := store.NewHNSWVectorIndex(store.HNSWConfig{})
	require.NoError(t, err)
	vx := &flakyVector{VectorIndex: hnsw}

	embedErr := &atomic.Bool{}
	base := embed.NewFactory(embed.FactoryOptions{})
	factory := func(ctx context.Context, key string) (embed.Embedder, error) {
		inner, err := base(ctx, key)
		if err != nil {
			return nil, err
		}
		return &switchableEmbedder{Embedder: inner, fail: embedErr}, nil
	}
	provider := embed.NewProvider(factory, "static-384")

	svc := New(Deps{Store: st, Keyword: kw, Vector: vx, Provider: provider}, Options{
		DefaultProject: "alpha",
		Search:         search.DefaultConfig(),
	})
	t.Cleanup(func() {
		_ = provider.Close()
		_ = kw.Close()
		_ = hnsw.Close()
		_ = st.Close()
	})
	return &testEnv{svc: svc, store: st, keyword: kw, vector: vx, provider: provider, embedErr: embedErr}
}

func (e *testEnv) project(t *testing.T, name string) *store.Project {
	t.Helper()
	p, err := e.store.GetOrCreateProject(context.Background(), name)
	require.NoError(t, err)
	return p
}

func (e *testEnv) counts(t *testing.T, project string) map[string]store.TableCounts {
	t.Helper()
	c, err := e.store.Counts(context.Background(), e.project(t, project).ID)
	require.NoError(t, err)
	return c
}

var errInjected = errors.New("injected failure")

// flakyVector fails Add while fail is set.
type flakyVector struct {
	store.VectorIndex
	fail atomic.Bool
}

func (f *flakyVector) Add(ctx context.Context, table string, rec *store.EmbeddingRecord) error {
	if f.fail.Load() {
		return errInjected
	}
	return f.VectorIndex.Add(ctx, table, rec)
}

// switchableEmbedder fails every call while fail is set.
type switchableEmbedder struct {
	embed.Embedder
	fail *atomic.Bool
}

func (s *switchableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.fail.Load() {
		return nil, errInjected
	}
	return s.Embedder.Embed(ctx, text)
}

func (s *switchableEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.fail.Load() {
		return nil, errInjected
	}
	return s.Embedder.EmbedBatch(ctx, texts)
}
