package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmem/internal/embed"
	"github.com/Aman-CERP/amanmem/internal/store"
)

// =============================================================================
// End to end over SQLite FTS5, HNSW and the static embedder
// =============================================================================

func TestOrchestrator_RealIndexesIsolateProjects(t *testing.T) {
	ctx := context.Background()

	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	kw, err := store.NewKeywordIndex(store.KeywordBackendSQLite, st, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })
	vx, err := store.NewHNSWVectorIndex(store.HNSWConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vx.Close() })
	emb := embed.NewStaticEmbedder(embed.StaticDimensions384)

	// Given: the same decisions recorded in two projects
	texts := []string{
		"Use JWT auth tokens with short expiry for the public API",
		"Store sessions in Redis with a sliding expiration",
		"Structure authentication around an identity provider",
		"Improve the onboarding flow with a guided setup wizard",
	}
	projects := map[string]string{}
	for _, name := range []string{"alpha", "beta"} {
		p, err := st.GetOrCreateProject(ctx, name)
		require.NoError(t, err)
		projects[name] = p.ID
		for _, text := range texts {
			d := &store.Decision{ProjectID: p.ID, Decision: text}
			require.NoError(t, st.InsertDecision(ctx, d))
			row := d.EmbeddedRow()
			vec, err := emb.Embed(ctx, row.Text)
			require.NoError(t, err)
			require.NoError(t, vx.Add(ctx, store.TableDecisions, row.EmbeddingRecord(vec)))
		}
	}

	o := NewOrchestrator(kw, vx, emb, nil, DefaultConfig())
	queries := []string{
		"jwt auth",
		"how should I structure authentication",
		"improve the onboarding flow",
		"redis sessions",
	}

	// When/Then: every route returns only rows of the requested project
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			results, err := o.HybridSearch(ctx, q, Options{Table: store.TableDecisions, Project: projects["alpha"]})
			require.NoError(t, err)
			require.NotEmpty(t, results)
			for _, r := range results {
				assert.Equal(t, projects["alpha"], r.ProjectID)
			}
		})
	}
}
