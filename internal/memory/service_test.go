package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanmem/internal/errors"
	"github.com/Aman-CERP/amanmem/internal/search"
	"github.com/Aman-CERP/amanmem/internal/store"
)

// =============================================================================
// Decisions
// =============================================================================

func TestService_RecordDecision(t *testing.T) {
	// Given: an empty memory
	env := newTestEnv(t)
	ctx := context.Background()

	// When: recording a decision
	res, err := env.svc.RecordDecision(ctx, DecisionInput{
		Decision:     "Use SQLite for structured storage",
		Context:      "Single binary, no server",
		Alternatives: []string{"PostgreSQL", "BoltDB"},
		Impact:       "high",
	})

	// Then: the row and its vector exist and the row is ready
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.NotEmpty(t, res.EmbeddingID)
	assert.NotEqual(t, res.ID, res.EmbeddingID)
	assert.True(t, env.vector.Contains(store.TableDecisions, res.EmbeddingID))

	c := env.counts(t, "alpha")
	assert.Equal(t, 1, c[store.TableDecisions].Total)
	assert.Equal(t, 0, c[store.TableDecisions].Pending)
}

func TestService_RecordDecision_MissingText(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.RecordDecision(context.Background(), DecisionInput{Decision: "   "})

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeMissingField, amerrors.GetCode(err))
}

// =============================================================================
// Progress
// =============================================================================

func TestService_TrackProgress_Upserts(t *testing.T) {
	// Given: a milestone tracked once
	env := newTestEnv(t)
	ctx := context.Background()
	first, err := env.svc.TrackProgress(ctx, ProgressInput{Milestone: "M1", Status: "in_progress"})
	require.NoError(t, err)
	assert.True(t, first.Created)

	// When: the same milestone is tracked again
	second, err := env.svc.TrackProgress(ctx, ProgressInput{
		Milestone: "M1",
		Status:    "completed",
		Notes:     "shipped",
	})

	// Then: the row is updated in place
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)

	p, err := env.store.GetProgress(ctx, env.project(t, "alpha").ID, "M1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, p.Status)
	assert.Equal(t, "shipped", p.Notes)
	assert.Equal(t, store.EmbeddingReady, p.EmbeddingStatus)
	assert.Equal(t, 1, env.counts(t, "alpha")[store.TableProgress].Total)
	assert.Equal(t, 1, env.vector.Count(store.TableProgress))
}

func TestService_TrackProgress_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input ProgressInput
		code  string
	}{
		{"missing milestone", ProgressInput{Status: "completed"}, amerrors.ErrCodeMissingField},
		{"unknown status", ProgressInput{Milestone: "M1", Status: "done"}, amerrors.ErrCodeInvalidStatus},
		{"empty status", ProgressInput{Milestone: "M1"}, amerrors.ErrCodeInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.TrackProgress(ctx, tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.code, amerrors.GetCode(err))
		})
	}
}

// =============================================================================
// Code patterns
// =============================================================================

const goPattern = `package auth

func ValidateToken(token string) bool {
	return token != ""
}
`

func TestService_AddCodePattern_Idempotent(t *testing.T) {
	// Given: a pattern stored once
	env := newTestEnv(t)
	ctx := context.Background()
	first, err := env.svc.AddCodePattern(ctx, PatternInput{FilePath: "./auth/token.go", Content: goPattern})
	require.NoError(t, err)
	assert.Equal(t, PatternCreated, first.Status)
	assert.Equal(t, "go", first.Language)
	assert.Contains(t, first.Symbols, "ValidateToken")

	// When: the same file and content are added again
	second, err := env.svc.AddCodePattern(ctx, PatternInput{FilePath: "auth/token.go", Content: goPattern})

	// Then: the existing pattern is returned and nothing new is stored
	require.NoError(t, err)
	assert.Equal(t, PatternExists, second.Status)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.EmbeddingID, second.EmbeddingID)
	assert.Equal(t, 1, env.counts(t, "alpha")[store.TableCodePatterns].Total)
}

func TestService_AddCodePattern_Truncates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	long := strings.Repeat("é", MaxPatternRunes+50)

	res, err := env.svc.AddCodePattern(ctx, PatternInput{FilePath: "big.txt", Content: long})
	require.NoError(t, err)

	hash := PatternHash("big.txt", long)
	c, err := env.store.GetCodePatternByHash(ctx, env.project(t, "alpha").ID, hash)
	require.NoError(t, err)
	assert.Equal(t, res.ID, c.ID)
	assert.Equal(t, MaxPatternRunes, len([]rune(c.Content)))
}

func TestPatternHash(t *testing.T) {
	a := PatternHash("a.go", "abc")

	assert.Len(t, a, 32)
	assert.Equal(t, a, PatternHash("a.go", "xyz"), "same path and length share a hash")
	assert.NotEqual(t, a, PatternHash("b.go", "abc"))
	assert.NotEqual(t, a, PatternHash("a.go", "abcd"))
}

func TestService_IdentifyDuplicates(t *testing.T) {
	// Given: one stored pattern
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.AddCodePattern(ctx, PatternInput{FilePath: "auth/token.go", Content: goPattern})
	require.NoError(t, err)

	t.Run("identical content is a duplicate", func(t *testing.T) {
		report := env.svc.IdentifyDuplicates(ctx, DuplicateInput{Feature: goPattern})

		require.Len(t, report.Duplicates, 1)
		assert.InDelta(t, 1.0, report.Duplicates[0].Similarity, 0.01)
		assert.Equal(t, "auth/token.go", report.Duplicates[0].FilePath)
		assert.Equal(t, "go", report.Duplicates[0].Language)
	})

	t.Run("scope outside the file excludes it", func(t *testing.T) {
		report := env.svc.IdentifyDuplicates(ctx, DuplicateInput{Feature: goPattern, Scope: "./billing"})

		assert.Empty(t, report.Duplicates)
		assert.Equal(t, search.MsgNoDuplicates, report.Message)
	})

	t.Run("empty feature", func(t *testing.T) {
		report := env.svc.IdentifyDuplicates(ctx, DuplicateInput{Feature: " "})

		assert.Empty(t, report.Duplicates)
		assert.Equal(t, search.MsgNoFeature, report.Message)
	})

	t.Run("unknown project", func(t *testing.T) {
		report := env.svc.IdentifyDuplicates(ctx, DuplicateInput{Feature: goPattern, Project: "nope"})

		assert.Empty(t, report.Duplicates)
		assert.Equal(t, search.MsgNoDuplicates, report.Message)
	})

	t.Run("explicit zero threshold keeps dissimilar patterns", func(t *testing.T) {
		zero := 0.0
		report := env.svc.IdentifyDuplicates(ctx, DuplicateInput{
			Feature:   "render a pie chart of quarterly revenue",
			Threshold: &zero,
		})

		require.Len(t, report.Duplicates, 1)
		assert.Equal(t, "auth/token.go", report.Duplicates[0].FilePath)
	})
}

func TestService_IdentifyDuplicates_LongFragment(t *testing.T) {
	// Given: a stored fragment longer than the stored content bound
	env := newTestEnv(t)
	ctx := context.Background()
	var b strings.Builder
	for i := 0; b.Len() < MaxPatternRunes+2000; i++ {
		fmt.Fprintf(&b, "func handler%d(w http.ResponseWriter, r *http.Request) { serve(w, r, %d) }\n", i, i)
	}
	long := b.String()
	_, err := env.svc.AddCodePattern(ctx, PatternInput{FilePath: "api/handlers.go", Content: long})
	require.NoError(t, err)

	// When: the exact same fragment is checked
	report := env.svc.IdentifyDuplicates(ctx, DuplicateInput{Feature: long})

	// Then: it matches as an exact duplicate
	require.Len(t, report.Duplicates, 1)
	assert.InDelta(t, 1.0, report.Duplicates[0].Similarity, 0.01)
}

// =============================================================================
// Search
// =============================================================================

func TestService_Search_ProjectIsolation(t *testing.T) {
	// Given: the same decision text in two projects
	env := newTestEnv(t)
	ctx := context.Background()
	a, err := env.svc.RecordDecision(ctx, DecisionInput{Decision: "Cache embeddings in an LRU", Project: "alpha"})
	require.NoError(t, err)
	_, err = env.svc.RecordDecision(ctx, DecisionInput{Decision: "Cache embeddings in an LRU", Project: "beta"})
	require.NoError(t, err)

	for _, strategy := range []string{"", "keyword", "vector", "hybrid"} {
		t.Run("strategy="+strategy, func(t *testing.T) {
			// When: searching alpha
			results, err := env.svc.HybridSearch(ctx, SearchInput{
				Query:    "cache embeddings LRU",
				Table:    store.TableDecisions,
				Strategy: strategy,
			})

			// Then: only alpha's row is returned
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, a.ID, results[0].ID)
		})
	}
}

func TestService_Search_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.RecordDecision(ctx, DecisionInput{Decision: "Use cobra for the CLI"})
	require.NoError(t, err)

	t.Run("unknown table", func(t *testing.T) {
		_, err := env.svc.KeywordSearch(ctx, SearchInput{Query: "cobra", Table: "users"})
		require.Error(t, err)
		assert.Equal(t, amerrors.ErrCodeUnknownTable, amerrors.GetCode(err))
	})

	t.Run("invalid strategy", func(t *testing.T) {
		_, err := env.svc.HybridSearch(ctx, SearchInput{Query: "cobra", Strategy: "magic"})
		require.Error(t, err)
		assert.True(t, amerrors.IsValidation(err))
	})

	t.Run("unknown project is empty", func(t *testing.T) {
		results, err := env.svc.SemanticSearch(ctx, SearchInput{Query: "cobra", Table: store.TableDecisions, Project: "ghost"})
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestService_AnalyzeQuery(t *testing.T) {
	env := newTestEnv(t)

	a := env.svc.AnalyzeQuery("func NewServer")

	assert.Equal(t, search.QueryTypeCodeSearch, a.Type)
	assert.Equal(t, search.StrategyKeyword, a.Strategy)
}

// =============================================================================
// Project memory
// =============================================================================

func TestService_GetProjectMemory(t *testing.T) {
	// Given: an old decision and a fresh milestone
	env := newTestEnv(t)
	ctx := context.Background()
	alpha := env.project(t, "alpha")
	_, err := env.svc.Repository().Write(ctx, &store.Decision{
		ProjectID: alpha.ID,
		Decision:  "Adopt hexagonal architecture",
		CreatedAt: time.Now().Add(-time.Hour).UTC(),
	})
	require.NoError(t, err)
	_, err = env.svc.TrackProgress(ctx, ProgressInput{Milestone: "Vector index", Status: "testing"})
	require.NoError(t, err)

	t.Run("newest first", func(t *testing.T) {
		items, err := env.svc.GetProjectMemory(ctx, MemoryQuery{})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "progress", items[0].Kind)
		assert.Equal(t, "decision", items[1].Kind)
		assert.Equal(t, "Vector index: testing", items[0].Text)
	})

	t.Run("category filter", func(t *testing.T) {
		items, err := env.svc.GetProjectMemory(ctx, MemoryQuery{Category: "decisions"})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "decision", items[0].Kind)
	})

	t.Run("limit", func(t *testing.T) {
		items, err := env.svc.GetProjectMemory(ctx, MemoryQuery{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("query re-ranks", func(t *testing.T) {
		items, err := env.svc.GetProjectMemory(ctx, MemoryQuery{Query: "hexagonal architecture"})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "decision", items[0].Kind)
		assert.Greater(t, items[0].Score, items[1].Score)
	})

	t.Run("unknown category", func(t *testing.T) {
		_, err := env.svc.GetProjectMemory(ctx, MemoryQuery{Category: "notes"})
		require.Error(t, err)
		assert.True(t, amerrors.IsValidation(err))
	})

	t.Run("unknown project", func(t *testing.T) {
		items, err := env.svc.GetProjectMemory(ctx, MemoryQuery{Project: "ghost"})
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})
}

func TestService_GetProjectMemory_QueryReachesOlderRows(t *testing.T) {
	// Given: a storage decision followed by five newer lint decisions
	env := newTestEnv(t)
	ctx := context.Background()
	alpha := env.project(t, "alpha")
	base := time.Now().Add(-time.Hour).UTC()
	_, err := env.svc.Repository().Write(ctx, &store.Decision{
		ProjectID: alpha.ID,
		Decision:  "Use PostgreSQL with pgvector for embedding storage",
		CreatedAt: base,
	})
	require.NoError(t, err)
	for i := range 5 {
		_, err := env.svc.Repository().Write(ctx, &store.Decision{
			ProjectID: alpha.ID,
			Decision:  fmt.Sprintf("Enable lint rule %d for unused imports", i),
			CreatedAt: base.Add(time.Duration(i+1) * time.Minute),
		})
		require.NoError(t, err)
	}

	// When: querying with a limit smaller than the newer rows
	items, err := env.svc.GetProjectMemory(ctx, MemoryQuery{
		Query: "PostgreSQL pgvector embedding storage",
		Limit: 3,
	})

	// Then: the older matching decision ranks first
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Contains(t, items[0].Text, "pgvector")
	assert.Greater(t, items[0].Score, items[1].Score)

	t.Run("without a query only the newest rows are listed", func(t *testing.T) {
		items, err := env.svc.GetProjectMemory(ctx, MemoryQuery{Limit: 3})
		require.NoError(t, err)
		require.Len(t, items, 3)
		for _, it := range items {
			assert.NotContains(t, it.Text, "pgvector")
		}
	})
}

// =============================================================================
// Status
// =============================================================================

func TestService_Status(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.RecordDecision(ctx, DecisionInput{Decision: "Use HNSW"})
	require.NoError(t, err)
	_, err = env.svc.RecordDecision(ctx, DecisionInput{Decision: "Use FTS5", Project: "beta"})
	require.NoError(t, err)

	st, err := env.svc.Status(ctx, "")

	require.NoError(t, err)
	assert.Equal(t, "alpha", st.Project)
	assert.Equal(t, []string{"alpha", "beta"}, st.Projects)
	assert.Equal(t, "static-384", st.ModelKey)
	assert.Contains(t, st.WarmModels, "static-384")
	assert.Equal(t, store.KeywordBackendSQLite, st.KeywordBackend)
	assert.Equal(t, 1, st.Tables[store.TableDecisions].Rows)
	assert.Equal(t, 2, st.Tables[store.TableDecisions].Vectors)
	assert.Equal(t, 384, st.Tables[store.TableDecisions].Dimensions)
	assert.Equal(t, 0, st.Pending())
}
