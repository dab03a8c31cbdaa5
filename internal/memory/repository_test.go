package memory

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanmem/internal/errors"
	"github.com/Aman-CERP/amanmem/internal/store"
)

// =============================================================================
// Write
// =============================================================================

func TestRepository_Write_EmbedFailureWritesNothing(t *testing.T) {
	// Given: an embedder that fails
	env := newTestEnv(t)
	ctx := context.Background()
	env.embedErr.Store(true)

	// When: recording a decision
	_, err := env.svc.RecordDecision(ctx, DecisionInput{Decision: "Never stored"})

	// Then: ERR_502 and no row in either store
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeEmbeddingFailed, amerrors.GetCode(err))
	assert.Equal(t, 0, env.counts(t, "alpha")[store.TableDecisions].Total)
	assert.Equal(t, 0, env.vector.Count(store.TableDecisions))
}

func TestRepository_Write_VectorFailureLeavesPending(t *testing.T) {
	// Given: a vector index that rejects writes
	env := newTestEnv(t)
	ctx := context.Background()
	env.vector.fail.Store(true)

	// When: recording a decision
	_, err := env.svc.RecordDecision(ctx, DecisionInput{Decision: "Persist graphs atomically"})

	// Then: ERR_506 and the row stays pending
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeEmbeddingPending, amerrors.GetCode(err))
	me, ok := amerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, store.TableDecisions, me.Details["table"])
	assert.NotEmpty(t, me.Suggestion)

	c := env.counts(t, "alpha")
	assert.Equal(t, 1, c[store.TableDecisions].Total)
	assert.Equal(t, 1, c[store.TableDecisions].Pending)

	// When: the index recovers and reconcile runs
	env.vector.fail.Store(false)
	report, err := env.svc.Reconcile(ctx)

	// Then: the row is repaired
	require.NoError(t, err)
	assert.Equal(t, 1, report.Tables[store.TableDecisions].Repaired)
	assert.Equal(t, 0, report.Failed())
	assert.Equal(t, 0, env.counts(t, "alpha")[store.TableDecisions].Pending)
	assert.Equal(t, 1, env.vector.Count(store.TableDecisions))
}

func TestRepository_Write_UnchangedDocSkipsVector(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	entry := func() *store.DocumentationEntry {
		return &store.DocumentationEntry{
			ProjectID:   env.project(t, "alpha").ID,
			Title:       "Install",
			Content:     "Run make install",
			ContentHash: ContentHash("Run make install"),
			Path:        "README.md",
		}
	}

	first, err := env.svc.Repository().Write(ctx, entry())
	require.NoError(t, err)
	assert.Equal(t, ChangeCreated, first.Change)

	env.vector.fail.Store(true)
	second, err := env.svc.Repository().Write(ctx, entry())

	require.NoError(t, err, "an unchanged ready row never reaches the vector index")
	assert.Equal(t, ChangeUnchanged, second.Change)
	assert.Equal(t, first.Row.EmbeddingID, second.Row.EmbeddingID)
}

// =============================================================================
// Consistency
// =============================================================================

func TestRepository_Check(t *testing.T) {
	// Given: one ready row, one pending row, one row whose vector is gone
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := env.svc.RecordDecision(ctx, DecisionInput{Decision: "decision " + strconv.Itoa(i)})
		require.NoError(t, err)
	}
	rows, err := env.store.EmbeddedRows(ctx, store.TableDecisions, "")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.NoError(t, env.store.MarkEmbedding(ctx, store.TableDecisions, rows[0].RowID, store.EmbeddingPending))
	require.NoError(t, env.vector.ResetTable(store.TableDecisions, 384))

	// When: checking the table
	result, err := env.svc.Repository().Check(ctx, store.TableDecisions)

	// Then: every row is reported once
	require.NoError(t, err)
	assert.Equal(t, 3, result.Checked)
	require.Len(t, result.Inconsistencies, 3)
	types := map[InconsistencyType]int{}
	for _, issue := range result.Inconsistencies {
		types[issue.Type]++
	}
	assert.Equal(t, 1, types[InconsistencyPending])
	assert.Equal(t, 2, types[InconsistencyMissingVector])
}

func TestRepository_Reconcile_MissingVectors(t *testing.T) {
	// Given: ready rows whose vectors were lost
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.svc.RecordDecision(ctx, DecisionInput{Decision: "Use errgroup for fan-out"})
	require.NoError(t, err)
	_, err = env.svc.TrackProgress(ctx, ProgressInput{Milestone: "Search", Status: "completed"})
	require.NoError(t, err)
	require.NoError(t, env.vector.ResetTable(store.TableDecisions, 384))
	require.False(t, env.vector.Contains(store.TableDecisions, res.EmbeddingID))

	// When: reconciling
	report, err := env.svc.Reconcile(ctx)

	// Then: only the damaged table is repaired
	require.NoError(t, err)
	assert.Equal(t, TableReconcile{Checked: 1, Repaired: 1}, report.Tables[store.TableDecisions])
	assert.Equal(t, TableReconcile{Checked: 1}, report.Tables[store.TableProgress])
	assert.Equal(t, 1, report.Repaired())
	assert.True(t, env.vector.Contains(store.TableDecisions, res.EmbeddingID))
}

func TestRepository_Reconcile_FailureStaysPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.RecordDecision(ctx, DecisionInput{Decision: "Retry later"})
	require.NoError(t, err)
	require.NoError(t, env.vector.ResetTable(store.TableDecisions, 384))
	env.vector.fail.Store(true)

	report, err := env.svc.Reconcile(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, env.counts(t, "alpha")[store.TableDecisions].Pending)
}

func TestInconsistencyType_String(t *testing.T) {
	assert.Equal(t, "pending", InconsistencyPending.String())
	assert.Equal(t, "missing_vector", InconsistencyMissingVector.String())
	assert.Equal(t, "unknown", InconsistencyType(9).String())
}
