// Package memory is the project memory layer: a repository that keeps the
// structured store, the vector index and the keyword index in step, and the
// service that exposes decisions, progress, code patterns, documentation
// and search to the command surfaces.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/amanmem/internal/embed"
	amerrors "github.com/Aman-CERP/amanmem/internal/errors"
	"github.com/Aman-CERP/amanmem/internal/store"
)

// Entity is a storable row with an embedding: *store.Decision,
// *store.Progress, *store.CodePattern or *store.DocumentationEntry.
type Entity interface {
	EmbeddedRow() *store.EmbeddedRow
}

// Change reports what Write did to the structured row.
type Change string

const (
	ChangeCreated   Change = "created"
	ChangeUpdated   Change = "updated"
	ChangeUnchanged Change = "unchanged"
)

// WriteResult describes a completed write.
type WriteResult struct {
	Row    *store.EmbeddedRow
	Change Change
}

// Repository sequences the structured write and the vector write of every
// entity. The two are not atomic: a row whose vector could not be written
// stays marked pending until Reconcile repairs it.
type Repository struct {
	store    *store.SQLiteStore
	keyword  store.KeywordIndex
	vector   store.VectorIndex
	provider *embed.Provider

	mu       sync.RWMutex
	modelKey string
}

// NewRepository wires the stores and the embedding provider. modelKey
// selects the pipeline used for writes and queries.
func NewRepository(st *store.SQLiteStore, keyword store.KeywordIndex, vector store.VectorIndex, provider *embed.Provider, modelKey string) *Repository {
	if modelKey == "" {
		modelKey = provider.DefaultKey()
	}
	return &Repository{
		store:    st,
		keyword:  keyword,
		vector:   vector,
		provider: provider,
		modelKey: modelKey,
	}
}

// ModelKey returns the active embedding model key.
func (r *Repository) ModelKey() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modelKey
}

func (r *Repository) setModelKey(key string) {
	r.mu.Lock()
	r.modelKey = key
	r.mu.Unlock()
}

// Embed embeds text with the active model. The orchestrator and the
// duplicate detector use it to embed queries.
func (r *Repository) Embed(ctx context.Context, text string) ([]float32, error) {
	return r.provider.EmbedWith(ctx, r.ModelKey(), text)
}

// Batch runs fn with vector persistence deferred until it returns, for
// callers that write many rows. Rows written inside are marked ready
// before their vectors reach disk; Reconcile repairs them after a crash.
func (r *Repository) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.vector.Batch(ctx, fn)
}

// Write stores e and its embedding:
//
//  1. embed the row text; on failure nothing is written
//  2. insert or update the row with embedding_status=pending
//  3. add the vector record; on failure return ERR_506 and leave the row pending
//  4. mark the row ready
//  5. add the row to the keyword index if its table is built (best-effort)
//
// A code pattern whose hash exists returns store.ErrAlreadyExists from step 2.
func (r *Repository) Write(ctx context.Context, e Entity) (*WriteResult, error) {
	vec, err := r.Embed(ctx, e.EmbeddedRow().Text)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed, "embed entity", err)
	}

	change, err := r.insert(ctx, e)
	if err != nil {
		return nil, err
	}
	row := e.EmbeddedRow()
	if change == ChangeUnchanged && row.Status == store.EmbeddingReady && r.vector.Contains(row.Table, row.EmbeddingID) {
		return &WriteResult{Row: row, Change: change}, nil
	}

	if err := r.vector.Add(ctx, row.Table, row.EmbeddingRecord(vec)); err != nil {
		slog.Warn("vector write failed, row left pending",
			slog.String("table", row.Table),
			slog.String("id", row.RowID),
			slog.String("error", err.Error()))
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingPending,
			fmt.Sprintf("%s %s stored but its embedding is pending", row.Table, row.RowID), err).
			WithDetail("table", row.Table).
			WithDetail("id", row.RowID).
			WithSuggestion("Run 'amanmem reconcile' to retry pending embeddings")
	}

	if err := r.store.MarkEmbedding(ctx, row.Table, row.RowID, store.EmbeddingReady); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeStoreWrite, "mark embedding ready", err)
	}
	row.Status = store.EmbeddingReady

	if err := r.keyword.Add(ctx, row.Table, row.KeywordDocument()); err != nil {
		slog.Warn("keyword index update failed",
			slog.String("table", row.Table),
			slog.String("id", row.RowID),
			slog.String("error", err.Error()))
	}
	return &WriteResult{Row: row, Change: change}, nil
}

// insert dispatches the structured write by entity type.
func (r *Repository) insert(ctx context.Context, e Entity) (Change, error) {
	var (
		change = ChangeCreated
		err    error
	)
	switch v := e.(type) {
	case *store.Decision:
		err = r.store.InsertDecision(ctx, v)
	case *store.Progress:
		var created bool
		created, err = r.store.UpsertProgress(ctx, v)
		if !created {
			change = ChangeUpdated
		}
	case *store.CodePattern:
		err = r.store.InsertCodePattern(ctx, v)
	case *store.DocumentationEntry:
		var dc store.DocChange
		dc, err = r.store.UpsertDocumentation(ctx, v)
		change = Change(dc)
	default:
		return "", amerrors.InternalError(fmt.Sprintf("unsupported entity %T", e), nil)
	}

	if errors.Is(err, store.ErrAlreadyExists) {
		return "", err
	}
	if err != nil {
		return "", amerrors.New(amerrors.ErrCodeStoreWrite, "store write", err)
	}
	return change, nil
}
