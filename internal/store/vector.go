package store

import "context"

// VectorIndex stores one embedding table per searchable table.
//
// Search returns neighbors by ascending cosine distance without any project
// or threshold filtering; callers over-fetch and filter.
type VectorIndex interface {
	// Add inserts rec, replacing any record with the same ID. The first add
	// to a table fixes its dimension.
	Add(ctx context.Context, table string, rec *EmbeddingRecord) error
	Search(ctx context.Context, table string, vector []float32, limit int) ([]*VectorHit, error)
	Contains(table, id string) bool
	// Count excludes the seed row.
	Count(table string) int
	// Dimensions returns 0 for a table that does not exist yet.
	Dimensions(table string) int
	// ResetTable discards a table and recreates it, seeded, with dims.
	ResetTable(table string, dims int) error
	// Batch runs fn with persistence deferred: tables changed while any
	// batch is open are saved once, when the outermost batch ends.
	Batch(ctx context.Context, fn func(ctx context.Context) error) error
	Close() error
}
