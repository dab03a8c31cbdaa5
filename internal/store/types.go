// Package store is the persistence layer: the SQLite structured store,
// the per-table keyword indexes and the per-table HNSW vector index.
package store

import (
	"errors"
	"time"
)

// Searchable tables. Each has a keyword index and a vector table.
const (
	TableDecisions     = "decisions"
	TableProgress      = "progress"
	TableCodePatterns  = "code_patterns"
	TableDocumentation = "documentation"
)

// SearchableTables lists every table that carries an embedding_id.
var SearchableTables = []string{
	TableDecisions,
	TableProgress,
	TableCodePatterns,
	TableDocumentation,
}

// ValidTable reports whether table is searchable.
func ValidTable(table string) bool {
	for _, t := range SearchableTables {
		if t == table {
			return true
		}
	}
	return false
}

// EmbeddingStatus tracks whether a row's vector has been written.
type EmbeddingStatus string

const (
	EmbeddingPending EmbeddingStatus = "pending"
	EmbeddingReady   EmbeddingStatus = "ready"
)

// ProgressStatus is the lifecycle state of a milestone.
type ProgressStatus string

const (
	StatusNotStarted ProgressStatus = "not_started"
	StatusInProgress ProgressStatus = "in_progress"
	StatusTesting    ProgressStatus = "testing"
	StatusCompleted  ProgressStatus = "completed"
	StatusBlocked    ProgressStatus = "blocked"
)

// ValidProgressStatus reports whether s is a known status.
func ValidProgressStatus(s ProgressStatus) bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusTesting, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// State keys for index_state.
const (
	// StateKeyVectorModel prefixes the per-table model key: vector_model:<table>.
	StateKeyVectorModel = "vector_model"
	// StateKeyVectorDims prefixes the per-table dimension.
	StateKeyVectorDims = "vector_dims"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a unique key already has a row.
	ErrAlreadyExists = errors.New("already exists")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
	// ErrUnknownTable is returned for tables outside SearchableTables.
	ErrUnknownTable = errors.New("unknown table")
	// ErrDimensionMismatch is returned when a vector does not fit its table.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Project scopes every other entity.
type Project struct {
	ID        string
	Name      string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Decision is an immutable architectural decision record.
type Decision struct {
	ID              string
	ProjectID       string
	Decision        string
	Context         string
	Impact          string
	Alternatives    []string
	EmbeddingID     string
	EmbeddingStatus EmbeddingStatus
	CreatedAt       time.Time
}

// Progress is a milestone, unique per project.
type Progress struct {
	ID              string
	ProjectID       string
	Milestone       string
	Status          ProgressStatus
	Notes           string
	Blockers        []string
	EmbeddingID     string
	EmbeddingStatus EmbeddingStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CodePattern is a stored code fragment, idempotent on PatternHash.
type CodePattern struct {
	ID              string
	ProjectID       string
	PatternHash     string
	FilePath        string
	Language        string
	Content         string
	Symbols         []string
	EmbeddingID     string
	EmbeddingStatus EmbeddingStatus
	CreatedAt       time.Time
}

// DocumentationEntry is one section of an indexed document.
type DocumentationEntry struct {
	ID              string
	ProjectID       string
	Title           string
	Content         string
	ContentHash     string
	Source          string
	Path            string
	EmbeddingID     string
	EmbeddingStatus EmbeddingStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EmbeddedRow is the table-agnostic view of a row used by reconcile and
// migration: enough to re-embed it and rebuild its vector record.
type EmbeddedRow struct {
	Table       string
	RowID       string
	ProjectID   string
	EmbeddingID string
	Status      EmbeddingStatus
	// Text is what gets embedded.
	Text string
	// Display is the human-facing text returned in search results.
	Display  string
	Metadata map[string]string
}

// KeywordDocument is a row as seen by a keyword index.
type KeywordDocument struct {
	RowID       string
	EmbeddingID string
	ProjectID   string
	// Text is returned with hits.
	Text string
	// Content is the searchable body.
	Content string
}

// KeywordHit is a ranked keyword match. Score is higher-is-better, unnormalized.
type KeywordHit struct {
	RowID       string
	EmbeddingID string
	ProjectID   string
	Text        string
	Score       float64
}

// KeywordQuery scopes a keyword search. An empty ProjectID searches all projects.
type KeywordQuery struct {
	Table     string
	ProjectID string
	Query     string
	Limit     int
}

// EmbeddingRecord is the vector-index side of a row; ID equals the row's
// embedding_id.
type EmbeddingRecord struct {
	ID        string
	RowID     string
	ProjectID string
	Text      string
	Vector    []float32
	Metadata  map[string]string
	// Seed marks the initializer row each table is created with.
	Seed bool
}

// VectorHit is a nearest neighbor. Distance is cosine distance, lower is closer.
type VectorHit struct {
	ID        string
	RowID     string
	ProjectID string
	Text      string
	Metadata  map[string]string
	Distance  float32
}

// Similarity converts Distance to 1 - distance, clamped to [0, 1].
func (h *VectorHit) Similarity() float64 {
	s := 1 - float64(h.Distance)
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
