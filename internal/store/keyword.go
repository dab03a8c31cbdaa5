package store

import (
	"context"
	"fmt"
	"strings"
)

// KeywordIndex ranks rows of a table by full-text relevance. Tables are
// built lazily from a KeywordSource on first search.
type KeywordIndex interface {
	// Search returns hits ordered by descending Score. A non-empty
	// ProjectID is applied before the limit.
	Search(ctx context.Context, q KeywordQuery) ([]*KeywordHit, error)

	// Add indexes docs into an already-built table. Unbuilt tables ignore
	// it; they pick the rows up when they are built.
	Add(ctx context.Context, table string, docs ...*KeywordDocument) error

	// Rebuild discards a table's index and builds it again from the source.
	Rebuild(ctx context.Context, table string) error

	// Built reports whether the table's index exists.
	Built(ctx context.Context, table string) bool

	// Backend names the implementation.
	Backend() string

	Close() error
}

// KeywordSource supplies the rows a keyword table is built from.
type KeywordSource interface {
	KeywordDocuments(ctx context.Context, table string) ([]*KeywordDocument, error)
}

// Keyword index backends.
const (
	KeywordBackendSQLite = "sqlite"
	KeywordBackendBleve  = "bleve"
)

// NewKeywordIndex creates the configured backend. The sqlite backend shares
// the store's connection; the bleve backend keeps one index per table under
// dir, or in memory when dir is empty.
func NewKeywordIndex(backend string, st *SQLiteStore, dir string) (KeywordIndex, error) {
	switch strings.ToLower(backend) {
	case KeywordBackendSQLite, "":
		return NewFTSKeywordIndex(st.DB(), st), nil
	case KeywordBackendBleve:
		return NewBleveKeywordIndex(dir, st)
	default:
		return nil, fmt.Errorf("unknown keyword backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// queryTokens prepares a query with the same tokenization used at index time.
func queryTokens(query string, stopWords map[string]struct{}) []string {
	return uniqueTokens(FilterStopWords(TokenizeCode(query), stopWords))
}

// indexContent prepares a document body for indexing.
func indexContent(content string, stopWords map[string]struct{}) string {
	return strings.Join(FilterStopWords(TokenizeCode(content), stopWords), " ")
}
