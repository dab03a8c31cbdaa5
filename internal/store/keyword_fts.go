package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// FTSKeywordIndex implements KeywordIndex with one SQLite FTS5 virtual
// table per searchable table, living in the structured store's database.
// Content is pre-tokenized so camelCase and snake_case parts match.
type FTSKeywordIndex struct {
	mu        sync.Mutex
	db        *sql.DB
	source    KeywordSource
	stopWords map[string]struct{}
	built     map[string]bool
	closed    bool
}

var _ KeywordIndex = (*FTSKeywordIndex)(nil)

// NewFTSKeywordIndex creates an index over db fed by source.
func NewFTSKeywordIndex(db *sql.DB, source KeywordSource) *FTSKeywordIndex {
	return &FTSKeywordIndex{
		db:        db,
		source:    source,
		stopWords: BuildStopWordMap(DefaultStopWords),
		built:     make(map[string]bool),
	}
}

func ftsTable(table string) string {
	return "fts_" + table
}

// Backend implements KeywordIndex.
func (f *FTSKeywordIndex) Backend() string {
	return KeywordBackendSQLite
}

// Built implements KeywordIndex.
func (f *FTSKeywordIndex) Built(ctx context.Context, table string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok, _ := f.exists(ctx, table)
	return ok
}

// exists checks the cache, then sqlite_master, so tables built by another
// process are recognized. Caller holds mu.
func (f *FTSKeywordIndex) exists(ctx context.Context, table string) (bool, error) {
	if f.built[table] {
		return true, nil
	}
	var count int
	err := f.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, ftsTable(table)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check keyword table %s: %w", table, err)
	}
	if count > 0 {
		f.built[table] = true
	}
	return count > 0, nil
}

// ensureBuilt creates and fills the FTS table on first use. Caller holds mu.
func (f *FTSKeywordIndex) ensureBuilt(ctx context.Context, table string) error {
	ok, err := f.exists(ctx, table)
	if err != nil || ok {
		return err
	}

	// Read the source before opening the transaction: both share the
	// single connection.
	docs, err := f.source.KeywordDocuments(ctx, table)
	if err != nil {
		return fmt.Errorf("load %s rows for keyword index: %w", table, err)
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(
			row_id UNINDEXED,
			embedding_id UNINDEXED,
			project_id UNINDEXED,
			text UNINDEXED,
			content,
			tokenize='unicode61'
		)`, ftsTable(table)))
	if err != nil {
		return fmt.Errorf("create keyword table %s: %w", table, err)
	}

	if err := f.insert(ctx, tx, table, docs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit keyword table %s: %w", table, err)
	}

	f.built[table] = true
	slog.Debug("keyword index built",
		slog.String("backend", KeywordBackendSQLite),
		slog.String("table", table),
		slog.Int("rows", len(docs)))
	return nil
}

// insert replaces docs by row_id. FTS5 has no REPLACE, so delete first.
func (f *FTSKeywordIndex) insert(ctx context.Context, tx *sql.Tx, table string, docs []*KeywordDocument) error {
	if len(docs) == 0 {
		return nil
	}

	deleteStmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE row_id = ?`, ftsTable(table)))
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer func() { _ = deleteStmt.Close() }()

	insertStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (row_id, embedding_id, project_id, text, content) VALUES (?, ?, ?, ?, ?)`,
		ftsTable(table)))
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer func() { _ = insertStmt.Close() }()

	for _, doc := range docs {
		if _, err := deleteStmt.ExecContext(ctx, doc.RowID); err != nil {
			return fmt.Errorf("failed to delete existing row %s: %w", doc.RowID, err)
		}
		if _, err := insertStmt.ExecContext(ctx, doc.RowID, doc.EmbeddingID, doc.ProjectID, doc.Text,
			indexContent(doc.Content, f.stopWords)); err != nil {
			return fmt.Errorf("failed to index row %s: %w", doc.RowID, err)
		}
	}
	return nil
}

// Add implements KeywordIndex.
func (f *FTSKeywordIndex) Add(ctx context.Context, table string, docs ...*KeywordDocument) error {
	if !ValidTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	ok, err := f.exists(ctx, table)
	if err != nil || !ok {
		return err
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := f.insert(ctx, tx, table, docs); err != nil {
		return err
	}
	return tx.Commit()
}

// Rebuild implements KeywordIndex.
func (f *FTSKeywordIndex) Rebuild(ctx context.Context, table string) error {
	if !ValidTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	if _, err := f.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, ftsTable(table))); err != nil {
		return fmt.Errorf("drop keyword table %s: %w", table, err)
	}
	delete(f.built, table)
	return f.ensureBuilt(ctx, table)
}

// Search implements KeywordIndex. Query tokens are OR-ed so partial matches
// rank instead of failing; bm25() is negated so higher is better.
func (f *FTSKeywordIndex) Search(ctx context.Context, q KeywordQuery) ([]*KeywordHit, error) {
	if !ValidTable(q.Table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, q.Table)
	}

	tokens := queryTokens(q.Query, f.stopWords)
	if len(tokens) == 0 {
		return []*KeywordHit{}, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}

	if err := f.ensureBuilt(ctx, q.Table); err != nil {
		return nil, err
	}

	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	match := strings.Join(quoted, " OR ")

	table := ftsTable(q.Table)
	stmt := fmt.Sprintf(`
		SELECT row_id, embedding_id, project_id, text, bm25(%s) AS score
		FROM %s
		WHERE %s MATCH ?`, table, table, table)
	args := []any{match}
	if q.ProjectID != "" {
		stmt += ` AND project_id = ?`
		args = append(args, q.ProjectID)
	}
	stmt += ` ORDER BY score LIMIT ?`
	args = append(args, sqlLimit(q.Limit))

	rows, err := f.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*KeywordHit{}, nil
		}
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := []*KeywordHit{}
	for rows.Next() {
		var h KeywordHit
		var score float64
		if err := rows.Scan(&h.RowID, &h.EmbeddingID, &h.ProjectID, &h.Text, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		h.Score = -score
		hits = append(hits, &h)
	}
	return hits, rows.Err()
}

// Close implements KeywordIndex. The connection belongs to the store.
func (f *FTSKeywordIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
