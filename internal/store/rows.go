package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EmbeddedRow projects a decision onto the table-agnostic row view.
func (d *Decision) EmbeddedRow() *EmbeddedRow {
	parts := []string{d.Decision}
	if d.Context != "" {
		parts = append(parts, "Context: "+d.Context)
	}
	if d.Impact != "" {
		parts = append(parts, "Impact: "+d.Impact)
	}
	if len(d.Alternatives) > 0 {
		parts = append(parts, "Alternatives: "+strings.Join(d.Alternatives, "; "))
	}
	return &EmbeddedRow{
		Table:       TableDecisions,
		RowID:       d.ID,
		ProjectID:   d.ProjectID,
		EmbeddingID: d.EmbeddingID,
		Status:      d.EmbeddingStatus,
		Text:        strings.Join(parts, "\n"),
		Display:     d.Decision,
		Metadata: map[string]string{
			"impact":     d.Impact,
			"created_at": d.CreatedAt.Format(time.RFC3339),
		},
	}
}

// EmbeddedRow projects a milestone onto the table-agnostic row view.
func (p *Progress) EmbeddedRow() *EmbeddedRow {
	parts := []string{p.Milestone + " (" + string(p.Status) + ")"}
	if p.Notes != "" {
		parts = append(parts, p.Notes)
	}
	if len(p.Blockers) > 0 {
		parts = append(parts, "Blockers: "+strings.Join(p.Blockers, "; "))
	}
	return &EmbeddedRow{
		Table:       TableProgress,
		RowID:       p.ID,
		ProjectID:   p.ProjectID,
		EmbeddingID: p.EmbeddingID,
		Status:      p.EmbeddingStatus,
		Text:        strings.Join(parts, "\n"),
		Display:     p.Milestone + ": " + string(p.Status),
		Metadata: map[string]string{
			"milestone": p.Milestone,
			"status":    string(p.Status),
		},
	}
}

// EmbeddedRow projects a code pattern onto the table-agnostic row view.
// The embedded text is the content alone so identical code has distance 0.
func (c *CodePattern) EmbeddedRow() *EmbeddedRow {
	return &EmbeddedRow{
		Table:       TableCodePatterns,
		RowID:       c.ID,
		ProjectID:   c.ProjectID,
		EmbeddingID: c.EmbeddingID,
		Status:      c.EmbeddingStatus,
		Text:        c.Content,
		Display:     c.Content,
		Metadata: map[string]string{
			"file_path": c.FilePath,
			"language":  c.Language,
			"symbols":   strings.Join(c.Symbols, " "),
		},
	}
}

// EmbeddedRow projects a documentation section onto the row view.
func (e *DocumentationEntry) EmbeddedRow() *EmbeddedRow {
	return &EmbeddedRow{
		Table:       TableDocumentation,
		RowID:       e.ID,
		ProjectID:   e.ProjectID,
		EmbeddingID: e.EmbeddingID,
		Status:      e.EmbeddingStatus,
		Text:        e.Title + "\n" + e.Content,
		Display:     e.Content,
		Metadata: map[string]string{
			"title":  e.Title,
			"path":   e.Path,
			"source": e.Source,
		},
	}
}

// KeywordDocument builds the keyword-index view of a row. Metadata values
// such as file paths and symbol names are searchable alongside the text.
func (r *EmbeddedRow) KeywordDocument() *KeywordDocument {
	content := []string{r.Text}
	for _, key := range []string{"file_path", "symbols", "title", "path", "milestone"} {
		if v := r.Metadata[key]; v != "" {
			content = append(content, v)
		}
	}
	return &KeywordDocument{
		RowID:       r.RowID,
		EmbeddingID: r.EmbeddingID,
		ProjectID:   r.ProjectID,
		Text:        r.Display,
		Content:     strings.Join(content, "\n"),
	}
}

// EmbeddingRecord builds the vector-index record for a row.
func (r *EmbeddedRow) EmbeddingRecord(vector []float32) *EmbeddingRecord {
	meta := make(map[string]string, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	meta["table"] = r.Table
	return &EmbeddingRecord{
		ID:        r.EmbeddingID,
		RowID:     r.RowID,
		ProjectID: r.ProjectID,
		Text:      r.Display,
		Vector:    vector,
		Metadata:  meta,
	}
}

// EmbeddedRows returns every row of table across all projects. A non-empty
// status restricts the result to rows in that state.
func (s *SQLiteStore) EmbeddedRows(ctx context.Context, table string, status EmbeddingStatus) ([]*EmbeddedRow, error) {
	if !ValidTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var columns string
	var scan func(interface{ Scan(...any) error }) (*EmbeddedRow, error)
	switch table {
	case TableDecisions:
		columns = decisionColumns
		scan = func(r interface{ Scan(...any) error }) (*EmbeddedRow, error) {
			d, err := scanDecision(r)
			if err != nil {
				return nil, err
			}
			return d.EmbeddedRow(), nil
		}
	case TableProgress:
		columns = progressColumns
		scan = func(r interface{ Scan(...any) error }) (*EmbeddedRow, error) {
			p, err := scanProgress(r)
			if err != nil {
				return nil, err
			}
			return p.EmbeddedRow(), nil
		}
	case TableCodePatterns:
		columns = patternColumns
		scan = func(r interface{ Scan(...any) error }) (*EmbeddedRow, error) {
			c, err := scanPattern(r)
			if err != nil {
				return nil, err
			}
			return c.EmbeddedRow(), nil
		}
	default:
		columns = docColumns
		scan = func(r interface{ Scan(...any) error }) (*EmbeddedRow, error) {
			e, err := scanDoc(r)
			if err != nil {
				return nil, err
			}
			return e.EmbeddedRow(), nil
		}
	}

	q := fmt.Sprintf(`SELECT %s FROM %s`, columns, table)
	var args []any
	if status != "" {
		q += ` WHERE embedding_status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s rows: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*EmbeddedRow
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// KeywordDocuments returns the searchable view of every row in table.
// Keyword indexes call it to build themselves lazily.
func (s *SQLiteStore) KeywordDocuments(ctx context.Context, table string) ([]*KeywordDocument, error) {
	rows, err := s.EmbeddedRows(ctx, table, "")
	if err != nil {
		return nil, err
	}
	docs := make([]*KeywordDocument, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.KeywordDocument())
	}
	return docs, nil
}
