package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/amanmem/internal/store"
)

// InconsistencyType categorizes a row whose vector is not in step.
type InconsistencyType int

const (
	// InconsistencyPending is a row still marked pending.
	InconsistencyPending InconsistencyType = iota
	// InconsistencyMissingVector is a ready row with no vector record.
	InconsistencyMissingVector
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyPending:
		return "pending"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// Inconsistency is one row that needs re-embedding.
type Inconsistency struct {
	Type InconsistencyType
	Row  *store.EmbeddedRow
}

// CheckResult is the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of rows verified.
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// TableReconcile counts repairs in one table.
type TableReconcile struct {
	Checked  int `json:"checked"`
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
}

// ReconcileReport is returned by Reconcile.
type ReconcileReport struct {
	Tables   map[string]TableReconcile `json:"tables"`
	Duration time.Duration             `json:"duration"`
}

// Repaired sums repairs across tables.
func (r *ReconcileReport) Repaired() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Repaired
	}
	return n
}

// Failed sums failures across tables.
func (r *ReconcileReport) Failed() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Failed
	}
	return n
}

// Check scans table for rows that are pending or whose vector is missing.
// The structured store is the source of truth.
func (r *Repository) Check(ctx context.Context, table string) (*CheckResult, error) {
	start := time.Now()
	rows, err := r.store.EmbeddedRows(ctx, table, "")
	if err != nil {
		return nil, err
	}

	var issues []Inconsistency
	for _, row := range rows {
		switch {
		case row.Status == store.EmbeddingPending:
			issues = append(issues, Inconsistency{Type: InconsistencyPending, Row: row})
		case !r.vector.Contains(table, row.EmbeddingID):
			issues = append(issues, Inconsistency{Type: InconsistencyMissingVector, Row: row})
		}
	}
	return &CheckResult{
		Checked:         len(rows),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Reconcile re-embeds every pending row and every ready row whose vector is
// missing, across all tables. Rows that fail again stay pending. Built
// keyword tables with repairs are rebuilt from the store.
func (r *Repository) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	start := time.Now()
	report := &ReconcileReport{Tables: make(map[string]TableReconcile, len(store.SearchableTables))}

	for _, table := range store.SearchableTables {
		check, err := r.Check(ctx, table)
		if err != nil {
			return report, err
		}
		tr := TableReconcile{Checked: check.Checked}
		err = r.vector.Batch(ctx, func(ctx context.Context) error {
			for _, issue := range check.Inconsistencies {
				if err := ctx.Err(); err != nil {
					return err
				}
				if r.repair(ctx, issue) {
					tr.Repaired++
				} else {
					tr.Failed++
				}
			}
			return nil
		})
		report.Tables[table] = tr
		if err != nil {
			return report, err
		}

		if tr.Repaired > 0 && r.keyword.Built(ctx, table) {
			if err := r.keyword.Rebuild(ctx, table); err != nil {
				slog.Warn("keyword rebuild failed",
					slog.String("table", table),
					slog.String("error", err.Error()))
			}
		}
	}

	report.Duration = time.Since(start)
	slog.Info("reconcile complete",
		slog.Int("repaired", report.Repaired()),
		slog.Int("failed", report.Failed()),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// repair re-embeds one row. Failures are logged and leave the row pending.
func (r *Repository) repair(ctx context.Context, issue Inconsistency) bool {
	row := issue.Row
	fail := func(step string, err error) bool {
		slog.Warn("reconcile row failed",
			slog.String("table", row.Table),
			slog.String("id", row.RowID),
			slog.String("issue", issue.Type.String()),
			slog.String("step", step),
			slog.String("error", err.Error()))
		if row.Status != store.EmbeddingPending {
			_ = r.store.MarkEmbedding(ctx, row.Table, row.RowID, store.EmbeddingPending)
		}
		return false
	}

	vec, err := r.Embed(ctx, row.Text)
	if err != nil {
		return fail("embed", err)
	}
	if err := r.vector.Add(ctx, row.Table, row.EmbeddingRecord(vec)); err != nil {
		return fail("vector", err)
	}
	if err := r.store.MarkEmbedding(ctx, row.Table, row.RowID, store.EmbeddingReady); err != nil {
		return fail("mark", err)
	}
	return true
}
