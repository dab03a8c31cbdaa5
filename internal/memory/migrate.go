package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Aman-CERP/amanmem/internal/embed"
	amerrors "github.com/Aman-CERP/amanmem/internal/errors"
	"github.com/Aman-CERP/amanmem/internal/store"
)

// TableMigration counts rows moved to the new model in one table.
type TableMigration struct {
	Migrated int `json:"migrated"`
	Failed   int `json:"failed"`
}

// MigrationReport is returned by Migrate.
type MigrationReport struct {
	ModelKey   string                    `json:"model_key"`
	Dimensions int                       `json:"dimensions"`
	Tables     map[string]TableMigration `json:"tables"`
	Duration   time.Duration             `json:"duration"`
}

// Migrate re-embeds every row of every table with modelKey into freshly
// reset vector tables sized for the new model, then records the key in
// index_state. Writes and queries switch to modelKey as soon as the model
// loads.
//
// Migration is best-effort: rows that fail are marked pending and the
// report counts them; nothing is rolled back and an interrupted run is not
// resumed. Reconcile picks up the pending rows later.
func (r *Repository) Migrate(ctx context.Context, modelKey string) (*MigrationReport, error) {
	start := time.Now()
	dims, err := r.provider.Dimensions(ctx, modelKey)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeMigrationFailed, "load model "+modelKey, err)
	}

	r.setModelKey(modelKey)

	report := &MigrationReport{
		ModelKey:   modelKey,
		Dimensions: dims,
		Tables:     make(map[string]TableMigration, len(store.SearchableTables)),
	}
	for _, table := range store.SearchableTables {
		tm, err := r.migrateTable(ctx, table, modelKey, dims)
		report.Tables[table] = tm
		if err != nil {
			return report, amerrors.New(amerrors.ErrCodeMigrationFailed, "migrate "+table, err)
		}
	}

	report.Duration = time.Since(start)
	slog.Info("embedding migration complete",
		slog.String("model_key", modelKey),
		slog.Int("dims", dims),
		slog.Duration("duration", report.Duration))
	return report, nil
}

func (r *Repository) migrateTable(ctx context.Context, table, modelKey string, dims int) (TableMigration, error) {
	var tm TableMigration
	rows, err := r.store.EmbeddedRows(ctx, table, "")
	if err != nil {
		return tm, err
	}
	if err := r.vector.ResetTable(table, dims); err != nil {
		return tm, fmt.Errorf("reset vector table: %w", err)
	}

	err = r.vector.Batch(ctx, func(ctx context.Context) error {
		for batchStart := 0; batchStart < len(rows); batchStart += embed.DefaultBatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch := rows[batchStart:min(batchStart+embed.DefaultBatchSize, len(rows))]
			texts := make([]string, len(batch))
			for i, row := range batch {
				texts[i] = row.Text
			}

			vecs, err := r.provider.EmbedBatchWith(ctx, modelKey, texts)
			if err != nil {
				slog.Warn("migration batch failed",
					slog.String("table", table),
					slog.Int("rows", len(batch)),
					slog.String("error", err.Error()))
			}
			for i, row := range batch {
				var vec []float32
				if err == nil {
					vec = vecs[i]
				}
				if r.migrateRow(ctx, table, row, vec) {
					tm.Migrated++
				} else {
					tm.Failed++
				}
			}
		}
		return nil
	})
	if err != nil {
		return tm, err
	}

	if err := r.store.SetState(ctx, store.StateKey(store.StateKeyVectorModel, table), modelKey); err != nil {
		return tm, err
	}
	if err := r.store.SetState(ctx, store.StateKey(store.StateKeyVectorDims, table), strconv.Itoa(dims)); err != nil {
		return tm, err
	}
	return tm, nil
}

// migrateRow stores vec for row and marks it ready. A nil vec, or any
// failed step, leaves the row pending.
func (r *Repository) migrateRow(ctx context.Context, table string, row *store.EmbeddedRow, vec []float32) bool {
	if vec != nil {
		step := "vector"
		err := r.vector.Add(ctx, table, row.EmbeddingRecord(vec))
		if err == nil {
			step = "mark"
			err = r.store.MarkEmbedding(ctx, table, row.RowID, store.EmbeddingReady)
		}
		if err == nil {
			return true
		}
		slog.Warn("migration row failed",
			slog.String("table", table),
			slog.String("id", row.RowID),
			slog.String("step", step),
			slog.String("error", err.Error()))
	}
	if err := r.store.MarkEmbedding(ctx, table, row.RowID, store.EmbeddingPending); err != nil {
		slog.Warn("mark row pending failed",
			slog.String("table", table),
			slog.String("id", row.RowID),
			slog.String("error", err.Error()))
	}
	return false
}
