package search

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Aman-CERP/amanmem/internal/store"
)

// searchKeyword queries the keyword index, wrapping failures in a SearchError.
func searchKeyword(ctx context.Context, idx store.KeywordIndex, q store.KeywordQuery) ([]*store.KeywordHit, error) {
	hits, err := idx.Search(ctx, q)
	if err != nil {
		return nil, &SearchError{Source: SourceKeyword, Table: q.Table, Err: err}
	}
	return hits, nil
}

// degradeToEmpty turns a read failure into an empty list, logged at Warn.
// Failures caused by a done context are not logged.
func degradeToEmpty[T any](ctx context.Context, items []T, err error) []T {
	if err == nil {
		return items
	}
	if ctx.Err() == nil {
		attrs := []any{slog.String("error", err.Error())}
		var se *SearchError
		if errors.As(err, &se) {
			attrs = append(attrs, slog.String("source", se.Source), slog.String("table", se.Table))
		}
		slog.Warn("search degraded to empty result", attrs...)
	}
	return []T{}
}
