package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/amanmem/internal/docs"
	"github.com/Aman-CERP/amanmem/internal/memory"
	"github.com/Aman-CERP/amanmem/internal/search"
)

// previewRunes caps the text shown per result.
const previewRunes = 240

// SearchResults prints ranked search hits.
func (w *Writer) SearchResults(query string, results []*search.Result) {
	if len(results) == 0 {
		w.Statusf("🔍", "No results for %q", query)
		return
	}
	w.Statusf("🔍", "%d %s for %q", len(results), plural(len(results), "result", "results"), query)
	w.Newline()
	for i, r := range results {
		_, _ = fmt.Fprintf(w.out, "%2d. [%s] score %.3f (%s", i+1, r.Table, r.Score, r.Source)
		if r.Source == search.SourceHybrid {
			_, _ = fmt.Fprintf(w.out, ": vector %.3f, keyword %.3f", r.VectorScore, r.KeywordScore)
		}
		_, _ = fmt.Fprintln(w.out, ")")
		if path := r.Metadata["file_path"]; path != "" {
			_, _ = fmt.Fprintf(w.out, "    %s\n", path)
		}
		w.indented(preview(r.Text, previewRunes))
	}
}

// MemoryItems prints decisions and progress, newest first or by score.
func (w *Writer) MemoryItems(items []*memory.MemoryItem) {
	if len(items) == 0 {
		w.Status("📭", "No memory recorded yet")
		return
	}
	for _, it := range items {
		_, _ = fmt.Fprintf(w.out, "%s  %-8s %s", it.Timestamp.Local().Format("2006-01-02 15:04"), it.Kind, it.Text)
		if it.Score != 0 {
			_, _ = fmt.Fprintf(w.out, "  (%.3f)", it.Score)
		}
		_, _ = fmt.Fprintln(w.out)
		if it.Details != "" {
			w.indented(preview(it.Details, previewRunes))
		}
	}
}

// Duplicates prints the outcome of a duplicate check.
func (w *Writer) Duplicates(report *search.DuplicateReport) {
	if len(report.Duplicates) == 0 {
		w.Success(report.Message)
		return
	}
	w.Warning(report.Message)
	w.Newline()
	for _, d := range report.Duplicates {
		_, _ = fmt.Fprintf(w.out, "  %.0f%%  %s (%s)\n", d.Similarity*100, d.FilePath, d.Language)
		w.indented(preview(d.Content, previewRunes))
	}
}

// Analysis prints a query classification.
func (w *Writer) Analysis(query string, a search.Analysis) {
	w.Statusf("🧭", "%q", query)
	_, _ = fmt.Fprintf(w.out, "   type:       %s\n", a.Type)
	_, _ = fmt.Fprintf(w.out, "   strategy:   %s\n", a.Strategy)
	_, _ = fmt.Fprintf(w.out, "   confidence: %.2f\n", a.Confidence)
	if len(a.Keywords) > 0 {
		_, _ = fmt.Fprintf(w.out, "   keywords:   %s\n", strings.Join(a.Keywords, ", "))
	}
	var flags []string
	for _, f := range []struct {
		on   bool
		name string
	}{
		{a.HasCodeElements, "code"},
		{a.HasSpecificTerms, "specific"},
		{a.IsNaturalLanguage, "natural-language"},
		{a.IsNavigational, "navigational"},
	} {
		if f.on {
			flags = append(flags, f.name)
		}
	}
	if len(flags) > 0 {
		_, _ = fmt.Fprintf(w.out, "   signals:    %s\n", strings.Join(flags, ", "))
	}
}

// Reconcile prints per-table repair counts.
func (w *Writer) Reconcile(r *memory.ReconcileReport) {
	for _, table := range sortedKeys(r.Tables) {
		t := r.Tables[table]
		_, _ = fmt.Fprintf(w.out, "   %-15s checked %d, repaired %d, failed %d\n", table, t.Checked, t.Repaired, t.Failed)
	}
	switch {
	case r.Failed() > 0:
		w.Warningf("%d embeddings still pending after %s", r.Failed(), roundDuration(r.Duration))
	case r.Repaired() > 0:
		w.Successf("Repaired %d embeddings in %s", r.Repaired(), roundDuration(r.Duration))
	default:
		w.Success("Every row has an embedding")
	}
}

// Migration prints the outcome of an embedding migration.
func (w *Writer) Migration(r *memory.MigrationReport) {
	total, failed := 0, 0
	for _, table := range sortedKeys(r.Tables) {
		t := r.Tables[table]
		total += t.Migrated
		failed += t.Failed
		_, _ = fmt.Fprintf(w.out, "   %-15s migrated %d, failed %d\n", table, t.Migrated, t.Failed)
	}
	if failed > 0 {
		w.Warningf("Migrated %d rows to %s (%d dims); %d pending, run `amanmem reconcile`",
			total, r.ModelKey, r.Dimensions, failed)
		return
	}
	w.Successf("Migrated %d rows to %s (%d dims) in %s", total, r.ModelKey, r.Dimensions, roundDuration(r.Duration))
}

// FileReports prints one line per re-indexed documentation file.
func (w *Writer) FileReports(reports []docs.FileReport) {
	for _, fr := range reports {
		line := fmt.Sprintf("%s: %d created, %d updated, %d unchanged", fr.Path, fr.Created, fr.Updated, fr.Unchanged)
		if fr.Failed > 0 {
			w.Warningf("%s, %d failed", line, fr.Failed)
			continue
		}
		w.Status("📝", line)
	}
}

func (w *Writer) indented(text string) {
	for _, line := range strings.Split(text, "\n") {
		_, _ = fmt.Fprintf(w.out, "    %s\n", line)
	}
}

// preview trims text to n runes.
func preview(text string, n int) string {
	text = strings.TrimSpace(text)
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func roundDuration(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(100 * time.Millisecond)
}
