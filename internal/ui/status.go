package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/amanmem/internal/memory"
	"github.com/Aman-CERP/amanmem/internal/store"
)

// StatusRenderer displays a memory status report.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes st as an aligned table, one row per searchable table.
func (r *StatusRenderer) Render(st *memory.Status) error {
	w := &errWriter{w: r.out}

	w.printf("%s\n\n", r.styles.Header.Render("Memory Status: "+st.Project))
	w.printf("  Model:    %s\n", st.ModelKey)
	if len(st.WarmModels) > 0 {
		w.printf("  Warm:     %s\n", strings.Join(st.WarmModels, ", "))
	} else {
		w.printf("  Warm:     %s\n", r.styles.Dim.Render("none"))
	}
	w.printf("  Keyword:  %s\n", st.KeywordBackend)
	if st.DatabasePath != "" {
		w.printf("  Database: %s\n", st.DatabasePath)
	}
	if len(st.Projects) > 0 {
		w.printf("  Projects: %s\n", strings.Join(st.Projects, ", "))
	}
	w.printf("\n")

	w.printf("  %-15s %6s %8s %8s %5s  %s\n", "TABLE", "ROWS", "PENDING", "VECTORS", "DIMS", "KEYWORD")
	for _, table := range store.SearchableTables {
		t := st.Tables[table]
		pending := fmt.Sprintf("%8d", t.Pending)
		if t.Pending > 0 {
			pending = r.styles.Warning.Render(pending)
		}
		keyword := r.styles.Dim.Render("lazy")
		if t.KeywordOK {
			keyword = r.styles.Success.Render("built")
		}
		w.printf("  %-15s %6d %s %8d %5d  %s\n", table, t.Rows, pending, t.Vectors, t.Dimensions, keyword)
	}

	if n := st.Pending(); n > 0 {
		w.printf("\n  %s\n", r.styles.Warning.Render(
			fmt.Sprintf("%d rows are waiting for an embedding; run `amanmem reconcile`", n)))
	}
	return w.err
}

// RenderJSON writes st as indented JSON.
func (r *StatusRenderer) RenderJSON(st *memory.Status) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(st)
}

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
