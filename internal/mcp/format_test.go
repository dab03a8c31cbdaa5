package mcp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/amanmem/internal/memory"
	"github.com/Aman-CERP/amanmem/internal/search"
)

func TestFormatMemoryItems(t *testing.T) {
	// Given: a decision with context and metadata
	ts := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	items := []*memory.MemoryItem{{
		Kind:      "decision",
		Text:      "Use SQLite",
		Details:   "Single file deployment",
		Metadata:  map[string]string{"impact": "low", "alternatives": "PostgreSQL"},
		Timestamp: ts,
	}}

	// When: formatting
	out := FormatMemoryItems("alpha", memory.CategoryDecisions, items)

	// Then: a markdown section per item with sorted metadata
	assert.Contains(t, out, "## Decisions for alpha")
	assert.Contains(t, out, "### Use SQLite\n")
	assert.Contains(t, out, "_decision · 2026-03-04T10:00:00Z_")
	assert.Contains(t, out, "Single file deployment")
	assert.Less(t, strings.Index(out, "**alternatives:**"), strings.Index(out, "**impact:**"))
}

func TestFormatMemoryItems_Titles(t *testing.T) {
	tests := []struct {
		category string
		want     string
	}{
		{memory.CategoryDecisions, "## Decisions for p"},
		{memory.CategoryProgress, "## Progress for p"},
		{"", "## Project Memory for p"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			out := FormatMemoryItems("p", tt.category, nil)

			assert.Contains(t, out, tt.want)
			assert.Contains(t, out, "Nothing recorded yet.")
		})
	}
}

func TestFormatSearchResults(t *testing.T) {
	results := []*search.Result{
		{Table: "code_patterns", Text: "func A() {}", Score: 0.9, Source: search.SourceHybrid,
			Metadata: map[string]string{"file_path": "a.go", "language": "go"}},
		{Table: "documentation", Text: "Install with go install.", Score: 0.4, Source: search.SourceKeyword},
	}

	out := FormatSearchResults("install", results)

	assert.Contains(t, out, "## Search Results for \"install\"")
	assert.Contains(t, out, "Found 2 results")
	assert.Contains(t, out, "### 1. code_patterns (score: 0.90, hybrid)")
	assert.Contains(t, out, "`a.go`")
	assert.Contains(t, out, "```go\nfunc A() {}\n```")
	assert.Contains(t, out, "Install with go install.\n\n---")
}

func TestFormatSearchResults_Empty(t *testing.T) {
	assert.Equal(t, `No results found for "x"`, FormatSearchResults("x", nil))
}

func TestFormatSearchResults_Singular(t *testing.T) {
	out := FormatSearchResults("x", []*search.Result{{Table: "decisions", Text: "t"}})

	assert.Contains(t, out, "Found 1 result\n")
}
