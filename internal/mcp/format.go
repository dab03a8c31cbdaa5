package mcp

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/amanmem/internal/memory"
	"github.com/Aman-CERP/amanmem/internal/search"
)

// FormatMemoryItems renders decisions or progress as markdown.
func FormatMemoryItems(project, category string, items []*memory.MemoryItem) string {
	title := "Project Memory"
	switch category {
	case memory.CategoryDecisions:
		title = "Decisions"
	case memory.CategoryProgress:
		title = "Progress"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s for %s\n\n", title, project)
	if len(items) == 0 {
		sb.WriteString("Nothing recorded yet.\n")
		return sb.String()
	}

	for _, it := range items {
		fmt.Fprintf(&sb, "### %s\n", it.Text)
		fmt.Fprintf(&sb, "_%s · %s_\n\n", it.Kind, it.Timestamp.UTC().Format(time.RFC3339))
		if it.Details != "" {
			sb.WriteString(it.Details)
			sb.WriteString("\n\n")
		}
		for _, k := range sortedMetadataKeys(it.Metadata) {
			fmt.Fprintf(&sb, "- **%s:** %s\n", k, it.Metadata[k])
		}
		if len(it.Metadata) > 0 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// FormatSearchResults renders ranked rows as markdown.
func FormatSearchResults(query string, results []*search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		if r == nil {
			continue
		}
		fmt.Fprintf(&sb, "### %d. %s (score: %.2f, %s)\n", i+1, r.Table, r.Score, r.Source)
		if path := r.Metadata["file_path"]; path != "" {
			fmt.Fprintf(&sb, "`%s`\n", path)
		}
		sb.WriteString("\n")
		if r.Table == "code_patterns" {
			lang := r.Metadata["language"]
			if lang == "" {
				lang = "text"
			}
			fmt.Fprintf(&sb, "```%s\n%s\n```\n\n", lang, r.Text)
			continue
		}
		sb.WriteString(r.Text)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}

func sortedMetadataKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
