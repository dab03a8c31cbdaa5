package mcp

import (
	"time"

	"github.com/Aman-CERP/amanmem/internal/docs"
	"github.com/Aman-CERP/amanmem/internal/memory"
	"github.com/Aman-CERP/amanmem/internal/search"
)

// Tool names.
const (
	ToolRecordDecision     = "record_decision"
	ToolTrackProgress      = "track_progress"
	ToolGetProjectMemory   = "get_project_memory"
	ToolHybridSearch       = "hybrid_search"
	ToolSemanticSearch     = "semantic_search"
	ToolKeywordSearch      = "keyword_search"
	ToolIdentifyDuplicates = "identify_duplicates"
	ToolAddCodePattern     = "add_code_pattern"
	ToolAnalyzeQuery       = "analyze_query"
	ToolIndexDocumentation = "index_documentation"
	ToolMemoryStatus       = "memory_status"
)

// Search limits applied at the tool boundary.
const (
	DefaultToolLimit = 10
	MaxToolLimit     = 50
)

// RecordDecisionInput is the record_decision payload.
type RecordDecisionInput struct {
	Decision     string   `json:"decision" jsonschema:"the architectural decision that was made"`
	Context      string   `json:"context,omitempty" jsonschema:"why the decision was needed"`
	Alternatives []string `json:"alternatives,omitempty" jsonschema:"options that were considered and rejected"`
	Impact       string   `json:"impact,omitempty" jsonschema:"expected consequences"`
	Project      string   `json:"project,omitempty" jsonschema:"project name, defaults to the configured project"`
}

// RecordDecisionOutput identifies the stored decision.
type RecordDecisionOutput struct {
	ID          string `json:"id"`
	EmbeddingID string `json:"embedding_id"`
}

// TrackProgressInput is the track_progress payload.
type TrackProgressInput struct {
	Milestone string   `json:"milestone" jsonschema:"milestone name; an existing milestone is updated"`
	Status    string   `json:"status" jsonschema:"one of not_started, in_progress, testing, completed, blocked"`
	Notes     string   `json:"notes,omitempty" jsonschema:"free-form progress notes"`
	Blockers  []string `json:"blockers,omitempty" jsonschema:"what is blocking the milestone"`
	Project   string   `json:"project,omitempty" jsonschema:"project name, defaults to the configured project"`
}

// TrackProgressOutput identifies the progress row.
type TrackProgressOutput struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// ProjectMemoryInput is the get_project_memory payload.
type ProjectMemoryInput struct {
	Query    string `json:"query,omitempty" jsonschema:"optional text; when set, items are re-ranked by similarity"`
	Category string `json:"category,omitempty" jsonschema:"all, decisions or progress (default all)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of items, default 10"`
	Project  string `json:"project,omitempty" jsonschema:"project name, defaults to the configured project"`
}

// MemoryItemOutput is one decision or progress entry.
type MemoryItemOutput struct {
	Kind      string            `json:"kind"`
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Details   string            `json:"details,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp string            `json:"timestamp" jsonschema:"RFC 3339 time of the last change"`
	Score     float64           `json:"score,omitempty" jsonschema:"similarity to the query when one was given"`
}

// ProjectMemoryOutput lists memory items.
type ProjectMemoryOutput struct {
	Items []MemoryItemOutput `json:"items"`
}

// SearchInput is shared by the three search tools.
type SearchInput struct {
	Query         string   `json:"query" jsonschema:"the search query"`
	Table         string   `json:"table,omitempty" jsonschema:"decisions, progress, code_patterns or documentation (default documentation)"`
	Limit         int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Project       string   `json:"project,omitempty" jsonschema:"project name, defaults to the configured project"`
	VectorWeight  *float64 `json:"vector_weight,omitempty" jsonschema:"weight of the vector score in fusion, 0 to 1"`
	Strategy      string   `json:"strategy,omitempty" jsonschema:"force keyword, vector, keyword_boost or hybrid; empty routes automatically"`
	MinSimilarity *float64 `json:"min_similarity,omitempty" jsonschema:"minimum vector similarity, 0 to 1"`
}

// SearchResultOutput is one ranked row.
type SearchResultOutput struct {
	ID           string            `json:"id"`
	EmbeddingID  string            `json:"embedding_id"`
	Table        string            `json:"table"`
	Text         string            `json:"text"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Score        float64           `json:"combined_score"`
	VectorScore  float64           `json:"vector_score"`
	KeywordScore float64           `json:"keyword_score"`
	Source       string            `json:"source" jsonschema:"keyword, vector or hybrid"`
}

// SearchOutput lists ranked rows.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
}

// DuplicatesInput is the identify_duplicates payload.
type DuplicatesInput struct {
	Feature   string  `json:"feature,omitempty" jsonschema:"feature description or code fragment to compare"`
	Scope     string  `json:"scope,omitempty" jsonschema:"only compare patterns whose file path starts with this prefix"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"minimum similarity, default 0.7; 0 keeps every neighbor"`
	Project   string  `json:"project,omitempty" jsonschema:"project name, defaults to the configured project"`
}

// CodePatternInput is the add_code_pattern payload.
type CodePatternInput struct {
	FilePath string `json:"file_path" jsonschema:"path of the file the fragment comes from"`
	Content  string `json:"content" jsonschema:"the code fragment"`
	Language string `json:"language,omitempty" jsonschema:"language; detected from the extension when empty"`
	Project  string `json:"project,omitempty" jsonschema:"project name, defaults to the configured project"`
}

// AnalyzeQueryInput is the analyze_query payload.
type AnalyzeQueryInput struct {
	Query string `json:"query" jsonschema:"the query to classify"`
}

// IndexDocumentationInput is the index_documentation payload. With content
// one section is stored; with only a path that markdown file is split and
// indexed; with neither every configured documentation source is indexed.
type IndexDocumentationInput struct {
	Path    string `json:"path,omitempty" jsonschema:"documentation path relative to the project root"`
	Title   string `json:"title,omitempty" jsonschema:"section title for inline content, defaults to the file name"`
	Content string `json:"content,omitempty" jsonschema:"inline section content"`
	Source  string `json:"source,omitempty" jsonschema:"label of the documentation source for inline content"`
	Project string `json:"project,omitempty" jsonschema:"project name for inline content"`
}

// IndexDocumentationOutput counts section outcomes.
type IndexDocumentationOutput struct {
	Files     int `json:"files"`
	Sections  int `json:"sections"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// MemoryStatusInput is the memory_status payload.
type MemoryStatusInput struct {
	Project string `json:"project,omitempty" jsonschema:"project name, defaults to the configured project"`
}

// ToSearchResultOutput converts a ranked row.
func ToSearchResultOutput(r *search.Result) SearchResultOutput {
	return SearchResultOutput{
		ID:           r.ID,
		EmbeddingID:  r.EmbeddingID,
		Table:        r.Table,
		Text:         r.Text,
		Metadata:     r.Metadata,
		Score:        r.Score,
		VectorScore:  r.VectorScore,
		KeywordScore: r.KeywordScore,
		Source:       r.Source,
	}
}

// ToMemoryItemOutput converts a memory item.
func ToMemoryItemOutput(it *memory.MemoryItem) MemoryItemOutput {
	return MemoryItemOutput{
		Kind:      it.Kind,
		ID:        it.ID,
		Text:      it.Text,
		Details:   it.Details,
		Metadata:  it.Metadata,
		Timestamp: it.Timestamp.UTC().Format(time.RFC3339),
		Score:     it.Score,
	}
}

func fromFileReport(files int, fr docs.FileReport) IndexDocumentationOutput {
	return IndexDocumentationOutput{
		Files:     files,
		Sections:  fr.Sections,
		Created:   fr.Created,
		Updated:   fr.Updated,
		Unchanged: fr.Unchanged,
		Failed:    fr.Failed,
	}
}

// clampLimit returns def for non-positive values and caps at hi.
func clampLimit(v, def, hi int) int {
	if v <= 0 {
		return def
	}
	return min(v, hi)
}
