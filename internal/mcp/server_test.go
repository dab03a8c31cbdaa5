package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmem/internal/memory"
	"github.com/Aman-CERP/amanmem/internal/search"
)

// =============================================================================
// Construction
// =============================================================================

func TestNewServer_RequiresService(t *testing.T) {
	srv, err := NewServer(nil, Options{})

	assert.Error(t, err)
	assert.Nil(t, srv)
}

func TestNewServer_WithoutDocs(t *testing.T) {
	srv, err := NewServer(newTestService(t), Options{})

	require.NoError(t, err)
	assert.NotNil(t, srv.MCPServer())
	assert.NoError(t, srv.RegisterDocResources())
}

func TestServer_ListTools(t *testing.T) {
	srv, _ := newTestServer(t)

	tools := srv.ListTools()

	require.Len(t, tools, 11)
	for _, tool := range tools {
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
	assert.Equal(t, ToolRecordDecision, tools[0].Name)
	assert.Equal(t, ToolMemoryStatus, tools[len(tools)-1].Name)
}

func TestServer_ToolsAdvertised(t *testing.T) {
	// Given: a connected client
	srv, _ := newTestServer(t)
	session := connect(t, srv)

	// When: listing tools over the protocol
	res, err := session.ListTools(context.Background(), nil)

	// Then: every registered tool is advertised with an input schema
	require.NoError(t, err)
	names := make(map[string]bool, len(res.Tools))
	for _, tool := range res.Tools {
		names[tool.Name] = true
		assert.NotNil(t, tool.InputSchema, tool.Name)
	}
	for _, tool := range srv.ListTools() {
		assert.True(t, names[tool.Name], "missing tool %s", tool.Name)
	}
}

func TestServer_Serve_UnknownTransport(t *testing.T) {
	srv, _ := newTestServer(t)

	err := srv.Serve(context.Background(), "sse")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}

// =============================================================================
// Decisions and progress
// =============================================================================

func TestServer_RecordDecision(t *testing.T) {
	srv, _ := newTestServer(t)
	session := connect(t, srv)

	res := callTool(t, session, ToolRecordDecision, map[string]any{
		"decision":     "Use SQLite for storage",
		"context":      "Single-file deployment",
		"alternatives": []string{"PostgreSQL"},
	})

	require.False(t, res.IsError, firstText(t, res))
	var out RecordDecisionOutput
	decodeStructured(t, res, &out)
	assert.NotEmpty(t, out.ID)
	assert.NotEmpty(t, out.EmbeddingID)
}

func TestServer_RecordDecision_EmptyDecision(t *testing.T) {
	// Given: a decision with no text
	srv, _ := newTestServer(t)
	session := connect(t, srv)

	// When: recording it
	res := callTool(t, session, ToolRecordDecision, map[string]any{"decision": "  "})

	// Then: the call fails as invalid params
	assert.True(t, res.IsError)
	assert.Contains(t, firstText(t, res), fmt.Sprintf("MCP error %d", ErrCodeInvalidParams))
}

func TestServer_TrackProgress_CreateThenUpdate(t *testing.T) {
	srv, _ := newTestServer(t)
	session := connect(t, srv)
	args := map[string]any{"milestone": "Vector index", "status": "in_progress"}

	first := callTool(t, session, ToolTrackProgress, args)
	args["status"] = "completed"
	second := callTool(t, session, ToolTrackProgress, args)

	var a, b TrackProgressOutput
	decodeStructured(t, first, &a)
	decodeStructured(t, second, &b)
	assert.True(t, a.Created)
	assert.False(t, b.Created)
	assert.Equal(t, a.ID, b.ID)
}

func TestServer_TrackProgress_InvalidStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	session := connect(t, srv)

	res := callTool(t, session, ToolTrackProgress, map[string]any{"milestone": "Docs", "status": "done-ish"})

	assert.True(t, res.IsError)
	assert.Contains(t, firstText(t, res), fmt.Sprintf("MCP error %d", ErrCodeInvalidParams))
}

func TestServer_GetProjectMemory(t *testing.T) {
	// Given: one decision and one milestone
	srv, _ := newTestServer(t)
	session := connect(t, srv)
	callTool(t, session, ToolRecordDecision, map[string]any{"decision": "Use bleve for keywords"})
	callTool(t, session, ToolTrackProgress, map[string]any{"milestone": "Search", "status": "testing"})

	// When: listing only decisions
	res := callTool(t, session, ToolGetProjectMemory, map[string]any{"category": "decisions"})

	// Then: the structured output holds the decision and the text is markdown
	require.False(t, res.IsError)
	var out ProjectMemoryOutput
	decodeStructured(t, res, &out)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "decision", out.Items[0].Kind)
	assert.Equal(t, "Use bleve for keywords", out.Items[0].Text)
	assert.Contains(t, firstText(t, res), "## Decisions for alpha")
}

// =============================================================================
// Search
// =============================================================================

func TestServer_Search_RequiresQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	session := connect(t, srv)

	for _, tool := range []string{ToolHybridSearch, ToolSemanticSearch, ToolKeywordSearch} {
		t.Run(tool, func(t *testing.T) {
			res := callTool(t, session, tool, map[string]any{"query": ""})

			assert.True(t, res.IsError)
			assert.Contains(t, firstText(t, res), "query parameter is required")
		})
	}
}

func TestServer_KeywordSearch_FindsDecision(t *testing.T) {
	// Given: a stored decision
	srv, _ := newTestServer(t)
	session := connect(t, srv)
	callTool(t, session, ToolRecordDecision, map[string]any{
		"decision": "Adopt PostgreSQL replication",
		"context":  "Read replicas for reporting",
	})

	// When: searching the decisions table by keyword
	res := callTool(t, session, ToolKeywordSearch, map[string]any{
		"query": "replication",
		"table": "decisions",
	})

	// Then: the decision is returned with a keyword source
	require.False(t, res.IsError, firstText(t, res))
	var out SearchOutput
	decodeStructured(t, res, &out)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "decisions", out.Results[0].Table)
	assert.Equal(t, search.SourceKeyword, out.Results[0].Source)
	assert.Contains(t, firstText(t, res), "## Search Results for \"replication\"")
}

func TestServer_Search_UnknownTable(t *testing.T) {
	srv, _ := newTestServer(t)
	session := connect(t, srv)

	res := callTool(t, session, ToolHybridSearch, map[string]any{"query": "anything", "table": "nope"})

	assert.True(t, res.IsError)
	assert.Contains(t, firstText(t, res), fmt.Sprintf("MCP error %d", ErrCodeInvalidParams))
}

func TestServer_AnalyzeQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	session := connect(t, srv)

	res := callTool(t, session, ToolAnalyzeQuery, map[string]any{"query": "func NewServer"})

	require.False(t, res.IsError)
	var out search.Analysis
	decodeStructured(t, res, &out)
	assert.True(t, out.HasCodeElements)
}

// =============================================================================
// Code patterns
// =============================================================================

func TestServer_AddCodePattern_Idempotent(t *testing.T) {
	srv, _ := newTestServer(t)
	session := connect(t, srv)
	args := map[string]any{
		"file_path": "auth/token.go",
		"content":   "func ValidateToken(tok string) error { return nil }",
	}

	first := callTool(t, session, ToolAddCodePattern, args)
	second := callTool(t, session, ToolAddCodePattern, args)

	var a, b memory.PatternResult
	decodeStructured(t, first, &a)
	decodeStructured(t, second, &b)
	assert.Equal(t, memory.PatternCreated, a.Status)
	assert.Equal(t, memory.PatternExists, b.Status)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "go", a.Language)
}

func TestServer_IdentifyDuplicates(t *testing.T) {
	t.Run("no feature", func(t *testing.T) {
		srv, _ := newTestServer(t)
		session := connect(t, srv)

		res := callTool(t, session, ToolIdentifyDuplicates, map[string]any{})

		var out search.DuplicateReport
		decodeStructured(t, res, &out)
		assert.Equal(t, search.MsgNoFeature, out.Message)
		assert.Empty(t, out.Duplicates)
	})

	t.Run("same fragment", func(t *testing.T) {
		srv, _ := newTestServer(t)
		session := connect(t, srv)
		code := "func ValidateToken(tok string) error { return nil }"
		callTool(t, session, ToolAddCodePattern, map[string]any{"file_path": "auth/token.go", "content": code})

		res := callTool(t, session, ToolIdentifyDuplicates, map[string]any{"feature": code, "threshold": 0.5})

		var out search.DuplicateReport
		decodeStructured(t, res, &out)
		require.NotEmpty(t, out.Duplicates)
		assert.Equal(t, "auth/token.go", out.Duplicates[0].FilePath)
	})
}

// =============================================================================
// Documentation and status
// =============================================================================

func TestServer_IndexDocumentation_Inline(t *testing.T) {
	srv, _ := newTestServer(t)
	session := connect(t, srv)
	args := map[string]any{"path": "docs/guide.md", "content": "Install with go install."}

	first := callTool(t, session, ToolIndexDocumentation, args)
	second := callTool(t, session, ToolIndexDocumentation, args)

	var a, b IndexDocumentationOutput
	decodeStructured(t, first, &a)
	decodeStructured(t, second, &b)
	assert.Equal(t, 1, a.Created)
	assert.Equal(t, 1, b.Unchanged)
}

func TestServer_IndexDocumentation_File(t *testing.T) {
	// Given: a markdown file with two sections
	srv, root := newTestServer(t)
	writeDocs(t, root, map[string]string{
		"docs/guide.md": "# Guide\n\nIntro text.\n\n## Install\n\nRun go install.\n",
	})
	session := connect(t, srv)

	// When: indexing it by path
	res := callTool(t, session, ToolIndexDocumentation, map[string]any{"path": "docs/guide.md"})

	// Then: every section is created
	require.False(t, res.IsError, firstText(t, res))
	var out IndexDocumentationOutput
	decodeStructured(t, res, &out)
	assert.Equal(t, 1, out.Files)
	assert.Positive(t, out.Sections)
	assert.Equal(t, out.Sections, out.Created)
}

func TestServer_IndexDocumentation_All(t *testing.T) {
	srv, root := newTestServer(t)
	writeDocs(t, root, map[string]string{
		"docs/a.md":     "# A\n\nAlpha.\n",
		"docs/sub/b.md": "# B\n\nBeta.\n",
	})
	session := connect(t, srv)

	res := callTool(t, session, ToolIndexDocumentation, map[string]any{})

	var out IndexDocumentationOutput
	decodeStructured(t, res, &out)
	assert.Equal(t, 2, out.Files)
	assert.Zero(t, out.Failed)
}

func TestServer_IndexDocumentation_RejectsPaths(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"traversal", "../secret.md"},
		{"absolute", "/etc/passwd.md"},
		{"not markdown", "docs/main.go"},
	}
	srv, _ := newTestServer(t)
	session := connect(t, srv)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, session, ToolIndexDocumentation, map[string]any{"path": tt.path})

			assert.True(t, res.IsError)
			assert.Contains(t, firstText(t, res), fmt.Sprintf("MCP error %d", ErrCodeInvalidParams))
		})
	}
}

func TestServer_IndexDocumentation_NoIndexer(t *testing.T) {
	srv, err := NewServer(newTestService(t), Options{})
	require.NoError(t, err)
	session := connect(t, srv)

	res := callTool(t, session, ToolIndexDocumentation, map[string]any{"path": "docs/a.md"})

	assert.True(t, res.IsError)
	assert.Contains(t, firstText(t, res), "content is required")
}

func TestServer_MemoryStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	session := connect(t, srv)
	callTool(t, session, ToolRecordDecision, map[string]any{"decision": "Use HNSW"})

	res := callTool(t, session, ToolMemoryStatus, map[string]any{})

	require.False(t, res.IsError, firstText(t, res))
	var out memory.Status
	decodeStructured(t, res, &out)
	assert.Equal(t, "alpha", out.Project)
	assert.Equal(t, 1, out.Tables["decisions"].Rows)
	assert.Zero(t, out.Pending())
}

// =============================================================================
// Helpers
// =============================================================================

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultToolLimit, clampLimit(0, DefaultToolLimit, MaxToolLimit))
	assert.Equal(t, DefaultToolLimit, clampLimit(-3, DefaultToolLimit, MaxToolLimit))
	assert.Equal(t, 7, clampLimit(7, DefaultToolLimit, MaxToolLimit))
	assert.Equal(t, MaxToolLimit, clampLimit(500, DefaultToolLimit, MaxToolLimit))
}

func TestGenerateRequestID(t *testing.T) {
	a, b := generateRequestID(), generateRequestID()

	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}
