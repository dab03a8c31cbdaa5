package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanmem/internal/docs"
	"github.com/Aman-CERP/amanmem/internal/memory"
	"github.com/Aman-CERP/amanmem/internal/search"
	"github.com/Aman-CERP/amanmem/pkg/version"
)

// ServerName is reported to clients during initialization.
const ServerName = "amanmem"

// Server bridges MCP clients with the memory service.
type Server struct {
	mcp    *mcp.Server
	svc    *memory.Service
	docs   *docs.Indexer
	logger *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolDescriptions = []ToolInfo{
	{ToolRecordDecision, "Record an architectural decision with its context, rejected alternatives and impact. Decisions are immutable and searchable later."},
	{ToolTrackProgress, "Create or update a milestone's status (not_started, in_progress, testing, completed, blocked) with notes and blockers."},
	{ToolGetProjectMemory, "List recent decisions and progress, newest first. With a query, items are re-ranked by similarity to it."},
	{ToolHybridSearch, "Search project memory. The query is classified and routed to keyword, vector or fused retrieval; pass strategy to force a route."},
	{ToolSemanticSearch, "Search project memory by meaning only (vector similarity)."},
	{ToolKeywordSearch, "Search project memory by exact terms only (BM25). Best for identifiers, error codes and file names."},
	{ToolIdentifyDuplicates, "Check whether code similar to a feature description or fragment is already stored as a code pattern."},
	{ToolAddCodePattern, "Store a code fragment as a reusable pattern. Storing the same file and length twice returns the existing pattern."},
	{ToolAnalyzeQuery, "Show how a query would be classified and which retrieval strategy it would use."},
	{ToolIndexDocumentation, "Index documentation: inline content as one section, a markdown file split by headings, or every configured documentation source."},
	{ToolMemoryStatus, "Report row, pending and vector counts per table, the active embedding model and the keyword backend."},
}

// Options configures a Server.
type Options struct {
	// Docs indexes files for index_documentation. Nil limits the tool to
	// inline content.
	Docs   *docs.Indexer
	Logger *slog.Logger
}

// NewServer creates an MCP server over svc.
func NewServer(svc *memory.Service, opts Options) (*Server, error) {
	if svc == nil {
		return nil, errors.New("memory service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		svc:    svc,
		docs:   opts.Docs,
		logger: logger,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools in registration order.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(toolDescriptions))
	copy(out, toolDescriptions)
	return out
}

func describe(name string) string {
	for _, t := range toolDescriptions {
		if t.Name == name {
			return t.Description
		}
	}
	return ""
}

func addTool[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: name, Description: describe(name)}, instrument(s.logger, name, h))
	s.logger.Debug("registered tool", slog.String("name", name))
}

func (s *Server) registerTools() {
	addTool(s, ToolRecordDecision, s.recordDecision)
	addTool(s, ToolTrackProgress, s.trackProgress)
	addTool(s, ToolGetProjectMemory, s.getProjectMemory)
	addTool(s, ToolHybridSearch, s.hybridSearch)
	addTool(s, ToolSemanticSearch, s.semanticSearch)
	addTool(s, ToolKeywordSearch, s.keywordSearch)
	addTool(s, ToolIdentifyDuplicates, s.identifyDuplicates)
	addTool(s, ToolAddCodePattern, s.addCodePattern)
	addTool(s, ToolAnalyzeQuery, s.analyzeQuery)
	addTool(s, ToolIndexDocumentation, s.indexDocumentation)
	addTool(s, ToolMemoryStatus, s.memoryStatus)
	s.logger.Info("MCP tools registered", slog.Int("count", len(toolDescriptions)))
}

// instrument logs each call with a request id and converts service errors
// into MCPErrors.
func instrument[In, Out any](logger *slog.Logger, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		requestID := generateRequestID()

		res, out, err := h(ctx, req, in)
		if err != nil {
			mapped := MapError(err)
			logger.Warn("tool failed",
				slog.String("request_id", requestID),
				slog.String("tool", name),
				slog.Duration("duration", time.Since(start)),
				slog.String("error", err.Error()))
			var zero Out
			return nil, zero, mapped
		}
		logger.Info("tool completed",
			slog.String("request_id", requestID),
			slog.String("tool", name),
			slog.Duration("duration", time.Since(start)))
		return res, out, nil
	}
}

// =============================================================================
// Decisions and progress
// =============================================================================

func (s *Server) recordDecision(ctx context.Context, _ *mcp.CallToolRequest, in RecordDecisionInput) (*mcp.CallToolResult, RecordDecisionOutput, error) {
	res, err := s.svc.RecordDecision(ctx, memory.DecisionInput(in))
	if err != nil {
		return nil, RecordDecisionOutput{}, err
	}
	return nil, RecordDecisionOutput{ID: res.ID, EmbeddingID: res.EmbeddingID}, nil
}

func (s *Server) trackProgress(ctx context.Context, _ *mcp.CallToolRequest, in TrackProgressInput) (*mcp.CallToolResult, TrackProgressOutput, error) {
	res, err := s.svc.TrackProgress(ctx, memory.ProgressInput(in))
	if err != nil {
		return nil, TrackProgressOutput{}, err
	}
	return nil, TrackProgressOutput{ID: res.ID, Created: res.Created}, nil
}

func (s *Server) getProjectMemory(ctx context.Context, _ *mcp.CallToolRequest, in ProjectMemoryInput) (*mcp.CallToolResult, ProjectMemoryOutput, error) {
	items, err := s.svc.GetProjectMemory(ctx, memory.MemoryQuery{
		Query:    in.Query,
		Category: in.Category,
		Limit:    clampLimit(in.Limit, DefaultToolLimit, MaxToolLimit),
		Project:  in.Project,
	})
	if err != nil {
		return nil, ProjectMemoryOutput{}, err
	}
	out := ProjectMemoryOutput{Items: make([]MemoryItemOutput, 0, len(items))}
	for _, it := range items {
		out.Items = append(out.Items, ToMemoryItemOutput(it))
	}
	project := in.Project
	if project == "" {
		project = s.svc.DefaultProject()
	}
	res := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatMemoryItems(project, in.Category, items)}},
	}
	return res, out, nil
}

// =============================================================================
// Search
// =============================================================================

type searchCall func(context.Context, memory.SearchInput) ([]*search.Result, error)

func (s *Server) runSearch(ctx context.Context, in SearchInput, fn searchCall) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	results, err := fn(ctx, memory.SearchInput{
		Query:         in.Query,
		Table:         in.Table,
		Project:       in.Project,
		Limit:         clampLimit(in.Limit, DefaultToolLimit, MaxToolLimit),
		VectorWeight:  in.VectorWeight,
		Strategy:      in.Strategy,
		MinSimilarity: in.MinSimilarity,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}
	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, ToSearchResultOutput(r))
	}
	res := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResults(in.Query, results)}},
	}
	return res, out, nil
}

func (s *Server) hybridSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	return s.runSearch(ctx, in, s.svc.HybridSearch)
}

func (s *Server) semanticSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	return s.runSearch(ctx, in, s.svc.SemanticSearch)
}

func (s *Server) keywordSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	return s.runSearch(ctx, in, s.svc.KeywordSearch)
}

func (s *Server) analyzeQuery(_ context.Context, _ *mcp.CallToolRequest, in AnalyzeQueryInput) (*mcp.CallToolResult, search.Analysis, error) {
	a := s.svc.AnalyzeQuery(in.Query)
	if a.Keywords == nil {
		a.Keywords = []string{}
	}
	return nil, a, nil
}

// =============================================================================
// Code patterns
// =============================================================================

func (s *Server) identifyDuplicates(ctx context.Context, _ *mcp.CallToolRequest, in DuplicatesInput) (*mcp.CallToolResult, search.DuplicateReport, error) {
	report := s.svc.IdentifyDuplicates(ctx, memory.DuplicateInput(in))
	return nil, *report, nil
}

func (s *Server) addCodePattern(ctx context.Context, _ *mcp.CallToolRequest, in CodePatternInput) (*mcp.CallToolResult, memory.PatternResult, error) {
	res, err := s.svc.AddCodePattern(ctx, memory.PatternInput(in))
	if err != nil {
		return nil, memory.PatternResult{}, err
	}
	return nil, *res, nil
}

// =============================================================================
// Documentation and status
// =============================================================================

func (s *Server) indexDocumentation(ctx context.Context, _ *mcp.CallToolRequest, in IndexDocumentationInput) (*mcp.CallToolResult, IndexDocumentationOutput, error) {
	switch {
	case in.Content != "":
		return s.indexInline(ctx, in)
	case s.docs == nil:
		return nil, IndexDocumentationOutput{}, NewInvalidParamsError("content is required: no documentation sources are configured")
	case in.Path != "":
		if !isValidPath(in.Path) {
			return nil, IndexDocumentationOutput{}, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", in.Path))
		}
		if !docs.IsDoc(in.Path) {
			return nil, IndexDocumentationOutput{}, NewInvalidParamsError(fmt.Sprintf("not a markdown file: %s", in.Path))
		}
		fr, err := s.docs.IndexFile(ctx, in.Path)
		if err != nil {
			return nil, IndexDocumentationOutput{}, err
		}
		return nil, fromFileReport(1, fr), nil
	default:
		report, err := s.docs.IndexAll(ctx, nil)
		if err != nil {
			return nil, IndexDocumentationOutput{}, err
		}
		return nil, fromFileReport(report.Files, report.FileReport), nil
	}
}

func (s *Server) indexInline(ctx context.Context, in IndexDocumentationInput) (*mcp.CallToolResult, IndexDocumentationOutput, error) {
	title := in.Title
	if title == "" && in.Path != "" {
		base := path.Base(in.Path)
		title = strings.TrimSuffix(base, path.Ext(base))
	}
	change, err := s.svc.IndexDocumentation(ctx, memory.DocSection{
		Path:    in.Path,
		Title:   title,
		Content: in.Content,
		Source:  in.Source,
		Project: in.Project,
	})
	if err != nil {
		return nil, IndexDocumentationOutput{}, err
	}
	out := IndexDocumentationOutput{Files: 1, Sections: 1}
	switch change {
	case memory.ChangeCreated:
		out.Created = 1
	case memory.ChangeUpdated:
		out.Updated = 1
	default:
		out.Unchanged = 1
	}
	return nil, out, nil
}

func (s *Server) memoryStatus(ctx context.Context, _ *mcp.CallToolRequest, in MemoryStatusInput) (*mcp.CallToolResult, memory.Status, error) {
	st, err := s.svc.Status(ctx, in.Project)
	if err != nil {
		return nil, memory.Status{}, err
	}
	if st.Projects == nil {
		st.Projects = []string{}
	}
	if st.WarmModels == nil {
		st.WarmModels = []string{}
	}
	return nil, *st, nil
}

// =============================================================================
// Transport
// =============================================================================

// Serve runs the server until ctx is cancelled. Only stdio is supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short id for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
