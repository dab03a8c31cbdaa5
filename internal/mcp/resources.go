package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanmem/internal/memory"
)

// MaxResourceSize is the maximum documentation file size served (1MB).
const MaxResourceSize = 1024 * 1024

// Fixed resource URIs.
const (
	URIDecisions = "memory://decisions"
	URIProgress  = "memory://progress"
	URIStatus    = "memory://status"
)

// resourceItemLimit caps the entries listed by the memory resources.
const resourceItemLimit = 50

const mimeMarkdown = "text/markdown"

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "decisions",
		URI:         URIDecisions,
		Description: "Recent architectural decisions for the default project",
		MIMEType:    mimeMarkdown,
	}, s.memoryHandler(URIDecisions, memory.CategoryDecisions))

	s.mcp.AddResource(&mcp.Resource{
		Name:        "progress",
		URI:         URIProgress,
		Description: "Milestones and their status for the default project",
		MIMEType:    mimeMarkdown,
	}, s.memoryHandler(URIProgress, memory.CategoryProgress))

	s.mcp.AddResource(&mcp.Resource{
		Name:        "status",
		URI:         URIStatus,
		Description: "Row, pending and vector counts per table",
		MIMEType:    "application/json",
	}, s.handleStatusResource)
}

func (s *Server) memoryHandler(uri, category string) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		items, err := s.svc.GetProjectMemory(ctx, memory.MemoryQuery{
			Category: category,
			Limit:    resourceItemLimit,
		})
		if err != nil {
			return nil, MapError(err)
		}
		return textResult(uri, mimeMarkdown, FormatMemoryItems(s.svc.DefaultProject(), category, items)), nil
	}
}

func (s *Server) handleStatusResource(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	st, err := s.svc.Status(ctx, "")
	if err != nil {
		return nil, MapError(err)
	}
	content, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return textResult(URIStatus, "application/json", string(content)), nil
}

// RegisterDocResources exposes every configured documentation file as a
// doc:// resource. It is a no-op without a documentation indexer.
func (s *Server) RegisterDocResources() error {
	if s.docs == nil {
		return nil
	}
	files, err := s.docs.Files()
	if err != nil {
		return fmt.Errorf("failed to list documentation: %w", err)
	}
	for _, rel := range files {
		var size int64
		if info, err := os.Stat(filepath.Join(s.docs.Root(), filepath.FromSlash(rel))); err == nil {
			size = info.Size()
		}
		s.mcp.AddResource(&mcp.Resource{
			Name:        filepath.Base(rel),
			URI:         "doc://" + rel,
			Description: fmt.Sprintf("%s (%s)", rel, humanSize(size)),
			MIMEType:    mimeMarkdown,
		}, func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readDoc(rel)
		})
	}
	s.logger.Info("registered documentation resources", "count", len(files))
	return nil
}

// readDoc serves a documentation file relative to the project root.
func (s *Server) readDoc(rel string) (*mcp.ReadResourceResult, error) {
	if !isValidPath(rel) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", rel))
	}
	if s.docs == nil {
		return nil, NewResourceNotFoundError("doc://" + rel)
	}
	full := filepath.Join(s.docs.Root(), filepath.FromSlash(rel))

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewResourceNotFoundError("doc://" + rel)
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, NewInvalidParamsError(fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), MaxResourceSize))
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return nil, MapError(err)
	}
	return textResult("doc://"+rel, mimeMarkdown, string(content)), nil
}

func textResult(uri, mime, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mime, Text: text}},
	}
}

// isValidPath rejects empty, absolute and parent-relative paths.
func isValidPath(path string) bool {
	if path == "" || filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return false
	}
	// Windows drive letters
	if len(path) >= 2 && path[1] == ':' {
		return false
	}
	cleaned := filepath.ToSlash(filepath.Clean(path))
	for _, part := range strings.Split(cleaned, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// humanSize formats bytes as a human-readable string.
func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
