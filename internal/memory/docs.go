package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	amerrors "github.com/Aman-CERP/amanmem/internal/errors"
	"github.com/Aman-CERP/amanmem/internal/store"
)

// DocSection is one documentation section to index.
type DocSection struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
	Project string `json:"project,omitempty"`
}

// ContentHash fingerprints section content for change detection.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// IndexDocumentation stores or updates one section keyed by
// (project, path, title). A section whose content hash matches the stored
// row, with a ready embedding present in the vector index, returns
// ChangeUnchanged before anything is embedded or written.
func (s *Service) IndexDocumentation(ctx context.Context, sec DocSection) (Change, error) {
	if strings.TrimSpace(sec.Path) == "" {
		return "", amerrors.MissingField("path")
	}
	if strings.TrimSpace(sec.Content) == "" {
		return "", amerrors.MissingField("content")
	}
	project, err := s.writeProject(ctx, sec.Project)
	if err != nil {
		return "", err
	}

	path := relPath(sec.Path)
	hash := ContentHash(sec.Content)
	if existing, err := s.deps.Store.GetDocumentation(ctx, project.ID, path, sec.Title); err == nil &&
		existing.ContentHash == hash &&
		existing.EmbeddingStatus == store.EmbeddingReady &&
		s.deps.Vector.Contains(store.TableDocumentation, existing.EmbeddingID) {
		return ChangeUnchanged, nil
	}

	res, err := s.repo.Write(ctx, &store.DocumentationEntry{
		ProjectID:   project.ID,
		Title:       sec.Title,
		Content:     sec.Content,
		ContentHash: hash,
		Source:      sec.Source,
		Path:        path,
	})
	if err != nil {
		return "", err
	}
	return res.Change, nil
}
