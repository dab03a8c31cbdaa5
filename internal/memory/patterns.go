package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	amerrors "github.com/Aman-CERP/amanmem/internal/errors"
	"github.com/Aman-CERP/amanmem/internal/search"
	"github.com/Aman-CERP/amanmem/internal/store"
	"github.com/Aman-CERP/amanmem/internal/symbols"
)

// MaxPatternRunes bounds stored pattern content.
const MaxPatternRunes = 4000

// Pattern statuses.
const (
	PatternCreated = "created"
	PatternExists  = "exists"
)

// PatternInput is the add_code_pattern payload.
type PatternInput struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
	Project  string `json:"project,omitempty"`
}

// PatternResult identifies a stored pattern and whether this call created it.
type PatternResult struct {
	ID          string   `json:"id"`
	EmbeddingID string   `json:"embedding_id"`
	Status      string   `json:"status"`
	Language    string   `json:"language,omitempty"`
	Symbols     []string `json:"symbols,omitempty"`
}

// PatternHash identifies a pattern by file path and content length.
func PatternHash(filePath, content string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", filePath, len(content))))
	return hex.EncodeToString(sum[:16])
}

// AddCodePattern stores a code fragment once per hash. A repeat call returns
// the existing pattern with status "exists".
func (s *Service) AddCodePattern(ctx context.Context, in PatternInput) (*PatternResult, error) {
	if strings.TrimSpace(in.FilePath) == "" {
		return nil, amerrors.MissingField("file_path")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, amerrors.MissingField("content")
	}
	project, err := s.writeProject(ctx, in.Project)
	if err != nil {
		return nil, err
	}

	path := relPath(in.FilePath)
	hash := PatternHash(path, in.Content)
	if existing, err := s.deps.Store.GetCodePatternByHash(ctx, project.ID, hash); err == nil {
		return existingPattern(existing), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	language := strings.ToLower(strings.TrimSpace(in.Language))
	if language == "" {
		language = symbols.DetectLanguage(path)
	}
	content := truncateRunes(in.Content, MaxPatternRunes)

	c := &store.CodePattern{
		ProjectID:   project.ID,
		PatternHash: hash,
		FilePath:    path,
		Language:    language,
		Content:     content,
		Symbols:     s.symbols.Names(ctx, language, []byte(content)),
	}
	_, err = s.repo.Write(ctx, c)
	if errors.Is(err, store.ErrAlreadyExists) {
		existing, getErr := s.deps.Store.GetCodePatternByHash(ctx, project.ID, hash)
		if getErr != nil {
			return nil, getErr
		}
		return existingPattern(existing), nil
	}
	if err != nil {
		return nil, err
	}
	return &PatternResult{
		ID:          c.ID,
		EmbeddingID: c.EmbeddingID,
		Status:      PatternCreated,
		Language:    c.Language,
		Symbols:     c.Symbols,
	}, nil
}

func existingPattern(c *store.CodePattern) *PatternResult {
	return &PatternResult{
		ID:          c.ID,
		EmbeddingID: c.EmbeddingID,
		Status:      PatternExists,
		Language:    c.Language,
		Symbols:     c.Symbols,
	}
}

// DuplicateInput is the identify_duplicates payload.
type DuplicateInput struct {
	Feature   string  `json:"feature"`
	Scope     string  `json:"scope,omitempty"`
	// Threshold nil uses the configured duplicate threshold.
	Threshold *float64 `json:"threshold,omitempty"`
	Project   string  `json:"project,omitempty"`
}

// IdentifyDuplicates looks for stored code patterns similar to a feature
// description or fragment. It never fails: problems yield an empty report.
// A feature is cut to MaxPatternRunes like stored content, so an exact copy
// of a long fragment still scores 1.
func (s *Service) IdentifyDuplicates(ctx context.Context, in DuplicateInput) *search.DuplicateReport {
	if strings.TrimSpace(in.Feature) == "" {
		return &search.DuplicateReport{Duplicates: []search.Duplicate{}, Message: search.MsgNoFeature}
	}
	projectID, found, err := s.readProject(ctx, in.Project)
	if err != nil || !found {
		return &search.DuplicateReport{Duplicates: []search.Duplicate{}, Message: search.MsgNoDuplicates}
	}
	threshold := s.opts.DuplicateThreshold
	if in.Threshold != nil {
		threshold = *in.Threshold
	}
	scope := strings.TrimSpace(in.Scope)
	if scope != "" {
		scope = relPath(scope)
	}
	return s.dups.Identify(ctx, search.DuplicateQuery{
		Feature:   truncateRunes(in.Feature, MaxPatternRunes),
		Scope:     scope,
		Project:   projectID,
		Threshold: &threshold,
	})
}
