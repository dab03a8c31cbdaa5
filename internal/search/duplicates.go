package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanmem/internal/store"
)

// Duplicate detection defaults.
const (
	DefaultDuplicateThreshold = 0.7
	DuplicateLimit            = 20
)

// Report messages.
const (
	MsgNoFeature    = "No feature specified"
	MsgNoDuplicates = "No duplicates found"
)

// DuplicateQuery describes the feature to check.
type DuplicateQuery struct {
	Feature string
	// Scope keeps only patterns whose file path starts with it.
	Scope   string
	Project string
	// Threshold is the minimum similarity; nil means DefaultDuplicateThreshold.
	// An explicit zero keeps every neighbor.
	Threshold *float64
}

// Duplicate is a stored code pattern similar to the feature.
type Duplicate struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	FilePath   string  `json:"file_path"`
	Language   string  `json:"language"`
}

// DuplicateReport is the outcome of Identify. An empty Duplicates list is
// success.
type DuplicateReport struct {
	Duplicates []Duplicate `json:"duplicates"`
	Message    string      `json:"message"`
}

// DuplicateDetector flags code patterns near a feature description.
type DuplicateDetector struct {
	vector    store.VectorIndex
	embedder  QueryEmbedder
	overfetch int
}

// NewDuplicateDetector creates a detector over the code_patterns vector table.
func NewDuplicateDetector(vector store.VectorIndex, embedder QueryEmbedder, overfetch int) *DuplicateDetector {
	if overfetch < 1 {
		overfetch = DefaultOverfetchMultiplier
	}
	return &DuplicateDetector{vector: vector, embedder: embedder, overfetch: overfetch}
}

// Identify never fails: a missing feature or an index error yields an empty
// report with a message.
func (d *DuplicateDetector) Identify(ctx context.Context, q DuplicateQuery) *DuplicateReport {
	if strings.TrimSpace(q.Feature) == "" {
		return &DuplicateReport{Duplicates: []Duplicate{}, Message: MsgNoFeature}
	}
	threshold := DefaultDuplicateThreshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}

	hits, err := d.search(ctx, q.Feature)
	hits = degradeToEmpty(ctx, hits, err)

	dups := make([]Duplicate, 0, DuplicateLimit)
	for _, h := range hits {
		if len(dups) >= DuplicateLimit {
			break
		}
		if q.Project != "" && h.ProjectID != q.Project {
			continue
		}
		if q.Scope != "" && !strings.HasPrefix(h.Metadata["file_path"], q.Scope) {
			continue
		}
		sim := h.Similarity()
		if sim < threshold {
			continue
		}
		dups = append(dups, Duplicate{
			ID:         h.RowID,
			Content:    h.Text,
			Similarity: sim,
			FilePath:   h.Metadata["file_path"],
			Language:   h.Metadata["language"],
		})
	}

	if len(dups) == 0 {
		return &DuplicateReport{Duplicates: dups, Message: MsgNoDuplicates}
	}
	return &DuplicateReport{
		Duplicates: dups,
		Message:    fmt.Sprintf("Found %d potential duplicate(s)", len(dups)),
	}
}

func (d *DuplicateDetector) search(ctx context.Context, feature string) ([]*store.VectorHit, error) {
	vec, err := d.embedder.Embed(ctx, feature)
	if err != nil {
		return nil, &SearchError{Source: SourceVector, Table: store.TableCodePatterns, Err: err}
	}
	if isZeroVector(vec) {
		return []*store.VectorHit{}, nil
	}
	hits, err := d.vector.Search(ctx, store.TableCodePatterns, vec, DuplicateLimit*d.overfetch)
	if err != nil {
		return nil, &SearchError{Source: SourceVector, Table: store.TableCodePatterns, Err: err}
	}
	return hits, nil
}
