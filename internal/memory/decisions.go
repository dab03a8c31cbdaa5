package memory

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/amanmem/internal/embed"
	amerrors "github.com/Aman-CERP/amanmem/internal/errors"
	"github.com/Aman-CERP/amanmem/internal/search"
	"github.com/Aman-CERP/amanmem/internal/store"
)

// DecisionInput is the record_decision payload.
type DecisionInput struct {
	Decision     string   `json:"decision"`
	Context      string   `json:"context,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Impact       string   `json:"impact,omitempty"`
	Project      string   `json:"project,omitempty"`
}

// DecisionResult identifies a stored decision.
type DecisionResult struct {
	ID          string `json:"id"`
	EmbeddingID string `json:"embedding_id"`
}

// RecordDecision stores an immutable decision. Decision text is required.
func (s *Service) RecordDecision(ctx context.Context, in DecisionInput) (*DecisionResult, error) {
	if strings.TrimSpace(in.Decision) == "" {
		return nil, amerrors.MissingField("decision")
	}
	project, err := s.writeProject(ctx, in.Project)
	if err != nil {
		return nil, err
	}

	d := &store.Decision{
		ProjectID:    project.ID,
		Decision:     strings.TrimSpace(in.Decision),
		Context:      in.Context,
		Impact:       in.Impact,
		Alternatives: in.Alternatives,
	}
	if _, err := s.repo.Write(ctx, d); err != nil {
		return nil, err
	}
	return &DecisionResult{ID: d.ID, EmbeddingID: d.EmbeddingID}, nil
}

// ProgressInput is the track_progress payload.
type ProgressInput struct {
	Milestone string   `json:"milestone"`
	Status    string   `json:"status"`
	Notes     string   `json:"notes,omitempty"`
	Blockers  []string `json:"blockers,omitempty"`
	Project   string   `json:"project,omitempty"`
}

// ProgressResult identifies a milestone row.
type ProgressResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// TrackProgress upserts a milestone by name: a second call for the same
// milestone updates status, notes and blockers in place.
func (s *Service) TrackProgress(ctx context.Context, in ProgressInput) (*ProgressResult, error) {
	if strings.TrimSpace(in.Milestone) == "" {
		return nil, amerrors.MissingField("milestone")
	}
	status := store.ProgressStatus(strings.TrimSpace(in.Status))
	if !store.ValidProgressStatus(status) {
		return nil, statusError(in.Status)
	}
	project, err := s.writeProject(ctx, in.Project)
	if err != nil {
		return nil, err
	}

	p := &store.Progress{
		ProjectID: project.ID,
		Milestone: strings.TrimSpace(in.Milestone),
		Status:    status,
		Notes:     in.Notes,
		Blockers:  in.Blockers,
	}
	res, err := s.repo.Write(ctx, p)
	if err != nil {
		return nil, err
	}
	return &ProgressResult{ID: p.ID, Created: res.Change == ChangeCreated}, nil
}

// Memory categories.
const (
	CategoryAll       = "all"
	CategoryDecisions = "decisions"
	CategoryProgress  = "progress"
)

// DefaultMemoryLimit applies when MemoryQuery.Limit is zero.
const DefaultMemoryLimit = 10

// MemoryQuery is the get_project_memory payload.
type MemoryQuery struct {
	Query    string `json:"query,omitempty"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Project  string `json:"project,omitempty"`
}

// MemoryItem is one decision or milestone.
type MemoryItem struct {
	Kind      string            `json:"kind"`
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Details   string            `json:"details,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	// Score is the cosine similarity to the query; 0 without a query.
	Score float64 `json:"score,omitempty"`

	embedText string
}

// GetProjectMemory lists a project's decisions and milestones newest first.
// With a query, items are ranked by similarity to it. The candidates are the
// newest limit rows of each category plus the nearest vector neighbors in the
// project, so an older row that matches the query still surfaces.
func (s *Service) GetProjectMemory(ctx context.Context, q MemoryQuery) ([]*MemoryItem, error) {
	category := strings.ToLower(strings.TrimSpace(q.Category))
	switch category {
	case "":
		category = CategoryAll
	case CategoryAll, CategoryDecisions, CategoryProgress:
	default:
		return nil, amerrors.ValidationError("unknown category: "+q.Category, nil).
			WithSuggestion("Use one of: all, decisions, progress")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}

	projectID, found, err := s.readProject(ctx, q.Project)
	if err != nil {
		return nil, err
	}
	if !found {
		return []*MemoryItem{}, nil
	}

	var qv []float32
	var nearest map[string]bool
	listLimit := limit
	if query := strings.TrimSpace(q.Query); query != "" {
		qv, err = s.repo.Embed(ctx, query)
		if err != nil {
			slog.Warn("memory re-rank skipped", slog.String("error", err.Error()))
			qv = nil
		} else {
			nearest = s.nearestMemory(ctx, qv, projectID, category, limit)
			if len(nearest) > 0 {
				listLimit = 0
			}
		}
	}
	keep := func(i int, id string) bool {
		return i < limit || nearest[id]
	}

	var items []*MemoryItem
	if category != CategoryProgress {
		decisions, err := s.deps.Store.ListDecisions(ctx, projectID, listLimit)
		if err != nil {
			return nil, err
		}
		for i, d := range decisions {
			if !keep(i, d.ID) {
				continue
			}
			row := d.EmbeddedRow()
			items = append(items, &MemoryItem{
				Kind:      "decision",
				ID:        d.ID,
				Text:      d.Decision,
				Details:   d.Context,
				Metadata:  row.Metadata,
				Timestamp: d.CreatedAt,
				embedText: row.Text,
			})
		}
	}
	if category != CategoryDecisions {
		progress, err := s.deps.Store.ListProgress(ctx, projectID, listLimit)
		if err != nil {
			return nil, err
		}
		for i, p := range progress {
			if !keep(i, p.ID) {
				continue
			}
			row := p.EmbeddedRow()
			items = append(items, &MemoryItem{
				Kind:      "progress",
				ID:        p.ID,
				Text:      row.Display,
				Details:   p.Notes,
				Metadata:  row.Metadata,
				Timestamp: p.UpdatedAt,
				embedText: row.Text,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})
	if qv != nil {
		s.rankBySimilarity(ctx, qv, items)
	}
	if len(items) > limit {
		items = items[:limit]
	}
	if items == nil {
		items = []*MemoryItem{}
	}
	return items, nil
}

// memoryCandidateFloor is the minimum neighbor count fetched per table before
// the project filter, so small limits still see past other projects' rows.
const memoryCandidateFloor = 50

// nearestMemory returns the row IDs of the project's nearest decisions and
// milestones to qv. Index errors are logged and yield no extra candidates.
func (s *Service) nearestMemory(ctx context.Context, qv []float32, projectID, category string, limit int) map[string]bool {
	mult := s.opts.Search.OverfetchMultiplier
	if mult < 1 {
		mult = search.DefaultOverfetchMultiplier
	}
	fetch := max(limit*mult, memoryCandidateFloor)

	var tables []string
	if category != CategoryProgress {
		tables = append(tables, store.TableDecisions)
	}
	if category != CategoryDecisions {
		tables = append(tables, store.TableProgress)
	}

	out := make(map[string]bool)
	for _, table := range tables {
		hits, err := s.deps.Vector.Search(ctx, table, qv, fetch)
		if err != nil {
			slog.Warn("memory candidates skipped",
				slog.String("table", table),
				slog.String("error", err.Error()))
			continue
		}
		kept := 0
		for _, h := range hits {
			if kept >= limit {
				break
			}
			if h.ProjectID != projectID {
				continue
			}
			out[h.RowID] = true
			kept++
		}
	}
	return out
}

// rankBySimilarity scores items against qv and sorts them by score.
// Embedding failures keep the newest-first order.
func (s *Service) rankBySimilarity(ctx context.Context, qv []float32, items []*MemoryItem) {
	if len(items) == 0 {
		return
	}
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.embedText
	}
	vecs, err := s.deps.Provider.EmbedBatchWith(ctx, s.repo.ModelKey(), texts)
	if err != nil {
		slog.Warn("memory re-rank skipped", slog.String("error", err.Error()))
		return
	}
	for i, it := range items {
		it.Score = embed.CosineSimilarity(qv, vecs[i])
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
}
