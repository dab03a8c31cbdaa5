package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func decodeList(raw string) []string {
	var items []string
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return items
}

func ensureIDs(id, embeddingID *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if *embeddingID == "" {
		*embeddingID = uuid.NewString()
	}
}

// =============================================================================
// Projects
// =============================================================================

// GetOrCreateProject returns the project named name, creating it on first use.
// It is the only way a project comes into existence.
func (s *SQLiteStore) GetOrCreateProject(ctx context.Context, name string) (*Project, error) {
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO projects (id, name, metadata, created_at) VALUES (?, ?, '{}', ?)`,
		uuid.NewString(), name, nowMillis())
	if err != nil {
		return nil, fmt.Errorf("create project %s: %w", name, err)
	}
	return s.projectByName(ctx, name)
}

// GetProjectByName looks a project up without creating it.
func (s *SQLiteStore) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.projectByName(ctx, name)
}

func (s *SQLiteStore) projectByName(ctx context.Context, name string) (*Project, error) {
	var p Project
	var meta string
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, metadata, created_at FROM projects WHERE name = ?`, name).
		Scan(&p.ID, &p.Name, &meta, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", name, err)
	}
	_ = json.Unmarshal([]byte(meta), &p.Metadata)
	p.CreatedAt = fromMillis(created)
	return &p, nil
}

// ListProjects returns every project ordered by name.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, metadata, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Project
	for rows.Next() {
		var p Project
		var meta string
		var created int64
		if err := rows.Scan(&p.ID, &p.Name, &meta, &created); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		_ = json.Unmarshal([]byte(meta), &p.Metadata)
		p.CreatedAt = fromMillis(created)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// =============================================================================
// Decisions
// =============================================================================

// InsertDecision stores d. ID and EmbeddingID are generated when empty.
func (s *SQLiteStore) InsertDecision(ctx context.Context, d *Decision) error {
	ensureIDs(&d.ID, &d.EmbeddingID)
	if d.EmbeddingStatus == "" {
		d.EmbeddingStatus = EmbeddingPending
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, project_id, decision, context, impact, alternatives,
			embedding_id, embedding_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ProjectID, d.Decision, d.Context, d.Impact, encodeList(d.Alternatives),
		d.EmbeddingID, string(d.EmbeddingStatus), d.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

const decisionColumns = `id, project_id, decision, context, impact, alternatives,
	embedding_id, embedding_status, created_at`

func scanDecision(row interface{ Scan(...any) error }) (*Decision, error) {
	var d Decision
	var alts, status string
	var created int64
	if err := row.Scan(&d.ID, &d.ProjectID, &d.Decision, &d.Context, &d.Impact, &alts,
		&d.EmbeddingID, &status, &created); err != nil {
		return nil, err
	}
	d.Alternatives = decodeList(alts)
	d.EmbeddingStatus = EmbeddingStatus(status)
	d.CreatedAt = fromMillis(created)
	return &d, nil
}

// GetDecision loads one decision by id.
func (s *SQLiteStore) GetDecision(ctx context.Context, id string) (*Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	d, err := scanDecision(s.db.QueryRowContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decision %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get decision %s: %w", id, err)
	}
	return d, nil
}

// ListDecisions returns a project's decisions, newest first.
// limit <= 0 returns all of them.
func (s *SQLiteStore) ListDecisions(ctx context.Context, projectID string, limit int) ([]*Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE project_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, projectID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// =============================================================================
// Progress
// =============================================================================

// UpsertProgress inserts p or updates the row with the same
// (project_id, milestone). On update, p receives the existing ID,
// EmbeddingID and CreatedAt, and the embedding is marked pending again
// because the embedded text changed.
func (s *SQLiteStore) UpsertProgress(ctx context.Context, p *Progress) (created bool, err error) {
	if !ValidProgressStatus(p.Status) {
		return false, fmt.Errorf("invalid progress status %q", p.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin progress upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var existingID, existingEmbedding string
	var existingCreated int64
	err = tx.QueryRowContext(ctx,
		`SELECT id, embedding_id, created_at FROM progress WHERE project_id = ? AND milestone = ?`,
		p.ProjectID, p.Milestone).Scan(&existingID, &existingEmbedding, &existingCreated)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		ensureIDs(&p.ID, &p.EmbeddingID)
		p.EmbeddingStatus = EmbeddingPending
		p.CreatedAt, p.UpdatedAt = now, now
		_, err = tx.ExecContext(ctx, `
			INSERT INTO progress (id, project_id, milestone, status, notes, blockers,
				embedding_id, embedding_status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.ProjectID, p.Milestone, string(p.Status), p.Notes, encodeList(p.Blockers),
			p.EmbeddingID, string(p.EmbeddingStatus), now.UnixMilli(), now.UnixMilli())
		if err != nil {
			return false, fmt.Errorf("insert progress: %w", err)
		}
		created = true

	case err != nil:
		return false, fmt.Errorf("lookup progress: %w", err)

	default:
		p.ID, p.EmbeddingID = existingID, existingEmbedding
		p.EmbeddingStatus = EmbeddingPending
		p.CreatedAt, p.UpdatedAt = fromMillis(existingCreated), now
		_, err = tx.ExecContext(ctx, `
			UPDATE progress SET status = ?, notes = ?, blockers = ?,
				embedding_status = ?, updated_at = ?
			WHERE id = ?`,
			string(p.Status), p.Notes, encodeList(p.Blockers),
			string(p.EmbeddingStatus), now.UnixMilli(), p.ID)
		if err != nil {
			return false, fmt.Errorf("update progress: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit progress: %w", err)
	}
	return created, nil
}

const progressColumns = `id, project_id, milestone, status, notes, blockers,
	embedding_id, embedding_status, created_at, updated_at`

func scanProgress(row interface{ Scan(...any) error }) (*Progress, error) {
	var p Progress
	var status, blockers, embStatus string
	var created, updated int64
	if err := row.Scan(&p.ID, &p.ProjectID, &p.Milestone, &status, &p.Notes, &blockers,
		&p.EmbeddingID, &embStatus, &created, &updated); err != nil {
		return nil, err
	}
	p.Status = ProgressStatus(status)
	p.Blockers = decodeList(blockers)
	p.EmbeddingStatus = EmbeddingStatus(embStatus)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

// GetProgress loads the milestone of a project.
func (s *SQLiteStore) GetProgress(ctx context.Context, projectID, milestone string) (*Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	p, err := scanProgress(s.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM progress WHERE project_id = ? AND milestone = ?`,
		projectID, milestone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("milestone %s: %w", milestone, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return p, nil
}

// ListProgress returns a project's milestones, most recently updated first.
func (s *SQLiteStore) ListProgress(ctx context.Context, projectID string, limit int) ([]*Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+progressColumns+` FROM progress WHERE project_id = ?
		 ORDER BY updated_at DESC, rowid DESC LIMIT ?`, projectID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// Code patterns
// =============================================================================

// InsertCodePattern stores c. It returns ErrAlreadyExists when the project
// already holds a pattern with the same hash.
func (s *SQLiteStore) InsertCodePattern(ctx context.Context, c *CodePattern) error {
	ensureIDs(&c.ID, &c.EmbeddingID)
	if c.EmbeddingStatus == "" {
		c.EmbeddingStatus = EmbeddingPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO code_patterns (id, project_id, pattern_hash, file_path, language, content,
			symbols, embedding_id, embedding_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.PatternHash, c.FilePath, c.Language, c.Content,
		encodeList(c.Symbols), c.EmbeddingID, string(c.EmbeddingStatus), c.CreatedAt.UnixMilli())
	if isUniqueViolation(err) {
		return fmt.Errorf("code pattern %s: %w", c.PatternHash, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert code pattern: %w", err)
	}
	return nil
}

const patternColumns = `id, project_id, pattern_hash, file_path, language, content,
	symbols, embedding_id, embedding_status, created_at`

func scanPattern(row interface{ Scan(...any) error }) (*CodePattern, error) {
	var c CodePattern
	var symbols, status string
	var created int64
	if err := row.Scan(&c.ID, &c.ProjectID, &c.PatternHash, &c.FilePath, &c.Language, &c.Content,
		&symbols, &c.EmbeddingID, &status, &created); err != nil {
		return nil, err
	}
	c.Symbols = decodeList(symbols)
	c.EmbeddingStatus = EmbeddingStatus(status)
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

// GetCodePatternByHash finds a project's pattern by hash.
func (s *SQLiteStore) GetCodePatternByHash(ctx context.Context, projectID, hash string) (*CodePattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	c, err := scanPattern(s.db.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM code_patterns WHERE project_id = ? AND pattern_hash = ?`,
		projectID, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("code pattern %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get code pattern: %w", err)
	}
	return c, nil
}

// =============================================================================
// Documentation
// =============================================================================

// DocChange reports what UpsertDocumentation did.
type DocChange string

const (
	DocCreated   DocChange = "created"
	DocUpdated   DocChange = "updated"
	DocUnchanged DocChange = "unchanged"
)

// UpsertDocumentation inserts e or updates the section with the same
// (project_id, path, title). A section whose ContentHash is unchanged is
// left alone. Updates keep the existing ID and EmbeddingID.
func (s *SQLiteStore) UpsertDocumentation(ctx context.Context, e *DocumentationEntry) (DocChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin documentation upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var id, embeddingID, hash, status string
	var created int64
	err = tx.QueryRowContext(ctx, `
		SELECT id, embedding_id, content_hash, embedding_status, created_at FROM documentation
		WHERE project_id = ? AND path = ? AND title = ?`,
		e.ProjectID, e.Path, e.Title).Scan(&id, &embeddingID, &hash, &status, &created)

	var change DocChange
	switch {
	case errors.Is(err, sql.ErrNoRows):
		ensureIDs(&e.ID, &e.EmbeddingID)
		e.EmbeddingStatus = EmbeddingPending
		e.CreatedAt, e.UpdatedAt = now, now
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documentation (id, project_id, title, content, content_hash, source, path,
				embedding_id, embedding_status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.ProjectID, e.Title, e.Content, e.ContentHash, e.Source, e.Path,
			e.EmbeddingID, string(e.EmbeddingStatus), now.UnixMilli(), now.UnixMilli())
		if err != nil {
			return "", fmt.Errorf("insert documentation: %w", err)
		}
		change = DocCreated

	case err != nil:
		return "", fmt.Errorf("lookup documentation: %w", err)

	case hash == e.ContentHash:
		e.ID, e.EmbeddingID = id, embeddingID
		e.EmbeddingStatus = EmbeddingStatus(status)
		e.CreatedAt = fromMillis(created)
		return DocUnchanged, nil

	default:
		e.ID, e.EmbeddingID = id, embeddingID
		e.EmbeddingStatus = EmbeddingPending
		e.CreatedAt, e.UpdatedAt = fromMillis(created), now
		_, err = tx.ExecContext(ctx, `
			UPDATE documentation SET content = ?, content_hash = ?, source = ?,
				embedding_status = ?, updated_at = ?
			WHERE id = ?`,
			e.Content, e.ContentHash, e.Source, string(e.EmbeddingStatus), now.UnixMilli(), e.ID)
		if err != nil {
			return "", fmt.Errorf("update documentation: %w", err)
		}
		change = DocUpdated
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit documentation: %w", err)
	}
	return change, nil
}

const docColumns = `id, project_id, title, content, content_hash, source, path,
	embedding_id, embedding_status, created_at, updated_at`

func scanDoc(row interface{ Scan(...any) error }) (*DocumentationEntry, error) {
	var e DocumentationEntry
	var status string
	var created, updated int64
	if err := row.Scan(&e.ID, &e.ProjectID, &e.Title, &e.Content, &e.ContentHash, &e.Source, &e.Path,
		&e.EmbeddingID, &status, &created, &updated); err != nil {
		return nil, err
	}
	e.EmbeddingStatus = EmbeddingStatus(status)
	e.CreatedAt = fromMillis(created)
	e.UpdatedAt = fromMillis(updated)
	return &e, nil
}

// GetDocumentation loads one documentation section.
func (s *SQLiteStore) GetDocumentation(ctx context.Context, projectID, path, title string) (*DocumentationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	e, err := scanDoc(s.db.QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM documentation WHERE project_id = ? AND path = ? AND title = ?`,
		projectID, path, title))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("documentation %s#%s: %w", path, title, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get documentation: %w", err)
	}
	return e, nil
}
