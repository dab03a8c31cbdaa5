package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const schemaVersion = 1

// SQLiteStore is the structured store. It owns the single database
// connection shared by the FTS5 keyword index.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	cacheMB int
}

// WithCacheMB sets the SQLite page cache size.
func WithCacheMB(mb int) Option {
	return func(o *openOptions) {
		if mb > 0 {
			o.cacheMB = mb
		}
	}
}

// Open opens or creates the store at path. An empty path opens an
// in-memory database, which lives as long as the store.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	o := openOptions{cacheMB: 16}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := validateIntegrity(path); err != nil {
			// Unlike a derived index, the structured store is the source of
			// truth, so corruption is reported instead of auto-cleared.
			return nil, fmt.Errorf("store at %s failed integrity check: %w", path, err)
		}
		dsn = path
	}

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: serializes writers and keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", o.cacheMB*1024),
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Debug("structured store opened",
		slog.String("path", path),
		slog.String("driver", DriverName),
		slog.String("build_mode", BuildMode))

	return s, nil
}

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS projects (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		metadata   TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS decisions (
		id               TEXT PRIMARY KEY,
		project_id       TEXT NOT NULL REFERENCES projects(id),
		decision         TEXT NOT NULL,
		context          TEXT NOT NULL DEFAULT '',
		impact           TEXT NOT NULL DEFAULT '',
		alternatives     TEXT NOT NULL DEFAULT '[]',
		embedding_id     TEXT NOT NULL UNIQUE,
		embedding_status TEXT NOT NULL DEFAULT 'pending',
		created_at       INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_project ON decisions(project_id, created_at);

	CREATE TABLE IF NOT EXISTS progress (
		id               TEXT PRIMARY KEY,
		project_id       TEXT NOT NULL REFERENCES projects(id),
		milestone        TEXT NOT NULL,
		status           TEXT NOT NULL,
		notes            TEXT NOT NULL DEFAULT '',
		blockers         TEXT NOT NULL DEFAULT '[]',
		embedding_id     TEXT NOT NULL UNIQUE,
		embedding_status TEXT NOT NULL DEFAULT 'pending',
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL,
		UNIQUE(project_id, milestone)
	);

	CREATE TABLE IF NOT EXISTS code_patterns (
		id               TEXT PRIMARY KEY,
		project_id       TEXT NOT NULL REFERENCES projects(id),
		pattern_hash     TEXT NOT NULL,
		file_path        TEXT NOT NULL,
		language         TEXT NOT NULL DEFAULT '',
		content          TEXT NOT NULL,
		symbols          TEXT NOT NULL DEFAULT '[]',
		embedding_id     TEXT NOT NULL UNIQUE,
		embedding_status TEXT NOT NULL DEFAULT 'pending',
		created_at       INTEGER NOT NULL,
		UNIQUE(project_id, pattern_hash)
	);

	CREATE TABLE IF NOT EXISTS documentation (
		id               TEXT PRIMARY KEY,
		project_id       TEXT NOT NULL REFERENCES projects(id),
		title            TEXT NOT NULL,
		content          TEXT NOT NULL,
		content_hash     TEXT NOT NULL,
		source           TEXT NOT NULL DEFAULT '',
		path             TEXT NOT NULL DEFAULT '',
		embedding_id     TEXT NOT NULL UNIQUE,
		embedding_status TEXT NOT NULL DEFAULT 'pending',
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL,
		UNIQUE(project_id, path, title)
	);

	CREATE TABLE IF NOT EXISTS index_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, schemaVersion)
	return err
}

// DB exposes the shared connection to the FTS5 keyword index.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Path returns the database file path, empty for in-memory stores.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

func (s *SQLiteStore) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// GetState reads a key from index_state. Missing keys return "".
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM index_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// SetState writes a key to index_state.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO index_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// StateKey builds a per-table state key such as vector_model:decisions.
func StateKey(prefix, table string) string {
	return prefix + ":" + table
}

// TableCounts summarizes a searchable table.
type TableCounts struct {
	Total   int
	Pending int
}

// Counts returns row and pending-embedding counts per searchable table,
// restricted to projectID when non-empty.
func (s *SQLiteStore) Counts(ctx context.Context, projectID string) (map[string]TableCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	out := make(map[string]TableCounts, len(SearchableTables))
	for _, table := range SearchableTables {
		q := fmt.Sprintf(`SELECT COUNT(*), COALESCE(SUM(embedding_status = 'pending'), 0) FROM %s`, table)
		var args []any
		if projectID != "" {
			q += ` WHERE project_id = ?`
			args = append(args, projectID)
		}
		var c TableCounts
		if err := s.db.QueryRowContext(ctx, q, args...).Scan(&c.Total, &c.Pending); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = c
	}
	return out, nil
}

// MarkEmbedding sets embedding_status for a row.
func (s *SQLiteStore) MarkEmbedding(ctx context.Context, table, rowID string, status EmbeddingStatus) error {
	if !ValidTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET embedding_status = ? WHERE id = ?`, table), string(status), rowID)
	if err != nil {
		return fmt.Errorf("mark %s/%s %s: %w", table, rowID, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark %s/%s: %w", table, rowID, ErrNotFound)
	}
	return nil
}

// isUniqueViolation matches both drivers' constraint messages.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
