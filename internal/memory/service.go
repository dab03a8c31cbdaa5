package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Aman-CERP/amanmem/internal/config"
	"github.com/Aman-CERP/amanmem/internal/embed"
	amerrors "github.com/Aman-CERP/amanmem/internal/errors"
	"github.com/Aman-CERP/amanmem/internal/search"
	"github.com/Aman-CERP/amanmem/internal/store"
	"github.com/Aman-CERP/amanmem/internal/symbols"
)

// Deps are the shared components a Service is built from. Each is opened
// once per process and passed by reference.
type Deps struct {
	Store    *store.SQLiteStore
	Keyword  store.KeywordIndex
	Vector   store.VectorIndex
	Provider *embed.Provider
}

// Options tune a Service.
type Options struct {
	// DefaultProject is used when a call names no project.
	DefaultProject string
	// ModelKey selects the embedding model. Empty uses the provider default.
	ModelKey string
	Search   search.Config
	// AnalyzerCacheSize bounds the query analysis LRU.
	AnalyzerCacheSize  int
	DuplicateThreshold float64
}

// Service implements the memory operations used by the MCP tools and the CLI.
type Service struct {
	deps     Deps
	opts     Options
	repo     *Repository
	search   *search.Orchestrator
	dups     *search.DuplicateDetector
	analyzer *search.Analyzer
	symbols  *symbols.Extractor
	owned    bool
}

// New builds a Service over already-open components. Close does not close them.
func New(deps Deps, opts Options) *Service {
	if opts.DefaultProject == "" {
		opts.DefaultProject = "default"
	}
	if opts.DuplicateThreshold <= 0 {
		opts.DuplicateThreshold = search.DefaultDuplicateThreshold
	}

	repo := NewRepository(deps.Store, deps.Keyword, deps.Vector, deps.Provider, opts.ModelKey)
	analyzer := search.NewAnalyzer(opts.AnalyzerCacheSize)
	return &Service{
		deps:     deps,
		opts:     opts,
		repo:     repo,
		search:   search.NewOrchestrator(deps.Keyword, deps.Vector, repo, analyzer, opts.Search),
		dups:     search.NewDuplicateDetector(deps.Vector, repo, opts.Search.OverfetchMultiplier),
		analyzer: analyzer,
		symbols:  symbols.NewExtractor(),
	}
}

// Open builds a Service from configuration, opening the store under the
// project's data directory. Close releases everything Open created.
func Open(ctx context.Context, cfg *config.Config) (*Service, error) {
	st, err := store.Open(cfg.DatabasePath(), store.WithCacheMB(cfg.Storage.SQLiteCacheMB))
	if err != nil {
		return nil, err
	}
	keyword, err := store.NewKeywordIndex(cfg.Search.KeywordBackend, st, cfg.KeywordDir())
	if err != nil {
		_ = st.Close()
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "keyword index", err)
	}
	vector, err := store.NewHNSWVectorIndex(store.HNSWConfig{Dir: cfg.VectorDir()})
	if err != nil {
		_ = keyword.Close()
		_ = st.Close()
		return nil, amerrors.New(amerrors.ErrCodeStoreOpen, "vector index", err)
	}

	factoryOpts := embed.FactoryOptions{
		OllamaHost: cfg.Embeddings.OllamaHost,
		CacheSize:  cfg.Embeddings.CacheSize,
		PullModels: cfg.Embeddings.PullModels,
		LockDir:    cfg.Project.DataDir,
	}
	if _, builtin := embed.BuiltinModels[cfg.Embeddings.ModelKey]; !builtin {
		factoryOpts.Custom = []embed.ModelSpec{{
			Key:        cfg.Embeddings.ModelKey,
			Provider:   embed.ParseProvider(cfg.Embeddings.Provider),
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
		}}
	}
	provider := embed.NewProvider(embed.NewFactory(factoryOpts), cfg.Embeddings.ModelKey)

	svc := New(Deps{Store: st, Keyword: keyword, Vector: vector, Provider: provider}, Options{
		DefaultProject: cfg.Project.Name,
		ModelKey:       activeModelKey(ctx, st, cfg.Embeddings.ModelKey),
		Search: search.Config{
			DefaultTable:        cfg.Search.DefaultTable,
			DefaultLimit:        cfg.Search.DefaultLimit,
			VectorWeight:        cfg.Search.VectorWeight,
			OverfetchMultiplier: cfg.Search.OverfetchMultiplier,
		},
		AnalyzerCacheSize:  cfg.Search.AnalyzerCacheSize,
		DuplicateThreshold: cfg.Search.DuplicateThreshold,
	})
	svc.owned = true
	return svc, nil
}

// activeModelKey prefers the model recorded by the last migration so that
// queries match the stored vectors. A different configured key is logged.
func activeModelKey(ctx context.Context, st *store.SQLiteStore, configured string) string {
	recorded, err := st.GetState(ctx, store.StateKey(store.StateKeyVectorModel, store.TableDocumentation))
	if err != nil || recorded == "" || recorded == configured {
		return configured
	}
	slog.Warn("configured embedding model differs from indexed model",
		slog.String("configured", configured),
		slog.String("indexed", recorded),
		slog.String("hint", "run 'amanmem migrate "+configured+"' to switch"))
	return recorded
}

// Repository exposes the dual-write repository.
func (s *Service) Repository() *Repository {
	return s.repo
}

// DefaultProject returns the project used when a call names none.
func (s *Service) DefaultProject() string {
	return s.opts.DefaultProject
}

// Close releases the components Open created.
func (s *Service) Close() error {
	if !s.owned {
		return nil
	}
	return errors.Join(
		s.deps.Provider.Close(),
		s.deps.Keyword.Close(),
		s.deps.Vector.Close(),
		s.deps.Store.Close(),
	)
}

func (s *Service) projectName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return s.opts.DefaultProject
}

// writeProject resolves or creates the project for a write.
func (s *Service) writeProject(ctx context.Context, name string) (*store.Project, error) {
	p, err := s.deps.Store.GetOrCreateProject(ctx, s.projectName(name))
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeStoreWrite, "resolve project", err)
	}
	return p, nil
}

// readProject resolves the project for a read. A project that does not
// exist yet has no rows, so found is false and no error is returned.
func (s *Service) readProject(ctx context.Context, name string) (id string, found bool, err error) {
	p, err := s.deps.Store.GetProjectByName(ctx, s.projectName(name))
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p.ID, true, nil
}

// =============================================================================
// Status
// =============================================================================

// TableStatus summarizes one searchable table.
type TableStatus struct {
	Rows       int    `json:"rows"`
	Pending    int    `json:"pending"`
	Vectors    int    `json:"vectors"`
	Dimensions int    `json:"dimensions"`
	Model      string `json:"model,omitempty"`
	KeywordOK  bool   `json:"keyword_built"`
}

// Status is the memory_status report.
type Status struct {
	Project        string                 `json:"project"`
	Projects       []string               `json:"projects"`
	ModelKey       string                 `json:"model_key"`
	WarmModels     []string               `json:"warm_models"`
	KeywordBackend string                 `json:"keyword_backend"`
	DatabasePath   string                 `json:"database_path"`
	Tables         map[string]TableStatus `json:"tables"`
}

// Pending sums pending rows across tables.
func (st *Status) Pending() int {
	n := 0
	for _, t := range st.Tables {
		n += t.Pending
	}
	return n
}

// Status reports row counts for project, vector counts for the whole
// index, warm models and the keyword backend.
func (s *Service) Status(ctx context.Context, project string) (*Status, error) {
	out := &Status{
		Project:        s.projectName(project),
		ModelKey:       s.repo.ModelKey(),
		WarmModels:     s.deps.Provider.WarmKeys(),
		KeywordBackend: s.deps.Keyword.Backend(),
		DatabasePath:   s.deps.Store.Path(),
		Tables:         make(map[string]TableStatus, len(store.SearchableTables)),
	}
	sort.Strings(out.WarmModels)

	projects, err := s.deps.Store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		out.Projects = append(out.Projects, p.Name)
	}

	counts := map[string]store.TableCounts{}
	id, found, err := s.readProject(ctx, project)
	if err != nil {
		return nil, err
	}
	if found {
		if counts, err = s.deps.Store.Counts(ctx, id); err != nil {
			return nil, err
		}
	}

	for _, table := range store.SearchableTables {
		model, _ := s.deps.Store.GetState(ctx, store.StateKey(store.StateKeyVectorModel, table))
		out.Tables[table] = TableStatus{
			Rows:       counts[table].Total,
			Pending:    counts[table].Pending,
			Vectors:    s.deps.Vector.Count(table),
			Dimensions: s.deps.Vector.Dimensions(table),
			Model:      model,
			KeywordOK:  s.deps.Keyword.Built(ctx, table),
		}
	}
	return out, nil
}

// Batch groups many writes so the vector index is saved once. See
// Repository.Batch.
func (s *Service) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.repo.Batch(ctx, fn)
}

// Reconcile repairs pending and missing embeddings.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	return s.repo.Reconcile(ctx)
}

// MigrateEmbeddings re-embeds everything with modelKey.
func (s *Service) MigrateEmbeddings(ctx context.Context, modelKey string) (*MigrationReport, error) {
	if strings.TrimSpace(modelKey) == "" {
		return nil, amerrors.MissingField("model_key")
	}
	return s.repo.Migrate(ctx, modelKey)
}

// relPath cleans a file path for storage and prefix matching.
func relPath(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func statusError(status string) error {
	return amerrors.New(amerrors.ErrCodeInvalidStatus,
		fmt.Sprintf("invalid status %q", status), nil).
		WithSuggestion("Use one of: not_started, in_progress, testing, completed, blocked")
}
