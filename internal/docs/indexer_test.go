package docs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmem/internal/embed"
	"github.com/Aman-CERP/amanmem/internal/memory"
	"github.com/Aman-CERP/amanmem/internal/search"
	"github.com/Aman-CERP/amanmem/internal/store"
)

// --- Test Helpers ---

// recordingSink keeps the last content per (path, title) and reports
// created/updated/unchanged the way the memory service does.
type recordingSink struct {
	mu       sync.Mutex
	sections map[string]memory.DocSection
	failOn   string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{sections: make(map[string]memory.DocSection)}
}

func (s *recordingSink) IndexDocumentation(_ context.Context, sec memory.DocSection) (memory.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && sec.Title == s.failOn {
		return "", errors.New("sink failure")
	}
	key := sec.Path + "#" + sec.Title
	prev, ok := s.sections[key]
	s.sections[key] = sec
	switch {
	case !ok:
		return memory.ChangeCreated, nil
	case prev.Content != sec.Content:
		return memory.ChangeUpdated, nil
	default:
		return memory.ChangeUnchanged, nil
	}
}

func (s *recordingSink) get(path, title string) (memory.DocSection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[path+"#"+title]
	return sec, ok
}

// batchingSink records how writes are grouped into batches.
type batchingSink struct {
	*recordingSink
	depth     atomic.Int32
	outer     atomic.Int32
	unbatched atomic.Int32
}

func (s *batchingSink) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.depth.Add(1) == 1 {
		s.outer.Add(1)
	}
	defer s.depth.Add(-1)
	return fn(ctx)
}

func (s *batchingSink) IndexDocumentation(ctx context.Context, sec memory.DocSection) (memory.Change, error) {
	if s.depth.Load() == 0 {
		s.unbatched.Add(1)
	}
	return s.recordingSink.IndexDocumentation(ctx, sec)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func docsTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "README.md", "# Project\n\nWhat it does.\n")
	writeFile(t, root, "docs/setup.md", "# Setup\n\nInstall it.\n\n## Config\n\nEdit the yaml.\n")
	writeFile(t, root, "docs/api/tools.mdx", "# Tools\n\nrecord_decision and friends.\n")
	writeFile(t, root, "docs/diagram.png", "not markdown")
	writeFile(t, root, "docs/.drafts/wip.md", "# WIP\n\nhidden\n")
	return root
}

// =============================================================================
// Files
// =============================================================================

func TestIndexer_Files(t *testing.T) {
	root := docsTree(t)
	ix := NewIndexer(newRecordingSink(), Options{Root: root, Dirs: []string{"docs", "README.md", "missing"}})

	files, err := ix.Files()

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"docs/setup.md", "docs/api/tools.mdx", "README.md"}, files)
}

func TestIndexer_Files_IgnoreRules(t *testing.T) {
	// Given: ignore files excluding a directory and a file pattern
	root := docsTree(t)
	writeFile(t, root, "docs/generated/api.md", "# API\n")
	writeFile(t, root, "docs/notes.md", "# Notes\n")
	writeFile(t, root, ".gitignore", "generated/\n")
	writeFile(t, root, ".amanmemignore", "notes.md\n")
	ix := NewIndexer(newRecordingSink(), Options{Root: root, Dirs: []string{"docs"}})

	// When: listing files
	files, err := ix.Files()

	// Then: ignored files are left out
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"docs/setup.md", "docs/api/tools.mdx"}, files)
}

func TestIndexer_Files_DirectSourceNotIgnored(t *testing.T) {
	root := docsTree(t)
	writeFile(t, root, ".gitignore", "*.md\n")
	ix := NewIndexer(newRecordingSink(), Options{Root: root, Dirs: []string{"README.md"}})

	files, err := ix.Files()

	require.NoError(t, err)
	assert.Equal(t, []string{"README.md"}, files)
}

func TestIsDoc(t *testing.T) {
	for path, want := range map[string]bool{
		"a.md":       true,
		"b.MARKDOWN": true,
		"c.mdx":      true,
		"d.txt":      false,
		"e":          false,
	} {
		assert.Equal(t, want, IsDoc(path), path)
	}
}

// =============================================================================
// Indexing
// =============================================================================

func TestIndexer_IndexAll(t *testing.T) {
	// Given: a documentation tree
	root := docsTree(t)
	sink := newRecordingSink()
	ix := NewIndexer(sink, Options{Root: root, Dirs: []string{"docs", "README.md"}, Project: "alpha"})
	var progress []Progress

	// When: indexing everything
	report, err := ix.IndexAll(context.Background(), func(p Progress) { progress = append(progress, p) })

	// Then: every section is stored with its source and project
	require.NoError(t, err)
	assert.Equal(t, 3, report.Files)
	assert.Equal(t, 4, report.Sections)
	assert.Equal(t, 4, report.Created)
	require.Len(t, progress, 3)
	assert.Equal(t, 3, progress[2].Total)
	assert.Equal(t, 3, progress[2].Current)

	sec, ok := sink.get("docs/setup.md", "Setup > Config")
	require.True(t, ok)
	assert.Equal(t, "docs", sec.Source)
	assert.Equal(t, "alpha", sec.Project)
	assert.Equal(t, "## Config\n\nEdit the yaml.", sec.Content)

	// When: indexing again after one edit
	writeFile(t, root, "docs/setup.md", "# Setup\n\nInstall it.\n\n## Config\n\nEdit config.yaml.\n")
	report, err = ix.IndexAll(context.Background(), nil)

	// Then: only the edited section is updated
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 3, report.Unchanged)
}

func TestIndexer_IndexAll_SingleBatch(t *testing.T) {
	// Given: a sink that can batch writes
	root := docsTree(t)
	sink := &batchingSink{recordingSink: newRecordingSink()}
	ix := NewIndexer(sink, Options{Root: root, Dirs: []string{"docs", "README.md"}})

	// When: indexing everything and then one file
	_, err := ix.IndexAll(context.Background(), nil)
	require.NoError(t, err)
	_, err = ix.IndexFile(context.Background(), "docs/setup.md")
	require.NoError(t, err)

	// Then: each call is one outer batch and no section is written outside it
	assert.Equal(t, int32(2), sink.outer.Load())
	assert.Equal(t, int32(0), sink.unbatched.Load())
}

func TestIndexer_IndexFile_CountsFailures(t *testing.T) {
	root := docsTree(t)
	sink := newRecordingSink()
	sink.failOn = "Setup > Config"
	ix := NewIndexer(sink, Options{Root: root})

	fr, err := ix.IndexFile(context.Background(), filepath.Join(root, "docs", "setup.md"))

	require.NoError(t, err)
	assert.Equal(t, "docs/setup.md", fr.Path)
	assert.Equal(t, 2, fr.Sections)
	assert.Equal(t, 1, fr.Created)
	assert.Equal(t, 1, fr.Failed)
}

func TestIndexer_IndexFile_Missing(t *testing.T) {
	ix := NewIndexer(newRecordingSink(), Options{Root: t.TempDir()})

	_, err := ix.IndexFile(context.Background(), "nope.md")

	require.Error(t, err)
}

func TestIndexer_MemoryService(t *testing.T) {
	// Given: a real memory service
	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	kw, err := store.NewKeywordIndex(store.KeywordBackendSQLite, st, "")
	require.NoError(t, err)
	vx, err := store.NewHNSWVectorIndex(store.HNSWConfig{})
	require.NoError(t, err)
	provider := embed.NewProvider(embed.NewFactory(embed.FactoryOptions{}), "static-384")
	t.Cleanup(func() { _ = provider.Close() })
	svc := memory.New(memory.Deps{Store: st, Keyword: kw, Vector: vx, Provider: provider},
		memory.Options{DefaultProject: "alpha", Search: search.DefaultConfig()})

	root := docsTree(t)
	ix := NewIndexer(svc, Options{Root: root, Dirs: []string{"docs"}})

	// When: indexing and searching the documentation table
	report, err := ix.IndexAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Created)

	results, err := svc.KeywordSearch(context.Background(), memory.SearchInput{Query: "yaml", Table: store.TableDocumentation})

	// Then: the section is found
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Text, "Edit the yaml.")
}
