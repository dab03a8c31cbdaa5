package docs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/amanmem/internal/gitignore"
	"github.com/Aman-CERP/amanmem/internal/memory"
)

// IgnoreFiles are read from Root, in order, to exclude documentation.
var IgnoreFiles = []string{".gitignore", ".amanmemignore"}

// MaxFileBytes skips documentation files larger than this.
const MaxFileBytes = 2 << 20

// Sink stores one section. *memory.Service implements it.
type Sink interface {
	IndexDocumentation(ctx context.Context, sec memory.DocSection) (memory.Change, error)
}

// Batcher is implemented by sinks that can defer persistence across many
// writes. *memory.Service implements it.
type Batcher interface {
	Batch(ctx context.Context, fn func(ctx context.Context) error) error
}

// Options configures an Indexer.
type Options struct {
	// Root is the project directory; stored paths are relative to it.
	Root string
	// Dirs are files or directories under Root to index.
	Dirs []string
	// Project overrides the service's default project.
	Project string
}

// FileReport counts section outcomes for one file.
type FileReport struct {
	Path      string `json:"path"`
	Sections  int    `json:"sections"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Failed    int    `json:"failed"`
}

func (r *FileReport) add(o FileReport) {
	r.Sections += o.Sections
	r.Created += o.Created
	r.Updated += o.Updated
	r.Unchanged += o.Unchanged
	r.Failed += o.Failed
}

// Report summarizes an IndexAll run.
type Report struct {
	Files int `json:"files"`
	FileReport
	Duration time.Duration `json:"duration"`
}

// Progress is sent to the IndexAll callback after each file.
type Progress struct {
	Current int
	Total   int
	Path    string
	Result  FileReport
}

// Indexer walks documentation sources and writes their sections to a Sink.
type Indexer struct {
	sink   Sink
	opts   Options
	ignore atomic.Pointer[gitignore.Matcher]
}

// NewIndexer creates an indexer. An empty Root means the working directory.
func NewIndexer(sink Sink, opts Options) *Indexer {
	if opts.Root == "" {
		opts.Root = "."
	}
	ix := &Indexer{sink: sink, opts: opts}
	ix.reloadIgnore()
	return ix
}

// reloadIgnore re-reads the ignore files. A file that cannot be read leaves
// the previous rules in place.
func (ix *Indexer) reloadIgnore() {
	m, err := gitignore.Load(ix.opts.Root, IgnoreFiles...)
	if err != nil {
		slog.Warn("ignore rules not loaded", slog.String("error", err.Error()))
		if ix.ignore.Load() == nil {
			ix.ignore.Store(gitignore.New())
		}
		return
	}
	ix.ignore.Store(m)
}

// ignored reports whether an absolute path under Root is excluded by the
// ignore files. Paths outside Root are never excluded.
func (ix *Indexer) ignored(abs string, isDir bool) bool {
	rel, err := filepath.Rel(ix.opts.Root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return ix.ignore.Load().Ignored(rel, isDir)
}

// Root returns the directory stored paths are relative to.
func (ix *Indexer) Root() string {
	return ix.opts.Root
}

// IsDoc reports whether path has a markdown extension.
func IsDoc(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdx":
		return true
	}
	return false
}

// Files lists every markdown file under the configured sources, relative to
// Root. Missing sources are skipped with a warning. Files inside source
// directories that the ignore files exclude are left out; sources named
// directly are always listed.
func (ix *Indexer) Files() ([]string, error) {
	ix.reloadIgnore()
	seen := make(map[string]struct{})
	var files []string
	addFile := func(abs string) {
		rel, err := filepath.Rel(ix.opts.Root, abs)
		if err != nil {
			rel = abs
		}
		rel = filepath.ToSlash(rel)
		if _, dup := seen[rel]; dup {
			return
		}
		seen[rel] = struct{}{}
		files = append(files, rel)
	}

	for _, src := range ix.opts.Dirs {
		abs := src
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(ix.opts.Root, src)
		}
		info, err := os.Stat(abs)
		if err != nil {
			slog.Warn("documentation source skipped",
				slog.String("path", src),
				slog.String("error", err.Error()))
			continue
		}
		if !info.IsDir() {
			if IsDoc(abs) {
				addFile(abs)
			}
			continue
		}
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != abs && (strings.HasPrefix(d.Name(), ".") || ix.ignored(path, true)) {
					return filepath.SkipDir
				}
				return nil
			}
			if IsDoc(path) && !ix.ignored(path, false) {
				addFile(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", src, err)
		}
	}
	return files, nil
}

// IndexFile splits one file into sections and stores each. path is relative
// to Root or absolute. Section failures are counted, not returned.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (FileReport, error) {
	var report FileReport
	err := ix.batch(ctx, func(ctx context.Context) error {
		var err error
		report, err = ix.indexFile(ctx, path)
		return err
	})
	return report, err
}

// batch runs fn inside the sink's batch when it has one.
func (ix *Indexer) batch(ctx context.Context, fn func(ctx context.Context) error) error {
	if b, ok := ix.sink.(Batcher); ok {
		return b.Batch(ctx, fn)
	}
	return fn(ctx)
}

func (ix *Indexer) indexFile(ctx context.Context, path string) (FileReport, error) {
	abs, rel := ix.resolve(path)
	report := FileReport{Path: rel}

	info, err := os.Stat(abs)
	if err != nil {
		return report, fmt.Errorf("stat %s: %w", rel, err)
	}
	if info.Size() > MaxFileBytes {
		slog.Warn("documentation file too large, skipped",
			slog.String("path", rel),
			slog.Int64("size", info.Size()))
		return report, nil
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return report, fmt.Errorf("read %s: %w", rel, err)
	}

	source := strings.SplitN(rel, "/", 2)[0]
	for _, sec := range SplitSections(rel, content) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Sections++
		change, err := ix.sink.IndexDocumentation(ctx, memory.DocSection{
			Path:    rel,
			Title:   sec.Title,
			Content: sec.Content,
			Source:  source,
			Project: ix.opts.Project,
		})
		if err != nil {
			report.Failed++
			slog.Warn("documentation section failed",
				slog.String("path", rel),
				slog.String("title", sec.Title),
				slog.String("error", err.Error()))
			continue
		}
		switch change {
		case memory.ChangeCreated:
			report.Created++
		case memory.ChangeUpdated:
			report.Updated++
		default:
			report.Unchanged++
		}
	}
	return report, nil
}

func (ix *Indexer) resolve(path string) (abs, rel string) {
	if filepath.IsAbs(path) {
		abs = path
	} else {
		abs = filepath.Join(ix.opts.Root, path)
	}
	rel, err := filepath.Rel(ix.opts.Root, abs)
	if err != nil {
		rel = path
	}
	return abs, filepath.ToSlash(rel)
}

// IndexAll indexes every file from Files. onProgress, when set, is called
// after each file.
func (ix *Indexer) IndexAll(ctx context.Context, onProgress func(Progress)) (*Report, error) {
	start := time.Now()
	files, err := ix.Files()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	err = ix.batch(ctx, func(ctx context.Context) error {
		for i, f := range files {
			fr, err := ix.indexFile(ctx, f)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				slog.Warn("documentation file failed",
					slog.String("path", f),
					slog.String("error", err.Error()))
				fr.Failed++
			}
			report.Files++
			report.add(fr)
			if onProgress != nil {
				onProgress(Progress{Current: i + 1, Total: len(files), Path: f, Result: fr})
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	report.Duration = time.Since(start)

	slog.Info("documentation indexed",
		slog.Int("files", report.Files),
		slog.Int("sections", report.Sections),
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration))
	return report, nil
}
