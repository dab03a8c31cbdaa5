package docs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when WatchOptions.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// WatchOptions configures a Watcher.
type WatchOptions struct {
	Debounce time.Duration
	// OnBatch, when set, receives the result of each re-indexed batch.
	OnBatch func([]FileReport)
}

// Watcher re-indexes documentation files as they change. Deleted files are
// logged; their sections stay in memory.
type Watcher struct {
	ix   *Indexer
	opts WatchOptions
	fsw  *fsnotify.Watcher
	// files are single-file sources; dirs are watched recursively.
	files map[string]struct{}
	dirs  []string
}

// NewWatcher creates a watcher over the indexer's sources.
func NewWatcher(ix *Indexer, opts WatchOptions) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{
		ix:    ix,
		opts:  opts,
		fsw:   fsw,
		files: make(map[string]struct{}),
	}, nil
}

// Run watches until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	if err := w.addSources(); err != nil {
		return err
	}

	debouncer := NewDebouncer(w.opts.Debounce)
	defer debouncer.Stop()

	slog.Info("watching documentation",
		slog.Int("dirs", len(w.dirs)),
		slog.Int("files", len(w.files)))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if fe, ok := w.convert(ev); ok {
				debouncer.Add(fe)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", slog.String("error", err.Error()))
		case batch, ok := <-debouncer.Output():
			if !ok {
				return nil
			}
			w.process(ctx, batch)
		}
	}
}

func (w *Watcher) addSources() error {
	root := w.ix.Root()
	for _, src := range w.ix.opts.Dirs {
		abs := src
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(root, src)
		}
		info, err := os.Stat(abs)
		if err != nil {
			slog.Warn("documentation source not watched",
				slog.String("path", src),
				slog.String("error", err.Error()))
			continue
		}
		if !info.IsDir() {
			w.files[filepath.Clean(abs)] = struct{}{}
			if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
				return fmt.Errorf("watch %s: %w", src, err)
			}
			continue
		}
		w.dirs = append(w.dirs, filepath.Clean(abs))
		if err := w.addTree(abs); err != nil {
			return fmt.Errorf("watch %s: %w", src, err)
		}
	}
	return nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != dir && (strings.HasPrefix(d.Name(), ".") || w.ix.ignored(path, true)) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// watched reports whether a path belongs to a source and is not ignored.
func (w *Watcher) watched(abs string) bool {
	if _, ok := w.files[abs]; ok {
		return true
	}
	for _, d := range w.dirs {
		if strings.HasPrefix(abs, d+string(filepath.Separator)) {
			return !w.ix.ignored(abs, false)
		}
	}
	return false
}

func (w *Watcher) convert(ev fsnotify.Event) (FileEvent, bool) {
	abs := filepath.Clean(ev.Name)
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			if w.watched(abs) && !w.ix.ignored(abs, true) {
				if err := w.addTree(abs); err != nil {
					slog.Warn("watch new directory failed",
						slog.String("path", abs),
						slog.String("error", err.Error()))
				}
			}
			return FileEvent{}, false
		}
	}
	if !IsDoc(abs) || !w.watched(abs) {
		return FileEvent{}, false
	}

	_, rel := w.ix.resolve(abs)
	switch {
	case ev.Has(fsnotify.Create):
		return FileEvent{Path: rel, Operation: OpCreate}, true
	case ev.Has(fsnotify.Write):
		return FileEvent{Path: rel, Operation: OpModify}, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return FileEvent{Path: rel, Operation: OpDelete}, true
	}
	return FileEvent{}, false
}

func (w *Watcher) process(ctx context.Context, batch []FileEvent) {
	reports := make([]FileReport, 0, len(batch))
	for _, ev := range batch {
		if ev.Operation == OpDelete {
			slog.Info("documentation file removed, sections kept", slog.String("path", ev.Path))
			continue
		}
		fr, err := w.ix.IndexFile(ctx, ev.Path)
		if err != nil {
			slog.Warn("re-index failed",
				slog.String("path", ev.Path),
				slog.String("op", ev.Operation.String()),
				slog.String("error", err.Error()))
			continue
		}
		slog.Info("documentation re-indexed",
			slog.String("path", ev.Path),
			slog.Int("created", fr.Created),
			slog.Int("updated", fr.Updated),
			slog.Int("unchanged", fr.Unchanged))
		reports = append(reports, fr)
	}
	if w.opts.OnBatch != nil && len(reports) > 0 {
		w.opts.OnBatch(reports)
	}
}
