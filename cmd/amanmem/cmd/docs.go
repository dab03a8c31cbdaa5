package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmem/internal/config"
	"github.com/Aman-CERP/amanmem/internal/docs"
	"github.com/Aman-CERP/amanmem/internal/memory"
	"github.com/Aman-CERP/amanmem/internal/output"
	"github.com/Aman-CERP/amanmem/internal/ui"
)

type docsOptions struct {
	noTUI bool
	watch bool
}

func newDocsCmd(g *globalOptions) *cobra.Command {
	var opts docsOptions

	cmd := &cobra.Command{
		Use:   "docs [file...]",
		Short: "Index project documentation",
		Long: `Split markdown documentation into sections by heading and index them.

Without arguments every configured source is indexed (docs.dirs in
.amanmem.yaml, or docs/, doc/ and README.md when unset). Unchanged sections
are skipped. With --watch, files are re-indexed as they change until
interrupted.`,
		Example: `  amanmem docs
  amanmem docs docs/architecture.md
  amanmem docs --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDocs(ctx, cmd, g, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Keep running and re-index on change")

	return cmd
}

func runDocs(ctx context.Context, cmd *cobra.Command, g *globalOptions, files []string, opts docsOptions) error {
	svc, cfg, err := g.openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	ix := docs.NewIndexer(svc, docs.Options{
		Root:    cfg.Project.Path,
		Dirs:    cfg.Docs.Dirs,
		Project: cfg.Project.Name,
	})
	out := output.New(cmd.OutOrStdout())

	if len(files) > 0 {
		reports := make([]docs.FileReport, 0, len(files))
		for _, f := range files {
			fr, err := ix.IndexFile(ctx, f)
			if err != nil {
				return err
			}
			reports = append(reports, fr)
		}
		out.FileReports(reports)
	} else if err := indexAllWithProgress(ctx, cmd, svc, cfg, ix, opts.noTUI); err != nil {
		return err
	}

	if !opts.watch {
		return nil
	}
	w, err := docs.NewWatcher(ix, docs.WatchOptions{
		Debounce: cfg.WatchDebounce(),
		OnBatch:  out.FileReports,
	})
	if err != nil {
		return err
	}
	out.Status("👀", "Watching documentation, Ctrl+C to stop")
	return w.Run(ctx)
}

// indexAllWithProgress runs IndexAll behind a progress renderer.
func indexAllWithProgress(ctx context.Context, cmd *cobra.Command, svc *memory.Service, cfg *config.Config, ix *docs.Indexer, noTUI bool) error {
	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithTitle(cfg.Project.Name),
	))
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start progress display: %w", err)
	}
	defer func() { _ = renderer.Stop() }()

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageDiscovering, Message: "Finding documentation"})
	report, err := ix.IndexAll(ctx, func(p docs.Progress) {
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageIndexing,
			Current:     p.Current,
			Total:       p.Total,
			CurrentFile: p.Path,
		})
		if p.Result.Failed > 0 {
			renderer.AddError(ui.ErrorEvent{
				File:   p.Path,
				Err:    fmt.Errorf("%d sections failed", p.Result.Failed),
				IsWarn: true,
			})
		}
	})
	if err != nil {
		renderer.AddError(ui.ErrorEvent{Err: err})
		return err
	}

	renderer.Complete(ui.CompletionStats{
		Project:   cfg.Project.Name,
		ModelKey:  svc.Repository().ModelKey(),
		Files:     report.Files,
		Sections:  report.Sections,
		Created:   report.Created,
		Updated:   report.Updated,
		Unchanged: report.Unchanged,
		Failed:    report.Failed,
		Duration:  report.Duration,
	})
	return nil
}
