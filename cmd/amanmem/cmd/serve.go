package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanmem/internal/docs"
	"github.com/Aman-CERP/amanmem/internal/logging"
	"github.com/Aman-CERP/amanmem/internal/mcp"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var (
		transport string
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server over stdio.

stdout carries JSON-RPC only; logs go to ~/.amanmem/logs/server.log.
With --watch, documentation sources are re-indexed as they change.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, g, transport, watch)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport (default from config: stdio)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-index documentation on change")

	return cmd
}

func runServe(ctx context.Context, g *globalOptions, transport string, watch bool) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if g.debug {
		level = "debug"
	}
	cleanup, err := logging.SetupServeMode(level)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	if transport == "" {
		transport = cfg.Server.Transport
	}

	svc, err := g.openServiceWith(ctx, cfg)
	if err != nil {
		slog.Error("failed to open memory", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Warn("close failed", slog.String("error", err.Error()))
		}
	}()

	ix := docs.NewIndexer(svc, docs.Options{
		Root:    cfg.Project.Path,
		Dirs:    cfg.Docs.Dirs,
		Project: cfg.Project.Name,
	})
	srv, err := mcp.NewServer(svc, mcp.Options{Docs: ix, Logger: slog.Default()})
	if err != nil {
		return err
	}
	if err := srv.RegisterDocResources(); err != nil {
		slog.Warn("documentation resources unavailable", slog.String("error", err.Error()))
	}

	grp, gctx := errgroup.WithContext(ctx)
	if watch {
		w, err := docs.NewWatcher(ix, docs.WatchOptions{Debounce: cfg.WatchDebounce()})
		if err != nil {
			return err
		}
		grp.Go(func() error { return w.Run(gctx) })
	}
	grp.Go(func() error {
		if err := srv.Serve(gctx, transport); err != nil {
			return err
		}
		// a clean exit still has to cancel the watcher
		return errServerStopped
	})
	if err := grp.Wait(); err != nil && !errors.Is(err, errServerStopped) {
		return err
	}
	return nil
}

var errServerStopped = errors.New("server stopped")
