// Package cmd provides the CLI commands for amanmem.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmem/internal/config"
	amerrors "github.com/Aman-CERP/amanmem/internal/errors"
	"github.com/Aman-CERP/amanmem/internal/logging"
	"github.com/Aman-CERP/amanmem/internal/memory"
	"github.com/Aman-CERP/amanmem/internal/profiling"
	"github.com/Aman-CERP/amanmem/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	dir     string
	project string
	debug   bool
	profile profiling.Options

	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command for the amanmem CLI.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "amanmem",
		Short: "Persistent project memory for AI coding assistants",
		Long: `amanmem records architectural decisions, milestone progress, code
patterns and documentation for a project, and makes them searchable by
keyword, by meaning, or both.

Run 'amanmem serve' to expose the memory to an MCP client over stdio.`,
		Version:           version.Version,
		SilenceUsage:      true,
		PersistentPreRunE: g.start,
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return g.stop()
		},
	}
	cmd.SetVersionTemplate("amanmem version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&g.dir, "dir", "C", ".", "Project directory")
	cmd.PersistentFlags().StringVarP(&g.project, "project", "p", "", "Project name (default from config)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging to ~/.amanmem/logs/")
	cmd.PersistentFlags().StringVar(&g.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newDecisionCmd(g))
	cmd.AddCommand(newProgressCmd(g))
	cmd.AddCommand(newMemoryCmd(g))
	cmd.AddCommand(newPatternCmd(g))
	cmd.AddCommand(newDuplicatesCmd(g))
	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newDocsCmd(g))
	cmd.AddCommand(newReconcileCmd(g))
	cmd.AddCommand(newMigrateCmd(g))
	cmd.AddCommand(newStatusCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// start begins profiling and debug logging as requested by flags.
func (g *globalOptions) start(cmd *cobra.Command, _ []string) error {
	if g.profile.Enabled() {
		s, err := profiling.Start(g.profile)
		if err != nil {
			return err
		}
		g.profiler = s
	}
	if err := g.startLogging(cmd); err != nil {
		_ = g.stop()
		return err
	}
	return nil
}

func (g *globalOptions) stop() error {
	g.stopLogging()
	err := g.profiler.Stop()
	g.profiler = nil
	return err
}

// startLogging installs the debug file logger when --debug is set. serve
// installs its own file-only logger instead.
func (g *globalOptions) startLogging(cmd *cobra.Command) error {
	if !g.debug || cmd.Name() == "serve" {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	g.loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

func (g *globalOptions) stopLogging() {
	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
}

// loadConfig resolves configuration for --dir, applying --project.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.dir)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "failed to load configuration", err).
			WithSuggestion("Check .amanmem.yaml and AMANMEM_* environment variables")
	}
	if g.project != "" {
		cfg.Project.Name = g.project
	}
	return cfg, nil
}

// openService loads configuration and opens the memory service. Callers
// must Close the service.
func (g *globalOptions) openService(ctx context.Context) (*memory.Service, *config.Config, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	svc, err := g.openServiceWith(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}

func (g *globalOptions) openServiceWith(ctx context.Context, cfg *config.Config) (*memory.Service, error) {
	if err := os.MkdirAll(cfg.Project.DataDir, 0o755); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeStoreOpen, "failed to create data directory", err).
			WithDetail("path", cfg.Project.DataDir)
	}
	return memory.Open(ctx, cfg)
}

// Execute runs the root command and prints a formatted error on failure.
func Execute() error {
	root := NewRootCmd()
	root.SilenceErrors = true
	err := root.Execute()
	if err != nil {
		_, _ = fmt.Fprintln(root.ErrOrStderr(), amerrors.FormatForCLI(err, debugRequested(root)))
	}
	return err
}

func debugRequested(root *cobra.Command) bool {
	d, err := root.PersistentFlags().GetBool("debug")
	return err == nil && d
}
