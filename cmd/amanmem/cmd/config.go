package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanmem/internal/config"
	"github.com/Aman-CERP/amanmem/internal/output"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage amanmem configuration.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/amanmem/config.yaml)
  3. Project config (.amanmem.yaml)
  4. Environment variables (AMANMEM_*)`,
	}

	cmd.AddCommand(newConfigInitCmd(g))
	cmd.AddCommand(newConfigShowCmd(g))
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd(g *globalOptions) *cobra.Command {
	var (
		force bool
		user  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with defaults",
		Example: `  # Create .amanmem.yaml in the project root
  amanmem config init

  # Create the user config instead
  amanmem config init --user`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			path := config.GetUserConfigPath()
			if !user {
				root, err := config.FindProjectRoot(g.dir)
				if err != nil {
					return err
				}
				path = filepath.Join(root, config.ProjectConfigFile)
			}
			if path == "" {
				return fmt.Errorf("cannot determine user config path")
			}

			if _, err := os.Stat(path); err == nil && !force {
				out.Warning("Configuration already exists")
				out.Statusf("📁", "Location: %s", path)
				out.Status("💡", "Use --force to overwrite")
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := config.NewConfig().WriteYAML(path); err != nil {
				return err
			}

			out.Success("Created configuration")
			out.Statusf("📁", "Location: %s", path)
			out.Status("💡", "Run 'amanmem config show' to verify")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")

	return cmd
}

func newConfigShowCmd(g *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		defaults   bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			cfg := config.NewConfig()
			source := "defaults"
			if !defaults {
				loaded, err := g.loadConfig()
				if err != nil {
					return err
				}
				cfg = loaded
				source = "merged (defaults + user + project + env)"
			}

			if jsonOutput {
				return out.JSON(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			out.Statusf("📋", "Configuration source: %s", source)
			out.Newline()
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Show built-in defaults only")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
