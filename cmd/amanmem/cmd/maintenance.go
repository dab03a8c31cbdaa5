package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmem/internal/output"
	"github.com/Aman-CERP/amanmem/internal/ui"
)

func newReconcileCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Embed rows that are missing a vector",
		Long: `Find rows whose embedding is pending or failed, or whose vector is
missing from the index, and embed them again.

Writes never fail because an embedding could not be computed; this command
repairs what they left behind.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, _, err := g.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.Reconcile(ctx)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(report)
			}
			out.Reconcile(report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newMigrateCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "migrate <model-key>",
		Short: "Re-embed every row with another model",
		Long: `Re-embed every row of every table with the given model and rebuild the
vector indexes at its dimensions. Rows that fail stay pending for
'amanmem reconcile'.`,
		Example: `  amanmem migrate static-768
  amanmem migrate nomic-embed-text`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := g.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.MigrateEmbeddings(ctx, args[0])
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(report)
			}
			out.Migration(report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newStatusCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show memory health and counts",
		Long: `Display the state of project memory:
  - Rows, pending embeddings and vectors per table
  - Active embedding model and warm models
  - Keyword backend and database location`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, _, err := g.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			st, err := svc.Status(ctx, g.project)
			if err != nil {
				return err
			}

			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
			if jsonOutput {
				return renderer.RenderJSON(st)
			}
			return renderer.Render(st)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
