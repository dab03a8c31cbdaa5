package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmem/internal/memory"
	"github.com/Aman-CERP/amanmem/internal/output"
)

func newDecisionCmd(g *globalOptions) *cobra.Command {
	var (
		in         memory.DecisionInput
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "decision <decision>",
		Short: "Record an architectural decision",
		Example: `  amanmem decision "Use SQLite for storage" \
    --context "single-file deployment" --alt PostgreSQL --impact "no server to run"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := g.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			in.Decision = strings.Join(args, " ")
			in.Project = g.project
			res, err := svc.RecordDecision(ctx, in)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(res)
			}
			out.Successf("Recorded decision %s", res.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Context, "context", "", "Why the decision was needed")
	cmd.Flags().StringSliceVar(&in.Alternatives, "alt", nil, "Rejected alternative (repeatable)")
	cmd.Flags().StringVar(&in.Impact, "impact", "", "Expected consequences")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newProgressCmd(g *globalOptions) *cobra.Command {
	var (
		in         memory.ProgressInput
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "progress <milestone> <status>",
		Short: "Create or update a milestone",
		Long: `Create or update a milestone.

Status is one of: not_started, in_progress, testing, completed, blocked.
An existing milestone with the same name is updated in place.`,
		Example: `  amanmem progress "Vector index" in_progress --notes "HNSW wired" --blocker "flaky test"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := g.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			in.Milestone = args[0]
			in.Status = args[1]
			in.Project = g.project
			res, err := svc.TrackProgress(ctx, in)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(res)
			}
			if res.Created {
				out.Successf("Tracking %q (%s)", in.Milestone, in.Status)
			} else {
				out.Successf("Updated %q to %s", in.Milestone, in.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Notes, "notes", "", "Progress notes")
	cmd.Flags().StringSliceVar(&in.Blockers, "blocker", nil, "Blocker (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newMemoryCmd(g *globalOptions) *cobra.Command {
	var (
		q          memory.MemoryQuery
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "memory [query]",
		Short: "List recent decisions and progress",
		Long: `List recent decisions and progress, newest first.

With a query, items are re-ranked by similarity to it.`,
		Example: `  amanmem memory
  amanmem memory --category decisions --limit 5
  amanmem memory "storage engine"`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := g.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			q.Query = strings.Join(args, " ")
			q.Project = g.project
			items, err := svc.GetProjectMemory(ctx, q)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(items)
			}
			out.MemoryItems(items)
			return nil
		},
	}

	cmd.Flags().StringVar(&q.Category, "category", memory.CategoryAll, "all, decisions or progress")
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 10, "Maximum number of items")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
