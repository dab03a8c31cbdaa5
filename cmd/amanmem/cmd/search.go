package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmem/internal/memory"
	"github.com/Aman-CERP/amanmem/internal/output"
	"github.com/Aman-CERP/amanmem/internal/search"
)

// Search modes select the service entry point.
const (
	modeHybrid   = "hybrid"
	modeSemantic = "semantic"
	modeKeyword  = "keyword"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	mode          string
	table         string
	limit         int
	strategy      string
	vectorWeight  float64
	minSimilarity float64
	jsonOutput    bool
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search project memory",
		Long: `Search one memory table.

The default hybrid mode classifies the query and routes it to keyword,
vector or fused retrieval; --strategy forces a route. --mode semantic and
--mode keyword search a single index.`,
		Example: `  amanmem search "how are tokens refreshed"
  amanmem search ValidateToken --table code_patterns --mode keyword
  amanmem search "storage choice" --table decisions --weight 0.8`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, g, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", modeHybrid, "hybrid, semantic or keyword")
	cmd.Flags().StringVarP(&opts.table, "table", "t", "", "decisions, progress, code_patterns or documentation (default from config)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "Force keyword, vector, keyword_boost or hybrid")
	cmd.Flags().Float64Var(&opts.vectorWeight, "weight", 0, "Vector weight for fusion, 0 to 1 (default from config)")
	cmd.Flags().Float64Var(&opts.minSimilarity, "min-similarity", 0, "Minimum vector similarity, 0 to 1")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, g *globalOptions, query string, opts searchOptions) error {
	svc, _, err := g.openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	in := memory.SearchInput{
		Query:    query,
		Table:    opts.table,
		Project:  g.project,
		Limit:    opts.limit,
		Strategy: opts.strategy,
	}
	if cmd.Flags().Changed("weight") {
		in.VectorWeight = &opts.vectorWeight
	}
	if cmd.Flags().Changed("min-similarity") {
		in.MinSimilarity = &opts.minSimilarity
	}

	var fn func(context.Context, memory.SearchInput) ([]*search.Result, error)
	switch opts.mode {
	case modeHybrid:
		fn = svc.HybridSearch
	case modeSemantic:
		fn = svc.SemanticSearch
	case modeKeyword:
		fn = svc.KeywordSearch
	default:
		return fmt.Errorf("unknown mode %q (use hybrid, semantic or keyword)", opts.mode)
	}

	slog.Info("search_started", slog.String("query", query), slog.String("mode", opts.mode))
	results, err := fn(ctx, in)
	if err != nil {
		return err
	}
	slog.Info("search_complete", slog.Int("results", len(results)))

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		return out.JSON(results)
	}
	out.SearchResults(query, results)
	return nil
}

func newAnalyzeCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "analyze <query>",
		Short: "Show how a query would be routed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			a := search.Analyze(query)

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(a)
			}
			out.Analysis(query, a)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
