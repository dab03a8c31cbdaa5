package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmem/internal/memory"
	"github.com/Aman-CERP/amanmem/internal/output"
)

// maxPatternBytes caps the content read for a code pattern.
const maxPatternBytes = 256 * 1024

func newPatternCmd(g *globalOptions) *cobra.Command {
	var (
		language   string
		storeAs    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "pattern <file>",
		Short: "Store a code fragment as a reusable pattern",
		Long: `Store a file, or stdin with "-", as a code pattern.

Storing the same path and content twice returns the existing pattern.
The language is detected from the extension when --language is empty.`,
		Example: `  amanmem pattern internal/auth/token.go
  sed -n 10,40p server.go | amanmem pattern - --as server.go`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, path, err := readPatternSource(cmd.InOrStdin(), args[0], storeAs)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, _, err := g.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.AddCodePattern(ctx, memory.PatternInput{
				FilePath: path,
				Content:  content,
				Language: language,
				Project:  g.project,
			})
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(res)
			}
			if res.Status == memory.PatternExists {
				out.Statusf("📌", "Pattern already stored as %s", res.ID)
				return nil
			}
			out.Successf("Stored %s pattern %s", res.Language, res.ID)
			if len(res.Symbols) > 0 {
				out.Statusf("", "symbols: %s", strings.Join(res.Symbols, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Language (detected from the extension by default)")
	cmd.Flags().StringVar(&storeAs, "as", "", "File path to record (required with -)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// readPatternSource reads arg, or stdin for "-". The recorded path is
// storeAs when set.
func readPatternSource(stdin io.Reader, arg, storeAs string) (content, path string, err error) {
	path = storeAs
	var r io.Reader
	if arg == "-" {
		if path == "" {
			return "", "", fmt.Errorf("--as is required when reading from stdin")
		}
		r = stdin
	} else {
		f, err := os.Open(arg)
		if err != nil {
			return "", "", err
		}
		defer f.Close()
		r = f
		if path == "" {
			path = arg
		}
	}

	data, err := io.ReadAll(io.LimitReader(r, maxPatternBytes+1))
	if err != nil {
		return "", "", err
	}
	if len(data) > maxPatternBytes {
		return "", "", fmt.Errorf("pattern is larger than %d bytes", maxPatternBytes)
	}
	return string(data), path, nil
}

func newDuplicatesCmd(g *globalOptions) *cobra.Command {
	var (
		in         memory.DuplicateInput
		threshold  float64
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "duplicates <feature>",
		Short: "Check for stored code similar to a description or fragment",
		Example: `  amanmem duplicates "validate a JWT and return its claims"
  amanmem duplicates "func ParseToken" --scope internal/auth --threshold 0.8`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := g.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			if cmd.Flags().Changed("threshold") {
				in.Threshold = &threshold
			}
			in.Feature = strings.Join(args, " ")
			in.Project = g.project
			report := svc.IdentifyDuplicates(ctx, in)

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(report)
			}
			out.Duplicates(report)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Scope, "scope", "", "Only compare patterns under this path prefix")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
