package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/taein2026/AItest/internal/analysis"
	"github.com/taein2026/AItest/internal/table"
)

var (
	chkEncoding   string
	chkSheetName  string
	chkSheetIndex int
	chkQuiet      bool
)

var checkCmd = &cobra.Command{
	Use:   "check <claims files...>",
	Short: "Validate that claims tables carry the feature columns",
	Long: `check reads each claims table, locates the diagnosis and drug column spans and coerces
the feature cells, without fitting a model. Glob patterns are expanded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		files := expandInputs(args)
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		schema := c.AnalysisOptions().Schema
		opt := table.Options{
			CSV:        table.CSVOptions{Encoding: firstNonEmpty(chkEncoding, c.Input.ClaimsEncoding)},
			SheetName:  firstNonEmpty(chkSheetName, c.Input.SheetName),
			SheetIndex: c.Input.SheetIndex,
		}
		if chkSheetIndex > 0 {
			opt.SheetIndex = chkSheetIndex
		}

		out := cmd.OutOrStdout()
		failed := 0
		for i, path := range files {
			if !chkQuiet {
				fmt.Fprintf(out, "[%d/%d] Checking %s...\n", i+1, len(files), filepath.Base(path))
			}
			t, err := table.Open(path, opt)
			if err != nil {
				failed++
				fmt.Fprintf(out, "✗ %s: %v\n", path, err)
				continue
			}
			m, err := analysis.BuildFeatureMatrix(t, schema)
			if err != nil {
				failed++
				var se *analysis.SchemaError
				if errors.As(err, &se) {
					fmt.Fprintf(out, "✗ %s: column %q: %s\n", path, se.Column, se.Reason)
				} else {
					fmt.Fprintf(out, "✗ %s: %v\n", path, err)
				}
				continue
			}
			fmt.Fprintf(out, "✓ %s: %d claims, %d features", path, m.Rows(), len(m.Columns))
			for _, sp := range m.Spans {
				fmt.Fprintf(out, ", %s..%s (%d)", sp.Start, sp.End, sp.Width())
			}
			fmt.Fprintln(out)
			if m.CoercionFailures > 0 {
				fmt.Fprintf(out, "  ⚠ %d non-numeric feature cells will be treated as 0\n", m.CoercionFailures)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed the check", failed, len(files))
		}
		return nil
	},
}

// expandInputs resolves globs, keeps literal paths that exist, and drops duplicates.
func expandInputs(args []string) []string {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&chkEncoding, "encoding", "", "claims CSV encoding (overrides config)")
	checkCmd.Flags().StringVar(&chkSheetName, "sheet-name", "", "XLSX: sheet name to check")
	checkCmd.Flags().IntVar(&chkSheetIndex, "sheet-index", 0, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	checkCmd.Flags().BoolVarP(&chkQuiet, "quiet", "q", false, "suppress progress output")
}
