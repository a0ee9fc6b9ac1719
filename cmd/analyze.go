package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taein2026/AItest/internal/ai"
	"github.com/taein2026/AItest/internal/analysis"
	cfgpkg "github.com/taein2026/AItest/internal/config"
	"github.com/taein2026/AItest/internal/export"
	"github.com/taein2026/AItest/internal/metrics"
	"github.com/taein2026/AItest/internal/store"
	"github.com/taein2026/AItest/internal/table"
	"github.com/taein2026/AItest/internal/utils"
)

var (
	anaClaims         string
	anaDiseases       string
	anaDrugs          string
	anaEncoding       string
	anaLookupEncoding string
	anaSheetName      string
	anaSheetIndex     int
	anaTop            int
	anaOutputPath     string
	anaJSONPath       string
	anaParquetDir     string
	anaPGDSN          string
	anaMetricsFile    string
	anaQuiet          bool
	anaNarrate        bool
	anaStream         bool
	anaProvider       string
	anaModel          string
	anaPromptLimit    int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score a claims table and explain the most unusual claims",
	Example: `  claimscan analyze --claims claims.csv --diseases diseases.csv --drugs drugs.csv
  claimscan analyze --claims claims.xlsx --sheet-name 청구 --diseases d.csv --drugs g.csv --parquet-dir out/`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		opt := c.AnalysisOptions()
		if cmd.Flags().Changed("top") {
			if anaTop < 0 {
				return fmt.Errorf("--top must be >= 0, got %d", anaTop)
			}
			opt.Explain.TopN = anaTop
		}

		in, err := loadInput(c)
		if err != nil {
			return err
		}

		start := time.Now()
		res, err := analysis.Run(in, opt)
		run := metrics.Run{Duration: time.Since(start), Outcome: metrics.OutcomeSuccess}
		switch {
		case errors.Is(err, analysis.ErrSchema):
			run.Outcome = metrics.OutcomeSchemaError
		case err != nil:
			run.Outcome = metrics.OutcomeError
		default:
			run.Claims, run.Anomalies, run.Coercions = res.TotalClaims, res.TotalAnomalies, res.Coercions
		}
		metrics.ObserveRun(run)
		if path := firstNonEmpty(anaMetricsFile, c.Output.MetricsTextfile); path != "" {
			if werr := metrics.WriteTextfile(path); werr != nil {
				log.Warn().Err(werr).Str("path", path).Msg("metrics textfile not written")
			}
		}
		if err != nil {
			return err
		}
		log.Debug().
			Str("run_id", res.RunID).
			Dur("elapsed", run.Duration).
			Int("claims", res.TotalClaims).
			Int("features", len(res.Features)).
			Int("anomalies", res.TotalAnomalies).
			Msg("analysis finished")
		if res.Coercions > 0 {
			log.Warn().Int("cells", res.Coercions).Msg("non-numeric feature cells treated as 0")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		toStdout := anaOutputPath == "" && !anaQuiet
		md := res.Markdown()
		if toStdout {
			fmt.Fprintln(out, md)
		}
		if anaNarrate {
			text, err := narrate(ctx, c, res, out, toStdout)
			if err != nil {
				return err
			}
			md += "\n[NARRATIVE]\n" + text + "\n"
		}

		if anaOutputPath != "" {
			if err := utils.SafeWriteFile(anaOutputPath, []byte(md)); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			printf(out, "✓ Report written to %s\n", anaOutputPath)
		}
		if anaJSONPath != "" {
			if err := export.WriteJSON(anaJSONPath, res); err != nil {
				return fmt.Errorf("write json: %w", err)
			}
			printf(out, "✓ JSON written to %s\n", anaJSONPath)
		}
		if anaParquetDir != "" {
			files, err := export.WriteParquet(anaParquetDir, res)
			if err != nil {
				return err
			}
			printf(out, "✓ Parquet written: %s (%d rows), %s (%d rows)\n", files.Anomalies, files.Rows, files.Projection, files.Points)
		}
		if dsn := firstNonEmpty(anaPGDSN, c.Output.PostgresDSN); dsn != "" {
			n, err := saveToPostgres(ctx, dsn, res)
			if err != nil {
				return err
			}
			printf(out, "✓ Stored run %s (%d reason rows)\n", res.RunID, n)
		}
		return nil
	},
}

func loadInput(c *cfgpkg.Global) (analysis.Input, error) {
	if anaClaims == "" || anaDiseases == "" || anaDrugs == "" {
		return analysis.Input{}, errors.New("--claims, --diseases and --drugs are required")
	}
	claimsOpt := table.Options{
		CSV:        table.CSVOptions{Encoding: firstNonEmpty(anaEncoding, c.Input.ClaimsEncoding)},
		SheetName:  firstNonEmpty(anaSheetName, c.Input.SheetName),
		SheetIndex: c.Input.SheetIndex,
	}
	if anaSheetIndex > 0 {
		claimsOpt.SheetIndex = anaSheetIndex
	}
	lookupOpt := table.Options{CSV: table.CSVOptions{Encoding: firstNonEmpty(anaLookupEncoding, c.Input.LookupEncoding)}}

	var in analysis.Input
	var err error
	if in.Claims, err = table.Open(anaClaims, claimsOpt); err != nil {
		return in, fmt.Errorf("load claims: %w", err)
	}
	if in.Diseases, err = table.Open(anaDiseases, lookupOpt); err != nil {
		return in, fmt.Errorf("load disease lookup: %w", err)
	}
	if in.Drugs, err = table.Open(anaDrugs, lookupOpt); err != nil {
		return in, fmt.Errorf("load drug lookup: %w", err)
	}
	log.Debug().
		Int("claims", in.Claims.Len()).
		Int("diseases", in.Diseases.Len()).
		Int("drugs", in.Drugs.Len()).
		Msg("inputs loaded")
	return in, nil
}

func narrate(ctx context.Context, c *cfgpkg.Global, res *analysis.Result, out io.Writer, live bool) (string, error) {
	provider := firstNonEmpty(anaProvider, c.AI.Provider)
	rt, err := ai.NewRuntime(runtimeConfig(provider))
	if err != nil {
		return "", err
	}
	opt := ai.NarrativeOptions{
		Model:        firstNonEmpty(anaModel, c.AI.Model),
		MaxTokens:    c.AI.MaxTokens,
		Temperature:  c.AI.Temperature,
		PromptBudget: anaPromptLimit,
		Stream:       anaStream && live,
	}
	if opt.Stream {
		fmt.Fprintln(out, "[NARRATIVE]")
		opt.OnDelta = func(s string) { fmt.Fprint(out, s) }
	}
	start := time.Now()
	text, err := ai.Narrate(ctx, rt, res, opt)
	if err != nil {
		return "", err
	}
	log.Debug().Str("provider", provider).Str("model", opt.Model).Dur("elapsed", time.Since(start)).Msg("narrative generated")
	switch {
	case opt.Stream:
		fmt.Fprintln(out)
	case live:
		fmt.Fprintf(out, "[NARRATIVE]\n%s\n", text)
	}
	return text, nil
}

func saveToPostgres(ctx context.Context, dsn string, res *analysis.Result) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	s, err := store.Open(ctx, dsn)
	if err != nil {
		return 0, fmt.Errorf("postgres: %w", err)
	}
	defer s.Close()
	if err := s.EnsureSchema(ctx); err != nil {
		return 0, fmt.Errorf("postgres: %w", err)
	}
	n, err := s.SaveResult(ctx, res)
	if err != nil {
		return 0, fmt.Errorf("postgres: %w", err)
	}
	return n, nil
}

func printf(w io.Writer, format string, a ...any) {
	if anaQuiet {
		return
	}
	fmt.Fprintf(w, format, a...)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	f := analyzeCmd.Flags()
	f.StringVar(&anaClaims, "claims", "", "claims table (CSV/TSV/XLSX)")
	f.StringVar(&anaDiseases, "diseases", "", "disease code lookup table")
	f.StringVar(&anaDrugs, "drugs", "", "drug code lookup table")
	f.StringVar(&anaEncoding, "encoding", "", "claims CSV encoding, e.g. cp949 or utf-8 (overrides config)")
	f.StringVar(&anaLookupEncoding, "lookup-encoding", "", "lookup CSV encoding (overrides config)")
	f.StringVar(&anaSheetName, "sheet-name", "", "XLSX: sheet name of the claims table")
	f.IntVar(&anaSheetIndex, "sheet-index", 0, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	f.IntVar(&anaTop, "top", 20, "number of outliers to explain")
	f.StringVarP(&anaOutputPath, "output", "o", "", "write the report to this file instead of stdout")
	f.StringVar(&anaJSONPath, "json", "", "write the full result as JSON")
	f.StringVar(&anaParquetDir, "parquet-dir", "", "write anomalies.parquet and projection.parquet into this directory")
	f.StringVar(&anaPGDSN, "pg-dsn", "", "store the run in PostgreSQL (overrides output.postgres_dsn)")
	f.StringVar(&anaMetricsFile, "metrics-textfile", "", "write Prometheus metrics in textfile format")
	f.BoolVarP(&anaQuiet, "quiet", "q", false, "suppress non-essential output")
	f.BoolVar(&anaNarrate, "narrate", false, "append an LLM-written narrative of the findings")
	f.BoolVar(&anaStream, "stream", false, "stream the narrative as it is generated")
	f.StringVar(&anaProvider, "provider", "", "narrative provider: openrouter or ollama (overrides config)")
	f.StringVar(&anaModel, "model", "", "narrative model (overrides config)")
	f.IntVar(&anaPromptLimit, "prompt-limit", 6000, "token budget for the data sent to the model (0 = unlimited)")
	analyzeCmd.MarkFlagsRequiredTogether("claims", "diseases", "drugs")
}
