package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taein2026/AItest/internal/store"
)

var (
	histDSN   string
	histRunID string
	histTop   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show stored runs and the codes that most often explain anomalies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		dsn := firstNonEmpty(histDSN, c.Output.PostgresDSN)
		if dsn == "" {
			return errors.New("no database: pass --pg-dsn or set output.postgres_dsn")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		s, err := store.Open(ctx, dsn)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer s.Close()

		out := cmd.OutOrStdout()
		if histRunID != "" {
			run, err := s.LoadRun(ctx, histRunID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Run %s: %d claims, %d anomalies, %d reason rows\n",
				run.RunID, run.TotalClaims, run.TotalAnomalies, run.Reasons)
		}
		codes, err := s.TopCodes(ctx, histTop)
		if err != nil {
			return err
		}
		if len(codes) == 0 {
			fmt.Fprintln(out, "No stored anomaly reasons")
			return nil
		}
		fmt.Fprintln(out, "Most frequent reason codes:")
		for _, cc := range codes {
			fmt.Fprintf(out, "- %s %s: %d\n", cc.Code, cc.Name, cc.Count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&histDSN, "pg-dsn", "", "PostgreSQL connection string (overrides output.postgres_dsn)")
	historyCmd.Flags().StringVar(&histRunID, "run", "", "run id to summarize")
	historyCmd.Flags().IntVar(&histTop, "top", 10, "number of codes to list")
}
