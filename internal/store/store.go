// Package store persists analysis results to PostgreSQL.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taein2026/AItest/internal/analysis"
	"github.com/taein2026/AItest/internal/export"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Store writes runs and their explained anomalies.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse connection: %w", err)
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

var reasonCols = []string{
	"run_id", "rank", "row_index", "claim_id", "treatment_date",
	"score", "reason_order", "code", "rate", "name",
}

// SaveResult inserts the run and bulk-loads its reasons in one transaction.
// It returns the number of reason rows copied.
func (s *Store) SaveResult(ctx context.Context, res *analysis.Result) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO analysis_runs (run_id, created_at, source, total_claims, total_anomalies, features, coercion_failures, score_offset)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.RunID, res.CreatedAt, res.Source, res.TotalClaims, res.TotalAnomalies,
		len(res.Features), res.Coercions, res.Offset,
	)
	if err != nil {
		return 0, fmt.Errorf("insert analysis_runs: %w", err)
	}

	rows := export.AnomalyRows(res)
	pending := make([][]any, len(rows))
	for i, r := range rows {
		pending[i] = []any{r.RunID, r.Rank, r.Row, r.ClaimID, r.Date, r.Score, r.ReasonOrder, r.Code, r.Rate, r.Name}
	}
	var copied int64
	if len(pending) > 0 {
		copied, err = tx.CopyFrom(ctx,
			pgx.Identifier{"anomaly_reasons"},
			reasonCols,
			pgx.CopyFromRows(pending),
		)
		if err != nil {
			return 0, fmt.Errorf("copy anomaly_reasons: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return copied, nil
}

// RunSummary is a stored run with its reason count.
type RunSummary struct {
	RunID          string
	TotalClaims    int
	TotalAnomalies int
	Reasons        int
}

// LoadRun reads back the summary of a stored run.
func (s *Store) LoadRun(ctx context.Context, runID string) (*RunSummary, error) {
	var out RunSummary
	err := s.pool.QueryRow(ctx,
		`SELECT r.run_id, r.total_claims, r.total_anomalies,
		        (SELECT count(*) FROM anomaly_reasons a WHERE a.run_id = r.run_id)
		   FROM analysis_runs r WHERE r.run_id = $1`, runID,
	).Scan(&out.RunID, &out.TotalClaims, &out.TotalAnomalies, &out.Reasons)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	return &out, nil
}

// TopCodes returns the most frequent reason codes across all stored runs.
func (s *Store) TopCodes(ctx context.Context, limit int) ([]CodeCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, max(name), count(*) FROM anomaly_reasons
		  WHERE code <> '' GROUP BY code ORDER BY count(*) DESC, code LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top codes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[CodeCount])
}

// CodeCount is how often a code explained a stored anomaly.
type CodeCount struct {
	Code  string
	Name  string
	Count int64
}
