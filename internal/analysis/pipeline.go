// Package analysis turns a claims table and two code lookup tables into ranked,
// explained anomalies and a 2-D projection of the feature space.
package analysis

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taein2026/AItest/internal/iforest"
	"github.com/taein2026/AItest/internal/table"
)

// Input holds the three tables of one analysis run. They are cloned before use.
type Input struct {
	Claims   *table.Table
	Diseases *table.Table
	Drugs    *table.Table
}

// Options configures a run.
type Options struct {
	Schema  Schema
	Forest  iforest.Options
	Explain ExplainOptions
}

// DefaultOptions returns the default schema, forest and explanation settings.
func DefaultOptions() Options {
	return Options{
		Schema:  DefaultSchema(),
		Forest:  iforest.DefaultOptions(),
		Explain: DefaultExplainOptions(),
	}
}

// Result is everything a run produces. It is not modified after Run returns.
type Result struct {
	RunID          string          `json:"run_id"`
	CreatedAt      time.Time       `json:"created_at"`
	Source         string          `json:"source"`
	TotalClaims    int             `json:"total_claims"`
	TotalAnomalies int             `json:"total_anomalies"`
	Anomalies      []Anomaly       `json:"anomalies"`
	Projection     []Point         `json:"projection"`
	Features       []string        `json:"features"`
	Spans          []ResolvedSpan  `json:"spans"`
	Scores         []float64       `json:"scores,omitempty"`
	Labels         []iforest.Label `json:"labels,omitempty"`
	Offset         float64         `json:"offset"`
	Coercions      int             `json:"coercion_failures"`
	Warnings       []string        `json:"warnings,omitempty"`
}

// OutlierPercent is TotalAnomalies as a percentage of TotalClaims, 0 for an empty run.
func (r *Result) OutlierPercent() float64 {
	if r == nil || r.TotalClaims == 0 {
		return 0
	}
	return float64(r.TotalAnomalies) * 100.0 / float64(r.TotalClaims)
}

// Run executes the whole pipeline. It returns either a complete Result or an error;
// a *SchemaError when a required column is missing.
func Run(in Input, opt Options) (*Result, error) {
	claims := in.Claims.Clone()
	diseases := in.Diseases.Clone()
	drugs := in.Drugs.Clone()

	dict, err := BuildDictionary(diseases, opt.Schema.Disease, drugs, opt.Schema.Drug)
	if err != nil {
		return nil, err
	}
	m, err := BuildFeatureMatrix(claims, opt.Schema)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:      uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Features:   m.Columns,
		Spans:      m.Spans,
		Coercions:  m.CoercionFailures,
		Anomalies:  []Anomaly{},
		Projection: []Point{},
	}
	if claims != nil {
		res.Source = claims.Name
	}
	if m.CoercionFailures > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d feature cells were not numeric and were treated as 0", m.CoercionFailures))
	}
	res.TotalClaims = m.Rows()
	if m.Rows() == 0 {
		return res, nil
	}

	fr, err := iforest.FitPredict(m.Values, opt.Forest)
	if err != nil {
		return nil, fmt.Errorf("score claims: %w", err)
	}
	res.Scores = fr.Decision
	res.Labels = fr.Labels
	res.Offset = fr.Offset
	res.TotalAnomalies = fr.Outliers()
	res.Anomalies = Explain(claims, opt.Schema, m, fr.Decision, fr.Labels, dict, opt.Explain)
	res.Projection = Project(m, fr.Labels)
	return res, nil
}
