// Package metrics holds the Prometheus collectors for analysis runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels runs that produced a result.
	OutcomeSuccess = "success"
	// OutcomeSchemaError labels runs rejected because a required column was missing.
	OutcomeSchemaError = "schema_error"
	// OutcomeError labels every other failure.
	OutcomeError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "claimscan",
			Name:      "analysis_runs_total",
			Help:      "Total number of analysis runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "claimscan",
			Name:      "analysis_seconds",
			Help:      "Analysis run latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	claimsAnalyzed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "claimscan",
		Name:      "claims_analyzed_total",
		Help:      "Claims fed through the outlier model.",
	})

	anomaliesFlagged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "claimscan",
		Name:      "anomalies_flagged_total",
		Help:      "Claims labeled as outliers.",
	})

	coercionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "claimscan",
		Name:      "coercion_failures_total",
		Help:      "Feature cells that were not numeric and were treated as 0.",
	})
)

// Register attaches claimscan collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runSeconds,
		claimsAnalyzed,
		anomaliesFlagged,
		coercionFailures,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// Run summarises one analysis for ObserveRun.
type Run struct {
	Duration  time.Duration
	Outcome   string
	Claims    int
	Anomalies int
	Coercions int
}

// ObserveRun records a run's duration, outcome and counts.
func ObserveRun(r Run) {
	label := r.Outcome
	if label != OutcomeSchemaError && label != OutcomeError {
		label = OutcomeSuccess
	}
	runsTotal.WithLabelValues(label).Inc()
	d := r.Duration
	if d < 0 {
		d = 0
	}
	runSeconds.Observe(d.Seconds())
	if r.Claims > 0 {
		claimsAnalyzed.Add(float64(r.Claims))
	}
	if r.Anomalies > 0 {
		anomaliesFlagged.Add(float64(r.Anomalies))
	}
	if r.Coercions > 0 {
		coercionFailures.Add(float64(r.Coercions))
	}
}

// WriteTextfile registers the collectors on a fresh registry and writes it in the
// node-exporter textfile format. The file is replaced atomically.
func WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		return fmt.Errorf("register collectors: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
