package analysis

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/taein2026/AItest/internal/iforest"
	"github.com/taein2026/AItest/internal/table"
)

// NotAvailable is shown for an identifier or date the claims table does not carry.
const NotAvailable = "N/A"

// Reason is one rare active feature of a flagged claim.
type Reason struct {
	Code string  `json:"code"`
	Rate float64 `json:"rate"`
	Name string  `json:"name"`
}

// Anomaly is an explained outlier. Rank 1 is the least anomalous of the explained set.
type Anomaly struct {
	Rank    int      `json:"rank"`
	Row     int      `json:"row"`
	ID      string   `json:"id"`
	Date    string   `json:"date"`
	Score   float64  `json:"score"`
	Reasons []Reason `json:"reasons"`
}

// ExplainOptions bounds the explanation.
type ExplainOptions struct {
	TopN       int
	MaxReasons int
	// A feature is active for a row when its value is strictly greater than ActiveThreshold.
	ActiveThreshold float64
}

// DefaultExplainOptions returns top 20 rows, 5 reasons each, active when > 0.
func DefaultExplainOptions() ExplainOptions {
	return ExplainOptions{TopN: 20, MaxReasons: 5, ActiveThreshold: 0}
}

// Profile returns the mean of every feature column over all rows.
func Profile(m *FeatureMatrix) []float64 {
	out := make([]float64, len(m.Columns))
	if m.Rows() == 0 {
		return out
	}
	col := make([]float64, m.Rows())
	for j := range out {
		for i, row := range m.Values {
			col[i] = row[j]
		}
		out[j] = stat.Mean(col, nil)
	}
	return out
}

// Explain ranks the outlier rows by decision score and attaches their rarest active features.
// decision and labels are aligned with the matrix rows.
func Explain(claims *table.Table, s Schema, m *FeatureMatrix, decision []float64, labels []iforest.Label, dict Dictionary, opt ExplainOptions) []Anomaly {
	var rows []int
	for i, l := range labels {
		if l == iforest.Outlier {
			rows = append(rows, i)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool { return decision[rows[a]] < decision[rows[b]] })
	if opt.TopN >= 0 && len(rows) > opt.TopN {
		rows = rows[:opt.TopN]
	}
	if len(rows) == 0 {
		return []Anomaly{}
	}

	profile := Profile(m)
	idCol, hasID := claims.Index(s.IDColumn)
	dateCol, hasDate := claims.Index(s.Date)

	out := make([]Anomaly, len(rows))
	for pos, r := range rows {
		a := Anomaly{
			Rank:    len(rows) - pos,
			Row:     r,
			ID:      NotAvailable,
			Date:    NotAvailable,
			Score:   decision[r],
			Reasons: reasonsFor(m.Values[r], m.Columns, profile, dict, opt),
		}
		if hasID {
			a.ID = claims.Cell(r, idCol)
		}
		if hasDate {
			a.Date = claims.Cell(r, dateCol)
		}
		out[pos] = a
	}
	return out
}

func reasonsFor(row []float64, cols []string, profile []float64, dict Dictionary, opt ExplainOptions) []Reason {
	var active []int
	for j, v := range row {
		if v > opt.ActiveThreshold {
			active = append(active, j)
		}
	}
	sort.SliceStable(active, func(a, b int) bool { return profile[active[a]] < profile[active[b]] })
	if opt.MaxReasons >= 0 && len(active) > opt.MaxReasons {
		active = active[:opt.MaxReasons]
	}
	out := make([]Reason, len(active))
	for k, j := range active {
		out[k] = Reason{Code: cols[j], Rate: profile[j], Name: dict.Label(cols[j])}
	}
	return out
}
