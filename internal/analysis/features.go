package analysis

import (
	"math"
	"strconv"
	"strings"

	"github.com/taein2026/AItest/internal/table"
)

// FeatureMatrix is the dense model input: one row per claim, one column per feature code.
type FeatureMatrix struct {
	Columns []string
	Values  [][]float64 // row-major, Values[i][j]
	Spans   []ResolvedSpan
	// CoercionFailures counts non-empty cells that did not parse as a finite number.
	CoercionFailures int
}

// Rows returns the number of matrix rows.
func (m *FeatureMatrix) Rows() int { return len(m.Values) }

// BuildFeatureMatrix slices the schema's spans out of claims and coerces every cell.
// Unparseable, empty and non-finite cells become 0. No matrix is returned on error.
func BuildFeatureMatrix(claims *table.Table, s Schema) (*FeatureMatrix, error) {
	name := "claims"
	if claims != nil && claims.Name != "" {
		name = claims.Name
	}
	var header []string
	if claims != nil {
		header = claims.Header
	}
	spans, err := s.Resolve(name, header)
	if err != nil {
		return nil, err
	}

	var idx []int
	for _, sp := range spans {
		for j := sp.From; j <= sp.To; j++ {
			idx = append(idx, j)
		}
	}
	m := &FeatureMatrix{
		Columns: make([]string, len(idx)),
		Values:  make([][]float64, claims.Len()),
		Spans:   spans,
	}
	for k, j := range idx {
		m.Columns[k] = header[j]
	}
	for r := range m.Values {
		row := make([]float64, len(idx))
		for k, j := range idx {
			v, ok := coerce(claims.Cell(r, j))
			if !ok {
				m.CoercionFailures++
			}
			row[k] = v
		}
		m.Values[r] = row
	}
	return m, nil
}

// coerce parses a feature cell. Empty cells are absent features, not failures.
func coerce(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
