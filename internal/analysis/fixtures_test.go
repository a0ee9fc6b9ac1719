package analysis

import (
	"math/rand"
	"strconv"

	"github.com/taein2026/AItest/internal/table"
)

// featureNames are the 15 feature headers: ten diagnosis codes then five drug codes.
var featureNames = []string{
	"F41.2", "F32.9", "K21.0", "M54.5", "I10", "E11.9", "J20.9", "R51", "N39.0", "J30.4",
	"AA254", "BB110", "CC777", "DD300", "648101420",
}

// claimsTable wraps a feature matrix with id, date and an ignored trailing column.
func claimsTable(features [][]float64) *table.Table {
	header := append([]string{"환자번호", "진료일시"}, featureNames...)
	header = append(header, "비고")
	t := &table.Table{Name: "claims.csv", Header: header}
	for i, f := range features {
		row := []string{strconv.Itoa(1000 + i), "2024-03-" + strconv.Itoa(1+i%28)}
		for _, v := range f {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		row = append(row, "memo")
		t.Rows = append(t.Rows, row)
	}
	return t
}

func diseaseTable() *table.Table {
	return &table.Table{
		Name:   "diseases.csv",
		Header: []string{"상병코드", "표준상병명"},
		Rows: [][]string{
			{" F41.2 ", "Mixed anxiety and depressive disorder"},
			{"F32.9", "Depressive episode, unspecified"},
			{"K21.0", "GERD with oesophagitis"},
			{"I10", "Essential hypertension"},
			{"J30.4", "Allergic rhinitis, unspecified"},
		},
	}
}

func drugTable() *table.Table {
	return &table.Table{
		Name:   "drugs.csv",
		Header: []string{"연합회코드", "연합회전용명"},
		Rows: [][]string{
			{"AA254", "Alprazolam 0.25mg"},
			{"BB110", "Omeprazole 20mg"},
			{"CC777", "Rare compound injection"},
			{"648101420", "Amlodipine 5mg"},
		},
	}
}

// randomBinary returns n rows of 15 indicator features; column j is active with probability probs[j].
func randomBinary(n int, seed int64, probs []float64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, len(featureNames))
		for j := range row {
			if rng.Float64() < probs[j] {
				row[j] = 1
			}
		}
		out[i] = row
	}
	return out
}

var mixedProbs = []float64{0.9, 0.6, 0.5, 0.3, 0.2, 0.15, 0.1, 0.08, 0.05, 0.04, 0.7, 0.4, 0.03, 0.02, 0.5}
