package analysis

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/taein2026/AItest/internal/iforest"
)

// Point is one claim projected onto the first two principal components.
type Point struct {
	Row   int     `json:"row"`
	PC1   float64 `json:"pc1"`
	PC2   float64 `json:"pc2"`
	Label string  `json:"label"`
}

// Project fits a 2-component PCA on the matrix and tags every row with its label.
// Coordinates that cannot be computed (fewer than two rows, or a single column) are 0.
func Project(m *FeatureMatrix, labels []iforest.Label) []Point {
	n, d := m.Rows(), len(m.Columns)
	out := make([]Point, n)
	for i := range out {
		out[i] = Point{Row: i, Label: iforest.Inlier.String()}
		if i < len(labels) {
			out[i].Label = labels[i].String()
		}
	}
	if n < 2 || d == 0 {
		return out
	}

	flat := make([]float64, 0, n*d)
	for _, row := range m.Values {
		flat = append(flat, row...)
	}
	x := mat.NewDense(n, d, flat)
	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return out
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, k := vecs.Dims()
	if k > 2 {
		k = 2
	}

	means := make([]float64, d)
	col := make([]float64, n)
	for j := range means {
		mat.Col(col, j, x)
		means[j] = stat.Mean(col, nil)
	}
	dirs := make([][]float64, k)
	for c := range dirs {
		dirs[c] = mat.Col(nil, c, &vecs)
		orient(dirs[c])
	}
	for i, row := range m.Values {
		var coord [2]float64
		for c, v := range dirs {
			var s float64
			for j := range row {
				s += (row[j] - means[j]) * v[j]
			}
			coord[c] = s
		}
		out[i].PC1, out[i].PC2 = coord[0], coord[1]
	}
	return out
}

// orient flips v so that its largest-magnitude entry is positive.
func orient(v []float64) {
	best := 0
	for j := range v {
		if math.Abs(v[j]) > math.Abs(v[best]) {
			best = j
		}
	}
	if len(v) > 0 && v[best] < 0 {
		for j := range v {
			v[j] = -v[j]
		}
	}
}
