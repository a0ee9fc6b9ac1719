package analysis

import (
	"math"
	"testing"

	"github.com/taein2026/AItest/internal/iforest"
)

func TestProjectSeparatesClusters(t *testing.T) {
	m := &FeatureMatrix{Columns: []string{"a", "b", "c"}}
	for i := 0; i < 10; i++ {
		d := float64(i%3) * 0.01
		m.Values = append(m.Values, []float64{d, 0, 0})
		m.Values = append(m.Values, []float64{1 + d, 1, 1})
	}
	labels := make([]iforest.Label, m.Rows())
	for i := range labels {
		labels[i] = iforest.Inlier
	}
	labels[3] = iforest.Outlier

	pts := Project(m, labels)
	if len(pts) != m.Rows() {
		t.Fatalf("got %d points, want %d", len(pts), m.Rows())
	}
	for i, p := range pts {
		// even rows sit near the origin, odd rows near (1,1,1); PC1 must split them.
		if i%2 == 0 && p.PC1 >= 0 || i%2 == 1 && p.PC1 <= 0 {
			t.Fatalf("point %d on wrong side of PC1: %+v", i, p)
		}
		if p.Row != i {
			t.Fatalf("point %d has row %d", i, p.Row)
		}
	}
	if pts[3].Label != "-1" || pts[0].Label != "1" {
		t.Fatalf("unexpected labels: %q %q", pts[3].Label, pts[0].Label)
	}
}

func TestProjectSignIsStable(t *testing.T) {
	m := &FeatureMatrix{Columns: []string{"a", "b"}, Values: [][]float64{{0, 0}, {1, 2}, {2, 4.1}, {3, 5.9}}}
	a := Project(m, nil)
	b := Project(m, nil)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("projection not stable at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
	// loadings are oriented so the dominant column increases PC1
	if a[3].PC1 <= a[0].PC1 {
		t.Fatalf("expected PC1 to increase with b: %+v", a)
	}
}

func TestProjectDegenerate(t *testing.T) {
	one := Project(&FeatureMatrix{Columns: []string{"a"}, Values: [][]float64{{5}}}, []iforest.Label{iforest.Inlier})
	if len(one) != 1 || one[0].PC1 != 0 || one[0].PC2 != 0 {
		t.Fatalf("single row should project to origin, got %+v", one)
	}
	col := Project(&FeatureMatrix{Columns: []string{"a"}, Values: [][]float64{{1}, {3}}}, nil)
	if col[0].PC2 != 0 || col[1].PC2 != 0 {
		t.Fatalf("single column leaves PC2 at 0, got %+v", col)
	}
	if math.Abs(col[0].PC1+col[1].PC1) > 1e-12 || col[1].PC1 <= 0 {
		t.Fatalf("single column PC1 should be centred and oriented, got %+v", col)
	}
}
