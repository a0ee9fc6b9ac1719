package iforest

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func uniformMatrix(n, d int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	for i := range x {
		x[i] = make([]float64, d)
		for j := range x[i] {
			x[i][j] = rng.Float64()
		}
	}
	return x
}

// withInjected replaces k evenly spaced rows with far-away points and returns their indices.
func withInjected(x [][]float64, k int) []int {
	if k == 0 {
		return nil
	}
	step := len(x) / k
	idx := make([]int, 0, k)
	for i := 0; i < k; i++ {
		r := i * step
		for j := range x[r] {
			x[r][j] = 5 + float64(i)*0.37 + float64(j)*0.11
		}
		idx = append(idx, r)
	}
	return idx
}

func TestAveragePathLength(t *testing.T) {
	cases := map[int]float64{
		0:   0,
		1:   0,
		2:   1,
		3:   2*(math.Log(2)+eulerGamma) - 2*2.0/3,
		256: 2*(math.Log(255)+eulerGamma) - 2*255.0/256,
	}
	for n, want := range cases {
		if got := averagePathLength(n); math.Abs(got-want) > 1e-12 {
			t.Fatalf("c(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestFitIsDeterministic(t *testing.T) {
	x := uniformMatrix(400, 6, 1)
	withInjected(x, 4)

	opt := DefaultOptions()
	opt.Workers = 1
	a, err := FitPredict(x, opt)
	if err != nil {
		t.Fatalf("FitPredict: %v", err)
	}
	opt.Workers = 8
	b, err := FitPredict(x, opt)
	if err != nil {
		t.Fatalf("FitPredict: %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("results differ across runs (-a +b):\n%s", diff)
	}

	opt.Seed = 7
	c, err := FitPredict(x, opt)
	if err != nil {
		t.Fatalf("FitPredict: %v", err)
	}
	if cmp.Equal(a.Decision, c.Decision) {
		t.Fatalf("different seeds produced identical scores")
	}
}

func TestOutlierCountMatchesContamination(t *testing.T) {
	for _, n := range []int{100, 1000, 10000} {
		x := uniformMatrix(n, 5, int64(n))
		k := int(math.Round(0.01 * float64(n)))
		injected := withInjected(x, k)

		res, err := FitPredict(x, DefaultOptions())
		if err != nil {
			t.Fatalf("n=%d: FitPredict: %v", n, err)
		}
		if got := res.Outliers(); got != k {
			t.Fatalf("n=%d: %d outliers, want %d", n, got, k)
		}
		hit := 0
		for _, r := range injected {
			if res.Labels[r] == Outlier {
				hit++
			}
		}
		if float64(hit) < 0.95*float64(k) {
			t.Fatalf("n=%d: only %d of %d injected rows flagged", n, hit, k)
		}
	}
}

func TestLabelsFollowDecisionSign(t *testing.T) {
	x := uniformMatrix(300, 4, 3)
	withInjected(x, 3)
	res, err := FitPredict(x, DefaultOptions())
	if err != nil {
		t.Fatalf("FitPredict: %v", err)
	}
	for i, d := range res.Decision {
		if (d < 0) != (res.Labels[i] == Outlier) {
			t.Fatalf("row %d: decision %v but label %v", i, d, res.Labels[i])
		}
	}
}

func TestSmallInputFlagsNothing(t *testing.T) {
	x := [][]float64{{0, 1}, {1, 0}, {9, 9}}
	res, err := FitPredict(x, DefaultOptions())
	if err != nil {
		t.Fatalf("FitPredict: %v", err)
	}
	if res.Outliers() != 0 {
		t.Fatalf("expected no outliers for 3 rows, got %d", res.Outliers())
	}
}

func TestConstantMatrix(t *testing.T) {
	x := make([][]float64, 50)
	for i := range x {
		x[i] = []float64{1, 1, 0}
	}
	res, err := FitPredict(x, DefaultOptions())
	if err != nil {
		t.Fatalf("FitPredict: %v", err)
	}
	if res.Outliers() != 0 {
		t.Fatalf("identical rows should tie; got %d outliers", res.Outliers())
	}
}

func TestFitErrors(t *testing.T) {
	if _, err := Fit(nil, DefaultOptions()); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := Fit([][]float64{{1, 2}, {1}}, DefaultOptions()); err == nil {
		t.Fatalf("expected ragged-row error")
	}
	opt := DefaultOptions()
	opt.Contamination = 0.7
	if _, err := Fit([][]float64{{1}}, opt); err == nil {
		t.Fatalf("expected contamination range error")
	}
}

func TestLabelString(t *testing.T) {
	if Outlier.String() != "-1" || Inlier.String() != "1" {
		t.Fatalf("unexpected label strings %q %q", Outlier, Inlier)
	}
}
