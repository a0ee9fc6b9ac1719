// Package iforest implements an isolation forest outlier detector.
//
// Scores follow the usual convention: ScoreSamples returns the negated anomaly score in
// [-1, 0), and Decision shifts it by a contamination-derived offset so that negative
// values are outliers. Lower is more anomalous in both.
package iforest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Label is the binary outcome of Predict.
type Label int

const (
	Outlier Label = -1
	Inlier  Label = 1
)

// String renders the label as "-1" or "1", the tags used for plotting.
func (l Label) String() string {
	if l == Outlier {
		return "-1"
	}
	return "1"
}

// ErrEmpty is returned when fitting on a matrix without rows.
var ErrEmpty = errors.New("iforest: empty training matrix")

// Options configures the forest.
type Options struct {
	// Trees in the ensemble.
	Trees int
	// MaxSamples is the per-tree subsample size; capped at the number of rows.
	MaxSamples int
	// Contamination is the expected outlier fraction, in [0, 0.5].
	Contamination float64
	// Seed makes tree construction reproducible.
	Seed int64
	// Workers bounds concurrent tree construction; <= 0 uses GOMAXPROCS.
	Workers int
}

// DefaultOptions returns 100 trees, 256 samples per tree, 1% contamination and seed 42.
func DefaultOptions() Options {
	return Options{
		Trees:         100,
		MaxSamples:    256,
		Contamination: 0.01,
		Seed:          42,
	}
}

// Forest is a fitted isolation forest.
type Forest struct {
	trees  []*node
	psi    int
	cPsi   float64
	nFeat  int
	offset float64
}

type node struct {
	leaf    bool
	size    int
	feature int
	split   float64
	left    *node
	right   *node
}

// Fit builds the forest on x and calibrates the decision offset from the training scores.
func Fit(x [][]float64, opt Options) (*Forest, error) {
	n := len(x)
	if n == 0 {
		return nil, ErrEmpty
	}
	nf := len(x[0])
	for i, row := range x {
		if len(row) != nf {
			return nil, fmt.Errorf("iforest: row %d has %d features, want %d", i, len(row), nf)
		}
	}
	if opt.Contamination < 0 || opt.Contamination > 0.5 || math.IsNaN(opt.Contamination) {
		return nil, fmt.Errorf("iforest: contamination %v outside [0, 0.5]", opt.Contamination)
	}
	if opt.Trees <= 0 {
		opt.Trees = 100
	}
	if opt.MaxSamples <= 0 {
		opt.MaxSamples = 256
	}
	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	psi := opt.MaxSamples
	if psi > n {
		psi = n
	}
	f := &Forest{
		trees: make([]*node, opt.Trees),
		psi:   psi,
		cPsi:  averagePathLength(psi),
		nFeat: nf,
	}
	if f.cPsi == 0 {
		f.cPsi = 1
	}
	limit := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))

	// Per-tree seeds are drawn in tree order so the result does not depend on scheduling.
	master := rand.New(rand.NewSource(opt.Seed))
	seeds := make([]int64, opt.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range f.trees {
		i := i
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[i]))
			idx := rng.Perm(n)[:psi]
			f.trees[i] = grow(x, idx, 0, limit, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("iforest: build trees: %w", err)
	}

	f.offset = offsetFor(f.ScoreSamples(x), opt.Contamination)
	return f, nil
}

// grow recursively partitions the rows in idx. idx is reordered in place.
func grow(x [][]float64, idx []int, depth, limit int, rng *rand.Rand) *node {
	if depth >= limit || len(idx) <= 1 {
		return &node{leaf: true, size: len(idx)}
	}
	nf := len(x[idx[0]])
	var cand []int
	lo := make([]float64, nf)
	hi := make([]float64, nf)
	for j := 0; j < nf; j++ {
		mn, mx := x[idx[0]][j], x[idx[0]][j]
		for _, r := range idx[1:] {
			v := x[r][j]
			if v < mn {
				mn = v
			}
			if v > mx {
				mx = v
			}
		}
		lo[j], hi[j] = mn, mx
		if mx > mn {
			cand = append(cand, j)
		}
	}
	if len(cand) == 0 {
		return &node{leaf: true, size: len(idx)}
	}
	feat := cand[rng.Intn(len(cand))]
	split := lo[feat] + rng.Float64()*(hi[feat]-lo[feat])
	if split <= lo[feat] {
		split = math.Nextafter(lo[feat], hi[feat])
	}

	// values < split go left; both sides are non-empty because lo < split <= hi.
	p := 0
	for i := range idx {
		if x[idx[i]][feat] < split {
			idx[p], idx[i] = idx[i], idx[p]
			p++
		}
	}
	return &node{
		feature: feat,
		split:   split,
		left:    grow(x, idx[:p], depth+1, limit, rng),
		right:   grow(x, idx[p:], depth+1, limit, rng),
	}
}

func pathLength(row []float64, n *node) float64 {
	depth := 0.0
	for !n.leaf {
		if row[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return depth + averagePathLength(n.size)
}

// averagePathLength is c(n), the mean path length of an unsuccessful BST search.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

const eulerGamma = 0.5772156649015329

// ScoreSamples returns -2^(-E[h(x)]/c(psi)) per row; lower is more anomalous.
func (f *Forest) ScoreSamples(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		var sum float64
		for _, t := range f.trees {
			sum += pathLength(row, t)
		}
		mean := sum / float64(len(f.trees))
		out[i] = -math.Pow(2, -mean/f.cPsi)
	}
	return out
}

// Decision returns ScoreSamples shifted by the fitted offset; negative means outlier.
func (f *Forest) Decision(x [][]float64) []float64 {
	out := f.ScoreSamples(x)
	for i := range out {
		out[i] -= f.offset
	}
	return out
}

// Predict labels each row from its decision score.
func (f *Forest) Predict(x [][]float64) []Label {
	return Labels(f.Decision(x))
}

// Labels maps decision scores to labels: negative is an outlier.
func Labels(decision []float64) []Label {
	out := make([]Label, len(decision))
	for i, d := range decision {
		if d < 0 {
			out[i] = Outlier
		} else {
			out[i] = Inlier
		}
	}
	return out
}

// Offset is the raw-score threshold chosen at fit time.
func (f *Forest) Offset() float64 { return f.offset }

// Trees reports the ensemble size.
func (f *Forest) Trees() int { return len(f.trees) }

// offsetFor places the threshold between the k-th and (k+1)-th lowest scores,
// k = round(contamination * n). k == 0 flags nothing.
func offsetFor(scores []float64, contamination float64) float64 {
	n := len(scores)
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	k := int(math.Round(contamination * float64(n)))
	switch {
	case k <= 0:
		return sorted[0]
	case k >= n:
		return math.Nextafter(sorted[n-1], math.Inf(1))
	}
	return (sorted[k-1] + sorted[k]) / 2
}

// Result bundles per-row scores and labels from a single fit.
type Result struct {
	Decision []float64
	Labels   []Label
	Offset   float64
}

// FitPredict fits on x and scores the same rows.
func FitPredict(x [][]float64, opt Options) (*Result, error) {
	f, err := Fit(x, opt)
	if err != nil {
		return nil, err
	}
	d := f.Decision(x)
	return &Result{Decision: d, Labels: Labels(d), Offset: f.offset}, nil
}

// Outliers counts outlier labels.
func (r *Result) Outliers() int {
	n := 0
	for _, l := range r.Labels {
		if l == Outlier {
			n++
		}
	}
	return n
}
