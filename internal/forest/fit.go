package forest

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/Veraticus/nourish/internal/common"
)

// Default fitting parameters.
const (
	DefaultTrees          = 100
	DefaultMinSamplesLeaf = 1
	DefaultSeed           = 42
)

// FitOptions controls ensemble fitting.
type FitOptions struct {
	// Progress is called once per finished tree. It may be called concurrently.
	Progress       func()
	Trees          int
	MaxDepth       int // 0 means unlimited
	MinSamplesLeaf int
	Workers        int
	Seed           int64
}

func (o FitOptions) withDefaults() FitOptions {
	if o.Trees <= 0 {
		o.Trees = DefaultTrees
	}
	if o.MinSamplesLeaf <= 0 {
		o.MinSamplesLeaf = DefaultMinSamplesLeaf
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

// Fit trains one forest per output. X holds one row per sample; Y holds the
// matching target rows, one column per name in outputs. Trees are fit on
// bootstrap samples with a per-tree seed derived from opts.Seed, so results do
// not depend on scheduling.
func Fit(ctx context.Context, X, Y [][]float64, outputs []string, opts FitOptions) (*Ensemble, error) {
	if len(X) == 0 {
		return nil, common.ErrEmptyDataset
	}
	if len(X) != len(Y) {
		return nil, fmt.Errorf("%w: %d feature rows, %d target rows", common.ErrInvalidInput, len(X), len(Y))
	}
	if len(outputs) == 0 {
		return nil, ErrNoOutputs
	}
	features := len(X[0])
	if features == 0 {
		return nil, fmt.Errorf("%w: no feature columns", common.ErrInvalidInput)
	}
	for i := range X {
		if len(X[i]) != features {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", common.ErrInvalidInput, i, len(X[i]), features)
		}
		if len(Y[i]) != len(outputs) {
			return nil, fmt.Errorf("%w: row %d has %d targets, want %d", common.ErrInvalidInput, i, len(Y[i]), len(outputs))
		}
	}
	opts = opts.withDefaults()

	e := &Ensemble{FeatureCount: features, Forests: make([]Forest, len(outputs))}
	for o, name := range outputs {
		e.Forests[o] = Forest{Output: name, Trees: make([]Tree, opts.Trees)}
	}

	type job struct{ output, tree int }
	jobs := make(chan job)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					errOnce.Do(func() { firstErr = err })
					continue
				}
				seed := opts.Seed + int64(j.output*opts.Trees+j.tree)
				b := newBuilder(X, Y, j.output, opts, rand.New(rand.NewSource(seed)))
				e.Forests[j.output].Trees[j.tree] = b.build()
				if opts.Progress != nil {
					opts.Progress()
				}
			}
		}()
	}

	for o := range outputs {
		for t := 0; t < opts.Trees; t++ {
			jobs <- job{output: o, tree: t}
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return e, nil
}

// builder grows a single CART regression tree.
type builder struct {
	X       [][]float64
	y       []float64
	rng     *rand.Rand
	nodes   []Node
	opts    FitOptions
	samples []int
}

func newBuilder(X, Y [][]float64, output int, opts FitOptions, rng *rand.Rand) *builder {
	y := make([]float64, len(Y))
	for i := range Y {
		y[i] = Y[i][output]
	}
	samples := make([]int, len(X))
	for i := range samples {
		samples[i] = rng.Intn(len(X))
	}
	return &builder{X: X, y: y, rng: rng, opts: opts, samples: samples}
}

func (b *builder) build() Tree {
	b.grow(b.samples, 0)
	return Tree{Nodes: b.nodes}
}

// grow appends the subtree for idx and returns its root index. Children are
// appended after their parent.
func (b *builder) grow(idx []int, depth int) int {
	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: leaf, Right: leaf, Value: b.mean(idx)})

	if b.opts.MaxDepth > 0 && depth >= b.opts.MaxDepth {
		return self
	}
	if len(idx) < 2*b.opts.MinSamplesLeaf {
		return self
	}

	s, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][s.feature] <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self].Feature = s.feature
	b.nodes[self].Threshold = s.threshold
	b.nodes[self].Left = l
	b.nodes[self].Right = r
	return self
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// bestSplit finds the split with the largest reduction in squared error,
// scanning features in a random order so ties do not always favour low
// indices.
func (b *builder) bestSplit(idx []int) (split, bool) {
	n := len(idx)
	total, totalSq := 0.0, 0.0
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	parentSSE := totalSq - total*total/float64(n)
	if parentSSE <= 1e-12 {
		return split{}, false
	}

	best := split{gain: 0}
	found := false
	sorted := make([]int, n)
	minLeaf := b.opts.MinSamplesLeaf

	for _, f := range b.rng.Perm(len(b.X[0])) {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		leftSum, leftSq := 0.0, 0.0
		for k := 0; k < n-1; k++ {
			v := b.y[sorted[k]]
			leftSum += v
			leftSq += v * v

			cur, next := b.X[sorted[k]][f], b.X[sorted[k+1]][f]
			if cur == next {
				continue
			}
			nl, nr := float64(k+1), float64(n-k-1)
			if k+1 < minLeaf || n-k-1 < minLeaf {
				continue
			}
			rightSum, rightSq := total-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			gain := parentSSE - sse
			if gain > best.gain+1e-12 {
				threshold := (cur + next) / 2
				if threshold >= next {
					threshold = cur
				}
				best = split{feature: f, threshold: threshold, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

func (b *builder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum / float64(len(idx))
}
