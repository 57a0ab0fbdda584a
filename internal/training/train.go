// Package training fits a model bundle from a training dataset. Rows pass
// through the same feature aligner that serves requests, so encoded training
// vectors and encoded request vectors cannot disagree.
package training

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/nourish/internal/artifacts"
	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/dataset"
	"github.com/Veraticus/nourish/internal/encoding"
	"github.com/Veraticus/nourish/internal/features"
	"github.com/Veraticus/nourish/internal/forest"
)

// DefaultTestSplit is the held-out fraction used for evaluation.
const DefaultTestSplit = 0.2

// Options controls a training run.
type Options struct {
	// Progress receives a progress bar when set.
	Progress       io.Writer
	Dataset        string
	// HeightUnit is assumed for a bare height column, as when serving.
	HeightUnit     features.HeightUnit
	OneHot         []string
	Trees          int
	MaxDepth       int
	MinSamplesLeaf int
	Workers        int
	TestSplit      float64
	Seed           int64
}

// DefaultOptions returns the options the reference model was trained with.
func DefaultOptions() Options {
	return Options{
		Trees:          forest.DefaultTrees,
		MinSamplesLeaf: forest.DefaultMinSamplesLeaf,
		TestSplit:      DefaultTestSplit,
		Seed:           forest.DefaultSeed,
		HeightUnit:     features.Feet,
	}
}

// Report summarises a training run.
type Report struct {
	Metrics   map[string]artifacts.Metric
	Events    map[encoding.EventKind]int
	Overall   artifacts.Metric
	Duration  time.Duration
	Rows      int
	TrainRows int
	TestRows  int
	Features  int
}

// Result is a trained bundle and its report.
type Result struct {
	Bundle *artifacts.Bundle
	Report Report
}

// Train fits encoders, the feature schema and the regressor from ds.
func Train(ctx context.Context, ds *dataset.Dataset, opts Options) (*Result, error) {
	start := time.Now()
	if ds == nil || ds.Len() == 0 {
		return nil, common.ErrEmptyDataset
	}
	if opts.TestSplit < 0 || opts.TestSplit >= 1 {
		return nil, fmt.Errorf("%w: test split %.2f must be in [0, 1)", common.ErrInvalidConfig, opts.TestSplit)
	}

	tally := newTally()
	m, err := vectorize(ds, opts, tally)
	if err != nil {
		return nil, err
	}
	schema, X, Y := m.schema, m.X, m.Y

	trainIdx, testIdx := split(len(X), opts.TestSplit, opts.Seed)
	slog.Info("Training model",
		"rows", len(X),
		"train_rows", len(trainIdx),
		"test_rows", len(testIdx),
		"features", schema.Len(),
		"trees", opts.Trees)

	fitOpts := forest.FitOptions{
		Trees:          opts.Trees,
		MaxDepth:       opts.MaxDepth,
		MinSamplesLeaf: opts.MinSamplesLeaf,
		Workers:        opts.Workers,
		Seed:           opts.Seed,
	}
	if opts.Progress != nil {
		bar := newProgressBar(opts.Progress, treeCount(opts.Trees)*len(schema.Targets()))
		fitOpts.Progress = func() {
			if err := bar.Add(1); err != nil {
				slog.Warn("Failed to update progress bar", "error", err)
			}
		}
	}

	model, err := forest.Fit(ctx, pick(X, trainIdx), pick(Y, trainIdx), schema.Targets(), fitOpts)
	if err != nil {
		return nil, fmt.Errorf("fit model: %w", err)
	}

	report := Report{
		Rows:      len(X),
		TrainRows: len(trainIdx),
		TestRows:  len(testIdx),
		Features:  schema.Len(),
		Events:    tally.snapshot(),
	}
	if len(testIdx) > 0 {
		want := pick(Y, testIdx)
		got := make([][]float64, len(testIdx))
		for i, x := range pick(X, testIdx) {
			if got[i], err = model.Predict(x); err != nil {
				return nil, err
			}
		}
		report.Metrics, report.Overall = evaluate(schema.Targets(), want, got)
	}
	report.Duration = time.Since(start)

	bundle := &artifacts.Bundle{
		Encoders: m.registry.WithObserver(nil),
		MealPlan: m.mealPlan,
		Schema:   schema,
		Model:    model,
		Manifest: artifacts.Manifest{
			Metrics: report.Metrics,
			Training: artifacts.TrainingInfo{
				Dataset:        opts.Dataset,
				OneHot:         opts.OneHot,
				Rows:           report.Rows,
				TestRows:       report.TestRows,
				Trees:          treeCount(opts.Trees),
				MaxDepth:       opts.MaxDepth,
				MinSamplesLeaf: opts.MinSamplesLeaf,
				TestSplit:      opts.TestSplit,
				Seed:           opts.Seed,
			},
		},
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}

	slog.Info("Training complete",
		"mae", report.Overall.MAE,
		"r2", report.Overall.R2,
		"duration", report.Duration.Round(time.Millisecond))
	return &Result{Bundle: bundle, Report: report}, nil
}

// matrix is a dataset turned into model inputs and targets.
type matrix struct {
	registry *encoding.Registry
	mealPlan *encoding.CategoricalEncoder
	schema   *features.Schema
	aligner  *features.Aligner
	X        [][]float64
	Y        [][]float64
}

// vectorize normalizes every row with the request normalizer, fills declared
// defaults for the dataset's own columns, fits the encoders and the schema,
// then aligns every row with the serving aligner.
func vectorize(ds *dataset.Dataset, opts Options, obs encoding.Observer) (*matrix, error) {
	inputs := make(map[string]bool, len(ds.Inputs))
	for _, in := range ds.Inputs {
		inputs[in] = true
	}
	known := func(column string) bool { return inputs[column] }

	normalizer := features.NewNormalizer(opts.HeightUnit, features.ExtraColumns(ds.Inputs), obs)
	rows := make([]features.Record, ds.Len())
	for i, r := range ds.Rows {
		rec, err := normalizer.Normalize(r.Profile)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.Line, err)
		}
		features.FillDefaults(rec, known, obs)
		rows[i] = rec
	}

	registry, err := fitEncoders(ds.Inputs, rows)
	if err != nil {
		return nil, err
	}
	registry = registry.WithObserver(obs)

	mealPlan, err := encoding.Fit(encoding.MealPlanField, ds.MealPlans())
	if err != nil {
		return nil, fmt.Errorf("fit meal plan encoder: %w", err)
	}

	for _, f := range opts.OneHot {
		if !registry.Has(f) {
			return nil, fmt.Errorf("%w: %s is not a categorical input", features.ErrOneHotEncoder, f)
		}
	}
	schema, err := features.BuildSchema(ds.Inputs, registry, opts.OneHot)
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	aligner, err := features.NewAligner(registry, schema, features.WithDefaultHeightUnit(opts.HeightUnit))
	if err != nil {
		return nil, err
	}

	m := &matrix{
		registry: registry,
		mealPlan: mealPlan,
		schema:   schema,
		aligner:  aligner,
		X:        make([][]float64, len(rows)),
		Y:        make([][]float64, len(rows)),
	}
	for i, rec := range rows {
		vec, err := aligner.Vectorize(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", ds.Rows[i].Line, err)
		}
		m.X[i] = vec
		code, _ := mealPlan.Lookup(ds.Rows[i].MealPlan)
		n := ds.Rows[i].Nutrition
		m.Y[i] = []float64{float64(code), n[0], n[1], n[2], n[3]}
	}
	return m, nil
}

// fitEncoders fits one encoder per categorical input column. Blank cells are
// left out; a column with no values gets no encoder and encodes as 0.
func fitEncoders(inputs []string, rows []features.Record) (*encoding.Registry, error) {
	var encoders []*encoding.CategoricalEncoder
	for _, col := range inputs {
		if features.KindOf(col) != features.KindCategorical {
			continue
		}
		var values []string
		for _, rec := range rows {
			if c, ok := rec[col]; ok && c.Text != "" {
				values = append(values, c.Text)
			}
		}
		if len(values) == 0 {
			slog.Warn("Categorical column has no values; it will encode as 0", "column", col)
			continue
		}
		enc, err := encoding.Fit(col, values)
		if err != nil {
			return nil, fmt.Errorf("fit %s encoder: %w", col, err)
		}
		encoders = append(encoders, enc)
	}
	return encoding.NewRegistry(encoders...)
}

// split shuffles row indices with seed and holds out round(n*testSplit) of
// them, keeping at least one training row.
func split(n int, testSplit float64, seed int64) ([]int, []int) {
	idx := rand.New(rand.NewSource(seed)).Perm(n)
	test := int(math.Round(float64(n) * testSplit))
	if test >= n {
		test = n - 1
	}
	testIdx := append([]int(nil), idx[:test]...)
	trainIdx := append([]int(nil), idx[test:]...)
	sort.Ints(testIdx)
	sort.Ints(trainIdx)
	return trainIdx, testIdx
}

func pick(rows [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

func treeCount(n int) int {
	if n <= 0 {
		return forest.DefaultTrees
	}
	return n
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Fitting trees...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// tally counts events by kind.
type tally struct {
	counts map[encoding.EventKind]int
	mu     sync.Mutex
}

func newTally() *tally {
	return &tally{counts: make(map[encoding.EventKind]int)}
}

func (t *tally) Observe(e encoding.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[e.Kind]++
}

func (t *tally) snapshot() map[encoding.EventKind]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[encoding.EventKind]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}
