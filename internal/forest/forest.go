// Package forest implements bagged CART ensembles for regression and binary
// or multi-class classification. Training is deterministic for a given seed.
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

type Task int

const (
	Regression Task = iota
	Classification
)

func (t Task) String() string {
	if t == Classification {
		return "classification"
	}
	return "regression"
}

// Config controls ensemble size and tree growth. Zero values pick the
// defaults noted on each field.
type Config struct {
	Trees           int   // 100
	MaxFeatures     int   // all features for regression, floor(sqrt(p)) for classification
	MinSamplesSplit int   // 2
	MaxDepth        int   // 0 grows trees until leaves are pure
	Seed            int64 // source of every tree's bootstrap and feature draws
}

// Forest is a random forest. Use NewRegressor or NewClassifier.
type Forest struct {
	task        Task
	cfg         Config
	trees       []*tree
	nFeatures   int
	classes     []float64
	importances []float64
}

var (
	ErrEmpty      = errors.New("forest: no training rows")
	ErrNotFitted  = errors.New("forest: model is not fitted")
	ErrDimensions = errors.New("forest: inconsistent feature dimensions")
)

func NewRegressor(cfg Config) *Forest {
	return &Forest{task: Regression, cfg: cfg}
}

func NewClassifier(cfg Config) *Forest {
	return &Forest{task: Classification, cfg: cfg}
}

func (f *Forest) Task() Task { return f.task }

// Classes returns the sorted distinct labels seen by Fit.
func (f *Forest) Classes() []float64 {
	return append([]float64(nil), f.classes...)
}

func (f *Forest) maxFeatures() int {
	m := f.cfg.MaxFeatures
	if m <= 0 {
		if f.task == Classification {
			m = int(math.Floor(math.Sqrt(float64(f.nFeatures))))
		} else {
			m = f.nFeatures
		}
	}
	if m < 1 {
		m = 1
	}
	if m > f.nFeatures {
		m = f.nFeatures
	}
	return m
}

// Fit trains the ensemble on X (rows by features) and y.
func (f *Forest) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return ErrEmpty
	}
	if len(X) != len(y) {
		return fmt.Errorf("%w: %d rows but %d targets", ErrDimensions, len(X), len(y))
	}
	f.nFeatures = len(X[0])
	if f.nFeatures == 0 {
		return fmt.Errorf("%w: rows have no features", ErrDimensions)
	}
	for i, row := range X {
		if len(row) != f.nFeatures {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrDimensions, i, len(row), f.nFeatures)
		}
	}

	target := y
	classCount := 0
	if f.task == Classification {
		target, f.classes = encodeLabels(y)
		classCount = len(f.classes)
	}

	trees := f.cfg.Trees
	if trees <= 0 {
		trees = 100
	}
	minSplit := f.cfg.MinSamplesSplit
	if minSplit < 2 {
		minSplit = 2
	}
	maxFeatures := f.maxFeatures()

	master := rand.New(rand.NewSource(f.cfg.Seed))
	n := len(X)
	f.trees = make([]*tree, trees)
	for k := range f.trees {
		seed := master.Int63()
		t := newTree(f.task, classCount, f.nFeatures, maxFeatures, minSplit, f.cfg.MaxDepth, seed)
		sample := make([]int, n)
		for i := range sample {
			sample[i] = t.rng.Intn(n)
		}
		t.fit(X, target, sample)
		f.trees[k] = t
	}

	f.importances = f.computeImportances()
	return nil
}

// encodeLabels maps labels to 0..k-1 in ascending label order.
func encodeLabels(y []float64) ([]float64, []float64) {
	set := map[float64]struct{}{}
	for _, v := range y {
		set[v] = struct{}{}
	}
	classes := make([]float64, 0, len(set))
	for v := range set {
		classes = append(classes, v)
	}
	sort.Float64s(classes)
	index := make(map[float64]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	encoded := make([]float64, len(y))
	for i, v := range y {
		encoded[i] = float64(index[v])
	}
	return encoded, classes
}

// computeImportances averages each tree's normalized impurity decrease,
// skipping trees that never split, and renormalizes to sum 1.
func (f *Forest) computeImportances() []float64 {
	out := make([]float64, f.nFeatures)
	used := 0
	for _, t := range f.trees {
		if t.splits == 0 {
			continue
		}
		imp := append([]float64(nil), t.importances...)
		total := floats.Sum(imp)
		if total <= 0 {
			continue
		}
		floats.Scale(1/total, imp)
		floats.Add(out, imp)
		used++
	}
	if used == 0 {
		return out
	}
	floats.Scale(1/float64(used), out)
	if total := floats.Sum(out); total > 0 {
		floats.Scale(1/total, out)
	}
	return out
}

// FeatureImportances returns the mean decrease in impurity per feature,
// summing to 1 unless no tree split at all.
func (f *Forest) FeatureImportances() []float64 {
	return append([]float64(nil), f.importances...)
}

// Predict returns the mean tree prediction for regression and the most
// probable class label for classification.
func (f *Forest) Predict(X [][]float64) ([]float64, error) {
	if len(f.trees) == 0 {
		return nil, ErrNotFitted
	}
	if err := f.checkRows(X); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	if f.task == Regression {
		for i, x := range X {
			var sum float64
			for _, t := range f.trees {
				sum += t.find(x).value
			}
			out[i] = sum / float64(len(f.trees))
		}
		return out, nil
	}

	proba, err := f.PredictProba(X)
	if err != nil {
		return nil, err
	}
	for i, p := range proba {
		out[i] = f.classes[floats.MaxIdx(p)]
	}
	return out, nil
}

// PredictProba returns per-class probabilities ordered as Classes.
func (f *Forest) PredictProba(X [][]float64) ([][]float64, error) {
	if len(f.trees) == 0 {
		return nil, ErrNotFitted
	}
	if f.task != Classification {
		return nil, errors.New("forest: PredictProba requires a classifier")
	}
	if err := f.checkRows(X); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		p := make([]float64, len(f.classes))
		for _, t := range f.trees {
			floats.Add(p, t.find(x).dist)
		}
		floats.Scale(1/float64(len(f.trees)), p)
		out[i] = p
	}
	return out, nil
}

func (f *Forest) checkRows(X [][]float64) error {
	for i, row := range X {
		if len(row) != f.nFeatures {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrDimensions, i, len(row), f.nFeatures)
		}
	}
	return nil
}
