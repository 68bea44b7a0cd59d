package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
)

const (
	ClassWeightNone     = ""
	ClassWeightBalanced = "balanced"
)

type ForestParams struct {
	NEstimators     int     `json:"n_estimators"`
	MaxDepth        int     `json:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf"`
	MaxFeatures     int     `json:"max_features"`
	ClassWeight     string  `json:"class_weight"`
	Bootstrap       bool    `json:"bootstrap"`
	Seed            int64   `json:"seed"`
	Workers         int     `json:"-"`
	MaxSamples      float64 `json:"max_samples,omitempty"`
}

// DefaultForestParams mirrors the production model: 100 trees of depth 10,
// balanced class weights, sqrt(n_features) candidates per split.
func DefaultForestParams() ForestParams {
	return ForestParams{
		NEstimators:     100,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		ClassWeight:     ClassWeightBalanced,
		Bootstrap:       true,
		Seed:            42,
	}
}

// RandomForest averages the class distributions of bootstrapped decision trees.
type RandomForest struct {
	Params    ForestParams
	Trees     []*DecisionTree
	NClasses  int
	NFeatures int
}

func NewRandomForest(params ForestParams) *RandomForest {
	return &RandomForest{Params: params}
}

func (f *RandomForest) Fit(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if f.Params.NEstimators <= 0 {
		return errors.New("n_estimators must be positive")
	}
	nFeatures := len(features[0])
	for i, row := range features {
		if len(row) != nFeatures {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), nFeatures)
		}
	}
	for i, l := range labels {
		if l < 0 {
			return fmt.Errorf("row %d has negative label %d", i, l)
		}
	}

	nClasses := numClasses(labels)
	base := sampleWeights(labels, nClasses, f.Params.ClassWeight)

	treeParams := TreeParams{
		MaxDepth:        f.Params.MaxDepth,
		MinSamplesSplit: f.Params.MinSamplesSplit,
		MinSamplesLeaf:  f.Params.MinSamplesLeaf,
		MaxFeatures:     f.Params.MaxFeatures,
	}
	if treeParams.MaxFeatures <= 0 {
		treeParams.MaxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(nFeatures)))))
	}

	// Per-tree seeds are drawn up front so the fitted forest does not depend
	// on worker scheduling.
	master := rand.New(rand.NewSource(f.Params.Seed))
	seeds := make([]int64, f.Params.NEstimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*DecisionTree, f.Params.NEstimators)
	errs := make([]error, f.Params.NEstimators)

	workers := f.Params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				trees[t], errs[t] = f.fitTree(features, labels, base, nClasses, treeParams, seeds[t])
			}
		}()
	}
	for t := range trees {
		jobs <- t
	}
	close(jobs)
	wg.Wait()

	for t, err := range errs {
		if err != nil {
			return fmt.Errorf("tree %d: %w", t, err)
		}
	}

	f.Trees = trees
	f.NClasses = nClasses
	f.NFeatures = nFeatures
	return nil
}

func (f *RandomForest) fitTree(features [][]float64, labels []int, base []float64, nClasses int, params TreeParams, seed int64) (*DecisionTree, error) {
	rng := rand.New(rand.NewSource(seed))
	n := len(features)

	weights := make([]float64, n)
	rows := make([]int, 0, n)
	if f.Params.Bootstrap {
		draws := n
		if f.Params.MaxSamples > 0 && f.Params.MaxSamples < 1 {
			draws = int(math.Max(1, math.Round(f.Params.MaxSamples*float64(n))))
		}
		counts := make([]int, n)
		for i := 0; i < draws; i++ {
			counts[rng.Intn(n)]++
		}
		for i, c := range counts {
			if c == 0 {
				continue
			}
			weights[i] = base[i] * float64(c)
			rows = append(rows, i)
		}
	} else {
		copy(weights, base)
		for i := range features {
			rows = append(rows, i)
		}
	}

	tree := &DecisionTree{}
	if err := tree.fit(features, labels, weights, rows, nClasses, params, rng); err != nil {
		return nil, err
	}
	return tree, nil
}

// PredictProba averages the per-tree class distributions.
func (f *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if len(features) != f.NFeatures {
		return nil, fmt.Errorf("expected %d features, got %d", f.NFeatures, len(features))
	}
	proba := make([]float64, f.NClasses)
	for _, tree := range f.Trees {
		p, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		for c := range proba {
			proba[c] += p[c]
		}
	}
	for c := range proba {
		proba[c] /= float64(len(f.Trees))
	}
	return proba, nil
}

// Predict returns the most probable class and its probability. Ties go to
// the lower class.
func (f *RandomForest) Predict(features []float64) (int, float64, error) {
	proba, err := f.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	label := argmax(proba)
	return label, proba[label], nil
}

// FeatureImportances returns the share of splits that used each feature.
func (f *RandomForest) FeatureImportances() []float64 {
	importances := make([]float64, f.NFeatures)
	var splits float64
	for _, tree := range f.Trees {
		for _, node := range tree.Nodes {
			if node.IsLeaf || node.FeatureIdx < 0 || node.FeatureIdx >= f.NFeatures {
				continue
			}
			importances[node.FeatureIdx]++
			splits++
		}
	}
	if splits > 0 {
		for i := range importances {
			importances[i] /= splits
		}
	}
	return importances
}

// sampleWeights expands class weights to one weight per row. Balanced weights
// are n_samples / (n_present_classes * class_count).
func sampleWeights(labels []int, nClasses int, mode string) []float64 {
	weights := make([]float64, len(labels))
	if mode != ClassWeightBalanced {
		for i := range weights {
			weights[i] = 1
		}
		return weights
	}

	counts := make([]int, nClasses)
	for _, l := range labels {
		counts[l]++
	}
	present := 0
	for _, c := range counts {
		if c > 0 {
			present++
		}
	}
	classWeight := make([]float64, nClasses)
	for c, count := range counts {
		if count > 0 {
			classWeight[c] = float64(len(labels)) / float64(present*count)
		}
	}
	for i, l := range labels {
		weights[i] = classWeight[l]
	}
	return weights
}
