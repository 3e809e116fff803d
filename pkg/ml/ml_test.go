package ml

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ortho-predict/internal/domain"
)

// separable returns n rows of two features where class is x0 > 0.
func separable(n int, seed uint64) (*mat.Dense, []int) {
	rng := rand.New(rand.NewPCG(seed, 1))
	X := mat.NewDense(n, 2, nil)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		x0 := rng.Float64()*2 - 1
		if x0 > -0.05 && x0 < 0.05 {
			x0 = 0.5
		}
		X.Set(i, 0, x0)
		X.Set(i, 1, rng.Float64())
		if x0 > 0 {
			y[i] = 1
		}
	}
	return X, y
}

func TestLabelEncoder(t *testing.T) {
	le := NewLabelEncoder([]string{"Male", "Female", "Male"})
	assert.Equal(t, []string{"Female", "Male"}, le.Classes)

	codes, err := le.Transform([]string{"Male", "Female"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, codes)

	labels, err := le.InverseTransform(codes)
	require.NoError(t, err)
	assert.Equal(t, []string{"Male", "Female"}, labels)

	_, err = le.Code("Other")
	assert.ErrorIs(t, err, domain.ErrUnknownLabel)
	_, err = le.Label(5)
	assert.ErrorIs(t, err, domain.ErrUnknownLabel)

	// zero value rebuilt from persisted classes
	restored := &LabelEncoder{Classes: le.Classes}
	code, err := restored.Code("Male")
	require.NoError(t, err)
	assert.Equal(t, 1, code)
}

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})
	var s StandardScaler
	out, err := s.FitTransform(X)
	require.NoError(t, err)

	col := mat.Col(nil, 0, out)
	mean, std := stat.PopMeanStdDev(col, nil)
	assert.InDelta(t, 0, mean, 1e-12)
	assert.InDelta(t, 1, std, 1e-12)

	// constant column is centered only
	assert.Equal(t, []float64{0, 0, 0, 0}, mat.Col(nil, 1, out))

	row, err := s.TransformRow([]float64{2.5, 5})
	require.NoError(t, err)
	assert.InDelta(t, 0, row[0], 1e-12)

	_, err = s.TransformRow([]float64{1})
	assert.ErrorIs(t, err, domain.ErrFeatureLength)

	var unfitted StandardScaler
	_, err = unfitted.TransformRow([]float64{1, 2})
	assert.ErrorIs(t, err, domain.ErrNotFitted)
}

func TestStandardScaler_FittedParameters(t *testing.T) {
	X := mat.NewDense(5, 3, []float64{
		20, 0, 1,
		35, 1, 1,
		50, 1, 1,
		65, 0, 1,
		79, 1, 1,
	})
	var s StandardScaler
	require.NoError(t, s.Fit(X))
	require.Len(t, s.Mean, 3)

	for j := 0; j < 2; j++ {
		mean, std := stat.PopMeanStdDev(mat.Col(nil, j, X), nil)
		assert.InDelta(t, mean, s.Mean[j], 1e-9)
		assert.InDelta(t, std, s.Scale[j], 1e-9)
	}
	assert.InDelta(t, 1, s.Mean[2], 1e-12)
	assert.Equal(t, 1.0, s.Scale[2])
}

func TestParams(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, 1, p.featuresPerSplit(3))
	assert.Equal(t, "{n_estimators: 100, max_depth: None, min_samples_split: 2, min_samples_leaf: 1, max_features: sqrt, bootstrap: true}", p.String())

	p.MaxFeatures = MaxFeaturesAll
	assert.Equal(t, 3, p.featuresPerSplit(3))

	p.MinSamplesSplit = 1
	assert.Error(t, p.Validate())
	p = DefaultParams()
	p.MaxFeatures = "auto"
	assert.Error(t, p.Validate())
}

func TestParamGrid_Sample(t *testing.T) {
	g := DefaultGrid()
	require.Equal(t, 72, g.Size())
	assert.Equal(t, Params{NEstimators: 100, MaxDepth: 0, MinSamplesSplit: 2, MinSamplesLeaf: 1, MaxFeatures: "sqrt", Bootstrap: true}, g.At(0))
	assert.Equal(t, Params{NEstimators: 300, MaxDepth: 20, MinSamplesSplit: 5, MinSamplesLeaf: 2, MaxFeatures: "log2", Bootstrap: true}, g.At(71))

	sample := g.Sample(10, rand.New(rand.NewPCG(42, 0)))
	require.Len(t, sample, 10)
	seen := map[Params]bool{}
	for _, p := range sample {
		assert.False(t, seen[p], "duplicate candidate %s", p)
		seen[p] = true
	}

	again := g.Sample(10, rand.New(rand.NewPCG(42, 0)))
	assert.Equal(t, sample, again)

	small := ParamGrid{
		NEstimators:     []int{5},
		MaxDepth:        []int{0, 2},
		MinSamplesSplit: []int{2},
		MinSamplesLeaf:  []int{1},
		MaxFeatures:     []string{MaxFeaturesAll},
		Bootstrap:       []bool{true},
	}
	assert.Len(t, small.Sample(10, rand.New(rand.NewPCG(1, 0))), 2)
	assert.Empty(t, ParamGrid{}.Sample(3, rand.New(rand.NewPCG(1, 0))))
}

func TestFitTree_RespectsDepthAndLeafSize(t *testing.T) {
	X, y := separable(200, 3)
	samples := make([]int, 200)
	for i := range samples {
		samples[i] = i
	}

	p := DefaultParams()
	p.MaxDepth = 2
	p.MaxFeatures = MaxFeaturesAll
	tree, err := FitTree(p, X, y, 2, samples, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	assert.LessOrEqual(t, tree.Depth, 2)

	p.MaxDepth = 0
	p.MinSamplesLeaf = 30
	tree, err = FitTree(p, X, y, 2, samples, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	// every leaf holds at least MinSamplesLeaf training rows
	leafCounts := map[int]int{}
	for i := 0; i < 200; i++ {
		node := 0
		for !tree.Nodes[node].IsLeaf() {
			n := tree.Nodes[node]
			if X.At(i, n.Feature) <= n.Threshold {
				node = n.Left
			} else {
				node = n.Right
			}
		}
		leafCounts[node]++
	}
	for leaf, c := range leafCounts {
		assert.GreaterOrEqual(t, c, 30, "leaf %d", leaf)
	}
}

func TestFitTree_PureNodeIsLeaf(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	tree, err := FitTree(DefaultParams(), X, []int{1, 1, 1}, 2, []int{0, 1, 2}, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, []float64{0, 1}, tree.PredictProba([]float64{2}))
}

func TestRandomForest_Separable(t *testing.T) {
	X, y := separable(300, 5)
	p := DefaultParams()
	p.NEstimators = 20
	f := NewRandomForest(p, 42)
	require.NoError(t, f.Fit(context.Background(), X, y, 2))
	assert.Len(t, f.Trees, 20)

	pred, err := f.Predict(X)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, AccuracyScore(y, pred), 0.95)

	proba, err := f.PredictRowProba([]float64{0.9, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 1, proba[0]+proba[1], 1e-9)
	assert.Greater(t, proba[1], proba[0])

	_, err = f.PredictRow([]float64{1})
	assert.ErrorIs(t, err, domain.ErrFeatureLength)
}

func TestRandomForest_Deterministic(t *testing.T) {
	X, y := separable(150, 9)
	p := DefaultParams()
	p.NEstimators = 10

	a := NewRandomForest(p, 7)
	b := NewRandomForest(p, 7)
	require.NoError(t, a.Fit(context.Background(), X, y, 2))
	require.NoError(t, b.Fit(context.Background(), X, y, 2))
	assert.Equal(t, a.Trees, b.Trees)
}

func TestRandomForest_Errors(t *testing.T) {
	f := NewRandomForest(DefaultParams(), 1)
	_, err := f.PredictRow([]float64{1, 2})
	assert.ErrorIs(t, err, domain.ErrNotFitted)

	X := mat.NewDense(2, 1, []float64{1, 2})
	assert.Error(t, f.Fit(context.Background(), X, []int{0, 3}, 2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.Fit(ctx, X, []int{0, 1}, 2), context.Canceled)
}

func TestTrainTestSplit(t *testing.T) {
	train, test, err := TrainTestSplit(101, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test, 21)
	assert.Len(t, train, 80)

	seen := map[int]bool{}
	for _, i := range append(append([]int{}, train...), test...) {
		assert.False(t, seen[i])
		seen[i] = true
	}
	assert.Len(t, seen, 101)

	train2, test2, err := TrainTestSplit(101, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)

	_, _, err = TrainTestSplit(1, 0.2, 42)
	assert.ErrorIs(t, err, domain.ErrEmptyDataset)
	_, _, err = TrainTestSplit(10, 1.5, 42)
	assert.Error(t, err)
}

func TestStratifiedKFold(t *testing.T) {
	y := []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 2, 2, 2}
	folds, err := StratifiedKFold(y, 3)
	require.NoError(t, err)
	require.Len(t, folds, 3)

	covered := map[int]int{}
	for _, f := range folds {
		assert.Len(t, f.Train, len(y)-len(f.Test))
		classes := map[int]int{}
		for _, i := range f.Test {
			covered[i]++
			classes[y[i]]++
		}
		assert.Equal(t, 2, classes[0])
		assert.Equal(t, 1, classes[1])
		assert.Equal(t, 1, classes[2])
	}
	assert.Len(t, covered, len(y))
	for i, c := range covered {
		assert.Equal(t, 1, c, "sample %d tested %d times", i, c)
	}

	_, err = StratifiedKFold([]int{0}, 3)
	assert.ErrorIs(t, err, domain.ErrEmptyDataset)
	_, err = StratifiedKFold(y, 1)
	assert.Error(t, err)
}

func smallGrid() ParamGrid {
	return ParamGrid{
		NEstimators:     []int{5, 10},
		MaxDepth:        []int{0, 1},
		MinSamplesSplit: []int{2},
		MinSamplesLeaf:  []int{1},
		MaxFeatures:     []string{MaxFeaturesAll},
		Bootstrap:       []bool{true},
	}
}

func TestRandomizedSearch(t *testing.T) {
	X, y := separable(120, 11)
	s := &RandomizedSearch{Grid: smallGrid(), NIter: 3, CV: 3, NJobs: 2, Seed: 42}

	res, err := s.Fit(context.Background(), X, y, 2)
	require.NoError(t, err)
	require.Len(t, res.CVResults, 3)
	require.NotNil(t, res.BestEstimator)
	assert.Equal(t, res.CVResults[res.BestIndex].Params, res.BestParams)
	assert.Equal(t, res.BestParams, res.BestEstimator.Params)

	for _, r := range res.CVResults {
		assert.Len(t, r.FoldScores, 3)
		assert.LessOrEqual(t, r.MeanScore, res.BestScore)
		assert.GreaterOrEqual(t, r.RankByScore, 1)
	}
	assert.Equal(t, 1, res.CVResults[res.BestIndex].RankByScore)

	again, err := (&RandomizedSearch{Grid: smallGrid(), NIter: 3, CV: 3, NJobs: -1, Seed: 42}).Fit(context.Background(), X, y, 2)
	require.NoError(t, err)
	assert.Equal(t, res.CVResults, again.CVResults)
	assert.Equal(t, res.BestEstimator.Trees, again.BestEstimator.Trees)
}

func TestRandomizedSearch_EmptySpace(t *testing.T) {
	X, y := separable(30, 1)
	_, err := (&RandomizedSearch{Grid: ParamGrid{}, NIter: 3, CV: 3}).Fit(context.Background(), X, y, 2)
	assert.ErrorIs(t, err, domain.ErrEmptySearchSpace)

	_, err = (&RandomizedSearch{Grid: smallGrid(), NIter: 0, CV: 3}).Fit(context.Background(), X, y, 2)
	assert.ErrorIs(t, err, domain.ErrEmptySearchSpace)
}

func TestRankCandidates(t *testing.T) {
	results := []CVResult{{MeanScore: 0.5}, {MeanScore: 0.9}, {MeanScore: 0.5}, {MeanScore: 0.7}}
	rankCandidates(results)
	assert.Equal(t, 3, results[0].RankByScore)
	assert.Equal(t, 1, results[1].RankByScore)
	assert.Equal(t, 3, results[2].RankByScore)
	assert.Equal(t, 2, results[3].RankByScore)
}

func TestClassificationReport(t *testing.T) {
	yTrue := []int{0, 0, 1, 1, 2}
	yPred := []int{0, 1, 1, 1, 0}
	r := NewClassificationReport(yTrue, yPred, []string{"a", "b", "c"})

	assert.InDelta(t, 0.6, r.Accuracy, 1e-12)
	require.Len(t, r.Classes, 3)

	a := r.Classes[0]
	assert.InDelta(t, 0.5, a.Precision, 1e-12)
	assert.InDelta(t, 0.5, a.Recall, 1e-12)
	assert.Equal(t, 2, a.Support)

	c := r.Classes[2]
	assert.Zero(t, c.Precision)
	assert.Zero(t, c.Recall)
	assert.Zero(t, c.F1)

	assert.Equal(t, 5, r.MacroAvg.Support)
	assert.InDelta(t, (0.5+2.0/3.0+0)/3, r.MacroAvg.Precision, 1e-12)

	out := r.String()
	assert.Contains(t, out, "precision")
	assert.Contains(t, out, "weighted avg")
	assert.Contains(t, out, "accuracy")
}
