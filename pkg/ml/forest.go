package ml

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ortho-predict/internal/domain"
)

// RandomForest is a bagged ensemble of CART trees with soft voting.
type RandomForest struct {
	Params      Params          `json:"params"`
	RandomState uint64          `json:"random_state"`
	NClasses    int             `json:"n_classes"`
	NFeatures   int             `json:"n_features"`
	Trees       []*DecisionTree `json:"trees"`
}

// NewRandomForest returns an unfitted forest.
func NewRandomForest(params Params, randomState uint64) *RandomForest {
	return &RandomForest{Params: params, RandomState: randomState}
}

// treeRNG derives the generator for tree i so results do not depend on the
// order trees are grown in.
func treeRNG(seed uint64, i int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(i)+1))
}

// Fit grows the trees on X and labels y in [0, nClasses).
func (f *RandomForest) Fit(ctx context.Context, X *mat.Dense, y []int, nClasses int) error {
	if err := f.Params.Validate(); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if rows == 0 || len(y) == 0 {
		return fmt.Errorf("forest: %w", domain.ErrEmptyDataset)
	}
	if rows != len(y) {
		return fmt.Errorf("forest: %d rows but %d labels", rows, len(y))
	}
	for _, label := range y {
		if label < 0 || label >= nClasses {
			return fmt.Errorf("forest: label %d outside [0, %d)", label, nClasses)
		}
	}

	f.NClasses = nClasses
	f.NFeatures = cols
	f.Trees = make([]*DecisionTree, 0, f.Params.NEstimators)
	for i := 0; i < f.Params.NEstimators; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rng := treeRNG(f.RandomState, i)
		samples := make([]int, rows)
		if f.Params.Bootstrap {
			for j := range samples {
				samples[j] = rng.IntN(rows)
			}
		} else {
			for j := range samples {
				samples[j] = j
			}
		}
		tree, err := FitTree(f.Params, X, y, nClasses, samples, rng)
		if err != nil {
			return fmt.Errorf("forest: tree %d: %w", i, err)
		}
		f.Trees = append(f.Trees, tree)
	}
	return nil
}

// PredictRowProba averages the leaf distributions of every tree.
func (f *RandomForest) PredictRowProba(row []float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("forest: %w", domain.ErrNotFitted)
	}
	if len(row) != f.NFeatures {
		return nil, fmt.Errorf("forest: %w: got %d, want %d", domain.ErrFeatureLength, len(row), f.NFeatures)
	}
	proba := make([]float64, f.NClasses)
	for _, t := range f.Trees {
		floats.Add(proba, t.PredictProba(row))
	}
	floats.Scale(1/float64(len(f.Trees)), proba)
	return proba, nil
}

// PredictRow returns the most probable class of one feature vector. Ties go
// to the lowest class code.
func (f *RandomForest) PredictRow(row []float64) (int, error) {
	proba, err := f.PredictRowProba(row)
	if err != nil {
		return -1, err
	}
	return floats.MaxIdx(proba), nil
}

// Predict classifies every row of X.
func (f *RandomForest) Predict(X mat.Matrix) ([]int, error) {
	rows, _ := X.Dims()
	out := make([]int, rows)
	row := make([]float64, f.NFeatures)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		class, err := f.PredictRow(row)
		if err != nil {
			return nil, err
		}
		out[i] = class
	}
	return out, nil
}
