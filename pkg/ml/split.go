package ml

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/ortho-predict/internal/domain"
)

// TrainTestSplit shuffles 0..n-1 with seed and returns disjoint train and
// test index sets. The test set holds ceil(n*testSize) rows.
func TrainTestSplit(n int, testSize float64, seed uint64) (train, test []int, err error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("split: need at least 2 rows, got %d: %w", n, domain.ErrEmptyDataset)
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("split: test size must be in (0, 1), got %v", testSize)
	}
	nTest := int(math.Ceil(float64(n) * testSize))
	if nTest >= n {
		nTest = n - 1
	}
	perm := rand.New(rand.NewPCG(seed, 0)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// Fold is one cross-validation split, as indices into the fitted data.
type Fold struct {
	Train []int
	Test  []int
}

// StratifiedKFold deals the samples of each class round-robin across k
// folds so every fold keeps roughly the class proportions of y.
func StratifiedKFold(y []int, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("kfold: need at least 2 folds, got %d", k)
	}
	if len(y) < k {
		return nil, fmt.Errorf("kfold: %d samples cannot fill %d folds: %w", len(y), k, domain.ErrEmptyDataset)
	}

	assign := make([]int, len(y))
	next := make(map[int]int)
	offset := 0
	for i, label := range y {
		pos, ok := next[label]
		if !ok {
			// stagger classes so small ones do not all land in fold 0
			pos = offset
			offset++
		}
		assign[i] = pos % k
		next[label] = pos + 1
	}

	folds := make([]Fold, k)
	for i, f := range assign {
		for j := range folds {
			if j == f {
				folds[j].Test = append(folds[j].Test, i)
			} else {
				folds[j].Train = append(folds[j].Train, i)
			}
		}
	}
	for i, f := range folds {
		if len(f.Test) == 0 || len(f.Train) == 0 {
			return nil, fmt.Errorf("kfold: fold %d is empty: %w", i, domain.ErrEmptyDataset)
		}
	}
	return folds, nil
}

// SelectRows copies the listed rows of X and y.
func SelectRows(X mat.Matrix, y []int, idx []int) (*mat.Dense, []int) {
	_, cols := X.Dims()
	out := mat.NewDense(len(idx), cols, nil)
	labels := make([]int, len(idx))
	row := make([]float64, cols)
	for i, r := range idx {
		mat.Row(row, r, X)
		out.SetRow(i, row)
		labels[i] = y[r]
	}
	return out, labels
}
