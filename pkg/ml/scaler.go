package ml

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/scigo/preprocessing"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ortho-predict/internal/domain"
)

// StandardScaler standardizes features to zero mean and unit variance using
// the population standard deviation. Constant columns are only centered.
//
// Fitting is done by scigo's scaler; Mean and Scale are the fitted
// parameters kept for persistence.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit computes per-column mean and scale.
func (s *StandardScaler) Fit(X mat.Matrix) error {
	rows, cols := X.Dims()
	if rows == 0 {
		return fmt.Errorf("scaler: %w", domain.ErrEmptyDataset)
	}

	fitted := preprocessing.NewStandardScaler(true, true)
	if err := fitted.Fit(X); err != nil {
		return fmt.Errorf("scaler: fit: %w", err)
	}

	// Row 0 maps to -mean/scale and row 1 to (1-mean)/scale.
	basis := mat.NewDense(2, cols, nil)
	for j := 0; j < cols; j++ {
		basis.Set(1, j, 1)
	}
	t, err := fitted.Transform(basis)
	if err != nil {
		return fmt.Errorf("scaler: transform: %w", err)
	}

	s.Mean = make([]float64, cols)
	s.Scale = make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		t0, t1 := t.At(0, j), t.At(1, j)
		scale := 1 / (t1 - t0)
		if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
			// constant column
			mat.Col(col, j, X)
			s.Mean[j] = stat.Mean(col, nil)
			s.Scale[j] = 1
			continue
		}
		s.Mean[j] = -t0 * scale
		s.Scale[j] = scale
	}
	return nil
}

// Transform returns a standardized copy of X.
func (s *StandardScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if len(s.Mean) == 0 {
		return nil, fmt.Errorf("scaler: %w", domain.ErrNotFitted)
	}
	rows, cols := X.Dims()
	if rows == 0 {
		return nil, fmt.Errorf("scaler: %w", domain.ErrEmptyDataset)
	}
	if cols != len(s.Mean) {
		return nil, fmt.Errorf("scaler: %w: got %d, want %d", domain.ErrFeatureLength, cols, len(s.Mean))
	}
	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return out, nil
}

// FitTransform fits on X and returns the standardized copy.
func (s *StandardScaler) FitTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// TransformRow standardizes a single feature vector.
func (s *StandardScaler) TransformRow(row []float64) ([]float64, error) {
	X, err := s.Transform(mat.NewDense(1, len(row), append([]float64(nil), row...)))
	if err != nil {
		return nil, err
	}
	return X.RawRowView(0), nil
}
