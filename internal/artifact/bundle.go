// Package artifact persists the trained model bundle: the forest together
// with the encoders and scaler needed to apply it in a fresh process.
package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/ortho-predict/internal/domain"
	"github.com/ortho-predict/pkg/ml"
)

// FormatVersion is bumped whenever the bundle layout changes.
const FormatVersion = 1

// Feature names in model input order.
const (
	FeatureAge      = "age"
	FeatureGender   = "gender"
	FeatureSeverity = "severity"
)

// FeatureNames lists the model inputs in order.
var FeatureNames = []string{FeatureAge, FeatureGender, FeatureSeverity}

// Bundle is everything the recommender needs to reproduce a prediction.
type Bundle struct {
	Version          int                `json:"version"`
	CreatedAt        time.Time          `json:"created_at"`
	RunID            string             `json:"run_id,omitempty"`
	FeatureNames     []string           `json:"feature_names"`
	Forest           *ml.RandomForest   `json:"forest"`
	Scaler           *ml.StandardScaler `json:"scaler"`
	GenderEncoder    *ml.LabelEncoder   `json:"gender_encoder"`
	SeverityEncoder  *ml.LabelEncoder   `json:"severity_encoder"`
	ConditionEncoder *ml.LabelEncoder   `json:"condition_encoder"`
}

var _ domain.ConditionPredictor = (*Bundle)(nil)

// Validate checks the bundle is complete and self-consistent.
func (b *Bundle) Validate() error {
	switch {
	case b.Version != FormatVersion:
		return fmt.Errorf("bundle version %d, want %d", b.Version, FormatVersion)
	case b.Forest == nil || len(b.Forest.Trees) == 0:
		return fmt.Errorf("bundle forest: %w", domain.ErrNotFitted)
	case b.Scaler == nil || len(b.Scaler.Mean) == 0:
		return fmt.Errorf("bundle scaler: %w", domain.ErrNotFitted)
	case b.GenderEncoder == nil || b.SeverityEncoder == nil || b.ConditionEncoder == nil:
		return fmt.Errorf("bundle encoders: %w", domain.ErrNotFitted)
	case b.Forest.NFeatures != len(b.Scaler.Mean):
		return fmt.Errorf("bundle: forest expects %d features, scaler has %d: %w",
			b.Forest.NFeatures, len(b.Scaler.Mean), domain.ErrFeatureLength)
	case b.Forest.NClasses != b.ConditionEncoder.Len():
		return fmt.Errorf("bundle: forest has %d classes, condition encoder has %d",
			b.Forest.NClasses, b.ConditionEncoder.Len())
	}
	return nil
}

// PredictCondition scales a raw feature vector and returns the predicted
// condition label.
func (b *Bundle) PredictCondition(features []float64) (string, error) {
	scaled, err := b.Scaler.TransformRow(features)
	if err != nil {
		return "", err
	}
	code, err := b.Forest.PredictRow(scaled)
	if err != nil {
		return "", err
	}
	return b.ConditionEncoder.Label(code)
}

// Save writes the bundle as gzip-compressed JSON, replacing path atomically.
func Save(path string, b *Bundle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".bundle-*")
	if err != nil {
		return fmt.Errorf("creating temp bundle: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp bundle: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("installing bundle: %w", err)
	}
	return nil
}

// Encode writes the compressed bundle to w.
func Encode(w io.Writer, b *Bundle) error {
	zw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(zw).Encode(b); err != nil {
		zw.Close()
		return fmt.Errorf("encoding bundle: %w", err)
	}
	return zw.Close()
}

// Load reads and validates the bundle at path.
func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("model bundle %s: %w", path, domain.ErrMissingInput)
		}
		return nil, fmt.Errorf("opening model bundle: %w", err)
	}
	defer f.Close()
	return Decode(bufio.NewReader(f))
}

// Decode reads a compressed bundle from r.
func Decode(r io.Reader) (*Bundle, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}
	defer zr.Close()

	var b Bundle
	if err := json.NewDecoder(zr).Decode(&b); err != nil {
		return nil, fmt.Errorf("decoding bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}
