// Package recommend predicts a condition for a patient feature vector and
// looks up the procedures and implants to suggest for it.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ortho-predict/internal/artifact"
	"github.com/ortho-predict/internal/dataset"
	"github.com/ortho-predict/internal/domain"
)

// Fallback entries used when nothing matches the predicted condition.
const (
	NoProcedureMapping   = "No condition-related procedure mapping available."
	NoCompatibleImplants = "No compatible implants found."
)

// FeatureCount is the length of the input vector: age, gender code and
// severity code.
const FeatureCount = 3

// ProcedureMap is the static condition to procedure lookup.
var ProcedureMap = map[string][]string{
	domain.ConditionOsteoarthritis:      {"Knee Arthroscopy", "Knee Replacement", "Physical Therapy"},
	domain.ConditionRheumatoidArthritis: {"Joint Replacement", "Medication", "Physical Therapy"},
	domain.ConditionFracture:            {"Fracture Fixation", "Orthopedic Surgery", "Physical Therapy"},
}

// Recommender turns feature vectors into recommendations. It is safe for
// concurrent use.
type Recommender struct {
	bundle   *artifact.Bundle
	implants []domain.Implant
	logger   *logrus.Logger
}

var _ domain.TreatmentRecommender = (*Recommender)(nil)

// New creates a recommender from an in-memory bundle and implant catalogue.
func New(bundle *artifact.Bundle, implants []domain.Implant, logger *logrus.Logger) (*Recommender, error) {
	if bundle == nil {
		return nil, domain.NewPipelineError(domain.ErrCodeModel, domain.StageRecommend,
			"model bundle is required", domain.ErrNotFitted)
	}
	if err := bundle.Validate(); err != nil {
		return nil, domain.NewPipelineError(domain.ErrCodeModel, domain.StageRecommend,
			"invalid model bundle", err)
	}
	return &Recommender{bundle: bundle, implants: implants, logger: logger}, nil
}

// Load builds a recommender from the persisted bundle and the cleaned implant
// table. A nil cache loads the bundle directly.
func Load(ctx context.Context, modelPath, implantsPath string, cache *artifact.Cache, logger *logrus.Logger) (*Recommender, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var bundle *artifact.Bundle
	var err error
	if cache != nil {
		bundle, err = cache.Get(modelPath)
	} else {
		bundle, err = artifact.Load(modelPath)
	}
	if err != nil {
		code := domain.ErrCodeModel
		if errors.Is(err, domain.ErrMissingInput) {
			code = domain.ErrCodeMissingInput
		}
		return nil, domain.NewPipelineError(code, domain.StageRecommend, "cannot load model", err)
	}

	implants, err := LoadImplants(implantsPath)
	if err != nil {
		return nil, err
	}
	return New(bundle, implants, logger)
}

// LoadImplants reads an implant table.
func LoadImplants(path string) ([]domain.Implant, error) {
	t, err := dataset.ReadCSV(path, dataset.Implants)
	if err != nil {
		code := domain.ErrCodeSchema
		if errors.Is(err, domain.ErrMissingInput) {
			code = domain.ErrCodeMissingInput
		}
		return nil, domain.NewPipelineError(code, domain.StageRecommend, "cannot load implants", err)
	}
	implants, err := dataset.DecodeImplants(t)
	if err != nil {
		return nil, domain.NewPipelineError(domain.ErrCodeSchema, domain.StageRecommend, "cannot decode implants", err)
	}
	return implants, nil
}

// Bundle returns the model bundle in use.
func (r *Recommender) Bundle() *artifact.Bundle {
	return r.bundle
}

// Recommend predicts the condition for features and attaches procedures and
// compatible implants.
func (r *Recommender) Recommend(ctx context.Context, features []float64) (*domain.Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(features) != FeatureCount {
		return nil, domain.NewPipelineError(domain.ErrCodeInvalidInput, domain.StageRecommend,
			fmt.Sprintf("expected %d features, got %d", FeatureCount, len(features)), domain.ErrFeatureLength)
	}

	condition, err := r.bundle.PredictCondition(features)
	if err != nil {
		return nil, domain.NewPipelineError(domain.ErrCodeModel, domain.StageRecommend, "prediction failed", err)
	}

	rec := &domain.Recommendation{
		Condition:  condition,
		Procedures: Procedures(condition),
		Implants:   CompatibleImplants(r.implants, condition),
		Features:   slices.Clone(features),
	}
	r.logger.WithFields(logrus.Fields{
		"features":  features,
		"condition": condition,
		"implants":  len(rec.Implants),
	}).Debug("Recommendation produced")
	return rec, nil
}

// Procedures returns the procedures mapped to condition or the fallback entry.
func Procedures(condition string) []string {
	if procs, ok := ProcedureMap[condition]; ok {
		return slices.Clone(procs)
	}
	return []string{NoProcedureMapping}
}

// CompatibleImplants returns the implant types with a compatibility entry
// containing condition, in catalogue order, or the fallback entry.
func CompatibleImplants(implants []domain.Implant, condition string) []string {
	var out []string
	for _, im := range implants {
		for _, c := range im.CompatibilityConditions {
			if strings.Contains(c, condition) {
				out = append(out, im.Type)
				break
			}
		}
	}
	if len(out) == 0 {
		return []string{NoCompatibleImplants}
	}
	return out
}

// FeatureVector encodes raw patient attributes with the bundle encoders.
// Gender and severity accept either their label or a numeric code.
func (r *Recommender) FeatureVector(age int, gender, severity string) ([]float64, error) {
	g, err := encode(r.bundle.GenderEncoder.Classes, gender)
	if err != nil {
		return nil, domain.NewPipelineError(domain.ErrCodeInvalidInput, domain.StageRecommend, "unknown gender", err)
	}
	s, err := encode(r.bundle.SeverityEncoder.Classes, strings.ToLower(severity))
	if err != nil {
		return nil, domain.NewPipelineError(domain.ErrCodeInvalidInput, domain.StageRecommend, "unknown severity", err)
	}
	return []float64{float64(age), float64(g), float64(s)}, nil
}

func encode(classes []string, value string) (int, error) {
	value = strings.TrimSpace(value)
	if code, err := strconv.Atoi(value); err == nil {
		if code < 0 || code >= len(classes) {
			return -1, fmt.Errorf("%w: code %d", domain.ErrUnknownLabel, code)
		}
		return code, nil
	}
	for i, c := range classes {
		if strings.EqualFold(c, value) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", domain.ErrUnknownLabel, value)
}
