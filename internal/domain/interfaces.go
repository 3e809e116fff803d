package domain

import (
	"context"
)

// ConditionPredictor predicts a condition label from a raw feature vector
// (age, gender code, severity code).
type ConditionPredictor interface {
	PredictCondition(features []float64) (string, error)
}

// TreatmentRecommender turns a raw feature vector into a recommendation
type TreatmentRecommender interface {
	Recommend(ctx context.Context, features []float64) (*Recommendation, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetTrainingConfig() *TrainingConfig
	GetStoreConfig() *StoreConfig
	Reload() error
	Validate() error
	DataPath(name string) string
}
