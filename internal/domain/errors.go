package domain

import (
	"fmt"
	"time"
)

// PipelineError represents a standardized stage failure
type PipelineError struct {
	Code      string    `json:"code"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Err       error     `json:"-"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Error codes for different failure scenarios
const (
	ErrCodeMissingInput = "MISSING_INPUT"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeSchema       = "SCHEMA_ERROR"
	ErrCodeTraining     = "TRAINING_ERROR"
	ErrCodeModel        = "MODEL_ERROR"
	ErrCodeStorage      = "STORAGE_ERROR"
)

// Pipeline stages
const (
	StageGenerate  = "generate"
	StageClean     = "clean"
	StageTrain     = "train"
	StageRecommend = "recommend"
)

// NewPipelineError creates a new PipelineError with timestamp
func NewPipelineError(code, stage, message string, err error) *PipelineError {
	return &PipelineError{
		Code:      code,
		Stage:     stage,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Err:       err,
	}
}
