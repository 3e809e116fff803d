// Package runstore records pipeline run history: every command invocation,
// its outcome and training metrics, and the recommendations it produced.
package runstore

import (
	"context"
	"io"
	"time"

	"github.com/goccy/go-json"
)

// Status is the outcome of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one invocation of a pipeline command.
type Run struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
	Rows       int       `json:"rows"`                  // merged training rows
	BestParams string    `json:"best_params,omitempty"` // selected hyperparameters
	BestScore  float64   `json:"best_cv_score"`
	Accuracy   float64   `json:"accuracy"`
	ModelPath  string    `json:"model_path,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// NewRun starts a run record for command.
func NewRun(id, command string) *Run {
	return &Run{
		ID:        id,
		Command:   command,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

// Finish marks the run complete. A non-nil err marks it failed.
func (r *Run) Finish(err error) {
	r.FinishedAt = time.Now().UTC()
	r.DurationMS = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	if err != nil {
		r.Status = StatusFailed
		r.Error = err.Error()
		return
	}
	r.Status = StatusSucceeded
}

// RecommendationRecord is a stored recommendation.
type RecommendationRecord struct {
	ID         int64     `json:"id,omitempty"`
	RunID      string    `json:"run_id"`
	Features   []float64 `json:"features"`
	Condition  string    `json:"condition"`
	Procedures []string  `json:"procedures"`
	Implants   []string  `json:"implants"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store defines the interface for run history storage.
type Store interface {
	// SaveRun inserts a run or updates the run with the same ID.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun returns the run with id, or domain.ErrNotFound.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs newest first with pagination.
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	// CountRuns returns the number of stored runs.
	CountRuns(ctx context.Context) (int64, error)

	// SaveRecommendation stores a recommendation and sets its ID.
	SaveRecommendation(ctx context.Context, rec *RecommendationRecord) error

	// ListRecommendations returns the recommendations of a run, oldest first.
	ListRecommendations(ctx context.Context, runID string) ([]*RecommendationRecord, error)

	// ExportJSON writes every run and its recommendations to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Close releases the store's resources.
	Close() error
}

// RunExport is the JSON export format.
type RunExport struct {
	Version         string                  `json:"version"`
	ExportedAt      time.Time               `json:"exported_at"`
	Count           int                     `json:"count"`
	Runs            []*Run                  `json:"runs"`
	Recommendations []*RecommendationRecord `json:"recommendations"`
}

const exportVersion = "1.0"

// maxExportLimit is the maximum number of runs exported at once.
const maxExportLimit = 1000000

// exportJSON builds the export document from any store.
func exportJSON(ctx context.Context, s Store, writer io.Writer) error {
	runs, err := s.ListRuns(ctx, maxExportLimit, 0)
	if err != nil {
		return err
	}
	export := &RunExport{
		Version:         exportVersion,
		ExportedAt:      time.Now().UTC(),
		Count:           len(runs),
		Runs:            runs,
		Recommendations: []*RecommendationRecord{},
	}
	for _, run := range runs {
		recs, err := s.ListRecommendations(ctx, run.ID)
		if err != nil {
			return err
		}
		export.Recommendations = append(export.Recommendations, recs...)
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*Run, error) {
	run := &Run{}
	var status string
	err := s.Scan(
		&run.ID, &run.Command, &status, &run.StartedAt, &run.FinishedAt, &run.DurationMS,
		&run.Rows, &run.BestParams, &run.BestScore, &run.Accuracy, &run.ModelPath, &run.Error,
	)
	if err != nil {
		return nil, err
	}
	run.Status = Status(status)
	return run, nil
}

func scanRecommendation(s scanner) (*RecommendationRecord, error) {
	rec := &RecommendationRecord{}
	var features, procedures, implants string
	err := s.Scan(&rec.ID, &rec.RunID, &features, &rec.Condition, &procedures, &implants, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(features), &rec.Features); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(procedures), &rec.Procedures); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(implants), &rec.Implants); err != nil {
		return nil, err
	}
	return rec, nil
}

// encodeLists renders the list columns of a recommendation.
func encodeLists(rec *RecommendationRecord) (features, procedures, implants string, err error) {
	var b []byte
	if b, err = json.Marshal(rec.Features); err != nil {
		return
	}
	features = string(b)
	if b, err = json.Marshal(rec.Procedures); err != nil {
		return
	}
	procedures = string(b)
	if b, err = json.Marshal(rec.Implants); err != nil {
		return
	}
	implants = string(b)
	return
}
