package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ortho-predict/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on an open connection. It expects the
// schema to exist already (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// SaveRun inserts or updates a run.
func (s *PostgresStore) SaveRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			duration_ms = EXCLUDED.duration_ms,
			rows_merged = EXCLUDED.rows_merged,
			best_params = EXCLUDED.best_params,
			best_score = EXCLUDED.best_score,
			accuracy = EXCLUDED.accuracy,
			model_path = EXCLUDED.model_path,
			error = EXCLUDED.error
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Command, string(run.Status), run.StartedAt, run.FinishedAt, run.DurationMS,
		run.Rows, run.BestParams, run.BestScore, run.Accuracy, run.ModelPath, run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first with pagination.
func (s *PostgresStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var result []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// CountRuns returns the total number of runs.
func (s *PostgresStore) CountRuns(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

// SaveRecommendation stores a recommendation.
func (s *PostgresStore) SaveRecommendation(ctx context.Context, rec *RecommendationRecord) error {
	features, procedures, implants, err := encodeLists(rec)
	if err != nil {
		return fmt.Errorf("failed to encode recommendation: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO recommendations (run_id, features, condition, procedures, implants, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		rec.RunID, features, rec.Condition, procedures, implants, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to save recommendation: %w", err)
	}
	return nil
}

// ListRecommendations returns the recommendations of a run.
func (s *PostgresStore) ListRecommendations(ctx context.Context, runID string) ([]*RecommendationRecord, error) {
	query := `
		SELECT id, run_id, features, condition, procedures, implants, created_at
		FROM recommendations
		WHERE run_id = $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	defer rows.Close()

	var result []*RecommendationRecord
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// ExportJSON exports all runs to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// Close closes the underlying connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
