package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ortho-predict/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens the run history database at dbPath, creating the file
// and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		command TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		rows_merged INTEGER NOT NULL DEFAULT 0,
		best_params TEXT NOT NULL DEFAULT '',
		best_score REAL NOT NULL DEFAULT 0,
		accuracy REAL NOT NULL DEFAULT 0,
		model_path TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS recommendations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		features TEXT NOT NULL,
		condition TEXT NOT NULL,
		procedures TEXT NOT NULL,
		implants TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_recommendations_run_id ON recommendations(run_id);
	`

	_, err := db.Exec(schema)
	return err
}

const runColumns = `id, command, status, started_at, finished_at, duration_ms,
	rows_merged, best_params, best_score, accuracy, model_path, error`

// SaveRun inserts or updates a run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			duration_ms = excluded.duration_ms,
			rows_merged = excluded.rows_merged,
			best_params = excluded.best_params,
			best_score = excluded.best_score,
			accuracy = excluded.accuracy,
			model_path = excluded.model_path,
			error = excluded.error
	`,
		run.ID, run.Command, string(run.Status), run.StartedAt, run.FinishedAt, run.DurationMS,
		run.Rows, run.BestParams, run.BestScore, run.Accuracy, run.ModelPath, run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first with pagination.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
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
func (s *SQLiteStore) CountRuns(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count)
	return count, err
}

// SaveRecommendation stores a recommendation.
func (s *SQLiteStore) SaveRecommendation(ctx context.Context, rec *RecommendationRecord) error {
	features, procedures, implants, err := encodeLists(rec)
	if err != nil {
		return fmt.Errorf("failed to encode recommendation: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO recommendations (run_id, features, condition, procedures, implants, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.RunID, features, rec.Condition, procedures, implants, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	rec.ID = id
	return nil
}

// ListRecommendations returns the recommendations of a run.
func (s *SQLiteStore) ListRecommendations(ctx context.Context, runID string) ([]*RecommendationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, features, condition, procedures, implants, created_at
		FROM recommendations
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
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
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
