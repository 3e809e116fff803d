package runstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ortho-predict/internal/domain"
)

var runRowColumns = []string{
	"id", "command", "status", "started_at", "finished_at", "duration_ms",
	"rows_merged", "best_params", "best_score", "accuracy", "model_path", "error",
}

func setupMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestNewPostgresStore_RequiresDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_SaveRun(t *testing.T) {
	store, mock := setupMockStore(t)

	run := NewRun("run-1", "train")
	run.Accuracy = 0.2
	run.Finish(nil)

	mock.ExpectExec("INSERT INTO runs (.+) ON CONFLICT \\(id\\) DO UPDATE").
		WithArgs("run-1", "train", "succeeded", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			0, "", 0.0, 0.2, "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SaveRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRunError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec("INSERT INTO runs").WillReturnError(errors.New("connection reset"))

	err := store.SaveRun(context.Background(), NewRun("run-1", "train"))
	assert.ErrorContains(t, err, "failed to save run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	store, mock := setupMockStore(t)
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM runs WHERE id = \\$1").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(runRowColumns).
			AddRow("run-1", "run", "succeeded", started, started.Add(time.Minute), int64(60000),
				1000, "{n_estimators: 200}", 0.19, 0.17, "../data/random_forest_model.json.gz", ""))

	run, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, int64(60000), run.DurationMS)
	assert.Equal(t, 1000, run.Rows)
	assert.Equal(t, started, run.StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRunNotFound(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM runs WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	store, mock := setupMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM runs ORDER BY started_at DESC, id LIMIT \\$1 OFFSET \\$2").
		WithArgs(2, 0).
		WillReturnRows(sqlmock.NewRows(runRowColumns).
			AddRow("b", "run", "succeeded", now, now, int64(5), 10, "", 0.0, 0.0, "", "").
			AddRow("a", "clean", "failed", now, now, int64(1), 0, "", 0.0, 0.0, "", "MISSING_INPUT"))

	runs, err := store.ListRuns(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)
	assert.Equal(t, StatusFailed, runs[1].Status)
	assert.Equal(t, "MISSING_INPUT", runs[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountRuns(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM runs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	count, err := store.CountRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRecommendation(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("INSERT INTO recommendations (.+) RETURNING id").
		WithArgs("run-1", "[50,1,2]", "Osteoarthritis",
			`["Knee Arthroscopy","Knee Replacement","Physical Therapy"]`,
			`["Metal-Polyethylene"]`, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	rec := &RecommendationRecord{
		RunID:      "run-1",
		Features:   []float64{50, 1, 2},
		Condition:  "Osteoarthritis",
		Procedures: []string{"Knee Arthroscopy", "Knee Replacement", "Physical Therapy"},
		Implants:   []string{"Metal-Polyethylene"},
	}
	require.NoError(t, store.SaveRecommendation(context.Background(), rec))
	assert.Equal(t, int64(7), rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecommendations(t *testing.T) {
	store, mock := setupMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM recommendations WHERE run_id = \\$1").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "run_id", "features", "condition", "procedures", "implants", "created_at"}).
			AddRow(int64(1), "run-1", "[30,0,0]", "ACL Tear",
				`["No condition-related procedure mapping available."]`, `["Ceramic-Polyethylene"]`, now))

	recs, err := store.ListRecommendations(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []float64{30, 0, 0}, recs[0].Features)
	assert.Equal(t, []string{"Ceramic-Polyethylene"}, recs[0].Implants)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecommendationsBadJSON(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM recommendations").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "run_id", "features", "condition", "procedures", "implants", "created_at"}).
			AddRow(int64(1), "run-1", "not json", "ACL Tear", "[]", "[]", time.Now()))

	_, err := store.ListRecommendations(context.Background(), "run-1")
	assert.ErrorContains(t, err, "failed to scan row")
}
