package runstore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ortho-predict/internal/domain"
	"github.com/ortho-predict/internal/logging"
)

func setupSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRun(id string, started time.Time) *Run {
	return &Run{
		ID:        id,
		Command:   "run",
		Status:    StatusRunning,
		StartedAt: started,
	}
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()

	run := NewRun("run-1", "train")
	require.NoError(t, store.SaveRun(ctx, run))

	run.Rows = 1000
	run.BestParams = "{n_estimators: 100}"
	run.BestScore = 0.21
	run.Accuracy = 0.18
	run.ModelPath = "../data/random_forest_model.json.gz"
	run.Finish(nil)
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, "train", got.Command)
	assert.Equal(t, 1000, got.Rows)
	assert.Equal(t, run.BestParams, got.BestParams)
	assert.InDelta(t, 0.18, got.Accuracy, 1e-12)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))

	count, err := store.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_GetNotFound(t *testing.T) {
	store := setupSQLiteStore(t)
	_, err := store.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_FailedRun(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()

	run := NewRun("run-failed", "clean")
	run.Finish(errors.New("MISSING_INPUT: error loading data"))
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "run-failed")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "MISSING_INPUT: error loading data", got.Error)
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, store.SaveRun(ctx, testRun(id, base.Add(time.Duration(i)*time.Minute))))
	}

	list, err := store.ListRuns(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "e", list[0].ID)
	assert.Equal(t, "c", list[2].ID)

	list, err = store.ListRuns(ctx, 3, 3)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSQLiteStore_Recommendations(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveRun(ctx, testRun("run-1", time.Now().UTC())))

	rec := &RecommendationRecord{
		RunID:      "run-1",
		Features:   []float64{50, 1, 2},
		Condition:  "Osteoarthritis",
		Procedures: []string{"Knee Arthroscopy", "Knee Replacement", "Physical Therapy"},
		Implants:   []string{"Metal-Polyethylene"},
	}
	require.NoError(t, store.SaveRecommendation(ctx, rec))
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	recs, err := store.ListRecommendations(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.Features, recs[0].Features)
	assert.Equal(t, rec.Procedures, recs[0].Procedures)
	assert.Equal(t, rec.Implants, recs[0].Implants)

	recs, err = store.ListRecommendations(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSQLiteStore_ExportJSON(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRun(ctx, testRun("run-1", time.Now().UTC())))
	require.NoError(t, store.SaveRecommendation(ctx, &RecommendationRecord{
		RunID:      "run-1",
		Features:   []float64{50, 1, 2},
		Condition:  "ACL Tear",
		Procedures: []string{"No condition-related procedure mapping available."},
		Implants:   []string{"Ceramic-Polyethylene"},
	}))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))

	var export RunExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, 1, export.Count)
	require.Len(t, export.Runs, 1)
	require.Len(t, export.Recommendations, 1)
	assert.Equal(t, "ACL Tear", export.Recommendations[0].Condition)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, domain.StoreConfig{Driver: "sqlite"}, filepath.Join(t.TempDir(), "runs.db"), logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	store, err = Open(ctx, domain.StoreConfig{Driver: "none"}, "", logging.Discard())
	require.NoError(t, err)
	require.NoError(t, store.SaveRun(ctx, NewRun("x", "run")))
	_, err = store.GetRun(ctx, "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))
	assert.Contains(t, buf.String(), `"count": 0`)

	_, err = Open(ctx, domain.StoreConfig{Driver: "mongo"}, "", logging.Discard())
	assert.Error(t, err)
}
