//go:build integration

package runstore

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ortho-predict/internal/domain"
	"github.com/ortho-predict/internal/logging"
)

func TestPostgresStore_Integration(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("runs"),
		postgres.WithUsername("ortho"),
		postgres.WithPassword("ortho"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	url, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(ctx, domain.StoreConfig{Driver: DriverPostgres, PostgresURL: url, MaxOpenConns: 4}, "", logging.Discard())
	require.NoError(t, err)
	defer store.Close()

	run := NewRun("integration-run", "run")
	require.NoError(t, store.SaveRun(ctx, run))
	run.Rows = 1000
	run.Finish(nil)
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, 1000, got.Rows)

	rec := &RecommendationRecord{
		RunID:      run.ID,
		Features:   []float64{50, 1, 2},
		Condition:  "Osteoarthritis",
		Procedures: []string{"Knee Arthroscopy"},
		Implants:   []string{"Metal-Polyethylene"},
	}
	require.NoError(t, store.SaveRecommendation(ctx, rec))
	assert.NotZero(t, rec.ID)

	count, err := store.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))
	assert.Contains(t, buf.String(), "integration-run")
	assert.Contains(t, buf.String(), "Metal-Polyethylene")
}
