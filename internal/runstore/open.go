package runstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ortho-predict/internal/database"
	"github.com/ortho-predict/internal/domain"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Open returns the store selected by config.Driver. sqlitePath is the
// resolved SQLite file location. The postgres driver migrates the schema
// before use.
func Open(ctx context.Context, config domain.StoreConfig, sqlitePath string, logger *logrus.Logger) (Store, error) {
	switch strings.ToLower(config.Driver) {
	case DriverSQLite, "":
		store, err := NewSQLiteStore(sqlitePath)
		if err != nil {
			return nil, err
		}
		logger.WithField("path", sqlitePath).Debug("Run history store opened")
		return store, nil

	case DriverPostgres:
		if err := database.Migrate(ctx, config.PostgresURL, logger); err != nil {
			return nil, err
		}
		db, err := database.NewConnection(ctx, config, logger)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresStore(db.DB)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil

	case DriverNone:
		return Discard{}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", config.Driver)
	}
}

// Discard is a Store that keeps nothing.
type Discard struct{}

var _ Store = Discard{}

func (Discard) SaveRun(context.Context, *Run) error { return nil }

func (Discard) GetRun(_ context.Context, id string) (*Run, error) {
	return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
}

func (Discard) ListRuns(context.Context, int, int) ([]*Run, error) { return nil, nil }

func (Discard) CountRuns(context.Context) (int64, error) { return 0, nil }

func (Discard) SaveRecommendation(context.Context, *RecommendationRecord) error { return nil }

func (Discard) ListRecommendations(context.Context, string) ([]*RecommendationRecord, error) {
	return nil, nil
}

func (d Discard) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, d, writer)
}

func (Discard) Close() error { return nil }
