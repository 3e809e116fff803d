package database

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SchemaVersion is the newest run history schema shipped in migrations/.
const SchemaVersion uint = 2

// Migrator applies the embedded run history schema to a Postgres database.
type Migrator struct {
	m   *migrate.Migrate
	log *logrus.Logger
}

// migrateLogger forwards golang-migrate progress to logrus at debug level.
type migrateLogger struct {
	log *logrus.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debugf("migrate: "+format, v...)
}

func (l migrateLogger) Verbose() bool {
	return l.log.IsLevelEnabled(logrus.DebugLevel)
}

// NewMigrator opens a dedicated connection to databaseURL. The store's own
// pool is never handed to golang-migrate, which closes what it is given.
func NewMigrator(databaseURL string, logger *logrus.Logger) (*Migrator, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("loading run history migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting migrator to %s: %w", redactedHost(databaseURL), err)
	}
	m.Log = migrateLogger{log: logger}

	return &Migrator{m: m, log: logger}, nil
}

// Up brings the schema to SchemaVersion. Cancelling ctx stops after the
// migration in progress.
func (mg *Migrator) Up(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		select {
		case mg.m.GracefulStop <- true:
		default:
		}
	})
	defer stop()

	from, _, err := mg.Version()
	if err != nil {
		return err
	}

	err = mg.m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		mg.log.WithField("version", from).Debug("Run history schema is current")
		return nil
	case err != nil:
		return fmt.Errorf("migrating run history schema from version %d: %w", from, err)
	}

	to, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("run history schema left dirty at version %d", to)
	}
	mg.log.WithFields(logrus.Fields{"from": from, "to": to}).Info("Run history schema migrated")
	return nil
}

// Rollback reverts the newest applied migration.
func (mg *Migrator) Rollback() error {
	if err := mg.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rolling back run history schema: %w", err)
	}
	return nil
}

// Version reports the applied schema version. A fresh database is version 0.
func (mg *Migrator) Version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading run history schema version: %w", err)
	}
	return v, dirty, nil
}

// Close releases the migrator's connection and source.
func (mg *Migrator) Close() error {
	sourceErr, dbErr := mg.m.Close()
	return errors.Join(sourceErr, dbErr)
}

// Migrate applies every pending migration to databaseURL.
func Migrate(ctx context.Context, databaseURL string, logger *logrus.Logger) error {
	mg, err := NewMigrator(databaseURL, logger)
	if err != nil {
		return err
	}
	defer mg.Close()
	return mg.Up(ctx)
}
