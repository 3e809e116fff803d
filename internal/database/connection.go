// Package database opens the PostgreSQL connection behind the run history
// store and applies its embedded schema migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/ortho-predict/internal/domain"
)

// DB wraps the sql.DB pool with additional functionality
type DB struct {
	*sql.DB
	log *logrus.Logger
}

// NewConnection creates a new database connection pool
func NewConnection(ctx context.Context, config domain.StoreConfig, logger *logrus.Logger) (*DB, error) {
	if config.PostgresURL == "" {
		return nil, fmt.Errorf("postgres url is required")
	}

	db, err := sql.Open("postgres", config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Configure connection pool settings
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":           redactedHost(config.PostgresURL),
		"max_open_conns": config.MaxOpenConns,
		"max_idle_conns": config.MaxIdleConns,
	}).Info("Database connection pool established")

	return &DB{DB: db, log: logger}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	err := db.DB.Close()
	db.log.Info("Database connection pool closed")
	return err
}

// redactedHost returns host:port of a connection URL without credentials.
func redactedHost(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
