package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Connection pool settings for PostgresStore.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is the multi-instance deployment store. Outbox claims use
// SKIP LOCKED so several senders can share the table.
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore connects with the DSN from WithPostgresDSN and applies
// the schema.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := migrate(db, postgresMigrations, "postgres"); err != nil {
		return nil, err
	}
	slog.Info("PostgresStore connected")
	return newPostgresStoreWithDB(db), nil
}

// newPostgresStoreWithDB wraps an existing handle without running migrations.
func newPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{sqlStore: newSQLStore(db, true)}
}
