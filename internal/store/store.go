// Package store provides storage backends for Insura.
//
// It holds the per-user conversation records behind the ConversationStore
// interface, with an in-memory implementation for development and SQLite or
// PostgreSQL implementations for deployments that must survive restarts.
// The SQL stores also carry the inbound dedup and follow-up outbox tables.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/BTreeMap/Insura/internal/models"
)

// ErrNotFound is returned when no conversation exists for a user.
var ErrNotFound = errors.New("conversation not found")

// ConversationStore persists one conversation record per user identifier.
// Implementations must be safe for concurrent use on disjoint keys; callers
// serialise access to a single key themselves.
type ConversationStore interface {
	// Get returns a copy of the user's record or ErrNotFound.
	Get(ctx context.Context, userID string) (*models.ConversationState, error)
	// Save creates or replaces the user's record.
	Save(ctx context.Context, state *models.ConversationState) error
	// Delete removes the user's record and reports whether one existed.
	Delete(ctx context.Context, userID string) (bool, error)
	// List returns all user identifiers with a record.
	List(ctx context.Context) ([]string, error)
	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN    string // database connection string or file path
	Shards int    // shard count for the in-memory store
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithShards sets the number of shards for the in-memory store.
func WithShards(n int) Option {
	return func(o *Opts) {
		o.Shards = n
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite3" for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	// key=value form: host=... user=... dbname=...
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") ||
		(strings.Contains(lower, "user=") && strings.Contains(lower, " ")) {
		return "postgres"
	}
	return "sqlite3"
}
