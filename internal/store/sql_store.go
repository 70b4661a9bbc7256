package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/Insura/internal/models"
)

// sqlStore holds the queries shared by SQLiteStore and PostgresStore.
// Queries use ? placeholders and are rebound to $n for Postgres.
type sqlStore struct {
	db       *sql.DB
	postgres bool
	name     string
}

var _ ConversationStore = (*sqlStore)(nil)

func newSQLStore(db *sql.DB, postgres bool) *sqlStore {
	name := "SQLiteStore"
	if postgres {
		name = "PostgresStore"
	}
	return &sqlStore{db: db, postgres: postgres, name: name}
}

// migrate applies the embedded schema on a freshly opened handle and
// closes the handle if that fails.
func migrate(db *sql.DB, schema, name string) error {
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping %s database: %w", name, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to run %s migrations: %w", name, err)
	}
	slog.Debug("Store migrations applied", "driver", name)
	return nil
}

func (q *sqlStore) bind(query string) string {
	if !q.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (q *sqlStore) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, q.bind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *sqlStore) Get(ctx context.Context, userID string) (*models.ConversationState, error) {
	var stateJSON string
	err := q.db.QueryRowContext(ctx, q.bind(`SELECT state_json FROM conversations WHERE user_id = ?`), userID).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error(q.name+".Get: query failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to load conversation for %s: %w", userID, err)
	}
	return decodeState(userID, stateJSON)
}

func (q *sqlStore) Save(ctx context.Context, state *models.ConversationState) error {
	if state == nil || state.UserID == "" {
		return models.ErrEmptyUserID
	}
	state = state.Clone()
	touch(state)
	stateJSON, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = q.exec(ctx,
		`INSERT INTO conversations (user_id, stage, state_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET stage = excluded.stage, state_json = excluded.state_json, updated_at = excluded.updated_at`,
		state.UserID, string(state.Stage), stateJSON, state.CreatedAt.UTC(), state.UpdatedAt.UTC(),
	)
	if err != nil {
		slog.Error(q.name+".Save: upsert failed", "user_id", state.UserID, "error", err)
		return fmt.Errorf("failed to save conversation for %s: %w", state.UserID, err)
	}
	slog.Debug(q.name+".Save: saved", "user_id", state.UserID, "stage", state.Stage)
	return nil
}

func (q *sqlStore) Delete(ctx context.Context, userID string) (bool, error) {
	n, err := q.exec(ctx, `DELETE FROM conversations WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation for %s: %w", userID, err)
	}
	return n > 0, nil
}

func (q *sqlStore) List(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT user_id FROM conversations ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *sqlStore) Close() error {
	slog.Debug(q.name + ".Close: closing database")
	return q.db.Close()
}
