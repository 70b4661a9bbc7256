package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

const outboxColumns = `id, user_id, kind, payload, status, attempts, due_at, dedupe_key, claimed_at, last_error, created_at, updated_at`

var (
	_ DedupRepo  = (*sqlStore)(nil)
	_ OutboxRepo = (*sqlStore)(nil)
)

func (q *sqlStore) SeenInbound(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := q.db.QueryRowContext(ctx, q.bind(`SELECT 1 FROM inbound_messages WHERE message_id = ?`), messageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up inbound message %s: %w", messageID, err)
	}
	return true, nil
}

func (q *sqlStore) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	n, err := q.exec(ctx,
		`INSERT INTO inbound_messages (message_id, user_id, received_at) VALUES (?, ?, ?) ON CONFLICT (message_id) DO NOTHING`,
		messageID, userID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record inbound message %s: %w", messageID, err)
	}
	return n > 0, nil
}

func (q *sqlStore) MarkInboundProcessed(ctx context.Context, messageID string) error {
	if _, err := q.exec(ctx, `UPDATE inbound_messages SET processed_at = ? WHERE message_id = ?`, time.Now().UTC(), messageID); err != nil {
		return fmt.Errorf("failed to mark inbound message %s processed: %w", messageID, err)
	}
	return nil
}

func (q *sqlStore) PruneInbound(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := q.exec(ctx, `DELETE FROM inbound_messages WHERE processed_at IS NOT NULL AND processed_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune inbound messages: %w", err)
	}
	return int(n), nil
}

func (q *sqlStore) EnqueueOutbox(ctx context.Context, userID, kind, payload, dedupeKey string) (string, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin outbox transaction: %w", err)
	}
	defer tx.Rollback()

	if dedupeKey != "" {
		var existing string
		err := tx.QueryRowContext(ctx,
			q.bind(`SELECT id FROM outbox WHERE dedupe_key = ? AND status IN ('queued', 'sending')`),
			dedupeKey,
		).Scan(&existing)
		if err == nil {
			slog.Debug(q.name+".EnqueueOutbox: already queued", "dedupe_key", dedupeKey, "id", existing)
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("failed to check outbox dedupe key: %w", err)
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		q.bind(`INSERT INTO outbox (id, user_id, kind, payload, status, attempts, dedupe_key, created_at, updated_at) VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?)`),
		id, userID, kind, payload, nullString(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s for %s: %w", kind, userID, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit outbox message: %w", err)
	}
	slog.Debug(q.name+".EnqueueOutbox: queued", "id", id, "user_id", userID, "kind", kind)
	return id, nil
}

func (q *sqlStore) ClaimOutbox(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error) {
	now = now.UTC()
	var (
		msgs []OutboxMessage
		err  error
	)
	if q.postgres {
		msgs, err = q.claimReturning(ctx, now, limit)
	} else {
		msgs, err = q.claimInTx(ctx, now, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox messages: %w", err)
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

// claimReturning claims in one statement. SKIP LOCKED keeps concurrent
// senders from claiming the same rows.
func (q *sqlStore) claimReturning(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error) {
	rows, err := q.db.QueryContext(ctx, q.bind(
		`UPDATE outbox SET status = 'sending', claimed_at = ?, updated_at = ?
		 WHERE id IN (
		   SELECT id FROM outbox WHERE status = 'queued' AND (due_at IS NULL OR due_at <= ?)
		   ORDER BY created_at LIMIT ? FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+outboxColumns),
		now, now, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutboxRows(rows)
}

// claimInTx selects then updates inside a transaction. SQLite serialises
// writers, so the pair is atomic.
func (q *sqlStore) claimInTx(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM outbox WHERE status = 'queued' AND (due_at IS NULL OR due_at <= ?) ORDER BY created_at LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	msgs, err := scanOutboxRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	for i := range msgs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE outbox SET status = 'sending', claimed_at = ?, updated_at = ? WHERE id = ?`,
			now, now, msgs[i].ID,
		); err != nil {
			return nil, err
		}
		msgs[i].Status = OutboxStatusSending
		claimed := now
		msgs[i].ClaimedAt = &claimed
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (q *sqlStore) CompleteOutbox(ctx context.Context, id string) error {
	if _, err := q.exec(ctx, `UPDATE outbox SET status = 'sent', claimed_at = NULL, updated_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to complete outbox message %s: %w", id, err)
	}
	return nil
}

func (q *sqlStore) RetryOutbox(ctx context.Context, id, reason string, dueAt time.Time) error {
	_, err := q.exec(ctx,
		`UPDATE outbox SET status = 'queued', attempts = attempts + 1, last_error = ?, due_at = ?, claimed_at = NULL, updated_at = ? WHERE id = ?`,
		reason, dueAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule outbox message %s: %w", id, err)
	}
	return nil
}

func (q *sqlStore) AbandonOutbox(ctx context.Context, id, reason string) error {
	_, err := q.exec(ctx,
		`UPDATE outbox SET status = 'failed', attempts = attempts + 1, last_error = ?, claimed_at = NULL, updated_at = ? WHERE id = ?`,
		reason, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to abandon outbox message %s: %w", id, err)
	}
	return nil
}

func (q *sqlStore) RequeueStaleOutbox(ctx context.Context, claimedBefore time.Time) (int, error) {
	n, err := q.exec(ctx,
		`UPDATE outbox SET status = 'queued', claimed_at = NULL, updated_at = ? WHERE status = 'sending' AND claimed_at < ?`,
		time.Now().UTC(), claimedBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale outbox messages: %w", err)
	}
	if n > 0 {
		slog.Info(q.name+".RequeueStaleOutbox: requeued", "count", n)
	}
	return int(n), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanOutboxRows(rows *sql.Rows) ([]OutboxMessage, error) {
	var msgs []OutboxMessage
	for rows.Next() {
		var (
			m                       OutboxMessage
			payload, key, lastError sql.NullString
			dueAt, claimedAt        sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Kind, &payload, &m.Status, &m.Attempts,
			&dueAt, &key, &claimedAt, &lastError, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		m.Payload = payload.String
		m.DedupeKey = key.String
		m.LastError = lastError.String
		if dueAt.Valid {
			m.DueAt = &dueAt.Time
		}
		if claimedAt.Valid {
			m.ClaimedAt = &claimedAt.Time
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
