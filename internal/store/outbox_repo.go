package store

import (
	"context"
	"time"
)

// OutboxStatus is the lifecycle state of a queued follow-up.
type OutboxStatus string

const (
	OutboxStatusQueued  OutboxStatus = "queued"
	OutboxStatusSending OutboxStatus = "sending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxKindMedicalQuote is a medical_insert request that failed during the
// conversation. Its payload is the JSON-encoded backend.MedicalQuote.
const OutboxKindMedicalQuote = "medical_quote"

// DefaultOutboxMaxAttempts bounds retries before a message is marked failed.
const DefaultOutboxMaxAttempts = 5

// OutboxMessage is one durable follow-up owed to a user.
type OutboxMessage struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Kind      string       `json:"kind"`
	Payload   string       `json:"payload"`
	Status    OutboxStatus `json:"status"`
	Attempts  int          `json:"attempts"`
	DueAt     *time.Time   `json:"due_at,omitempty"`
	DedupeKey string       `json:"dedupe_key,omitempty"`
	ClaimedAt *time.Time   `json:"claimed_at,omitempty"`
	LastError string       `json:"last_error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// OutboxRepo persists follow-ups so a failed quote submission survives a
// restart. Messages move queued -> sending -> sent|failed, and back to
// queued when a retry is scheduled or a claim goes stale.
type OutboxRepo interface {
	// EnqueueOutbox queues a message. When dedupeKey matches a message that
	// is still queued or sending, that message's id is returned instead.
	EnqueueOutbox(ctx context.Context, userID, kind, payload, dedupeKey string) (string, error)

	// ClaimOutbox moves up to limit queued messages due at or before now to
	// sending and returns them, oldest first.
	ClaimOutbox(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error)

	// CompleteOutbox marks a claimed message sent.
	CompleteOutbox(ctx context.Context, id string) error

	// RetryOutbox counts a failed attempt and requeues the message for dueAt.
	RetryOutbox(ctx context.Context, id, reason string, dueAt time.Time) error

	// AbandonOutbox counts a failed attempt and marks the message failed.
	AbandonOutbox(ctx context.Context, id, reason string) error

	// RequeueStaleOutbox returns messages claimed before claimedBefore to the
	// queue. A process that died mid-send leaves such claims behind.
	RequeueStaleOutbox(ctx context.Context, claimedBefore time.Time) (int, error)
}
