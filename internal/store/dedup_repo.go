package store

import (
	"context"
	"time"
)

// InboundRecord is one webhook message id seen by the service.
type InboundRecord struct {
	MessageID   string     `json:"message_id"`
	UserID      string     `json:"user_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// DedupRepo remembers inbound message ids. WhatsApp retries webhooks until
// it gets a 200, so the same message can arrive more than once.
type DedupRepo interface {
	// SeenInbound reports whether messageID was recorded before.
	SeenInbound(ctx context.Context, messageID string) (bool, error)

	// RecordInbound stores messageID and reports whether it was new.
	RecordInbound(ctx context.Context, messageID, userID string) (bool, error)

	// MarkInboundProcessed stamps the time the message's turn finished.
	MarkInboundProcessed(ctx context.Context, messageID string) error

	// PruneInbound deletes records processed before cutoff. Unprocessed
	// records are kept.
	PruneInbound(ctx context.Context, cutoff time.Time) (int, error)
}
