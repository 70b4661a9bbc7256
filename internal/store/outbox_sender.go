package store

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrPermanent marks a send failure that must not be retried.
var ErrPermanent = errors.New("permanent outbox failure")

// OutboxSendFunc performs the work of one outbox message. Returning an
// error wrapping ErrPermanent fails the message without further attempts.
type OutboxSendFunc func(ctx context.Context, msg OutboxMessage) error

// Default outbox sender settings.
const (
	DefaultOutboxPollInterval   = 5 * time.Second
	DefaultOutboxStaleThreshold = 5 * time.Minute
	DefaultOutboxClaimLimit     = 10
	DefaultOutboxBaseBackoff    = 10 * time.Second
)

// SenderOpts configures an OutboxSender.
type SenderOpts struct {
	PollInterval   time.Duration
	StaleThreshold time.Duration
	ClaimLimit     int
	MaxAttempts    int
	BaseBackoff    time.Duration
	Now            func() time.Time
}

// SenderOption configures an OutboxSender.
type SenderOption func(*SenderOpts)

// WithPollInterval sets how often due messages are claimed.
func WithPollInterval(d time.Duration) SenderOption {
	return func(o *SenderOpts) {
		o.PollInterval = d
	}
}

// WithStaleThreshold sets how long a message may sit in sending before
// RecoverStaleMessages requeues it.
func WithStaleThreshold(d time.Duration) SenderOption {
	return func(o *SenderOpts) {
		o.StaleThreshold = d
	}
}

// WithClaimLimit bounds the messages claimed per poll.
func WithClaimLimit(n int) SenderOption {
	return func(o *SenderOpts) {
		o.ClaimLimit = n
	}
}

// WithMaxAttempts bounds the attempts per message.
func WithMaxAttempts(n int) SenderOption {
	return func(o *SenderOpts) {
		o.MaxAttempts = n
	}
}

// WithBaseBackoff sets the delay after the first failure; it doubles per attempt.
func WithBaseBackoff(d time.Duration) SenderOption {
	return func(o *SenderOpts) {
		o.BaseBackoff = d
	}
}

// WithSenderClock overrides the sender's time source.
func WithSenderClock(now func() time.Time) SenderOption {
	return func(o *SenderOpts) {
		o.Now = now
	}
}

// OutboxSender periodically claims due outbox messages and hands them to
// its send function, rescheduling failures with exponential backoff.
type OutboxSender struct {
	repo     OutboxRepo
	sendFunc OutboxSendFunc
	opts     SenderOpts
}

// NewOutboxSender creates an OutboxSender. Non-positive settings fall back
// to the defaults.
func NewOutboxSender(repo OutboxRepo, sendFunc OutboxSendFunc, opts ...SenderOption) *OutboxSender {
	cfg := SenderOpts{
		PollInterval:   DefaultOutboxPollInterval,
		StaleThreshold: DefaultOutboxStaleThreshold,
		ClaimLimit:     DefaultOutboxClaimLimit,
		MaxAttempts:    DefaultOutboxMaxAttempts,
		BaseBackoff:    DefaultOutboxBaseBackoff,
		Now:            time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultOutboxPollInterval
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = DefaultOutboxStaleThreshold
	}
	if cfg.ClaimLimit <= 0 {
		cfg.ClaimLimit = DefaultOutboxClaimLimit
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultOutboxMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultOutboxBaseBackoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &OutboxSender{repo: repo, sendFunc: sendFunc, opts: cfg}
}

// RecoverStaleMessages requeues messages left in sending by a crashed
// process. It runs once at startup and then from the janitor.
func (s *OutboxSender) RecoverStaleMessages(ctx context.Context) error {
	n, err := s.repo.RequeueStaleOutbox(ctx, s.opts.Now().Add(-s.opts.StaleThreshold))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("OutboxSender.RecoverStaleMessages: requeued stale messages", "count", n)
	}
	return nil
}

// Run polls until ctx is cancelled.
func (s *OutboxSender) Run(ctx context.Context) {
	slog.Info("OutboxSender.Run: starting", "poll_interval", s.opts.PollInterval, "max_attempts", s.opts.MaxAttempts)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("OutboxSender.Run: stopping")
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll claims and processes one batch of due messages. It returns the
// number of messages sent successfully.
func (s *OutboxSender) Poll(ctx context.Context) int {
	now := s.opts.Now()
	msgs, err := s.repo.ClaimOutbox(ctx, now, s.opts.ClaimLimit)
	if err != nil {
		slog.Error("OutboxSender.Poll: claim failed", "error", err)
		return 0
	}

	// Bookkeeping writes outlive ctx so a send that completed is not
	// reported again after shutdown.
	bookCtx := context.WithoutCancel(ctx)
	sent := 0
	for _, msg := range msgs {
		if ctx.Err() != nil {
			// Unprocessed claims are requeued by RecoverStaleMessages.
			return sent
		}
		slog.Debug("OutboxSender.Poll: processing", "id", msg.ID, "user_id", msg.UserID, "kind", msg.Kind, "attempt", msg.Attempts+1)
		if err := s.sendFunc(ctx, msg); err != nil {
			s.fail(bookCtx, msg, now, err)
			continue
		}
		if err := s.repo.CompleteOutbox(bookCtx, msg.ID); err != nil {
			slog.Error("OutboxSender.Poll: mark sent failed", "id", msg.ID, "error", err)
			continue
		}
		sent++
		slog.Info("OutboxSender.Poll: message delivered", "id", msg.ID, "user_id", msg.UserID, "kind", msg.Kind)
	}
	return sent
}

func (s *OutboxSender) fail(ctx context.Context, msg OutboxMessage, now time.Time, cause error) {
	attempts := msg.Attempts + 1
	if errors.Is(cause, ErrPermanent) || attempts >= s.opts.MaxAttempts {
		slog.Error("OutboxSender.fail: giving up", "id", msg.ID, "user_id", msg.UserID, "attempts", attempts, "error", cause)
		if err := s.repo.AbandonOutbox(ctx, msg.ID, cause.Error()); err != nil {
			slog.Error("OutboxSender.fail: mark failed error", "id", msg.ID, "error", err)
		}
		return
	}
	next := now.Add(s.backoff(msg.Attempts))
	slog.Warn("OutboxSender.fail: retry scheduled", "id", msg.ID, "user_id", msg.UserID, "attempts", attempts, "due_at", next, "error", cause)
	if err := s.repo.RetryOutbox(ctx, msg.ID, cause.Error(), next); err != nil {
		slog.Error("OutboxSender.fail: reschedule error", "id", msg.ID, "error", err)
	}
}

// backoff returns BaseBackoff doubled once per previous attempt.
func (s *OutboxSender) backoff(previous int) time.Duration {
	if previous > 16 {
		previous = 16
	}
	return s.opts.BaseBackoff << previous
}
