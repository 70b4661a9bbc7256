// Package scheduler runs Insura's periodic housekeeping on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Default janitor schedule.
const (
	DefaultPruneSpec      = "*/10 * * * *"
	DefaultRequeueSpec    = "* * * * *"
	DefaultDedupRetention = 24 * time.Hour

	jobTimeout = 30 * time.Second
)

// DedupPruner deletes processed inbound records.
type DedupPruner interface {
	PruneInbound(ctx context.Context, cutoff time.Time) (int, error)
}

// OutboxRecoverer requeues outbox messages stuck in sending.
type OutboxRecoverer interface {
	RecoverStaleMessages(ctx context.Context) error
}

// Opts configures a Janitor.
type Opts struct {
	Dedup          DedupPruner
	Outbox         OutboxRecoverer
	PruneSpec      string
	RequeueSpec    string
	DedupRetention time.Duration
	Now            func() time.Time
}

// Option configures a Janitor.
type Option func(*Opts)

// WithDedup sets the dedup table to prune.
func WithDedup(p DedupPruner) Option {
	return func(o *Opts) {
		o.Dedup = p
	}
}

// WithOutbox sets the outbox to recover.
func WithOutbox(r OutboxRecoverer) Option {
	return func(o *Opts) {
		o.Outbox = r
	}
}

// WithPruneSpec overrides the cron expression of the dedup prune job.
func WithPruneSpec(spec string) Option {
	return func(o *Opts) {
		o.PruneSpec = spec
	}
}

// WithRequeueSpec overrides the cron expression of the outbox requeue job.
func WithRequeueSpec(spec string) Option {
	return func(o *Opts) {
		o.RequeueSpec = spec
	}
}

// WithDedupRetention sets how long processed dedup rows are kept.
func WithDedupRetention(d time.Duration) Option {
	return func(o *Opts) {
		o.DedupRetention = d
	}
}

// WithClock overrides the janitor's time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// Janitor prunes the dedup table and recovers stalled outbox messages.
// Either collaborator may be absent, in which case its job is not scheduled.
type Janitor struct {
	cron      *cron.Cron
	dedup     DedupPruner
	outbox    OutboxRecoverer
	retention time.Duration
	now       func() time.Time
}

// NewJanitor creates a Janitor and registers its jobs. It does not start them.
func NewJanitor(opts ...Option) (*Janitor, error) {
	cfg := Opts{
		PruneSpec:      DefaultPruneSpec,
		RequeueSpec:    DefaultRequeueSpec,
		DedupRetention: DefaultDedupRetention,
		Now:            time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DedupRetention <= 0 {
		return nil, fmt.Errorf("dedup retention must be positive")
	}

	// Standard 5-field parser (min, hour, dom, month, dow); panicking jobs are recovered.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	j := &Janitor{
		cron:      cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		dedup:     cfg.Dedup,
		outbox:    cfg.Outbox,
		retention: cfg.DedupRetention,
		now:       cfg.Now,
	}
	if j.dedup != nil {
		if _, err := j.cron.AddFunc(cfg.PruneSpec, func() { j.PruneDedup() }); err != nil {
			return nil, fmt.Errorf("invalid prune schedule %q: %w", cfg.PruneSpec, err)
		}
	}
	if j.outbox != nil {
		if _, err := j.cron.AddFunc(cfg.RequeueSpec, func() { j.RequeueOutbox() }); err != nil {
			return nil, fmt.Errorf("invalid requeue schedule %q: %w", cfg.RequeueSpec, err)
		}
	}
	return j, nil
}

// Start runs the scheduled jobs in the background.
func (j *Janitor) Start() {
	slog.Info("Janitor.Start: housekeeping scheduled", "jobs", len(j.cron.Entries()), "dedup_retention", j.retention)
	j.cron.Start()
}

// Stop halts the schedule and waits for running jobs until ctx is done.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("Janitor.Stop: gave up waiting for running jobs", "error", ctx.Err())
	}
}

// PruneDedup deletes processed dedup rows older than the retention window.
func (j *Janitor) PruneDedup() int {
	if j.dedup == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	n, err := j.dedup.PruneInbound(ctx, j.now().Add(-j.retention))
	if err != nil {
		slog.Error("Janitor.PruneDedup: prune failed", "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("Janitor.PruneDedup: pruned processed messages", "count", n)
	}
	return n
}

// RequeueOutbox requeues outbox messages stuck in sending.
func (j *Janitor) RequeueOutbox() {
	if j.outbox == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := j.outbox.RecoverStaleMessages(ctx); err != nil {
		slog.Error("Janitor.RequeueOutbox: recovery failed", "error", err)
	}
}
