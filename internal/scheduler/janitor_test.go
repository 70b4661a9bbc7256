package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int
	err     error
}

func (f *fakePruner) PruneInbound(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.n, f.err
}

type fakeRecoverer struct {
	calls chan struct{}
	err   error
}

func (f *fakeRecoverer) RecoverStaleMessages(context.Context) error {
	select {
	case f.calls <- struct{}{}:
	default:
	}
	return f.err
}

func TestPruneDedupUsesRetention(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &fakePruner{n: 3}
	j, err := NewJanitor(WithDedup(p), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}

	if got := j.PruneDedup(); got != 3 {
		t.Errorf("PruneDedup = %d, want 3", got)
	}
	if len(p.cutoffs) != 1 || !p.cutoffs[0].Equal(now.Add(-24*time.Hour)) {
		t.Errorf("unexpected cutoffs %v", p.cutoffs)
	}

	p.err = errors.New("locked")
	if got := j.PruneDedup(); got != 0 {
		t.Errorf("PruneDedup on error = %d, want 0", got)
	}
}

func TestJanitorWithoutCollaborators(t *testing.T) {
	j, err := NewJanitor()
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}
	if got := len(j.cron.Entries()); got != 0 {
		t.Errorf("expected no jobs, got %d", got)
	}
	if got := j.PruneDedup(); got != 0 {
		t.Errorf("PruneDedup = %d", got)
	}
	j.RequeueOutbox()
}

func TestNewJanitorRejectsBadConfig(t *testing.T) {
	if _, err := NewJanitor(WithDedup(&fakePruner{}), WithPruneSpec("every tuesday")); err == nil {
		t.Errorf("expected an invalid schedule error")
	}
	if _, err := NewJanitor(WithDedupRetention(-time.Hour)); err == nil {
		t.Errorf("expected a retention error")
	}
}

func TestJanitorRunsScheduledJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := &fakeRecoverer{calls: make(chan struct{}, 1)}
	j, err := NewJanitor(WithOutbox(r), WithRequeueSpec("@every 1s"))
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}
	j.Start()

	select {
	case <-r.calls:
	case <-time.After(5 * time.Second):
		t.Errorf("requeue job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j.Stop(ctx)
}
