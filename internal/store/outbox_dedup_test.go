package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "insura.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueueQuote(t *testing.T, s *SQLiteStore, user, key string) string {
	t.Helper()
	id, err := s.EnqueueOutbox(context.Background(), user, OutboxKindMedicalQuote, `{"plan":"Basic Plan"}`, key)
	if err != nil {
		t.Fatalf("EnqueueOutbox: %v", err)
	}
	return id
}

func claim(t *testing.T, s *SQLiteStore, now time.Time) []OutboxMessage {
	t.Helper()
	msgs, err := s.ClaimOutbox(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("ClaimOutbox: %v", err)
	}
	return msgs
}

func outboxRow(t *testing.T, s *SQLiteStore, id string) (OutboxStatus, int) {
	t.Helper()
	var (
		status   OutboxStatus
		attempts int
	)
	if err := s.db.QueryRow(`SELECT status, attempts FROM outbox WHERE id = ?`, id).Scan(&status, &attempts); err != nil {
		t.Fatalf("query outbox row: %v", err)
	}
	return status, attempts
}

func TestOutbox_ClaimMovesToSending(t *testing.T) {
	s := newTestSQLiteStore(t)
	enqueueQuote(t, s, "971500000001", "")

	msgs := claim(t, s, time.Now())
	if len(msgs) != 1 {
		t.Fatalf("claimed %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.UserID != "971500000001" || m.Kind != OutboxKindMedicalQuote || m.Payload != `{"plan":"Basic Plan"}` {
		t.Errorf("unexpected message %+v", m)
	}
	if m.Status != OutboxStatusSending || m.ClaimedAt == nil {
		t.Errorf("claim not recorded: status=%q claimed_at=%v", m.Status, m.ClaimedAt)
	}
	if again := claim(t, s, time.Now()); len(again) != 0 {
		t.Errorf("a claimed message was claimed twice")
	}
}

func TestOutbox_ClaimOldestFirst(t *testing.T) {
	s := newTestSQLiteStore(t)
	first := enqueueQuote(t, s, "u1", "")
	time.Sleep(2 * time.Millisecond)
	second := enqueueQuote(t, s, "u2", "")

	msgs := claim(t, s, time.Now())
	if len(msgs) != 2 || msgs[0].ID != first || msgs[1].ID != second {
		t.Errorf("claim order = %+v, want %s then %s", msgs, first, second)
	}
}

func TestOutbox_DedupeKey(t *testing.T) {
	s := newTestSQLiteStore(t)
	id1 := enqueueQuote(t, s, "u1", "medical_quote:u1:abc")
	id2 := enqueueQuote(t, s, "u1", "medical_quote:u1:abc")
	if id1 != id2 {
		t.Errorf("live duplicate got a new id: %s vs %s", id1, id2)
	}

	claim(t, s, time.Now())
	if err := s.CompleteOutbox(context.Background(), id1); err != nil {
		t.Fatalf("CompleteOutbox: %v", err)
	}
	if id3 := enqueueQuote(t, s, "u1", "medical_quote:u1:abc"); id3 == id1 {
		t.Errorf("a sent message must not absorb a new submission")
	}
}

func TestOutbox_Transitions(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name         string
		act          func(s *SQLiteStore, id string) error
		wantStatus   OutboxStatus
		wantAttempts int
		claimable    bool
	}{
		{"complete", func(s *SQLiteStore, id string) error {
			return s.CompleteOutbox(ctx, id)
		}, OutboxStatusSent, 0, false},
		{"retry due", func(s *SQLiteStore, id string) error {
			return s.RetryOutbox(ctx, id, "backend unavailable", time.Now().Add(-time.Second))
		}, OutboxStatusQueued, 1, true},
		{"retry later", func(s *SQLiteStore, id string) error {
			return s.RetryOutbox(ctx, id, "backend unavailable", time.Now().Add(time.Hour))
		}, OutboxStatusQueued, 1, false},
		{"abandon", func(s *SQLiteStore, id string) error {
			return s.AbandonOutbox(ctx, id, "gave up")
		}, OutboxStatusFailed, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSQLiteStore(t)
			id := enqueueQuote(t, s, "u1", "")
			claim(t, s, time.Now())

			if err := tt.act(s, id); err != nil {
				t.Fatalf("transition: %v", err)
			}
			status, attempts := outboxRow(t, s, id)
			if status != tt.wantStatus || attempts != tt.wantAttempts {
				t.Errorf("row = %s/%d, want %s/%d", status, attempts, tt.wantStatus, tt.wantAttempts)
			}
			if got := len(claim(t, s, time.Now())) == 1; got != tt.claimable {
				t.Errorf("claimable = %v, want %v", got, tt.claimable)
			}
		})
	}
}

func TestOutbox_RetryRecordsReason(t *testing.T) {
	s := newTestSQLiteStore(t)
	id := enqueueQuote(t, s, "u1", "")
	claim(t, s, time.Now())
	if err := s.RetryOutbox(context.Background(), id, "HTTP 503", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("RetryOutbox: %v", err)
	}
	msgs := claim(t, s, time.Now())
	if len(msgs) != 1 || msgs[0].LastError != "HTTP 503" || msgs[0].DueAt == nil {
		t.Errorf("unexpected retried message %+v", msgs)
	}
}

func TestOutbox_RequeueStale(t *testing.T) {
	s := newTestSQLiteStore(t)
	enqueueQuote(t, s, "u1", "")
	claim(t, s, time.Now().Add(-time.Hour))

	n, err := s.RequeueStaleOutbox(context.Background(), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("RequeueStaleOutbox: %v", err)
	}
	if n != 1 {
		t.Errorf("requeued %d, want 1", n)
	}
	if n, _ := s.RequeueStaleOutbox(context.Background(), time.Now()); n != 0 {
		t.Errorf("a queued message was requeued again")
	}
}

func TestDedupRepo(t *testing.T) {
	repos := map[string]func(t *testing.T) DedupRepo{
		"sqlite": func(t *testing.T) DedupRepo { return newTestSQLiteStore(t) },
		"memory": func(t *testing.T) DedupRepo { return NewInMemoryStore() },
	}
	for name, open := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := open(t)

			if seen, err := repo.SeenInbound(ctx, "wamid.1"); err != nil || seen {
				t.Fatalf("SeenInbound before record = %v, %v", seen, err)
			}
			if isNew, err := repo.RecordInbound(ctx, "wamid.1", "971500000001"); err != nil || !isNew {
				t.Fatalf("first RecordInbound = %v, %v", isNew, err)
			}
			if isNew, err := repo.RecordInbound(ctx, "wamid.1", "971500000001"); err != nil || isNew {
				t.Fatalf("redelivered RecordInbound = %v, %v", isNew, err)
			}
			if seen, _ := repo.SeenInbound(ctx, "wamid.1"); !seen {
				t.Errorf("recorded message not seen")
			}

			repo.RecordInbound(ctx, "wamid.2", "971500000002")
			if err := repo.MarkInboundProcessed(ctx, "wamid.1"); err != nil {
				t.Fatalf("MarkInboundProcessed: %v", err)
			}
			n, err := repo.PruneInbound(ctx, time.Now().Add(time.Minute))
			if err != nil || n != 1 {
				t.Fatalf("PruneInbound = %d, %v; want 1", n, err)
			}
			if seen, _ := repo.SeenInbound(ctx, "wamid.2"); !seen {
				t.Errorf("an unprocessed message was pruned")
			}
		})
	}
}

func TestOutboxSender_Run(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestSQLiteStore(t)
	enqueueQuote(t, s, "u1", "")

	var sent atomic.Int32
	sender := NewOutboxSender(s, func(ctx context.Context, msg OutboxMessage) error {
		sent.Add(1)
		return nil
	}, WithPollInterval(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		sender.Run(ctx)
		close(done)
	}()
	<-done

	if got := sent.Load(); got != 1 {
		t.Errorf("sent %d times, want 1", got)
	}
}

func TestOutboxSender_Failures(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		opts         []SenderOption
		wantStatus   OutboxStatus
		wantAttempts int
	}{
		{"transient retries", errors.New("backend timeout"), nil, OutboxStatusQueued, 1},
		{"max attempts gives up", errors.New("still down"), []SenderOption{WithMaxAttempts(1)}, OutboxStatusFailed, 1},
		{"permanent gives up", fmt.Errorf("%w: rejected payload", ErrPermanent), nil, OutboxStatusFailed, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSQLiteStore(t)
			id := enqueueQuote(t, s, "u1", "")
			sender := NewOutboxSender(s, func(context.Context, OutboxMessage) error { return tt.err }, tt.opts...)

			if n := sender.Poll(context.Background()); n != 0 {
				t.Errorf("Poll delivered %d", n)
			}
			if status, attempts := outboxRow(t, s, id); status != tt.wantStatus || attempts != tt.wantAttempts {
				t.Errorf("row = %s/%d, want %s/%d", status, attempts, tt.wantStatus, tt.wantAttempts)
			}
		})
	}
}

func TestOutboxSender_RetryWaitsForBackoff(t *testing.T) {
	s := newTestSQLiteStore(t)
	now := time.Now()
	enqueueQuote(t, s, "u1", "")
	sender := NewOutboxSender(s, func(context.Context, OutboxMessage) error {
		return errors.New("backend timeout")
	}, WithSenderClock(func() time.Time { return now }), WithBaseBackoff(time.Minute))

	sender.Poll(context.Background())

	if msgs := claim(t, s, now.Add(30*time.Second)); len(msgs) != 0 {
		t.Errorf("message claimable before its backoff elapsed")
	}
	if msgs := claim(t, s, now.Add(2*time.Minute)); len(msgs) != 1 {
		t.Errorf("message not claimable after its backoff")
	}
}

func TestOutboxSender_Backoff(t *testing.T) {
	sender := NewOutboxSender(nil, nil, WithBaseBackoff(10*time.Second))
	tests := []struct {
		previous int
		want     time.Duration
	}{
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{3, 80 * time.Second},
		{40, 10 * time.Second << 16},
	}
	for _, tt := range tests {
		if got := sender.backoff(tt.previous); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.previous, got, tt.want)
		}
	}
}

func TestOutboxSender_RecoverStaleMessages(t *testing.T) {
	s := newTestSQLiteStore(t)
	enqueueQuote(t, s, "u1", "")
	claim(t, s, time.Now().Add(-time.Hour))

	sender := NewOutboxSender(s, func(context.Context, OutboxMessage) error { return nil })
	if err := sender.RecoverStaleMessages(context.Background()); err != nil {
		t.Fatalf("RecoverStaleMessages: %v", err)
	}
	if msgs := claim(t, s, time.Now()); len(msgs) != 1 {
		t.Errorf("stale message not claimable again, got %d", len(msgs))
	}
}
