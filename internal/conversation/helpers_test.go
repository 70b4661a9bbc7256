package conversation

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/Insura/internal/backend"
	"github.com/BTreeMap/Insura/internal/events"
	"github.com/BTreeMap/Insura/internal/models"
	"github.com/BTreeMap/Insura/internal/store"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// sentMessage is one outbound message captured by fakeReplier.
type sentMessage struct {
	To      string
	Lang    string
	Text    string
	Options []string
	Label   string
	URL     string
}

type fakeReplier struct {
	mu   sync.Mutex
	msgs []sentMessage
}

func (r *fakeReplier) SendText(ctx context.Context, to, lang, text string) {
	r.add(sentMessage{To: to, Lang: lang, Text: text})
}

func (r *fakeReplier) SendOptions(ctx context.Context, to, lang, text string, options []string) {
	r.add(sentMessage{To: to, Lang: lang, Text: text, Options: append([]string(nil), options...)})
}

func (r *fakeReplier) SendLink(ctx context.Context, to, lang, text, label, url string) {
	r.add(sentMessage{To: to, Lang: lang, Text: text, Label: label, URL: url})
}

func (r *fakeReplier) add(m sentMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *fakeReplier) all() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMessage(nil), r.msgs...)
}

func (r *fakeReplier) last() sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return sentMessage{}
	}
	return r.msgs[len(r.msgs)-1]
}

func (r *fakeReplier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

// texts returns the text of every message sent since the last reset.
func (r *fakeReplier) texts() []string {
	var out []string
	for _, m := range r.all() {
		out = append(out, m.Text)
	}
	return out
}

type fakeAssistant struct {
	mu         sync.Mutex
	reply      string
	askErr     error
	label      string
	classifyFn func(system, prompt string, labels []string) (string, error)
	asks       int
	classifies int
}

func (a *fakeAssistant) Ask(ctx context.Context, system, prompt string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.asks++
	if a.askErr != nil {
		return "", a.askErr
	}
	return a.reply, nil
}

func (a *fakeAssistant) Classify(ctx context.Context, system, prompt string, labels []string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.classifies++
	if a.classifyFn != nil {
		return a.classifyFn(system, prompt, labels)
	}
	if a.label != "" {
		return a.label, nil
	}
	return labels[len(labels)-1], nil
}

type extractResult struct {
	fields map[string]string
	err    error
}

// fakeExtractor returns queued results per kind, in order.
type fakeExtractor struct {
	mu      sync.Mutex
	results map[models.DocumentKind][]extractResult
	calls   []models.DocumentKind
}

func (e *fakeExtractor) queue(kind models.DocumentKind, fields map[string]string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.results == nil {
		e.results = map[models.DocumentKind][]extractResult{}
	}
	e.results[kind] = append(e.results[kind], extractResult{fields: fields, err: err})
}

func (e *fakeExtractor) Extract(ctx context.Context, data []byte, mimeType string, kind models.DocumentKind) (map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, kind)
	q := e.results[kind]
	if len(q) == 0 {
		return nil, errors.New("no queued extraction")
	}
	e.results[kind] = q[1:]
	return q[0].fields, q[0].err
}

type fakeSubmitter struct {
	mu         sync.Mutex
	medicalID  int64
	medicalErr error
	emafID     int64
	emafErr    error
	quotes     []backend.MedicalQuote
	emafs      []backend.EMAFRequest
}

func (s *fakeSubmitter) SubmitMedical(ctx context.Context, quote backend.MedicalQuote) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, quote)
	return s.medicalID, s.medicalErr
}

func (s *fakeSubmitter) SubmitEMAF(ctx context.Context, req backend.EMAFRequest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emafs = append(s.emafs, req)
	return s.emafID, s.emafErr
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.LeadEvent
}

func (p *fakePublisher) Publish(ctx context.Context, evt events.LeadEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) types() []events.LeadType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.LeadType
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type enqueued struct {
	UserID, Kind, Payload, DedupeKey string
}

// fakeOutbox records enqueued messages; the remaining methods are unused by
// the dispatcher.
type fakeOutbox struct {
	mu   sync.Mutex
	msgs []enqueued
}

func (o *fakeOutbox) EnqueueOutbox(_ context.Context, userID, kind, payload, dedupeKey string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, enqueued{userID, kind, payload, dedupeKey})
	return "outbox-1", nil
}

func (o *fakeOutbox) ClaimOutbox(context.Context, time.Time, int) ([]store.OutboxMessage, error) {
	return nil, nil
}

func (o *fakeOutbox) CompleteOutbox(context.Context, string) error { return nil }

func (o *fakeOutbox) RetryOutbox(context.Context, string, string, time.Time) error { return nil }

func (o *fakeOutbox) AbandonOutbox(context.Context, string, string) error { return nil }

func (o *fakeOutbox) RequeueStaleOutbox(context.Context, time.Time) (int, error) { return 0, nil }

type harness struct {
	d         *Dispatcher
	store     *store.InMemoryStore
	replier   *fakeReplier
	assistant *fakeAssistant
	extractor *fakeExtractor
	submitter *fakeSubmitter
	publisher *fakePublisher
	outbox    *fakeOutbox
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:     store.NewInMemoryStore(),
		replier:   &fakeReplier{},
		assistant: &fakeAssistant{reply: "assistant reply"},
		extractor: &fakeExtractor{},
		submitter: &fakeSubmitter{medicalID: 4242, emafID: 77},
		publisher: &fakePublisher{},
		outbox:    &fakeOutbox{},
	}
	base := []Option{
		WithStore(h.store),
		WithReplier(h.replier),
		WithAssistant(h.assistant),
		WithExtractor(h.extractor),
		WithSubmitter(h.submitter),
		WithPublisher(h.publisher),
		WithOutbox(h.outbox),
		WithSleeper(NoSleep{}),
		WithClock(func() time.Time { return testNow }),
	}
	d, err := NewDispatcher(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	h.d = d
	return h
}

func (h *harness) text(user, text string) {
	h.d.Handle(context.Background(), models.InboundEvent{
		UserID: user, Kind: models.MessageKindText, Text: text, Timestamp: testNow,
	})
}

// tap selects the n-th (1-based) option last offered.
func (h *harness) tap(user string, n int, title string) {
	h.d.Handle(context.Background(), models.InboundEvent{
		UserID:    user,
		Kind:      models.MessageKindButton,
		Selection: &models.InteractiveSelection{ID: "option_" + strconv.Itoa(n), Title: title},
		Timestamp: testNow,
	})
}

func (h *harness) upload(user string, kind models.MessageKind, filename string) {
	h.d.Handle(context.Background(), models.InboundEvent{
		UserID:    user,
		Kind:      kind,
		Media:     &models.Media{ID: "media-1", MimeType: "image/jpeg", Filename: filename, Data: []byte("jpeg-bytes")},
		Timestamp: testNow,
	})
}

func (h *harness) state(t *testing.T, user string) *models.ConversationState {
	t.Helper()
	st, err := h.store.Get(context.Background(), user)
	if err != nil {
		t.Fatalf("store.Get(%q): %v", user, err)
	}
	return st
}

// seed stores a record at stage with the given responses and offered
// options.
func (h *harness) seed(t *testing.T, user string, stage models.Stage, mutate func(*models.ConversationState)) {
	t.Helper()
	st := models.NewConversationState(user, "Ali", testNow)
	st.Stage = stage
	if mutate != nil {
		mutate(st)
	}
	if err := h.store.Save(context.Background(), st); err != nil {
		t.Fatalf("store.Save: %v", err)
	}
}
