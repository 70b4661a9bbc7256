// Package conversation implements the Insura intake state machine.
//
// A Dispatcher owns every user's ConversationState. For each inbound event
// it takes that user's lock, loads or creates the record, gives the
// interrupt matchers (language, EMAF, Takaful) a chance to take the turn and
// otherwise runs the handler registered for the current stage. Stage
// handlers validate the input, write responses, send the next question and
// move the stage; the record is saved once the turn completes.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/BTreeMap/Insura/internal/backend"
	"github.com/BTreeMap/Insura/internal/events"
	"github.com/BTreeMap/Insura/internal/extraction"
	"github.com/BTreeMap/Insura/internal/models"
	"github.com/BTreeMap/Insura/internal/store"
)

// Default link targets.
const (
	DefaultQuoteLinkBase      = "https://insuranceclub.ae/customer_plan/"
	DefaultEMAFLinkBase       = "https://www.insuranceclub.ae/medical_form/view/"
	DefaultReviewLink         = "https://www.google.com/search?q=wehbe+insurance+services+llc+reviews"
	DefaultTakafulBrochureURL = "https://iinsura.ai/slver-plan/pdf-view/*"
)

// ErrMissingCollaborator is returned by NewDispatcher when a required
// dependency was not supplied.
var ErrMissingCollaborator = errors.New("missing required collaborator")

// Replier sends messages to a user in the user's language. Failures are
// handled by the implementation; stage logic never waits on delivery.
type Replier interface {
	SendText(ctx context.Context, to, lang, text string)
	SendOptions(ctx context.Context, to, lang, text string, options []string)
	SendLink(ctx context.Context, to, lang, text, label, url string)
}

// Assistant is the LLM used for free-form replies and classification.
type Assistant interface {
	Ask(ctx context.Context, system, prompt string) (string, error)
	Classify(ctx context.Context, system, prompt string, labels []string) (string, error)
}

// Links holds the user-facing URLs the flows hand out.
type Links struct {
	QuoteBase       string
	EMAFBase        string
	Review          string
	TakafulBrochure string
}

// Opts holds configuration options for Dispatcher.
type Opts struct {
	Store     store.ConversationStore
	Replier   Replier
	Assistant Assistant
	Extractor extraction.Extractor
	Submitter backend.Submitter
	Publisher events.Publisher
	Outbox    store.OutboxRepo
	Catalog   *Catalog
	Sleeper   Sleeper
	Links     Links
	Clock     func() time.Time
}

// Option defines a configuration option for Dispatcher.
type Option func(*Opts)

// WithStore sets the conversation store.
func WithStore(s store.ConversationStore) Option {
	return func(o *Opts) { o.Store = s }
}

// WithReplier sets the outbound messaging gateway.
func WithReplier(r Replier) Option {
	return func(o *Opts) { o.Replier = r }
}

// WithAssistant sets the LLM assistant.
func WithAssistant(a Assistant) Option {
	return func(o *Opts) { o.Assistant = a }
}

// WithExtractor sets the document extraction service.
func WithExtractor(e extraction.Extractor) Option {
	return func(o *Opts) { o.Extractor = e }
}

// WithSubmitter sets the quote and EMAF backend.
func WithSubmitter(s backend.Submitter) Option {
	return func(o *Opts) { o.Submitter = s }
}

// WithPublisher sets the lead event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(o *Opts) { o.Publisher = p }
}

// WithOutbox enables background retry of failed medical submissions.
func WithOutbox(r store.OutboxRepo) Option {
	return func(o *Opts) { o.Outbox = r }
}

// WithCatalog replaces the built-in catalog.
func WithCatalog(c *Catalog) Option {
	return func(o *Opts) { o.Catalog = c }
}

// WithSleeper sets the pacing sleeper.
func WithSleeper(s Sleeper) Option {
	return func(o *Opts) { o.Sleeper = s }
}

// WithLinks overrides the default link targets. Empty fields keep defaults.
func WithLinks(l Links) Option {
	return func(o *Opts) { o.Links = l }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Clock = now }
}

// Dispatcher is the per-user conversation state machine.
type Dispatcher struct {
	store     store.ConversationStore
	replier   Replier
	assistant Assistant
	extractor extraction.Extractor
	submitter backend.Submitter
	publisher events.Publisher
	outbox    store.OutboxRepo
	catalog   *Catalog
	sleeper   Sleeper
	links     Links
	now       func() time.Time

	locks      *keyedMutex
	handlers   map[models.Stage]stageHandler
	interrupts []interrupt
	docs       map[models.DocumentKind]*documentFlow
	fallback   *Fallback
}

// NewDispatcher creates a Dispatcher. Store, Replier, Assistant, Extractor
// and Submitter are required.
func NewDispatcher(opts ...Option) (*Dispatcher, error) {
	cfg := Opts{}
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingCollaborator)
	case cfg.Replier == nil:
		return nil, fmt.Errorf("%w: replier", ErrMissingCollaborator)
	case cfg.Assistant == nil:
		return nil, fmt.Errorf("%w: assistant", ErrMissingCollaborator)
	case cfg.Extractor == nil:
		return nil, fmt.Errorf("%w: extractor", ErrMissingCollaborator)
	case cfg.Submitter == nil:
		return nil, fmt.Errorf("%w: submitter", ErrMissingCollaborator)
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = TimerSleeper{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	cfg.Links = withDefaultLinks(cfg.Links)

	d := &Dispatcher{
		store:     cfg.Store,
		replier:   cfg.Replier,
		assistant: cfg.Assistant,
		extractor: cfg.Extractor,
		submitter: cfg.Submitter,
		publisher: cfg.Publisher,
		outbox:    cfg.Outbox,
		catalog:   cfg.Catalog,
		sleeper:   cfg.Sleeper,
		links:     cfg.Links,
		now:       cfg.Clock,
		locks:     newKeyedMutex(),
	}
	d.fallback = NewFallback(cfg.Assistant)
	d.docs = d.documentFlows()
	d.handlers = d.stageHandlers()
	d.interrupts = []interrupt{
		d.languageInterrupt,
		d.emafInterrupt,
		d.takafulInterrupt,
	}
	slog.Debug("NewDispatcher created", "stages", len(d.handlers), "outbox", cfg.Outbox != nil)
	return d, nil
}

func withDefaultLinks(l Links) Links {
	if l.QuoteBase == "" {
		l.QuoteBase = DefaultQuoteLinkBase
	}
	if l.EMAFBase == "" {
		l.EMAFBase = DefaultEMAFLinkBase
	}
	if l.Review == "" {
		l.Review = DefaultReviewLink
	}
	if l.TakafulBrochure == "" {
		l.TakafulBrochure = DefaultTakafulBrochureURL
	}
	return l
}

// stageHandler runs one stage. prompt re-asks the stage's question and may
// be nil for stages that have nothing to re-ask.
type stageHandler struct {
	handle func(t *turn)
	prompt func(t *turn)
}

// interrupt inspects a turn before stage dispatch and reports whether it
// took the turn.
type interrupt func(t *turn) bool

// Handle processes one inbound event to completion. It never returns an
// error: failures are logged and the user receives an apology.
func (d *Dispatcher) Handle(ctx context.Context, evt models.InboundEvent) {
	unlock := d.locks.Lock(evt.UserID)
	defer unlock()

	state, err := d.load(ctx, evt)
	if err != nil {
		slog.Error("Dispatcher.Handle: failed to load state", "user_id", evt.UserID, "error", err)
		d.replier.SendText(ctx, evt.UserID, "", msgApology)
		return
	}

	t := newTurn(ctx, d, state, evt)
	if !d.run(t) {
		return
	}
	t.state.UpdatedAt = d.now()
	if err := d.store.Save(ctx, t.state); err != nil {
		slog.Error("Dispatcher.Handle: failed to save state", "user_id", evt.UserID, "stage", t.state.Stage, "error", err)
		return
	}
	slog.Debug("Dispatcher.Handle: turn complete", "user_id", evt.UserID, "stage", t.state.Stage)
}

// run executes the turn and reports whether the state should be saved. A
// panicking handler leaves the stored record untouched.
func (d *Dispatcher) run(t *turn) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatcher.run: handler panicked", "user_id", t.userID(), "stage", t.state.Stage, "panic", r, "stack", string(debug.Stack()))
			t.say(msgApology)
			ok = false
		}
	}()

	t.state.Record(string(t.state.Stage), t.inputLabel(), d.now())
	for _, match := range d.interrupts {
		if match(t) {
			return true
		}
	}
	d.route(t)
	return true
}

func (d *Dispatcher) load(ctx context.Context, evt models.InboundEvent) (*models.ConversationState, error) {
	state, err := d.store.Get(ctx, evt.UserID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("Dispatcher.load: new conversation", "user_id", evt.UserID)
		return models.NewConversationState(evt.UserID, strings.TrimSpace(evt.ProfileName), d.now()), nil
	}
	if err != nil {
		return nil, err
	}
	if state.ProfileName == "" && evt.ProfileName != "" {
		state.ProfileName = strings.TrimSpace(evt.ProfileName)
	}
	return state, nil
}

// route runs the handler of the current stage. Uploads go to the document
// flow owning the stage; anything else is told no document was expected.
func (d *Dispatcher) route(t *turn) {
	stage := t.state.Stage
	if t.event.Kind.IsUpload() {
		if flow, back := d.uploadFlow(t); flow != nil {
			if back {
				flow.receiveBack(t)
			} else {
				flow.receive(t)
			}
			return
		}
		t.say(msgUnexpectedUpload)
		if h, ok := d.handlers[stage]; ok && h.prompt != nil {
			h.prompt(t)
		}
		return
	}

	h, ok := d.handlers[stage]
	if !ok {
		slog.Warn("Dispatcher.route: unknown stage, resetting to menu", "user_id", t.userID(), "stage", stage)
		d.showMenu(t, msgMenu)
		return
	}
	h.handle(t)
}

// retry answers off-script input through the fallback assistant and then
// re-asks the current stage's question.
func (d *Dispatcher) retry(t *turn) {
	d.fallback.Respond(t)
	t.pause(time.Second)
	if h, ok := d.handlers[t.state.Stage]; ok && h.prompt != nil {
		h.prompt(t)
	}
}

// Reset deletes a user's conversation. It reports whether one existed.
func (d *Dispatcher) Reset(ctx context.Context, userID string) (bool, error) {
	unlock := d.locks.Lock(userID)
	defer unlock()
	return d.store.Delete(ctx, userID)
}

// Greet starts a fresh conversation proactively. The user's name and
// language survive; everything else is discarded.
func (d *Dispatcher) Greet(ctx context.Context, userID string) error {
	unlock := d.locks.Lock(userID)
	defer unlock()

	state := models.NewConversationState(userID, "", d.now())
	old, err := d.store.Get(ctx, userID)
	switch {
	case err == nil:
		state.Name, state.ProfileName, state.Language = old.Name, old.ProfileName, old.Language
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("failed to load conversation: %w", err)
	}

	t := newTurn(ctx, d, state, models.InboundEvent{UserID: userID, Kind: models.MessageKindText, Timestamp: d.now()})
	d.greet(t)
	if err := d.store.Save(ctx, t.state); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// publish sends a lead event about the turn's user.
func (d *Dispatcher) publish(t *turn, typ events.LeadType, data map[string]string) {
	d.emit(t.ctx, events.NewLeadEvent(typ, t.userID(), t.state.SelectedService, data))
}

// emit publishes evt; failures are only logged.
func (d *Dispatcher) emit(ctx context.Context, evt events.LeadEvent) {
	if err := d.publisher.Publish(ctx, evt); err != nil {
		slog.Warn("Dispatcher.emit: lead event not published", "user_id", evt.UserID, "type", evt.Type, "error", err)
	}
}

// Fallback returns the assistant used for off-script messages.
func (d *Dispatcher) Fallback() *Fallback {
	return d.fallback
}
