package messaging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/BTreeMap/Insura/internal/models"
	"github.com/BTreeMap/Insura/internal/store"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrentTurns bounds how many users are served at once.
const DefaultMaxConcurrentTurns = 64

// User-facing notices sent while preparing an event.
const (
	VoiceDownloadFailedMessage   = "Sorry, I couldn't download your voice message. Please try again."
	VoiceTranscribeFailedMessage = "Sorry, I couldn't transcribe your voice message. Please try again or type your message."
	MediaDownloadFailedMessage   = "Sorry, I couldn't download your document. Please try again."
)

// Dispatcher runs one conversation turn for an inbound event.
type Dispatcher interface {
	Handle(ctx context.Context, evt models.InboundEvent)
}

// Transcriber converts voice notes to text.
type Transcriber interface {
	Transcribe(ctx context.Context, r io.Reader, filename, mimeType string) (string, error)
}

// EventHandlerOpts configures an EventHandler.
type EventHandlerOpts struct {
	MaxConcurrentTurns int64
	Dedup              store.DedupRepo
	Transcriber        Transcriber
}

// EventHandlerOption configures an EventHandler.
type EventHandlerOption func(*EventHandlerOpts)

// WithMaxConcurrentTurns sets the worker pool size.
func WithMaxConcurrentTurns(n int64) EventHandlerOption {
	return func(o *EventHandlerOpts) { o.MaxConcurrentTurns = n }
}

// WithDedup drops redelivered messages using repo.
func WithDedup(repo store.DedupRepo) EventHandlerOption {
	return func(o *EventHandlerOpts) { o.Dedup = repo }
}

// WithTranscriber enables voice-note transcription.
func WithTranscriber(t Transcriber) EventHandlerOption {
	return func(o *EventHandlerOpts) { o.Transcriber = t }
}

// EventHandler consumes a Service's inbound events. Each user gets a FIFO
// queue drained by at most one goroutine, so a user's events are handled
// strictly in arrival order; a weighted semaphore bounds concurrent turns
// across users.
type EventHandler struct {
	svc         Service
	dispatcher  Dispatcher
	dedup       store.DedupRepo
	transcriber Transcriber
	sem         *semaphore.Weighted

	mu     sync.Mutex
	queues map[string][]models.InboundEvent
	wg     sync.WaitGroup
}

// NewEventHandler creates an EventHandler feeding dispatcher.
func NewEventHandler(svc Service, dispatcher Dispatcher, opts ...EventHandlerOption) *EventHandler {
	cfg := EventHandlerOpts{MaxConcurrentTurns: DefaultMaxConcurrentTurns}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxConcurrentTurns <= 0 {
		cfg.MaxConcurrentTurns = DefaultMaxConcurrentTurns
	}
	return &EventHandler{
		svc:         svc,
		dispatcher:  dispatcher,
		dedup:       cfg.Dedup,
		transcriber: cfg.Transcriber,
		sem:         semaphore.NewWeighted(cfg.MaxConcurrentTurns),
		queues:      make(map[string][]models.InboundEvent),
	}
}

// Start begins consuming events until the service's channel closes or ctx
// is cancelled. Delivery receipts are drained and logged on the same loop.
func (h *EventHandler) Start(ctx context.Context) {
	slog.Info("EventHandler starting event processing")
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer slog.Info("EventHandler stopped event processing")
		receipts := h.svc.Receipts()
		for {
			select {
			case evt, ok := <-h.svc.Events():
				if !ok {
					slog.Debug("EventHandler events channel closed")
					return
				}
				h.Enqueue(ctx, evt)
			case r, ok := <-receipts:
				if !ok {
					receipts = nil
					continue
				}
				logReceipt(r)
			case <-ctx.Done():
				slog.Debug("EventHandler stopping due to context cancellation")
				return
			}
		}
	}()
}

func logReceipt(r models.Receipt) {
	if r.Status == models.MessageStatusFailed {
		slog.Warn("EventHandler delivery failed", "to", r.To, "time", r.Time)
		return
	}
	slog.Debug("EventHandler delivery receipt", "to", r.To, "status", r.Status)
}

// Wait blocks until the consumer loop and all per-user workers have exited.
func (h *EventHandler) Wait() {
	h.wg.Wait()
}

// Enqueue schedules evt behind any earlier events of the same user.
// Redelivered message ids are dropped.
func (h *EventHandler) Enqueue(ctx context.Context, evt models.InboundEvent) {
	if evt.UserID == "" {
		slog.Warn("EventHandler dropping event without user id", "message_id", evt.MessageID)
		return
	}
	if h.dedup != nil && evt.MessageID != "" {
		isNew, err := h.dedup.RecordInbound(ctx, evt.MessageID, evt.UserID)
		if err != nil {
			slog.Error("EventHandler dedup check failed, processing anyway", "message_id", evt.MessageID, "error", err)
		} else if !isNew {
			slog.Info("EventHandler dropping duplicate message", "message_id", evt.MessageID, "user_id", evt.UserID)
			return
		}
	}

	h.mu.Lock()
	queue, active := h.queues[evt.UserID]
	h.queues[evt.UserID] = append(queue, evt)
	if !active {
		h.wg.Add(1)
		go h.drain(ctx, evt.UserID)
	}
	h.mu.Unlock()
}

// drain processes a user's queue until it is empty.
func (h *EventHandler) drain(ctx context.Context, userID string) {
	defer h.wg.Done()
	for {
		h.mu.Lock()
		queue := h.queues[userID]
		if len(queue) == 0 {
			delete(h.queues, userID)
			h.mu.Unlock()
			return
		}
		evt := queue[0]
		h.queues[userID] = queue[1:]
		h.mu.Unlock()

		h.process(ctx, evt)
	}
}

func (h *EventHandler) process(ctx context.Context, evt models.InboundEvent) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		slog.Warn("EventHandler dropping event, context done", "user_id", evt.UserID, "error", err)
		return
	}
	defer h.sem.Release(1)

	prepared, ok := h.prepare(ctx, evt)
	if ok {
		if err := prepared.Validate(); err != nil {
			slog.Warn("EventHandler dropping invalid event", "user_id", evt.UserID, "kind", evt.Kind, "error", err)
		} else {
			h.dispatcher.Handle(ctx, prepared)
		}
	}

	if h.dedup != nil && evt.MessageID != "" {
		if err := h.dedup.MarkInboundProcessed(context.WithoutCancel(ctx), evt.MessageID); err != nil {
			slog.Warn("EventHandler failed to mark message processed", "message_id", evt.MessageID, "error", err)
		}
	}
}

// prepare downloads media and transcribes voice notes. It returns false when
// the user was already told what went wrong.
func (h *EventHandler) prepare(ctx context.Context, evt models.InboundEvent) (models.InboundEvent, bool) {
	switch {
	case evt.Kind == models.MessageKindAudio:
		data, mime, err := h.mediaBytes(ctx, evt.Media)
		if err != nil {
			slog.Error("EventHandler failed to fetch voice message", "user_id", evt.UserID, "error", err)
			h.notify(ctx, evt.UserID, VoiceDownloadFailedMessage)
			return evt, false
		}
		if h.transcriber == nil {
			h.notify(ctx, evt.UserID, VoiceTranscribeFailedMessage)
			return evt, false
		}
		text, err := h.transcriber.Transcribe(ctx, bytes.NewReader(data), "voice.ogg", mime)
		if err != nil || text == "" {
			slog.Error("EventHandler failed to transcribe voice message", "user_id", evt.UserID, "error", err)
			h.notify(ctx, evt.UserID, VoiceTranscribeFailedMessage)
			return evt, false
		}
		h.notify(ctx, evt.UserID, fmt.Sprintf("I heard: \"%s\"", text))
		evt.Kind = models.MessageKindText
		evt.Text = text
		evt.Media = nil
		return evt, true

	case evt.Kind.IsUpload():
		data, mime, err := h.mediaBytes(ctx, evt.Media)
		if err != nil {
			slog.Error("EventHandler failed to fetch media", "user_id", evt.UserID, "error", err)
			h.notify(ctx, evt.UserID, MediaDownloadFailedMessage)
			return evt, false
		}
		media := *evt.Media
		media.Data = data
		if media.MimeType == "" {
			media.MimeType = mime
		}
		evt.Media = &media
		return evt, true
	}
	return evt, true
}

func (h *EventHandler) mediaBytes(ctx context.Context, media *models.Media) ([]byte, string, error) {
	if media == nil {
		return nil, "", fmt.Errorf("event has no media")
	}
	if len(media.Data) > 0 {
		return media.Data, media.MimeType, nil
	}
	return h.svc.FetchMedia(ctx, media)
}

func (h *EventHandler) notify(ctx context.Context, to, text string) {
	if err := h.svc.SendText(ctx, to, text); err != nil {
		slog.Error("EventHandler failed to notify user", "to", to, "error", err)
	}
}
