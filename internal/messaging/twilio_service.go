package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/Insura/internal/models"
	"github.com/BTreeMap/Insura/internal/twiliowhatsapp"
)

// TwilioService implements the Service interface using Twilio API. Twilio
// has no interactive messages here, so menus degrade to numbered text.
type TwilioService struct {
	*eventChannels
	client twiliowhatsapp.Sender
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a new TwilioService around client.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		eventChannels: newEventChannels("TwilioService"),
		client:        client,
	}
}

func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalRecipient("TwilioService", recipient)
}

// Start does nothing; events arrive through TwilioWebhookHandler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service
func (s *TwilioService) Stop() error {
	s.stop()
	return nil
}

// SendText sends a message via Twilio and emits a receipt
func (s *TwilioService) SendText(ctx context.Context, to, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendText validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendText(ctx, canonicalTo, body); err != nil {
		return err
	}
	s.safeEmitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

func (s *TwilioService) SendButtons(ctx context.Context, to, body string, options []string) error {
	return s.SendText(ctx, to, formatNumberedOptions(body, options))
}

func (s *TwilioService) SendList(ctx context.Context, to, body string, options []string) error {
	return s.SendText(ctx, to, formatNumberedOptions(body, options))
}

func (s *TwilioService) SendLinkButton(ctx context.Context, to, body, label, url string) error {
	return s.SendText(ctx, to, formatLink(body, label, url))
}

// FetchMedia downloads the attachment; for Twilio the media id is its URL.
func (s *TwilioService) FetchMedia(ctx context.Context, media *models.Media) ([]byte, string, error) {
	if media == nil || media.ID == "" {
		return nil, "", fmt.Errorf("media reference is empty")
	}
	data, mime, err := s.client.FetchMedia(ctx, media.ID)
	if err != nil {
		return nil, "", err
	}
	if media.MimeType != "" {
		mime = media.MimeType
	}
	return data, mime, nil
}

// TwilioWebhookHandler handles inbound Twilio webhook requests.
// It parses incoming messages and emits them into the Events() channel.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	slog.Info("Twilio webhook received")

	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	evt, err := parseTwilioForm(r)
	if err != nil {
		slog.Warn("Twilio webhook rejected", "error", err)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	slog.Info("Inbound WhatsApp message from Twilio", "from", evt.UserID, "kind", evt.Kind)
	s.safeEmitEvent(evt)

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func parseTwilioForm(r *http.Request) (models.InboundEvent, error) {
	from := r.FormValue("From")
	body := r.FormValue("Body")
	numMedia, _ := strconv.Atoi(r.FormValue("NumMedia"))
	if from == "" {
		return models.InboundEvent{}, fmt.Errorf("missing From")
	}
	userID, err := canonicalRecipient("TwilioService", from)
	if err != nil {
		return models.InboundEvent{}, err
	}
	evt := models.InboundEvent{
		UserID:      userID,
		MessageID:   r.FormValue("MessageSid"),
		ProfileName: r.FormValue("ProfileName"),
		Timestamp:   time.Now(),
	}
	switch {
	case numMedia > 0:
		mime := r.FormValue("MediaContentType0")
		evt.Media = &models.Media{ID: r.FormValue("MediaUrl0"), MimeType: mime}
		switch {
		case strings.HasPrefix(mime, "audio/"):
			evt.Kind = models.MessageKindAudio
		case strings.HasPrefix(mime, "image/"):
			evt.Kind = models.MessageKindImage
		default:
			evt.Kind = models.MessageKindDocument
		}
		if evt.Media.ID == "" {
			return models.InboundEvent{}, fmt.Errorf("missing MediaUrl0")
		}
	case body != "":
		evt.Kind = models.MessageKindText
		evt.Text = body
	default:
		return models.InboundEvent{}, fmt.Errorf("missing Body")
	}
	return evt, nil
}
