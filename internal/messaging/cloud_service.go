package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/Insura/internal/cloudapi"
	"github.com/BTreeMap/Insura/internal/models"
)

// maxWebhookBody caps the size of an inbound webhook payload.
const maxWebhookBody = 1 << 20

// CloudService implements Service over the WhatsApp Cloud API.
type CloudService struct {
	*eventChannels
	client      cloudapi.Sender
	verifyToken string
}

var _ Service = (*CloudService)(nil)

// NewCloudService creates a CloudService. verifyToken is compared against
// hub.verify_token during webhook registration.
func NewCloudService(client cloudapi.Sender, verifyToken string) *CloudService {
	return &CloudService{
		eventChannels: newEventChannels("CloudService"),
		client:        client,
		verifyToken:   verifyToken,
	}
}

func (s *CloudService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalRecipient("CloudService", recipient)
}

// Start is a no-op; events arrive through WebhookHandler.
func (s *CloudService) Start(ctx context.Context) error {
	return nil
}

func (s *CloudService) Stop() error {
	s.stop()
	return nil
}

func (s *CloudService) send(to string, fn func(to string) error) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := fn(canonicalTo); err != nil {
		return err
	}
	s.safeEmitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

func (s *CloudService) SendText(ctx context.Context, to, body string) error {
	return s.send(to, func(to string) error { return s.client.SendText(ctx, to, body) })
}

func (s *CloudService) SendButtons(ctx context.Context, to, body string, options []string) error {
	return s.send(to, func(to string) error { return s.client.SendButtons(ctx, to, body, options) })
}

func (s *CloudService) SendList(ctx context.Context, to, body string, options []string) error {
	return s.send(to, func(to string) error { return s.client.SendList(ctx, to, body, options) })
}

func (s *CloudService) SendLinkButton(ctx context.Context, to, body, label, url string) error {
	return s.send(to, func(to string) error { return s.client.SendLinkButton(ctx, to, body, label, url) })
}

func (s *CloudService) FetchMedia(ctx context.Context, media *models.Media) ([]byte, string, error) {
	if media == nil || media.ID == "" {
		return nil, "", fmt.Errorf("media reference is empty")
	}
	return s.client.FetchMedia(ctx, media.ID)
}

// WebhookHandler serves both the GET subscription handshake and POSTed
// message notifications.
func (s *CloudService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.verifyWebhook(w, r)
	case http.MethodPost:
		s.receiveWebhook(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *CloudService) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")
	if mode == "subscribe" && s.verifyToken != "" && token == s.verifyToken {
		slog.Info("CloudService webhook verified")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, challenge)
		return
	}
	slog.Warn("CloudService webhook verification failed", "mode", mode)
	http.Error(w, "verification failed", http.StatusForbidden)
}

// receiveWebhook always answers 200 so the platform does not retry payloads
// we cannot use.
func (s *CloudService) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		slog.Error("CloudService failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	var payload cloudapi.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.Warn("CloudService received malformed webhook", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	for _, evt := range ParseWebhookPayload(payload) {
		s.safeEmitEvent(evt)
	}
	for _, st := range webhookStatuses(payload) {
		s.safeEmitReceipt(st)
	}
	w.WriteHeader(http.StatusOK)
}

// ParseWebhookPayload converts a Cloud API notification into inbound events.
// Unsupported message types are logged and skipped.
func ParseWebhookPayload(payload cloudapi.WebhookPayload) []models.InboundEvent {
	var out []models.InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				evt, ok := convertWebhookMessage(m)
				if !ok {
					slog.Debug("CloudService ignoring message type", "type", m.Type, "from", m.From)
					continue
				}
				evt.ProfileName = names[m.From]
				out = append(out, evt)
			}
		}
	}
	return out
}

func convertWebhookMessage(m cloudapi.WebhookMessage) (models.InboundEvent, bool) {
	evt := models.InboundEvent{
		UserID:    m.From,
		MessageID: m.ID,
		Timestamp: parseUnix(m.Timestamp),
	}
	switch m.Type {
	case "text":
		if m.Text == nil {
			return evt, false
		}
		evt.Kind = models.MessageKindText
		evt.Text = m.Text.Body
	case "interactive":
		if m.Interactive == nil {
			return evt, false
		}
		switch {
		case m.Interactive.ButtonReply != nil:
			evt.Kind = models.MessageKindButton
			evt.Selection = &models.InteractiveSelection{ID: m.Interactive.ButtonReply.ID, Title: m.Interactive.ButtonReply.Title}
		case m.Interactive.ListReply != nil:
			evt.Kind = models.MessageKindList
			evt.Selection = &models.InteractiveSelection{ID: m.Interactive.ListReply.ID, Title: m.Interactive.ListReply.Title}
		default:
			return evt, false
		}
		evt.Text = evt.Selection.Title
	case "button":
		if m.Button == nil {
			return evt, false
		}
		evt.Kind = models.MessageKindButton
		evt.Selection = &models.InteractiveSelection{ID: m.Button.Payload, Title: m.Button.Text}
		evt.Text = m.Button.Text
	case "audio":
		if m.Audio == nil {
			return evt, false
		}
		evt.Kind = models.MessageKindAudio
		evt.Media = &models.Media{ID: m.Audio.ID, MimeType: m.Audio.MimeType}
	case "document":
		if m.Document == nil {
			return evt, false
		}
		evt.Kind = models.MessageKindDocument
		evt.Media = &models.Media{ID: m.Document.ID, MimeType: m.Document.MimeType, Filename: m.Document.Filename}
	case "image":
		if m.Image == nil {
			return evt, false
		}
		evt.Kind = models.MessageKindImage
		evt.Media = &models.Media{ID: m.Image.ID, MimeType: m.Image.MimeType}
	default:
		return evt, false
	}
	return evt, true
}

func webhookStatuses(payload cloudapi.WebhookPayload) []models.Receipt {
	var out []models.Receipt
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				out = append(out, models.Receipt{
					To:     st.RecipientID,
					Status: models.MessageStatus(st.Status),
					Time:   parseUnix(st.Timestamp).Unix(),
				})
			}
		}
	}
	return out
}

func parseUnix(ts string) time.Time {
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || sec <= 0 {
		return time.Now()
	}
	return time.Unix(sec, 0)
}
