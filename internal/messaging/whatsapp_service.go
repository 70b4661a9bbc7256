package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/Insura/internal/models"
	"github.com/BTreeMap/Insura/internal/whatsapp"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService runs Insura on a linked device. Interactive messages
// degrade to numbered text as on Twilio, and media is downloaded as soon as
// the event arrives because whatsmeow media keys are not refetchable.
type WhatsAppService struct {
	*eventChannels
	device whatsapp.Device
}

var _ Service = (*WhatsAppService)(nil)

func NewWhatsAppService(device whatsapp.Device) *WhatsAppService {
	return &WhatsAppService{
		eventChannels: newEventChannels("WhatsAppService"),
		device:        device,
	}
}

func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalRecipient("WhatsAppService", recipient)
}

// Start subscribes to device events. Events arriving after Stop are dropped
// by the closed channels.
func (s *WhatsAppService) Start(ctx context.Context) error {
	s.device.Subscribe(func(evt any) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(ctx, v)
		case *events.Receipt:
			s.handleMessageReceipt(v)
		}
	})
	slog.Debug("WhatsAppService.Start: subscribed to device events")
	return nil
}

// Stop stops background processing.
func (s *WhatsAppService) Stop() error {
	s.stop()
	return nil
}

// SendText sends a message and emits a sent receipt.
func (s *WhatsAppService) SendText(ctx context.Context, to, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.device.SendText(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService SendText error", "error", err, "to", canonicalTo)
		return err
	}
	s.safeEmitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

func (s *WhatsAppService) SendButtons(ctx context.Context, to, body string, options []string) error {
	return s.SendText(ctx, to, formatNumberedOptions(body, options))
}

func (s *WhatsAppService) SendList(ctx context.Context, to, body string, options []string) error {
	return s.SendText(ctx, to, formatNumberedOptions(body, options))
}

func (s *WhatsAppService) SendLinkButton(ctx context.Context, to, body, label, url string) error {
	return s.SendText(ctx, to, formatLink(body, label, url))
}

// FetchMedia returns media already downloaded when the event arrived.
func (s *WhatsAppService) FetchMedia(ctx context.Context, media *models.Media) ([]byte, string, error) {
	if media == nil || len(media.Data) == 0 {
		return nil, "", fmt.Errorf("media not available")
	}
	return media.Data, media.MimeType, nil
}

// handleIncomingMessage converts a whatsmeow message into an InboundEvent.
func (s *WhatsAppService) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe {
		return
	}
	inbound, ok := s.convertMessage(ctx, evt.Message)
	if !ok {
		slog.Debug("WhatsAppService ignoring unsupported message", "from", evt.Info.Sender.User)
		return
	}
	inbound.UserID = evt.Info.Sender.User
	inbound.MessageID = evt.Info.ID
	inbound.ProfileName = evt.Info.PushName
	inbound.Timestamp = evt.Info.Timestamp
	s.safeEmitEvent(inbound)
}

func (s *WhatsAppService) convertMessage(ctx context.Context, msg *waE2E.Message) (models.InboundEvent, bool) {
	var evt models.InboundEvent
	var downloadable whatsmeow.DownloadableMessage
	switch {
	case msg.GetConversation() != "":
		evt.Kind = models.MessageKindText
		evt.Text = msg.GetConversation()
		return evt, true
	case msg.GetExtendedTextMessage().GetText() != "":
		evt.Kind = models.MessageKindText
		evt.Text = msg.GetExtendedTextMessage().GetText()
		return evt, true
	case msg.GetImageMessage() != nil:
		img := msg.GetImageMessage()
		evt.Kind = models.MessageKindImage
		evt.Media = &models.Media{MimeType: img.GetMimetype()}
		downloadable = img
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		evt.Kind = models.MessageKindDocument
		evt.Media = &models.Media{MimeType: doc.GetMimetype(), Filename: doc.GetFileName()}
		downloadable = doc
	case msg.GetAudioMessage() != nil:
		audio := msg.GetAudioMessage()
		evt.Kind = models.MessageKindAudio
		evt.Media = &models.Media{MimeType: audio.GetMimetype()}
		downloadable = audio
	default:
		return evt, false
	}

	data, err := s.device.Download(ctx, downloadable)
	if err != nil {
		slog.Error("WhatsAppService failed to download media", "kind", evt.Kind, "error", err)
		return evt, false
	}
	evt.Media.Data = data
	return evt, true
}

// handleMessageReceipt forwards delivery and read receipts.
func (s *WhatsAppService) handleMessageReceipt(evt *events.Receipt) {
	var status models.MessageStatus
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		status = models.MessageStatusRead
	default:
		return
	}
	s.safeEmitReceipt(models.Receipt{
		To:     evt.MessageSource.Sender.User,
		Status: status,
		Time:   evt.Timestamp.Unix(),
	})
}
