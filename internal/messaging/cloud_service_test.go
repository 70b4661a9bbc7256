package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BTreeMap/Insura/internal/cloudapi"
	"github.com/BTreeMap/Insura/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const sampleWebhook = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "contacts": [{"wa_id": "971500000001", "profile": {"name": "Ali"}}],
        "messages": [
          {"from": "971500000001", "id": "wamid.1", "timestamp": "1700000000", "type": "text", "text": {"body": "Hello"}},
          {"from": "971500000001", "id": "wamid.2", "timestamp": "1700000001", "type": "interactive",
           "interactive": {"type": "button_reply", "button_reply": {"id": "option_1", "title": "Medical Insurance"}}},
          {"from": "971500000001", "id": "wamid.3", "timestamp": "1700000002", "type": "image",
           "image": {"id": "media-1", "mime_type": "image/jpeg"}},
          {"from": "971500000001", "id": "wamid.4", "timestamp": "1700000003", "type": "sticker"}
        ],
        "statuses": [{"id": "wamid.9", "status": "delivered", "timestamp": "1700000004", "recipient_id": "971500000001"}]
      }
    }]
  }]
}`

func TestCloudService_WebhookVerification(t *testing.T) {
	svc := NewCloudService(cloudapi.NewMockClient(), "secret")
	defer svc.Stop()

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantBody string
	}{
		{"valid", "hub.mode=subscribe&hub.verify_token=secret&hub.challenge=42", http.StatusOK, "42"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=secret&hub.challenge=42", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil)
			rec := httptest.NewRecorder()
			svc.WebhookHandler(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestCloudService_WebhookEmitsEventsAndReceipts(t *testing.T) {
	svc := NewCloudService(cloudapi.NewMockClient(), "secret")
	defer svc.Stop()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(sampleWebhook))
	rec := httptest.NewRecorder()
	svc.WebhookHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}

	var got []models.InboundEvent
	for i := 0; i < 3; i++ {
		got = append(got, <-svc.Events())
	}
	want := []models.InboundEvent{
		{UserID: "971500000001", MessageID: "wamid.1", Kind: models.MessageKindText, Text: "Hello", ProfileName: "Ali"},
		{UserID: "971500000001", MessageID: "wamid.2", Kind: models.MessageKindButton, Text: "Medical Insurance",
			Selection: &models.InteractiveSelection{ID: "option_1", Title: "Medical Insurance"}, ProfileName: "Ali"},
		{UserID: "971500000001", MessageID: "wamid.3", Kind: models.MessageKindImage,
			Media: &models.Media{ID: "media-1", MimeType: "image/jpeg"}, ProfileName: "Ali"},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(models.InboundEvent{}, "Timestamp")); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if got[0].Timestamp.Unix() != 1700000000 {
		t.Errorf("timestamp = %v", got[0].Timestamp)
	}

	receipt := <-svc.Receipts()
	if receipt.Status != models.MessageStatusDelivered || receipt.To != "971500000001" {
		t.Errorf("unexpected receipt %+v", receipt)
	}
}

func TestCloudService_MalformedWebhookStillAcknowledged(t *testing.T) {
	svc := NewCloudService(cloudapi.NewMockClient(), "secret")
	defer svc.Stop()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	svc.WebhookHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
	select {
	case evt := <-svc.Events():
		t.Errorf("unexpected event %+v", evt)
	default:
	}
}

func TestCloudService_SendsThroughClient(t *testing.T) {
	client := cloudapi.NewMockClient()
	svc := NewCloudService(client, "")
	defer svc.Stop()
	ctx := context.Background()

	if err := svc.SendButtons(ctx, "+971500000001", "Continue?", []string{"Yes", "No"}); err != nil {
		t.Fatalf("SendButtons: %v", err)
	}
	if err := svc.SendLinkButton(ctx, "971500000001", "Buy here", "Open", "https://example.com"); err != nil {
		t.Fatalf("SendLinkButton: %v", err)
	}
	if err := svc.SendText(ctx, "12", "x"); err == nil {
		t.Error("expected validation error for short number")
	}

	sent := client.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sent))
	}
	if sent[0].Kind != "buttons" || sent[0].To != "971500000001" || len(sent[0].Options) != 2 {
		t.Errorf("unexpected buttons message %+v", sent[0])
	}
	if sent[1].Kind != "link" || sent[1].URL != "https://example.com" {
		t.Errorf("unexpected link message %+v", sent[1])
	}
}

func TestCloudService_FetchMedia(t *testing.T) {
	client := cloudapi.NewMockClient()
	client.Media["media-1"] = []byte("jpeg")
	client.MediaMime["media-1"] = "image/jpeg"
	svc := NewCloudService(client, "")
	defer svc.Stop()

	data, mime, err := svc.FetchMedia(context.Background(), &models.Media{ID: "media-1"})
	if err != nil || string(data) != "jpeg" || mime != "image/jpeg" {
		t.Errorf("FetchMedia = %q, %q, %v", data, mime, err)
	}
	if _, _, err := svc.FetchMedia(context.Background(), &models.Media{}); err == nil {
		t.Error("expected error for empty media id")
	}
}
