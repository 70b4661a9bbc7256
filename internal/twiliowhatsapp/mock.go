package twiliowhatsapp

import (
	"context"
	"fmt"
	"sync"
)

// SentText is one message recorded by MockClient.
type SentText struct {
	To   string
	Body string
}

// MockClient is an in-memory Sender keyed by media URL.
type MockClient struct {
	mu    sync.Mutex
	sent  []SentText
	Media map[string][]byte
}

var _ Sender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{Media: map[string][]byte{}}
}

func (m *MockClient) SendText(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentText{To: to, Body: body})
	return nil
}

// FetchMedia returns registered bytes. The type is left generic so callers
// fall back to the MIME type from the webhook.
func (m *MockClient) FetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Media[mediaURL]
	if !ok {
		return nil, "", fmt.Errorf("no media registered for %s", mediaURL)
	}
	return data, "application/octet-stream", nil
}

func (m *MockClient) Sent() []SentText {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentText(nil), m.sent...)
}
