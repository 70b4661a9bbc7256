package cloudapi

import (
	"context"
	"fmt"
	"sync"
)

// SentMessage is one outbound call recorded by MockClient.
type SentMessage struct {
	Kind    string // text, buttons, list, link
	To      string
	Body    string
	Options []string
	Label   string
	URL     string
}

// MockClient implements Sender for tests and records every call.
type MockClient struct {
	mu           sync.Mutex
	SentMessages []SentMessage
	Media        map[string][]byte
	MediaMime    map[string]string
	Err          error
}

var _ Sender = (*MockClient)(nil)

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{Media: map[string][]byte{}, MediaMime: map[string]string{}}
}

func (m *MockClient) record(msg SentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, msg)
	return nil
}

func (m *MockClient) SendText(ctx context.Context, to, body string) error {
	return m.record(SentMessage{Kind: "text", To: to, Body: body})
}

func (m *MockClient) SendButtons(ctx context.Context, to, body string, options []string) error {
	return m.record(SentMessage{Kind: "buttons", To: to, Body: body, Options: append([]string(nil), options...)})
}

func (m *MockClient) SendList(ctx context.Context, to, body string, options []string) error {
	return m.record(SentMessage{Kind: "list", To: to, Body: body, Options: append([]string(nil), options...)})
}

func (m *MockClient) SendLinkButton(ctx context.Context, to, body, label, url string) error {
	return m.record(SentMessage{Kind: "link", To: to, Body: body, Label: label, URL: url})
}

func (m *MockClient) FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Media[mediaID]
	if !ok {
		return nil, "", fmt.Errorf("media %s not found", mediaID)
	}
	return data, m.MediaMime[mediaID], nil
}

// Sent returns a copy of the recorded messages.
func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.SentMessages...)
}
