package whatsapp

import (
	"context"
	"fmt"
	"sync"

	"go.mau.fi/whatsmeow"
)

// SentText is one message recorded by MockClient.
type SentText struct {
	To   string
	Body string
}

// MockClient is an in-memory Device. Emit feeds events to subscribers.
type MockClient struct {
	mu       sync.Mutex
	sent     []SentText
	handlers []func(any)

	// MediaData is returned by every Download; nil makes Download fail.
	MediaData []byte
	// SendErr, when set, fails every SendText.
	SendErr   error
}

var _ Device = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendText(ctx context.Context, to, body string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentText{To: to, Body: body})
	return nil
}

func (m *MockClient) Download(ctx context.Context, media whatsmeow.DownloadableMessage) ([]byte, error) {
	if m.MediaData == nil {
		return nil, fmt.Errorf("no media configured")
	}
	return m.MediaData, nil
}

func (m *MockClient) Subscribe(handler func(evt any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Emit delivers evt to every subscriber synchronously.
func (m *MockClient) Emit(evt any) {
	m.mu.Lock()
	handlers := append(([]func(any))(nil), m.handlers...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(evt)
	}
}

func (m *MockClient) Sent() []SentText {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentText(nil), m.sent...)
}
