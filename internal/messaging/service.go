// Package messaging connects Insura to WhatsApp. It provides one Service per
// transport (Cloud API, Twilio, whatsmeow), the Gateway used by the
// conversation layer to reply, and the EventHandler that feeds inbound
// messages to the dispatcher.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/Insura/internal/models"
	"github.com/BTreeMap/Insura/internal/util"
)

// Constants for service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for event and receipt channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

// Service defines a pluggable WhatsApp transport.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendText sends a plain text message.
	SendText(ctx context.Context, to, body string) error

	// SendButtons sends up to three reply options.
	SendButtons(ctx context.Context, to, body string, options []string) error

	// SendList sends a menu of up to ten options.
	SendList(ctx context.Context, to, body string, options []string) error

	// SendLinkButton sends a message with a button opening url.
	SendLinkButton(ctx context.Context, to, body, label, url string) error

	// FetchMedia downloads the bytes behind an inbound media reference.
	FetchMedia(ctx context.Context, media *models.Media) ([]byte, string, error)

	// Start begins any background processing.
	Start(ctx context.Context) error

	// Stop stops background processing and closes the channels.
	Stop() error

	// Events returns a channel of inbound user messages.
	Events() <-chan models.InboundEvent

	// Receipts returns a channel of delivery status updates.
	Receipts() <-chan models.Receipt
}

// eventChannels holds the channel plumbing shared by all services.
type eventChannels struct {
	name     string
	events   chan models.InboundEvent
	receipts chan models.Receipt
	done     chan struct{}
	mu       sync.RWMutex
	stopped  bool
}

func newEventChannels(name string) *eventChannels {
	return &eventChannels{
		name:     name,
		events:   make(chan models.InboundEvent, DefaultChannelBufferSize),
		receipts: make(chan models.Receipt, DefaultChannelBufferSize),
		done:     make(chan struct{}),
	}
}

func (c *eventChannels) isStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

// stop marks the service stopped and closes the channels. Emitters hold the
// read lock while sending, so closing under the write lock is safe.
func (c *eventChannels) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.done)
	close(c.events)
	close(c.receipts)
	slog.Info(c.name + " stopped and channels closed")
}

// Events returns the inbound event channel.
func (c *eventChannels) Events() <-chan models.InboundEvent {
	return c.events
}

// Receipts returns the receipt channel.
func (c *eventChannels) Receipts() <-chan models.Receipt {
	return c.receipts
}

// safeEmitEvent pushes an inbound event unless the service stopped or the
// channel stays full for DefaultChannelTimeout.
func (c *eventChannels) safeEmitEvent(evt models.InboundEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		slog.Warn(c.name+" dropping inbound event (service stopped)", "from", evt.UserID)
		return false
	}
	select {
	case c.events <- evt:
		slog.Debug(c.name+" emitted inbound event", "from", evt.UserID, "kind", evt.Kind)
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(c.name+" events channel blocked, dropping message", "from", evt.UserID, "timeout", DefaultChannelTimeout)
		return false
	}
}

func (c *eventChannels) safeEmitReceipt(receipt models.Receipt) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return
	}
	select {
	case c.receipts <- receipt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(c.name+" receipts channel blocked, dropping receipt", "to", receipt.To)
	}
}

// canonicalRecipient validates a WhatsApp phone number, logging when the
// input had to be rewritten.
func canonicalRecipient(service, recipient string) (string, error) {
	canonical, err := util.CanonicalizePhone(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug(service+" canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// NumberedOptionsHint is appended to numbered option menus.
const NumberedOptionsHint = "(Reply with the number or the option text)"

// formatNumberedOptions renders options as a numbered text menu for
// transports without interactive messages.
func formatNumberedOptions(body string, options []string) string {
	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	for i, opt := range options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	b.WriteString("\n\n")
	b.WriteString(NumberedOptionsHint)
	return b.String()
}

// formatLink renders a URL button as text.
func formatLink(body, label, url string) string {
	return fmt.Sprintf("%s\n\n%s: %s", body, label, url)
}
