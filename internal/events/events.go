// Package events publishes lead lifecycle events to RabbitMQ so CRM and
// reporting consumers can follow intake progress.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange lead events are published to.
const DefaultExchange = "insura.leads"

// LeadType names a lead lifecycle event. Routing keys are "lead.<type>".
type LeadType string

const (
	LeadNameCaptured     LeadType = "name_captured"
	LeadServiceSelected  LeadType = "service_selected"
	LeadMedicalSubmitted LeadType = "medical_submitted"
	LeadMedicalFailed    LeadType = "medical_failed"
	LeadMotorCompleted   LeadType = "motor_completed"
	LeadClaimFiled       LeadType = "claim_filed"
	LeadEMAFGenerated    LeadType = "emaf_generated"
)

// LeadEvent is one published event.
type LeadEvent struct {
	ID      string            `json:"id"`
	Type    LeadType          `json:"type"`
	UserID  string            `json:"user_id"`
	Service string            `json:"service,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
	Time    time.Time         `json:"time"`
}

// NewLeadEvent stamps a new event with an id and the current time.
func NewLeadEvent(t LeadType, userID, service string, data map[string]string) LeadEvent {
	return LeadEvent{
		ID:      uuid.NewString(),
		Type:    t,
		UserID:  userID,
		Service: service,
		Data:    data,
		Time:    time.Now().UTC(),
	}
}

// RoutingKey returns the topic routing key for the event.
func (e LeadEvent) RoutingKey() string {
	return "lead." + string(e.Type)
}

// Publisher delivers lead events.
type Publisher interface {
	Publish(ctx context.Context, evt LeadEvent) error
	Close() error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, evt LeadEvent) error {
	slog.Debug("NopPublisher.Publish: dropping lead event", "type", evt.Type, "user_id", evt.UserID)
	return nil
}

func (NopPublisher) Close() error { return nil }

// channel is the subset of *amqp.Channel used by AMQPPublisher.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes persistent JSON messages to a durable topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
}

var _ Publisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher dials url and declares exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	p, err := newAMQPPublisher(ch, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	slog.Info("AMQPPublisher connected", "exchange", p.exchange)
	return p, nil
}

func newAMQPPublisher(ch channel, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{ch: ch, exchange: exchange}, nil
}

// Publish sends evt with routing key lead.<type>. The event id doubles as
// the correlation id.
func (p *AMQPPublisher) Publish(ctx context.Context, evt LeadEvent) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal lead event: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx,
		p.exchange,       // exchange
		evt.RoutingKey(), // routing key
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			CorrelationId: evt.ID,
			Timestamp:     evt.Time,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish lead event: %w", err)
	}
	slog.Debug("AMQPPublisher.Publish: event published", "type", evt.Type, "event_id", evt.ID)
	return nil
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		slog.Warn("AMQPPublisher.Close: failed to close channel", "error", err)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}
	return nil
}
