// Package events publishes click notifications to RabbitMQ for downstream
// analytics consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ClickEvent is emitted once per recorded redirect
type ClickEvent struct {
	ShortCode string    `json:"shortCode"`
	Timestamp time.Time `json:"ts"`
	Referer   string    `json:"referer,omitempty"`
	IP        string    `json:"ip,omitempty"`
}

// ClickPublisher is implemented by Publisher and NopPublisher
type ClickPublisher interface {
	PublishClick(ctx context.Context, event ClickEvent) error
}

// Publisher publishes to a durable fanout exchange. An amqp channel is not
// safe for concurrent publishes, so access is serialized.
type Publisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
	timeout  time.Duration
}

// NewPublisher opens a channel on conn and declares exchange
func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	return &Publisher{ch: ch, exchange: exchange, timeout: 2 * time.Second}, nil
}

// PublishClick sends event as a persistent JSON message
func (p *Publisher) PublishClick(ctx context.Context, event ClickEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    event.Timestamp,
		Type:         "link.clicked",
		Body:         body,
	})
}

// Close closes the channel; the connection is owned by the caller
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}

// NopPublisher is used when no broker is configured
type NopPublisher struct{}

func (NopPublisher) PublishClick(context.Context, ClickEvent) error { return nil }

var (
	_ ClickPublisher = (*Publisher)(nil)
	_ ClickPublisher = NopPublisher{}
)
