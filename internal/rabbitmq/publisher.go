// Package rabbitmq publishes chat, websocket and audit events to a topic
// exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"community-chat/internal/telemetry"
)

// redialInterval throttles reconnect attempts after the broker went away.
const redialInterval = 5 * time.Second

var errBrokerUnavailable = errors.New("rabbitmq: broker unavailable")

// Publisher publishes domain and audit events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// NewPublisher connects to the broker. An empty url or a failed first dial
// yields a noop publisher so the chat keeps working without a broker.
func NewPublisher(amqpURL, exchange string, log *slog.Logger) Publisher {
	if amqpURL == "" {
		log.Info("rabbitmq disabled, using noop", "reason", "empty amqp url")
		return noopPublisher{reason: "empty amqp url", log: log}
	}

	conn, ch, err := dial(amqpURL, exchange)
	if err != nil {
		log.Warn("rabbitmq disabled, using noop", "error", err)
		return noopPublisher{reason: err.Error(), log: log}
	}

	log.Info("rabbitmq connected", "exchange", exchange)
	return &amqpPublisher{url: amqpURL, exchange: exchange, conn: conn, ch: ch, log: log}
}

// dial opens a connection and channel and declares the durable topic exchange.
func dial(amqpURL, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return conn, ch, nil
}

type amqpPublisher struct {
	url      string
	exchange string
	log      *slog.Logger

	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	lastRedial time.Time
	closed     bool
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", routingKey, err)
	}

	table := make(amqp.Table, len(headers))
	for key, value := range headers {
		table[key] = value
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      table,
		Body:         body,
	})
	if err != nil {
		p.log.Error("rabbitmq publish failed", "routing_key", routingKey, "error", err)
	}
	return err
}

// channel returns the live channel, redialing at most once per
// redialInterval when the connection dropped.
func (p *amqpPublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, amqp.ErrClosed
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if time.Since(p.lastRedial) < redialInterval {
		return nil, errBrokerUnavailable
	}
	p.lastRedial = time.Now()

	p.release()
	conn, ch, err := dial(p.url, p.exchange)
	if err != nil {
		p.log.Warn("rabbitmq redial failed", "error", err)
		return nil, errors.Join(errBrokerUnavailable, err)
	}
	p.conn, p.ch = conn, ch
	p.log.Info("rabbitmq reconnected", "exchange", p.exchange)
	return ch, nil
}

// release closes whatever is left of the current connection. Caller holds mu.
func (p *amqpPublisher) release() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Healthy reports whether the broker connection is still open.
func (p *amqpPublisher) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed()
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.release()
	return nil
}

type noopPublisher struct {
	reason string
	log    *slog.Logger
}

func (p noopPublisher) Publish(_ context.Context, routingKey string, event any, _ map[string]string) error {
	attrs := []any{"routing_key", routingKey}
	if envelope, ok := event.(telemetry.AuditEnvelope); ok {
		attrs = append(attrs, "action", envelope.Payload.Action, "level", envelope.Payload.Level, "request_id", envelope.RequestID)
	}
	p.log.Debug("rabbitmq noop publish", attrs...)
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason says why the noop publisher was chosen.
func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}

// Healthy reports broker health. A noop publisher is healthy since the
// broker is optional.
func Healthy(p Publisher) bool {
	if h, ok := p.(interface{ Healthy() bool }); ok {
		return h.Healthy()
	}
	return true
}
