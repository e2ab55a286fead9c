package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"rentdesk-backend/internal/logger"
)

// Event types carried in Envelope.Type
const (
	TypeLateFeeApplied   = "late_fee_applied"
	TypePenaltiesApplied = "penalties_applied"
)

// Envelope is the JSON body of every published message
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// Channel is the subset of *amqp.Channel the publisher needs
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends events to a durable RabbitMQ queue. Safe for concurrent use.
type Publisher struct {
	mu    sync.Mutex
	ch    Channel
	queue string

	published int64
	failed    int64
}

// NewPublisher declares queue on ch and returns a publisher bound to it
func NewPublisher(ch Channel, queue string) (*Publisher, error) {
	_, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return &Publisher{ch: ch, queue: queue}, nil
}

func (p *Publisher) Broadcast(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(Envelope{
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		p.countFailure()
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	logger.ExternalServiceCall("rabbitmq", "publish", "queue", p.queue, "type", eventType)
	err = p.ch.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         eventType,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	logger.ExternalServiceResult("rabbitmq", "publish", err, "queue", p.queue, "type", eventType)
	if err != nil {
		p.failed++
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	p.published++
	return nil
}

func (p *Publisher) countFailure() {
	p.mu.Lock()
	p.failed++
	p.mu.Unlock()
}

// Stats returns the number of published and failed messages
func (p *Publisher) Stats() (published, failed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.failed
}

// LogBroadcaster writes events to the log. Used when no broker is configured.
type LogBroadcaster struct{}

func (LogBroadcaster) Broadcast(ctx context.Context, eventType string, payload any) error {
	logger.InfoContext(ctx, "Penalty event", "type", eventType, "payload", payload)
	return nil
}
