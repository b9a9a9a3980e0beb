// Package notify publishes broadcast notifications: the "exam generated"
// message after a successful generation and score-card reports from the
// attempt change feed.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Topics used by the pipeline.
const (
	TopicExamGenerated = "exam.generated"
	TopicScoreCard     = "exam.scorecard"
)

// Publisher broadcasts a message to a topic and returns the message ID.
// A publish failure must propagate to the caller as a fatal error for that
// invocation so the delivery layer can redeliver.
type Publisher interface {
	Publish(ctx context.Context, topic, subject, body string) (string, error)
}

// AMQPPublisher publishes to a durable direct exchange, one routing key per
// topic.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPPublisher connects to the broker and declares the exchange.
// It fails fast so a broken broker configuration surfaces at startup.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends one persistent message with the topic as routing key and the
// subject carried as a header.
func (p *AMQPPublisher) Publish(ctx context.Context, topic, subject, body string) (string, error) {
	id := uuid.NewString()
	err := p.ch.PublishWithContext(ctx, p.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Headers:      amqp.Table{"subject": subject},
		Body:         []byte(body),
	})
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	return id, nil
}

func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// LogPublisher writes notifications to the log instead of a broker. Used when
// no broker is configured, e.g. local development.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, topic, subject, body string) (string, error) {
	id := uuid.NewString()
	slog.Info("notification", "topic", topic, "subject", subject, "message_id", id, "body_len", len(body))
	return id, nil
}
