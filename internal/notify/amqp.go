package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/GearGrab/service-booking/internal/application"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes JSON messages to a durable topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPPublisher dials url and declares exchange as a durable topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// PublishJSON marshals v and publishes it as a persistent message under key.
func (p *AMQPPublisher) PublishJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/cloudevents+json",
		DeliveryMode: amqp.Persistent,
		Body:         b,
	})
}

// Ping reports whether the connection is still open.
func (p *AMQPPublisher) Ping(context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

// Close closes the channel and then the connection.
func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// JSONPublisher is implemented by *AMQPPublisher.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// AMQPNotifier routes each event by its type, e.g. booking.approved.
type AMQPNotifier struct {
	publisher JSONPublisher
}

// NewAMQPNotifier creates a notifier that publishes through publisher.
func NewAMQPNotifier(publisher JSONPublisher) *AMQPNotifier {
	return &AMQPNotifier{publisher: publisher}
}

// Notify publishes evt as a CloudEvent keyed by its type.
func (n *AMQPNotifier) Notify(ctx context.Context, evt application.Event) error {
	ce, err := toCloudEvent(evt)
	if err != nil {
		return err
	}
	if err := n.publisher.PublishJSON(ctx, string(evt.Type), ce); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}
