package events

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// amqpChannel is the subset of *amqp.Channel used for publishing.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPForwarder copies bus events into a durable RabbitMQ queue.
type AMQPForwarder struct {
	mu     sync.Mutex
	ch     amqpChannel
	conn   io.Closer
	queue  string
	logger *zerolog.Logger
}

// NewAMQPForwarder dials the broker and declares the queue.
func NewAMQPForwarder(url, queue string, logger *zerolog.Logger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	f, err := newAMQPForwarder(ch, conn, queue, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return f, nil
}

func newAMQPForwarder(ch amqpChannel, conn io.Closer, queue string, logger *zerolog.Logger) (*AMQPForwarder, error) {
	// durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	return &AMQPForwarder{ch: ch, conn: conn, queue: queue, logger: logger}, nil
}

// Attach subscribes the forwarder to every reservation event.
func (f *AMQPForwarder) Attach(bus *EventBus) {
	for _, eventType := range ReservationEventTypes {
		bus.Subscribe(eventType, f.Handle)
	}
}

// Handle publishes one event as a persistent JSON message.
func (f *AMQPForwarder) Handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         event.Type,
		Timestamp:    event.CreatedAt.UTC(),
		Body:         event.Payload,
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ch.PublishWithContext(ctx, "", f.queue, false, false, msg); err != nil {
		f.logger.Error().Err(err).Str("event", event.Type).Msg("rabbitmq publish failed")
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (f *AMQPForwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.ch.Close()
	if f.conn != nil {
		if cerr := f.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
