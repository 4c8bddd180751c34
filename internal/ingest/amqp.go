package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP consumes durable queues with manual acknowledgement and a prefetch of
// one, so each queue is handled strictly in publish order.
type AMQP struct {
	url    string
	logger *slog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	pub      *amqp.Channel
	declared map[string]bool
}

func NewAMQP(url string, logger *slog.Logger) *AMQP {
	return &AMQP{url: url, logger: logger, declared: make(map[string]bool)}
}

// connection returns the shared connection, redialling when it was closed.
// Callers hold a.mu.
func (a *AMQP) connection() (*amqp.Connection, error) {
	if a.conn != nil && !a.conn.IsClosed() {
		return a.conn, nil
	}
	conn, err := amqp.Dial(a.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	a.conn = conn
	a.pub = nil
	a.declared = make(map[string]bool)
	return conn, nil
}

func (a *AMQP) channel() (*amqp.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	conn, err := a.connection()
	if err != nil {
		return nil, err
	}
	return conn.Channel()
}

func declare(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp declare %s: %w", queue, err)
	}
	return nil
}

func (a *AMQP) Consume(ctx context.Context, stream string, h Handler) error {
	ch, err := a.channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := declare(ch, stream); err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}
	deliveries, err := ch.Consume(stream, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume %s: %w", stream, err)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	a.logger.Info("consumer listening", "queue", stream)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-closed:
			return fmt.Errorf("amqp channel closed on %s: %v", stream, e)
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed on " + stream)
			}
			switch process(ctx, a.logger, stream, h, d.Body) {
			case Ack:
				if err := d.Ack(false); err != nil {
					return fmt.Errorf("amqp ack: %w", err)
				}
			case Discard:
				if err := d.Nack(false, false); err != nil {
					return fmt.Errorf("amqp nack: %w", err)
				}
			case Retry:
				_ = d.Nack(false, true)
				return fmt.Errorf("%w: %s delivery=%d", ErrRedeliver, stream, d.DeliveryTag)
			}
		}
	}
}

// Publish sends a persistent message through the default exchange, routed
// by queue name.
func (a *AMQP) Publish(ctx context.Context, stream, key string, body []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pub == nil || a.pub.IsClosed() {
		conn, err := a.connection()
		if err != nil {
			return err
		}
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("amqp channel: %w", err)
		}
		a.pub = ch
		a.declared = make(map[string]bool)
	}
	if !a.declared[stream] {
		if err := declare(a.pub, stream); err != nil {
			return err
		}
		a.declared[stream] = true
	}
	err := a.pub.PublishWithContext(ctx, "", stream, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: key,
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", stream, err)
	}
	return nil
}

func (a *AMQP) Check(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.connection()
	return err
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil || a.conn.IsClosed() {
		return nil
	}
	return a.conn.Close()
}
