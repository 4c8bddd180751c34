package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka consumes each stream as a topic in its own consumer group, named
// "<group>.<stream>", and commits an offset only after the handler
// acknowledged or discarded the message.
type Kafka struct {
	brokers   []string
	group     string
	logger    *slog.Logger
	writer    kafkaWriter
	newReader func(kafka.ReaderConfig) kafkaReader
}

func NewKafka(brokers []string, group string, logger *slog.Logger) *Kafka {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Kafka{
		brokers: brokers,
		group:   group,
		logger:  logger,
		writer:  w,
		newReader: func(cfg kafka.ReaderConfig) kafkaReader {
			return kafka.NewReader(cfg)
		},
	}
}

func (k *Kafka) Consume(ctx context.Context, stream string, h Handler) error {
	group := k.groupFor(stream)
	r := k.newReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		Topic:    stream,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	defer func() { _ = r.Close() }()

	k.logger.Info("consumer listening", "topic", stream, "brokers", k.brokers, "group", group)
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			return fmt.Errorf("kafka fetch %s: %w", stream, err)
		}
		if process(ctx, k.logger, stream, h, m.Value) == Retry {
			// the offset stays uncommitted; the next reader starts from it
			return fmt.Errorf("%w: %s partition=%d offset=%d", ErrRedeliver, stream, m.Partition, m.Offset)
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("kafka commit %s: %w", stream, err)
		}
	}
}

// groupFor keeps a rejoin on one stream from rebalancing the others.
func (k *Kafka) groupFor(stream string) string {
	return k.group + "." + stream
}

// Publish writes body to topic stream, partitioned by key so events of one
// driver stay ordered.
func (k *Kafka) Publish(ctx context.Context, stream, key string, body []byte) error {
	if err := k.writer.WriteMessages(ctx, kafka.Message{Topic: stream, Key: []byte(key), Value: body}); err != nil {
		return fmt.Errorf("kafka publish %s: %w", stream, err)
	}
	return nil
}

// Check dials the first reachable broker.
func (k *Kafka) Check(ctx context.Context) error {
	var lastErr error
	for _, b := range k.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (k *Kafka) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
