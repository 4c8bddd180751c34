// Package ingest adapts message transports to the matching engine: it feeds
// the inbound streams to handlers and publishes outbound events.
package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/station-matching/internal/models"
	"github.com/example/station-matching/internal/observability"
)

// Handler processes one message body. Returning an error wrapping
// models.ErrMalformedEvent discards the message; any other error asks for
// redelivery.
type Handler func(ctx context.Context, body []byte) error

// Consumer delivers the messages of one stream to h until ctx ends or the
// connection breaks. It never returns nil while ctx is live.
type Consumer interface {
	Consume(ctx context.Context, stream string, h Handler) error
}

type Publisher interface {
	Publish(ctx context.Context, stream, key string, body []byte) error
}

// Transport is a full event channel: inbound, outbound and a health check.
type Transport interface {
	Consumer
	Publisher
	Check(ctx context.Context) error
	Close() error
}

// ErrRedeliver ends a consume loop so the message is delivered again after
// the supervisor reconnects.
var ErrRedeliver = errors.New("message left for redelivery")

type Disposition int

const (
	Ack Disposition = iota
	Discard
	Retry
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Discard:
		return "discard"
	default:
		return "retry"
	}
}

// Classify maps a handler result to what the transport does with the message.
func Classify(err error) Disposition {
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, models.ErrMalformedEvent):
		return Discard
	default:
		return Retry
	}
}

// process runs h on one message and records the outcome.
func process(ctx context.Context, logger *slog.Logger, stream string, h Handler, body []byte) Disposition {
	observability.EventsConsumed.WithLabelValues(stream).Inc()
	err := h(ctx, body)
	d := Classify(err)
	switch d {
	case Discard:
		observability.EventsInvalid.WithLabelValues(stream).Inc()
		logger.Warn("discarding malformed event", "stream", stream, "error", err)
	case Retry:
		observability.EventsFailed.WithLabelValues(stream).Inc()
		logger.Error("event handling failed", "stream", stream, "error", err)
	}
	return d
}
