package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/example/station-matching/internal/observability"
)

// Backoff bounds the delay between consumer restarts.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// Supervise keeps one stream consuming until ctx ends. Every time the
// consumer returns it waits (doubling up to Max) and starts it again; the
// delay resets once a restarted consumer has handled a message.
func Supervise(ctx context.Context, c Consumer, stream string, h Handler, b Backoff, logger *slog.Logger) {
	if b.Min <= 0 {
		b.Min = time.Second
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}
	backoff := b.Min
	for {
		var progressed atomic.Bool
		err := c.Consume(ctx, stream, func(ctx context.Context, body []byte) error {
			err := h(ctx, body)
			if Classify(err) != Retry {
				progressed.Store(true)
			}
			return err
		})
		if ctx.Err() != nil {
			logger.Info("consumer stopped", "stream", stream)
			return
		}
		if progressed.Load() {
			backoff = b.Min
		}
		observability.Reconnects.WithLabelValues(stream).Inc()
		logger.Warn("consumer exited, reconnecting", "stream", stream, "error", err, "backoff", backoff.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > b.Max {
			backoff = b.Max
		}
	}
}
