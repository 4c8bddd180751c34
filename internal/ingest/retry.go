package ingest

import (
	"context"
	"time"
)

// WithRetry retries h in place with a doubling delay. Malformed events and
// a cancelled ctx stop immediately.
func WithRetry(h Handler, attempts int, delay time.Duration) Handler {
	if attempts < 1 {
		attempts = 1
	}
	return func(ctx context.Context, body []byte) error {
		wait := delay
		var err error
		for i := 0; i < attempts; i++ {
			err = h(ctx, body)
			if Classify(err) != Retry || i == attempts-1 {
				return err
			}
			select {
			case <-ctx.Done():
				return err
			case <-time.After(wait):
			}
			wait *= 2
		}
		return err
	}
}
