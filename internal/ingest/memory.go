package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Memory is an in-process transport for local runs and tests. Each stream is
// a buffered FIFO; a message left for redelivery goes back to the front.
type Memory struct {
	logger *slog.Logger
	mu     sync.Mutex
	queues map[string]*memQueue
}

type memQueue struct {
	mu     sync.Mutex
	items  [][]byte
	notify chan struct{}
}

func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{logger: logger, queues: make(map[string]*memQueue)}
}

func (m *Memory) queue(stream string) *memQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[stream]
	if !ok {
		q = &memQueue{notify: make(chan struct{}, 1)}
		m.queues[stream] = q
	}
	return q
}

func (q *memQueue) push(body []byte, front bool) {
	q.mu.Lock()
	if front {
		q.items = append([][]byte{body}, q.items...)
	} else {
		q.items = append(q.items, body)
	}
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *memQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	b := q.items[0]
	q.items = q.items[1:]
	return b, true
}

// Next blocks until stream has a message and removes it.
func (m *Memory) Next(ctx context.Context, stream string) ([]byte, error) {
	q := m.queue(stream)
	for {
		if b, ok := q.pop(); ok {
			return b, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len reports how many messages are queued on stream.
func (m *Memory) Len(stream string) int {
	q := m.queue(stream)
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (m *Memory) Consume(ctx context.Context, stream string, h Handler) error {
	q := m.queue(stream)
	for {
		body, err := m.Next(ctx, stream)
		if err != nil {
			return err
		}
		if process(ctx, m.logger, stream, h, body) == Retry {
			q.push(body, true)
			return fmt.Errorf("%w: %s", ErrRedeliver, stream)
		}
	}
}

func (m *Memory) Publish(_ context.Context, stream, _ string, body []byte) error {
	cp := make([]byte, len(body))
	copy(cp, body)
	m.queue(stream).push(cp, false)
	return nil
}

func (m *Memory) Check(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
