package queue

import (
	"context"
	"sync"

	"github.com/hook0/webhooks-core/pb"
)

// MemQueue is an in-process Publisher+Consumer used by tests that exercise
// ingestion or the worker without a real broker. It preserves per-subscription
// FIFO order, mirroring the ordering-key guarantee the real transports provide.
type MemQueue struct {
	mu   sync.Mutex
	msgs []*pb.DispatchMessage
}

func NewMemQueue() *MemQueue {
	return &MemQueue{}
}

func (q *MemQueue) Publish(_ context.Context, msg *pb.DispatchMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

// Drain returns and clears all messages published so far, in publish order.
func (q *MemQueue) Drain() []*pb.DispatchMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.msgs
	q.msgs = nil
	return out
}

// Receive delivers every currently queued message to handler, auto-acking
// each, then returns. It does not block waiting for future publishes.
func (q *MemQueue) Receive(ctx context.Context, handler Handler) error {
	for _, msg := range q.Drain() {
		acked := false
		handler(ctx, msg, func() { acked = true }, func() {})
		_ = acked
	}
	return nil
}

func (q *MemQueue) Close() error { return nil }

var (
	_ Publisher = (*MemQueue)(nil)
	_ Consumer  = (*MemQueue)(nil)
)
