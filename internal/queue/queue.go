// Package queue implements the C7 dispatch-queue transport: an ordered,
// at-least-once durable channel between the ingestion API and the
// delivery workers, abstracted over a broker with topics and acks.
package queue

import (
	"context"

	"github.com/hook0/webhooks-core/pb"
)

// Publisher pushes one dispatch envelope onto the queue, partitioned so
// that messages for the same subscription preserve FIFO order.
type Publisher interface {
	Publish(ctx context.Context, msg *pb.DispatchMessage) error
	Close() error
}

// Handler processes one received message. Exactly one of ack/nack must be
// called; the message becomes visible again after lease expiry if neither
// is called in time, which is how the broker provides at-least-once
// delivery even across worker crashes.
type Handler func(ctx context.Context, msg *pb.DispatchMessage, ack, nack func())

// Consumer pulls messages for delivery workers to process.
type Consumer interface {
	// Receive blocks, invoking handler for each message, until ctx is
	// cancelled or an unrecoverable transport error occurs.
	Receive(ctx context.Context, handler Handler) error
	Close() error
}
