package queue

import (
	"context"
	"testing"

	"github.com/hook0/webhooks-core/pb"
)

func TestMemQueuePublishAndReceivePreservesOrder(t *testing.T) {
	q := NewMemQueue()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg := &pb.DispatchMessage{SubscriptionID: "sub-1", RequestAttemptID: string(rune('a' + i))}
		if err := q.Publish(ctx, msg); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	var got []string
	err := q.Receive(ctx, func(_ context.Context, msg *pb.DispatchMessage, ack, _ func()) {
		got = append(got, msg.RequestAttemptID)
		ack()
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v want %v", i, got, want)
		}
	}

	if drained := q.Drain(); len(drained) != 0 {
		t.Fatalf("expected queue drained after receive, got %d", len(drained))
	}
}
