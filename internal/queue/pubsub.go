package queue

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/pubsub"

	"github.com/hook0/webhooks-core/pb"
)

// PubSubQueue is the primary C7 transport: a Cloud Pub/Sub topic with
// per-subscription ordering keys, grounded on internal/events/pubsub_bus.go's
// topic ensure-exists and ordering-key conventions.
type PubSubQueue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *log.Logger
}

// NewPubSubQueue connects to projectID and ensures topicID exists, creating
// it if necessary. subscriptionID may be empty for publish-only use (the
// API process never consumes).
func NewPubSubQueue(ctx context.Context, projectID, topicID, subscriptionID string) (*PubSubQueue, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("queue: pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("queue: topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("queue: CreateTopic: %w", err)
		}
	}
	topic.EnableMessageOrdering = true

	q := &PubSubQueue{
		client: client,
		topic:  topic,
		logger: log.New(log.Writer(), "[PUBSUB-QUEUE] ", log.LstdFlags),
	}

	if subscriptionID != "" {
		sub := client.Subscription(subscriptionID)
		subExists, err := sub.Exists(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("queue: subscription.Exists: %w", err)
		}
		if !subExists {
			sub, err = client.CreateSubscription(ctx, subscriptionID, pubsub.SubscriptionConfig{
				Topic:                 topic,
				EnableMessageOrdering: true,
			})
			if err != nil {
				client.Close()
				return nil, fmt.Errorf("queue: CreateSubscription: %w", err)
			}
		}
		q.sub = sub
	}

	q.logger.Printf("connected to pubsub topic projects/%s/topics/%s", projectID, topicID)
	return q, nil
}

// Publish pushes msg with OrderingKey = subscription_id so per-subscription
// FIFO is preserved per §4.7.
func (q *PubSubQueue) Publish(ctx context.Context, msg *pb.DispatchMessage) error {
	result := q.topic.Publish(ctx, &pubsub.Message{
		Data:        pb.EncodeDispatchMessage(msg),
		OrderingKey: msg.SubscriptionID,
	})
	_, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("queue: publish: %w", err)
	}
	return nil
}

// Receive pulls messages from the subscription until ctx is cancelled.
func (q *PubSubQueue) Receive(ctx context.Context, handler Handler) error {
	if q.sub == nil {
		return fmt.Errorf("queue: no subscription configured for consume")
	}
	return q.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		msg, err := pb.DecodeDispatchMessage(m.Data)
		if err != nil {
			q.logger.Printf("decode failed, nacking: %v", err)
			m.Nack()
			return
		}
		handler(ctx, msg, m.Ack, m.Nack)
	})
}

func (q *PubSubQueue) Close() error {
	q.topic.Stop()
	return q.client.Close()
}

var (
	_ Publisher = (*PubSubQueue)(nil)
	_ Consumer  = (*PubSubQueue)(nil)
)
