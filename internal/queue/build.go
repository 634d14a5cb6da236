package queue

import (
	"context"
	"fmt"

	"github.com/hook0/webhooks-core/internal/config"
)

// Build wires a Publisher+Consumer pair from QueueConfig. workerIntakeURL
// is only used when Cloud Tasks is the selected transport (it has no
// subscription to pull from; the worker instead exposes an HTTP intake
// endpoint that Cloud Tasks calls directly).
//
// When neither backend is enabled, an in-process MemQueue is used; this is
// the local-development path and has no durability across restarts.
func Build(ctx context.Context, cfg config.QueueConfig, subscriptionID, workerIntakeURL string) (Publisher, Consumer, error) {
	var primary *PubSubQueue
	if cfg.PubSubEnabled {
		q, err := NewPubSubQueue(ctx, cfg.PubSubProjectID, cfg.PubSubTopicID, subscriptionID)
		if err != nil {
			return nil, nil, fmt.Errorf("queue: build pubsub: %w", err)
		}
		primary = q
	}

	if cfg.CloudTasksEnabled {
		var fallback Publisher
		if primary != nil {
			fallback = primary
		}
		ct, err := NewCloudTasksQueue(ctx, cfg.CloudTasksProjectID, cfg.CloudTasksLocationID, cfg.CloudTasksQueueID, workerIntakeURL, fallback)
		if err != nil {
			return nil, nil, fmt.Errorf("queue: build cloud tasks: %w", err)
		}
		// Cloud Tasks has no pull-subscription counterpart; consumption
		// happens via the worker's HTTP intake handler, not Receive.
		if primary != nil {
			return ct, primary, nil
		}
		return ct, nil, nil
	}

	if primary != nil {
		return primary, primary, nil
	}

	mem := NewMemQueue()
	return mem, mem, nil
}
