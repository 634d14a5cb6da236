package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"

	"github.com/hook0/webhooks-core/pb"
)

// CloudTasksQueue is the C7 alternate transport: each Publish enqueues a
// direct-HTTP Cloud Task against the worker's intake endpoint rather than
// going through a broker subscription. Grounded on
// internal/webhooks/cloud_dispatcher.go's CloudDispatcher{fallback}
// wrapping pattern — enqueue failures fall back to another Publisher
// (normally the Pub/Sub-backed queue) instead of dropping the message.
type CloudTasksQueue struct {
	client    *cloudtasks.Client
	queuePath string
	targetURL string
	logger    *log.Logger
	fallback  Publisher
}

// NewCloudTasksQueue builds a Cloud Tasks-backed publisher. targetURL is
// the worker-facing HTTP intake endpoint each task's request is aimed at.
// fallback may be nil to disable fallback.
func NewCloudTasksQueue(ctx context.Context, projectID, locationID, queueID, targetURL string, fallback Publisher) (*CloudTasksQueue, error) {
	client, err := cloudtasks.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: cloudtasks.NewClient: %w", err)
	}

	return &CloudTasksQueue{
		client:    client,
		queuePath: fmt.Sprintf("projects/%s/locations/%s/queues/%s", projectID, locationID, queueID),
		targetURL: targetURL,
		logger:    log.New(log.Writer(), "[CLOUD-TASKS-QUEUE] ", log.LstdFlags),
		fallback:  fallback,
	}, nil
}

// Publish enqueues msg as an HTTP POST task. On enqueue failure, it falls
// back to q.fallback if configured rather than surfacing the error, since
// ingestion does not roll back the DB row on publish failure anyway
// (orphan attempts are reclaimed by the sweeper per §4.4).
func (q *CloudTasksQueue) Publish(ctx context.Context, msg *pb.DispatchMessage) error {
	body := pb.EncodeDispatchMessage(msg)

	req := &taskspb.CreateTaskRequest{
		Parent: q.queuePath,
		Task: &taskspb.Task{
			MessageType: &taskspb.Task_HttpRequest{
				HttpRequest: &taskspb.HttpRequest{
					HttpMethod: taskspb.HttpMethod_POST,
					Url:        q.targetURL,
					Headers:    map[string]string{"Content-Type": "application/octet-stream"},
					Body:       body,
				},
			},
		},
	}

	createCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := q.client.CreateTask(createCtx, req); err != nil {
		if q.fallback != nil {
			q.logger.Printf("enqueue failed for attempt %s, falling back: %v", msg.RequestAttemptID, err)
			return q.fallback.Publish(ctx, msg)
		}
		return fmt.Errorf("queue: cloud tasks enqueue: %w", err)
	}
	return nil
}

func (q *CloudTasksQueue) Close() error {
	if q.fallback != nil {
		_ = q.fallback.Close()
	}
	return q.client.Close()
}

var _ Publisher = (*CloudTasksQueue)(nil)
