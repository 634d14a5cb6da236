// Package ingestion implements the C4 ingestion contract and wires C5's
// matcher to create the initial C6 request-attempt rows and publish them
// to the C7 dispatch queue.
package ingestion

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/hook0/webhooks-core/internal/queue"
	"github.com/hook0/webhooks-core/internal/storage"
	"github.com/hook0/webhooks-core/pb"
)

// EventIn is the caller-supplied event submission, before validation.
type EventIn struct {
	ID            string // optional; generated when empty
	EventTypeName string
	OccurredAt    time.Time
	PayloadBase64 string
	ContentType   string
	Metadata      map[string]any
	Labels        map[string]any
}

// Ingester owns the DB store and dispatch-queue publisher used to realise
// the ingest → match → materialise → publish pipeline.
type Ingester struct {
	store               *storage.Store
	publisher           queue.Publisher
	allowedContentTypes map[string]bool
	logger              *log.Logger
}

func New(store *storage.Store, publisher queue.Publisher, allowedContentTypes []string) *Ingester {
	allowed := make(map[string]bool, len(allowedContentTypes))
	for _, ct := range allowedContentTypes {
		allowed[ct] = true
	}
	return &Ingester{
		store:               store,
		publisher:           publisher,
		allowedContentTypes: allowed,
		logger:              log.New(log.Writer(), "[INGESTION] ", log.LstdFlags),
	}
}

// Ingest validates, persists and fans an event out to its matching
// subscriptions. A duplicate (application_id, id) returns
// storage.ErrEventAlreadyIngested and creates no attempts.
func (in *Ingester) Ingest(ctx context.Context, applicationID uuid.UUID, ev EventIn) (uuid.UUID, error) {
	if !in.allowedContentTypes[ev.ContentType] {
		return uuid.Nil, ErrInvalidPayloadContentType
	}

	payload, err := base64.StdEncoding.DecodeString(ev.PayloadBase64)
	if err != nil {
		return uuid.Nil, ErrInvalidBase64Payload
	}

	metadata, err := stringMap(ev.Metadata)
	if err != nil {
		return uuid.Nil, ErrInvalidMetadata
	}
	labels, err := stringMap(ev.Labels)
	if err != nil {
		return uuid.Nil, ErrInvalidLabels
	}

	eventID := uuid.Nil
	if ev.ID != "" {
		eventID, err = uuid.Parse(ev.ID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("ingestion: invalid event id: %w", err)
		}
	} else {
		eventID = uuid.New()
	}

	occurredAt := ev.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	receivedAt := time.Now()

	event := &storage.Event{
		ID:            eventID,
		ApplicationID: applicationID,
		EventTypeName: ev.EventTypeName,
		OccurredAt:    occurredAt,
		ReceivedAt:    receivedAt,
		Payload:       payload,
		ContentType:   ev.ContentType,
		Metadata:      metadata,
		Labels:        labels,
	}

	attempts, err := in.insertEventAndMatch(ctx, event)
	if err != nil {
		return uuid.Nil, err
	}

	in.publishAttempts(ctx, event, attempts)

	return eventID, nil
}

// insertEventAndMatch runs the transactional core of §4.4: insert the
// event and materialise one RequestAttempt per matching subscription.
func (in *Ingester) insertEventAndMatch(ctx context.Context, event *storage.Event) ([]attemptForSubscription, error) {
	tx, err := in.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingestion: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := in.store.InsertEvent(ctx, tx, event); err != nil {
		return nil, err
	}

	subs, err := in.store.MatchingSubscriptions(ctx, tx, event.ApplicationID, event.EventTypeName, event.Labels)
	if err != nil {
		return nil, fmt.Errorf("ingestion: match subscriptions: %w", err)
	}

	now := time.Now()
	attempts := make([]attemptForSubscription, 0, len(subs))
	for _, sub := range subs {
		a := storage.RequestAttempt{
			ID:             uuid.New(),
			EventID:        event.ID,
			SubscriptionID: sub.ID,
			CreatedAt:      now,
		}
		if err := in.store.InsertAttempt(ctx, tx, &a); err != nil {
			return nil, fmt.Errorf("ingestion: insert attempt: %w", err)
		}
		attempts = append(attempts, attemptForSubscription{attempt: a, sub: sub})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ingestion: commit: %w", err)
	}

	return attempts, nil
}

type attemptForSubscription struct {
	attempt storage.RequestAttempt
	sub     storage.Subscription
}

// publishAttempts pushes each newly committed attempt to the dispatch
// queue. Publication failure does not roll back the database row; the
// housekeeping sweeper reclaims orphan attempts on its next tick (§4.4).
func (in *Ingester) publishAttempts(ctx context.Context, event *storage.Event, attempts []attemptForSubscription) {
	for _, af := range attempts {
		msg := &pb.DispatchMessage{
			ApplicationID:      event.ApplicationID.String(),
			RequestAttemptID:   af.attempt.ID.String(),
			EventID:            event.ID.String(),
			EventReceivedAt:    &event.ReceivedAt,
			SubscriptionID:     af.sub.ID.String(),
			CreatedAt:          af.attempt.CreatedAt,
			RetryCount:         uint32(af.attempt.RetryCount),
			HTTPMethod:         af.sub.TargetMethod,
			HTTPURL:            af.sub.TargetURL,
			HTTPHeaders:        af.sub.TargetHeaders,
			EventTypeName:      event.EventTypeName,
			Payload:            event.Payload,
			PayloadContentType: event.ContentType,
			Secret:             af.sub.Secret.String(),
		}
		if err := in.publisher.Publish(ctx, msg); err != nil {
			in.logger.Printf("publish failed for attempt %s (subscription %s): %v, orphan sweep will reclaim it",
				af.attempt.ID, af.sub.ID, err)
		}
	}
}

func stringMap(in map[string]any) (map[string]string, error) {
	if in == nil {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("key %q is not a string value", k)
		}
		out[k] = s
	}
	return out, nil
}
