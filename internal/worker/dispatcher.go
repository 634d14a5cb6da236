// Package worker implements the C8 delivery worker: dequeue, resolve
// secrets and authentication, sign, perform the HTTP callout, classify the
// outcome, persist the response, and advance the C6 state machine.
package worker

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hook0/webhooks-core/internal/auth"
	"github.com/hook0/webhooks-core/internal/config"
	"github.com/hook0/webhooks-core/internal/objectstore"
	"github.com/hook0/webhooks-core/internal/observability"
	"github.com/hook0/webhooks-core/internal/queue"
	"github.com/hook0/webhooks-core/internal/secrets"
	"github.com/hook0/webhooks-core/internal/signature"
	"github.com/hook0/webhooks-core/internal/storage"
	"github.com/hook0/webhooks-core/pb"
)

// Dispatcher runs the single dispatch pass of §4.8 for every message the
// consumer hands it. It holds no per-attempt state between calls; each
// dispatch resolves secrets and builds its own provider and client, since
// a subscription's authentication config can change between attempts.
type Dispatcher struct {
	store       *storage.Store
	secretStore *secrets.Store
	tokenCache  auth.TokenCache
	objStore    objectstore.Store
	metrics     *observability.Metrics
	cfg         config.DeliveryConfig
	logger      *slog.Logger
}

func NewDispatcher(store *storage.Store, secretStore *secrets.Store, tokenCache auth.TokenCache, objStore objectstore.Store, metrics *observability.Metrics, cfg config.DeliveryConfig) *Dispatcher {
	return &Dispatcher{
		store:       store,
		secretStore: secretStore,
		tokenCache:  tokenCache,
		objStore:    objStore,
		metrics:     metrics,
		cfg:         cfg,
		logger:      slog.With("component", "delivery-worker"),
	}
}

// Run drives consumer.Receive until ctx is cancelled, per the cooperative
// cancellation policy of §5: a shutdown signal is only observed between
// messages, never mid-dispatch, so the lease/database invariant holds.
func (d *Dispatcher) Run(ctx context.Context, consumer queue.Consumer) error {
	return consumer.Receive(ctx, func(ctx context.Context, msg *pb.DispatchMessage, ack, nack func()) {
		d.dispatch(ctx, msg)
		ack()
	})
}

// HandleMessage runs one dispatch pass directly, bypassing queue.Consumer.
// It is the entry point for the Cloud Tasks direct-HTTP delivery mode,
// where the worker's intake endpoint decodes the task body itself instead
// of pulling from a broker subscription.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg *pb.DispatchMessage) {
	d.dispatch(ctx, msg)
}

// dispatch implements the eight steps of §4.8. It never returns an error;
// every failure mode is converted into a terminal RequestAttempt state,
// per the propagation policy in §7.
func (d *Dispatcher) dispatch(ctx context.Context, msg *pb.DispatchMessage) {
	attemptID, err := uuid.Parse(msg.RequestAttemptID)
	if err != nil {
		d.logger.Error("decode failure: invalid attempt id", "error", err)
		return
	}

	// Step 2: mark picked atomic with the queue's ack lease. A duplicate
	// at-least-once delivery of the same message is a no-op here.
	claimed, err := d.store.MarkPicked(ctx, attemptID)
	if err != nil {
		d.logger.Error("mark picked failed", "attempt_id", attemptID, "error", err)
		return
	}
	if !claimed {
		d.logger.Debug("attempt already picked, skipping duplicate delivery", "attempt_id", attemptID)
		return
	}
	d.metrics.AttemptsPicked.Inc()
	d.metrics.WorkersInFlight.Inc()
	defer d.metrics.WorkersInFlight.Dec()

	applicationID, aerr := uuid.Parse(msg.ApplicationID)
	subscriptionID, serr := uuid.Parse(msg.SubscriptionID)
	eventID, everr := uuid.Parse(msg.EventID)
	if aerr != nil || serr != nil || everr != nil {
		d.fail(ctx, attemptID, msg, ErrUnknown, "", nil, 0, time.Now())
		return
	}

	ctx = observability.WithAttemptSpan(ctx, observability.AttemptSpanAttributes{
		ApplicationID:  msg.ApplicationID,
		SubscriptionID: msg.SubscriptionID,
		EventID:        msg.EventID,
		RetryCount:     int(msg.RetryCount),
	})

	// Step 3: resolve secrets and materialise the authentication provider.
	authCfg, err := d.store.GetAuthenticationConfig(ctx, applicationID, subscriptionID)
	if err != nil && err != storage.ErrNotFound {
		d.fail(ctx, attemptID, msg, ErrUnknown, "", nil, 0, time.Now())
		return
	}
	if err == storage.ErrNotFound {
		authCfg = nil
	}
	provider, err := auth.NewProvider(ctx, authCfg, applicationID, d.secretStore, d.tokenCache)
	if err != nil {
		d.fail(ctx, attemptID, msg, ErrInvalidTarget, "", nil, 0, time.Now())
		return
	}
	if err := provider.RefreshIfNeeded(ctx); err != nil {
		d.fail(ctx, attemptID, msg, ErrUnknown, "", nil, 0, time.Now())
		return
	}

	// Step 4: build the per-attempt HTTP client.
	client := buildHTTPClient(d.cfg, provider.ClientIdentity())

	// Step 5: construct the request, sign after the body is final.
	req, err := http.NewRequestWithContext(ctx, msg.HTTPMethod, msg.HTTPURL, bytes.NewReader(msg.Payload))
	if err != nil {
		d.fail(ctx, attemptID, msg, ErrInvalidTarget, "", nil, 0, time.Now())
		return
	}
	for k, v := range msg.HTTPHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("X-Event-Id", msg.EventID)
	if msg.PayloadContentType != "" {
		req.Header.Set("Content-Type", msg.PayloadContentType)
	}
	if err := provider.Authenticate(ctx, req); err != nil {
		d.fail(ctx, attemptID, msg, ErrUnknown, "", nil, 0, time.Now())
		return
	}
	req.Header.Set(signature.HeaderName, signature.SignNow(msg.Payload, msg.Secret))

	// Step 6: execute and classify.
	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		kind := classifyRequestError(err)
		d.fail(ctx, attemptID, msg, kind, "", nil, elapsed.Milliseconds(), start)
		return
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, d.cfg.MaxResponseBody+1)
	body, readErr := io.ReadAll(limited)
	truncated := int64(len(body)) > d.cfg.MaxResponseBody
	if truncated {
		body = body[:d.cfg.MaxResponseBody]
	}
	if readErr != nil && !truncated {
		d.fail(ctx, attemptID, msg, ErrUnknown, "", nil, elapsed.Milliseconds(), start)
		return
	}

	headers := flattenHeaders(resp.Header)
	if truncated {
		headers["X-Hook0-Truncated"] = "true"
	}

	// Step 7: persist response, advance state.
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.succeed(ctx, attemptID, subscriptionID, resp.StatusCode, headers, body, elapsed.Milliseconds())
		return
	}
	d.failWithResponse(ctx, attemptID, msg, subscriptionID, eventID, resp.StatusCode, headers, body, elapsed.Milliseconds(), start)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// succeed persists a successful Response and transitions the attempt to
// Succeeded, recording the subscription's success timestamp.
func (d *Dispatcher) succeed(ctx context.Context, attemptID, subscriptionID uuid.UUID, status int, headers map[string]string, body []byte, elapsedMs int64) {
	respID := uuid.New()
	r := d.buildResponse(ctx, respID, "", status, headers, body, elapsedMs)
	if err := d.store.InsertResponse(ctx, r); err != nil {
		d.logger.Error("insert response failed", "error", err)
		return
	}
	if err := d.store.MarkSucceeded(ctx, attemptID, respID); err != nil {
		d.logger.Error("mark succeeded failed", "error", err)
		return
	}
	_ = d.store.RecordSubscriptionOutcome(ctx, subscriptionID, true)
	d.metrics.AttemptsSucceeded.Inc()
}

// fail records a terminal failure when no HTTP response was ever received
// (decode error, invalid target, connection/timeout failure).
func (d *Dispatcher) fail(ctx context.Context, attemptID uuid.UUID, msg *pb.DispatchMessage, kind string, _ string, _ map[string]string, elapsedMs int64, _ time.Time) {
	respID := uuid.New()
	r := d.buildResponse(ctx, respID, kind, 0, nil, nil, elapsedMs)
	if err := d.store.InsertResponse(ctx, r); err != nil {
		d.logger.Error("insert response failed", "error", err)
		return
	}
	retryCount := uint16(msg.RetryCount)
	delay := computeBackoff(retryCount, d.cfg)
	a := storage.RequestAttempt{ID: attemptID, RetryCount: retryCount}
	if msg.EventID != "" {
		if id, err := uuid.Parse(msg.EventID); err == nil {
			a.EventID = id
		}
	}
	if msg.SubscriptionID != "" {
		if id, err := uuid.Parse(msg.SubscriptionID); err == nil {
			a.SubscriptionID = id
		}
	}
	if err := d.store.MarkFailed(ctx, a, respID, d.cfg.MaxRetries, delay); err != nil {
		d.logger.Error("mark failed failed", "error", err)
	}
	if a.SubscriptionID != uuid.Nil {
		_ = d.store.RecordSubscriptionOutcome(ctx, a.SubscriptionID, false)
	}
	d.metrics.AttemptsFailedByKind.WithLabelValues(kind).Inc()
}

// failWithResponse records a terminal E_HTTP failure when a non-2xx
// response was received.
func (d *Dispatcher) failWithResponse(ctx context.Context, attemptID uuid.UUID, msg *pb.DispatchMessage, subscriptionID, _ uuid.UUID, status int, headers map[string]string, body []byte, elapsedMs int64, _ time.Time) {
	respID := uuid.New()
	r := d.buildResponse(ctx, respID, ErrHTTP, status, headers, body, elapsedMs)
	if err := d.store.InsertResponse(ctx, r); err != nil {
		d.logger.Error("insert response failed", "error", err)
		return
	}
	retryCount := uint16(msg.RetryCount)
	delay := computeBackoff(retryCount, d.cfg)
	a := storage.RequestAttempt{ID: attemptID, RetryCount: retryCount, SubscriptionID: subscriptionID}
	if msg.EventID != "" {
		if id, err := uuid.Parse(msg.EventID); err == nil {
			a.EventID = id
		}
	}
	if err := d.store.MarkFailed(ctx, a, respID, d.cfg.MaxRetries, delay); err != nil {
		d.logger.Error("mark failed failed", "error", err)
	}
	_ = d.store.RecordSubscriptionOutcome(ctx, subscriptionID, false)
	d.metrics.AttemptsFailedByKind.WithLabelValues(ErrHTTP).Inc()
}

// buildResponse offloads the body to the object store when it exceeds the
// configured threshold, per C9, otherwise inlines it.
func (d *Dispatcher) buildResponse(ctx context.Context, id uuid.UUID, errName string, status int, headers map[string]string, body []byte, elapsedMs int64) *storage.Response {
	r := &storage.Response{
		ID:            id,
		Headers:       headers,
		ElapsedTimeMs: elapsedMs,
	}
	if errName != "" {
		r.ErrorName.String = errName
		r.ErrorName.Valid = true
	}
	if status != 0 {
		r.HTTPStatus.Int32 = int32(status)
		r.HTTPStatus.Valid = true
	}

	if d.objStore != nil && int64(len(body)) > d.cfg.ObjectStoreThreshold {
		key, err := d.objStore.Put(ctx, &pb.Blob{Body: body, Headers: headers})
		if err == nil {
			r.ObjectStoreKey.String = key
			r.ObjectStoreKey.Valid = true
			r.ObjectStoreSize.Int64 = int64(len(body))
			r.ObjectStoreSize.Valid = true
			return r
		}
		d.logger.Error("object store offload failed, inlining body", "error", err)
	}
	r.Body = string(body)
	return r
}
