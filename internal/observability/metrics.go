// Package observability implements C14: the Prometheus counters/gauges and
// per-attempt span attributes emitted by the delivery worker, relay server
// and housekeeping loops.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus series this system exports, grouped by
// the component that owns them.
type Metrics struct {
	QueueDepth        *prometheus.GaugeVec
	WorkersInFlight   prometheus.Gauge
	AttemptsPicked    prometheus.Counter
	AttemptsSucceeded prometheus.Counter
	AttemptsFailedByKind *prometheus.CounterVec

	DBPoolSize   prometheus.Gauge
	DBPoolIdle   prometheus.Gauge
	DBPoolActive prometheus.Gauge

	RelayConnectionsTotal *prometheus.GaugeVec
	RelayConnectionsByIP  *prometheus.GaugeVec
}

// NewMetrics constructs and registers every series. Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hook0_queue_depth",
			Help: "Approximate number of unacknowledged dispatch-queue messages.",
		}, []string{"backend"}),

		WorkersInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hook0_workers_in_flight",
			Help: "Number of delivery-worker goroutines currently processing an attempt.",
		}),

		AttemptsPicked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hook0_request_attempts_picked_total",
			Help: "Total request attempts picked up for delivery.",
		}),

		AttemptsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hook0_request_attempts_succeeded_total",
			Help: "Total request attempts that reached a 2xx terminal state.",
		}),

		AttemptsFailedByKind: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hook0_request_attempts_failed_total",
			Help: "Total request attempts that reached a terminal failure, by error kind.",
		}, []string{"kind"}),

		DBPoolSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hook0_db_pool_size",
			Help: "Configured max open DB connections.",
		}),
		DBPoolIdle: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hook0_db_pool_idle",
			Help: "Idle DB connections in the pool.",
		}),
		DBPoolActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hook0_db_pool_active",
			Help: "In-use DB connections in the pool.",
		}),

		RelayConnectionsTotal: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hook0_relay_connections_total",
			Help: "Currently active relay WebSocket connections.",
		}, []string{}),
		RelayConnectionsByIP: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hook0_relay_connections_by_ip",
			Help: "Currently active relay WebSocket connections, by client IP.",
		}, []string{"ip"}),
	}
}

// AttemptSpanAttributes is the fixed attribute set attached to each
// per-attempt span, per §5's tracing contract.
type AttemptSpanAttributes struct {
	ApplicationID      string
	SubscriptionID     string
	EventID            string
	RetryCount         int
	HTTPResponseStatus int
	Error              string
}

// spanContextKey avoids import cycles with a full tracing SDK: the worker
// only needs attribute-carrying spans for structured logging, not
// cross-process propagation, so a minimal context-scoped recorder suffices.
type spanContextKey struct{}

// WithAttemptSpan returns a context carrying span attributes a logger can
// pull out via AttemptSpanFromContext.
func WithAttemptSpan(ctx context.Context, attrs AttemptSpanAttributes) context.Context {
	return context.WithValue(ctx, spanContextKey{}, attrs)
}

func AttemptSpanFromContext(ctx context.Context) (AttemptSpanAttributes, bool) {
	attrs, ok := ctx.Value(spanContextKey{}).(AttemptSpanAttributes)
	return attrs, ok
}
