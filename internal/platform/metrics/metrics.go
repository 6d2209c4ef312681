package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	QueueDepth       prometheus.Gauge
	EventsReceived   *prometheus.CounterVec
	EventsProcessed  *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
	PublishRetries   prometheus.Counter
	RecoveryRequeued prometheus.Counter
	WebhooksRejected *prometheus.CounterVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all metrics on the given registerer. Tests pass a fresh
// registry so repeated construction never collides.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "repogator_queue_depth",
			Help: "Current number of messages in the webhook event queue",
		}),
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "repogator_events_received_total",
			Help: "Webhook events accepted at the ingress, by event type",
		}, []string{"event_type"}),
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "repogator_events_processed_total",
			Help: "Events finalized by the orchestrator, by terminal status",
		}, []string{"status"}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "repogator_dispatch_duration_seconds",
			Help:    "End-to-end orchestrator dispatch latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		PublishRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "repogator_publish_retries_total",
			Help: "Retried outbound calls to the provider API",
		}),
		RecoveryRequeued: factory.NewCounter(prometheus.CounterOpts{
			Name: "repogator_recovery_requeued_total",
			Help: "Events re-enqueued by startup recovery or the stale sweep",
		}),
		WebhooksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "repogator_webhooks_rejected_total",
			Help: "Webhook deliveries rejected at the ingress, by reason",
		}, []string{"reason"}),
	}
}
