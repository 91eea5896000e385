// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "storefront_orders"

// Metrics groups the collectors used across the service.
type Metrics struct {
	HTTPRequestDuration      *prometheus.HistogramVec
	OrderOperations          *prometheus.CounterVec
	CheckoutSessions         *prometheus.CounterVec
	WebhookEvents            *prometheus.CounterVec
	WebhookSignatureFailures prometheus.Counter
	OutboxPublished          *prometheus.CounterVec
	WebhookEventsPurged      prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		OrderOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_operations_total",
			Help:      "Order lifecycle operations by outcome.",
		}, []string{"operation", "result"}),
		CheckoutSessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_total",
			Help:      "Checkout session requests to the payment processor by outcome.",
		}, []string{"result"}),
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Verified payment webhook events by type and reconciliation outcome.",
		}, []string{"type", "outcome"}),
		WebhookSignatureFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_signature_failures_total",
			Help:      "Payment webhooks rejected by signature or timestamp verification.",
		}),
		OutboxPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_messages_total",
			Help:      "Outbox messages relayed to the event broker by outcome.",
		}, []string{"result"}),
		WebhookEventsPurged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_purged_total",
			Help:      "Processed webhook event records removed after the retention window.",
		}),
	}
}

// Result labels an operation outcome from its error.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
