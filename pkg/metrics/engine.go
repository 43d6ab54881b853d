package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records throughput of the order and payment pipeline.
type EngineMetrics struct {
	ordersCreated   prometheus.Counter
	transitions     *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	refunds         *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	outboxPublished prometheus.Counter
	outboxFailures  prometheus.Counter
}

// Webhook outcome labels.
const (
	WebhookResultApplied   = "applied"
	WebhookResultDuplicate = "duplicate"
	WebhookResultUnmatched = "unmatched"
	WebhookResultIgnored   = "ignored"
)

// NewEngineMetrics registers the pipeline metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders created from cart conversion.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Order lifecycle transitions by edge.",
	}, []string{"from", "to"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_webhook_events_total",
		Help: "Gateway callback deliveries by outcome.",
	}, []string{"result"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Refunds recorded by status.",
	}, []string{"status"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Duration of outbound gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	outboxPublished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox rows relayed to the broker.",
	})
	outboxFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox relay attempts that failed.",
	})
	reg.MustRegister(ordersCreated, transitions, webhookEvents, refunds, gatewayDuration, outboxPublished, outboxFailures)
	return &EngineMetrics{
		ordersCreated:   ordersCreated,
		transitions:     transitions,
		webhookEvents:   webhookEvents,
		refunds:         refunds,
		gatewayDuration: gatewayDuration,
		outboxPublished: outboxPublished,
		outboxFailures:  outboxFailures,
	}
}

// IncOrderCreated counts a created order row.
func (m *EngineMetrics) IncOrderCreated() {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Inc()
}

// IncTransition counts a lifecycle transition by edge.
func (m *EngineMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncWebhookEvent counts a callback delivery by outcome.
func (m *EngineMetrics) IncWebhookEvent(result string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncRefund counts a refund row by status.
func (m *EngineMetrics) IncRefund(status string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(status)).Inc()
}

// ObserveGatewayDuration records an outbound gateway call duration.
func (m *EngineMetrics) ObserveGatewayDuration(operation string, duration time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncOutboxPublished counts a relayed outbox row.
func (m *EngineMetrics) IncOutboxPublished() {
	if m == nil || m.outboxPublished == nil {
		return
	}
	m.outboxPublished.Inc()
}

// IncOutboxFailure counts a failed relay attempt.
func (m *EngineMetrics) IncOutboxFailure() {
	if m == nil || m.outboxFailures == nil {
		return
	}
	m.outboxFailures.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
