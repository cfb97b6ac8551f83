// Package metrics defines the Prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Send attempt outcomes.
const (
	OutcomeSent        = "sent"
	OutcomeRetry       = "retry"
	OutcomeRateLimited = "rate_limited"
	OutcomeFailed      = "failed"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	SendAttempts  *prometheus.CounterVec
	SendDuration  *prometheus.HistogramVec
	EmailsFailed  *prometheus.CounterVec
	WebhookEvents *prometheus.CounterVec
	WebhookBatch  *prometheus.CounterVec
	Enqueued      *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_emails_enqueued_total",
			Help: "Send requests accepted and enqueued",
		}, []string{"event"}),
		SendAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_send_attempts_total",
			Help: "Send job attempts by outcome",
		}, []string{"event", "outcome"}),
		SendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courier_send_duration_seconds",
			Help:    "Latency of delivery provider calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"event"}),
		EmailsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_emails_failed_total",
			Help: "Emails that failed permanently",
		}, []string{"event", "reason"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_webhook_events_total",
			Help: "Provider webhook events by type and processing result",
		}, []string{"type", "result"}),
		WebhookBatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_webhook_batches_total",
			Help: "Inbound webhook requests by response",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Enqueued,
		m.SendAttempts,
		m.SendDuration,
		m.EmailsFailed,
		m.WebhookEvents,
		m.WebhookBatch,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) EmailEnqueued(event string) {
	if m == nil {
		return
	}
	m.Enqueued.WithLabelValues(event).Inc()
}

func (m *Metrics) SendAttempt(event, outcome string) {
	if m == nil {
		return
	}
	m.SendAttempts.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) ObserveSend(event string, seconds float64) {
	if m == nil {
		return
	}
	m.SendDuration.WithLabelValues(event).Observe(seconds)
}

func (m *Metrics) EmailFailed(event, reason string) {
	if m == nil {
		return
	}
	m.EmailsFailed.WithLabelValues(event, reason).Inc()
}

func (m *Metrics) WebhookEvent(typ, result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(typ, result).Inc()
}

func (m *Metrics) WebhookRequest(result string) {
	if m == nil {
		return
	}
	m.WebhookBatch.WithLabelValues(result).Inc()
}
