package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type Metrics struct {
	Requests        *prometheus.CounterVec
	LatencyMS       *prometheus.HistogramVec
	Checkouts       *prometheus.CounterVec
	WebhookEvents   *prometheus.CounterVec
	OutboxPublished prometheus.Counter
}

// New registers the collectors on reg. A nil *Metrics is valid and records
// nothing.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route", "method"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_events_total",
			Help:      "Payment provider events by type and outcome.",
		}, []string{"type", "outcome"}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox events published to the broker.",
		}),
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.Checkouts, m.WebhookEvents, m.OutboxPublished)
	return m
}

func (m *Metrics) ObserveRequest(route string, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(route, method).Observe(float64(elapsed.Microseconds()) / 1000)
}

func (m *Metrics) ObserveCheckout(outcome string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveWebhookEvent(eventType string, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) ObserveOutboxPublished(count int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(count))
}

// Handler serves the collectors of gatherer, usually the registry passed to
// New.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
