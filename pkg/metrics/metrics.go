// Package metrics declares the Prometheus collectors the proxy
// exposes on its monitoring HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the proxy updates during its
// lifetime. A zero-value Metrics is not usable; construct with New.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RateLimitedTotal   *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	RequestLatency     *prometheus.HistogramVec
	ActiveConnections  prometheus.Gauge
	ConnectionsByState *prometheus.GaugeVec
	CertNotAfterSeconds *prometheus.GaugeVec
}

func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Total number of connections accepted by the proxy.",
		}, []string{"outcome"}),

		RateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_rate_limited_total",
			Help: "Total number of connections denied by the rate limiter.",
		}, []string{"client_ip"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_errors_total",
			Help: "Total number of errors encountered, by kind.",
		}, []string{"kind"}),

		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proxy_request_latency_seconds",
			Help:    "End-to-end connection handling latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),

		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "proxy_active_connections",
			Help: "Number of connections currently being relayed.",
		}),

		ConnectionsByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxy_connections_by_state",
			Help: "Number of connections currently in each lifecycle state.",
		}, []string{"state"}),

		CertNotAfterSeconds: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxy_cert_not_after_seconds",
			Help: "Unix timestamp of the active certificate's expiry.",
		}, []string{"domain"}),
	}
}

// TransitionState moves a connection's gauge count from one lifecycle
// state label to another. from may be empty for a connection's first
// transition, in which case nothing is decremented.
func (m *Metrics) TransitionState(from, to string) {
	if from != "" && from != to {
		m.ConnectionsByState.WithLabelValues(from).Dec()
	}
	m.ConnectionsByState.WithLabelValues(to).Inc()
}

// ObserveLatency records the duration of one connection lifecycle.
func (m *Metrics) ObserveLatency(outcome string, d time.Duration) {
	m.RequestLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordCertExpiry publishes the active certificate's not-after time
// for a domain, used by monitoring to alert ahead of expiry.
func (m *Metrics) RecordCertExpiry(domain string, notAfter time.Time) {
	m.CertNotAfterSeconds.WithLabelValues(domain).Set(float64(notAfter.Unix()))
}
