// Package metrics holds the Prometheus collectors of the application. Each
// Metrics value owns its registry so servers built in tests do not collide.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	AcknowledgmentsRecorded  prometheus.Counter
	AcknowledgmentsDuplicate prometheus.Counter
	PoliciesCreated          prometheus.Counter
	LoginFailures            prometheus.Counter
	LoginSuccesses           prometheus.Counter
	AuthorizationDenied      *prometheus.CounterVec
	RequestDuration          *prometheus.HistogramVec
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AcknowledgmentsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "policies_acknowledgments_recorded_total",
			Help: "Acknowledgments that created a new ledger entry",
		}),
		AcknowledgmentsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "policies_acknowledgments_duplicate_total",
			Help: "Acknowledge calls for a pair that was already acknowledged",
		}),
		PoliciesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "policies_created_total",
			Help: "Policies created by administrators",
		}),
		LoginFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "policies_login_failures_total",
			Help: "Failed login attempts",
		}),
		LoginSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "policies_login_successes_total",
			Help: "Successful logins",
		}),
		AuthorizationDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "policies_authorization_denied_total",
			Help: "Requests denied by the access controller, labeled by action",
		}, []string{"action"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "policies_http_request_duration_seconds",
			Help:    "HTTP request latency, labeled by method and status code",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "code"}),
	}
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) IncrementAuthorizationDenied(action string) {
	m.AuthorizationDenied.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveRequest(method, code string, seconds float64) {
	m.RequestDuration.WithLabelValues(method, code).Observe(seconds)
}
