// Package metrics exposes the storefront's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Metrics holds the collectors of one process. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	cartMutations *prometheus.CounterVec
	cartUnits     prometheus.Gauge
	addressOps    *prometheus.CounterVec
	remoteCalls   *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
	circuitState  prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"service", "method", "path"}),
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "mutations_total",
			Help:      "Cart mutations by operation.",
		}, []string{"op"}),
		cartUnits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "units",
			Help:      "Units currently in the cart.",
		}),
		addressOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "address",
			Name:      "operations_total",
			Help:      "Address manager operations by outcome.",
		}, []string{"op", "outcome"}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commerce",
			Name:      "calls_total",
			Help:      "Calls to the commerce backend by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "commerce",
			Name:      "call_duration_seconds",
			Help:      "Duration of calls to the commerce backend.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"endpoint"}),
		circuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "commerce",
			Name:      "circuit_state",
			Help:      "Commerce circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.cartMutations,
		m.cartUnits,
		m.addressOps,
		m.remoteCalls,
		m.remoteLatency,
		m.circuitState,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one handled request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordCartMutation counts a cart operation and updates the unit gauge.
func (m *Metrics) RecordCartMutation(op string, units int) {
	m.cartMutations.WithLabelValues(op).Inc()
	m.cartUnits.Set(float64(units))
}

// RecordAddressOperation counts a finished address operation.
func (m *Metrics) RecordAddressOperation(op, outcome string) {
	m.addressOps.WithLabelValues(op, outcome).Inc()
}

// RecordRemoteCall records a finished commerce call.
func (m *Metrics) RecordRemoteCall(endpoint string, err error, duration time.Duration) {
	if endpoint == "" {
		endpoint = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.remoteCalls.WithLabelValues(endpoint, outcome).Inc()
	m.remoteLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCircuitState records the commerce circuit breaker state.
func (m *Metrics) RecordCircuitState(state int) {
	m.circuitState.Set(float64(state))
}
