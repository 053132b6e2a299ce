// Package metrics holds the Prometheus instrumentation of the filter service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ata-marzban/filterd/internal/filter"
)

const namespace = "filterd"

// Metrics is a set of collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	parses     *prometheus.CounterVec
	duration   prometheus.Histogram
	predicates prometheus.Histogram
	requests   *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_total",
			Help:      "Filter parses by result (ok or the parse error code).",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time spent parsing a filter.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		predicates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "predicates_per_filter",
			Help:      "Number of predicates in successfully parsed filters.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "gRPC requests by method and status code.",
		}, []string{"method", "code"}),
	}
	m.registry.MustRegister(
		m.parses,
		m.duration,
		m.predicates,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveParse records one parse. f is ignored when err is not nil.
func (m *Metrics) ObserveParse(d time.Duration, f *filter.Filter, err error) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
	if err != nil {
		result := "error"
		if pe, ok := filter.AsParseError(err); ok {
			result = pe.Code.String()
		}
		m.parses.WithLabelValues(result).Inc()
		return
	}
	m.parses.WithLabelValues("ok").Inc()
	m.predicates.Observe(float64(f.Len()))
}

// ObserveRequest records a finished gRPC call.
func (m *Metrics) ObserveRequest(method, code string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, code).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
