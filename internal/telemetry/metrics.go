package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the runtime records, registered
// once per process against a dedicated registry (never the global
// DefaultRegisterer, so embedding an application doesn't collide with it).
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveSessions   prometheus.Gauge
	ConcurrencyInUse *prometheus.GaugeVec
	OutboundPending  *prometheus.GaugeVec
	TransportErrors  *prometheus.CounterVec
}

// NewMetrics creates a fresh registry, registers the Go/process collectors
// the teacher's HTTP transport always adds, and returns the application
// metric set on top of it.
func NewMetrics() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "turbomcp",
				Name:      "requests_total",
				Help:      "Total number of JSON-RPC requests dispatched",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "turbomcp",
				Name:      "request_duration_seconds",
				Help:      "Handler duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "turbomcp",
				Name:      "active_sessions",
				Help:      "Number of sessions currently open, across all transports",
			},
		),
		ConcurrencyInUse: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "turbomcp",
				Name:      "concurrency_permit_in_use",
				Help:      "In-flight handlers per session, bounded by max_concurrent_requests",
			},
			[]string{"transport"},
		),
		OutboundPending: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "turbomcp",
				Name:      "outbound_pending",
				Help:      "Outbound requests awaiting a correlated response",
			},
			[]string{"transport"},
		),
		TransportErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "turbomcp",
				Name:      "transport_errors_total",
				Help:      "Codec parse failures and outbound request timeouts/cancellations",
			},
			[]string{"transport", "kind"},
		),
	}
	return reg, m
}
