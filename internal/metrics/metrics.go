// Package metrics holds the Prometheus collectors of the adapter and its
// container. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "servlet_adapter"

// Metrics tracks module loading, lifecycle callbacks and served requests.
type Metrics struct {
	// ModuleLoads counts module load attempts by module and result
	ModuleLoads *prometheus.CounterVec

	// LifecycleCalls counts forwarded lifecycle callbacks by callback and result
	LifecycleCalls *prometheus.CounterVec

	// RequestsTotal counts served requests by status code
	RequestsTotal *prometheus.CounterVec

	// RequestDuration tracks Service latency
	RequestDuration prometheus.Histogram

	// InFlight is the number of Service calls currently running
	InFlight prometheus.Gauge
}

// New creates and registers all collectors on reg.
// Panics if registration fails (expected during initialization only).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ModuleLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "module_loads_total",
				Help:      "Module load attempts by module and result",
			},
			[]string{"module", "result"},
		),
		LifecycleCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_calls_total",
				Help:      "Forwarded lifecycle callbacks by callback and result",
			},
			[]string{"callback", "result"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Requests served by status code",
			},
			[]string{"status"},
		),
		RequestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Service call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Service calls currently running",
			},
		),
	}

	reg.MustRegister(
		m.ModuleLoads,
		m.LifecycleCalls,
		m.RequestsTotal,
		m.RequestDuration,
		m.InFlight,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveModuleLoad records the outcome of one module load.
func (m *Metrics) ObserveModuleLoad(module string, err error) {
	if m == nil {
		return
	}
	m.ModuleLoads.WithLabelValues(module, result(err)).Inc()
}

// ObserveLifecycle records one forwarded lifecycle callback.
func (m *Metrics) ObserveLifecycle(callback string, err error) {
	if m == nil {
		return
	}
	m.LifecycleCalls.WithLabelValues(callback, result(err)).Inc()
}

// RequestStarted marks the start of a Service call and returns a function
// that records its completion with the given status code.
func (m *Metrics) RequestStarted() func(status int) {
	if m == nil {
		return func(int) {}
	}
	start := time.Now()
	m.InFlight.Inc()
	return func(status int) {
		m.InFlight.Dec()
		m.RequestDuration.Observe(time.Since(start).Seconds())
		m.RequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	}
}
