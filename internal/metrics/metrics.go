package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "updater"

// Metrics groups the collectors exported by the daemon. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	activeTransfers prometheus.Gauge
	transfers       *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	probeLatency    prometheus.Histogram
	probeFailures   prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_transfers",
			Help:      "Number of transfers currently in flight.",
		}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Finished transfers by result.",
		}, []string{"result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Finished verifications by result.",
		}, []string{"result"}),
		probeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mirror_probe_latency_seconds",
			Help:      "Measured mirror round trip latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		probeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_probe_failures_total",
			Help:      "Mirror probes that failed or timed out.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.activeTransfers,
		m.transfers,
		m.verifications,
		m.probeLatency,
		m.probeFailures,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SetActiveTransfers(n int) {
	if m == nil {
		return
	}

	m.activeTransfers.Set(float64(n))
}

// TransferDone counts a finished transfer. result is success, failure or cancelled.
func (m *Metrics) TransferDone(result string) {
	if m == nil {
		return
	}

	m.transfers.WithLabelValues(result).Inc()
}

func (m *Metrics) VerificationDone(ok bool) {
	if m == nil {
		return
	}

	result := "failure"
	if ok {
		result = "success"
	}

	m.verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveProbe(d time.Duration) {
	if m == nil {
		return
	}

	m.probeLatency.Observe(d.Seconds())
}

func (m *Metrics) ProbeFailed() {
	if m == nil {
		return
	}

	m.probeFailures.Inc()
}
