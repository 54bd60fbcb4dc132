package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maxpoletaev/replicated/membership"
)

const namespace = "replicated"

// Probe kinds used as the "kind" label.
const (
	ProbeAlive    = "alive"
	ProbeWritable = "writable"
)

// Metrics holds the failover collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	probesTotal   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	activeSlaves  prometheus.Gauge
	deactivated   prometheus.Gauge
	masterUp      prometheus.Gauge
	stateVersion  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Total number of member probes.",
			},
			[]string{"kind", "result"},
		),

		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Latency of member probes.",
				// 1ms .. ~8s
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"kind"},
		),

		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of member state transitions.",
			},
			[]string{"type"},
		),

		activeSlaves: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_slaves",
			Help:      "Number of slaves eligible for read routing.",
		}),

		deactivated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deactivated_slaves",
			Help:      "Number of slaves failing liveness checks.",
		}),

		masterUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "master_available",
			Help:      "1 if a master is available for writes, 0 otherwise.",
		}),

		stateVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state_version",
			Help:      "Version of the latest registry snapshot.",
		}),
	}

	m.registry.MustRegister(
		m.probesTotal,
		m.probeDuration,
		m.transitions,
		m.activeSlaves,
		m.deactivated,
		m.masterUp,
		m.stateVersion,
	)

	return m
}

// Gatherer exposes the underlying registry, mostly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler exposes /metrics. Mount it with mux.Handle("/metrics", m.Handler()).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveProbe records the outcome of a single probe.
func (m *Metrics) ObserveProbe(kind string, ok bool, took time.Duration) {
	if m == nil {
		return
	}

	result := "fail"
	if ok {
		result = "ok"
	}

	m.probesTotal.WithLabelValues(kind, result).Inc()
	m.probeDuration.WithLabelValues(kind).Observe(took.Seconds())
}

// SetState updates the gauges from a registry snapshot.
func (m *Metrics) SetState(s membership.State) {
	if m == nil {
		return
	}

	m.activeSlaves.Set(float64(len(s.Slaves)))
	m.deactivated.Set(float64(len(s.Deactivated)))
	m.stateVersion.Set(float64(s.Version))

	if s.HasMaster() {
		m.masterUp.Set(1)
	} else {
		m.masterUp.Set(0)
	}
}

// Listener returns a registry listener that counts transitions and keeps the
// gauges up to date.
func (m *Metrics) Listener() membership.Listener {
	return func(e membership.Event) {
		if m == nil {
			return
		}

		m.transitions.WithLabelValues(e.Type.String()).Inc()
		m.SetState(e.State)
	}
}
