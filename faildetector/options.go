package faildetector

import (
	"time"

	"github.com/maxpoletaev/replicated/internal/telemetry"
)

type Option func(*Detector)

func WithCheckInterval(t time.Duration) Option {
	return func(d *Detector) {
		d.checkInterval = t
	}
}

func WithProbeTimeout(t time.Duration) Option {
	return func(d *Detector) {
		d.probeTimeout = t
	}
}

// WithMasterCheck enables checking of the master on every tick.
func WithMasterCheck(enabled bool) Option {
	return func(d *Detector) {
		d.checkMaster = enabled
	}
}

func WithPolicy(p Policy) Option {
	return func(d *Detector) {
		d.policy = p
	}
}

// WithProbeConcurrency sets how many slaves are probed at once within a tick.
// Transitions are still applied in list order.
func WithProbeConcurrency(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}
