package modrefresh

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes refresh activity as Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	batches  *prometheus.CounterVec
	modules  *prometheus.CounterVec
	waitTime prometheus.Histogram
	pending  prometheus.Gauge
}

// NewMetrics creates the refresh collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modrefresh_batches_total",
				Help: "Refresh batches processed, by outcome",
			},
			[]string{"outcome"},
		),
		modules: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modrefresh_modules_refreshed_total",
				Help: "Modules handed to the host runtime for refresh, by batch kind",
			},
			[]string{"batch"},
		),
		waitTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "modrefresh_wait_duration_seconds",
				Help:    "Time spent waiting for the host refresh completion event",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 90, 120},
			},
		),
		pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "modrefresh_pending_modules",
				Help: "Modules marked for refresh and not yet drained",
			},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.batches, m.modules, m.waitTime, m.pending} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMetricsRegistrationFailure, err)
			}
		}
	}
	return m, nil
}

func (m *Metrics) observe(res RefreshResult) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(string(res.Outcome)).Inc()

	switch res.Outcome {
	case OutcomeCompleted, OutcomeTimedOut, OutcomeCancelled:
		m.waitTime.Observe(res.Elapsed.Seconds())
	}
	switch res.Outcome {
	case OutcomeCompleted, OutcomeTimedOut, OutcomeCancelled, OutcomeDispatched:
		m.modules.WithLabelValues(res.Batch.String()).Add(float64(len(res.Modules)))
	}
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
