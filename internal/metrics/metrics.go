// Package metrics exposes Prometheus collectors for the observation and alert
// pipeline. All methods are safe on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	observations *prometheus.CounterVec
	duplicates   prometheus.Counter
	fired        *prometheus.CounterVec
	dispatched   *prometheus.CounterVec
	evictions    *prometheus.CounterVec
	stateEntries prometheus.Gauge
	dropped      *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heartwatch",
			Name:      "observations_total",
			Help:      "Observations received by the engine, by source.",
		}, []string{"source"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heartwatch",
			Name:      "observations_unchanged_total",
			Help:      "Observations ignored because the value equals the last recorded value.",
		}),
		fired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heartwatch",
			Name:      "tier_fired_total",
			Help:      "Tier firings, by tier.",
		}, []string{"tier"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heartwatch",
			Name:      "notifications_total",
			Help:      "Notification attempts, by outcome.",
		}, []string{"outcome"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heartwatch",
			Name:      "state_evictions_total",
			Help:      "Alert-state entries removed, by reason.",
		}, []string{"reason"}),
		stateEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "heartwatch",
			Name:      "state_entries",
			Help:      "Messages currently tracked in the alert-state store.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heartwatch",
			Name:      "dropped_total",
			Help:      "Items dropped because a queue was full, by queue.",
		}, []string{"queue"}),
	}
	if reg != nil {
		reg.MustRegister(m.observations, m.duplicates, m.fired, m.dispatched, m.evictions, m.stateEntries, m.dropped)
	}
	return m
}

func (m *Metrics) Observation(source string) {
	if m == nil {
		return
	}
	m.observations.WithLabelValues(source).Inc()
}

func (m *Metrics) Unchanged() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) Fired(tier string) {
	if m == nil {
		return
	}
	m.fired.WithLabelValues(tier).Inc()
}

func (m *Metrics) Dispatched(outcome string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Evicted(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) StateSize(n int) {
	if m == nil {
		return
	}
	m.stateEntries.Set(float64(n))
}

func (m *Metrics) Dropped(queue string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(queue).Inc()
}
