package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks audit emission outcomes per action.
type Metrics struct {
	emitted    *prometheus.CounterVec
	failures   *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	sampledOut *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		emitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpass_audit_events_emitted_total",
			Help: "Audit events persisted",
		}, []string{"action"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpass_audit_persist_failures_total",
			Help: "Audit events the store refused",
		}, []string{"action"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpass_audit_events_dropped_total",
			Help: "Audit events dropped because the async buffer was full",
		}, []string{"action"}),
		sampledOut: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpass_audit_events_sampled_out_total",
			Help: "Operations events skipped by sampling",
		}, []string{"action"}),
	}
}

func (m *Metrics) IncEmitted(action string)    { m.emitted.WithLabelValues(action).Inc() }
func (m *Metrics) IncFailures(action string)   { m.failures.WithLabelValues(action).Inc() }
func (m *Metrics) IncDropped(action string)    { m.dropped.WithLabelValues(action).Inc() }
func (m *Metrics) IncSampledOut(action string) { m.sampledOut.WithLabelValues(action).Inc() }
