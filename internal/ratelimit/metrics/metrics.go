package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitDenied      *prometheus.CounterVec
	RateLimitStoreErrors prometheus.Counter
	RateLimitDegraded    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RateLimitDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpass_ratelimit_denied_total",
			Help: "Requests rejected by rate limiting",
		}, []string{"class", "limit_type"}),
		RateLimitStoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "eventpass_ratelimit_store_errors_total",
			Help: "Rate limit counter failures (requests fail open)",
		}),
		RateLimitDegraded: f.NewGauge(prometheus.GaugeOpts{
			Name: "eventpass_ratelimit_degraded",
			Help: "1 while the in-memory fallback counter is in use",
		}),
	}
}

func (m *Metrics) IncrementDenied(class, limitType string) {
	m.RateLimitDenied.WithLabelValues(class, limitType).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	m.RateLimitStoreErrors.Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		m.RateLimitDegraded.Set(1)
		return
	}
	m.RateLimitDegraded.Set(0)
}
