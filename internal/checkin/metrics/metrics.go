package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ticket issuance and verification.
type Metrics struct {
	TicketsIssued   *prometheus.CounterVec
	Verifications   *prometheus.CounterVec
	VerifyDuration  prometheus.Histogram
	CheckInConflict prometheus.Counter
}

// New registers the check-in metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TicketsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpass_tickets_issued_total",
			Help: "Tickets minted, by format",
		}, []string{"format"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventpass_checkin_verifications_total",
			Help: "Ticket verifications by outcome or rejection reason",
		}, []string{"result"}),
		VerifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventpass_checkin_verify_duration_seconds",
			Help:    "Duration of VerifyAndCheckIn (door critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 3},
		}),
		CheckInConflict: f.NewCounter(prometheus.CounterOpts{
			Name: "eventpass_checkin_write_conflicts_total",
			Help: "Duplicate scans detected by the conditional update rather than the pre-read",
		}),
	}
}

func (m *Metrics) IncrementIssued(format string) {
	m.TicketsIssued.WithLabelValues(format).Inc()
}

// RecordVerification counts one verification and its latency.
// Call with time.Now() at the start of the operation.
func (m *Metrics) RecordVerification(result string, start time.Time) {
	m.Verifications.WithLabelValues(result).Inc()
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementWriteConflict() {
	m.CheckInConflict.Inc()
}
