package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the biometric module. Verification
// outcomes are labelled so anchor inconsistencies (potential tampering) can
// be alerted on separately from plain non-matches.
type Metrics struct {
	Enrollments          *prometheus.CounterVec
	Verifications        *prometheus.CounterVec
	AnchorInconsistent   prometheus.Counter
	AnchorCommitDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Enrollments: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bioanchor_biometric_enrollments_total",
			Help: "Biometric enrollments by modality",
		}, []string{"modality"}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bioanchor_biometric_verifications_total",
			Help: "Biometric verification outcomes by modality",
		}, []string{"modality", "outcome"}),
		AnchorInconsistent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bioanchor_biometric_anchor_inconsistencies_total",
			Help: "Local matches whose on-chain commitment disagreed",
		}),
		AnchorCommitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bioanchor_biometric_anchor_commit_duration_seconds",
			Help:    "Duration of ledger commits on the enrollment path",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// IncrementEnrollment records a successful enrollment.
func (m *Metrics) IncrementEnrollment(modality string) {
	m.Enrollments.WithLabelValues(modality).Inc()
}

// IncrementVerification records one verification outcome.
func (m *Metrics) IncrementVerification(modality, outcome string) {
	m.Verifications.WithLabelValues(modality, outcome).Inc()
}

// ObserveAnchorCommit records the duration of a ledger commit. Call with
// time.Now() taken just before the commit.
func (m *Metrics) ObserveAnchorCommit(start time.Time) {
	m.AnchorCommitDuration.Observe(time.Since(start).Seconds())
}
