package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module: DID lifecycle
// counts and anchor commit latency on the write paths.
type Metrics struct {
	DIDsCreated          prometheus.Counter
	DIDsUpdated          prometheus.Counter
	Verifications        *prometheus.CounterVec
	AnchorCommitDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		DIDsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bioanchor_dids_created_total",
			Help: "Total number of DID documents created and anchored",
		}),
		DIDsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bioanchor_dids_updated_total",
			Help: "Total number of DID document updates anchored",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bioanchor_did_verifications_total",
			Help: "DID verification outcomes",
		}, []string{"outcome"}),
		AnchorCommitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bioanchor_did_anchor_commit_duration_seconds",
			Help:    "Duration of ledger commits on the DID write path",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// ObserveAnchorCommit records the duration of a ledger commit. Call with
// time.Now() taken just before the commit.
func (m *Metrics) ObserveAnchorCommit(start time.Time) {
	m.AnchorCommitDuration.Observe(time.Since(start).Seconds())
}

// IncrementVerification records one verification outcome.
func (m *Metrics) IncrementVerification(outcome string) {
	m.Verifications.WithLabelValues(outcome).Inc()
}
