package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the fraud module.
type Metrics struct {
	EventsRecorded  *prometheus.CounterVec
	RiskAssessments *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		EventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bioanchor_fraud_events_total",
			Help: "Fraud events recorded, by type and whether they were anchored",
		}, []string{"type", "anchored"}),
		RiskAssessments: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bioanchor_risk_assessments_total",
			Help: "Risk assessments computed, by resulting level",
		}, []string{"level"}),
	}
}

// IncrementEvent records one fraud event.
func (m *Metrics) IncrementEvent(fraudType string, anchored bool) {
	label := "false"
	if anchored {
		label = "true"
	}
	m.EventsRecorded.WithLabelValues(fraudType, label).Inc()
}

// IncrementAssessment records one computed risk assessment.
func (m *Metrics) IncrementAssessment(level string) {
	m.RiskAssessments.WithLabelValues(level).Inc()
}
