package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	submissions *prometheus.CounterVec
	saves       *prometheus.CounterVec
	scoreRatio  prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "testdesk",
			Name:      "submissions_total",
			Help:      "Exam submissions by outcome (ok, invalid, not_found, persistence).",
		}, []string{"outcome"}),
		saves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "testdesk",
			Name:      "response_saves_total",
			Help:      "Autosave writes by kind (single, bulk) and result (ok, error).",
		}, []string{"kind", "result"}),
		scoreRatio: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "testdesk",
			Name:      "score_ratio",
			Help:      "Score divided by total questions for successful submissions.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Score(score, total int) {
	if m == nil || total == 0 {
		return
	}
	m.scoreRatio.Observe(float64(score) / float64(total))
}

func (m *Metrics) Save(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.saves.WithLabelValues(kind, result).Inc()
}
