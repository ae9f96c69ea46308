// Package metrics exposes the Prometheus collectors of the scoring sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "dscore"

	OpLabel         = "op"
	ConstraintLabel = "constraint"
	OpInsert        = "insert"
	OpUpdate        = "update"
	OpRetract       = "retract"
)

// Metrics is the set of collectors a session reports to. A nil *Metrics is valid and reports
// nothing.
type Metrics struct {
	FactChanges       *prometheus.CounterVec
	TupleRefreshes    prometheus.Counter
	ScoreCalculations prometheus.Counter
	DrainSeconds      prometheus.Histogram
	ConstraintMatches *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		FactChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "fact_changes_total",
				Help:      "Number of facts inserted, updated or retracted",
			},
			[]string{OpLabel},
		),
		TupleRefreshes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "tuple_refreshes_total",
				Help:      "Number of tuples refreshed while settling fact changes",
			},
		),
		ScoreCalculations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "score_calculations_total",
				Help:      "Number of times the score was settled after a fact change",
			},
		),
		DrainSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "drain_duration_seconds",
				Help:      "Time spent settling the tuple queue",
				Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
			},
		),
		ConstraintMatches: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "constraint_matches",
				Help:      "Number of matches of a constraint after the last score calculation",
			},
			[]string{ConstraintLabel},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.FactChanges, m.TupleRefreshes, m.ScoreCalculations,
		m.DrainSeconds, m.ConstraintMatches} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// FactChanged counts a fact change.
func (m *Metrics) FactChanged(op string, n int) {
	if m == nil {
		return
	}
	m.FactChanges.WithLabelValues(op).Add(float64(n))
}

// Drained records a settled queue.
func (m *Metrics) Drained(refreshes int, d time.Duration) {
	if m == nil {
		return
	}
	m.TupleRefreshes.Add(float64(refreshes))
	m.ScoreCalculations.Inc()
	m.DrainSeconds.Observe(d.Seconds())
}

// SetMatches records the match count of a constraint.
func (m *Metrics) SetMatches(constraint string, count int) {
	if m == nil {
		return
	}
	m.ConstraintMatches.WithLabelValues(constraint).Set(float64(count))
}
