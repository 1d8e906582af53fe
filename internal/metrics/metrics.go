package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeCompleted labels successfully finished campaigns and turns.
	OutcomeCompleted = "completed"
	// OutcomeFailed labels campaigns and turns that ended in failure.
	OutcomeFailed = "failed"
)

var (
	campaignsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbiter_eval",
			Name:      "campaigns_total",
			Help:      "Total number of campaigns executed, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbiter_eval",
			Name:      "turns_total",
			Help:      "Total number of turns executed, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	turnDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "arbiter_eval",
			Name:      "turn_seconds",
			Help:      "End-to-end turn latency in seconds.",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34, 60},
		},
	)

	rootCausesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbiter_eval",
			Name:      "root_causes_total",
			Help:      "Root causes identified by the correlation engine, by kind.",
		},
		[]string{"kind"},
	)
)

// Register attaches the collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		campaignsTotal,
		turnsTotal,
		turnDurationSeconds,
		rootCausesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCampaign records a campaign outcome.
func ObserveCampaign(outcome string) {
	if outcome != OutcomeFailed {
		outcome = OutcomeCompleted
	}
	campaignsTotal.WithLabelValues(outcome).Inc()
}

// ObserveTurn records a turn outcome and its duration.
func ObserveTurn(duration time.Duration, outcome string) {
	if outcome != OutcomeFailed {
		outcome = OutcomeCompleted
	}
	turnsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	turnDurationSeconds.Observe(duration.Seconds())
}

// ObserveRootCause counts one identified root cause by kind.
func ObserveRootCause(kind string) {
	rootCausesTotal.WithLabelValues(kind).Inc()
}
