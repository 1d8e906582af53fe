package models

import "time"

// MetricKind enumerates the evaluation dimensions the scoring collaborator
// reports on.
type MetricKind string

const (
	MetricAccuracy        MetricKind = "accuracy"
	MetricCompleteness    MetricKind = "completeness"
	MetricRelevance       MetricKind = "relevance"
	MetricCoherence       MetricKind = "coherence"
	MetricSessionHandling MetricKind = "session_handling"
	MetricRoutingAccuracy MetricKind = "routing_accuracy"
)

// MetricScore is one scored dimension of a turn evaluation.
type MetricScore struct {
	Metric MetricKind
	Score  float64
	Reason string
}

// NewMetricScore clamps the score into [0,1] at construction so invariants
// hold regardless of what the scoring collaborator returned.
func NewMetricScore(metric MetricKind, score float64, reason string) MetricScore {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return MetricScore{Metric: metric, Score: score, Reason: reason}
}

// EvaluationResult is the per-metric scoring of one turn.
type EvaluationResult struct {
	ID        string
	TurnID    string
	Scores    []MetricScore
	Overall   float64
	CreatedAt time.Time
}

// Score returns the score for the given metric and whether it was reported.
func (e *EvaluationResult) Score(metric MetricKind) (float64, bool) {
	for _, s := range e.Scores {
		if s.Metric == metric {
			return s.Score, true
		}
	}
	return 0, false
}
