package models

import "time"

// CorrelationKind names the class of trace evidence linked to a low score.
type CorrelationKind string

const (
	CorrPerformanceImpact  CorrelationKind = "performance_impact"
	CorrErrorRelated       CorrelationKind = "error_related"
	CorrTokenLimit         CorrelationKind = "token_limit"
	CorrRoutingIssue       CorrelationKind = "routing_issue"
	CorrDatabaseBottleneck CorrelationKind = "database_bottleneck"
)

// Correlation is a hypothesized causal link between a trace-derived signal
// and a low metric score. Produced transiently per turn; only metrics
// scoring below the low-score threshold ever carry one.
type Correlation struct {
	Metric      MetricKind
	MetricScore float64
	Kind        CorrelationKind
	Confidence  float64
	Impact      float64
	Evidence    []string
	Explanation string
}

// RootCause groups correlations of one kind. Severity is exactly the
// arithmetic mean of member impacts.
type RootCause struct {
	Kind            CorrelationKind
	Issue           string
	Severity        float64
	Metrics         []MetricKind
	Correlations    []Correlation
	Recommendations []string
}

// Recommendation is a prioritized mitigation derived from a root cause.
type Recommendation struct {
	Text string
	// Priority is the rank of the originating root cause, 1 = most severe.
	Priority   int
	Confidence float64
}

// CorrelationResult is the full diagnostic output for one turn.
type CorrelationResult struct {
	TurnID            string
	TraceID           string
	Correlations      []Correlation
	RootCauses        []RootCause
	Recommendations   []Recommendation
	OverallConfidence float64
	CreatedAt         time.Time
}

// CampaignReport summarises a finished campaign for the CLI surface.
type CampaignReport struct {
	CampaignID      string
	Kind            CampaignKind
	Status          CampaignStatus
	Stats           CampaignStats
	MetricAverages  map[MetricKind]float64
	RootCauses      []RootCauseSummary
	Recommendations []Recommendation
	TurnLatencyP95  time.Duration
	StopReason      string
	GeneratedAt     time.Time
}

// RootCauseSummary aggregates one root-cause kind across all turns of a
// campaign.
type RootCauseSummary struct {
	Kind         CorrelationKind
	Issue        string
	Occurrences  int
	MaxSeverity  float64
	MeanSeverity float64
}
