package correlation

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/arbiterstack/arbiter-eval/internal/models"
)

// LowScoreThreshold is the metric score below which correlation checks run.
const LowScoreThreshold = 0.6

// Engine matches trace-derived signals against low-scoring metrics using a
// fixed, ordered battery of threshold checks.
type Engine struct {
	logger *slog.Logger
}

// NewEngine constructs a correlation engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// check is one entry in the battery. fire returns whether the trigger
// condition holds plus the confidence, impact and evidence for a resulting
// correlation.
type check struct {
	kind    models.CorrelationKind
	metrics []models.MetricKind
	fire    func(models.TraceInsights) (bool, float64, float64, []string)
}

// battery is evaluated in order for every low-scoring metric; a check fires
// only when the metric appears in its affected list.
var battery = []check{
	{
		kind: models.CorrPerformanceImpact,
		metrics: []models.MetricKind{
			models.MetricCompleteness, models.MetricRelevance, models.MetricCoherence,
		},
		fire: func(in models.TraceInsights) (bool, float64, float64, []string) {
			latency := in.LLMUsage.AvgLatencyMs
			if in.LLMUsage.CallCount == 0 || latency <= 3000 {
				return false, 0, 0, nil
			}
			impact := latency / 10000
			if impact > 1 {
				impact = 1
			}
			evidence := []string{fmt.Sprintf("average LLM latency %.0fms across %d calls",
				latency, in.LLMUsage.CallCount)}
			return true, 0.8, impact, evidence
		},
	},
	{
		kind: models.CorrErrorRelated,
		metrics: []models.MetricKind{
			models.MetricAccuracy, models.MetricCompleteness, models.MetricSessionHandling,
		},
		fire: func(in models.TraceInsights) (bool, float64, float64, []string) {
			rate := in.Summary.ErrorRate
			if rate <= 0.10 {
				return false, 0, 0, nil
			}
			confidence := rate * 2
			if confidence > 0.9 {
				confidence = 0.9
			}
			evidence := []string{fmt.Sprintf("%d of %d spans errored (%.0f%%)",
				in.Summary.ErrorCount, in.Summary.SpanCount, rate*100)}
			return true, confidence, rate, evidence
		},
	},
	{
		kind: models.CorrTokenLimit,
		metrics: []models.MetricKind{
			models.MetricCompleteness, models.MetricAccuracy, models.MetricCoherence,
		},
		fire: func(in models.TraceInsights) (bool, float64, float64, []string) {
			for _, call := range in.LLMUsage.Calls {
				if call.TotalTokens > 8000 {
					evidence := []string{fmt.Sprintf("call %s used %d tokens (model %s)",
						call.SpanID, call.TotalTokens, call.Model)}
					return true, 0.75, 0.6, evidence
				}
			}
			return false, 0, 0, nil
		},
	},
	{
		kind: models.CorrRoutingIssue,
		metrics: []models.MetricKind{
			models.MetricRoutingAccuracy, models.MetricRelevance, models.MetricSessionHandling,
		},
		fire: func(in models.TraceInsights) (bool, float64, float64, []string) {
			if len(in.Routing.Decisions) == 0 || in.Routing.SuccessRate >= 0.80 {
				return false, 0, 0, nil
			}
			evidence := []string{fmt.Sprintf("routing succeeded for %.0f%% of %d decisions",
				in.Routing.SuccessRate*100, len(in.Routing.Decisions))}
			return true, 1 - in.Routing.SuccessRate, 0.8, evidence
		},
	},
	{
		kind: models.CorrDatabaseBottleneck,
		metrics: []models.MetricKind{
			models.MetricSessionHandling, models.MetricCoherence, models.MetricCompleteness,
		},
		fire: func(in models.TraceInsights) (bool, float64, float64, []string) {
			if in.Database.QueryCount == 0 || in.Database.AvgLatencyMs <= 500 {
				return false, 0, 0, nil
			}
			evidence := []string{fmt.Sprintf("average query latency %.0fms across %d queries",
				in.Database.AvgLatencyMs, in.Database.QueryCount)}
			return true, 0.6, 0.4, evidence
		},
	},
}

// Correlate runs the battery for every metric scoring below the low-score
// threshold, groups the fired correlations into root causes, and derives
// prioritized recommendations with an overall confidence.
func (e *Engine) Correlate(eval *models.EvaluationResult, parsed models.ParsedTrace, insights models.TraceInsights) models.CorrelationResult {
	result := models.CorrelationResult{
		TurnID:    eval.TurnID,
		TraceID:   parsed.TraceID,
		CreatedAt: time.Now().UTC(),
	}

	for _, score := range eval.Scores {
		if score.Score >= LowScoreThreshold {
			continue
		}
		for _, c := range battery {
			if !metricAffected(c.metrics, score.Metric) {
				continue
			}
			fired, confidence, impact, evidence := c.fire(insights)
			if !fired {
				continue
			}
			result.Correlations = append(result.Correlations, models.Correlation{
				Metric:      score.Metric,
				MetricScore: score.Score,
				Kind:        c.kind,
				Confidence:  confidence,
				Impact:      impact,
				Evidence:    evidence,
				Explanation: fmt.Sprintf("%s scored %.2f; %s", score.Metric, score.Score,
					causeProfiles[c.kind].Issue),
			})
		}
	}

	if len(result.Correlations) == 0 {
		return result
	}

	result.RootCauses = groupRootCauses(result.Correlations)
	result.Recommendations = flattenRecommendations(result.RootCauses)
	result.OverallConfidence = overallConfidence(result.Correlations, len(result.RootCauses))

	e.logger.Debug("correlation complete",
		slog.String("turn_id", eval.TurnID),
		slog.Int("correlations", len(result.Correlations)),
		slog.Int("root_causes", len(result.RootCauses)))
	return result
}

func metricAffected(metrics []models.MetricKind, metric models.MetricKind) bool {
	for _, m := range metrics {
		if m == metric {
			return true
		}
	}
	return false
}

// groupRootCauses folds correlations sharing a kind into one root cause
// whose severity is the mean member impact, sorted descending by severity.
func groupRootCauses(correlations []models.Correlation) []models.RootCause {
	byKind := make(map[models.CorrelationKind]*models.RootCause)
	order := make([]models.CorrelationKind, 0)
	for _, corr := range correlations {
		cause, ok := byKind[corr.Kind]
		if !ok {
			profile := causeProfiles[corr.Kind]
			cause = &models.RootCause{
				Kind:            corr.Kind,
				Issue:           profile.Issue,
				Recommendations: profile.Recommendations,
			}
			byKind[corr.Kind] = cause
			order = append(order, corr.Kind)
		}
		cause.Correlations = append(cause.Correlations, corr)
		if !metricAffected(cause.Metrics, corr.Metric) {
			cause.Metrics = append(cause.Metrics, corr.Metric)
		}
	}

	causes := make([]models.RootCause, 0, len(order))
	for _, kind := range order {
		cause := byKind[kind]
		total := 0.0
		for _, corr := range cause.Correlations {
			total += corr.Impact
		}
		cause.Severity = total / float64(len(cause.Correlations))
		causes = append(causes, *cause)
	}

	sort.SliceStable(causes, func(i, j int) bool {
		return causes[i].Severity > causes[j].Severity
	})
	return causes
}

// flattenRecommendations tags each root cause's recommendations with that
// cause's rank as priority and its mean correlation confidence.
func flattenRecommendations(causes []models.RootCause) []models.Recommendation {
	recommendations := make([]models.Recommendation, 0)
	for rank, cause := range causes {
		confidence := 0.0
		for _, corr := range cause.Correlations {
			confidence += corr.Confidence
		}
		confidence /= float64(len(cause.Correlations))
		for _, text := range cause.Recommendations {
			recommendations = append(recommendations, models.Recommendation{
				Text:       text,
				Priority:   rank + 1,
				Confidence: confidence,
			})
		}
	}
	return recommendations
}

func overallConfidence(correlations []models.Correlation, rootCauses int) float64 {
	if len(correlations) == 0 {
		return 0
	}
	mean := 0.0
	for _, corr := range correlations {
		mean += corr.Confidence
	}
	mean /= float64(len(correlations))

	bonus := 0.05 * float64(rootCauses)
	if bonus > 0.2 {
		bonus = 0.2
	}
	confidence := mean + bonus
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}
