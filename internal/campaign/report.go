package campaign

import (
	"context"
	"sort"
	"time"

	"github.com/arbiterstack/arbiter-eval/internal/models"
	"github.com/arbiterstack/arbiter-eval/internal/utils"
)

// Report aggregates a campaign's persisted turns into a single summary:
// per-metric averages, cross-turn root causes, deduplicated
// recommendations, and turn latency.
func (e *Engine) Report(ctx context.Context, campaignID string) (*models.CampaignReport, error) {
	campaign, err := e.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	turns, err := e.Results(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	report := &models.CampaignReport{
		CampaignID:     campaign.ID,
		Kind:           campaign.Kind,
		Status:         campaign.Status,
		Stats:          campaign.Stats,
		StopReason:     campaign.StopReason,
		MetricAverages: metricAverages(turns),
		GeneratedAt:    time.Now().UTC(),
	}
	report.RootCauses = summarizeRootCauses(turns)
	report.Recommendations = dedupRecommendations(turns)
	report.TurnLatencyP95 = latencyP95(turns)
	return report, nil
}

func metricAverages(turns []models.Turn) map[models.MetricKind]float64 {
	sums := make(map[models.MetricKind]float64)
	counts := make(map[models.MetricKind]int)
	for _, turn := range turns {
		if turn.Evaluation == nil || turn.Status == models.TurnFailed {
			continue
		}
		for _, score := range turn.Evaluation.Scores {
			sums[score.Metric] += score.Score
			counts[score.Metric]++
		}
	}
	averages := make(map[models.MetricKind]float64, len(sums))
	for metric, sum := range sums {
		averages[metric] = sum / float64(counts[metric])
	}
	return averages
}

// summarizeRootCauses folds per-turn root causes into one entry per kind,
// ordered by occurrence count (ties broken by max severity), so the most
// persistent problems surface first.
func summarizeRootCauses(turns []models.Turn) []models.RootCauseSummary {
	byKind := make(map[models.CorrelationKind]*models.RootCauseSummary)
	severitySums := make(map[models.CorrelationKind]float64)
	var order []models.CorrelationKind

	for _, turn := range turns {
		if turn.Correlation == nil {
			continue
		}
		for _, cause := range turn.Correlation.RootCauses {
			summary, ok := byKind[cause.Kind]
			if !ok {
				summary = &models.RootCauseSummary{Kind: cause.Kind, Issue: cause.Issue}
				byKind[cause.Kind] = summary
				order = append(order, cause.Kind)
			}
			summary.Occurrences++
			severitySums[cause.Kind] += cause.Severity
			if cause.Severity > summary.MaxSeverity {
				summary.MaxSeverity = cause.Severity
			}
		}
	}

	summaries := make([]models.RootCauseSummary, 0, len(order))
	for _, kind := range order {
		summary := byKind[kind]
		summary.MeanSeverity = severitySums[kind] / float64(summary.Occurrences)
		summaries = append(summaries, *summary)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Occurrences != summaries[j].Occurrences {
			return summaries[i].Occurrences > summaries[j].Occurrences
		}
		return summaries[i].MaxSeverity > summaries[j].MaxSeverity
	})
	return summaries
}

// dedupRecommendations collects recommendations across turns in sequence
// order, keeping the first occurrence of each text. Per-turn lists are
// already priority ordered, so the first occurrence carries the highest
// priority that recommendation was ever assigned.
func dedupRecommendations(turns []models.Turn) []models.Recommendation {
	seen := make(map[string]struct{})
	var recommendations []models.Recommendation
	for _, turn := range turns {
		if turn.Correlation == nil {
			continue
		}
		for _, rec := range turn.Correlation.Recommendations {
			if _, dup := seen[rec.Text]; dup {
				continue
			}
			seen[rec.Text] = struct{}{}
			recommendations = append(recommendations, rec)
		}
	}
	return recommendations
}

func latencyP95(turns []models.Turn) time.Duration {
	tracker := utils.NewLatencyTracker(len(turns))
	for _, turn := range turns {
		if turn.CompletedAt.IsZero() || turn.StartedAt.IsZero() {
			continue
		}
		tracker.Observe(turn.CompletedAt.Sub(turn.StartedAt))
	}
	if tracker.Count() == 0 {
		return 0
	}
	return tracker.Percentile(95)
}
