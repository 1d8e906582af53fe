package traces

import (
	"sort"

	"github.com/arbiterstack/arbiter-eval/internal/models"
)

// InsightExtractor reduces a parsed trace into the aggregate signals the
// correlation engine consumes.
type InsightExtractor struct{}

// NewInsightExtractor constructs an InsightExtractor.
func NewInsightExtractor() *InsightExtractor {
	return &InsightExtractor{}
}

// Extract pulls typed signals per span kind and computes the aggregates.
// Semantic-convention attribute keys take precedence over legacy keys when
// both are present.
func (e *InsightExtractor) Extract(parsed models.ParsedTrace) models.TraceInsights {
	insights := models.TraceInsights{
		Summary: models.TraceSummary{
			TraceID:         parsed.TraceID,
			SpanCount:       len(parsed.AllSpans),
			TotalDurationMs: parsed.TotalDurationMs,
			ErrorCount:      parsed.ErrorCount,
		},
	}
	if parsed.Empty() {
		return insights
	}
	insights.Summary.ErrorRate = float64(parsed.ErrorCount) / float64(len(parsed.AllSpans))

	highConfidence := 0
	for _, span := range parsed.AllSpans {
		if span.Confidence >= 0.9 {
			highConfidence++
		}
		switch span.Kind {
		case models.SpanLLMCall:
			insights.LLMUsage.Calls = append(insights.LLMUsage.Calls, llmSignal(span))
		case models.SpanAgentRouting:
			insights.Routing.Decisions = append(insights.Routing.Decisions, routingSignal(span))
		case models.SpanDatabaseQuery:
			insights.Database.Queries = append(insights.Database.Queries, dbSignal(span))
		}
	}
	insights.Quality.HighConfidenceShare = float64(highConfidence) / float64(len(parsed.AllSpans))

	aggregateLLM(&insights.LLMUsage)
	aggregateRouting(&insights.Routing)
	aggregateDatabase(&insights.Database)

	insights.Timeline = append([]*models.Span(nil), parsed.AllSpans...)
	sort.SliceStable(insights.Timeline, func(i, j int) bool {
		return insights.Timeline[i].StartTime.Before(insights.Timeline[j].StartTime)
	})

	return insights
}

func llmSignal(span *models.Span) models.LLMCallSignal {
	signal := models.LLMCallSignal{
		SpanID:       span.ID,
		Model:        attrString(span.Attributes, "gen_ai.request.model", "llm.model"),
		InputTokens:  attrInt(span.Attributes, "gen_ai.usage.input_tokens", "llm.input_tokens"),
		OutputTokens: attrInt(span.Attributes, "gen_ai.usage.output_tokens", "llm.output_tokens"),
		LatencyMs:    span.DurationMs,
	}
	signal.TotalTokens = signal.InputTokens + signal.OutputTokens
	if signal.TotalTokens == 0 {
		signal.TotalTokens = attrInt(span.Attributes, "gen_ai.usage.total_tokens", "llm.total_tokens")
	}
	return signal
}

func routingSignal(span *models.Span) models.RoutingSignal {
	success := span.Error == nil
	if v, ok := span.Attributes["routing_success"].(bool); ok {
		success = v
	}
	return models.RoutingSignal{
		SpanID:    span.ID,
		AgentType: attrString(span.Attributes, "agent_type"),
		Success:   success,
		LatencyMs: span.DurationMs,
	}
}

func dbSignal(span *models.Span) models.DBQuerySignal {
	return models.DBQuerySignal{
		SpanID:    span.ID,
		Operation: attrString(span.Attributes, "db.operation", "operation"),
		Table:     attrString(span.Attributes, "db.sql.table", "table_name"),
		LatencyMs: span.DurationMs,
	}
}

func aggregateLLM(usage *models.LLMUsage) {
	usage.CallCount = len(usage.Calls)
	if usage.CallCount == 0 {
		return
	}
	totalLatency := 0.0
	seen := make(map[string]struct{})
	for _, call := range usage.Calls {
		usage.TotalTokens += call.TotalTokens
		totalLatency += call.LatencyMs
		if call.Model == "" {
			continue
		}
		if _, ok := seen[call.Model]; !ok {
			seen[call.Model] = struct{}{}
			usage.Models = append(usage.Models, call.Model)
		}
	}
	usage.AvgLatencyMs = totalLatency / float64(usage.CallCount)
}

func aggregateRouting(routing *models.RoutingBehavior) {
	if len(routing.Decisions) == 0 {
		return
	}
	successes := 0
	totalLatency := 0.0
	for _, decision := range routing.Decisions {
		if decision.Success {
			successes++
		}
		totalLatency += decision.LatencyMs
	}
	routing.SuccessRate = float64(successes) / float64(len(routing.Decisions))
	routing.AvgLatencyMs = totalLatency / float64(len(routing.Decisions))
}

func aggregateDatabase(db *models.DatabaseActivity) {
	db.QueryCount = len(db.Queries)
	if db.QueryCount == 0 {
		return
	}
	totalLatency := 0.0
	for _, query := range db.Queries {
		totalLatency += query.LatencyMs
	}
	db.AvgLatencyMs = totalLatency / float64(db.QueryCount)
}

func attrString(attrs map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := attrs[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func attrInt(attrs map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := attrs[key].(type) {
		case float64:
			return int(v)
		case int:
			return v
		case int64:
			return int(v)
		}
	}
	return 0
}
