package traces

import (
	"testing"
	"time"

	"github.com/arbiterstack/arbiter-eval/internal/models"
)

func span(id string, kind models.SpanKind, durationMs float64, attrs map[string]any) *models.Span {
	start := time.Unix(1700000000, 0)
	return &models.Span{
		ID:         id,
		Kind:       kind,
		Confidence: 1.0,
		StartTime:  start,
		EndTime:    start.Add(time.Duration(durationMs) * time.Millisecond),
		DurationMs: durationMs,
		Attributes: attrs,
	}
}

func TestExtractAggregatesSignals(t *testing.T) {
	spans := []*models.Span{
		span("llm1", models.SpanLLMCall, 2000, map[string]any{
			"gen_ai.request.model":       "claude-3",
			"gen_ai.usage.input_tokens":  float64(1200),
			"gen_ai.usage.output_tokens": float64(300),
		}),
		span("llm2", models.SpanLLMCall, 4000, map[string]any{
			"llm.model":        "claude-3",
			"llm.total_tokens": float64(5000),
		}),
		span("route", models.SpanAgentRouting, 50, map[string]any{
			"agent_type": "persona",
		}),
		span("db", models.SpanDatabaseQuery, 600, map[string]any{
			"db.operation": "Query",
			"db.sql.table": "sessions",
		}),
	}
	parsed := models.ParsedTrace{TraceID: "t", AllSpans: spans, TotalDurationMs: 6650}

	insights := NewInsightExtractor().Extract(parsed)

	if insights.Summary.SpanCount != 4 || insights.Summary.ErrorRate != 0 {
		t.Fatalf("unexpected summary %+v", insights.Summary)
	}
	if insights.LLMUsage.CallCount != 2 {
		t.Fatalf("expected 2 llm calls, got %d", insights.LLMUsage.CallCount)
	}
	if insights.LLMUsage.AvgLatencyMs != 3000 {
		t.Fatalf("expected avg latency 3000ms, got %.1f", insights.LLMUsage.AvgLatencyMs)
	}
	// 1200+300 from the first call, the total_tokens fallback from the second.
	if insights.LLMUsage.TotalTokens != 6500 {
		t.Fatalf("expected 6500 total tokens, got %d", insights.LLMUsage.TotalTokens)
	}
	if len(insights.LLMUsage.Models) != 1 || insights.LLMUsage.Models[0] != "claude-3" {
		t.Fatalf("expected deduplicated model list, got %v", insights.LLMUsage.Models)
	}
	if insights.Routing.SuccessRate != 1.0 {
		t.Fatalf("expected routing success rate 1.0, got %.2f", insights.Routing.SuccessRate)
	}
	if insights.Database.QueryCount != 1 || insights.Database.AvgLatencyMs != 600 {
		t.Fatalf("unexpected database activity %+v", insights.Database)
	}
	if insights.Database.Queries[0].Table != "sessions" {
		t.Fatalf("expected table name, got %q", insights.Database.Queries[0].Table)
	}
	if insights.Quality.HighConfidenceShare != 1.0 {
		t.Fatalf("expected high-confidence share 1.0, got %.2f", insights.Quality.HighConfidenceShare)
	}
}

func TestExtractSemanticKeysWinOverLegacy(t *testing.T) {
	s := span("llm", models.SpanLLMCall, 100, map[string]any{
		"gen_ai.request.model":      "claude-3",
		"llm.model":                 "legacy-name",
		"gen_ai.usage.input_tokens": float64(10),
		"llm.input_tokens":          float64(999),
	})
	parsed := models.ParsedTrace{TraceID: "t", AllSpans: []*models.Span{s}}

	insights := NewInsightExtractor().Extract(parsed)
	call := insights.LLMUsage.Calls[0]
	if call.Model != "claude-3" {
		t.Fatalf("expected semantic model key to win, got %q", call.Model)
	}
	if call.InputTokens != 10 {
		t.Fatalf("expected semantic token key to win, got %d", call.InputTokens)
	}
}

func TestExtractRoutingFailures(t *testing.T) {
	failed := span("r1", models.SpanAgentRouting, 40, map[string]any{})
	failed.Error = &models.SpanError{Message: "no route"}
	overridden := span("r2", models.SpanAgentRouting, 40, map[string]any{"routing_success": false})
	healthy := span("r3", models.SpanAgentRouting, 40, map[string]any{})
	parsed := models.ParsedTrace{
		TraceID:    "t",
		AllSpans:   []*models.Span{failed, overridden, healthy},
		ErrorCount: 1,
	}

	insights := NewInsightExtractor().Extract(parsed)
	if got := insights.Routing.SuccessRate; got < 0.33 || got > 0.34 {
		t.Fatalf("expected success rate ~0.33, got %.3f", got)
	}
	if got := insights.Summary.ErrorRate; got < 0.33 || got > 0.34 {
		t.Fatalf("expected error rate ~0.33, got %.3f", got)
	}
}

func TestExtractTimelineOrdering(t *testing.T) {
	late := span("late", models.SpanUnknown, 10, nil)
	late.StartTime = late.StartTime.Add(5 * time.Second)
	early := span("early", models.SpanUnknown, 10, nil)
	parsed := models.ParsedTrace{TraceID: "t", AllSpans: []*models.Span{late, early}}

	insights := NewInsightExtractor().Extract(parsed)
	if insights.Timeline[0].ID != "early" || insights.Timeline[1].ID != "late" {
		t.Fatalf("expected timeline sorted by start time")
	}
}

func TestExtractEmptyTrace(t *testing.T) {
	insights := NewInsightExtractor().Extract(models.ParsedTrace{TraceID: "t"})
	if insights.LLMUsage.CallCount != 0 || insights.Summary.ErrorRate != 0 {
		t.Fatalf("expected zeroed insights, got %+v", insights)
	}
}
