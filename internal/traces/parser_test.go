package traces

import (
	"testing"

	"github.com/arbiterstack/arbiter-eval/internal/models"
	"github.com/arbiterstack/arbiter-eval/internal/repo"
)

func TestParserBuildsSpanTree(t *testing.T) {
	raw := repo.RawTrace{
		ID: "1-5f84c7a1-abcdef012345678912345678",
		Segments: []repo.RawSegment{
			{Document: `{
				"id": "root",
				"name": "orchestrator",
				"start_time": 1700000000.0,
				"end_time": 1700000004.0,
				"annotations": {"agent_id": "router-1"},
				"subsegments": [
					{
						"id": "llm",
						"name": "model call",
						"start_time": 1700000000.5,
						"end_time": 1700000003.5,
						"metadata": {"gen_ai": {"system": "anthropic"}},
						"annotations": {"gen_ai.system": "anthropic"}
					},
					{
						"id": "db",
						"name": "DynamoDB.Query",
						"start_time": 1700000003.5,
						"end_time": 1700000003.9,
						"error": true,
						"cause": "throttled"
					}
				]
			}`},
		},
	}

	parsed := NewParser(nil).Parse(raw)

	if parsed.TraceID != raw.ID {
		t.Fatalf("expected trace id preserved, got %q", parsed.TraceID)
	}
	if len(parsed.AllSpans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(parsed.AllSpans))
	}
	if parsed.Root == nil || parsed.Root.ID != "root" {
		t.Fatalf("expected root span, got %+v", parsed.Root)
	}
	if parsed.Root.Kind != models.SpanAgentRouting {
		t.Fatalf("expected routing root, got %s", parsed.Root.Kind)
	}
	if parsed.ErrorCount != 1 {
		t.Fatalf("expected 1 error span, got %d", parsed.ErrorCount)
	}

	llm := parsed.AllSpans[1]
	if llm.ParentID != "root" {
		t.Fatalf("expected parent link to root, got %q", llm.ParentID)
	}
	if llm.Kind != models.SpanLLMCall || llm.Confidence != 1.0 {
		t.Fatalf("expected llm_call at 1.0, got %s at %.2f", llm.Kind, llm.Confidence)
	}
	if llm.DurationMs != 3000 {
		t.Fatalf("expected 3000ms duration, got %.1f", llm.DurationMs)
	}

	db := parsed.AllSpans[2]
	if db.Error == nil || db.Error.Message != "throttled" {
		t.Fatalf("expected error detail on db span, got %+v", db.Error)
	}

	// Earliest start to latest end: 1700000000.0 .. 1700000004.0.
	if parsed.TotalDurationMs != 4000 {
		t.Fatalf("expected total duration 4000ms, got %.1f", parsed.TotalDurationMs)
	}
}

func TestParserFlattensMetadataNamespaces(t *testing.T) {
	raw := repo.RawTrace{
		ID: "t",
		Segments: []repo.RawSegment{
			{Document: `{
				"id": "s",
				"name": "step",
				"start_time": 1,
				"end_time": 2,
				"metadata": {"llm": {"model": "claude-3"}, "plain": "kept"},
				"annotations": {"plain": "wins"}
			}`},
		},
	}

	parsed := NewParser(nil).Parse(raw)
	attrs := parsed.AllSpans[0].Attributes
	if attrs["llm.model"] != "claude-3" {
		t.Fatalf("expected namespaced metadata key, got %v", attrs["llm.model"])
	}
	if attrs["plain"] != "wins" {
		t.Fatalf("expected annotation to win on collision, got %v", attrs["plain"])
	}
}

func TestParserSkipsMalformedSegments(t *testing.T) {
	raw := repo.RawTrace{
		ID: "t",
		Segments: []repo.RawSegment{
			{Document: `{not json`},
			{Document: ""},
			{Document: `{"id": "ok", "name": "survivor", "start_time": 1, "end_time": 2}`},
		},
	}

	parsed := NewParser(nil).Parse(raw)
	if len(parsed.AllSpans) != 1 || parsed.AllSpans[0].ID != "ok" {
		t.Fatalf("expected only the valid segment, got %d spans", len(parsed.AllSpans))
	}
}

func TestParserEmptyTrace(t *testing.T) {
	parsed := NewParser(nil).Parse(repo.RawTrace{ID: "t"})
	if !parsed.Empty() {
		t.Fatalf("expected empty parse")
	}
	if parsed.Root != nil || parsed.TotalDurationMs != 0 {
		t.Fatalf("expected zero-valued parse, got %+v", parsed)
	}
}
