package models

import "time"

// SpanKind classifies a unit of work inside a distributed trace.
type SpanKind string

const (
	SpanLLMCall        SpanKind = "llm_call"
	SpanAgentRouting   SpanKind = "agent_routing"
	SpanDatabaseQuery  SpanKind = "database_query"
	SpanToolInvocation SpanKind = "tool_invocation"
	SpanHTTPRequest    SpanKind = "http_request"
	SpanUnknown        SpanKind = "unknown"
)

// SpanError carries the failure descriptor attached to a span.
type SpanError struct {
	Message string
	Fault   bool
}

// Span is one timed segment of a trace. Spans are derived, read-only
// artifacts of a single trace fetch.
type Span struct {
	ID string
	// ParentID is empty for the root span.
	ParentID    string
	Kind        SpanKind
	Confidence  float64
	Name        string
	StartTime   time.Time
	EndTime     time.Time
	DurationMs  float64
	Attributes  map[string]any
	Error       *SpanError
	Subsegments []*Span
}

// ParsedTrace is the flattened, classified view of one raw trace document.
type ParsedTrace struct {
	TraceID         string
	Root            *Span
	AllSpans        []*Span
	TotalDurationMs float64
	ErrorCount      int
}

// Empty reports whether the parse produced no usable spans.
func (p ParsedTrace) Empty() bool {
	return len(p.AllSpans) == 0
}

// LLMCallSignal is a flattened view over an llm_call span.
type LLMCallSignal struct {
	SpanID       string
	Model        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	LatencyMs    float64
}

// RoutingSignal is a flattened view over an agent_routing span.
type RoutingSignal struct {
	SpanID    string
	AgentType string
	Success   bool
	LatencyMs float64
}

// DBQuerySignal is a flattened view over a database_query span.
type DBQuerySignal struct {
	SpanID    string
	Operation string
	Table     string
	LatencyMs float64
}

// TraceSummary aggregates whole-trace figures.
type TraceSummary struct {
	TraceID         string
	SpanCount       int
	TotalDurationMs float64
	ErrorCount      int
	ErrorRate       float64
}

// LLMUsage aggregates llm_call signals.
type LLMUsage struct {
	Calls        []LLMCallSignal
	CallCount    int
	TotalTokens  int
	AvgLatencyMs float64
	Models       []string
}

// RoutingBehavior aggregates agent_routing signals.
type RoutingBehavior struct {
	Decisions    []RoutingSignal
	SuccessRate  float64
	AvgLatencyMs float64
}

// DatabaseActivity aggregates database_query signals.
type DatabaseActivity struct {
	Queries      []DBQuerySignal
	QueryCount   int
	AvgLatencyMs float64
}

// QualityMetrics describes how trustworthy the classification pass was.
type QualityMetrics struct {
	// HighConfidenceShare is the fraction of spans classified with
	// confidence >= 0.9.
	HighConfidenceShare float64
}

// TraceInsights is the reduced signal view consumed by the correlation
// engine.
type TraceInsights struct {
	Summary  TraceSummary
	LLMUsage LLMUsage
	Routing  RoutingBehavior
	Database DatabaseActivity
	Timeline []*Span
	Quality  QualityMetrics
}
