package traces

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/arbiterstack/arbiter-eval/internal/models"
	"github.com/arbiterstack/arbiter-eval/internal/repo"
	"github.com/arbiterstack/arbiter-eval/internal/utils"
)

// Parser converts raw trace documents into classified span trees. Absent or
// malformed input parses to an empty ParsedTrace rather than an error:
// callers must treat missing trace data as uninformative, not as a fault.
type Parser struct {
	logger *slog.Logger
}

// NewParser constructs a Parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Parse flattens the segment tree into classified spans, preserving parent
// links and subsegment nesting on the returned structs.
func (p *Parser) Parse(raw repo.RawTrace) models.ParsedTrace {
	parsed := models.ParsedTrace{TraceID: raw.ID}
	if len(raw.Segments) == 0 {
		return parsed
	}

	for _, segment := range raw.Segments {
		if segment.Document == "" {
			continue
		}
		var doc repo.SegmentDocument
		if err := json.Unmarshal([]byte(segment.Document), &doc); err != nil {
			p.logger.Debug("skipping malformed segment document",
				slog.String("trace_id", raw.ID), slog.Any("error", err))
			continue
		}
		span := p.buildSpan(doc, "")
		p.flatten(span, &parsed)
	}

	if len(parsed.AllSpans) == 0 {
		return models.ParsedTrace{TraceID: raw.ID}
	}

	for _, span := range parsed.AllSpans {
		if span.ParentID == "" {
			parsed.Root = span
			break
		}
	}
	if parsed.Root == nil {
		parsed.Root = parsed.AllSpans[0]
	}

	parsed.TotalDurationMs = totalDuration(parsed.AllSpans)
	return parsed
}

func (p *Parser) buildSpan(doc repo.SegmentDocument, parentID string) *models.Span {
	attrs := flattenAttributes(doc.Annotations, doc.Metadata)
	kind, confidence := Classify(doc.Name, attrs)

	span := &models.Span{
		ID:         doc.ID,
		ParentID:   parentID,
		Kind:       kind,
		Confidence: confidence,
		Name:       doc.Name,
		StartTime:  utils.EpochSecondsToTime(doc.StartTime),
		EndTime:    utils.EpochSecondsToTime(doc.EndTime),
		DurationMs: utils.DurationMs(doc.StartTime, doc.EndTime),
		Attributes: attrs,
	}
	if doc.Error || doc.Fault {
		span.Error = &models.SpanError{Message: doc.Cause, Fault: doc.Fault}
	}

	for _, sub := range doc.Subsegments {
		span.Subsegments = append(span.Subsegments, p.buildSpan(sub, span.ID))
	}
	return span
}

// flatten appends the span and its descendants depth-first, counting errors.
func (p *Parser) flatten(span *models.Span, parsed *models.ParsedTrace) {
	parsed.AllSpans = append(parsed.AllSpans, span)
	if span.Error != nil {
		parsed.ErrorCount++
	}
	for _, sub := range span.Subsegments {
		p.flatten(sub, parsed)
	}
}

// flattenAttributes merges annotations and metadata into one flat map.
// Metadata namespaces (nested maps) are flattened one level with a dotted
// prefix; annotation keys win on collision.
func flattenAttributes(annotations, metadata map[string]any) map[string]any {
	attrs := make(map[string]any, len(annotations)+len(metadata))
	for key, value := range metadata {
		if nested, ok := value.(map[string]any); ok {
			for nestedKey, nestedValue := range nested {
				attrs[fmt.Sprintf("%s.%s", key, nestedKey)] = nestedValue
			}
			continue
		}
		attrs[key] = value
	}
	for key, value := range annotations {
		attrs[key] = value
	}
	return attrs
}

// totalDuration spans the earliest start to the latest end across the whole
// trace, in milliseconds.
func totalDuration(spans []*models.Span) float64 {
	if len(spans) == 0 {
		return 0
	}
	earliest := spans[0].StartTime
	latest := spans[0].EndTime
	for _, span := range spans[1:] {
		if !span.StartTime.IsZero() && span.StartTime.Before(earliest) {
			earliest = span.StartTime
		}
		if span.EndTime.After(latest) {
			latest = span.EndTime
		}
	}
	if latest.Before(earliest) {
		return 0
	}
	return float64(latest.Sub(earliest)) / float64(1e6)
}
