package repo

// RawTrace is the trace document shape returned by the trace store: a list
// of segments, each wrapping a JSON-encoded segment document.
type RawTrace struct {
	ID       string       `json:"id"`
	Segments []RawSegment `json:"segments"`
}

// RawSegment wraps one JSON-encoded segment document.
type RawSegment struct {
	Document string `json:"document"`
}

// SegmentDocument is a decoded trace segment. Timestamps are float epoch
// seconds. Subsegments nest recursively.
type SegmentDocument struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	StartTime   float64           `json:"start_time"`
	EndTime     float64           `json:"end_time"`
	Annotations map[string]any    `json:"annotations,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	Error       bool              `json:"error,omitempty"`
	Fault       bool              `json:"fault,omitempty"`
	Cause       string            `json:"cause,omitempty"`
	Subsegments []SegmentDocument `json:"subsegments,omitempty"`
}
