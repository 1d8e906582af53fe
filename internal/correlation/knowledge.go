package correlation

import "github.com/arbiterstack/arbiter-eval/internal/models"

// causeProfile fixes, per correlation kind, the issue statement and the
// canned mitigation list surfaced on the grouped root cause.
type causeProfile struct {
	Issue           string
	Recommendations []string
}

var causeProfiles = map[models.CorrelationKind]causeProfile{
	models.CorrPerformanceImpact: {
		Issue: "High LLM latency is degrading response quality",
		Recommendations: []string{
			"Switch to a lower-latency model for interactive turns",
			"Reduce prompt size and retrieved context per call",
			"Enable response streaming so partial answers arrive sooner",
		},
	},
	models.CorrErrorRelated: {
		Issue: "Downstream errors are corrupting responses",
		Recommendations: []string{
			"Inspect failing spans for the dominant error signature",
			"Add retries with backoff around the failing dependency",
			"Verify IAM and quota limits on downstream services",
		},
	},
	models.CorrTokenLimit: {
		Issue: "Responses are being truncated near the token limit",
		Recommendations: []string{
			"Raise the max-token budget for generation calls",
			"Summarise conversation history instead of replaying it verbatim",
			"Split long answers across multiple turns",
		},
	},
	models.CorrRoutingIssue: {
		Issue: "Requests are reaching the wrong agent",
		Recommendations: []string{
			"Review agent routing instructions and intent descriptions",
			"Add routing examples for the misrouted intents",
			"Tighten session attributes propagated between agents",
		},
	},
	models.CorrDatabaseBottleneck: {
		Issue: "Slow database access is stalling the response pipeline",
		Recommendations: []string{
			"Add an index for the hot query pattern",
			"Cache session reads for the duration of a turn",
			"Review provisioned capacity on the session table",
		},
	},
}
