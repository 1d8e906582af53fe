package traces

import (
	"strings"

	"github.com/arbiterstack/arbiter-eval/internal/models"
)

// Classification tier confidences. The cascade is evaluated top-down and
// the first matching tier wins; a later tier must never override an
// earlier match on the same span.
const (
	confSemanticConvention = 1.0
	confPlatformIdentity   = 0.95
	confAgentTypeKnown     = 0.90
	confAgentTypeUnknown   = 0.85
	confCampaignMarker     = 0.85
	confNameHeuristic      = 0.70
	confUnknown            = 0.30
)

var genAIOperations = map[string]struct{}{
	"chat":       {},
	"completion": {},
	"embedding":  {},
}

var llmSystems = map[string]struct{}{
	"openai":       {},
	"anthropic":    {},
	"aws.bedrock":  {},
	"bedrock":      {},
	"azure_openai": {},
	"cohere":       {},
	"mistral_ai":   {},
}

var knownAgentTypes = map[string]struct{}{
	"persona":  {},
	"red_team": {},
	"combined": {},
}

// nameKeywords maps span kinds to case-insensitive name substrings,
// checked in this category order.
var nameKeywordOrder = []models.SpanKind{
	models.SpanLLMCall,
	models.SpanAgentRouting,
	models.SpanDatabaseQuery,
	models.SpanToolInvocation,
	models.SpanHTTPRequest,
}

var nameKeywords = map[models.SpanKind][]string{
	models.SpanLLMCall:        {"bedrock", "anthropic", "openai", "claude", "gpt", "llm", "model"},
	models.SpanAgentRouting:   {"agent", "routing", "orchestrat", "supervisor"},
	models.SpanDatabaseQuery:  {"dynamodb", "database", "query", "sql", "table"},
	models.SpanToolInvocation: {"tool", "lambda", "function"},
	models.SpanHTTPRequest:    {"http", "request", "api"},
}

// Classify assigns a span kind and classification confidence from the span
// name and its flattened attribute map.
func Classify(name string, attrs map[string]any) (models.SpanKind, float64) {
	// Tier 1: GenAI semantic conventions.
	if op, ok := stringAttr(attrs, "gen_ai.operation.name"); ok {
		if _, known := genAIOperations[strings.ToLower(op)]; known {
			return models.SpanLLMCall, confSemanticConvention
		}
	}
	if system, ok := stringAttr(attrs, "gen_ai.system"); ok {
		if _, known := llmSystems[strings.ToLower(system)]; known {
			return models.SpanLLMCall, confSemanticConvention
		}
	}

	// Tier 2: platform agent/session identity.
	if hasAttr(attrs, "agent_id") || hasAttr(attrs, "session_id") {
		return models.SpanAgentRouting, confPlatformIdentity
	}

	// Tier 3: application agent type.
	if agentType, ok := stringAttr(attrs, "agent_type"); ok {
		if _, known := knownAgentTypes[strings.ToLower(agentType)]; known {
			return models.SpanAgentRouting, confAgentTypeKnown
		}
		return models.SpanAgentRouting, confAgentTypeUnknown
	}

	// Tier 4: campaign marker alone.
	if hasAttr(attrs, "campaign_id") {
		return models.SpanAgentRouting, confCampaignMarker
	}

	// Tier 5: name substring heuristics.
	lower := strings.ToLower(name)
	for _, kind := range nameKeywordOrder {
		for _, keyword := range nameKeywords[kind] {
			if strings.Contains(lower, keyword) {
				return kind, confNameHeuristic
			}
		}
	}

	return models.SpanUnknown, confUnknown
}

func hasAttr(attrs map[string]any, key string) bool {
	_, ok := attrs[key]
	return ok
}

func stringAttr(attrs map[string]any, key string) (string, bool) {
	v, ok := attrs[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
