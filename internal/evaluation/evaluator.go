package evaluation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterstack/arbiter-eval/internal/models"
)

// Evaluator scores one turn's response across the metric dimensions. The
// production evaluator delegates to an LLM judge; this package ships a
// heuristic stand-in so campaigns run without one.
type Evaluator interface {
	Evaluate(ctx context.Context, turn *models.Turn) (*models.EvaluationResult, error)
}

// HeuristicEvaluator scores responses from surface features only. It is a
// deterministic stand-in for the LLM scoring collaborator.
type HeuristicEvaluator struct{}

// NewHeuristicEvaluator constructs the stand-in evaluator.
func NewHeuristicEvaluator() *HeuristicEvaluator {
	return &HeuristicEvaluator{}
}

// Evaluate derives metric scores from response length, echo detection and
// lexical overlap with the input.
func (e *HeuristicEvaluator) Evaluate(_ context.Context, turn *models.Turn) (*models.EvaluationResult, error) {
	response := strings.TrimSpace(turn.Response)

	completeness := lengthScore(response)
	relevance := overlapScore(turn.Input, response)
	coherence := 0.8
	accuracy := 0.7
	session := 0.75
	routing := 0.8

	if response == "" {
		completeness, relevance, coherence, accuracy = 0, 0, 0, 0
	}
	if turn.Echo {
		// A verbatim echo is not an answer.
		relevance = 0.1
		accuracy = 0.2
		routing = 0.3
	}

	scores := []models.MetricScore{
		models.NewMetricScore(models.MetricAccuracy, accuracy, ""),
		models.NewMetricScore(models.MetricCompleteness, completeness, ""),
		models.NewMetricScore(models.MetricRelevance, relevance, ""),
		models.NewMetricScore(models.MetricCoherence, coherence, ""),
		models.NewMetricScore(models.MetricSessionHandling, session, ""),
		models.NewMetricScore(models.MetricRoutingAccuracy, routing, ""),
	}

	overall := 0.0
	for _, s := range scores {
		overall += s.Score
	}
	overall /= float64(len(scores))

	return &models.EvaluationResult{
		ID:        uuid.New().String(),
		TurnID:    turn.ID,
		Scores:    scores,
		Overall:   overall,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func lengthScore(response string) float64 {
	words := len(strings.Fields(response))
	switch {
	case words == 0:
		return 0
	case words < 5:
		return 0.3
	case words < 20:
		return 0.6
	default:
		return 0.9
	}
}

// overlapScore measures lexical overlap between input and response as a
// crude relevance proxy.
func overlapScore(input, response string) float64 {
	inputWords := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(input)) {
		if len(w) > 3 {
			inputWords[w] = struct{}{}
		}
	}
	if len(inputWords) == 0 {
		return 0.5
	}
	hits := 0
	for _, w := range strings.Fields(strings.ToLower(response)) {
		if _, ok := inputWords[w]; ok {
			hits++
			delete(inputWords, w)
		}
	}
	score := 0.4 + float64(hits)*0.15
	if score > 1 {
		score = 1
	}
	return score
}
