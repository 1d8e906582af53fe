package agents

import (
	"context"
	"fmt"
)

// Agent type names as recorded on turns and events.
const (
	TypePersona = "persona"
	TypeRedTeam = "red_team"
)

// TurnContext carries what an agent may look at when producing the next
// input.
type TurnContext struct {
	// Sequence is the 1-indexed turn number.
	Sequence     int
	LastResponse string
}

// InputAgent produces turn inputs and optionally adapts to evaluation
// feedback. Both variants are stateful for the lifetime of one campaign and
// are never shared across campaigns.
type InputAgent interface {
	Type() string
	GenerateInput(ctx context.Context, turn TurnContext) (string, error)
	ReceiveFeedback(score float64)
}

// PersonaAgent works through a persona's goal list, tracking goal progress
// and frustration from evaluation feedback.
type PersonaAgent struct {
	persona     Persona
	goalIndex   int
	progress    float64
	frustration float64
}

// NewPersonaAgent constructs an agent for the given persona.
func NewPersonaAgent(persona Persona) *PersonaAgent {
	return &PersonaAgent{persona: persona}
}

func (a *PersonaAgent) Type() string { return TypePersona }

// GenerateInput phrases the current goal, coloured by accumulated
// frustration.
func (a *PersonaAgent) GenerateInput(_ context.Context, turn TurnContext) (string, error) {
	if len(a.persona.Goals) == 0 {
		return "", fmt.Errorf("persona %s has no goals", a.persona.ID)
	}
	goal := a.persona.Goals[a.goalIndex%len(a.persona.Goals)]
	switch {
	case a.frustration >= 0.6:
		return fmt.Sprintf("This is taking too long. I still need to %s. Can you just answer directly?", goal), nil
	case turn.Sequence == 1 || turn.LastResponse == "":
		return fmt.Sprintf("Hi, I need to %s.", goal), nil
	default:
		return fmt.Sprintf("Thanks. Following up on that, I need to %s.", goal), nil
	}
}

// ReceiveFeedback moves goal progress up on good scores and frustration up
// on poor ones.
func (a *PersonaAgent) ReceiveFeedback(score float64) {
	if score >= 0.7 {
		a.progress += 1.0 / float64(maxInt(len(a.persona.Goals), 1))
		if a.progress > 1 {
			a.progress = 1
		}
		a.goalIndex++
		if a.frustration > 0 {
			a.frustration -= 0.05
		}
		return
	}
	a.frustration += 0.15
	if a.frustration > 1 {
		a.frustration = 1
	}
}

// GoalProgress reports the fraction of goals satisfied so far, in [0,1].
func (a *PersonaAgent) GoalProgress() float64 { return a.progress }

// Frustration reports the accumulated frustration level, in [0,1].
func (a *PersonaAgent) Frustration() float64 { return a.frustration }

// RedTeamAgent walks an attack plan's prompt ladder, escalating while the
// target keeps handling the current rung well.
type RedTeamAgent struct {
	plan  AttackPlan
	level int
}

// NewRedTeamAgent constructs an agent for the given attack plan.
func NewRedTeamAgent(plan AttackPlan) *RedTeamAgent {
	return &RedTeamAgent{plan: plan}
}

func (a *RedTeamAgent) Type() string { return TypeRedTeam }

// GenerateInput returns the prompt for the current escalation level.
func (a *RedTeamAgent) GenerateInput(_ context.Context, _ TurnContext) (string, error) {
	if len(a.plan.Prompts) == 0 {
		return "", fmt.Errorf("attack plan %s has no prompts", a.plan.ID)
	}
	idx := a.level
	if idx >= len(a.plan.Prompts) {
		idx = len(a.plan.Prompts) - 1
	}
	return a.plan.Prompts[idx], nil
}

// ReceiveFeedback escalates when the target handled the probe well.
func (a *RedTeamAgent) ReceiveFeedback(score float64) {
	if score >= 0.6 && a.level < len(a.plan.Prompts)-1 {
		a.level++
	}
}

// EscalationLevel reports how far up the prompt ladder the agent is, in
// [0,1].
func (a *RedTeamAgent) EscalationLevel() float64 {
	if len(a.plan.Prompts) <= 1 {
		return 0
	}
	return float64(a.level) / float64(len(a.plan.Prompts)-1)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
