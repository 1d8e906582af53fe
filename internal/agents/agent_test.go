package agents

import (
	"context"
	"strings"
	"testing"
)

func TestPersonaAgentAdvancesGoalsOnGoodFeedback(t *testing.T) {
	agent := NewPersonaAgent(Persona{
		ID:    "p1",
		Goals: []string{"check my order status", "change my delivery address"},
	})

	first, err := agent.GenerateInput(context.Background(), TurnContext{Sequence: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(first, "check my order status") {
		t.Fatalf("expected first goal in input, got %q", first)
	}

	agent.ReceiveFeedback(0.8)
	if agent.GoalProgress() != 0.5 {
		t.Fatalf("expected progress 0.5 after one satisfied goal, got %f", agent.GoalProgress())
	}

	second, err := agent.GenerateInput(context.Background(), TurnContext{Sequence: 2, LastResponse: "done"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(second, "change my delivery address") {
		t.Fatalf("expected second goal in input, got %q", second)
	}

	agent.ReceiveFeedback(0.9)
	if agent.GoalProgress() != 1.0 {
		t.Fatalf("expected full progress, got %f", agent.GoalProgress())
	}
}

func TestPersonaAgentFrustrationBuildsOnPoorFeedback(t *testing.T) {
	agent := NewPersonaAgent(Persona{ID: "p1", Goals: []string{"get a refund"}})

	for i := 0; i < 4; i++ {
		agent.ReceiveFeedback(0.2)
	}
	if agent.Frustration() < 0.6 {
		t.Fatalf("expected frustration above 0.6, got %f", agent.Frustration())
	}
	if agent.GoalProgress() != 0 {
		t.Fatalf("expected no progress, got %f", agent.GoalProgress())
	}

	input, err := agent.GenerateInput(context.Background(), TurnContext{Sequence: 5, LastResponse: "sorry"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(input, "taking too long") {
		t.Fatalf("expected frustrated phrasing, got %q", input)
	}
}

func TestPersonaAgentWithoutGoals(t *testing.T) {
	agent := NewPersonaAgent(Persona{ID: "p1"})
	if _, err := agent.GenerateInput(context.Background(), TurnContext{Sequence: 1}); err == nil {
		t.Fatalf("expected error for persona without goals")
	}
}

func TestRedTeamAgentEscalates(t *testing.T) {
	agent := NewRedTeamAgent(AttackPlan{
		ID:      "a1",
		Prompts: []string{"probe one", "probe two", "probe three"},
	})

	input, _ := agent.GenerateInput(context.Background(), TurnContext{Sequence: 1})
	if input != "probe one" {
		t.Fatalf("expected the first rung, got %q", input)
	}
	if agent.EscalationLevel() != 0 {
		t.Fatalf("expected level 0, got %f", agent.EscalationLevel())
	}

	// Good handling escalates, poor handling holds the rung.
	agent.ReceiveFeedback(0.9)
	agent.ReceiveFeedback(0.3)
	input, _ = agent.GenerateInput(context.Background(), TurnContext{Sequence: 3})
	if input != "probe two" {
		t.Fatalf("expected the second rung, got %q", input)
	}
	if agent.EscalationLevel() != 0.5 {
		t.Fatalf("expected level 0.5, got %f", agent.EscalationLevel())
	}

	// The ladder tops out at the last prompt.
	agent.ReceiveFeedback(0.9)
	agent.ReceiveFeedback(0.9)
	input, _ = agent.GenerateInput(context.Background(), TurnContext{Sequence: 5})
	if input != "probe three" {
		t.Fatalf("expected the last rung, got %q", input)
	}
	if agent.EscalationLevel() != 1.0 {
		t.Fatalf("expected level 1.0, got %f", agent.EscalationLevel())
	}
}

func TestRedTeamAgentSinglePrompt(t *testing.T) {
	agent := NewRedTeamAgent(AttackPlan{ID: "a1", Prompts: []string{"only probe"}})
	agent.ReceiveFeedback(0.9)
	if agent.EscalationLevel() != 0 {
		t.Fatalf("expected zero escalation for a single-rung plan, got %f", agent.EscalationLevel())
	}
}
