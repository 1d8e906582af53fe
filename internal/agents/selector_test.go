package agents

import (
	"testing"

	"github.com/arbiterstack/arbiter-eval/internal/models"
)

func TestSelectorRoundRobin(t *testing.T) {
	persona := NewPersonaAgent(Persona{ID: "p"})
	redTeam := NewRedTeamAgent(AttackPlan{ID: "a"})
	s := NewSelector(models.CampaignConfig{Selection: models.SelectRoundRobin}, 1)

	want := []string{TypePersona, TypeRedTeam, TypePersona, TypeRedTeam}
	for turn := 1; turn <= len(want); turn++ {
		if got := s.Pick(turn, persona, redTeam).Type(); got != want[turn-1] {
			t.Fatalf("turn %d: expected %s, got %s", turn, want[turn-1], got)
		}
	}
}

func TestSelectorSwitchAfter(t *testing.T) {
	persona := NewPersonaAgent(Persona{ID: "p"})
	redTeam := NewRedTeamAgent(AttackPlan{ID: "a"})
	s := NewSelector(models.CampaignConfig{
		Selection:   models.SelectSwitchAfter,
		SwitchEvery: 2,
	}, 1)

	want := []string{TypePersona, TypePersona, TypeRedTeam, TypeRedTeam, TypePersona, TypePersona}
	for turn := 1; turn <= len(want); turn++ {
		if got := s.Pick(turn, persona, redTeam).Type(); got != want[turn-1] {
			t.Fatalf("turn %d: expected %s, got %s", turn, want[turn-1], got)
		}
	}
}

func TestSelectorWeightedRandomExtremes(t *testing.T) {
	persona := NewPersonaAgent(Persona{ID: "p"})
	redTeam := NewRedTeamAgent(AttackPlan{ID: "a"})

	zero := 0.0
	s := NewSelector(models.CampaignConfig{
		Selection:     models.SelectWeightedRandom,
		RedTeamWeight: &zero,
	}, 7)
	for turn := 1; turn <= 20; turn++ {
		if got := s.Pick(turn, persona, redTeam).Type(); got != TypePersona {
			t.Fatalf("weight 0: expected persona every turn, got %s", got)
		}
	}

	one := 1.0
	s = NewSelector(models.CampaignConfig{
		Selection:     models.SelectWeightedRandom,
		RedTeamWeight: &one,
	}, 7)
	for turn := 1; turn <= 20; turn++ {
		if got := s.Pick(turn, persona, redTeam).Type(); got != TypeRedTeam {
			t.Fatalf("weight 1: expected red team every turn, got %s", got)
		}
	}
}

func TestSelectorWeightedRandomDefaultPicksBoth(t *testing.T) {
	persona := NewPersonaAgent(Persona{ID: "p"})
	redTeam := NewRedTeamAgent(AttackPlan{ID: "a"})
	s := NewSelector(models.CampaignConfig{Selection: models.SelectWeightedRandom}, 42)

	counts := map[string]int{}
	for turn := 1; turn <= 200; turn++ {
		counts[s.Pick(turn, persona, redTeam).Type()]++
	}
	if counts[TypePersona] == 0 || counts[TypeRedTeam] == 0 {
		t.Fatalf("expected the default weight to pick both agents, got %v", counts)
	}
}

func TestSelectorTurnBelowOne(t *testing.T) {
	persona := NewPersonaAgent(Persona{ID: "p"})
	redTeam := NewRedTeamAgent(AttackPlan{ID: "a"})
	s := NewSelector(models.CampaignConfig{Selection: models.SelectRoundRobin}, 1)

	if got := s.Pick(0, persona, redTeam).Type(); got != TypePersona {
		t.Fatalf("expected turn 0 to behave like turn 1, got %s", got)
	}
	if got := s.Pick(-3, persona, redTeam).Type(); got != TypePersona {
		t.Fatalf("expected negative turns to behave like turn 1, got %s", got)
	}
}

func TestSelectorClampsWeight(t *testing.T) {
	persona := NewPersonaAgent(Persona{ID: "p"})
	redTeam := NewRedTeamAgent(AttackPlan{ID: "a"})

	over := 3.5
	s := NewSelector(models.CampaignConfig{
		Selection:     models.SelectWeightedRandom,
		RedTeamWeight: &over,
	}, 7)
	for turn := 1; turn <= 10; turn++ {
		if got := s.Pick(turn, persona, redTeam).Type(); got != TypeRedTeam {
			t.Fatalf("clamped weight 1: expected red team, got %s", got)
		}
	}
}
