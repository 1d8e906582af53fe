package agents

import (
	"math/rand"

	"github.com/arbiterstack/arbiter-eval/internal/models"
)

const (
	defaultRedTeamWeight = 0.5
	defaultSwitchEvery   = 3
)

// Selector picks the active agent per turn in combined campaigns. Turn
// numbers are treated as 1-indexed; a turn number below 1 is read as 1.
type Selector struct {
	strategy    models.SelectionStrategy
	switchEvery int
	weight      float64
	rng         *rand.Rand
}

// NewSelector builds a selector from the campaign configuration. A nil
// red-team weight defaults to 0.5; out-of-range weights are clamped.
func NewSelector(cfg models.CampaignConfig, seed int64) *Selector {
	weight := defaultRedTeamWeight
	if cfg.RedTeamWeight != nil {
		weight = *cfg.RedTeamWeight
		if weight < 0 {
			weight = 0
		}
		if weight > 1 {
			weight = 1
		}
	}
	switchEvery := cfg.SwitchEvery
	if switchEvery <= 0 {
		switchEvery = defaultSwitchEvery
	}
	return &Selector{
		strategy:    cfg.Selection,
		switchEvery: switchEvery,
		weight:      weight,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Pick returns the active agent for the given turn number.
func (s *Selector) Pick(turn int, persona, redTeam InputAgent) InputAgent {
	if turn < 1 {
		turn = 1
	}
	switch s.strategy {
	case models.SelectSwitchAfter:
		if ((turn-1)/s.switchEvery)%2 == 0 {
			return persona
		}
		return redTeam
	case models.SelectWeightedRandom:
		if s.rng.Float64() < s.weight {
			return redTeam
		}
		return persona
	default: // round robin by turn parity
		if turn%2 == 1 {
			return persona
		}
		return redTeam
	}
}
