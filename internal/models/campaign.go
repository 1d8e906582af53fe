package models

import "time"

// CampaignKind selects the input-generation behaviour for a campaign.
type CampaignKind string

const (
	KindPersona  CampaignKind = "persona"
	KindRedTeam  CampaignKind = "red_team"
	KindCombined CampaignKind = "combined"
)

// CampaignStatus tracks the campaign lifecycle.
type CampaignStatus string

const (
	CampaignCreated   CampaignStatus = "created"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// ExecutionStrategy controls how turns are scheduled within a campaign.
type ExecutionStrategy string

const (
	StrategySequential ExecutionStrategy = "sequential"
	StrategyParallel   ExecutionStrategy = "parallel"
)

// SelectionStrategy chooses the active agent per turn in combined campaigns.
type SelectionStrategy string

const (
	SelectRoundRobin     SelectionStrategy = "round_robin"
	SelectSwitchAfter    SelectionStrategy = "switch_after"
	SelectWeightedRandom SelectionStrategy = "weighted_random"
)

// CampaignConfig captures per-campaign execution parameters.
type CampaignConfig struct {
	MaxTurns int

	// PersonaID must reference an entry in the persona registry for
	// persona and combined campaigns.
	PersonaID string
	// AttackPlanID optionally references an attack plan for red-team
	// and combined campaigns.
	AttackPlanID string

	Strategy  ExecutionStrategy
	Selection SelectionStrategy
	// SwitchEvery is the N for the switch_after selection strategy.
	SwitchEvery int
	// RedTeamWeight is the weighted_random probability of picking the
	// red-team agent. Nil means the default of 0.5.
	RedTeamWeight *float64

	// Early-stop thresholds for sequential execution. Zero disables.
	GoalProgressThreshold float64
	EscalationThreshold   float64

	TurnConcurrency int
	Deadline        time.Duration
}

// CampaignStats aggregates turn outcomes.
type CampaignStats struct {
	TotalTurns     int
	CompletedTurns int
	FailedTurns    int
	AverageScore   float64
}

// Campaign is one evaluation run against a target system.
type Campaign struct {
	ID          string
	Kind        CampaignKind
	TargetURL   string
	Config      CampaignConfig
	Status      CampaignStatus
	Stats       CampaignStats
	StopReason  string
	Error       string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// TurnStatus tracks the per-turn pipeline state.
type TurnStatus string

const (
	TurnPending   TurnStatus = "pending"
	TurnExecuting TurnStatus = "executing"
	TurnEvaluated TurnStatus = "evaluated"
	TurnAnalyzed  TurnStatus = "analyzed"
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
)

// Turn is one input/response exchange with its evaluation and optional
// trace correlation. Once completed or failed a turn is immutable except
// for Correlation, which may be attached after evaluation.
type Turn struct {
	ID         string
	CampaignID string
	// Sequence is unique and contiguous 1..N within the campaign.
	Sequence    int
	AgentType   string
	Input       string
	Response    string
	Echo        bool
	TraceID     string
	Evaluation  *EvaluationResult
	Correlation *CorrelationResult
	Status      TurnStatus
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}
