package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterstack/arbiter-eval/internal/agents"
	"github.com/arbiterstack/arbiter-eval/internal/correlation"
	"github.com/arbiterstack/arbiter-eval/internal/evaluation"
	"github.com/arbiterstack/arbiter-eval/internal/models"
	"github.com/arbiterstack/arbiter-eval/internal/repo"
	"github.com/arbiterstack/arbiter-eval/internal/traces"
	"github.com/arbiterstack/arbiter-eval/internal/utils"
)

// TargetCaller sends one input to the system under evaluation.
type TargetCaller interface {
	Send(ctx context.Context, req repo.TargetRequest) (repo.TargetResponse, error)
}

// TargetFactory builds a caller for a campaign's target endpoint.
type TargetFactory func(endpoint string) TargetCaller

// Options bounds engine-wide scheduling and the defaults applied to
// campaign configs at create time.
type Options struct {
	MaxActiveCampaigns int
	DefaultTurnWorkers int
	DefaultMaxTurns    int
	CampaignDeadline   time.Duration
	TargetTimeout      time.Duration
	Retry              repo.RetryConfig

	// Early-stop thresholds applied at create time when a campaign does
	// not set its own. Zero leaves early stopping disabled.
	GoalProgressDefault float64
	EscalationDefault   float64
}

// DefaultOptions returns the engine limits used when no configuration is
// supplied.
func DefaultOptions() Options {
	return Options{
		MaxActiveCampaigns: 4,
		DefaultTurnWorkers: 3,
		DefaultMaxTurns:    10,
		CampaignDeadline:   30 * time.Minute,
		TargetTimeout:      30 * time.Second,
		Retry:              repo.DefaultRetryConfig(),

		GoalProgressDefault: 0.9,
		EscalationDefault:   0.8,
	}
}

// Engine orchestrates campaign lifecycle: creation, turn execution,
// evaluation, trace correlation, and reporting.
type Engine struct {
	logger     *slog.Logger
	store      repo.DocumentStore
	traceStore repo.TraceStore
	events     repo.EventPublisher
	registry   *agents.Registry
	evaluator  evaluation.Evaluator
	target     TargetFactory
	parser     *traces.Parser
	insights   *traces.InsightExtractor
	correlator *correlation.Engine
	opts       Options

	// active bounds concurrently running campaigns process-wide.
	active chan struct{}
}

// NewEngine wires the campaign engine. traceStore may be nil, in which
// case turns complete without correlation. A nil target factory builds
// the default HTTP client per campaign endpoint.
func NewEngine(
	store repo.DocumentStore,
	traceStore repo.TraceStore,
	events repo.EventPublisher,
	registry *agents.Registry,
	evaluator evaluation.Evaluator,
	target TargetFactory,
	opts Options,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = repo.NoopPublisher{}
	}
	if evaluator == nil {
		evaluator = evaluation.NewHeuristicEvaluator()
	}
	if opts.MaxActiveCampaigns <= 0 {
		opts.MaxActiveCampaigns = DefaultOptions().MaxActiveCampaigns
	}
	if opts.DefaultTurnWorkers <= 0 {
		opts.DefaultTurnWorkers = DefaultOptions().DefaultTurnWorkers
	}
	if opts.DefaultMaxTurns <= 0 {
		opts.DefaultMaxTurns = DefaultOptions().DefaultMaxTurns
	}
	if opts.CampaignDeadline <= 0 {
		opts.CampaignDeadline = DefaultOptions().CampaignDeadline
	}
	if opts.TargetTimeout <= 0 {
		opts.TargetTimeout = DefaultOptions().TargetTimeout
	}
	e := &Engine{
		logger:     logger,
		store:      store,
		traceStore: traceStore,
		events:     events,
		registry:   registry,
		evaluator:  evaluator,
		target:     target,
		parser:     traces.NewParser(logger),
		insights:   traces.NewInsightExtractor(),
		correlator: correlation.NewEngine(logger),
		opts:       opts,
		active:     make(chan struct{}, opts.MaxActiveCampaigns),
	}
	if e.target == nil {
		e.target = func(endpoint string) TargetCaller {
			return repo.NewTargetClient(endpoint, opts.TargetTimeout, opts.Retry, logger)
		}
	}
	return e
}

// Create validates the campaign configuration, persists a new campaign in
// CREATED state and returns it.
func (e *Engine) Create(ctx context.Context, kind models.CampaignKind, targetURL string, cfg models.CampaignConfig) (*models.Campaign, error) {
	const op = "campaign.Create"

	if targetURL == "" {
		return nil, utils.NewAppError(op, "target URL is required", utils.ErrInvalidConfig)
	}
	switch kind {
	case models.KindPersona, models.KindRedTeam, models.KindCombined:
	default:
		return nil, utils.NewAppError(op, fmt.Sprintf("unknown campaign kind %q", kind), utils.ErrInvalidConfig)
	}

	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = e.opts.DefaultMaxTurns
	}
	if cfg.Strategy == "" {
		cfg.Strategy = models.StrategySequential
	}
	if cfg.Strategy != models.StrategySequential && cfg.Strategy != models.StrategyParallel {
		return nil, utils.NewAppError(op, fmt.Sprintf("unknown execution strategy %q", cfg.Strategy), utils.ErrInvalidConfig)
	}
	if cfg.TurnConcurrency <= 0 {
		cfg.TurnConcurrency = e.opts.DefaultTurnWorkers
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = e.opts.CampaignDeadline
	}
	if cfg.GoalProgressThreshold <= 0 && (kind == models.KindPersona || kind == models.KindCombined) {
		cfg.GoalProgressThreshold = e.opts.GoalProgressDefault
	}
	if cfg.EscalationThreshold <= 0 && (kind == models.KindRedTeam || kind == models.KindCombined) {
		cfg.EscalationThreshold = e.opts.EscalationDefault
	}

	if kind == models.KindPersona || kind == models.KindCombined {
		if cfg.PersonaID == "" {
			return nil, utils.NewAppError(op, "persona ID is required for this campaign kind", utils.ErrInvalidConfig)
		}
		if _, ok := e.registry.Persona(cfg.PersonaID); !ok {
			return nil, utils.NewAppError(op, fmt.Sprintf("persona %q not found in catalog", cfg.PersonaID), utils.ErrInvalidConfig)
		}
	}
	if kind == models.KindRedTeam || kind == models.KindCombined {
		if cfg.AttackPlanID != "" {
			if _, ok := e.registry.AttackPlan(cfg.AttackPlanID); !ok {
				return nil, utils.NewAppError(op, fmt.Sprintf("attack plan %q not found in catalog", cfg.AttackPlanID), utils.ErrInvalidConfig)
			}
		}
	}
	if kind == models.KindCombined {
		if cfg.Selection == "" {
			cfg.Selection = models.SelectRoundRobin
		}
		switch cfg.Selection {
		case models.SelectRoundRobin, models.SelectSwitchAfter, models.SelectWeightedRandom:
		default:
			return nil, utils.NewAppError(op, fmt.Sprintf("unknown selection strategy %q", cfg.Selection), utils.ErrInvalidConfig)
		}
		if cfg.RedTeamWeight != nil && (*cfg.RedTeamWeight < 0 || *cfg.RedTeamWeight > 1) {
			return nil, utils.NewAppError(op, "red-team weight must be within [0,1]", utils.ErrInvalidConfig)
		}
	}

	campaign := &models.Campaign{
		ID:        uuid.NewString(),
		Kind:      kind,
		TargetURL: targetURL,
		Config:    cfg,
		Status:    models.CampaignCreated,
		CreatedAt: time.Now().UTC(),
	}

	record, err := repo.ToRecord(campaign)
	if err != nil {
		return nil, utils.NewAppError(op, "encode campaign", err)
	}
	if err := e.store.CreateCampaign(ctx, campaign.ID, record); err != nil {
		return nil, utils.NewAppError(op, "persist campaign", err)
	}

	e.logger.Info("campaign created",
		slog.String("campaign_id", campaign.ID),
		slog.String("kind", string(kind)),
		slog.Int("max_turns", cfg.MaxTurns))
	return campaign, nil
}

// Get loads one campaign by ID.
func (e *Engine) Get(ctx context.Context, campaignID string) (*models.Campaign, error) {
	record, err := e.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	var campaign models.Campaign
	if err := repo.FromRecord(record, &campaign); err != nil {
		return nil, utils.NewAppError("campaign.Get", "decode campaign", err)
	}
	return &campaign, nil
}

// List returns campaigns, optionally filtered by status.
func (e *Engine) List(ctx context.Context, status models.CampaignStatus, limit, offset int) ([]models.Campaign, error) {
	records, err := e.store.ListCampaigns(ctx, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	campaigns := make([]models.Campaign, 0, len(records))
	for _, record := range records {
		var campaign models.Campaign
		if err := repo.FromRecord(record, &campaign); err != nil {
			e.logger.Warn("skipping undecodable campaign record", slog.Any("error", err))
			continue
		}
		campaigns = append(campaigns, campaign)
	}
	return campaigns, nil
}

// Pause transitions a RUNNING campaign to PAUSED. Any other source status
// is rejected. A sequential run loop picks the pause up between turns and
// stops; parallel campaigns launch every turn up front, so a pause takes
// effect only if it lands before the turns are dispatched.
func (e *Engine) Pause(ctx context.Context, campaignID string) error {
	const op = "campaign.Pause"

	campaign, err := e.Get(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != models.CampaignRunning {
		return utils.NewAppError(op,
			fmt.Sprintf("campaign is %s, only running campaigns can be paused", campaign.Status),
			utils.ErrInvalidTransition)
	}
	if err := e.store.UpdateCampaignStatus(ctx, campaignID, string(models.CampaignPaused), nil); err != nil {
		return utils.NewAppError(op, "persist status", err)
	}
	e.logger.Info("campaign paused", slog.String("campaign_id", campaignID))
	return nil
}

// Delete removes a campaign and its turns. Running campaigns must be
// paused or finished first.
func (e *Engine) Delete(ctx context.Context, campaignID string) error {
	const op = "campaign.Delete"

	campaign, err := e.Get(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status == models.CampaignRunning {
		return utils.NewAppError(op, "running campaigns cannot be deleted", utils.ErrInvalidTransition)
	}
	if err := e.store.DeleteCampaign(ctx, campaignID); err != nil {
		return utils.NewAppError(op, "delete campaign", err)
	}
	e.logger.Info("campaign deleted", slog.String("campaign_id", campaignID))
	return nil
}

// Results returns the persisted turns of a campaign in sequence order.
func (e *Engine) Results(ctx context.Context, campaignID string) ([]models.Turn, error) {
	if _, err := e.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	records, err := e.store.GetTurns(ctx, campaignID, 0)
	if err != nil {
		return nil, err
	}
	turns := make([]models.Turn, 0, len(records))
	for _, record := range records {
		var turn models.Turn
		if err := repo.FromRecord(record, &turn); err != nil {
			e.logger.Warn("skipping undecodable turn record",
				slog.String("campaign_id", campaignID), slog.Any("error", err))
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
