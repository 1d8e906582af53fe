package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterstack/arbiter-eval/internal/agents"
	"github.com/arbiterstack/arbiter-eval/internal/metrics"
	"github.com/arbiterstack/arbiter-eval/internal/models"
	"github.com/arbiterstack/arbiter-eval/internal/repo"
	"github.com/arbiterstack/arbiter-eval/internal/utils"
)

// Early-stop reasons recorded on campaigns that finished before MaxTurns.
const (
	StopGoalProgress = "goal progress threshold reached"
	StopEscalation   = "escalation threshold reached"
)

// runState holds the per-run agent instances. Agents carry internal state
// across turns, so all access goes through the mutex; parallel strategies
// share a single state the same way sequential ones do.
type runState struct {
	mu           sync.Mutex
	kind         models.CampaignKind
	persona      *agents.PersonaAgent
	redTeam      *agents.RedTeamAgent
	selector     *agents.Selector
	lastResponse string
}

func (e *Engine) newRunState(campaign *models.Campaign) *runState {
	state := &runState{kind: campaign.Kind}

	if campaign.Kind == models.KindPersona || campaign.Kind == models.KindCombined {
		persona, _ := e.registry.Persona(campaign.Config.PersonaID)
		state.persona = agents.NewPersonaAgent(persona)
	}
	if campaign.Kind == models.KindRedTeam || campaign.Kind == models.KindCombined {
		plan, ok := e.registry.AttackPlan(campaign.Config.AttackPlanID)
		if !ok {
			plan = e.registry.DefaultAttackPlan()
		}
		state.redTeam = agents.NewRedTeamAgent(plan)
	}
	if campaign.Kind == models.KindCombined {
		state.selector = agents.NewSelector(campaign.Config, time.Now().UnixNano())
	}
	return state
}

// agentFor picks this turn's agent. Callers must hold the mutex.
func (s *runState) agentFor(sequence int) agents.InputAgent {
	switch s.kind {
	case models.KindPersona:
		return s.persona
	case models.KindRedTeam:
		return s.redTeam
	default:
		return s.selector.Pick(sequence, s.persona, s.redTeam)
	}
}

// replay feeds persisted turns back through fresh agents so a resumed
// campaign keeps its goal progress, escalation level and conversation tail.
func (s *runState) replay(turns []*models.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, turn := range turns {
		if turn.Evaluation != nil {
			switch turn.AgentType {
			case agents.TypePersona:
				if s.persona != nil {
					s.persona.ReceiveFeedback(turn.Evaluation.Overall)
				}
			case agents.TypeRedTeam:
				if s.redTeam != nil {
					s.redTeam.ReceiveFeedback(turn.Evaluation.Overall)
				}
			}
		}
		if turn.Status != models.TurnFailed && turn.Response != "" {
			s.lastResponse = turn.Response
		}
	}
}

func (s *runState) stopReason(cfg models.CampaignConfig) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.GoalProgressThreshold > 0 && s.persona != nil &&
		s.persona.GoalProgress() >= cfg.GoalProgressThreshold {
		return StopGoalProgress
	}
	if cfg.EscalationThreshold > 0 && s.redTeam != nil &&
		s.redTeam.EscalationLevel() >= cfg.EscalationThreshold {
		return StopEscalation
	}
	return ""
}

// Run executes a created or paused campaign until it finishes, the
// deadline expires, ctx is cancelled, or a concurrent Pause lands between
// turns. Resuming a paused campaign continues the turn sequence where it
// left off; turns persisted before the pause keep their numbers.
func (e *Engine) Run(ctx context.Context, campaignID string) (*models.Campaign, error) {
	const op = "campaign.Run"

	campaign, err := e.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignCreated && campaign.Status != models.CampaignPaused {
		return nil, utils.NewAppError(op,
			fmt.Sprintf("campaign is %s, only created or paused campaigns can run", campaign.Status),
			utils.ErrInvalidTransition)
	}

	var prior []*models.Turn
	startSeq := 1
	if campaign.Status == models.CampaignPaused {
		existing, err := e.Results(ctx, campaign.ID)
		if err != nil {
			return nil, utils.NewAppError(op, "load persisted turns", err)
		}
		for i := range existing {
			prior = append(prior, &existing[i])
		}
		if len(prior) > 0 {
			startSeq = prior[len(prior)-1].Sequence + 1
		}
	}

	select {
	case e.active <- struct{}{}:
		defer func() { <-e.active }()
	case <-ctx.Done():
		return nil, utils.NewAppError(op, "waiting for campaign slot", ctx.Err())
	}

	campaign.Status = models.CampaignRunning
	campaign.StartedAt = time.Now().UTC()
	if err := e.store.UpdateCampaignStatus(ctx, campaign.ID, string(campaign.Status),
		repo.Record{"StartedAt": campaign.StartedAt}); err != nil {
		return nil, utils.NewAppError(op, "mark campaign running", err)
	}
	e.publishCampaign(ctx, campaign, repo.EventCampaignStarted, nil)

	runCtx, cancel := context.WithTimeout(ctx, campaign.Config.Deadline)
	defer cancel()

	state := e.newRunState(campaign)
	state.replay(prior)
	target := e.target(campaign.TargetURL)

	var turns []*models.Turn
	var stopReason string
	var paused bool
	if campaign.Config.Strategy == models.StrategyParallel {
		turns = e.runParallel(runCtx, campaign, startSeq, state, target)
	} else {
		turns, stopReason, paused = e.runSequential(runCtx, campaign, startSeq, state, target)
	}

	campaign.Stats = computeStats(append(prior, turns...))
	campaign.StopReason = stopReason

	if paused {
		// Pause already persisted the status; record progress and hand
		// the campaign back without a terminal status.
		campaign.Status = models.CampaignPaused
		if statsRecord, err := repo.ToRecord(campaign.Stats); err == nil {
			if err := e.store.UpdateCampaignStats(ctx, campaign.ID, statsRecord); err != nil {
				e.logger.Warn("persist campaign stats",
					slog.String("campaign_id", campaign.ID), slog.Any("error", err))
			}
		}
		e.logger.Info("campaign paused between turns",
			slog.String("campaign_id", campaign.ID),
			slog.Int("total_turns", campaign.Stats.TotalTurns))
		return campaign, nil
	}

	campaign.CompletedAt = time.Now().UTC()

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		campaign.Status = models.CampaignFailed
		campaign.Error = "campaign deadline exceeded"
	case ctx.Err() != nil:
		campaign.Status = models.CampaignFailed
		campaign.Error = "campaign cancelled"
	default:
		campaign.Status = models.CampaignCompleted
	}

	// Final writes use the parent context: the run context is already
	// expired when the deadline fired.
	e.finalize(ctx, campaign)
	return campaign, nil
}

func (e *Engine) finalize(ctx context.Context, campaign *models.Campaign) {
	statsRecord, err := repo.ToRecord(campaign.Stats)
	if err == nil {
		if err := e.store.UpdateCampaignStats(ctx, campaign.ID, statsRecord); err != nil {
			e.logger.Warn("persist campaign stats",
				slog.String("campaign_id", campaign.ID), slog.Any("error", err))
		}
	}
	extra := repo.Record{"CompletedAt": campaign.CompletedAt}
	if campaign.StopReason != "" {
		extra["StopReason"] = campaign.StopReason
	}
	if campaign.Error != "" {
		extra["Error"] = campaign.Error
	}
	if err := e.store.UpdateCampaignStatus(ctx, campaign.ID, string(campaign.Status), extra); err != nil {
		e.logger.Warn("persist campaign status",
			slog.String("campaign_id", campaign.ID), slog.Any("error", err))
	}

	payload := map[string]any{
		"total_turns":     campaign.Stats.TotalTurns,
		"completed_turns": campaign.Stats.CompletedTurns,
		"failed_turns":    campaign.Stats.FailedTurns,
		"average_score":   campaign.Stats.AverageScore,
	}
	if campaign.Status == models.CampaignFailed {
		payload["error"] = campaign.Error
		e.publishCampaign(ctx, campaign, repo.EventCampaignFailed, payload)
		metrics.ObserveCampaign(metrics.OutcomeFailed)
	} else {
		e.publishCampaign(ctx, campaign, repo.EventCampaignCompleted, payload)
		metrics.ObserveCampaign(metrics.OutcomeCompleted)
	}

	e.logger.Info("campaign finished",
		slog.String("campaign_id", campaign.ID),
		slog.String("status", string(campaign.Status)),
		slog.Int("total_turns", campaign.Stats.TotalTurns),
		slog.Int("failed_turns", campaign.Stats.FailedTurns))
}

// runSequential drives turns startSeq..MaxTurns one at a time. Between
// turns it re-reads the persisted status so a concurrent Pause stops the
// loop without cancelling the turn in flight; the paused return tells Run
// to leave the persisted PAUSED status alone.
func (e *Engine) runSequential(ctx context.Context, campaign *models.Campaign, startSeq int, state *runState, target TargetCaller) ([]*models.Turn, string, bool) {
	var turns []*models.Turn
	for sequence := startSeq; sequence <= campaign.Config.MaxTurns; sequence++ {
		if ctx.Err() != nil {
			break
		}
		if e.pausedExternally(ctx, campaign.ID) {
			return turns, "", true
		}
		turn := e.executeTurn(ctx, campaign, sequence, state, target)
		turns = append(turns, turn)

		if reason := state.stopReason(campaign.Config); reason != "" {
			e.logger.Info("campaign stopped early",
				slog.String("campaign_id", campaign.ID),
				slog.Int("sequence", sequence),
				slog.String("reason", reason))
			return turns, reason, false
		}
	}
	return turns, "", false
}

// pausedExternally reports whether Pause was called while the run loop
// owned the campaign.
func (e *Engine) pausedExternally(ctx context.Context, campaignID string) bool {
	current, err := e.Get(ctx, campaignID)
	return err == nil && current.Status == models.CampaignPaused
}

func (e *Engine) runParallel(ctx context.Context, campaign *models.Campaign, startSeq int, state *runState, target TargetCaller) []*models.Turn {
	total := campaign.Config.MaxTurns - startSeq + 1
	if total < 0 {
		total = 0
	}
	workers := make(chan struct{}, campaign.Config.TurnConcurrency)
	results := make([]*models.Turn, total)

	var wg sync.WaitGroup
	for sequence := startSeq; sequence <= campaign.Config.MaxTurns; sequence++ {
		wg.Add(1)
		go func(sequence int) {
			defer wg.Done()
			select {
			case workers <- struct{}{}:
				defer func() { <-workers }()
			case <-ctx.Done():
				return
			}
			results[sequence-startSeq] = e.executeTurn(ctx, campaign, sequence, state, target)
		}(sequence)
	}
	wg.Wait()

	// results is indexed by sequence, so the compaction preserves order.
	turns := make([]*models.Turn, 0, len(results))
	for _, turn := range results {
		if turn != nil {
			turns = append(turns, turn)
		}
	}
	return turns
}

// executeTurn drives one turn through the full pipeline. A failure at any
// step marks this turn failed without affecting its siblings.
func (e *Engine) executeTurn(ctx context.Context, campaign *models.Campaign, sequence int, state *runState, target TargetCaller) (turn *models.Turn) {
	turn = &models.Turn{
		ID:         uuid.NewString(),
		CampaignID: campaign.ID,
		Sequence:   sequence,
		Status:     models.TurnPending,
		StartedAt:  time.Now().UTC(),
	}
	defer func() {
		if r := recover(); r != nil {
			e.failTurn(ctx, turn, fmt.Errorf("panic: %v", r))
		}
	}()

	state.mu.Lock()
	agent := state.agentFor(sequence)
	turnCtx := agents.TurnContext{Sequence: sequence, LastResponse: state.lastResponse}
	state.mu.Unlock()
	turn.AgentType = agent.Type()
	turn.Status = models.TurnExecuting

	input, err := agent.GenerateInput(ctx, turnCtx)
	if err != nil {
		e.failTurn(ctx, turn, fmt.Errorf("generate input: %w", err))
		return turn
	}
	turn.Input = input

	resp, err := target.Send(ctx, repo.TargetRequest{
		Message:    input,
		CampaignID: campaign.ID,
		TurnID:     turn.ID,
		AgentType:  turn.AgentType,
	})
	if err != nil {
		e.failTurn(ctx, turn, fmt.Errorf("target call: %w", err))
		return turn
	}
	turn.Response = resp.Message
	turn.Echo = resp.Echo
	turn.TraceID = resp.TraceID

	eval, err := e.evaluator.Evaluate(ctx, turn)
	if err != nil {
		e.failTurn(ctx, turn, fmt.Errorf("evaluate: %w", err))
		return turn
	}
	turn.Evaluation = eval
	turn.Status = models.TurnEvaluated
	e.saveEvaluation(ctx, campaign.ID, eval)

	state.mu.Lock()
	agent.ReceiveFeedback(eval.Overall)
	state.lastResponse = resp.Message
	state.mu.Unlock()

	e.correlateTurn(ctx, turn)

	turn.Status = models.TurnCompleted
	turn.CompletedAt = time.Now().UTC()
	e.persistTurn(ctx, turn)
	e.publishTurn(ctx, turn, repo.EventTurnCompleted)
	metrics.ObserveTurn(turn.CompletedAt.Sub(turn.StartedAt), metrics.OutcomeCompleted)
	return turn
}

// correlateTurn explains low scores by fetching and analysing the turn's
// distributed trace. Trace retrieval is best effort: an absent or
// malformed trace leaves the turn evaluated but unanalysed.
func (e *Engine) correlateTurn(ctx context.Context, turn *models.Turn) {
	if e.traceStore == nil || turn.TraceID == "" {
		return
	}

	raw, err := e.traceStore.GetTrace(ctx, turn.TraceID)
	if err != nil {
		e.logger.Debug("trace unavailable, skipping correlation",
			slog.String("turn_id", turn.ID),
			slog.String("trace_id", turn.TraceID),
			slog.Any("error", err))
		return
	}

	parsed := e.parser.Parse(raw)
	if parsed.Empty() {
		return
	}

	insights := e.insights.Extract(parsed)
	result := e.correlator.Correlate(turn.Evaluation, parsed, insights)
	turn.Correlation = &result
	turn.Status = models.TurnAnalyzed
	for _, cause := range result.RootCauses {
		metrics.ObserveRootCause(string(cause.Kind))
	}
}

func (e *Engine) failTurn(ctx context.Context, turn *models.Turn, err error) {
	turn.Status = models.TurnFailed
	turn.Error = err.Error()
	turn.CompletedAt = time.Now().UTC()
	e.logger.Warn("turn failed",
		slog.String("campaign_id", turn.CampaignID),
		slog.Int("sequence", turn.Sequence),
		slog.Any("error", err))
	e.persistTurn(ctx, turn)
	e.publishTurn(ctx, turn, repo.EventTurnFailed)
	metrics.ObserveTurn(turn.CompletedAt.Sub(turn.StartedAt), metrics.OutcomeFailed)
}

// persistTurn saves the turn record unless the campaign context already
// expired: no turn records are written past the deadline.
func (e *Engine) persistTurn(ctx context.Context, turn *models.Turn) {
	if ctx.Err() != nil {
		e.logger.Debug("skipping turn persist after deadline",
			slog.String("turn_id", turn.ID))
		return
	}
	record, err := repo.ToRecord(turn)
	if err != nil {
		e.logger.Warn("encode turn", slog.String("turn_id", turn.ID), slog.Any("error", err))
		return
	}
	if err := e.store.SaveTurn(ctx, turn.CampaignID, turn.ID, record); err != nil {
		e.logger.Warn("persist turn", slog.String("turn_id", turn.ID), slog.Any("error", err))
	}
}

func (e *Engine) saveEvaluation(ctx context.Context, campaignID string, eval *models.EvaluationResult) {
	if ctx.Err() != nil {
		return
	}
	record, err := repo.ToRecord(eval)
	if err != nil {
		e.logger.Warn("encode evaluation", slog.String("evaluation_id", eval.ID), slog.Any("error", err))
		return
	}
	if err := e.store.SaveEvaluation(ctx, campaignID, eval.ID, record); err != nil {
		e.logger.Warn("persist evaluation", slog.String("evaluation_id", eval.ID), slog.Any("error", err))
	}
}

func (e *Engine) publishCampaign(ctx context.Context, campaign *models.Campaign, eventType string, payload map[string]any) {
	if err := e.events.PublishCampaignEvent(ctx, campaign.ID, eventType, payload); err != nil {
		e.logger.Warn("publish campaign event",
			slog.String("campaign_id", campaign.ID),
			slog.String("event", eventType),
			slog.Any("error", err))
	}
}

func (e *Engine) publishTurn(ctx context.Context, turn *models.Turn, eventType string) {
	payload := map[string]any{"sequence": turn.Sequence, "status": string(turn.Status)}
	if turn.Evaluation != nil {
		payload["overall_score"] = turn.Evaluation.Overall
	}
	if err := e.events.PublishTurnEvent(ctx, turn.CampaignID, turn.ID, turn.AgentType,
		turn.TraceID, eventType, payload); err != nil {
		e.logger.Warn("publish turn event",
			slog.String("turn_id", turn.ID),
			slog.String("event", eventType),
			slog.Any("error", err))
	}
}

func computeStats(turns []*models.Turn) models.CampaignStats {
	stats := models.CampaignStats{TotalTurns: len(turns)}
	var scoreSum float64
	var scored int
	for _, turn := range turns {
		if turn.Status == models.TurnFailed {
			stats.FailedTurns++
			continue
		}
		stats.CompletedTurns++
		if turn.Evaluation != nil {
			scoreSum += turn.Evaluation.Overall
			scored++
		}
	}
	if scored > 0 {
		stats.AverageScore = scoreSum / float64(scored)
	}
	return stats
}
