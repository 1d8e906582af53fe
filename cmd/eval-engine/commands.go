package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/arbiterstack/arbiter-eval/internal/models"
	"github.com/arbiterstack/arbiter-eval/internal/utils"
)

func newCreateCommand(configPath *string) *cobra.Command {
	var (
		kind          string
		target        string
		maxTurns      int
		personaID     string
		attackPlanID  string
		strategy      string
		selection     string
		switchEvery   int
		redTeamWeight float64
		goalThreshold float64
		escThreshold  float64
		workers       int
		deadline      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign in CREATED state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			cfg := models.CampaignConfig{
				MaxTurns:              maxTurns,
				PersonaID:             personaID,
				AttackPlanID:          attackPlanID,
				Strategy:              models.ExecutionStrategy(strategy),
				Selection:             models.SelectionStrategy(selection),
				SwitchEvery:           switchEvery,
				GoalProgressThreshold: goalThreshold,
				EscalationThreshold:   escThreshold,
				TurnConcurrency:       workers,
				Deadline:              deadline,
			}
			if cmd.Flags().Changed("red-team-weight") {
				cfg.RedTeamWeight = &redTeamWeight
			}

			created, err := a.engine.Create(cmd.Context(), models.CampaignKind(kind), target, cfg)
			if err != nil {
				return err
			}
			fmt.Printf("campaign %s created (%s, %d turns max)\n", created.ID, created.Kind, created.Config.MaxTurns)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "persona", "Campaign kind: persona, red_team or combined")
	cmd.Flags().StringVar(&target, "target", "", "Target endpoint URL (required)")
	cmd.Flags().IntVar(&maxTurns, "max-turns", 0, "Maximum number of turns (0 uses the configured default)")
	cmd.Flags().StringVar(&personaID, "persona", "", "Persona ID from the catalog")
	cmd.Flags().StringVar(&attackPlanID, "attack-plan", "", "Attack plan ID from the catalog")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Execution strategy: sequential or parallel")
	cmd.Flags().StringVar(&selection, "selection", "", "Combined-mode agent selection: round_robin, switch_after or weighted_random")
	cmd.Flags().IntVar(&switchEvery, "switch-every", 0, "Turns per agent for switch_after selection")
	cmd.Flags().Float64Var(&redTeamWeight, "red-team-weight", 0.5, "Red-team probability for weighted_random selection")
	cmd.Flags().Float64Var(&goalThreshold, "goal-threshold", 0, "Goal-progress early-stop threshold (0 uses the configured default)")
	cmd.Flags().Float64Var(&escThreshold, "escalation-threshold", 0, "Escalation early-stop threshold (0 uses the configured default)")
	cmd.Flags().IntVar(&workers, "turn-workers", 0, "Concurrent turns for the parallel strategy")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "Campaign wall-clock deadline (0 uses the configured default)")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newStartCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start <campaign-id>",
		Short: "Run a created or paused campaign to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			metricsServer := startMetricsServer(a)
			defer shutdownMetricsServer(a, metricsServer)

			finished, err := a.engine.Run(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("campaign %s %s: %d turns, %d completed, %d failed, average score %.2f\n",
				finished.ID, finished.Status,
				finished.Stats.TotalTurns, finished.Stats.CompletedTurns,
				finished.Stats.FailedTurns, finished.Stats.AverageScore)
			if finished.StopReason != "" {
				fmt.Printf("stopped early: %s\n", finished.StopReason)
			}
			if finished.Status == models.CampaignFailed {
				return fmt.Errorf("campaign failed: %s", finished.Error)
			}
			return nil
		},
	}
}

func newPauseCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <campaign-id>",
		Short: "Pause a running campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.engine.Pause(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("campaign %s paused\n", args[0])
			return nil
		},
	}
}

func newListCommand(configPath *string) *cobra.Command {
	var (
		status string
		since  string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cutoff time.Time
			if since != "" {
				var err error
				if cutoff, err = utils.ParseRFC3339(since); err != nil {
					return fmt.Errorf("invalid --since value: %w", err)
				}
			}

			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			campaigns, err := a.engine.List(cmd.Context(), models.CampaignStatus(status), limit, offset)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tSTATUS\tTURNS\tAVG SCORE\tCREATED")
			for _, c := range campaigns {
				if !cutoff.IsZero() && c.CreatedAt.Before(cutoff) {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%.2f\t%s\n",
					c.ID, c.Kind, c.Status,
					c.Stats.CompletedTurns, c.Config.MaxTurns,
					c.Stats.AverageScore,
					c.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&since, "since", "", "Only campaigns created at or after this RFC3339 time")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum campaigns to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Campaigns to skip")
	return cmd
}

func newDeleteCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <campaign-id>",
		Short: "Delete a campaign and its turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.engine.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("campaign %s deleted\n", args[0])
			return nil
		},
	}
}

func newResultsCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "results <campaign-id>",
		Short: "Show per-turn results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			turns, err := a.engine.Results(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tAGENT\tSTATUS\tSCORE\tROOT CAUSES\tTRACE")
			for _, t := range turns {
				score := "-"
				if t.Evaluation != nil {
					score = fmt.Sprintf("%.2f", t.Evaluation.Overall)
				}
				causes := 0
				if t.Correlation != nil {
					causes = len(t.Correlation.RootCauses)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
					t.Sequence, t.AgentType, t.Status, score, causes, t.TraceID)
			}
			return w.Flush()
		},
	}
}

func newReportCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "report <campaign-id>",
		Short: "Summarise a campaign: metric averages, root causes, recommendations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.engine.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("campaign %s (%s, %s)\n", report.CampaignID, report.Kind, report.Status)
			fmt.Printf("turns: %d total, %d completed, %d failed, average score %.2f\n",
				report.Stats.TotalTurns, report.Stats.CompletedTurns,
				report.Stats.FailedTurns, report.Stats.AverageScore)
			if report.StopReason != "" {
				fmt.Printf("stopped early: %s\n", report.StopReason)
			}
			if report.TurnLatencyP95 > 0 {
				fmt.Printf("turn latency p95: %s\n", report.TurnLatencyP95)
			}

			if len(report.MetricAverages) > 0 {
				fmt.Println("\nmetric averages:")
				for _, metric := range []models.MetricKind{
					models.MetricAccuracy, models.MetricCompleteness, models.MetricRelevance,
					models.MetricCoherence, models.MetricSessionHandling, models.MetricRoutingAccuracy,
				} {
					if avg, ok := report.MetricAverages[metric]; ok {
						fmt.Printf("  %-18s %.2f\n", metric, avg)
					}
				}
			}

			if len(report.RootCauses) > 0 {
				fmt.Println("\nroot causes:")
				for _, cause := range report.RootCauses {
					fmt.Printf("  %s: %s (%d turns, max severity %.2f)\n",
						cause.Kind, cause.Issue, cause.Occurrences, cause.MaxSeverity)
				}
			}
			if len(report.Recommendations) > 0 {
				fmt.Println("\nrecommendations:")
				for _, rec := range report.Recommendations {
					fmt.Printf("  %d. %s\n", rec.Priority, rec.Text)
				}
			}
			return nil
		},
	}
}

func startMetricsServer(a *app) *http.Server {
	if a.cfg.Engine.MetricsAddress == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         a.cfg.Engine.MetricsAddress,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server exited", slog.Any("error", err))
		}
	}()
	return server
}

func shutdownMetricsServer(a *app, server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Warn("metrics server shutdown", slog.Any("error", err))
	}
}
