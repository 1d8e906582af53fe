package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/arbiterstack/arbiter-eval/internal/agents"
	"github.com/arbiterstack/arbiter-eval/internal/cache"
	"github.com/arbiterstack/arbiter-eval/internal/campaign"
	"github.com/arbiterstack/arbiter-eval/internal/config"
	"github.com/arbiterstack/arbiter-eval/internal/metrics"
	"github.com/arbiterstack/arbiter-eval/internal/repo"
	"github.com/arbiterstack/arbiter-eval/internal/utils"
)

// app carries the wired collaborators shared by all subcommands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *campaign.Engine
	cleanup []func()
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "eval-engine",
		Short:         "Run automated evaluation campaigns against a conversational target",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")

	root.AddCommand(
		newCreateCommand(&configPath),
		newStartCommand(&configPath),
		newPauseCommand(&configPath),
		newListCommand(&configPath),
		newDeleteCommand(&configPath),
		newResultsCommand(&configPath),
		newReportCommand(&configPath),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// newApp loads config and wires the engine with the configured backends.
// Unconfigured backends degrade to in-process substitutes so the CLI works
// against a bare target endpoint.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	// An enabled cache without an address runs in-process; with an
	// address it talks to Valkey.
	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr == "" {
		cacheProvider = cache.NewMemoryProvider()
	}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			a.cleanup = append(a.cleanup, func() { _ = provider.Close() })
		}
	}

	var store repo.DocumentStore
	switch cfg.Store.Backend {
	case "firestore":
		fs, err := repo.NewFirestoreStore(ctx, cfg.Store.ProjectID)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect firestore: %w", err)
		}
		a.cleanup = append(a.cleanup, func() { _ = fs.Close() })
		store = fs
	default:
		store = repo.NewMemoryStore()
	}

	var traceStore repo.TraceStore
	if cfg.Traces.Backend == "xray" {
		xs, err := repo.NewXRayTraceStore(ctx, cfg.Traces.Region, cacheProvider, cfg.Cache.TraceTTL, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect x-ray: %w", err)
		}
		traceStore = xs
	}

	var events repo.EventPublisher = repo.NoopPublisher{}
	if cfg.Events.Backend == "pubsub" {
		publisher, err := repo.NewPubSubPublisher(ctx, cfg.Events.ProjectID, cfg.Events.Topic)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		a.cleanup = append(a.cleanup, func() { _ = publisher.Close() })
		events = publisher
	}

	registry, err := agents.NewRegistry(cfg.Catalog.Path, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	a.engine = campaign.NewEngine(store, traceStore, events, registry, nil, nil,
		campaign.Options{
			MaxActiveCampaigns:  cfg.Engine.MaxActiveCampaigns,
			DefaultTurnWorkers:  cfg.Engine.DefaultTurnWorkers,
			DefaultMaxTurns:     cfg.Engine.DefaultMaxTurns,
			CampaignDeadline:    cfg.Engine.CampaignDeadline,
			TargetTimeout:       cfg.Target.Timeout,
			GoalProgressDefault: cfg.Engine.GoalProgressDefault,
			EscalationDefault:   cfg.Engine.EscalationDefault,
			Retry: repo.RetryConfig{
				MaxRetries:  cfg.Target.MaxRetries,
				BaseBackoff: cfg.Target.BaseBackoff,
				MaxBackoff:  cfg.Target.MaxBackoff,
			},
		}, logger)
	return a, nil
}
