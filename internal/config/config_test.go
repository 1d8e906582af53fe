package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.MetricsAddress != ":2112" {
		t.Fatalf("expected default metrics address, got %q", cfg.Engine.MetricsAddress)
	}
	if cfg.Engine.MaxActiveCampaigns != 4 || cfg.Engine.DefaultTurnWorkers != 3 {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.Engine.CampaignDeadline != 30*time.Minute {
		t.Fatalf("expected 30m campaign deadline, got %v", cfg.Engine.CampaignDeadline)
	}
	if cfg.Store.Backend != "memory" {
		t.Fatalf("expected memory store backend, got %q", cfg.Store.Backend)
	}
	if cfg.Traces.Backend != "none" || cfg.Traces.Region != "us-east-1" {
		t.Fatalf("unexpected traces defaults: %+v", cfg.Traces)
	}
	if cfg.Events.Topic != "eval-campaign-events" {
		t.Fatalf("unexpected events topic: %q", cfg.Events.Topic)
	}
	if cfg.Target.Timeout != 30*time.Second || cfg.Target.MaxRetries != 2 {
		t.Fatalf("unexpected target defaults: %+v", cfg.Target)
	}
	if cfg.Cache.Enabled {
		t.Fatalf("expected cache disabled by default")
	}
	if cfg.Cache.TraceTTL != 10*time.Minute {
		t.Fatalf("expected 10m trace TTL, got %v", cfg.Cache.TraceTTL)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	content := `
engine:
  metricsAddress: ":9200"
  maxActiveCampaigns: 8
  campaignDeadline: 5m
target:
  endpoint: "http://target.local/chat"
  timeout: 10s
store:
  backend: firestore
  projectID: eval-project
traces:
  backend: xray
  region: eu-west-1
logging:
  level: debug
  json: true
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.MetricsAddress != ":9200" || cfg.Engine.MaxActiveCampaigns != 8 {
		t.Fatalf("yaml engine overrides not applied: %+v", cfg.Engine)
	}
	if cfg.Engine.CampaignDeadline != 5*time.Minute {
		t.Fatalf("expected 5m deadline, got %v", cfg.Engine.CampaignDeadline)
	}
	if cfg.Target.Endpoint != "http://target.local/chat" || cfg.Target.Timeout != 10*time.Second {
		t.Fatalf("yaml target overrides not applied: %+v", cfg.Target)
	}
	if cfg.Store.Backend != "firestore" || cfg.Store.ProjectID != "eval-project" {
		t.Fatalf("yaml store overrides not applied: %+v", cfg.Store)
	}
	if cfg.Traces.Backend != "xray" || cfg.Traces.Region != "eu-west-1" {
		t.Fatalf("yaml traces overrides not applied: %+v", cfg.Traces)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Fatalf("yaml logging overrides not applied: %+v", cfg.Logging)
	}
	// Fields the file does not mention keep their defaults.
	if cfg.Engine.DefaultTurnWorkers != 3 {
		t.Fatalf("expected untouched default turn workers, got %d", cfg.Engine.DefaultTurnWorkers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("engine: [not a map"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBITER_EVAL_TARGET_ENDPOINT", "http://env.local/chat")
	t.Setenv("ARBITER_EVAL_MAX_ACTIVE_CAMPAIGNS", "12")
	t.Setenv("ARBITER_EVAL_CAMPAIGN_DEADLINE", "90s")
	t.Setenv("ARBITER_EVAL_STORE_BACKEND", "firestore")
	t.Setenv("ARBITER_EVAL_TRACES_BACKEND", "xray")
	t.Setenv("ARBITER_EVAL_LOG_FORMAT", "json")
	t.Setenv("ARBITER_EVAL_CACHE_ENABLED", "true")
	t.Setenv("ARBITER_EVAL_CACHE_TRACE_TTL", "1m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Target.Endpoint != "http://env.local/chat" {
		t.Fatalf("endpoint override not applied: %q", cfg.Target.Endpoint)
	}
	if cfg.Engine.MaxActiveCampaigns != 12 {
		t.Fatalf("campaign limit override not applied: %d", cfg.Engine.MaxActiveCampaigns)
	}
	if cfg.Engine.CampaignDeadline != 90*time.Second {
		t.Fatalf("deadline override not applied: %v", cfg.Engine.CampaignDeadline)
	}
	if cfg.Store.Backend != "firestore" || cfg.Traces.Backend != "xray" {
		t.Fatalf("backend overrides not applied: store=%q traces=%q", cfg.Store.Backend, cfg.Traces.Backend)
	}
	if !cfg.Logging.JSON {
		t.Fatalf("log format override not applied")
	}
	if !cfg.Cache.Enabled || cfg.Cache.TraceTTL != time.Minute {
		t.Fatalf("cache overrides not applied: %+v", cfg.Cache)
	}
}

func TestEnvOverridesIgnoreInvalidValues(t *testing.T) {
	t.Setenv("ARBITER_EVAL_MAX_ACTIVE_CAMPAIGNS", "not-a-number")
	t.Setenv("ARBITER_EVAL_CAMPAIGN_DEADLINE", "soon")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.MaxActiveCampaigns != 4 {
		t.Fatalf("invalid int should keep default, got %d", cfg.Engine.MaxActiveCampaigns)
	}
	if cfg.Engine.CampaignDeadline != 30*time.Minute {
		t.Fatalf("invalid duration should keep default, got %v", cfg.Engine.CampaignDeadline)
	}
}
