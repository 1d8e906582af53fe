package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the evaluation engine.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Target  TargetConfig  `yaml:"target"`
	Store   StoreConfig   `yaml:"store"`
	Traces  TracesConfig  `yaml:"traces"`
	Events  EventsConfig  `yaml:"events"`
	Catalog CatalogConfig `yaml:"catalog"`
	Logging LoggingConfig `yaml:"logging"`
	Cache   CacheConfig   `yaml:"cache"`
}

// EngineConfig controls campaign scheduling limits.
type EngineConfig struct {
	MetricsAddress      string        `yaml:"metricsAddress"`
	MaxActiveCampaigns  int           `yaml:"maxActiveCampaigns"`
	DefaultTurnWorkers  int           `yaml:"defaultTurnWorkers"`
	DefaultMaxTurns     int           `yaml:"defaultMaxTurns"`
	CampaignDeadline    time.Duration `yaml:"campaignDeadline"`
	GoalProgressDefault float64       `yaml:"goalProgressDefault"`
	EscalationDefault   float64       `yaml:"escalationDefault"`
}

// TargetConfig configures access to the conversational system under evaluation.
type TargetConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"maxRetries"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	MaxBackoff  time.Duration `yaml:"maxBackoff"`
}

// StoreConfig selects the campaign document store backend.
type StoreConfig struct {
	Backend   string `yaml:"backend"` // "memory" or "firestore"
	ProjectID string `yaml:"projectID"`
}

// TracesConfig configures retrieval of distributed trace documents.
type TracesConfig struct {
	Backend string `yaml:"backend"` // "none" or "xray"
	Region  string `yaml:"region"`
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	Backend   string `yaml:"backend"` // "none" or "pubsub"
	ProjectID string `yaml:"projectID"`
	Topic     string `yaml:"topic"`
}

// CatalogConfig controls persona and attack-plan pack loading.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls caching of trace documents. Enabled without an
// Addr selects the in-process memory cache; with an Addr, Valkey.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	TraceTTL     time.Duration `yaml:"traceTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ARBITER_EVAL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			MetricsAddress:      ":2112",
			MaxActiveCampaigns:  4,
			DefaultTurnWorkers:  3,
			DefaultMaxTurns:     10,
			CampaignDeadline:    30 * time.Minute,
			GoalProgressDefault: 0.9,
			EscalationDefault:   0.8,
		},
		Target: TargetConfig{
			Timeout:     30 * time.Second,
			MaxRetries:  2,
			BaseBackoff: 200 * time.Millisecond,
			MaxBackoff:  2 * time.Second,
		},
		Store:   StoreConfig{Backend: "memory"},
		Traces:  TracesConfig{Backend: "none", Region: "us-east-1"},
		Events:  EventsConfig{Backend: "none", Topic: "eval-campaign-events"},
		Catalog: CatalogConfig{Path: "configs/catalog/default.yaml"},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			TraceTTL:     10 * time.Minute,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ARBITER_EVAL_METRICS_ADDRESS"); v != "" {
		cfg.Engine.MetricsAddress = v
	}
	if v := os.Getenv("ARBITER_EVAL_MAX_ACTIVE_CAMPAIGNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxActiveCampaigns = n
		}
	}
	if v := os.Getenv("ARBITER_EVAL_TURN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.DefaultTurnWorkers = n
		}
	}
	if v := os.Getenv("ARBITER_EVAL_CAMPAIGN_DEADLINE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.CampaignDeadline = d
		}
	}
	if v := os.Getenv("ARBITER_EVAL_TARGET_ENDPOINT"); v != "" {
		cfg.Target.Endpoint = v
	}
	if v := os.Getenv("ARBITER_EVAL_TARGET_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Target.Timeout = d
		}
	}
	if v := os.Getenv("ARBITER_EVAL_TARGET_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Target.MaxRetries = n
		}
	}
	if v := os.Getenv("ARBITER_EVAL_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("ARBITER_EVAL_STORE_PROJECT_ID"); v != "" {
		cfg.Store.ProjectID = v
	}
	if v := os.Getenv("ARBITER_EVAL_TRACES_BACKEND"); v != "" {
		cfg.Traces.Backend = v
	}
	if v := os.Getenv("ARBITER_EVAL_TRACES_REGION"); v != "" {
		cfg.Traces.Region = v
	}
	if v := os.Getenv("ARBITER_EVAL_EVENTS_BACKEND"); v != "" {
		cfg.Events.Backend = v
	}
	if v := os.Getenv("ARBITER_EVAL_EVENTS_PROJECT_ID"); v != "" {
		cfg.Events.ProjectID = v
	}
	if v := os.Getenv("ARBITER_EVAL_EVENTS_TOPIC"); v != "" {
		cfg.Events.Topic = v
	}
	if v := os.Getenv("ARBITER_EVAL_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("ARBITER_EVAL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ARBITER_EVAL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("ARBITER_EVAL_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("ARBITER_EVAL_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("ARBITER_EVAL_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("ARBITER_EVAL_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("ARBITER_EVAL_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("ARBITER_EVAL_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("ARBITER_EVAL_CACHE_TRACE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TraceTTL = d
		}
	}
}
