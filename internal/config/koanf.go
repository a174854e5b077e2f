// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is not set.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/watchpost/config.yaml",
	"/etc/watchpost/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8470,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path:      "/data/watchpost.duckdb",
			MaxMemory: "1GB",
		},
		Baseline: BaselineConfig{
			MinSamples:    50,
			Timezone:      "UTC",
			Store:         "duckdb",
			BadgerPath:    "/data/baselines",
			MaxFutureSkew: 5 * time.Minute,
		},
		Scoring: ScoringConfig{
			TimingWeight:    0.4,
			DayWeight:       0.2,
			CategoryWeight:  0.4,
			MediumThreshold: 0.3,
			HighThreshold:   0.6,
			PersistScores:   true,
		},
		Rules: RulesConfig{
			DefaultCooldown: 5 * time.Minute,
			CacheTTL:        10 * time.Second,
		},
		Dispatch: DispatchConfig{
			InAppTimeout:        5 * time.Second,
			PushTimeout:         10 * time.Second,
			WebhookTimeout:      15 * time.Second,
			MaxTimeout:          30 * time.Second,
			WebhookUserAgent:    "Watchpost-Webhook/1.0",
			WebhookRateLimit:    5,
			WebhookBurst:        10,
			BreakerMaxRequests:  1,
			BreakerInterval:     time.Minute,
			BreakerTimeout:      30 * time.Second,
			BreakerFailureRatio: 0.6,
			BreakerMinRequests:  5,
			PushSubject:         "watchpost.push",
		},
		Ingest: IngestConfig{
			DedupCapacity: 100000,
			DedupTTL:      time.Hour,
			NATSEnabled:   false,
			NATSURL:       "nats://127.0.0.1:4222",
			Subject:       "watchpost.events",
			DurableName:   "watchpost-processor",
			QueueGroup:    "watchpost",
			Subscribers:   4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file and the
// environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			continue
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	// Server
	"http_host":          "server.host",
	"http_port":          "server.port",
	"http_read_timeout":  "server.read_timeout",
	"http_write_timeout": "server.write_timeout",
	"shutdown_timeout":   "server.shutdown_timeout",
	"cors_origins":       "server.cors_origins",
	"rate_limit_reqs":    "server.rate_limit_reqs",
	"rate_limit_window":  "server.rate_limit_window",

	// Database
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",

	// Baseline
	"baseline_min_samples":     "baseline.min_samples",
	"baseline_timezone":        "baseline.timezone",
	"baseline_store":           "baseline.store",
	"baseline_badger_path":     "baseline.badger_path",
	"baseline_max_future_skew": "baseline.max_future_skew",

	// Scoring
	"scoring_timing_weight":    "scoring.timing_weight",
	"scoring_day_weight":       "scoring.day_weight",
	"scoring_category_weight":  "scoring.category_weight",
	"scoring_medium_threshold": "scoring.medium_threshold",
	"scoring_high_threshold":   "scoring.high_threshold",
	"scoring_persist":          "scoring.persist_scores",

	// Rules
	"rules_default_cooldown": "rules.default_cooldown",
	"rules_cache_ttl":        "rules.cache_ttl",

	// Dispatch
	"dispatch_in_app_timeout":        "dispatch.in_app_timeout",
	"dispatch_push_timeout":          "dispatch.push_timeout",
	"dispatch_webhook_timeout":       "dispatch.webhook_timeout",
	"dispatch_max_timeout":           "dispatch.max_timeout",
	"webhook_user_agent":             "dispatch.webhook_user_agent",
	"webhook_rate_limit":             "dispatch.webhook_rate_limit",
	"webhook_burst":                  "dispatch.webhook_burst",
	"dispatch_breaker_timeout":       "dispatch.breaker_timeout",
	"dispatch_breaker_failure_ratio": "dispatch.breaker_failure_ratio",
	"push_subject":                   "dispatch.push_subject",

	// Ingest
	"dedup_capacity":    "ingest.dedup_capacity",
	"dedup_ttl":         "ingest.dedup_ttl",
	"nats_enabled":      "ingest.nats_enabled",
	"nats_url":          "ingest.nats_url",
	"nats_subject":      "ingest.subject",
	"nats_durable_name": "ingest.durable_name",
	"nats_queue_group":  "ingest.queue_group",
	"nats_subscribers":  "ingest.subscribers",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps known environment variables to config paths.
// Unmapped variables return "" and are ignored.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - BASELINE_MIN_SAMPLES -> baseline.min_samples
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
