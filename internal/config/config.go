// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

// Package config loads Watchpost configuration with Koanf v2.
//
// Sources are layered, later ones winning:
//
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH or one of DefaultConfigPaths)
//  3. Environment variables listed in envMappings
//
// Use Load from main; tests can call defaultConfig directly.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Baseline BaselineConfig `koanf:"baseline"`
	Scoring  ScoringConfig  `koanf:"scoring"`
	Rules    RulesConfig    `koanf:"rules"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	// Path is the DuckDB file. Empty means in-memory.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
}

// BaselineConfig configures the pattern learner.
type BaselineConfig struct {
	// MinSamples is the number of samples a pattern needs before it is scored against.
	MinSamples int64 `koanf:"min_samples" validate:"min=1"`

	// Timezone fixes the hour and weekday buckets for the deployment.
	Timezone string `koanf:"timezone" validate:"required,timezone"`

	// Store selects the pattern backend: duckdb or badger.
	Store      string `koanf:"store" validate:"oneof=duckdb badger"`
	BadgerPath string `koanf:"badger_path"`

	// MaxFutureSkew is how far ahead of the clock an event timestamp may be.
	MaxFutureSkew time.Duration `koanf:"max_future_skew"`
}

// ScoringConfig holds the anomaly scoring policy.
type ScoringConfig struct {
	TimingWeight    float64 `koanf:"timing_weight" validate:"gte=0,lte=1"`
	DayWeight       float64 `koanf:"day_weight" validate:"gte=0,lte=1"`
	CategoryWeight  float64 `koanf:"category_weight" validate:"gte=0,lte=1"`
	MediumThreshold float64 `koanf:"medium_threshold" validate:"gt=0,lt=1"`
	HighThreshold   float64 `koanf:"high_threshold" validate:"gt=0,lt=1"`
	PersistScores   bool    `koanf:"persist_scores"`
}

// RulesConfig configures the rule engine.
type RulesConfig struct {
	DefaultCooldown time.Duration `koanf:"default_cooldown"`
	CacheTTL        time.Duration `koanf:"cache_ttl"`
}

// DispatchConfig configures delivery channels.
type DispatchConfig struct {
	InAppTimeout   time.Duration `koanf:"in_app_timeout"`
	PushTimeout    time.Duration `koanf:"push_timeout"`
	WebhookTimeout time.Duration `koanf:"webhook_timeout"`
	MaxTimeout     time.Duration `koanf:"max_timeout"`

	WebhookUserAgent string  `koanf:"webhook_user_agent"`
	WebhookRateLimit float64 `koanf:"webhook_rate_limit" validate:"gte=0"`
	WebhookBurst     int     `koanf:"webhook_burst" validate:"gte=0"`

	BreakerMaxRequests  uint32        `koanf:"breaker_max_requests"`
	BreakerInterval     time.Duration `koanf:"breaker_interval"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio" validate:"gt=0,lte=1"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`

	PushSubject string `koanf:"push_subject"`
}

// IngestConfig configures event intake.
type IngestConfig struct {
	DedupCapacity int           `koanf:"dedup_capacity" validate:"min=1"`
	DedupTTL      time.Duration `koanf:"dedup_ttl"`

	NATSEnabled bool   `koanf:"nats_enabled"`
	NATSURL     string `koanf:"nats_url"`
	Subject     string `koanf:"subject"`
	DurableName string `koanf:"durable_name"`
	QueueGroup  string `koanf:"queue_group"`
	Subscribers int    `koanf:"subscribers" validate:"min=1"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Location returns the deployment location for hour and weekday bucketing.
// Validate guarantees the name loads.
func (c *BaselineConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
