// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

// Package main is the entry point for the watchpost server.
//
// Watchpost learns when each camera normally sees activity, scores incoming
// detection events against that baseline, and fans alerts out to in-app,
// push and webhook channels when a user rule matches.
//
// The server initializes components in the following order:
//
//  1. Configuration (koanf: defaults, optional YAML file, environment)
//  2. Logging (zerolog)
//  3. DuckDB store, plus Badger when baseline.store is badger
//  4. Baseline learner, scorer, rule engine and dispatcher
//  5. Event pipeline and HTTP API
//  6. Supervisor tree with the HTTP server and, when enabled, NATS ingest
//
// # Build Tags
//
//	go build ./cmd/server                 # HTTP ingest only
//	go build -tags nats ./cmd/server      # NATS JetStream ingest and push
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the supervisor tree. The HTTP server drains
// in-flight requests within server.shutdown_timeout before the stores close.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/watchpost/internal/config"
	"github.com/tomtom215/watchpost/internal/logging"
	"github.com/tomtom215/watchpost/internal/supervisor"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Str("baseline_store", cfg.Baseline.Store).
		Str("timezone", cfg.Baseline.Timezone).
		Bool("nats_enabled", cfg.Ingest.NATSEnabled).
		Msg("Starting watchpost")

	app, err := newApp(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer app.Close()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	app.register(tree)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}
	logging.Info().Msg("Watchpost stopped")
}
