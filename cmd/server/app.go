// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/watchpost/internal/anomaly"
	"github.com/tomtom215/watchpost/internal/api"
	"github.com/tomtom215/watchpost/internal/baseline"
	"github.com/tomtom215/watchpost/internal/config"
	"github.com/tomtom215/watchpost/internal/dispatch"
	"github.com/tomtom215/watchpost/internal/logging"
	"github.com/tomtom215/watchpost/internal/models"
	"github.com/tomtom215/watchpost/internal/pipeline"
	"github.com/tomtom215/watchpost/internal/rules"
	"github.com/tomtom215/watchpost/internal/storage"
	"github.com/tomtom215/watchpost/internal/supervisor"
	"github.com/tomtom215/watchpost/internal/supervisor/services"
	"github.com/tomtom215/watchpost/internal/websocket"
)

// app holds the wired components and the resources to release on exit.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	store     *storage.DuckDBStore
	processor *pipeline.Processor
	hub       *websocket.Hub
	server    *http.Server
	ingestor  *pipeline.Ingestor
	closers   []func() error
}

// newApp opens the stores and wires the pipeline and API from cfg.
func newApp(cfg *config.Config) (*app, error) {
	db, err := storage.Open(cfg.Database.Path, cfg.Database.MaxMemory)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, db: db, hub: websocket.NewHub(), closers: []func() error{db.Close}}

	a.store = storage.NewDuckDBStore(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.store.InitSchema(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	var patterns baseline.PatternStore = a.store
	if cfg.Baseline.Store == "badger" {
		bs, err := storage.OpenBadgerPatternStore(cfg.Baseline.BadgerPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, bs.Close)
		patterns = bs
	}

	loc := cfg.Baseline.Location()
	learner := baseline.NewLearner(patterns, baseline.Config{
		Location:      loc,
		MaxFutureSkew: cfg.Baseline.MaxFutureSkew,
	})
	scorer, err := anomaly.NewScorer(anomaly.Config{
		Weights: anomaly.Weights{
			Timing:   cfg.Scoring.TimingWeight,
			Day:      cfg.Scoring.DayWeight,
			Category: cfg.Scoring.CategoryWeight,
		},
		Thresholds: anomaly.Thresholds{
			Medium: cfg.Scoring.MediumThreshold,
			High:   cfg.Scoring.HighThreshold,
		},
		MinSamples: cfg.Baseline.MinSamples,
		Location:   loc,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	engine := rules.NewEngine(a.store, rules.EngineConfig{Location: loc, CacheTTL: cfg.Rules.CacheTTL})
	registry := a.channels()
	ruleService := rules.NewService(a.store, engine, registry, cfg.Rules.DefaultCooldown)

	deps := pipeline.Deps{
		Baseline:   learner,
		Scorer:     scorer,
		Rules:      engine,
		Dispatcher: dispatch.NewDispatcher(registry, dispatchConfig(&cfg.Dispatch)),
	}
	if cfg.Scoring.PersistScores {
		deps.Scores = a.store
	}
	a.processor = pipeline.NewProcessor(deps, pipeline.Config{
		DedupCapacity: cfg.Ingest.DedupCapacity,
		DedupTTL:      cfg.Ingest.DedupTTL,
	})

	handler := api.NewHandler(api.Deps{
		Processor:     a.processor,
		Rules:         ruleService,
		Baselines:     learner,
		Scores:        a.store,
		Notifications: a.store,
		DB:            a.store,
		Version:       version,
		Stream:        websocket.NewHandler(a.hub, cfg.Server.CORSOrigins),
	})
	chiCfg := api.DefaultChiMiddlewareConfig()
	chiCfg.CORSAllowedOrigins = cfg.Server.CORSOrigins
	chiCfg.RateLimitRequests = cfg.Server.RateLimitReqs
	chiCfg.RateLimitWindow = cfg.Server.RateLimitWindow

	a.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           api.NewRouter(handler, chiCfg).Setup(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	if cfg.Ingest.NATSEnabled {
		a.ingestor = pipeline.NewIngestor(pipeline.IngestConfig{
			URL:         cfg.Ingest.NATSURL,
			Subject:     cfg.Ingest.Subject,
			DurableName: cfg.Ingest.DurableName,
			QueueGroup:  cfg.Ingest.QueueGroup,
			Subscribers: cfg.Ingest.Subscribers,
		}, pipeline.NewEventHandler(a.processor, nil))
	}
	return a, nil
}

// channels builds the delivery channel registry. Push goes through NATS when
// ingest NATS is enabled; otherwise push actions are rejected when rules are
// saved.
func (a *app) channels() *dispatch.Registry {
	d := &a.cfg.Dispatch
	registry := dispatch.NewRegistry(
		dispatch.NewInAppChannel(a.store).WithBroadcaster(a.hub),
		dispatch.NewWebhookChannel(dispatch.WebhookConfig{
			UserAgent: d.WebhookUserAgent,
			RateLimit: d.WebhookRateLimit,
			Burst:     d.WebhookBurst,
		}),
	)

	var sender dispatch.PushSender
	if a.cfg.Ingest.NATSEnabled {
		ns, err := dispatch.NewNATSPushSender(a.cfg.Ingest.NATSURL, d.PushSubject)
		if err != nil {
			logging.Warn().Err(err).Msg("Push channel disabled")
		} else {
			sender = ns
			a.closers = append(a.closers, ns.Close)
		}
	}
	registry.Register(dispatch.NewPushChannel(sender))
	return registry
}

func dispatchConfig(d *config.DispatchConfig) dispatch.Config {
	return dispatch.Config{
		Timeouts: map[models.ChannelKind]time.Duration{
			models.ChannelInApp:   d.InAppTimeout,
			models.ChannelPush:    d.PushTimeout,
			models.ChannelWebhook: d.WebhookTimeout,
		},
		MaxTimeout: d.MaxTimeout,
		Breaker: dispatch.BreakerConfig{
			MaxRequests:  d.BreakerMaxRequests,
			Interval:     d.BreakerInterval,
			Timeout:      d.BreakerTimeout,
			FailureRatio: d.BreakerFailureRatio,
			MinRequests:  d.BreakerMinRequests,
		},
	}
}

// register adds the long-lived services to the supervisor tree.
func (a *app) register(tree *supervisor.SupervisorTree) {
	tree.AddAPIService(a.hub)
	tree.AddAPIService(services.NewHTTPServerService(a.server, a.cfg.Server.ShutdownTimeout))
	if a.ingestor != nil {
		tree.AddIngestService(a.ingestor)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Error().Err(err).Msg("Error during shutdown")
		}
	}
	a.closers = nil
}
