// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/watchpost/internal/models"
	"github.com/tomtom215/watchpost/internal/pipeline"
	"github.com/tomtom215/watchpost/internal/rules"
)

// EventProcessor runs one event through the pipeline.
type EventProcessor interface {
	Process(ctx context.Context, event *models.Event) (*pipeline.Result, error)
}

// RuleService manages alert rules.
type RuleService interface {
	Create(ctx context.Context, in rules.RuleInput) (*models.Rule, error)
	Update(ctx context.Context, id string, in rules.RuleInput) (*models.Rule, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Rule, error)
	List(ctx context.Context) ([]models.Rule, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (*models.Rule, error)
}

// Baselines reads, resets and backfills per-source activity patterns.
type Baselines interface {
	GetPattern(ctx context.Context, sourceID string) (*models.ActivityPattern, error)
	RemoveSource(ctx context.Context, sourceID string) error
	ListSources(ctx context.Context) ([]string, error)
	Backfill(ctx context.Context, events []models.Event) (int, error)
}

// ScoreReader reads stored anomaly scores.
type ScoreReader interface {
	GetScore(ctx context.Context, eventID string) (*models.AnomalyScore, error)
	ListScoresBySource(ctx context.Context, sourceID string, limit int) ([]models.AnomalyScore, error)
}

// NotificationReader lists and acknowledges in-app notifications.
type NotificationReader interface {
	ListNotifications(ctx context.Context, limit int, unreadOnly bool) ([]models.InAppNotification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the handlers call.
type Deps struct {
	Processor     EventProcessor
	Rules         RuleService
	Baselines     Baselines
	Scores        ScoreReader
	Notifications NotificationReader
	DB            Pinger
	Version       string

	// Stream serves the live notification websocket. Optional.
	Stream http.Handler
}

// Handler holds the HTTP handlers.
type Handler struct {
	deps      Deps
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) *Handler {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Handler{deps: deps, startTime: time.Now()}
}
