// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

// Package pipeline runs one detection event through the baseline learner, the
// anomaly scorer, the rule engine and the dispatcher.
//
// Processing order per event:
//
//	validate -> dedup -> snapshot baseline -> observe -> score -> evaluate -> dispatch
//
// The score is computed against the snapshot taken before the event is folded
// into the baseline, so an event never lowers its own anomaly score.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/watchpost/internal/baseline"
	"github.com/tomtom215/watchpost/internal/cache"
	"github.com/tomtom215/watchpost/internal/logging"
	"github.com/tomtom215/watchpost/internal/metrics"
	"github.com/tomtom215/watchpost/internal/models"
	"github.com/tomtom215/watchpost/internal/validation"
)

// ErrInvalidEvent is returned by Process for events that fail validation.
var ErrInvalidEvent = errors.New("invalid event")

// ErrInterrupted is returned by Process when ctx ends before every rule was
// evaluated. The event id is not remembered, so the event can be resubmitted.
var ErrInterrupted = errors.New("event processing interrupted")

// Baseline is the part of the learner the processor uses.
type Baseline interface {
	GetPattern(ctx context.Context, sourceID string) (*models.ActivityPattern, error)
	Observe(ctx context.Context, sourceID string, ts time.Time, categories []string) error
}

// Scorer scores an event against a pattern snapshot.
type Scorer interface {
	Score(event *models.Event, pattern *models.ActivityPattern) (models.AnomalyScore, bool)
}

// ScoreSaver persists computed scores.
type ScoreSaver interface {
	SaveScore(ctx context.Context, score *models.AnomalyScore) error
}

// RuleEvaluator returns the rules an event triggers.
type RuleEvaluator interface {
	EvaluateEvent(ctx context.Context, event *models.Event) ([]models.Rule, error)
}

// Dispatcher delivers one triggered rule.
type Dispatcher interface {
	Dispatch(ctx context.Context, rule *models.Rule, event *models.Event) models.DeliveryOutcome
}

// Config configures a Processor.
type Config struct {
	// DedupCapacity and DedupTTL bound the event-id duplicate window.
	DedupCapacity int
	DedupTTL      time.Duration
}

// Deps are the stages a Processor runs. Scores is optional.
type Deps struct {
	Baseline   Baseline
	Scorer     Scorer
	Scores     ScoreSaver
	Rules      RuleEvaluator
	Dispatcher Dispatcher
}

// Result is what happened to one event.
type Result struct {
	Event *models.Event `json:"event"`

	// Score is nil when the baseline had too few samples.
	Score        *models.AnomalyScore `json:"score,omitempty"`
	Insufficient bool                 `json:"insufficient_data"`

	Outcomes  []models.DeliveryOutcome `json:"outcomes"`
	Duplicate bool                     `json:"duplicate,omitempty"`
}

// Processor is safe for concurrent use.
type Processor struct {
	deps Deps
	seen *cache.LRU[struct{}]
}

// NewProcessor creates a Processor.
func NewProcessor(deps Deps, cfg Config) *Processor {
	return &Processor{
		deps: deps,
		seen: cache.NewLRU[struct{}](cfg.DedupCapacity, cfg.DedupTTL),
	}
}

// Process runs event through the pipeline. An error is returned for events
// that fail validation and, wrapping ErrInterrupted, when ctx ends before the
// rules were evaluated. Other stage failures are logged and processing
// continues with what is available.
func (p *Processor) Process(ctx context.Context, event *models.Event) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.EventProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	if event == nil {
		metrics.EventsProcessed.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: event is required", ErrInvalidEvent)
	}
	if verr := validation.ValidateStruct(event); verr != nil {
		metrics.EventsProcessed.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, verr)
	}

	ev := *event
	ev.Anomaly = nil
	result := &Result{Event: &ev, Outcomes: []models.DeliveryOutcome{}}

	if p.seen.SeenOrAdd(ev.EventID, struct{}{}) {
		metrics.EventsProcessed.WithLabelValues("duplicate").Inc()
		result.Duplicate = true
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		p.seen.Remove(ev.EventID)
		metrics.EventsProcessed.WithLabelValues("interrupted").Inc()
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	ctx = logging.ContextWithEvent(ctx, ev.EventID, ev.SourceID)
	logger := logging.Ctx(ctx)

	snapshot := p.snapshot(ctx, ev.SourceID)

	if err := p.deps.Baseline.Observe(ctx, ev.SourceID, ev.Timestamp, ev.Categories); err != nil {
		if errors.Is(err, baseline.ErrInvalidTimestamp) {
			logger.Warn().Err(err).Msg("Event not added to baseline")
		} else {
			logger.Error().Err(err).Msg("Baseline update failed")
		}
	}

	if score, ok := p.deps.Scorer.Score(&ev, snapshot); ok {
		ev.Anomaly = &score
		result.Score = &score
		metrics.RecordAnomalyScore(string(score.Severity), score.TotalScore)
		if p.deps.Scores != nil {
			if err := p.deps.Scores.SaveScore(ctx, &score); err != nil {
				logger.Error().Err(err).Msg("Failed to save anomaly score")
			}
		}
	} else {
		result.Insufficient = true
		metrics.AnomalyInsufficientData.Inc()
	}

	triggered, err := p.deps.Rules.EvaluateEvent(ctx, &ev)
	if err != nil {
		logger.Error().Err(err).Msg("Rule evaluation incomplete")
	}

	// Claimed rules have consumed their cooldown, so they are delivered even
	// though the event is handed back for resubmission.
	if cerr := ctx.Err(); cerr != nil {
		p.seen.Remove(ev.EventID)
		p.dispatch(context.WithoutCancel(ctx), triggered, &ev)
		metrics.EventsProcessed.WithLabelValues("interrupted").Inc()
		logger.Warn().Err(cerr).Msg("Event processing interrupted before rule evaluation finished")
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, cerr)
	}

	result.Outcomes = p.dispatch(ctx, triggered, &ev)
	metrics.EventsProcessed.WithLabelValues("processed").Inc()
	return result, nil
}

// snapshot returns the source's pattern before this event, or nil.
func (p *Processor) snapshot(ctx context.Context, sourceID string) *models.ActivityPattern {
	pattern, err := p.deps.Baseline.GetPattern(ctx, sourceID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			logging.Ctx(ctx).Warn().Err(err).Msg("Baseline snapshot unavailable")
		}
		return nil
	}
	return pattern
}

// dispatch fans the triggered rules out in parallel and logs each outcome.
func (p *Processor) dispatch(ctx context.Context, triggered []models.Rule, ev *models.Event) []models.DeliveryOutcome {
	outcomes := make([]models.DeliveryOutcome, len(triggered))
	if len(triggered) == 0 {
		return outcomes
	}

	var wg sync.WaitGroup
	for i := range triggered {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = p.deps.Dispatcher.Dispatch(ctx, &triggered[i], ev)
		}(i)
	}
	wg.Wait()

	logger := logging.Ctx(ctx)
	for i := range outcomes {
		o := &outcomes[i]
		for channel, cause := range o.Errors {
			logger.Warn().
				Str("rule_id", o.RuleID).
				Str("channel", string(channel)).
				Str("cause", cause).
				Msg("Alert delivery failed")
		}
		if o.Success() {
			logger.Info().
				Str("rule_id", o.RuleID).
				Int("delivered", len(o.ChannelsSucceeded)).
				Int("attempted", len(o.ChannelsAttempted)).
				Msg("Alert dispatched")
		} else {
			logger.Error().
				Str("rule_id", o.RuleID).
				Int("attempted", len(o.ChannelsAttempted)).
				Msg("Alert not delivered on any channel")
		}
	}
	return outcomes
}
