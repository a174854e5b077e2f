// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/watchpost/internal/cache"
	"github.com/tomtom215/watchpost/internal/logging"
	"github.com/tomtom215/watchpost/internal/metrics"
	"github.com/tomtom215/watchpost/internal/models"
)

const enabledRulesKey = "enabled"

// RuleStore is the persistence the engine needs.
type RuleStore interface {
	ListEnabledRules(ctx context.Context) ([]models.Rule, error)

	// ClaimTrigger atomically records a trigger at now if the rule is
	// enabled and its cooldown has elapsed, and returns the stored trigger
	// count. false means suppressed.
	ClaimTrigger(ctx context.Context, id string, now time.Time, cooldown time.Duration) (int64, bool, error)
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Location is the deployment time zone for time window and weekday conditions.
	Location *time.Location

	// CacheTTL is how long the enabled rule set is reused. Zero disables caching.
	CacheTTL time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Engine evaluates events against rules and claims the cooldown of each
// matching rule.
type Engine struct {
	store    RuleStore
	loc      *time.Location
	now      func() time.Time
	enabled  *cache.LRU[[]models.Rule]
	cacheTTL time.Duration
	logger   zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates an Engine.
func NewEngine(store RuleStore, cfg EngineConfig) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Engine{
		store:    store,
		loc:      cfg.Location,
		now:      cfg.Now,
		cacheTTL: cfg.CacheTTL,
		logger:   logging.WithComponent("rules"),
		locks:    make(map[string]*sync.Mutex),
	}
	if cfg.CacheTTL > 0 {
		e.enabled = cache.NewLRU[[]models.Rule](1, cfg.CacheTTL)
	}
	return e
}

// EnabledRules returns the enabled rules, from cache when fresh. Corrupt
// rows are logged by the store and left out; the remaining rules are still
// returned.
func (e *Engine) EnabledRules(ctx context.Context) ([]models.Rule, error) {
	if e.enabled != nil {
		if rules, ok := e.enabled.Get(enabledRulesKey); ok {
			return rules, nil
		}
	}

	rules, err := e.store.ListEnabledRules(ctx)
	if err != nil && rules == nil {
		return nil, fmt.Errorf("load enabled rules: %w", err)
	}
	if err != nil {
		e.logger.Error().Err(err).Int("loaded", len(rules)).Msg("Some rules could not be loaded")
	}
	if e.enabled != nil {
		e.enabled.Add(enabledRulesKey, rules)
	}
	return rules, nil
}

// Invalidate drops the cached rule set. The rule service calls it after
// every mutation.
func (e *Engine) Invalidate() {
	if e.enabled != nil {
		e.enabled.Purge()
	}
}

// Forget drops the in-process lock for a deleted rule.
func (e *Engine) Forget(ruleID string) {
	e.mu.Lock()
	delete(e.locks, ruleID)
	e.mu.Unlock()
}

// EvaluateEvent loads the enabled rules and evaluates event against them.
func (e *Engine) EvaluateEvent(ctx context.Context, event *models.Event) ([]models.Rule, error) {
	rules, err := e.EnabledRules(ctx)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, event, rules), nil
}

// Evaluate returns the rules that match event and whose trigger was claimed,
// in input order. Each returned copy carries the new trigger time and count.
//
// Disabled and malformed rules are skipped, a rule that panics is logged and
// skipped, and a rule inside its cooldown is suppressed. Once ctx is done no
// further rules are claimed.
func (e *Engine) Evaluate(ctx context.Context, event *models.Event, rules []models.Rule) []models.Rule {
	var claimed []models.Rule
	for i := range rules {
		if err := ctx.Err(); err != nil {
			e.logger.Warn().
				Err(err).
				Str("event_id", event.EventID).
				Int("remaining", len(rules)-i).
				Msg("Rule evaluation stopped")
			break
		}
		if rule, ok := e.evaluateRule(ctx, event, &rules[i]); ok {
			claimed = append(claimed, rule)
		}
	}
	return claimed
}

func (e *Engine) evaluateRule(ctx context.Context, event *models.Event, rule *models.Rule) (out models.Rule, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RuleEvaluations.WithLabelValues("error").Inc()
			e.logger.Error().
				Str("rule_id", rule.ID).
				Str("event_id", event.EventID).
				Interface("panic", r).
				Msg("Rule evaluation panicked")
			out, ok = models.Rule{}, false
		}
	}()

	if !rule.Enabled {
		return models.Rule{}, false
	}
	if err := checkRunnable(rule); err != nil {
		metrics.RuleEvaluations.WithLabelValues("skipped").Inc()
		e.logger.Warn().Err(err).Str("rule_id", rule.ID).Msg("Skipping malformed rule")
		return models.Rule{}, false
	}
	if !Matches(&rule.Conditions, event, e.loc) {
		return models.Rule{}, false
	}
	metrics.RuleEvaluations.WithLabelValues("matched").Inc()

	lock := e.lockFor(rule.ID)
	lock.Lock()
	defer lock.Unlock()

	now := e.now()

	// A snapshot can only lag the stored trigger time, so a snapshot still
	// inside its cooldown is certainly suppressed.
	if !rule.CooldownClear(now) {
		metrics.RuleEvaluations.WithLabelValues("suppressed").Inc()
		return models.Rule{}, false
	}

	count, won, err := e.store.ClaimTrigger(ctx, rule.ID, now, rule.Cooldown())
	if err != nil {
		metrics.RuleEvaluations.WithLabelValues("error").Inc()
		e.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("Failed to claim rule trigger")
		return models.Rule{}, false
	}
	if !won {
		metrics.RuleEvaluations.WithLabelValues("suppressed").Inc()
		e.logger.Debug().
			Str("rule_id", rule.ID).
			Str("event_id", event.EventID).
			Msg("Rule suppressed by cooldown")
		return models.Rule{}, false
	}

	metrics.RuleEvaluations.WithLabelValues("claimed").Inc()
	out = *rule
	triggered := now
	out.LastTriggeredAt = &triggered
	out.TriggerCount = count
	return out, true
}

func (e *Engine) lockFor(ruleID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[ruleID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[ruleID] = l
	}
	return l
}
