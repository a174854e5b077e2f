// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/watchpost/internal/logging"
	"github.com/tomtom215/watchpost/internal/metrics"
	"github.com/tomtom215/watchpost/internal/models"
)

// Default per-channel timeouts.
const (
	DefaultInAppTimeout   = 5 * time.Second
	DefaultPushTimeout    = 10 * time.Second
	DefaultWebhookTimeout = 15 * time.Second
	DefaultMaxTimeout     = 30 * time.Second
)

// Config configures a Dispatcher.
type Config struct {
	// Timeouts holds the per-kind default timeout.
	Timeouts map[models.ChannelKind]time.Duration

	// MaxTimeout caps per-action timeout overrides.
	MaxTimeout time.Duration

	Breaker BreakerConfig

	// Now overrides the clock in tests.
	Now func() time.Time
}

// DefaultConfig returns the production dispatch settings.
func DefaultConfig() Config {
	return Config{
		Timeouts: map[models.ChannelKind]time.Duration{
			models.ChannelInApp:   DefaultInAppTimeout,
			models.ChannelPush:    DefaultPushTimeout,
			models.ChannelWebhook: DefaultWebhookTimeout,
		},
		MaxTimeout: DefaultMaxTimeout,
		Breaker:    DefaultBreakerConfig(),
	}
}

// Dispatcher fans a triggered rule out to its channels.
type Dispatcher struct {
	registry *Registry
	cfg      Config
	breakers *breakerSet
	now      func() time.Time
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry *Registry, cfg Config) *Dispatcher {
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = DefaultMaxTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		registry: registry,
		cfg:      cfg,
		breakers: newBreakerSet(cfg.Breaker),
		now:      cfg.Now,
		logger:   logging.WithComponent("dispatch"),
	}
}

// Dispatch delivers every action of rule for event and returns once all of
// them have finished.
//
// If ctx is already done nothing is started and every action is recorded as
// canceled. Otherwise each delivery runs under its own timeout on a context
// detached from ctx, so cancellation after the fan-out starts does not cut
// deliveries short.
//
// Outcome keys are the channel kinds. When a rule lists the same kind more
// than once, later occurrences are keyed "<kind>#2", "<kind>#3", and so on.
func (d *Dispatcher) Dispatch(ctx context.Context, rule *models.Rule, event *models.Event) models.DeliveryOutcome {
	labels := actionLabels(rule.Actions)
	outcome := models.DeliveryOutcome{
		RuleID:            rule.ID,
		EventID:           event.EventID,
		ChannelsAttempted: labels,
		ChannelsSucceeded: []models.ChannelKind{},
		Errors:            make(map[models.ChannelKind]string),
		StartedAt:         d.now(),
	}

	if err := ctx.Err(); err != nil {
		for i, label := range labels {
			outcome.Errors[label] = MessageCanceled
			metrics.RecordDelivery(string(rule.Actions[i].Channel), "canceled", 0)
		}
		outcome.CompletedAt = d.now()
		metrics.DispatchesWithoutSuccess.Inc()
		return outcome
	}

	payload := &Payload{RuleID: rule.ID, RuleName: rule.Name, Event: event}
	detached := context.WithoutCancel(ctx)
	results := make([]Result, len(rule.Actions))

	var wg sync.WaitGroup
	for i := range rule.Actions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.deliver(detached, &rule.Actions[i], payload)
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if res.Success {
			outcome.ChannelsSucceeded = append(outcome.ChannelsSucceeded, labels[i])
			continue
		}
		outcome.Errors[labels[i]] = outcomeMessage(res)
	}
	outcome.CompletedAt = d.now()

	if !outcome.Success() && len(rule.Actions) > 0 {
		metrics.DispatchesWithoutSuccess.Inc()
	}
	return outcome
}

// deliver runs one action behind its breaker and timeout.
func (d *Dispatcher) deliver(ctx context.Context, action *models.Action, payload *Payload) Result {
	kind := string(action.Channel)
	start := time.Now()

	ch, ok := d.registry.Get(action.Channel)
	if !ok {
		metrics.RecordDelivery(kind, "failure", 0)
		return failure(ErrorCodeInvalidConfig, "no channel registered for %s", action.Channel)
	}

	dctx, cancel := context.WithTimeout(ctx, d.timeoutFor(action))
	defer cancel()

	cb := d.breakers.get(breakerName(action))
	res, err := cb.Execute(func() (Result, error) {
		r := invoke(dctx, ch, action, payload)
		if !r.Success && r.ErrorCode != ErrorCodeInvalidConfig {
			return r, errDeliveryFailed
		}
		return r, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		res = Result{ErrorCode: ErrorCodeCircuitOpen, ErrorMessage: MessageCircuitOpen, Transient: true}
	}

	result := "success"
	switch {
	case res.Success:
	case res.ErrorCode == ErrorCodeTimeout:
		result = "timeout"
	case res.ErrorCode == ErrorCodeCircuitOpen:
		result = "circuit_open"
	default:
		result = "failure"
	}
	metrics.RecordDelivery(kind, result, time.Since(start))

	if !res.Success {
		d.logger.Debug().
			Str("channel", kind).
			Str("rule_id", payload.RuleID).
			Str("event_id", payload.Event.EventID).
			Str("error_code", res.ErrorCode).
			Str("error", res.ErrorMessage).
			Msg("Delivery failed")
	}
	return res
}

// invoke calls the channel on its own goroutine so a channel that ignores
// ctx cannot hold the fan-out past its deadline. A panic becomes a failure.
func invoke(ctx context.Context, ch Channel, action *models.Action, payload *Payload) Result {
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- failure(ErrorCodePanic, "channel panicked: %v", r)
			}
		}()
		done <- ch.Deliver(ctx, action, payload)
	}()

	select {
	case res := <-done:
		if !res.Success && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{ErrorCode: ErrorCodeTimeout, ErrorMessage: MessageTimeout, Transient: true}
		}
		return res
	case <-ctx.Done():
		return Result{ErrorCode: ErrorCodeTimeout, ErrorMessage: MessageTimeout, Transient: true}
	}
}

// timeoutFor returns the action's override, capped at MaxTimeout, or the
// channel default.
func (d *Dispatcher) timeoutFor(action *models.Action) time.Duration {
	if action.TimeoutSeconds != nil && *action.TimeoutSeconds > 0 {
		t := time.Duration(*action.TimeoutSeconds) * time.Second
		if t > d.cfg.MaxTimeout {
			t = d.cfg.MaxTimeout
		}
		return t
	}
	if t, ok := d.cfg.Timeouts[action.Channel]; ok && t > 0 {
		return t
	}
	return d.cfg.MaxTimeout
}

func actionLabels(actions []models.Action) []models.ChannelKind {
	labels := make([]models.ChannelKind, len(actions))
	seen := make(map[models.ChannelKind]int, len(actions))
	for i, a := range actions {
		seen[a.Channel]++
		if n := seen[a.Channel]; n > 1 {
			labels[i] = models.ChannelKind(fmt.Sprintf("%s#%d", a.Channel, n))
		} else {
			labels[i] = a.Channel
		}
	}
	return labels
}

func outcomeMessage(res Result) string {
	switch res.ErrorCode {
	case ErrorCodeTimeout:
		return MessageTimeout
	case ErrorCodeCircuitOpen:
		return MessageCircuitOpen
	}
	if res.ErrorMessage != "" {
		return res.ErrorMessage
	}
	if res.ErrorCode != "" {
		return res.ErrorCode
	}
	return ErrorCodeUnknown
}
