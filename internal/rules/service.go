// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/watchpost/internal/logging"
	"github.com/tomtom215/watchpost/internal/models"
)

// Store is the full rule persistence used by Service.
type Store interface {
	RuleStore
	CreateRule(ctx context.Context, rule *models.Rule) error
	UpdateRule(ctx context.Context, rule *models.Rule) error
	DeleteRule(ctx context.Context, id string) error
	GetRule(ctx context.Context, id string) (*models.Rule, error)
	ListRules(ctx context.Context) ([]models.Rule, error)
	SetRuleEnabled(ctx context.Context, id string, enabled bool, now time.Time) error
}

// RuleInput is the user-editable part of a rule. On create, nil Enabled means
// true and nil CooldownSeconds means the configured default. On update, nil
// fields keep the rule's current values.
type RuleInput struct {
	Name            string            `json:"name"`
	Enabled         *bool             `json:"enabled,omitempty"`
	Conditions      models.Conditions `json:"conditions"`
	Actions         []models.Action   `json:"actions"`
	CooldownSeconds *int64            `json:"cooldown_seconds,omitempty"`
}

// ActionValidator checks an action against the delivery channel that will
// run it. *dispatch.Registry implements it.
type ActionValidator interface {
	ValidateAction(action *models.Action) error
}

// Service manages rules and keeps the engine's cache in step with them.
type Service struct {
	store           Store
	engine          *Engine
	actions         ActionValidator
	defaultCooldown time.Duration
	now             func() time.Time
}

// NewService creates a Service. engine and actions may be nil; without
// actions only the channel-independent checks run.
func NewService(store Store, engine *Engine, actions ActionValidator, defaultCooldown time.Duration) *Service {
	return &Service{
		store:           store,
		engine:          engine,
		actions:         actions,
		defaultCooldown: defaultCooldown,
		now:             time.Now,
	}
}

// Create validates and stores a new rule.
func (s *Service) Create(ctx context.Context, in RuleInput) (*models.Rule, error) {
	now := s.now().UTC()
	rule := &models.Rule{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
		Enabled:   true,
	}
	rule.CooldownSeconds = int64(s.defaultCooldown / time.Second)
	s.apply(rule, in)

	if err := s.validate(rule); err != nil {
		return nil, err
	}
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}
	s.invalidate()

	logging.Info().Str("rule_id", rule.ID).Str("name", rule.Name).Msg("Rule created")
	return rule, nil
}

// Update replaces the user-editable fields of a rule. Trigger state is kept.
func (s *Service) Update(ctx context.Context, id string, in RuleInput) (*models.Rule, error) {
	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	s.apply(rule, in)
	rule.UpdatedAt = s.now().UTC()

	if err := s.validate(rule); err != nil {
		return nil, err
	}
	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}
	s.invalidate()

	logging.Info().Str("rule_id", rule.ID).Msg("Rule updated")
	return rule, nil
}

// Delete removes a rule.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.invalidate()
	if s.engine != nil {
		s.engine.Forget(id)
	}

	logging.Info().Str("rule_id", id).Msg("Rule deleted")
	return nil
}

// Get returns a rule by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Rule, error) {
	return s.store.GetRule(ctx, id)
}

// List returns every rule. Corrupt rows are left out and reported in the error.
func (s *Service) List(ctx context.Context) ([]models.Rule, error) {
	return s.store.ListRules(ctx)
}

// SetEnabled enables or disables a rule and returns it.
func (s *Service) SetEnabled(ctx context.Context, id string, enabled bool) (*models.Rule, error) {
	if err := s.store.SetRuleEnabled(ctx, id, enabled, s.now().UTC()); err != nil {
		return nil, err
	}
	s.invalidate()

	logging.Info().Str("rule_id", id).Bool("enabled", enabled).Msg("Rule toggled")
	return s.store.GetRule(ctx, id)
}

// apply copies in onto rule. Nil optional fields leave rule as it is.
func (s *Service) apply(rule *models.Rule, in RuleInput) {
	rule.Name = in.Name
	rule.Conditions = in.Conditions
	rule.Actions = in.Actions
	if in.Enabled != nil {
		rule.Enabled = *in.Enabled
	}
	if in.CooldownSeconds != nil {
		rule.CooldownSeconds = *in.CooldownSeconds
	}
}

// validate runs Validate, then checks each action against its channel.
func (s *Service) validate(rule *models.Rule) error {
	err := Validate(rule)
	if s.actions == nil {
		return err
	}

	verr, _ := err.(*ValidationError)
	if err != nil && verr == nil {
		return err
	}
	if verr == nil {
		verr = &ValidationError{}
	}
	for i := range rule.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		if verr.reported(field) {
			continue
		}
		if cerr := s.actions.ValidateAction(&rule.Actions[i]); cerr != nil {
			verr.add(field, "channel", fmt.Sprintf("%s: %v", field, cerr))
		}
	}
	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}

func (s *Service) invalidate() {
	if s.engine != nil {
		s.engine.Invalidate()
	}
}
