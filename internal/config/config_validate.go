// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package config

import (
	"fmt"
	"math"

	"github.com/tomtom215/watchpost/internal/validation"
)

// weightTolerance absorbs float error when summing configured weights.
const weightTolerance = 1e-9

// Validate checks field constraints and the cross-field rules that tags can't express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}
	if err := c.validateScoring(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if c.Baseline.Store == "badger" && c.Baseline.BadgerPath == "" {
		return fmt.Errorf("baseline.badger_path is required when baseline.store=badger")
	}
	if c.Rules.DefaultCooldown < 0 {
		return fmt.Errorf("rules.default_cooldown must not be negative")
	}
	if c.Ingest.NATSEnabled && c.Ingest.NATSURL == "" {
		return fmt.Errorf("ingest.nats_url is required when ingest.nats_enabled=true")
	}
	return nil
}

func (c *Config) validateScoring() error {
	s := c.Scoring
	sum := s.TimingWeight + s.DayWeight + s.CategoryWeight
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.4f", sum)
	}
	if s.MediumThreshold >= s.HighThreshold {
		return fmt.Errorf("scoring.medium_threshold (%.2f) must be below scoring.high_threshold (%.2f)",
			s.MediumThreshold, s.HighThreshold)
	}
	return nil
}

func (c *Config) validateDispatch() error {
	d := c.Dispatch
	for name, v := range map[string]int64{
		"dispatch.in_app_timeout":  int64(d.InAppTimeout),
		"dispatch.push_timeout":    int64(d.PushTimeout),
		"dispatch.webhook_timeout": int64(d.WebhookTimeout),
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
		if v > int64(d.MaxTimeout) {
			return fmt.Errorf("%s must not exceed dispatch.max_timeout (%s)", name, d.MaxTimeout)
		}
	}
	return nil
}
