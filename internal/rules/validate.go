// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/watchpost/internal/dispatch"
	"github.com/tomtom215/watchpost/internal/models"
	"github.com/tomtom215/watchpost/internal/validation"
)

// ErrInvalidRule is wrapped by every rule validation failure.
var ErrInvalidRule = errors.New("invalid rule")

// ValidationError lists the problems found in a rule.
type ValidationError struct {
	Fields []validation.FieldError
}

// Error joins the field messages.
func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return fmt.Sprintf("%s: %s", ErrInvalidRule, strings.Join(msgs, "; "))
}

// Unwrap lets errors.Is match ErrInvalidRule.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidRule
}

// add records a problem unless the field already has one.
func (e *ValidationError) add(field, tag, message string) {
	for _, f := range e.Fields {
		if f.Field == field {
			return
		}
	}
	e.Fields = append(e.Fields, validation.FieldError{Field: field, Tag: tag, Message: message})
}

// reported returns true if field or one of its subfields already has a problem.
func (e *ValidationError) reported(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field || strings.HasPrefix(f.Field, field+".") {
			return true
		}
	}
	return false
}

// Validate checks a rule's struct constraints and the constraints the tags
// cannot express. It returns nil or a *ValidationError.
func Validate(rule *models.Rule) error {
	verr := &ValidationError{}
	if rerr := validation.ValidateStruct(rule); rerr != nil {
		verr.Fields = append(verr.Fields, rerr.Fields...)
	}

	validateConditions(&rule.Conditions, verr)
	for i := range rule.Actions {
		validateAction(i, &rule.Actions[i], verr)
	}

	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}

func validateConditions(c *models.Conditions, verr *ValidationError) {
	if c.Empty() {
		verr.add("conditions", "required", "conditions must set at least one condition")
		return
	}

	emptySet := func(field string, size int) {
		if size == 0 {
			verr.add("conditions."+field, "min", "conditions."+field+" must not be empty when set")
		}
	}
	if c.Categories != nil {
		emptySet("categories", c.Categories.Size())
	}
	if c.Sources != nil {
		emptySet("sources", c.Sources.Size())
	}
	if c.AudioEventTypes != nil {
		emptySet("audio_event_types", c.AudioEventTypes.Size())
	}
	if c.DaysOfWeek != nil {
		emptySet("days_of_week", c.DaysOfWeek.Size())
		for _, d := range c.DaysOfWeek.Slice() {
			if d < time.Sunday || d > time.Saturday {
				verr.add("conditions.days_of_week", "oneof", "conditions.days_of_week must contain values 0 (Sunday) to 6 (Saturday)")
				break
			}
		}
	}
	if c.MinConfidence != nil && (*c.MinConfidence < 0 || *c.MinConfidence > 1) {
		verr.add("conditions.min_confidence", "range", "conditions.min_confidence must be between 0 and 1")
	}
	if c.MinAnomalyScore != nil && (*c.MinAnomalyScore < 0 || *c.MinAnomalyScore > 1) {
		verr.add("conditions.min_anomaly_score", "range", "conditions.min_anomaly_score must be between 0 and 1")
	}
	if c.TimeWindow != nil {
		if _, err := models.ParseClock(c.TimeWindow.Start); err != nil {
			verr.add("conditions.time_window.start", "hhmm", "conditions.time_window.start must be a time of day in HH:MM format")
		}
		if _, err := models.ParseClock(c.TimeWindow.End); err != nil {
			verr.add("conditions.time_window.end", "hhmm", "conditions.time_window.end must be a time of day in HH:MM format")
		}
	}
}

func validateAction(i int, a *models.Action, verr *ValidationError) {
	field := fmt.Sprintf("actions[%d]", i)
	if !a.Channel.Valid() {
		// The struct tags already reported it.
		return
	}
	if a.Channel != models.ChannelWebhook {
		return
	}
	if err := dispatch.ValidateWebhookURL(a.WebhookURL); err != nil {
		verr.add(field+".webhook_url", "url", fmt.Sprintf("%s.webhook_url: %v", field, err))
	}
}

// checkRunnable is the subset of Validate the engine applies to stored rules
// before evaluating them.
func checkRunnable(rule *models.Rule) error {
	verr := &ValidationError{}
	validateConditions(&rule.Conditions, verr)
	if len(rule.Actions) == 0 {
		verr.add("actions", "required", "actions is required")
	}
	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}
