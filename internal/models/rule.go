// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package models

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-set/v2"
)

// ChannelKind identifies a delivery channel.
type ChannelKind string

const (
	ChannelInApp   ChannelKind = "in_app"
	ChannelPush    ChannelKind = "push"
	ChannelWebhook ChannelKind = "webhook"
)

// Valid reports whether k is a known channel kind.
func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelInApp, ChannelPush, ChannelWebhook:
		return true
	}
	return false
}

// Rule is a user-authored alerting rule.
//
// LastTriggeredAt and TriggerCount are only ever written by the cooldown
// claim in the rule engine.
type Rule struct {
	ID              string     `json:"id"`
	Name            string     `json:"name" validate:"required,max=200"`
	Enabled         bool       `json:"enabled"`
	Conditions      Conditions `json:"conditions"`
	Actions         []Action   `json:"actions" validate:"required,min=1,max=16,dive"`
	CooldownSeconds int64      `json:"cooldown_seconds" validate:"gte=0"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	TriggerCount    int64      `json:"trigger_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Cooldown returns the cooldown as a duration.
func (r *Rule) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// CooldownClear reports whether the rule may trigger at now.
func (r *Rule) CooldownClear(now time.Time) bool {
	if r.LastTriggeredAt == nil {
		return true
	}
	return now.Sub(*r.LastTriggeredAt) >= r.Cooldown()
}

// Action is one delivery target of a rule.
type Action struct {
	Channel        ChannelKind       `json:"channel" validate:"required,oneof=in_app push webhook"`
	WebhookURL     string            `json:"webhook_url,omitempty" validate:"required_if=Channel webhook,omitempty,url,max=2048"`
	WebhookHeaders map[string]string `json:"webhook_headers,omitempty"`
	WebhookSecret  string            `json:"webhook_secret,omitempty" validate:"omitempty,max=256"`
	PushTopic      string            `json:"push_topic,omitempty" validate:"omitempty,max=256"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty" validate:"omitempty,gte=1,lte=30"`
}

// TimeWindow is a time-of-day range in "HH:MM". When Start is after End the
// window wraps midnight.
type TimeWindow struct {
	Start string `json:"start" validate:"required,hhmm"`
	End   string `json:"end" validate:"required,hhmm"`
}

// Contains reports whether t falls inside the window. Start is inclusive,
// End is exclusive.
func (w TimeWindow) Contains(t time.Time) bool {
	start, err := ParseClock(w.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(w.End)
	if err != nil {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if start == end {
		return true
	}
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Conditions is the rule predicate. Every field is optional: nil means the
// condition is not set. A non-nil empty set is a set condition that matches
// nothing, and is rejected when a rule is saved. The json tags name fields in
// validation messages; encoding goes through conditionsJSON.
type Conditions struct {
	Categories      *set.Set[string]       `json:"categories"`
	Sources         *set.Set[string]       `json:"sources"`
	TimeWindow      *TimeWindow            `json:"time_window"`
	DaysOfWeek      *set.Set[time.Weekday] `json:"days_of_week"`
	MinConfidence   *float64               `json:"min_confidence"`
	MinAnomalyScore *float64               `json:"min_anomaly_score"`
	AudioEventTypes *set.Set[string]       `json:"audio_event_types"`
}

// Empty reports whether no condition is set.
func (c *Conditions) Empty() bool {
	return c.Categories == nil &&
		c.Sources == nil &&
		c.TimeWindow == nil &&
		c.DaysOfWeek == nil &&
		c.MinConfidence == nil &&
		c.MinAnomalyScore == nil &&
		c.AudioEventTypes == nil
}

// conditionsJSON keeps absent and [] distinct on the wire.
type conditionsJSON struct {
	Categories      *[]string       `json:"categories,omitempty"`
	Sources         *[]string       `json:"sources,omitempty"`
	TimeWindow      *TimeWindow     `json:"time_window,omitempty"`
	DaysOfWeek      *[]time.Weekday `json:"days_of_week,omitempty"`
	MinConfidence   *float64        `json:"min_confidence,omitempty"`
	MinAnomalyScore *float64        `json:"min_anomaly_score,omitempty"`
	AudioEventTypes *[]string       `json:"audio_event_types,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (c Conditions) MarshalJSON() ([]byte, error) {
	return json.Marshal(conditionsJSON{
		Categories:      sortedSlice(c.Categories),
		Sources:         sortedSlice(c.Sources),
		TimeWindow:      c.TimeWindow,
		DaysOfWeek:      sortedSlice(c.DaysOfWeek),
		MinConfidence:   c.MinConfidence,
		MinAnomalyScore: c.MinAnomalyScore,
		AudioEventTypes: sortedSlice(c.AudioEventTypes),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Conditions) UnmarshalJSON(data []byte) error {
	var raw conditionsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Conditions{
		Categories:      fromSlice(raw.Categories),
		Sources:         fromSlice(raw.Sources),
		TimeWindow:      raw.TimeWindow,
		DaysOfWeek:      fromSlice(raw.DaysOfWeek),
		MinConfidence:   raw.MinConfidence,
		MinAnomalyScore: raw.MinAnomalyScore,
		AudioEventTypes: fromSlice(raw.AudioEventTypes),
	}
	return nil
}

func sortedSlice[T cmp.Ordered](s *set.Set[T]) *[]T {
	if s == nil {
		return nil
	}
	out := s.Slice()
	slices.Sort(out)
	return &out
}

func fromSlice[T comparable](items *[]T) *set.Set[T] {
	if items == nil {
		return nil
	}
	return set.From(*items)
}
