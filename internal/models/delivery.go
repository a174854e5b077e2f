// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package models

import (
	"time"
)

// DeliveryOutcome aggregates the per-channel results of dispatching one rule
// for one event. It is returned, never raised.
type DeliveryOutcome struct {
	RuleID            string                 `json:"rule_id"`
	EventID           string                 `json:"event_id"`
	ChannelsAttempted []ChannelKind          `json:"channels_attempted"`
	ChannelsSucceeded []ChannelKind          `json:"channels_succeeded"`
	Errors            map[ChannelKind]string `json:"errors,omitempty"`
	StartedAt         time.Time              `json:"started_at"`
	CompletedAt       time.Time              `json:"completed_at"`
}

// Success reports whether at least one channel delivered.
func (o *DeliveryOutcome) Success() bool {
	return len(o.ChannelsSucceeded) > 0
}

// InAppNotification is a notification stored for display in the application.
type InAppNotification struct {
	ID        string    `json:"id"`
	RuleID    string    `json:"rule_id"`
	EventID   string    `json:"event_id"`
	SourceID  string    `json:"source_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
