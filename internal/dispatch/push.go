// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/watchpost/internal/models"
)

// PushMessage is handed to the push gateway.
type PushMessage struct {
	Topic     string          `json:"topic,omitempty"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	RuleID    string          `json:"rule_id"`
	EventID   string          `json:"event_id"`
	SourceID  string          `json:"source_id"`
	Severity  models.Severity `json:"severity,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// PushSender forwards push messages to whatever delivers them to devices.
type PushSender interface {
	Send(ctx context.Context, msg *PushMessage) error
}

// PushChannel delivers push notifications through a PushSender.
type PushChannel struct {
	sender PushSender
	now    func() time.Time
}

// NewPushChannel creates a push channel. A nil sender fails every delivery
// with INVALID_CONFIG.
func NewPushChannel(sender PushSender) *PushChannel {
	return &PushChannel{sender: sender, now: time.Now}
}

// Name returns the channel identifier.
func (c *PushChannel) Name() models.ChannelKind {
	return models.ChannelPush
}

// ErrPushNotConfigured is returned for push actions when no sender is set.
var ErrPushNotConfigured = errors.New("push notifications are not configured")

// Validate rejects push actions when no sender is configured. The topic is
// optional.
func (c *PushChannel) Validate(*models.Action) error {
	if c.sender == nil {
		return ErrPushNotConfigured
	}
	return nil
}

// Deliver sends one push message.
func (c *PushChannel) Deliver(ctx context.Context, action *models.Action, payload *Payload) Result {
	if c.sender == nil {
		return failure(ErrorCodeInvalidConfig, "push sender not configured")
	}

	title, body := notificationText(payload)
	msg := &PushMessage{
		Topic:     action.PushTopic,
		Title:     title,
		Body:      body,
		RuleID:    payload.RuleID,
		EventID:   payload.Event.EventID,
		SourceID:  payload.Event.SourceID,
		CreatedAt: c.now().UTC(),
	}
	if payload.Event.Anomaly != nil {
		msg.Severity = payload.Event.Anomaly.Severity
	}

	if err := c.sender.Send(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return failure(ErrorCodeTimeout, "push send: %v", err)
		}
		return failure(ErrorCodeConnectionFailed, "push send: %v", err)
	}
	return Result{Success: true}
}
