// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/watchpost/internal/models"
)

// NotificationStore stores in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.InAppNotification) error
}

// Broadcaster pushes stored notifications to live subscribers.
type Broadcaster interface {
	BroadcastNotification(n *models.InAppNotification)
}

// InAppChannel stores notifications in the database for retrieval via the API
// and, when a Broadcaster is set, streams them to connected clients.
type InAppChannel struct {
	store       NotificationStore
	broadcaster Broadcaster
	now         func() time.Time
}

// NewInAppChannel creates an in-app channel backed by store.
func NewInAppChannel(store NotificationStore) *InAppChannel {
	return &InAppChannel{store: store, now: time.Now}
}

// WithBroadcaster streams every stored notification to b.
func (c *InAppChannel) WithBroadcaster(b Broadcaster) *InAppChannel {
	c.broadcaster = b
	return c
}

// Name returns the channel identifier.
func (c *InAppChannel) Name() models.ChannelKind {
	return models.ChannelInApp
}

// Validate accepts any in-app action; it has no settings.
func (c *InAppChannel) Validate(*models.Action) error {
	return nil
}

// Deliver stores one notification.
func (c *InAppChannel) Deliver(ctx context.Context, _ *models.Action, payload *Payload) Result {
	if c.store == nil {
		return failure(ErrorCodeInvalidConfig, "in-app notification store not configured")
	}

	title, message := notificationText(payload)
	n := &models.InAppNotification{
		ID:        uuid.New().String(),
		RuleID:    payload.RuleID,
		EventID:   payload.Event.EventID,
		SourceID:  payload.Event.SourceID,
		Title:     title,
		Message:   message,
		CreatedAt: c.now().UTC(),
	}
	if payload.Event.Anomaly != nil {
		n.Severity = payload.Event.Anomaly.Severity
	}

	if err := c.store.CreateNotification(ctx, n); err != nil {
		return failure(ErrorCodeStoreFailed, "failed to store notification: %v", err)
	}
	if c.broadcaster != nil {
		c.broadcaster.BroadcastNotification(n)
	}
	return Result{Success: true}
}
