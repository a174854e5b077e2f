// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/watchpost/internal/models"
)

// DefaultNotificationLimit caps ListNotifications when no limit is given.
const DefaultNotificationLimit = 50

// CreateNotification stores an in-app notification. An empty ID is assigned.
func (s *DuckDBStore) CreateNotification(ctx context.Context, n *models.InAppNotification) (err error) {
	defer observe("create_notification", time.Now(), &err)

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO in_app_notifications (id, rule_id, event_id, source_id, title, message, severity, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		n.ID,
		n.RuleID,
		n.EventID,
		n.SourceID,
		n.Title,
		n.Message,
		sql.NullString{String: string(n.Severity), Valid: n.Severity != ""},
		n.Read,
		n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications returns notifications newest first. A non-positive
// limit means DefaultNotificationLimit.
func (s *DuckDBStore) ListNotifications(ctx context.Context, limit int, unreadOnly bool) (out []models.InAppNotification, err error) {
	defer observe("list_notifications", time.Now(), &err)

	if limit <= 0 {
		limit = DefaultNotificationLimit
	}

	query := `
		SELECT id, rule_id, event_id, source_id, title, message, severity, is_read, created_at
		FROM in_app_notifications`
	if unreadOnly {
		query += ` WHERE NOT is_read`
	}
	query += ` ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n models.InAppNotification
		var severity sql.NullString
		if err = rows.Scan(
			&n.ID,
			&n.RuleID,
			&n.EventID,
			&n.SourceID,
			&n.Title,
			&n.Message,
			&severity,
			&n.Read,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Severity = models.Severity(severity.String)
		out = append(out, n)
	}
	err = rows.Err()
	return out, err
}

// MarkNotificationRead marks a notification as read.
func (s *DuckDBStore) MarkNotificationRead(ctx context.Context, id string) (err error) {
	defer observe("mark_notification_read", time.Now(), &err)

	result, err := s.db.ExecContext(ctx, `UPDATE in_app_notifications SET is_read = TRUE WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return checkRowsAffected(result, fmt.Errorf("notification %s: %w", id, models.ErrNotFound))
}
