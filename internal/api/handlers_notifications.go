// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/watchpost/internal/models"
	"github.com/tomtom215/watchpost/internal/storage"
)

// ListNotifications returns in-app notifications, newest first.
// Query: limit (1-500), unread=true.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	req, verr, err := parseListRequest(r, storage.DefaultNotificationLimit)
	switch {
	case err != nil:
		rw.BadRequest(err.Error())
		return
	case verr != nil:
		rw.ValidationError("invalid query parameters", verr.Fields)
		return
	}

	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	list, err := h.deps.Notifications.ListNotifications(r.Context(), req.Limit, unreadOnly)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if list == nil {
		list = []models.InAppNotification{}
	}
	rw.List(list, len(list))
}

// MarkNotificationRead acknowledges one notification.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	err := h.deps.Notifications.MarkNotificationRead(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, models.ErrNotFound):
		rw.NotFound("notification not found")
	case err != nil:
		rw.DatabaseError(err)
	default:
		rw.NoContent()
	}
}

// NotificationStream upgrades to a websocket that receives every new in-app
// notification.
func (h *Handler) NotificationStream(w http.ResponseWriter, r *http.Request) {
	if h.deps.Stream == nil {
		WriteError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "notification stream not available")
		return
	}
	h.deps.Stream.ServeHTTP(w, r)
}
