// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package api

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus is the body of the health endpoint.
type HealthStatus struct {
	Status            string  `json:"status"`
	Version           string  `json:"version"`
	DatabaseConnected bool    `json:"database_connected"`
	Uptime            float64 `json:"uptime_seconds"`
}

// Health reports liveness and database connectivity. A database outage
// returns 503 so load balancers stop routing ingest traffic here.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	dbConnected := h.deps.DB != nil && h.deps.DB.Ping(ctx) == nil

	health := HealthStatus{
		Status:            "healthy",
		Version:           h.deps.Version,
		DatabaseConnected: dbConnected,
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if !dbConnected {
		health.Status = "degraded"
		rw.write(http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    health,
			Error:   &APIError{Code: ErrCodeServiceUnavailable, Message: "database unavailable"},
			Meta:    rw.meta(),
		})
		return
	}
	rw.Success(health)
}
