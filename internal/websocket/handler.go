// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Handler upgrades HTTP requests to notification streams on a Hub.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	origins  map[string]bool
	allowAll bool
}

// NewHandler serves hub. allowedOrigins lists the Origin values accepted;
// "*" accepts any origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	h := &Handler{hub: hub, origins: make(map[string]bool, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		if o == "*" {
			h.allowAll = true
		}
		h.origins[o] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// checkOrigin rejects requests without an Origin header and origins outside
// the allowed list.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		h.hub.logger.Warn().Msg("Websocket connection rejected: missing Origin header")
		return false
	}
	if h.allowAll || h.origins[origin] {
		return true
	}
	h.hub.logger.Warn().Str("origin", origin).Msg("Websocket connection rejected: origin not allowed")
	return false
}

// ServeHTTP upgrades the connection and attaches a client. The upgrader
// writes the error response itself when the handshake fails.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	NewClient(h.hub, conn).Start()
}
