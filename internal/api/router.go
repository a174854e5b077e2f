// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/watchpost/internal/middleware"
)

// Router wires handlers to routes.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router. A nil config uses DefaultChiMiddlewareConfig.
func NewRouter(handler *Handler, config *ChiMiddlewareConfig) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(config),
	}
}

// Setup builds the chi route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", router.handler.Health)
		r.Get("/notifications/stream", router.handler.NotificationStream)

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Use(middleware.PrometheusMetrics)

			r.Post("/events", router.handler.IngestEvent)

			r.Route("/rules", func(r chi.Router) {
				r.Get("/", router.handler.ListRules)
				r.Post("/", router.handler.CreateRule)
				r.Get("/{id}", router.handler.GetRule)
				r.Put("/{id}", router.handler.UpdateRule)
				r.Delete("/{id}", router.handler.DeleteRule)
				r.Post("/{id}/enable", router.handler.EnableRule)
				r.Post("/{id}/disable", router.handler.DisableRule)
			})

			r.Get("/baselines", router.handler.ListBaselines)
			r.Post("/baselines/backfill", router.handler.BackfillBaselines)
			r.Get("/baselines/{source}", router.handler.GetBaseline)
			r.Delete("/baselines/{source}", router.handler.DeleteBaseline)

			r.Get("/scores", router.handler.ListScores)
			r.Get("/scores/{event}", router.handler.GetScore)

			r.Get("/notifications", router.handler.ListNotifications)
			r.Post("/notifications/{id}/read", router.handler.MarkNotificationRead)
		})
	})

	return r
}
