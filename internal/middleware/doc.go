// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

/*
Package middleware provides HTTP middleware shared by the API router.

Key Components:

  - RequestID: reads or generates X-Request-ID and tags the request context
    with request and correlation IDs for structured logging
  - AccessLog: one zerolog line per request with status and latency
  - PrometheusMetrics: request counters and latency histograms labeled by
    chi route pattern, so path parameters do not explode label cardinality

Typical stack:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
