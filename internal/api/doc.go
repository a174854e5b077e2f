// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

/*
Package api provides the HTTP surface of watchpost.

Routes (all JSON, wrapped in the standard envelope):

	POST   /api/v1/events                    ingest one detection event
	GET    /api/v1/rules                     list rules
	POST   /api/v1/rules                     create a rule
	GET    /api/v1/rules/{id}                get a rule
	PUT    /api/v1/rules/{id}                replace a rule's definition
	DELETE /api/v1/rules/{id}                delete a rule
	POST   /api/v1/rules/{id}/enable         enable a rule
	POST   /api/v1/rules/{id}/disable        disable a rule
	GET    /api/v1/baselines                 sources with a learned pattern
	POST   /api/v1/baselines/backfill        fold historical events into baselines
	GET    /api/v1/baselines/{source}        activity pattern for a source
	DELETE /api/v1/baselines/{source}        reset a source's baseline
	GET    /api/v1/scores/{event}            stored anomaly score for an event
	GET    /api/v1/scores?source=&limit=     recent scores for a source
	GET    /api/v1/notifications             in-app notifications
	POST   /api/v1/notifications/{id}/read   mark a notification read
	GET    /api/v1/notifications/stream      websocket of new notifications
	GET    /api/v1/health                    liveness and database status
	GET    /metrics                          Prometheus metrics

Envelope:

	{"success": true, "data": ..., "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "VALIDATION_FAILED", "message": "...", "details": [...]}}
*/
package api
