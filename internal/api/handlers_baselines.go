// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/watchpost/internal/models"
	"github.com/tomtom215/watchpost/internal/validation"
)

// ListBaselines returns the ids of sources with a learned pattern.
func (h *Handler) ListBaselines(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ids, err := h.deps.Baselines.ListSources(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	rw.List(ids, len(ids))
}

// BackfillBaselines folds historical events into the baselines without
// scoring them or evaluating rules. Events with a missing source or an
// unusable timestamp are skipped.
func (h *Handler) BackfillBaselines(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req BackfillRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError("backfill validation failed", verr.Fields)
		return
	}

	applied, err := h.deps.Baselines.Backfill(context.WithoutCancel(r.Context()), req.Events)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(BackfillResponse{Received: len(req.Events), Applied: applied})
}

// GetBaseline returns the activity pattern learned for a source.
func (h *Handler) GetBaseline(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	pattern, err := h.deps.Baselines.GetPattern(r.Context(), chi.URLParam(r, "source"))
	switch {
	case errors.Is(err, models.ErrNotFound):
		rw.NotFound("no baseline for source")
	case err != nil:
		rw.DatabaseError(err)
	default:
		rw.Success(pattern)
	}
}

// DeleteBaseline resets a source so it relearns from scratch.
func (h *Handler) DeleteBaseline(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	err := h.deps.Baselines.RemoveSource(r.Context(), chi.URLParam(r, "source"))
	switch {
	case errors.Is(err, models.ErrNotFound):
		rw.NotFound("no baseline for source")
	case err != nil:
		rw.DatabaseError(err)
	default:
		rw.NoContent()
	}
}

// GetScore returns the stored anomaly score for an event.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	score, err := h.deps.Scores.GetScore(r.Context(), chi.URLParam(r, "event"))
	switch {
	case errors.Is(err, models.ErrNotFound):
		rw.NotFound("no score for event")
	case err != nil:
		rw.DatabaseError(err)
	default:
		rw.Success(score)
	}
}

// ListScores returns the most recent scores for ?source=.
func (h *Handler) ListScores(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	req, verr, err := parseListRequest(r, 100)
	switch {
	case err != nil:
		rw.BadRequest(err.Error())
		return
	case verr != nil:
		rw.ValidationError("invalid query parameters", verr.Fields)
		return
	case req.Source == "":
		rw.BadRequest("source is required")
		return
	}

	scores, err := h.deps.Scores.ListScoresBySource(r.Context(), req.Source, req.Limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if scores == nil {
		scores = []models.AnomalyScore{}
	}
	rw.List(scores, len(scores))
}
