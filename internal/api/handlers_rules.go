// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/watchpost/internal/logging"
	"github.com/tomtom215/watchpost/internal/models"
	"github.com/tomtom215/watchpost/internal/rules"
)

// ListRules returns every rule, enabled or not.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	list, err := h.deps.Rules.List(r.Context())
	if err != nil {
		if len(list) == 0 {
			rw.DatabaseError(err)
			return
		}
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Some rules could not be read")
	}
	if list == nil {
		list = []models.Rule{}
	}
	rw.List(list, len(list))
}

// CreateRule validates and stores a new rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var in rules.RuleInput
	if err := decodeJSON(w, r, &in, true); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	rule, err := h.deps.Rules.Create(r.Context(), in)
	if err != nil {
		h.ruleError(rw, err)
		return
	}
	rw.Created(rule)
}

// GetRule returns one rule.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rule, err := h.deps.Rules.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.ruleError(rw, err)
		return
	}
	rw.Success(rule)
}

// UpdateRule replaces a rule's definition. Trigger state is kept.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var in rules.RuleInput
	if err := decodeJSON(w, r, &in, true); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	rule, err := h.deps.Rules.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.ruleError(rw, err)
		return
	}
	rw.Success(rule)
}

// DeleteRule removes a rule.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.deps.Rules.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.ruleError(rw, err)
		return
	}
	rw.NoContent()
}

// EnableRule turns a rule on.
func (h *Handler) EnableRule(w http.ResponseWriter, r *http.Request) {
	h.setRuleEnabled(w, r, true)
}

// DisableRule turns a rule off.
func (h *Handler) DisableRule(w http.ResponseWriter, r *http.Request) {
	h.setRuleEnabled(w, r, false)
}

func (h *Handler) setRuleEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	rw := NewResponseWriter(w, r)
	rule, err := h.deps.Rules.SetEnabled(r.Context(), chi.URLParam(r, "id"), enabled)
	if err != nil {
		h.ruleError(rw, err)
		return
	}
	rw.Success(rule)
}

// ruleError maps rule service errors onto responses.
func (h *Handler) ruleError(rw *ResponseWriter, err error) {
	var verr *rules.ValidationError
	switch {
	case errors.As(err, &verr):
		rw.ValidationError("rule validation failed", verr.Fields)
	case errors.Is(err, models.ErrNotFound):
		rw.NotFound("rule not found")
	default:
		rw.DatabaseError(err)
	}
}
