// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/watchpost/internal/models"
	"github.com/tomtom215/watchpost/internal/pipeline"
	"github.com/tomtom215/watchpost/internal/validation"
)

// IngestEvent runs one detection event through the pipeline and returns the
// score and delivery outcomes. Processing is not canceled when the client
// goes away.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var event models.Event
	if err := decodeJSON(w, r, &event, false); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	result, err := h.deps.Processor.Process(context.WithoutCancel(r.Context()), &event)
	if err != nil {
		var verr *validation.RequestValidationError
		switch {
		case errors.As(err, &verr):
			rw.ValidationError("event validation failed", verr.Fields)
		case errors.Is(err, pipeline.ErrInvalidEvent):
			rw.BadRequest(err.Error())
		default:
			rw.InternalError("event processing failed")
		}
		return
	}
	rw.Success(result)
}
