// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/watchpost/internal/models"
	"github.com/tomtom215/watchpost/internal/validation"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ListRequest holds the validated query parameters of list endpoints.
type ListRequest struct {
	Limit  int    `json:"limit" validate:"min=1,max=500"`
	Source string `json:"source" validate:"omitempty,max=128"`
}

// BackfillRequest carries historical events for POST /baselines/backfill.
type BackfillRequest struct {
	Events []models.Event `json:"events" validate:"required,min=1,max=5000"`
}

// BackfillResponse reports how many events were folded into baselines.
type BackfillResponse struct {
	Received int `json:"received"`
	Applied  int `json:"applied"`
}

// decodeJSON decodes the request body into dst. Trailing data is rejected;
// unknown fields only when strict is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, strict bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

// parseListRequest reads limit and source from the query string.
func parseListRequest(r *http.Request, defaultLimit int) (ListRequest, *validation.RequestValidationError, error) {
	req := ListRequest{Limit: defaultLimit, Source: r.URL.Query().Get("source")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, nil, fmt.Errorf("limit must be an integer")
		}
		req.Limit = n
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		return req, verr, nil
	}
	return req, nil, nil
}
