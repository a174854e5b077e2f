// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package models

import (
	"time"
)

// Event is a single object detection emitted by a camera pipeline.
// Confidence is always in the 0.0-1.0 range.
type Event struct {
	EventID        string    `json:"event_id" validate:"required,max=128"`
	SourceID       string    `json:"source_id" validate:"required,max=128"`
	Timestamp      time.Time `json:"timestamp" validate:"required"`
	Categories     []string  `json:"categories" validate:"max=32,dive,required,max=64"`
	Confidence     float64   `json:"confidence" validate:"gte=0,lte=1"`
	AudioEventType string    `json:"audio_event_type,omitempty" validate:"omitempty,max=64"`
	Description    string    `json:"description,omitempty" validate:"omitempty,max=2048"`

	// Anomaly is attached by the pipeline. Nil means no score is available,
	// which is distinct from a score of zero.
	Anomaly *AnomalyScore `json:"anomaly,omitempty"`
}

// DistinctCategories returns the event categories with duplicates removed,
// preserving first-seen order.
func (e *Event) DistinctCategories() []string {
	if len(e.Categories) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(e.Categories))
	out := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
