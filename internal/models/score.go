// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package models

import (
	"time"
)

// Severity classifies an anomaly score.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AnomalyScore is the result of scoring one event against its source baseline.
// There is at most one per event; recomputation overwrites.
type AnomalyScore struct {
	EventID       string    `json:"event_id"`
	SourceID      string    `json:"source_id"`
	TotalScore    float64   `json:"total_score"`
	TimingScore   float64   `json:"timing_score"`
	DayScore      float64   `json:"day_score"`
	CategoryScore float64   `json:"category_score"`
	Severity      Severity  `json:"severity"`
	ComputedAt    time.Time `json:"computed_at"`
}
