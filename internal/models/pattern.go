// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package models

import (
	"time"
)

// ActivityPattern is the learned histogram of normal activity for one source.
//
// TotalSamples always equals the sum of HourlyCounts and the sum of
// DayOfWeekCounts. CategoryCounts is independent: an event may carry zero or
// several categories.
type ActivityPattern struct {
	SourceID        string           `json:"source_id"`
	HourlyCounts    [24]int64        `json:"hourly_counts"`
	DayOfWeekCounts [7]int64         `json:"day_of_week_counts"`
	CategoryCounts  map[string]int64 `json:"category_counts"`
	TotalSamples    int64            `json:"total_samples"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NewActivityPattern returns an empty pattern for sourceID.
func NewActivityPattern(sourceID string) *ActivityPattern {
	return &ActivityPattern{
		SourceID:       sourceID,
		CategoryCounts: make(map[string]int64),
	}
}

// IsValid reports whether the pattern has enough samples to be scored against.
// A pattern holding exactly minSamples samples is valid, so the default
// threshold of 50 lets the 51st event be scored.
func (p *ActivityPattern) IsValid(minSamples int64) bool {
	return p != nil && p.TotalSamples >= minSamples
}

// Consistent reports whether the sample total matches both histograms.
func (p *ActivityPattern) Consistent() bool {
	var hours, days int64
	for _, c := range p.HourlyCounts {
		hours += c
	}
	for _, c := range p.DayOfWeekCounts {
		days += c
	}
	return hours == p.TotalSamples && days == p.TotalSamples
}

// Clone returns a deep copy.
func (p *ActivityPattern) Clone() *ActivityPattern {
	if p == nil {
		return nil
	}
	cp := *p
	cp.CategoryCounts = make(map[string]int64, len(p.CategoryCounts))
	for k, v := range p.CategoryCounts {
		cp.CategoryCounts[k] = v
	}
	return &cp
}
