// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package rules

import (
	"time"

	"github.com/tomtom215/watchpost/internal/models"
)

// Matches reports whether event satisfies every set condition. Conditions
// are ANDed; each set is satisfied by any one of its members.
//
// A condition on an attribute the event lacks does not match: no anomaly
// score fails MinAnomalyScore, no audio type fails AudioEventTypes, and no
// categories fails Categories. Conditions with nothing set never match.
// Time of day and weekday are read in loc.
func Matches(c *models.Conditions, event *models.Event, loc *time.Location) bool {
	if c == nil || event == nil || c.Empty() {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	local := event.Timestamp.In(loc)

	if c.Categories != nil && !anyCategory(c, event.Categories) {
		return false
	}
	if c.Sources != nil && !c.Sources.Contains(event.SourceID) {
		return false
	}
	if c.TimeWindow != nil && !c.TimeWindow.Contains(local) {
		return false
	}
	if c.DaysOfWeek != nil && !c.DaysOfWeek.Contains(local.Weekday()) {
		return false
	}
	if c.MinConfidence != nil && event.Confidence < *c.MinConfidence {
		return false
	}
	if c.MinAnomalyScore != nil {
		if event.Anomaly == nil || event.Anomaly.TotalScore < *c.MinAnomalyScore {
			return false
		}
	}
	if c.AudioEventTypes != nil {
		if event.AudioEventType == "" || !c.AudioEventTypes.Contains(event.AudioEventType) {
			return false
		}
	}
	return true
}

func anyCategory(c *models.Conditions, categories []string) bool {
	for _, cat := range categories {
		if c.Categories.Contains(cat) {
			return true
		}
	}
	return false
}
