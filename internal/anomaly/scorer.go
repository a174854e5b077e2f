// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

// Package anomaly scores events against a source's activity pattern.
//
// Scoring is a pure function of the event and the pattern snapshot:
//
//	timing   = 1 - clamp(f_hour / (2/24))      uniform history scores 0.5
//	day      = 1 - clamp(f_weekday / (2/7))    uniform history scores 0.5
//	category = max over event categories of 1 - count/max_count
//	total    = w_t*timing + w_d*day + w_c*category, clamped to [0,1]
//
// A bucket holding twice its uniform share or more scores 0; an empty bucket
// scores 1. An unseen category scores 1; the most common category scores 0.
// An event with no categories scores 0 on that component.
package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/watchpost/internal/models"
)

// Weights are the component weights. They must sum to 1.0.
type Weights struct {
	Timing   float64
	Day      float64
	Category float64
}

// Thresholds are the severity cut points: below Medium is low, above High
// is high, anything in between is medium.
type Thresholds struct {
	Medium float64
	High   float64
}

// DefaultWeights are the documented scoring weights.
var DefaultWeights = Weights{Timing: 0.4, Day: 0.2, Category: 0.4}

// DefaultThresholds are the documented severity cut points.
var DefaultThresholds = Thresholds{Medium: 0.3, High: 0.6}

// DefaultMinSamples is the sample count below which a pattern is not scored.
const DefaultMinSamples = 50

// ErrInvalidWeights is returned by NewScorer for a bad policy.
var ErrInvalidWeights = errors.New("invalid scoring policy")

const weightTolerance = 1e-9

// Config configures a Scorer.
type Config struct {
	Weights    Weights
	Thresholds Thresholds
	MinSamples int64

	// Location must match the learner's so the event lands in the same buckets.
	Location *time.Location

	// Now stamps ComputedAt. Defaults to time.Now.
	Now func() time.Time
}

// Scorer computes anomaly scores. It holds no mutable state and is safe for
// concurrent use.
type Scorer struct {
	weights    Weights
	thresholds Thresholds
	minSamples int64
	loc        *time.Location
	now        func() time.Time
}

// NewScorer validates cfg and returns a Scorer.
func NewScorer(cfg Config) (*Scorer, error) {
	w := cfg.Weights
	if w.Timing < 0 || w.Day < 0 || w.Category < 0 {
		return nil, fmt.Errorf("%w: weights must not be negative", ErrInvalidWeights)
	}
	if sum := w.Timing + w.Day + w.Category; math.Abs(sum-1) > weightTolerance {
		return nil, fmt.Errorf("%w: weights sum to %.4f, want 1.0", ErrInvalidWeights, sum)
	}
	th := cfg.Thresholds
	if th.Medium <= 0 || th.High >= 1 || th.Medium >= th.High {
		return nil, fmt.Errorf("%w: thresholds must satisfy 0 < medium < high < 1", ErrInvalidWeights)
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scorer{
		weights:    w,
		thresholds: th,
		minSamples: cfg.MinSamples,
		loc:        cfg.Location,
		now:        cfg.Now,
	}, nil
}

// MinSamples returns the validity threshold.
func (s *Scorer) MinSamples() int64 {
	return s.minSamples
}

// Score scores event against pattern. The second result is false when the
// pattern is missing or has fewer than MinSamples samples; in that case there
// is no score, which callers must not treat as a score of zero.
func (s *Scorer) Score(event *models.Event, pattern *models.ActivityPattern) (models.AnomalyScore, bool) {
	if event == nil || !pattern.IsValid(s.minSamples) {
		return models.AnomalyScore{}, false
	}

	local := event.Timestamp.In(s.loc)
	timing := bucketScore(pattern.HourlyCounts[local.Hour()], pattern.TotalSamples, 24)
	day := bucketScore(pattern.DayOfWeekCounts[local.Weekday()], pattern.TotalSamples, 7)
	category := categoryScore(event.Categories, pattern.CategoryCounts)

	total := clamp01(s.weights.Timing*timing + s.weights.Day*day + s.weights.Category*category)

	return models.AnomalyScore{
		EventID:       event.EventID,
		SourceID:      event.SourceID,
		TotalScore:    total,
		TimingScore:   timing,
		DayScore:      day,
		CategoryScore: category,
		Severity:      s.Classify(total),
		ComputedAt:    s.now(),
	}, true
}

// Classify maps a total score to a severity.
func (s *Scorer) Classify(total float64) models.Severity {
	switch {
	case total > s.thresholds.High:
		return models.SeverityHigh
	case total >= s.thresholds.Medium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// bucketScore is the complement of the bucket's share, normalized against
// twice the uniform share.
func bucketScore(count, total int64, buckets int) float64 {
	if total <= 0 {
		return 1
	}
	share := float64(count) / float64(total)
	return 1 - clamp01(share/(2/float64(buckets)))
}

// categoryScore returns the score of the rarest category on the event.
func categoryScore(categories []string, counts map[string]int64) float64 {
	if len(categories) == 0 {
		return 0
	}

	var maxCount int64
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	if maxCount == 0 {
		return 1
	}

	rarest := 0.0
	for _, cat := range categories {
		sc := 1 - float64(counts[cat])/float64(maxCount)
		if sc > rarest {
			rarest = sc
		}
	}
	return clamp01(rarest)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// ScoreStore persists scores keyed by event id. SaveScore overwrites.
type ScoreStore interface {
	SaveScore(ctx context.Context, score *models.AnomalyScore) error
	GetScore(ctx context.Context, eventID string) (*models.AnomalyScore, error)
}
