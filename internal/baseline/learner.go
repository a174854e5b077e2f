// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

// Package baseline learns per-source activity histograms from detection events.
//
// Each source has its own lock, so concurrent events for the same camera are
// folded in one at a time while different cameras never contend. Patterns are
// loaded lazily from a PatternStore on first use and written back after every
// update.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/watchpost/internal/logging"
	"github.com/tomtom215/watchpost/internal/metrics"
	"github.com/tomtom215/watchpost/internal/models"
)

var (
	// ErrInvalidTimestamp is returned by Observe for zero or far-future timestamps.
	ErrInvalidTimestamp = errors.New("invalid event timestamp")

	// ErrEmptySource is returned when no source id is given.
	ErrEmptySource = errors.New("source id is required")
)

// PatternStore persists activity patterns. LoadPattern returns an error
// wrapping models.ErrNotFound when the source has no pattern yet.
type PatternStore interface {
	LoadPattern(ctx context.Context, sourceID string) (*models.ActivityPattern, error)
	SavePattern(ctx context.Context, pattern *models.ActivityPattern) error
	DeletePattern(ctx context.Context, sourceID string) error
	ListPatternSources(ctx context.Context) ([]string, error)
}

// Config configures a Learner.
type Config struct {
	// Location is the deployment time zone for hour and weekday buckets.
	Location *time.Location

	// MaxFutureSkew bounds how far ahead of the clock a timestamp may be.
	// Zero disables the check.
	MaxFutureSkew time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Learner maintains one ActivityPattern per source.
type Learner struct {
	store   PatternStore
	loc     *time.Location
	maxSkew time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	mu      sync.RWMutex
	sources map[string]*sourceEntry
}

type sourceEntry struct {
	mu      sync.Mutex
	pattern *models.ActivityPattern
	loaded  bool
	removed bool
}

// NewLearner creates a Learner. store may be nil for a memory-only baseline.
func NewLearner(store PatternStore, cfg Config) *Learner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Learner{
		store:   store,
		loc:     cfg.Location,
		maxSkew: cfg.MaxFutureSkew,
		now:     cfg.Now,
		logger:  logging.WithComponent("baseline"),
		sources: make(map[string]*sourceEntry),
	}
}

// Observe folds one event into the source's pattern.
//
// The update is applied in memory even if persisting it fails; the store
// error is returned so the caller can log it, and the next successful save
// carries the full state.
func (l *Learner) Observe(ctx context.Context, sourceID string, ts time.Time, categories []string) error {
	if sourceID == "" {
		return ErrEmptySource
	}
	if err := l.checkTimestamp(ts); err != nil {
		metrics.BaselineObserveErrors.WithLabelValues("invalid_timestamp").Inc()
		return err
	}

	for {
		e := l.entry(sourceID)
		e.mu.Lock()
		if e.removed {
			// RemoveSource won the race; retry against a fresh entry.
			e.mu.Unlock()
			continue
		}
		err := l.observeLocked(ctx, e, sourceID, ts, categories)
		e.mu.Unlock()
		return err
	}
}

func (l *Learner) observeLocked(ctx context.Context, e *sourceEntry, sourceID string, ts time.Time, categories []string) error {
	if err := l.ensureLoaded(ctx, e, sourceID); err != nil {
		metrics.BaselineObserveErrors.WithLabelValues("store").Inc()
		return err
	}

	next := e.pattern.Clone()
	local := ts.In(l.loc)
	next.HourlyCounts[local.Hour()]++
	next.DayOfWeekCounts[local.Weekday()]++
	for _, c := range distinct(categories) {
		next.CategoryCounts[c]++
	}
	next.TotalSamples++
	next.UpdatedAt = l.now()
	e.pattern = next

	if l.store == nil {
		return nil
	}
	if err := l.store.SavePattern(ctx, next.Clone()); err != nil {
		metrics.BaselineObserveErrors.WithLabelValues("store").Inc()
		return fmt.Errorf("save pattern for %s: %w", sourceID, err)
	}
	return nil
}

// GetPattern returns a point-in-time copy of the source's pattern, or an
// error wrapping models.ErrNotFound. Unknown sources are read straight from
// the store without being cached.
func (l *Learner) GetPattern(ctx context.Context, sourceID string) (*models.ActivityPattern, error) {
	if sourceID == "" {
		return nil, ErrEmptySource
	}

	l.mu.RLock()
	e, ok := l.sources[sourceID]
	l.mu.RUnlock()

	if !ok {
		if l.store == nil {
			return nil, fmt.Errorf("pattern for %s: %w", sourceID, models.ErrNotFound)
		}
		return l.store.LoadPattern(ctx, sourceID)
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil, fmt.Errorf("pattern for %s: %w", sourceID, models.ErrNotFound)
	}
	if err := l.ensureLoaded(ctx, e, sourceID); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	snapshot := e.pattern.Clone()
	e.mu.Unlock()

	if snapshot.TotalSamples == 0 {
		return nil, fmt.Errorf("pattern for %s: %w", sourceID, models.ErrNotFound)
	}
	return snapshot, nil
}

// RemoveSource drops the source's pattern from the store and from memory.
// Observers blocked on the source during removal start over from an empty
// pattern.
func (l *Learner) RemoveSource(ctx context.Context, sourceID string) error {
	if sourceID == "" {
		return ErrEmptySource
	}

	e := l.entry(sourceID)
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if l.store != nil {
		err = l.store.DeletePattern(ctx, sourceID)
	} else if e.pattern == nil || e.pattern.TotalSamples == 0 {
		err = fmt.Errorf("pattern for %s: %w", sourceID, models.ErrNotFound)
	}

	e.removed = true
	l.mu.Lock()
	delete(l.sources, sourceID)
	count := len(l.sources)
	l.mu.Unlock()
	metrics.BaselineSources.Set(float64(count))

	if err != nil {
		return fmt.Errorf("remove pattern for %s: %w", sourceID, err)
	}
	l.logger.Info().Str("source_id", sourceID).Msg("Baseline removed")
	return nil
}

// Backfill folds historical events into the baseline. Events with invalid
// timestamps or no source are skipped. It returns the number of events
// applied without error and the store errors joined together.
func (l *Learner) Backfill(ctx context.Context, events []models.Event) (int, error) {
	var applied, skipped int
	var errs []error

	for i := range events {
		if err := ctx.Err(); err != nil {
			return applied, errors.Join(append(errs, err)...)
		}
		ev := &events[i]
		err := l.Observe(ctx, ev.SourceID, ev.Timestamp, ev.Categories)
		switch {
		case err == nil:
			applied++
		case errors.Is(err, ErrInvalidTimestamp), errors.Is(err, ErrEmptySource):
			skipped++
		default:
			errs = append(errs, err)
		}
	}

	l.logger.Info().
		Int("applied", applied).
		Int("skipped", skipped).
		Int("store_errors", len(errs)).
		Msg("Baseline backfill complete")
	return applied, errors.Join(errs...)
}

// ListSources returns the ids of sources with a learned pattern.
func (l *Learner) ListSources(ctx context.Context) ([]string, error) {
	if l.store != nil {
		ids, err := l.store.ListPatternSources(ctx)
		if err != nil {
			return nil, fmt.Errorf("list pattern sources: %w", err)
		}
		return ids, nil
	}

	l.mu.RLock()
	entries := make(map[string]*sourceEntry, len(l.sources))
	for id, e := range l.sources {
		entries[id] = e
	}
	l.mu.RUnlock()

	ids := make([]string, 0, len(entries))
	for id, e := range entries {
		e.mu.Lock()
		if !e.removed && e.pattern != nil && e.pattern.TotalSamples > 0 {
			ids = append(ids, id)
		}
		e.mu.Unlock()
	}
	sort.Strings(ids)
	return ids, nil
}

func (l *Learner) checkTimestamp(ts time.Time) error {
	if ts.IsZero() || ts.Unix() <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTimestamp, ts)
	}
	if l.maxSkew > 0 && ts.After(l.now().Add(l.maxSkew)) {
		return fmt.Errorf("%w: %s is in the future", ErrInvalidTimestamp, ts.Format(time.RFC3339))
	}
	return nil
}

// entry returns the entry for sourceID, creating it if needed.
func (l *Learner) entry(sourceID string) *sourceEntry {
	l.mu.RLock()
	e, ok := l.sources[sourceID]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.sources[sourceID]; ok {
		return e
	}
	e = &sourceEntry{}
	l.sources[sourceID] = e
	metrics.BaselineSources.Set(float64(len(l.sources)))
	return e
}

// ensureLoaded must be called with e.mu held.
func (l *Learner) ensureLoaded(ctx context.Context, e *sourceEntry, sourceID string) error {
	if e.loaded {
		return nil
	}
	if l.store == nil {
		e.pattern = models.NewActivityPattern(sourceID)
		e.loaded = true
		return nil
	}

	p, err := l.store.LoadPattern(ctx, sourceID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		p = models.NewActivityPattern(sourceID)
	case err != nil:
		return fmt.Errorf("load pattern for %s: %w", sourceID, err)
	}
	if p.CategoryCounts == nil {
		p.CategoryCounts = make(map[string]int64)
	}
	if !p.Consistent() {
		l.logger.Warn().
			Str("source_id", sourceID).
			Int64("total_samples", p.TotalSamples).
			Msg("Stored pattern histograms do not match sample total")
	}
	e.pattern = p
	e.loaded = true
	return nil
}

func distinct(categories []string) []string {
	if len(categories) == 0 {
		return nil
	}
	ev := models.Event{Categories: categories}
	out := ev.DistinctCategories()
	n := 0
	for _, c := range out {
		if c != "" {
			out[n] = c
			n++
		}
	}
	return out[:n]
}
