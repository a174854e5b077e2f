// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/watchpost/internal/models"
)

// LoadPattern returns the stored pattern for sourceID, or an error wrapping
// models.ErrNotFound.
func (s *DuckDBStore) LoadPattern(ctx context.Context, sourceID string) (p *models.ActivityPattern, err error) {
	defer observe("load_pattern", time.Now(), &err)

	query := `
		SELECT source_id, hourly_counts, day_of_week_counts, category_counts, total_samples, updated_at
		FROM activity_patterns
		WHERE source_id = ?`

	var hourly, daily, categories string
	p = &models.ActivityPattern{}
	err = s.db.QueryRowContext(ctx, query, sourceID).Scan(
		&p.SourceID,
		&hourly,
		&daily,
		&categories,
		&p.TotalSamples,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pattern for %s: %w", sourceID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern: %w", err)
	}

	if err = decodePattern(p, hourly, daily, categories); err != nil {
		return nil, err
	}
	return p, nil
}

// SavePattern upserts the pattern.
func (s *DuckDBStore) SavePattern(ctx context.Context, p *models.ActivityPattern) (err error) {
	defer observe("save_pattern", time.Now(), &err)

	hourly, daily, categories, err := encodePattern(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO activity_patterns (source_id, hourly_counts, day_of_week_counts, category_counts, total_samples, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			hourly_counts = EXCLUDED.hourly_counts,
			day_of_week_counts = EXCLUDED.day_of_week_counts,
			category_counts = EXCLUDED.category_counts,
			total_samples = EXCLUDED.total_samples,
			updated_at = EXCLUDED.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		p.SourceID, hourly, daily, categories, p.TotalSamples, p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save pattern: %w", err)
	}
	return nil
}

// DeletePattern removes the pattern, returning an error wrapping
// models.ErrNotFound if there was none.
func (s *DuckDBStore) DeletePattern(ctx context.Context, sourceID string) (err error) {
	defer observe("delete_pattern", time.Now(), &err)

	result, err := s.db.ExecContext(ctx, `DELETE FROM activity_patterns WHERE source_id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete pattern: %w", err)
	}
	return checkRowsAffected(result, fmt.Errorf("pattern for %s: %w", sourceID, models.ErrNotFound))
}

// ListPatternSources returns the ids of all sources with a stored pattern.
func (s *DuckDBStore) ListPatternSources(ctx context.Context) (ids []string, err error) {
	defer observe("list_pattern_sources", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `SELECT source_id FROM activity_patterns ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pattern sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan source id: %w", err)
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	return ids, err
}

func encodePattern(p *models.ActivityPattern) (hourly, daily, categories string, err error) {
	h, err := json.Marshal(p.HourlyCounts)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal hourly counts: %w", err)
	}
	d, err := json.Marshal(p.DayOfWeekCounts)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal day of week counts: %w", err)
	}
	counts := p.CategoryCounts
	if counts == nil {
		counts = map[string]int64{}
	}
	c, err := json.Marshal(counts)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal category counts: %w", err)
	}
	return string(h), string(d), string(c), nil
}

func decodePattern(p *models.ActivityPattern, hourly, daily, categories string) error {
	if err := json.Unmarshal([]byte(hourly), &p.HourlyCounts); err != nil {
		return fmt.Errorf("failed to unmarshal hourly counts: %w", err)
	}
	if err := json.Unmarshal([]byte(daily), &p.DayOfWeekCounts); err != nil {
		return fmt.Errorf("failed to unmarshal day of week counts: %w", err)
	}
	p.CategoryCounts = make(map[string]int64)
	if err := json.Unmarshal([]byte(categories), &p.CategoryCounts); err != nil {
		return fmt.Errorf("failed to unmarshal category counts: %w", err)
	}
	return nil
}
