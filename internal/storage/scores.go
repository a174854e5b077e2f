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

	"github.com/tomtom215/watchpost/internal/models"
)

// SaveScore upserts the score by event id. A recomputation overwrites.
func (s *DuckDBStore) SaveScore(ctx context.Context, score *models.AnomalyScore) (err error) {
	defer observe("save_score", time.Now(), &err)

	query := `
		INSERT INTO anomaly_scores (event_id, source_id, total_score, timing_score, day_score, category_score, severity, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO UPDATE SET
			total_score = EXCLUDED.total_score,
			timing_score = EXCLUDED.timing_score,
			day_score = EXCLUDED.day_score,
			category_score = EXCLUDED.category_score,
			severity = EXCLUDED.severity,
			computed_at = EXCLUDED.computed_at`

	_, err = s.db.ExecContext(ctx, query,
		score.EventID,
		score.SourceID,
		score.TotalScore,
		score.TimingScore,
		score.DayScore,
		score.CategoryScore,
		string(score.Severity),
		score.ComputedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}
	return nil
}

// GetScore returns the score for eventID, or an error wrapping models.ErrNotFound.
func (s *DuckDBStore) GetScore(ctx context.Context, eventID string) (score *models.AnomalyScore, err error) {
	defer observe("get_score", time.Now(), &err)

	query := `
		SELECT event_id, source_id, total_score, timing_score, day_score, category_score, severity, computed_at
		FROM anomaly_scores
		WHERE event_id = ?`

	score = &models.AnomalyScore{}
	err = scanScoreRow(s.db.QueryRowContext(ctx, query, eventID), score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("score for %s: %w", eventID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get score: %w", err)
	}
	return score, nil
}

// ListScoresBySource returns the most recent scores for a source, newest first.
func (s *DuckDBStore) ListScoresBySource(ctx context.Context, sourceID string, limit int) (scores []models.AnomalyScore, err error) {
	defer observe("list_scores", time.Now(), &err)

	query := `
		SELECT event_id, source_id, total_score, timing_score, day_score, category_score, severity, computed_at
		FROM anomaly_scores
		WHERE source_id = ?
		ORDER BY computed_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var score models.AnomalyScore
		if err = scanScoreRow(rows, &score); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, score)
	}
	err = rows.Err()
	return scores, err
}

func scanScoreRow(scanner rowScanner, score *models.AnomalyScore) error {
	var severity string
	if err := scanner.Scan(
		&score.EventID,
		&score.SourceID,
		&score.TotalScore,
		&score.TimingScore,
		&score.DayScore,
		&score.CategoryScore,
		&severity,
		&score.ComputedAt,
	); err != nil {
		return err
	}
	score.Severity = models.Severity(severity)
	return nil
}
