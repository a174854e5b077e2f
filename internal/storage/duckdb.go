// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

// Package storage persists baselines, scores, rules, and in-app notifications.
//
// DuckDBStore implements every store interface used by the service.
// BadgerPatternStore is an alternative backend for activity patterns only.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB driver

	"github.com/tomtom215/watchpost/internal/logging"
	"github.com/tomtom215/watchpost/internal/metrics"
	"github.com/tomtom215/watchpost/internal/models"
)

const backendDuckDB = "duckdb"

// DuckDBStore implements baseline.PatternStore, anomaly.ScoreStore,
// rules.RuleStore, and dispatch.NotificationStore on DuckDB.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a new DuckDB-backed store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// Open opens a DuckDB database. An empty path opens an in-memory database.
func Open(path, maxMemory string) (*sql.DB, error) {
	connStr := path
	if maxMemory != "" {
		connStr = fmt.Sprintf("%s?max_memory=%s", path, maxMemory)
	}

	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	target := path
	if target == "" {
		target = ":memory:"
	}
	logging.Info().Str("path", target).Msg("DuckDB opened")
	return db, nil
}

// InitSchema creates the tables if they do not exist.
func (s *DuckDBStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS activity_patterns (
			source_id VARCHAR PRIMARY KEY,
			hourly_counts VARCHAR NOT NULL,
			day_of_week_counts VARCHAR NOT NULL,
			category_counts VARCHAR NOT NULL,
			total_samples BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS anomaly_scores (
			event_id VARCHAR PRIMARY KEY,
			source_id VARCHAR NOT NULL,
			total_score DOUBLE NOT NULL,
			timing_score DOUBLE NOT NULL,
			day_score DOUBLE NOT NULL,
			category_score DOUBLE NOT NULL,
			severity VARCHAR NOT NULL,
			computed_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anomaly_scores_source ON anomaly_scores(source_id)`,
		`CREATE TABLE IF NOT EXISTS alert_rules (
			id VARCHAR PRIMARY KEY,
			name VARCHAR NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			conditions VARCHAR NOT NULL,
			actions VARCHAR NOT NULL,
			cooldown_seconds BIGINT NOT NULL DEFAULT 0,
			last_triggered_at TIMESTAMP,
			trigger_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS in_app_notifications (
			id VARCHAR PRIMARY KEY,
			rule_id VARCHAR NOT NULL,
			event_id VARCHAR NOT NULL,
			source_id VARCHAR NOT NULL,
			title VARCHAR NOT NULL,
			message VARCHAR NOT NULL,
			severity VARCHAR,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_in_app_notifications_created ON in_app_notifications(created_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *DuckDBStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

// observe records latency and errors for one DuckDB operation. It is
// deferred with a pointer to the named error result.
func observe(operation string, start time.Time, err *error) {
	record(backendDuckDB, operation, start, *err)
}

// record reports one store operation. Not-found is not a failure.
func record(backend, operation string, start time.Time, err error) {
	if errors.Is(err, models.ErrNotFound) {
		err = nil
	}
	metrics.RecordDBQuery(backend, operation, time.Since(start), err)
}

// checkRowsAffected returns notFound when the statement touched no rows.
func checkRowsAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}
