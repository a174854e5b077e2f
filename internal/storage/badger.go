// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/watchpost/internal/logging"
	"github.com/tomtom215/watchpost/internal/models"
)

const (
	backendBadger = "badger"

	// patternKeyPrefix namespaces pattern keys.
	patternKeyPrefix = "pattern:"
)

// BadgerPatternStore implements baseline.PatternStore on BadgerDB. It suits
// deployments that want the baseline on a local key-value store with
// write-heavy, single-key access.
type BadgerPatternStore struct {
	db *badger.DB
}

// OpenBadgerPatternStore opens a pattern store at path. An empty path opens
// an in-memory store.
func OpenBadgerPatternStore(path string) (*BadgerPatternStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().Str("path", path).Bool("in_memory", path == "").Msg("Badger pattern store opened")
	return &BadgerPatternStore{db: db}, nil
}

// Close closes the database.
func (s *BadgerPatternStore) Close() error {
	return s.db.Close()
}

// LoadPattern returns the stored pattern for sourceID, or an error wrapping
// models.ErrNotFound.
func (s *BadgerPatternStore) LoadPattern(ctx context.Context, sourceID string) (p *models.ActivityPattern, err error) {
	defer func(start time.Time) { record(backendBadger, "load_pattern", start, err) }(time.Now())

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(patternKey(sourceID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			p = &models.ActivityPattern{}
			return json.Unmarshal(val, p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("pattern for %s: %w", sourceID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern: %w", err)
	}
	if p.CategoryCounts == nil {
		p.CategoryCounts = make(map[string]int64)
	}
	return p, nil
}

// SavePattern writes the pattern.
func (s *BadgerPatternStore) SavePattern(ctx context.Context, p *models.ActivityPattern) (err error) {
	defer func(start time.Time) { record(backendBadger, "save_pattern", start, err) }(time.Now())

	if err = ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pattern: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(patternKey(p.SourceID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save pattern: %w", err)
	}
	return nil
}

// DeletePattern removes the pattern, returning an error wrapping
// models.ErrNotFound if there was none.
func (s *BadgerPatternStore) DeletePattern(ctx context.Context, sourceID string) (err error) {
	defer func(start time.Time) { record(backendBadger, "delete_pattern", start, err) }(time.Now())

	if err = ctx.Err(); err != nil {
		return err
	}

	key := patternKey(sourceID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("pattern for %s: %w", sourceID, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete pattern: %w", err)
	}
	return nil
}

// ListPatternSources returns the ids of all sources with a stored pattern.
func (s *BadgerPatternStore) ListPatternSources(ctx context.Context) (ids []string, err error) {
	defer func(start time.Time) { record(backendBadger, "list_pattern_sources", start, err) }(time.Now())

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(patternKeyPrefix)
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			ids = append(ids, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pattern sources: %w", err)
	}
	return ids, nil
}

func patternKey(sourceID string) []byte {
	return []byte(patternKeyPrefix + sourceID)
}
