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

	"github.com/tomtom215/watchpost/internal/logging"
	"github.com/tomtom215/watchpost/internal/models"
)

const ruleSelectColumns = `
		id, name, enabled, conditions, actions, cooldown_seconds,
		last_triggered_at, trigger_count, created_at, updated_at`

// scanRuleRow scans a single rule row and decodes its JSON columns.
func scanRuleRow(scanner rowScanner, rule *models.Rule) error {
	var conditions, actions string
	var lastTriggered sql.NullTime

	if err := scanner.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Enabled,
		&conditions,
		&actions,
		&rule.CooldownSeconds,
		&lastTriggered,
		&rule.TriggerCount,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return err
	}

	if lastTriggered.Valid {
		t := lastTriggered.Time
		rule.LastTriggeredAt = &t
	}
	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return &corruptRuleError{id: rule.ID, err: fmt.Errorf("conditions: %w", err)}
	}
	if err := json.Unmarshal([]byte(actions), &rule.Actions); err != nil {
		return &corruptRuleError{id: rule.ID, err: fmt.Errorf("actions: %w", err)}
	}
	return nil
}

// corruptRuleError marks a row that scanned but could not be decoded.
type corruptRuleError struct {
	id  string
	err error
}

func (e *corruptRuleError) Error() string {
	return fmt.Sprintf("rule %s is corrupt: %v", e.id, e.err)
}

func (e *corruptRuleError) Unwrap() error { return e.err }

// CreateRule inserts a rule.
func (s *DuckDBStore) CreateRule(ctx context.Context, rule *models.Rule) (err error) {
	defer observe("create_rule", time.Now(), &err)

	conditions, actions, err := encodeRule(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alert_rules (id, name, enabled, conditions, actions, cooldown_seconds,
			last_triggered_at, trigger_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		rule.Enabled,
		conditions,
		actions,
		rule.CooldownSeconds,
		nullTime(rule.LastTriggeredAt),
		rule.TriggerCount,
		rule.CreatedAt.UTC(),
		rule.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// UpdateRule replaces the user-editable fields of a rule. Trigger state is
// left alone; only ClaimTrigger writes it.
func (s *DuckDBStore) UpdateRule(ctx context.Context, rule *models.Rule) (err error) {
	defer observe("update_rule", time.Now(), &err)

	conditions, actions, err := encodeRule(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE alert_rules
		SET name = ?, enabled = ?, conditions = ?, actions = ?, cooldown_seconds = ?, updated_at = ?
		WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query,
		rule.Name,
		rule.Enabled,
		conditions,
		actions,
		rule.CooldownSeconds,
		rule.UpdatedAt.UTC(),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return checkRowsAffected(result, fmt.Errorf("rule %s: %w", rule.ID, models.ErrNotFound))
}

// SetRuleEnabled toggles a rule.
func (s *DuckDBStore) SetRuleEnabled(ctx context.Context, id string, enabled bool, now time.Time) (err error) {
	defer observe("set_rule_enabled", time.Now(), &err)

	result, err := s.db.ExecContext(ctx,
		`UPDATE alert_rules SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set rule enabled: %w", err)
	}
	return checkRowsAffected(result, fmt.Errorf("rule %s: %w", id, models.ErrNotFound))
}

// DeleteRule removes a rule.
func (s *DuckDBStore) DeleteRule(ctx context.Context, id string) (err error) {
	defer observe("delete_rule", time.Now(), &err)

	result, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return checkRowsAffected(result, fmt.Errorf("rule %s: %w", id, models.ErrNotFound))
}

// GetRule returns a rule by id, or an error wrapping models.ErrNotFound.
func (s *DuckDBStore) GetRule(ctx context.Context, id string) (rule *models.Rule, err error) {
	defer observe("get_rule", time.Now(), &err)

	query := `SELECT ` + ruleSelectColumns + ` FROM alert_rules WHERE id = ?`

	rule = &models.Rule{}
	err = scanRuleRow(s.db.QueryRowContext(ctx, query, id), rule)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListRules returns all rules ordered by creation time. Rows that cannot be
// decoded are skipped and reported in the joined error alongside the good rows.
func (s *DuckDBStore) ListRules(ctx context.Context) (rules []models.Rule, err error) {
	defer observe("list_rules", time.Now(), &err)
	return s.queryRules(ctx, `SELECT `+ruleSelectColumns+` FROM alert_rules ORDER BY created_at, id`)
}

// ListEnabledRules returns enabled rules with the same corrupt-row handling
// as ListRules.
func (s *DuckDBStore) ListEnabledRules(ctx context.Context) (rules []models.Rule, err error) {
	defer observe("list_enabled_rules", time.Now(), &err)
	return s.queryRules(ctx, `SELECT `+ruleSelectColumns+` FROM alert_rules WHERE enabled ORDER BY created_at, id`)
}

func (s *DuckDBStore) queryRules(ctx context.Context, query string) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []models.Rule
	var corrupt []error
	for rows.Next() {
		var rule models.Rule
		err := scanRuleRow(rows, &rule)
		var cre *corruptRuleError
		if errors.As(err, &cre) {
			logging.Error().Err(err).Str("rule_id", cre.id).Msg("Skipping corrupt rule")
			corrupt = append(corrupt, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, errors.Join(corrupt...)
}

// ClaimTrigger atomically records a trigger for an enabled rule whose
// cooldown has elapsed at now and returns the stored trigger count. It
// reports false, with no error, when the rule is cooling down, disabled or gone.
func (s *DuckDBStore) ClaimTrigger(ctx context.Context, id string, now time.Time, cooldown time.Duration) (triggerCount int64, claimed bool, err error) {
	defer observe("claim_trigger", time.Now(), &err)

	query := `
		UPDATE alert_rules
		SET last_triggered_at = ?, trigger_count = trigger_count + 1
		WHERE id = ?
			AND enabled
			AND (last_triggered_at IS NULL OR last_triggered_at <= ?)
		RETURNING trigger_count`

	err = s.db.QueryRowContext(ctx, query, now.UTC(), id, now.Add(-cooldown).UTC()).Scan(&triggerCount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to claim rule trigger: %w", err)
	}
	return triggerCount, true, nil
}

func encodeRule(rule *models.Rule) (conditions, actions string, err error) {
	c, err := json.Marshal(rule.Conditions)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal conditions: %w", err)
	}
	acts := rule.Actions
	if acts == nil {
		acts = []models.Action{}
	}
	a, err := json.Marshal(acts)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal actions: %w", err)
	}
	return string(c), string(a), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
