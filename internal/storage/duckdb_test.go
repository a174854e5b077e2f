// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-set/v2"

	"github.com/tomtom215/watchpost/internal/models"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// setupTestStore creates a DuckDBStore on an in-memory database with the schema applied.
func setupTestStore(t *testing.T) *DuckDBStore {
	t.Helper()
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := NewDuckDBStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return store
}

func testRule(id string) *models.Rule {
	minScore := 0.5
	return &models.Rule{
		ID:      id,
		Name:    "person at night",
		Enabled: true,
		Conditions: models.Conditions{
			Categories:      set.From([]string{"person"}),
			TimeWindow:      &models.TimeWindow{Start: "22:00", End: "06:00"},
			MinAnomalyScore: &minScore,
		},
		Actions: []models.Action{
			{Channel: models.ChannelInApp},
			{Channel: models.ChannelWebhook, WebhookURL: "https://hooks.example.com/a"},
		},
		CooldownSeconds: 300,
		CreatedAt:       baseTime,
		UpdatedAt:       baseTime,
	}
}

func TestDuckDBStore_InitSchemaIdempotent(t *testing.T) {
	store := setupTestStore(t)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
}

func TestDuckDBStore_Patterns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.LoadPattern(ctx, "cam-1"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("LoadPattern on empty store: got %v, want ErrNotFound", err)
	}

	p := models.NewActivityPattern("cam-1")
	p.HourlyCounts[3] = 2
	p.DayOfWeekCounts[time.Monday] = 2
	p.CategoryCounts["person"] = 2
	p.TotalSamples = 2
	p.UpdatedAt = baseTime
	if err := store.SavePattern(ctx, p); err != nil {
		t.Fatalf("SavePattern failed: %v", err)
	}

	p.HourlyCounts[4] = 1
	p.DayOfWeekCounts[time.Monday] = 3
	p.CategoryCounts["car"] = 1
	p.TotalSamples = 3
	if err := store.SavePattern(ctx, p); err != nil {
		t.Fatalf("SavePattern upsert failed: %v", err)
	}

	got, err := store.LoadPattern(ctx, "cam-1")
	if err != nil {
		t.Fatalf("LoadPattern failed: %v", err)
	}
	if got.TotalSamples != 3 || got.HourlyCounts[3] != 2 || got.HourlyCounts[4] != 1 {
		t.Errorf("unexpected pattern: %+v", got)
	}
	if got.CategoryCounts["person"] != 2 || got.CategoryCounts["car"] != 1 {
		t.Errorf("unexpected categories: %v", got.CategoryCounts)
	}
	if !got.UpdatedAt.Equal(baseTime) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, baseTime)
	}

	ids, err := store.ListPatternSources(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "cam-1" {
		t.Errorf("ListPatternSources = %v, %v", ids, err)
	}

	if err := store.DeletePattern(ctx, "cam-1"); err != nil {
		t.Fatalf("DeletePattern failed: %v", err)
	}
	if err := store.DeletePattern(ctx, "cam-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second DeletePattern: got %v, want ErrNotFound", err)
	}
}

func TestDuckDBStore_ScoresUpsert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	score := &models.AnomalyScore{
		EventID:       "evt-1",
		SourceID:      "cam-1",
		TotalScore:    0.4,
		TimingScore:   1,
		CategoryScore: 0,
		Severity:      models.SeverityMedium,
		ComputedAt:    baseTime,
	}
	if err := store.SaveScore(ctx, score); err != nil {
		t.Fatalf("SaveScore failed: %v", err)
	}

	score.TotalScore = 0.9
	score.Severity = models.SeverityHigh
	if err := store.SaveScore(ctx, score); err != nil {
		t.Fatalf("SaveScore overwrite failed: %v", err)
	}

	got, err := store.GetScore(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetScore failed: %v", err)
	}
	if got.TotalScore != 0.9 || got.Severity != models.SeverityHigh {
		t.Errorf("score not overwritten: %+v", got)
	}

	list, err := store.ListScoresBySource(ctx, "cam-1", 10)
	if err != nil || len(list) != 1 {
		t.Errorf("ListScoresBySource = %v, %v; want one score", list, err)
	}

	if _, err := store.GetScore(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetScore missing: got %v, want ErrNotFound", err)
	}
}

func TestDuckDBStore_RuleCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rule := testRule("rule-1")
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	got, err := store.GetRule(ctx, "rule-1")
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if got.Name != rule.Name || !got.Enabled || got.CooldownSeconds != 300 {
		t.Errorf("unexpected rule: %+v", got)
	}
	if got.Conditions.Categories == nil || !got.Conditions.Categories.Contains("person") {
		t.Errorf("categories not round-tripped: %+v", got.Conditions)
	}
	if got.Conditions.Sources != nil {
		t.Error("unset sources must stay unset")
	}
	if got.Conditions.TimeWindow == nil || got.Conditions.TimeWindow.Start != "22:00" {
		t.Errorf("time window not round-tripped: %+v", got.Conditions.TimeWindow)
	}
	if len(got.Actions) != 2 || got.Actions[1].WebhookURL != "https://hooks.example.com/a" {
		t.Errorf("actions not round-tripped: %+v", got.Actions)
	}
	if got.LastTriggeredAt != nil {
		t.Error("new rule must not have a trigger time")
	}

	got.Name = "renamed"
	got.UpdatedAt = baseTime.Add(time.Minute)
	if err := store.UpdateRule(ctx, got); err != nil {
		t.Fatalf("UpdateRule failed: %v", err)
	}
	if err := store.SetRuleEnabled(ctx, "rule-1", false, baseTime.Add(2*time.Minute)); err != nil {
		t.Fatalf("SetRuleEnabled failed: %v", err)
	}

	enabled, err := store.ListEnabledRules(ctx)
	if err != nil {
		t.Fatalf("ListEnabledRules failed: %v", err)
	}
	if len(enabled) != 0 {
		t.Errorf("disabled rule listed as enabled: %+v", enabled)
	}

	all, err := store.ListRules(ctx)
	if err != nil || len(all) != 1 || all[0].Name != "renamed" {
		t.Errorf("ListRules = %+v, %v", all, err)
	}

	if err := store.DeleteRule(ctx, "rule-1"); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}
	if _, err := store.GetRule(ctx, "rule-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetRule after delete: got %v, want ErrNotFound", err)
	}
	if err := store.UpdateRule(ctx, got); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("UpdateRule after delete: got %v, want ErrNotFound", err)
	}
}

func TestDuckDBStore_ListRulesSkipsCorruptRows(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.CreateRule(ctx, testRule("good")); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO alert_rules (id, name, enabled, conditions, actions, cooldown_seconds, trigger_count, created_at, updated_at)
		VALUES ('bad', 'bad', TRUE, '{not json', '[]', 0, 0, ?, ?)`, baseTime, baseTime)
	if err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	rules, err := store.ListEnabledRules(ctx)
	if err == nil {
		t.Error("expected an error describing the corrupt row")
	}
	if len(rules) != 1 || rules[0].ID != "good" {
		t.Errorf("expected only the good rule, got %+v", rules)
	}
}

func TestDuckDBStore_ClaimTrigger(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.CreateRule(ctx, testRule("rule-1")); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	cooldown := 300 * time.Second

	steps := []struct {
		offset    time.Duration
		want      bool
		wantCount int64
	}{
		{0, true, 1},
		{60 * time.Second, false, 0},
		{300 * time.Second, true, 2},
		{301 * time.Second, false, 0},
		{601 * time.Second, true, 3},
	}
	for _, step := range steps {
		count, claimed, err := store.ClaimTrigger(ctx, "rule-1", baseTime.Add(step.offset), cooldown)
		if err != nil {
			t.Fatalf("ClaimTrigger at +%v failed: %v", step.offset, err)
		}
		if claimed != step.want || count != step.wantCount {
			t.Errorf("ClaimTrigger at +%v = (%d, %v), want (%d, %v)", step.offset, count, claimed, step.wantCount, step.want)
		}
	}

	got, err := store.GetRule(ctx, "rule-1")
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if got.TriggerCount != 3 {
		t.Errorf("TriggerCount = %d, want 3", got.TriggerCount)
	}
	if got.LastTriggeredAt == nil || !got.LastTriggeredAt.Equal(baseTime.Add(601*time.Second)) {
		t.Errorf("LastTriggeredAt = %v", got.LastTriggeredAt)
	}

	if _, claimed, err := store.ClaimTrigger(ctx, "missing", baseTime, cooldown); err != nil || claimed {
		t.Errorf("ClaimTrigger on missing rule = %v, %v", claimed, err)
	}

	if err := store.SetRuleEnabled(ctx, "rule-1", false, baseTime); err != nil {
		t.Fatalf("SetRuleEnabled failed: %v", err)
	}
	if _, claimed, _ := store.ClaimTrigger(ctx, "rule-1", baseTime.Add(time.Hour), cooldown); claimed {
		t.Error("disabled rule must not be claimed")
	}
}

func TestDuckDBStore_Notifications(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i, title := range []string{"first", "second", "third"} {
		n := &models.InAppNotification{
			RuleID:    "rule-1",
			EventID:   "evt",
			SourceID:  "cam-1",
			Title:     title,
			Message:   "person detected",
			Severity:  models.SeverityHigh,
			CreatedAt: baseTime.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateNotification(ctx, n); err != nil {
			t.Fatalf("CreateNotification failed: %v", err)
		}
		if n.ID == "" {
			t.Fatal("expected an assigned id")
		}
	}

	list, err := store.ListNotifications(ctx, 2, false)
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(list) != 2 || list[0].Title != "third" || list[1].Title != "second" {
		t.Fatalf("unexpected order or limit: %+v", list)
	}

	if err := store.MarkNotificationRead(ctx, list[0].ID); err != nil {
		t.Fatalf("MarkNotificationRead failed: %v", err)
	}
	unread, err := store.ListNotifications(ctx, 0, true)
	if err != nil || len(unread) != 2 {
		t.Errorf("unread = %+v, %v; want two", unread, err)
	}
	if err := store.MarkNotificationRead(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("MarkNotificationRead missing: got %v, want ErrNotFound", err)
	}
}
