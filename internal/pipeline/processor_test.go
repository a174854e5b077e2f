// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-set/v2"

	"github.com/tomtom215/watchpost/internal/anomaly"
	"github.com/tomtom215/watchpost/internal/baseline"
	"github.com/tomtom215/watchpost/internal/dispatch"
	"github.com/tomtom215/watchpost/internal/models"
	"github.com/tomtom215/watchpost/internal/rules"
	"github.com/tomtom215/watchpost/internal/storage"
)

// Monday.
var baseTime = time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testPipeline struct {
	processor *Processor
	store     *storage.DuckDBStore
	learner   *baseline.Learner
	clock     *testClock
}

func setupPipeline(t *testing.T) *testPipeline {
	t.Helper()

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := storage.NewDuckDBStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	clock := &testClock{now: baseTime}
	learner := baseline.NewLearner(store, baseline.Config{Now: clock.Now})
	scorer, err := anomaly.NewScorer(anomaly.Config{
		Weights:    anomaly.DefaultWeights,
		Thresholds: anomaly.DefaultThresholds,
		MinSamples: 50,
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}
	engine := rules.NewEngine(store, rules.EngineConfig{Now: clock.Now})
	dispatcher := dispatch.NewDispatcher(
		dispatch.NewRegistry(dispatch.NewInAppChannel(store)),
		dispatch.DefaultConfig(),
	)

	p := NewProcessor(Deps{
		Baseline:   learner,
		Scorer:     scorer,
		Scores:     store,
		Rules:      engine,
		Dispatcher: dispatcher,
	}, Config{DedupCapacity: 1000, DedupTTL: time.Hour})

	return &testPipeline{processor: p, store: store, learner: learner, clock: clock}
}

func (tp *testPipeline) createRule(t *testing.T, rule *models.Rule) {
	t.Helper()
	rule.CreatedAt = baseTime
	rule.UpdatedAt = baseTime
	if err := tp.store.CreateRule(context.Background(), rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
}

// seedBaseline folds n "person" events at 03:xx on Mondays into cam-1.
func (tp *testPipeline) seedBaseline(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ts := baseTime.AddDate(0, 0, -7*(i+1))
		if err := tp.learner.Observe(context.Background(), "cam-1", ts, []string{"person"}); err != nil {
			t.Fatalf("Observe() error = %v", err)
		}
	}
}

func event(id string, ts time.Time, categories ...string) *models.Event {
	return &models.Event{EventID: id, SourceID: "cam-1", Timestamp: ts, Categories: categories, Confidence: 0.9}
}

func (tp *testPipeline) process(t *testing.T, ev *models.Event) *Result {
	t.Helper()
	tp.clock.Set(ev.Timestamp)
	res, err := tp.processor.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process(%s) error = %v", ev.EventID, err)
	}
	return res
}

func TestProcess_PersonCooldown(t *testing.T) {
	tp := setupPipeline(t)
	tp.createRule(t, &models.Rule{
		ID:              "rule-person",
		Name:            "Person seen",
		Enabled:         true,
		Conditions:      models.Conditions{Categories: set.From([]string{"person"})},
		Actions:         []models.Action{{Channel: models.ChannelInApp}},
		CooldownSeconds: 300,
	})

	steps := []struct {
		offset    time.Duration
		triggered bool
	}{
		{0, true},
		{60 * time.Second, false},
		{300 * time.Second, true},
	}
	for i, step := range steps {
		res := tp.process(t, event(fmt.Sprintf("evt-%d", i), baseTime.Add(step.offset), "person"))
		if got := len(res.Outcomes) == 1; got != step.triggered {
			t.Errorf("event at +%v: triggered = %v, want %v", step.offset, got, step.triggered)
		}
		for _, o := range res.Outcomes {
			if !o.Success() {
				t.Errorf("event at +%v: delivery failed: %v", step.offset, o.Errors)
			}
		}
	}

	notes, err := tp.store.ListNotifications(context.Background(), 10, false)
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	if len(notes) != 2 {
		t.Errorf("stored %d notifications, want 2", len(notes))
	}
}

func TestProcess_Duplicate(t *testing.T) {
	tp := setupPipeline(t)
	ev := event("evt-dup", baseTime, "person")

	first := tp.process(t, ev)
	second := tp.process(t, ev)

	if first.Duplicate {
		t.Error("first delivery marked duplicate")
	}
	if !second.Duplicate {
		t.Error("second delivery not marked duplicate")
	}

	pattern, err := tp.learner.GetPattern(context.Background(), "cam-1")
	if err != nil {
		t.Fatalf("GetPattern() error = %v", err)
	}
	if pattern.TotalSamples != 1 {
		t.Errorf("TotalSamples = %d, want 1", pattern.TotalSamples)
	}
}

func TestProcess_InvalidEvent(t *testing.T) {
	tp := setupPipeline(t)

	tests := []struct {
		name  string
		event *models.Event
	}{
		{"nil", nil},
		{"missing source", &models.Event{EventID: "e", Timestamp: baseTime}},
		{"missing timestamp", &models.Event{EventID: "e", SourceID: "cam-1"}},
		{"confidence out of range", &models.Event{EventID: "e", SourceID: "cam-1", Timestamp: baseTime, Confidence: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tp.processor.Process(context.Background(), tt.event); !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestProcess_ScoresAgainstPreEventSnapshot(t *testing.T) {
	tp := setupPipeline(t)
	tp.seedBaseline(t, 49)

	// The 50th sample is this event; the snapshot before it has 49.
	res := tp.process(t, event("evt-50", baseTime, "person"))
	if !res.Insufficient || res.Score != nil {
		t.Fatalf("expected insufficient data, got %+v", res.Score)
	}

	res = tp.process(t, event("evt-51", baseTime.Add(12*time.Hour), "person"))
	if res.Insufficient || res.Score == nil {
		t.Fatal("expected a score once the baseline holds 50 samples")
	}
	if res.Score.TimingScore < 0.95 {
		t.Errorf("TimingScore = %v, want near 1 for an unseen hour", res.Score.TimingScore)
	}
	if res.Event.Anomaly == nil || res.Event.Anomaly.TotalScore != res.Score.TotalScore {
		t.Error("score not attached to the event")
	}

	stored, err := tp.store.GetScore(context.Background(), "evt-51")
	if err != nil {
		t.Fatalf("GetScore() error = %v", err)
	}
	if stored.Severity != res.Score.Severity {
		t.Errorf("stored severity = %s, want %s", stored.Severity, res.Score.Severity)
	}
}

func TestProcess_AnomalyRuleFailsClosedWithoutBaseline(t *testing.T) {
	tp := setupPipeline(t)
	threshold := 0.5
	tp.createRule(t, &models.Rule{
		ID:         "rule-anomaly",
		Name:       "Unusual activity",
		Enabled:    true,
		Conditions: models.Conditions{MinAnomalyScore: &threshold},
		Actions:    []models.Action{{Channel: models.ChannelInApp}},
	})

	res := tp.process(t, event("evt-cold", baseTime.Add(12*time.Hour), "person"))
	if len(res.Outcomes) != 0 {
		t.Fatalf("rule triggered without a baseline: %+v", res.Outcomes)
	}

	tp.seedBaseline(t, 60)

	res = tp.process(t, event("evt-warm", baseTime.Add(12*time.Hour), "bear"))
	if len(res.Outcomes) != 1 {
		t.Fatalf("expected the anomaly rule to trigger, score %+v", res.Score)
	}
	if res.Outcomes[0].RuleID != "rule-anomaly" {
		t.Errorf("RuleID = %s", res.Outcomes[0].RuleID)
	}
}

func TestProcess_DoesNotMutateInput(t *testing.T) {
	tp := setupPipeline(t)
	tp.seedBaseline(t, 60)

	ev := event("evt-1", baseTime, "person")
	tp.process(t, ev)
	if ev.Anomaly != nil {
		t.Error("Process attached a score to the caller's event")
	}
}

// countingDispatcher records concurrent dispatches.
type countingDispatcher struct {
	mu    sync.Mutex
	rules []string
}

func (d *countingDispatcher) Dispatch(_ context.Context, rule *models.Rule, ev *models.Event) models.DeliveryOutcome {
	d.mu.Lock()
	d.rules = append(d.rules, rule.ID)
	d.mu.Unlock()
	return models.DeliveryOutcome{
		RuleID:            rule.ID,
		EventID:           ev.EventID,
		ChannelsAttempted: []models.ChannelKind{models.ChannelInApp},
		ChannelsSucceeded: []models.ChannelKind{models.ChannelInApp},
	}
}

type staticRules []models.Rule

func (s staticRules) EvaluateEvent(context.Context, *models.Event) ([]models.Rule, error) {
	return s, nil
}

func TestProcess_DispatchesEveryTriggeredRule(t *testing.T) {
	d := &countingDispatcher{}
	learner := baseline.NewLearner(nil, baseline.Config{})
	scorer, err := anomaly.NewScorer(anomaly.Config{Weights: anomaly.DefaultWeights, Thresholds: anomaly.DefaultThresholds})
	if err != nil {
		t.Fatal(err)
	}
	p := NewProcessor(Deps{
		Baseline:   learner,
		Scorer:     scorer,
		Rules:      staticRules{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Dispatcher: d,
	}, Config{})

	res, err := p.Process(context.Background(), event("evt-1", baseTime, "person"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(res.Outcomes) != 3 || len(d.rules) != 3 {
		t.Fatalf("dispatched %d rules, want 3", len(d.rules))
	}
	for i, id := range []string{"a", "b", "c"} {
		if res.Outcomes[i].RuleID != id {
			t.Errorf("Outcomes[%d].RuleID = %s, want %s", i, res.Outcomes[i].RuleID, id)
		}
	}
}

// cancelingRules cancels the processing context as rule evaluation starts.
type cancelingRules struct {
	inner  RuleEvaluator
	cancel context.CancelFunc
}

func (c *cancelingRules) EvaluateEvent(ctx context.Context, ev *models.Event) ([]models.Rule, error) {
	c.cancel()
	return c.inner.EvaluateEvent(ctx, ev)
}

func inAppPersonRule() *models.Rule {
	return &models.Rule{
		ID:              "rule-person",
		Name:            "Person seen",
		Enabled:         true,
		Conditions:      models.Conditions{Categories: set.From([]string{"person"})},
		Actions:         []models.Action{{Channel: models.ChannelInApp}},
		CooldownSeconds: 300,
	}
}

func TestProcess_CanceledBeforeStartCanBeRetried(t *testing.T) {
	tp := setupPipeline(t)
	tp.createRule(t, inAppPersonRule())
	ev := event("evt-x", baseTime, "person")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tp.processor.Process(ctx, ev); !errors.Is(err, ErrInterrupted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Process() with canceled ctx: got %v, want ErrInterrupted wrapping context.Canceled", err)
	}

	res := tp.process(t, ev)
	if res.Duplicate {
		t.Fatal("retry after cancellation treated as duplicate")
	}
	if len(res.Outcomes) != 1 || !res.Outcomes[0].Success() {
		t.Fatalf("retry outcomes = %+v, want one successful delivery", res.Outcomes)
	}

	notes, err := tp.store.ListNotifications(context.Background(), 10, false)
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	if len(notes) != 1 || notes[0].EventID != "evt-x" {
		t.Errorf("notifications = %+v, want one for evt-x", notes)
	}
	pattern, err := tp.learner.GetPattern(context.Background(), "cam-1")
	if err != nil {
		t.Fatalf("GetPattern() error = %v", err)
	}
	if pattern.TotalSamples != 1 {
		t.Errorf("TotalSamples = %d, want 1", pattern.TotalSamples)
	}
}

func TestProcess_CanceledDuringRuleEvaluationCanBeRetried(t *testing.T) {
	tp := setupPipeline(t)
	tp.createRule(t, inAppPersonRule())

	engine := rules.NewEngine(tp.store, rules.EngineConfig{Now: tp.clock.Now})
	dispatcher := dispatch.NewDispatcher(
		dispatch.NewRegistry(dispatch.NewInAppChannel(tp.store)),
		dispatch.DefaultConfig(),
	)
	scorer, err := anomaly.NewScorer(anomaly.Config{Weights: anomaly.DefaultWeights, Thresholds: anomaly.DefaultThresholds})
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProcessor(Deps{
		Baseline:   tp.learner,
		Scorer:     scorer,
		Rules:      &cancelingRules{inner: engine, cancel: cancel},
		Dispatcher: dispatcher,
	}, Config{DedupCapacity: 100, DedupTTL: time.Hour})

	ev := event("evt-x", baseTime, "person")
	if _, err := p.Process(ctx, ev); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("first Process() = %v, want ErrInterrupted", err)
	}

	res, err := p.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("retry Process() error = %v", err)
	}
	if res.Duplicate {
		t.Fatal("retry after interruption treated as duplicate")
	}

	notes, err := tp.store.ListNotifications(context.Background(), 10, false)
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	if len(notes) != 1 {
		t.Errorf("stored %d notifications, want 1", len(notes))
	}
}

// claimThenCancel reports rule as claimed and cancels the processing context.
type claimThenCancel struct {
	rule   models.Rule
	cancel context.CancelFunc
}

func (c *claimThenCancel) EvaluateEvent(context.Context, *models.Event) ([]models.Rule, error) {
	c.cancel()
	return []models.Rule{c.rule}, nil
}

func TestProcess_InterruptedStillDeliversClaimedRules(t *testing.T) {
	tp := setupPipeline(t)
	scorer, err := anomaly.NewScorer(anomaly.Config{Weights: anomaly.DefaultWeights, Thresholds: anomaly.DefaultThresholds})
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProcessor(Deps{
		Baseline: tp.learner,
		Scorer:   scorer,
		Rules:    &claimThenCancel{rule: *inAppPersonRule(), cancel: cancel},
		Dispatcher: dispatch.NewDispatcher(
			dispatch.NewRegistry(dispatch.NewInAppChannel(tp.store)),
			dispatch.DefaultConfig(),
		),
	}, Config{DedupCapacity: 100, DedupTTL: time.Hour})

	if _, err := p.Process(ctx, event("evt-claimed", baseTime, "person")); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("Process() = %v, want ErrInterrupted", err)
	}

	notes, err := tp.store.ListNotifications(context.Background(), 10, false)
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	if len(notes) != 1 || notes[0].EventID != "evt-claimed" {
		t.Errorf("notifications = %+v, want the claimed rule delivered", notes)
	}
}
