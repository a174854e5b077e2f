// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-set/v2"

	"github.com/tomtom215/watchpost/internal/dispatch"
	"github.com/tomtom215/watchpost/internal/models"
)

func personInput() RuleInput {
	return RuleInput{
		Name:       "person",
		Conditions: models.Conditions{Categories: set.From([]string{"person"})},
		Actions:    []models.Action{{Channel: models.ChannelInApp}},
	}
}

func TestService_Lifecycle(t *testing.T) {
	store := setupStore(t)
	engine := NewEngine(store, EngineConfig{CacheTTL: time.Hour, Now: func() time.Time { return baseTime }})
	svc := NewService(store, engine, nil, 5*time.Minute)
	ctx := context.Background()

	created, err := svc.Create(ctx, personInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == "" || !created.Enabled {
		t.Errorf("unexpected created rule: %+v", created)
	}
	if created.CooldownSeconds != 300 {
		t.Errorf("CooldownSeconds = %d, want default 300", created.CooldownSeconds)
	}

	if rules, _ := engine.EnabledRules(ctx); len(rules) != 1 {
		t.Fatalf("engine sees %d rules, want 1", len(rules))
	}

	in := personInput()
	zero := int64(0)
	in.CooldownSeconds = &zero
	in.Name = "person, no cooldown"
	updated, err := svc.Update(ctx, created.ID, in)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.CooldownSeconds != 0 || updated.Name != "person, no cooldown" {
		t.Errorf("unexpected updated rule: %+v", updated)
	}

	disabled, err := svc.SetEnabled(ctx, created.ID, false)
	if err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	if disabled.Enabled {
		t.Error("rule still enabled")
	}
	if rules, _ := engine.EnabledRules(ctx); len(rules) != 0 {
		t.Errorf("engine cache not invalidated, sees %d rules", len(rules))
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Get(ctx, created.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Get after delete: got %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, created.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}
}

func TestService_RejectsInvalidRule(t *testing.T) {
	store := setupStore(t)
	svc := NewService(store, nil, nil, time.Minute)
	ctx := context.Background()

	in := personInput()
	in.Conditions = models.Conditions{}
	if _, err := svc.Create(ctx, in); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("Create with zero conditions: got %v, want ErrInvalidRule", err)
	}

	rules, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("invalid rule was stored: %+v", rules)
	}
}

func TestService_UpdateKeepsTriggerState(t *testing.T) {
	store := setupStore(t)
	svc := NewService(store, nil, nil, time.Minute)
	ctx := context.Background()

	created, err := svc.Create(ctx, personInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, ok, err := store.ClaimTrigger(ctx, created.ID, baseTime, time.Minute); err != nil || !ok {
		t.Fatalf("ClaimTrigger = %v, %v", ok, err)
	}

	if _, err := svc.Update(ctx, created.ID, personInput()); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.TriggerCount != 1 || got.LastTriggeredAt == nil {
		t.Errorf("trigger state lost on update: %+v", got)
	}
}

func TestService_UpdateKeepsOmittedFields(t *testing.T) {
	store := setupStore(t)
	svc := NewService(store, nil, nil, time.Minute)
	ctx := context.Background()

	in := personInput()
	cooldown := int64(900)
	in.CooldownSeconds = &cooldown
	created, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.SetEnabled(ctx, created.ID, false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}

	edit := personInput()
	edit.Name = "renamed"
	updated, err := svc.Update(ctx, created.ID, edit)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Enabled {
		t.Error("update without enabled re-enabled a disabled rule")
	}
	if updated.CooldownSeconds != 900 {
		t.Errorf("CooldownSeconds = %d, want 900 kept", updated.CooldownSeconds)
	}

	enable := true
	edit.Enabled = &enable
	if updated, err = svc.Update(ctx, created.ID, edit); err != nil || !updated.Enabled {
		t.Errorf("explicit enabled not applied: %+v, %v", updated, err)
	}
}

func TestService_ValidatesActionsAgainstChannels(t *testing.T) {
	store := setupStore(t)
	registry := dispatch.NewRegistry(
		dispatch.NewInAppChannel(store),
		dispatch.NewPushChannel(nil),
	)
	svc := NewService(store, nil, registry, time.Minute)
	ctx := context.Background()

	in := personInput()
	in.Actions = []models.Action{{Channel: models.ChannelInApp}, {Channel: models.ChannelPush}}
	_, err := svc.Create(ctx, in)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Create with unconfigured push: got %v, want *ValidationError", err)
	}
	if len(verr.Fields) != 1 || verr.Fields[0].Field != "actions[1]" {
		t.Errorf("unexpected fields: %+v", verr.Fields)
	}
	if rules, _ := svc.List(ctx); len(rules) != 0 {
		t.Errorf("rule with unconfigured push was stored: %+v", rules)
	}

	created, err := svc.Create(ctx, personInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Update(ctx, created.ID, in); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("Update with unconfigured push: got %v, want ErrInvalidRule", err)
	}
}
