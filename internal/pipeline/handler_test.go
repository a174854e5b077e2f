// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/watchpost/internal/logging"
	"github.com/tomtom215/watchpost/internal/models"
)

type fakeProcessor struct {
	err           error
	events        []*models.Event
	correlationID string
}

func (f *fakeProcessor) Process(ctx context.Context, event *models.Event) (*Result, error) {
	f.events = append(f.events, event)
	f.correlationID = logging.CorrelationIDFromContext(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return &Result{Event: event}, nil
}

func newHandler(p EventProcessor) *EventHandler {
	return NewEventHandler(p, watermill.NopLogger{})
}

func TestEventHandler_Processes(t *testing.T) {
	p := &fakeProcessor{}
	h := newHandler(p)

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"event_id":"evt-1","source_id":"cam-1","timestamp":"2026-03-02T03:00:00Z","categories":["person"],"confidence":0.8}`))
	msg.Metadata.Set("correlation_id", "corr-1")

	if err := h.Handle(msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(p.events) != 1 || p.events[0].EventID != "evt-1" || p.events[0].Categories[0] != "person" {
		t.Fatalf("unexpected events: %+v", p.events)
	}
	if p.correlationID != "corr-1" {
		t.Errorf("correlation id = %q, want corr-1", p.correlationID)
	}
	if s := h.Stats(); s.Received != 1 || s.Processed != 1 || s.Dropped != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestEventHandler_AcksFailures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		err     error
	}{
		{"malformed json", `{"event_id":`, nil},
		{"rejected event", `{"event_id":"evt-1"}`, fmt.Errorf("%w: source_id is required", ErrInvalidEvent)},
		{"processing error", `{"event_id":"evt-1"}`, errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(&fakeProcessor{err: tt.err})
			if err := h.Handle(message.NewMessage(watermill.NewUUID(), []byte(tt.payload))); err != nil {
				t.Errorf("Handle() = %v, want nil so the message is acked", err)
			}
			if s := h.Stats(); s.Dropped != 1 || s.Processed != 0 {
				t.Errorf("Stats() = %+v", s)
			}
		})
	}
}

func TestEventHandler_NacksInterruptedEvents(t *testing.T) {
	h := newHandler(&fakeProcessor{err: fmt.Errorf("%w: %w", ErrInterrupted, context.Canceled)})
	err := h.Handle(message.NewMessage(watermill.NewUUID(), []byte(`{"event_id":"evt-1"}`)))
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("Handle() = %v, want ErrInterrupted so the message is redelivered", err)
	}
	if s := h.Stats(); s.Dropped != 0 || s.Processed != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestEventHandler_GeneratesCorrelationID(t *testing.T) {
	p := &fakeProcessor{}
	h := newHandler(p)
	if err := h.Handle(message.NewMessage(watermill.NewUUID(), []byte(`{"event_id":"evt-1"}`))); err != nil {
		t.Fatal(err)
	}
	if p.correlationID == "" {
		t.Error("expected a generated correlation id")
	}
}
