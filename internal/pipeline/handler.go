// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/watchpost/internal/logging"
	"github.com/tomtom215/watchpost/internal/metrics"
	"github.com/tomtom215/watchpost/internal/models"
)

// EventProcessor is implemented by *Processor.
type EventProcessor interface {
	Process(ctx context.Context, event *models.Event) (*Result, error)
}

// EventHandler consumes detection events from the message bus.
//
// Malformed payloads and rejected events are logged, dropped and acked;
// redelivering them would fail the same way. An event interrupted by
// shutdown is nacked so the broker redelivers it.
type EventHandler struct {
	processor EventProcessor
	logger    watermill.LoggerAdapter

	received  atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64
}

// HandlerStats is a snapshot of handler counters.
type HandlerStats struct {
	Received  int64 `json:"received"`
	Processed int64 `json:"processed"`
	Dropped   int64 `json:"dropped"`
}

// NewEventHandler creates a handler. A nil logger logs through the global
// zerolog logger.
func NewEventHandler(processor EventProcessor, logger watermill.LoggerAdapter) *EventHandler {
	if logger == nil {
		logger = watermill.NewSlogLogger(logging.NewSlogLogger())
	}
	return &EventHandler{processor: processor, logger: logger}
}

// Handle is passed to Router.AddNoPublisherHandler.
func (h *EventHandler) Handle(msg *message.Message) error {
	h.received.Add(1)

	var event models.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		h.dropped.Add(1)
		metrics.IngestMessages.WithLabelValues("parse_failed").Inc()
		h.logger.Error("Failed to parse event message", err, watermill.LogFields{
			"message_uuid": msg.UUID,
		})
		return nil
	}

	ctx := msg.Context()
	if id := msg.Metadata.Get("correlation_id"); id != "" {
		ctx = logging.ContextWithCorrelationID(ctx, id)
	} else {
		ctx = logging.ContextWithNewCorrelationID(ctx)
	}

	res, err := h.processor.Process(ctx, &event)
	if errors.Is(err, ErrInterrupted) {
		metrics.IngestMessages.WithLabelValues("interrupted").Inc()
		return err
	}
	if err != nil {
		h.dropped.Add(1)
		metrics.IngestMessages.WithLabelValues("rejected").Inc()
		fields := watermill.LogFields{"message_uuid": msg.UUID, "event_id": event.EventID}
		if errors.Is(err, ErrInvalidEvent) {
			h.logger.Info("Event rejected", fields.Add(watermill.LogFields{"reason": err.Error()}))
		} else {
			h.logger.Error("Event processing failed", err, fields)
		}
		return nil
	}

	h.processed.Add(1)
	metrics.IngestMessages.WithLabelValues("processed").Inc()
	if len(res.Outcomes) > 0 {
		h.logger.Debug("Event triggered rules", watermill.LogFields{
			"event_id": event.EventID,
			"rules":    len(res.Outcomes),
		})
	}
	return nil
}

// Stats returns the handler counters.
func (h *EventHandler) Stats() HandlerStats {
	return HandlerStats{
		Received:  h.received.Load(),
		Processed: h.processed.Load(),
		Dropped:   h.dropped.Load(),
	}
}
