// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

//go:build !nats

package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrNATSNotEnabled is returned when ingest is started in a build without NATS.
var ErrNATSNotEnabled = errors.New("NATS ingest not enabled (build with -tags nats)")

// IngestConfig configures the NATS event consumer (stub).
type IngestConfig struct {
	URL         string
	Subject     string
	DurableName string
	QueueGroup  string
	Subscribers int

	AckWaitTimeout time.Duration
	CloseTimeout   time.Duration
}

// Ingestor is a stub for non-NATS builds.
type Ingestor struct{}

// NewIngestor returns a stub Ingestor.
func NewIngestor(_ IngestConfig, _ *EventHandler) *Ingestor {
	return &Ingestor{}
}

// Serve always fails in non-NATS builds.
func (i *Ingestor) Serve(_ context.Context) error {
	return ErrNATSNotEnabled
}

// String names the service in supervisor logs.
func (i *Ingestor) String() string {
	return "event-ingest"
}
