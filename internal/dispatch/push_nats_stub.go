// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

//go:build !nats

package dispatch

import (
	"context"
	"fmt"
)

// NATSPushSender is a stub when NATS dependencies are not available.
// Build with -tags=nats to enable it.
type NATSPushSender struct{}

// NewNATSPushSender returns an error when NATS dependencies are not available.
func NewNATSPushSender(url, subject string) (*NATSPushSender, error) {
	return nil, fmt.Errorf("NATS push sender not available: build with -tags=nats")
}

// Send is a stub that returns an error.
func (s *NATSPushSender) Send(ctx context.Context, msg *PushMessage) error {
	return fmt.Errorf("NATS push sender not available: build with -tags=nats")
}

// Close is a no-op stub.
func (s *NATSPushSender) Close() error {
	return nil
}
