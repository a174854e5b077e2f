// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

//go:build nats

package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/watchpost/internal/logging"
)

// NATSPushSender publishes push messages to a NATS subject consumed by an
// external push gateway.
type NATSPushSender struct {
	publisher message.Publisher
	subject   string
}

// NewNATSPushSender connects a publisher to url.
func NewNATSPushSender(url, subject string) (*NATSPushSender, error) {
	logger := watermill.NewSlogLogger(logging.NewSlogLogger())

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("Push publisher disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("Push publisher reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			// The gateway listens on a plain subject.
			Disabled: true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create push publisher: %w", err)
	}

	return &NATSPushSender{publisher: pub, subject: subject}, nil
}

// Send publishes msg. Watermill publishes synchronously, so ctx is only
// checked before the publish starts.
func (s *NATSPushSender) Send(ctx context.Context, msg *PushMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}

	wm := message.NewMessage(watermill.NewUUID(), data)
	wm.Metadata.Set("rule_id", msg.RuleID)
	wm.Metadata.Set("event_id", msg.EventID)
	if msg.Topic != "" {
		wm.Metadata.Set("topic", msg.Topic)
	}
	return s.publisher.Publish(s.subject, wm)
}

// Close closes the publisher.
func (s *NATSPushSender) Close() error {
	return s.publisher.Close()
}
