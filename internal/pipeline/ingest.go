// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

//go:build nats

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/watchpost/internal/logging"
)

// IngestConfig configures the NATS event consumer.
type IngestConfig struct {
	URL         string
	Subject     string
	DurableName string
	QueueGroup  string
	Subscribers int

	AckWaitTimeout time.Duration
	CloseTimeout   time.Duration
}

// Ingestor consumes detection events from a JetStream subject and runs them
// through an EventHandler. It implements suture.Service.
type Ingestor struct {
	cfg     IngestConfig
	handler *EventHandler
	logger  watermill.LoggerAdapter
}

// NewIngestor creates an Ingestor. The NATS connection is made in Serve so
// the supervisor can restart it.
func NewIngestor(cfg IngestConfig, handler *EventHandler) *Ingestor {
	if cfg.Subscribers <= 0 {
		cfg.Subscribers = 1
	}
	if cfg.AckWaitTimeout <= 0 {
		cfg.AckWaitTimeout = 30 * time.Second
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 30 * time.Second
	}
	return &Ingestor{
		cfg:     cfg,
		handler: handler,
		logger:  watermill.NewSlogLogger(logging.NewSlogLogger()),
	}
}

// Serve subscribes and processes messages until ctx is canceled.
func (i *Ingestor) Serve(ctx context.Context) error {
	logger := i.logger
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("Ingest subscriber disconnected", err, nil)
			}
		}),
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              i.cfg.URL,
		QueueGroupPrefix: i.cfg.QueueGroup,
		SubscribersCount: i.cfg.Subscribers,
		AckWaitTimeout:   i.cfg.AckWaitTimeout,
		CloseTimeout:     i.cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			AckAsync:      false,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.AckWait(i.cfg.AckWaitTimeout),
				natsgo.DeliverNew(),
			},
			DurablePrefix: i.cfg.DurableName,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("create ingest subscriber: %w", err)
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: i.cfg.CloseTimeout}, logger)
	if err != nil {
		_ = sub.Close()
		return fmt.Errorf("create ingest router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	router.AddNoPublisherHandler("watchpost-events", i.cfg.Subject, sub, i.handler.Handle)

	logging.Info().
		Str("subject", i.cfg.Subject).
		Str("durable", i.cfg.DurableName).
		Int("subscribers", i.cfg.Subscribers).
		Msg("Event ingest started")

	err = router.Run(ctx)
	if closeErr := router.Close(); closeErr != nil {
		logging.Warn().Err(closeErr).Msg("Ingest router close failed")
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("ingest router: %w", err)
	}
	return ctx.Err()
}

// String names the service in supervisor logs.
func (i *Ingestor) String() string {
	return "event-ingest"
}
