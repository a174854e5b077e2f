// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

// Package dispatch delivers triggered rules to their channels.
//
// A Dispatcher fans out every action of a rule concurrently and waits for
// all of them. Each channel invocation is isolated: it has its own timeout,
// sits behind its own circuit breaker, and a failure, timeout, or panic in one
// channel is recorded without affecting the others. Delivery failures are
// reported in the returned models.DeliveryOutcome, never as errors.
//
// Channels:
//   - InApp: stores a notification for the application to display
//   - Webhook: signed JSON POST to a user-supplied URL
//   - Push: hands the notification to a PushSender (NATS with -tags nats)
package dispatch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/watchpost/internal/models"
)

// Channel delivers one action for a triggered rule.
type Channel interface {
	// Name returns the channel kind this implementation serves.
	Name() models.ChannelKind

	// Validate checks the action's channel-specific settings.
	Validate(action *models.Action) error

	// Deliver performs one delivery attempt. It must honor ctx and report
	// failure through the Result rather than panicking.
	Deliver(ctx context.Context, action *models.Action, payload *Payload) Result
}

// Payload is what a channel delivers.
type Payload struct {
	RuleID   string
	RuleName string
	Event    *models.Event
}

// Result is the outcome of one channel invocation.
type Result struct {
	Success bool

	// ErrorCode is a machine-readable failure class.
	ErrorCode string

	// ErrorMessage describes the failure.
	ErrorMessage string

	// Transient marks failures an external retry policy may retry.
	Transient bool

	// ResponseCode is the HTTP status for webhook deliveries.
	ResponseCode int
}

// Error codes for delivery failures.
const (
	ErrorCodeInvalidConfig    = "INVALID_CONFIG"
	ErrorCodeConnectionFailed = "CONNECTION_FAILED"
	ErrorCodeAuthFailed       = "AUTH_FAILED"
	ErrorCodeRateLimited      = "RATE_LIMITED"
	ErrorCodeNotFound         = "NOT_FOUND"
	ErrorCodeServerError      = "SERVER_ERROR"
	ErrorCodeTimeout          = "TIMEOUT"
	ErrorCodeCircuitOpen      = "CIRCUIT_OPEN"
	ErrorCodeCanceled         = "CANCELED"
	ErrorCodePanic            = "PANIC"
	ErrorCodeStoreFailed      = "STORE_FAILED"
	ErrorCodeUnknown          = "UNKNOWN"
)

// Outcome messages recorded in DeliveryOutcome.Errors.
const (
	MessageTimeout     = "timeout"
	MessageCircuitOpen = "circuit open"
	MessageCanceled    = "canceled"
)

func failure(code, format string, args ...interface{}) Result {
	return Result{
		ErrorCode:    code,
		ErrorMessage: fmt.Sprintf(format, args...),
		Transient:    isTransient(code),
	}
}

// isTransient returns true if the error class may succeed on retry.
func isTransient(code string) bool {
	switch code {
	case ErrorCodeConnectionFailed, ErrorCodeTimeout, ErrorCodeRateLimited,
		ErrorCodeServerError, ErrorCodeCircuitOpen, ErrorCodeStoreFailed:
		return true
	default:
		return false
	}
}

// Registry maps channel kinds to implementations.
type Registry struct {
	channels map[models.ChannelKind]Channel
}

// NewRegistry creates a registry holding channels.
func NewRegistry(channels ...Channel) *Registry {
	r := &Registry{channels: make(map[models.ChannelKind]Channel)}
	for _, ch := range channels {
		r.Register(ch)
	}
	return r
}

// Register adds a channel, replacing any previous one of the same kind.
func (r *Registry) Register(channel Channel) {
	r.channels[channel.Name()] = channel
}

// Get retrieves a channel by kind.
func (r *Registry) Get(kind models.ChannelKind) (Channel, bool) {
	ch, ok := r.channels[kind]
	return ch, ok
}

// ValidateAction checks an action against its channel.
func (r *Registry) ValidateAction(action *models.Action) error {
	ch, ok := r.Get(action.Channel)
	if !ok {
		return fmt.Errorf("unknown delivery channel: %s", action.Channel)
	}
	return ch.Validate(action)
}

// ValidateWebhookURL validates a webhook URL.
func ValidateWebhookURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("webhook URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("webhook URL must have a host")
	}
	return nil
}

// notificationText renders the title and message shared by in-app and push.
func notificationText(p *Payload) (title, message string) {
	ev := p.Event
	title = p.RuleName
	if title == "" {
		title = "Watchpost alert"
	}

	var b strings.Builder
	if len(ev.Categories) > 0 {
		b.WriteString(strings.Join(ev.Categories, ", "))
	} else {
		b.WriteString("activity")
	}
	fmt.Fprintf(&b, " on %s at %s", ev.SourceID, ev.Timestamp.UTC().Format(time.RFC3339))
	if ev.AudioEventType != "" {
		fmt.Fprintf(&b, " (audio: %s)", ev.AudioEventType)
	}
	if ev.Anomaly != nil {
		fmt.Fprintf(&b, ", anomaly %.2f (%s)", ev.Anomaly.TotalScore, ev.Anomaly.Severity)
	}
	if ev.Description != "" {
		b.WriteString(": ")
		b.WriteString(ev.Description)
	}
	return title, b.String()
}
