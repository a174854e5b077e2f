// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/watchpost/internal/models"
)

// SignatureHeader carries the HMAC-SHA256 signature of a webhook body.
const SignatureHeader = "X-Watchpost-Signature"

// DefaultWebhookUserAgent identifies Watchpost to receivers.
const DefaultWebhookUserAgent = "Watchpost-Webhook/1.0"

// maxResponseBody bounds how much of a response is read for error details.
const maxResponseBody = 4096

// WebhookConfig configures a WebhookChannel.
type WebhookConfig struct {
	UserAgent string

	// RateLimit is requests per second per host. Zero disables limiting.
	RateLimit float64
	Burst     int

	// Client overrides the HTTP client. Its timeout is left to the
	// dispatcher's context.
	Client *http.Client
}

// WebhookChannel POSTs event JSON to a user-supplied URL.
type WebhookChannel struct {
	client    *http.Client
	userAgent string
	rateLimit rate.Limit
	burst     int
	now       func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewWebhookChannel creates a webhook channel.
func NewWebhookChannel(cfg WebhookConfig) *WebhookChannel {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultWebhookUserAgent
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &WebhookChannel{
		client:    client,
		userAgent: cfg.UserAgent,
		rateLimit: rate.Limit(cfg.RateLimit),
		burst:     cfg.Burst,
		now:       time.Now,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Name returns the channel identifier.
func (c *WebhookChannel) Name() models.ChannelKind {
	return models.ChannelWebhook
}

// Validate checks the webhook URL.
func (c *WebhookChannel) Validate(action *models.Action) error {
	return ValidateWebhookURL(action.WebhookURL)
}

// WebhookPayload is the JSON body sent to webhook receivers.
type WebhookPayload struct {
	Event     string    `json:"event"`
	RuleID    string    `json:"rule_id"`
	RuleName  string    `json:"rule_name"`
	EventID   string    `json:"event_id"`
	SourceID  string    `json:"source_id"`
	Timestamp time.Time `json:"timestamp"`

	Categories     []string `json:"categories"`
	Confidence     float64  `json:"confidence"`
	AudioEventType string   `json:"audio_event_type,omitempty"`
	Description    string   `json:"description,omitempty"`

	AnomalyScore    *float64        `json:"anomaly_score,omitempty"`
	AnomalySeverity models.Severity `json:"anomaly_severity,omitempty"`
}

// Deliver sends one webhook request.
func (c *WebhookChannel) Deliver(ctx context.Context, action *models.Action, payload *Payload) Result {
	if err := c.Validate(action); err != nil {
		return failure(ErrorCodeInvalidConfig, "%v", err)
	}
	target, _ := url.Parse(action.WebhookURL)

	if err := c.limiter(target.Host).Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return failure(ErrorCodeTimeout, "rate limit wait: %v", err)
		}
		return failure(ErrorCodeRateLimited, "rate limit wait: %v", err)
	}

	body, err := json.Marshal(buildWebhookPayload(payload))
	if err != nil {
		return failure(ErrorCodeUnknown, "failed to marshal payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return failure(ErrorCodeInvalidConfig, "failed to create request: %v", err)
	}
	for key, value := range action.WebhookHeaders {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if action.WebhookSecret != "" {
		req.Header.Set(SignatureHeader, Sign(body, action.WebhookSecret, c.now().Unix()))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return failure(classifyHTTPError(err), "failed to send webhook: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		respBody = []byte("(failed to read response)")
	}
	// Drain the remainder so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Success: true, ResponseCode: resp.StatusCode}
	}

	res := failure(classifyHTTPStatusCode(resp.StatusCode), "webhook returned %d: %s", resp.StatusCode, string(respBody))
	res.ResponseCode = resp.StatusCode
	return res
}

// Sign returns the signature header value for body:
// "t=<unix>,v1=<hex hmac-sha256 of "<unix>,<body>">".
func Sign(body []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d,", timestamp)
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func buildWebhookPayload(p *Payload) WebhookPayload {
	ev := p.Event
	categories := ev.Categories
	if categories == nil {
		categories = []string{}
	}
	out := WebhookPayload{
		Event:          "rule.triggered",
		RuleID:         p.RuleID,
		RuleName:       p.RuleName,
		EventID:        ev.EventID,
		SourceID:       ev.SourceID,
		Timestamp:      ev.Timestamp.UTC(),
		Categories:     categories,
		Confidence:     ev.Confidence,
		AudioEventType: ev.AudioEventType,
		Description:    ev.Description,
	}
	if ev.Anomaly != nil {
		score := ev.Anomaly.TotalScore
		out.AnomalyScore = &score
		out.AnomalySeverity = ev.Anomaly.Severity
	}
	return out
}

// limiter returns the per-host limiter, or an unlimited one.
func (c *WebhookChannel) limiter(host string) *rate.Limiter {
	if c.rateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.rateLimit, c.burst)
		c.limiters[host] = l
	}
	return l
}

// classifyHTTPError classifies a transport error into an error code.
func classifyHTTPError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorCodeTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrorCodeConnectionFailed
	}
	return ErrorCodeUnknown
}

// classifyHTTPStatusCode classifies an HTTP status code into an error code.
func classifyHTTPStatusCode(code int) string {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorCodeAuthFailed
	case code == http.StatusNotFound || code == http.StatusGone:
		return ErrorCodeNotFound
	case code == http.StatusTooManyRequests:
		return ErrorCodeRateLimited
	case code == http.StatusRequestTimeout:
		return ErrorCodeTimeout
	case code >= 500:
		return ErrorCodeServerError
	default:
		return ErrorCodeUnknown
	}
}
