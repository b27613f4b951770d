// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package alerting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/metrics"
	"github.com/tomtom215/accessguard/internal/models"
)

const webhookBreakerName = "alert-webhook"

// WebhookConfig configures the webhook sink.
type WebhookConfig struct {
	URL string
	// Headers are added to every request (e.g. an auth token).
	Headers map[string]string
	Timeout time.Duration
	// RateLimit is the sustained number of requests per second.
	RateLimit float64
	Burst     int
}

// WebhookPayload is the JSON body posted for each notification.
type WebhookPayload struct {
	Notification *models.Notification `json:"notification"`
	EventType    string               `json:"event_type"`
	Timestamp    time.Time            `json:"timestamp"`
	Source       string               `json:"source"`
}

// WebhookSink posts notifications to an HTTP endpoint. Delivery is rate
// limited and guarded by a circuit breaker so a dead endpoint fails fast.
type WebhookSink struct {
	url     string
	headers map[string]string
	client  *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[struct{}]
}

// NewWebhookSink creates a webhook sink.
//
// Breaker settings: 3 probe requests while half-open, counts reset every
// minute while closed, 30s open before probing, trips at >= 60% failures
// over at least 5 requests.
func NewWebhookSink(cfg WebhookConfig) *WebhookSink {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	metrics.CircuitBreakerState.WithLabelValues(webhookBreakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        webhookBreakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening webhook circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &WebhookSink{
		url:     cfg.URL,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		cb:      cb,
	}
}

// Name returns the notifier name.
func (w *WebhookSink) Name() string {
	return "webhook"
}

// State exposes the breaker state for health reporting.
func (w *WebhookSink) State() gobreaker.State {
	return w.cb.State()
}

// Create posts n to the endpoint. It waits for the rate limiter, so ctx
// should carry a deadline.
func (w *WebhookSink) Create(ctx context.Context, n *models.Notification) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limit wait: %w", err)
	}

	_, err := w.cb.Execute(func() (struct{}, error) {
		return struct{}{}, w.post(ctx, n)
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(webhookBreakerName, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(webhookBreakerName, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(webhookBreakerName, "failure").Inc()
	}
	return err
}

func (w *WebhookSink) post(ctx context.Context, n *models.Notification) error {
	body, err := json.Marshal(WebhookPayload{
		Notification: n,
		EventType:    "security_alert",
		Timestamp:    time.Now().UTC(),
		Source:       "accessguard",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
