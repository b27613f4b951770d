// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/metrics"
	"github.com/tomtom215/accessguard/internal/models"
)

// ErrPublisherRequired is returned by NewNotificationPublisher for a nil publisher.
var ErrPublisherRequired = errors.New("publisher is required")

// NotificationPublisher is a notification sink that publishes each
// notification as JSON to a topic. Publishes go through a circuit breaker
// so a dead broker fails fast.
type NotificationPublisher struct {
	publisher message.Publisher
	topic     string
	cb        *gobreaker.CircuitBreaker[struct{}]
}

// NewNotificationPublisher creates the sink.
func NewNotificationPublisher(pub message.Publisher, topic string) (*NotificationPublisher, error) {
	if pub == nil {
		return nil, ErrPublisherRequired
	}
	const name = "notification-publisher"
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return &NotificationPublisher{publisher: pub, topic: topic, cb: cb}, nil
}

// Name returns the sink name.
func (p *NotificationPublisher) Name() string {
	return "nats"
}

// Create publishes n. The notification must already carry its ID, which is
// reused as the message UUID.
func (p *NotificationPublisher) Create(ctx context.Context, n *models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	id := n.ID
	if id == "" {
		id = watermill.NewUUID()
	}
	msg := message.NewMessage(id, data)
	msg.Metadata.Set("organization_id", n.OrganizationID)
	msg.Metadata.Set("priority", string(n.Priority))
	msg.Metadata.Set("category", n.Category)
	msg.SetContext(ctx)

	_, err = p.cb.Execute(func() (struct{}, error) {
		return struct{}{}, p.publisher.Publish(p.topic, msg)
	})
	metrics.RecordNotificationPublished(err)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// State returns the circuit breaker state.
func (p *NotificationPublisher) State() gobreaker.State {
	return p.cb.State()
}
