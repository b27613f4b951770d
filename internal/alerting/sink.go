// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/models"
)

// NotificationSink persists or delivers a single notification.
type NotificationSink interface {
	Create(ctx context.Context, n *models.Notification) error
}

// NamedSink is implemented by sinks that want a readable name in logs.
type NamedSink interface {
	Name() string
}

func sinkName(s NotificationSink) string {
	if n, ok := s.(NamedSink); ok {
		return n.Name()
	}
	return "sink"
}

// MultiSink writes to a primary sink synchronously and copies every
// notification to secondary sinks in the background. Only the primary
// sink's error is reported to the caller.
type MultiSink struct {
	primary     NotificationSink
	secondaries []NotificationSink
	timeout     time.Duration
	wg          sync.WaitGroup
}

// NewMultiSink creates a fan-out sink. timeout bounds each secondary delivery.
func NewMultiSink(primary NotificationSink, timeout time.Duration, secondaries ...NotificationSink) *MultiSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MultiSink{
		primary:     primary,
		secondaries: secondaries,
		timeout:     timeout,
	}
}

// Name returns the notifier name.
func (m *MultiSink) Name() string {
	return "multi"
}

// Create writes n to the primary sink, then fans out to the secondaries.
// Secondaries only receive notifications the primary accepted.
func (m *MultiSink) Create(ctx context.Context, n *models.Notification) error {
	if err := m.primary.Create(ctx, n); err != nil {
		return err
	}

	// Secondaries outlive the request that produced the notification.
	detached := context.WithoutCancel(ctx)
	for _, s := range m.secondaries {
		m.wg.Add(1)
		go func(s NotificationSink, n models.Notification) {
			defer m.wg.Done()
			sendCtx, cancel := context.WithTimeout(detached, m.timeout)
			defer cancel()
			if err := s.Create(sendCtx, &n); err != nil {
				logging.Warn().
					Err(err).
					Str("sink", sinkName(s)).
					Str("notification_id", n.ID).
					Msg("Secondary notification delivery failed")
			}
		}(s, *n)
	}
	return nil
}

// Wait blocks until all in-flight secondary deliveries finish.
func (m *MultiSink) Wait() {
	m.wg.Wait()
}
