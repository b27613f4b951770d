// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package services

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/accessguard/internal/detection"
	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/models"
)

// BatchAnalyzer is the detection.BatchAnalyzer method the scheduler drives.
type BatchAnalyzer interface {
	Analyze(ctx context.Context, orgID string, start, end time.Time, thresholds models.Thresholds) (*detection.BatchResult, error)
}

// BatchSchedulerConfig configures the scheduler.
type BatchSchedulerConfig struct {
	// Interval between runs. The first run starts immediately.
	Interval time.Duration
	// Window is the trailing period each run analyzes.
	Window        time.Duration
	Organizations []string
	Thresholds    models.Thresholds
}

// BatchScheduler periodically scores events the real-time path left
// unscored, one organization at a time.
type BatchScheduler struct {
	analyzer BatchAnalyzer
	config   BatchSchedulerConfig
	now      func() time.Time
}

// NewBatchScheduler creates the scheduler. Zero Interval uses 1h and zero
// Window uses 24h.
func NewBatchScheduler(analyzer BatchAnalyzer, config BatchSchedulerConfig) *BatchScheduler {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Window <= 0 {
		config.Window = 24 * time.Hour
	}
	return &BatchScheduler{analyzer: analyzer, config: config, now: time.Now}
}

// Serve implements suture.Service.
func (s *BatchScheduler) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.config.Interval).
		Dur("window", s.config.Window).
		Int("organizations", len(s.config.Organizations)).
		Msg("Batch scheduler started")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce analyzes the trailing window for every organization and returns
// the results keyed by organization. A failing organization is logged and
// skipped.
func (s *BatchScheduler) RunOnce(ctx context.Context) map[string]*detection.BatchResult {
	end := s.now()
	start := end.Add(-s.config.Window)
	results := make(map[string]*detection.BatchResult, len(s.config.Organizations))

	for _, orgID := range s.config.Organizations {
		if ctx.Err() != nil {
			break
		}
		res, err := s.analyzer.Analyze(ctx, orgID, start, end, s.config.Thresholds)
		if res != nil {
			results[orgID] = res
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logging.Error().Err(err).Str("organization_id", orgID).Msg("Batch analysis failed")
		}
	}
	return results
}

// String implements fmt.Stringer for suture logs.
func (s *BatchScheduler) String() string {
	return "batch-scheduler"
}
