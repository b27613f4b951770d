// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package detection

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/accessguard/internal/models"
)

const (
	patternMinHistory    = 10
	rareActionMinHistory = 20
	rareActionRatio      = 0.1
	largeTransferBytes   = 10 * 1024 * 1024
	hourDeviationScore   = 30
	rareActionScore      = 20
	largeTransferScore   = 25
)

// StatsSource supplies per-user access statistics.
type StatsSource interface {
	UserAccessStats(ctx context.Context, userID string, start, end time.Time) (*models.AccessStats, error)
}

// PatternDetector compares an event against the user's 30-day baseline.
type PatternDetector struct {
	stats StatsSource
	loc   *time.Location
}

// NewPatternDetector creates a pattern detector. loc must match the
// location the stats source buckets hours in.
func NewPatternDetector(stats StatsSource, loc *time.Location) *PatternDetector {
	if loc == nil {
		loc = time.Local
	}
	return &PatternDetector{stats: stats, loc: loc}
}

// Factor returns models.FactorPattern.
func (d *PatternDetector) Factor() models.Factor {
	return models.FactorPattern
}

// Score returns 0 when the user has fewer than 10 events of history.
func (d *PatternDetector) Score(ctx context.Context, event *models.AccessEvent, th models.Thresholds) (float64, error) {
	end := event.CreatedAt
	stats, err := d.stats.UserAccessStats(ctx, event.UserID, end.Add(-historyWindow), end)
	if err != nil {
		return 0, fmt.Errorf("failed to load access stats: %w", err)
	}
	if stats.TotalAccess < patternMinHistory {
		return 0, nil
	}

	var score float64

	hour := end.In(d.loc).Hour()
	mean := float64(stats.TotalAccess) / 24
	stddev := standardDeviation(stats.HourlyAccess[:])
	if stddev == 0 {
		stddev = 1
	}
	z := (float64(stats.HourlyAccess[hour]) - mean) / stddev
	if math.Abs(z) >= th.StandardDeviationThreshold {
		score += hourDeviationScore
	}

	ratio := float64(stats.ActionCounts[event.Action]) / float64(stats.TotalAccess)
	if ratio < rareActionRatio && stats.TotalAccess > rareActionMinHistory {
		score += rareActionScore
	}

	if event.DataSizeBytes() > largeTransferBytes {
		score += largeTransferScore
	}

	return clampScore(score), nil
}

// standardDeviation is the population standard deviation of values.
func standardDeviation(values []int) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := float64(v) - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}
