// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package detection

import (
	"context"
	"time"

	"github.com/tomtom215/accessguard/internal/models"
)

// IsLateNight reports whether hour falls in the 22:00-06:00 window.
func IsLateNight(hour int) bool {
	return hour >= 22 || hour < 6
}

// TimeDetector scores access by local hour and weekday. All windows stack.
type TimeDetector struct {
	loc *time.Location
}

// NewTimeDetector creates a time detector evaluating hours in loc.
func NewTimeDetector(loc *time.Location) *TimeDetector {
	if loc == nil {
		loc = time.Local
	}
	return &TimeDetector{loc: loc}
}

// Factor returns models.FactorTime.
func (d *TimeDetector) Factor() models.Factor {
	return models.FactorTime
}

// Score evaluates the event's local time.
func (d *TimeDetector) Score(_ context.Context, event *models.AccessEvent, th models.Thresholds) (float64, error) {
	at := event.CreatedAt.In(d.loc)
	hour := at.Hour()

	var score float64
	if IsLateNight(hour) {
		score += th.LateNightAccessScore
	}
	if hour >= 6 && hour < 8 {
		score += th.LateNightAccessScore * 0.3
	}
	if hour >= 20 && hour < 22 {
		score += th.LateNightAccessScore * 0.5
	}
	if wd := at.Weekday(); wd == time.Saturday || wd == time.Sunday {
		score += th.LateNightAccessScore * 0.5
	}

	return clampScore(score), nil
}
