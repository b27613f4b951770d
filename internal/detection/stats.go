// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/models"
)

const defaultStatsRowLimit = 10000

// StatsAggregator computes per-user access statistics from the access log.
type StatsAggregator struct {
	history  EventHistory
	loc      *time.Location
	rowLimit int
}

// NewStatsAggregator creates an aggregator bucketing hours in loc and
// reading at most rowLimit events per query.
func NewStatsAggregator(history EventHistory, loc *time.Location, rowLimit int) *StatsAggregator {
	if loc == nil {
		loc = time.Local
	}
	if rowLimit <= 0 {
		rowLimit = defaultStatsRowLimit
	}
	return &StatsAggregator{history: history, loc: loc, rowLimit: rowLimit}
}

// UserAccessStats aggregates a user's events in [start, end]. With no
// events every count and average is zero.
func (a *StatsAggregator) UserAccessStats(ctx context.Context, userID string, start, end time.Time) (*models.AccessStats, error) {
	events, err := a.history.QueryByUser(ctx, userID, models.AccessFilter{
		Start: start,
		End:   end,
		Limit: a.rowLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query user access: %w", err)
	}
	if len(events) == a.rowLimit {
		logging.Debug().
			Str("user_id", userID).
			Int("limit", a.rowLimit).
			Msg("access stats truncated to newest rows")
	}

	stats := models.NewAccessStats()
	var (
		durationSum   int
		durationCount int
		scoreSum      int
	)

	for i := range events {
		e := &events[i]
		stats.TotalAccess++
		stats.HourlyAccess[e.CreatedAt.In(a.loc).Hour()]++
		stats.ActionCounts[e.Action]++
		stats.ResourceTypeCounts[e.ResourceType]++

		if e.DeviceInfo != nil {
			stats.DeviceTypes[e.DeviceInfo.DeviceType]++
		}
		if e.AccessDuration != nil {
			durationSum += *e.AccessDuration
			durationCount++
		}
		if e.IsAnomaly {
			stats.AnomalousAccessCount++
		}
		scoreSum += e.AnomalyScore
	}

	if durationCount > 0 {
		stats.AverageAccessDuration = float64(durationSum) / float64(durationCount)
	}
	if stats.TotalAccess > 0 {
		stats.AverageAnomalyScore = float64(scoreSum) / float64(stats.TotalAccess)
	}
	return stats, nil
}
