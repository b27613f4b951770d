// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/accessguard/internal/models"
)

const (
	burstWindow      = time.Hour
	shortBurstWindow = 5 * time.Minute
	shortBurstCount  = 10

	// exfiltrationMultiplier applies to EXPORT and PRINT.
	exfiltrationMultiplier = 1.3
)

// VolumeDetector flags bursts of access by one user. Window counts include
// the event being scored.
type VolumeDetector struct {
	history EventHistory
}

// NewVolumeDetector creates a volume detector.
func NewVolumeDetector(history EventHistory) *VolumeDetector {
	return &VolumeDetector{history: history}
}

// Factor returns models.FactorVolume.
func (d *VolumeDetector) Factor() models.Factor {
	return models.FactorVolume
}

// Score counts the user's events in the trailing hour and five minutes.
func (d *VolumeDetector) Score(ctx context.Context, event *models.AccessEvent, th models.Thresholds) (float64, error) {
	end := event.CreatedAt

	hourly, err := d.history.CountByUser(ctx, event.UserID, models.AccessFilter{
		Start: end.Add(-burstWindow),
		End:   end,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count hourly access: %w", err)
	}

	var score float64
	switch {
	case hourly >= 50:
		score += th.BulkAccessScore
	case hourly >= 30:
		score += th.BulkAccessScore * 0.7
	case hourly >= 20:
		score += th.BulkAccessScore * 0.4
	}

	// The five-minute window is a subset of the hour, so skip the query
	// when the hour cannot reach the threshold.
	if hourly >= shortBurstCount {
		recent, err := d.history.CountByUser(ctx, event.UserID, models.AccessFilter{
			Start: end.Add(-shortBurstWindow),
			End:   end,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to count recent access: %w", err)
		}
		if recent >= shortBurstCount {
			score += th.BulkAccessScore * 0.5
		}
	}

	if event.Action == models.ActionExport || event.Action == models.ActionPrint {
		score *= exfiltrationMultiplier
	}

	return clampScore(score), nil
}
