// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package detection

import (
	"context"
	"fmt"

	"github.com/tomtom215/accessguard/internal/models"
)

const (
	deviceMinHistory         = 5
	defaultDeviceHistoryRows = 1000
)

// DeviceDetector flags device attributes and IPs absent from the user's
// recent history. The scored event itself is excluded from that history.
type DeviceDetector struct {
	history EventHistory
	limit   int
}

// NewDeviceDetector creates a device detector reading at most limit history rows.
func NewDeviceDetector(history EventHistory, limit int) *DeviceDetector {
	if limit <= 0 {
		limit = defaultDeviceHistoryRows
	}
	return &DeviceDetector{history: history, limit: limit}
}

// Factor returns models.FactorDevice.
func (d *DeviceDetector) Factor() models.Factor {
	return models.FactorDevice
}

// Score returns 0 without device info or with fewer than 5 prior events.
func (d *DeviceDetector) Score(ctx context.Context, event *models.AccessEvent, th models.Thresholds) (float64, error) {
	if event.DeviceInfo == nil {
		return 0, nil
	}

	end := event.CreatedAt
	recent, err := d.history.QueryByUser(ctx, event.UserID, models.AccessFilter{
		Start: end.Add(-historyWindow),
		End:   end,
		Limit: d.limit + 1,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load device history: %w", err)
	}

	var (
		deviceTypes = make(map[string]struct{})
		systems     = make(map[string]struct{})
		browsers    = make(map[string]struct{})
		ips         = make(map[string]struct{})
		n           int
	)
	for i := range recent {
		past := &recent[i]
		if past.ID == event.ID || n == d.limit {
			continue
		}
		n++
		if past.DeviceInfo != nil {
			deviceTypes[past.DeviceInfo.DeviceType] = struct{}{}
			systems[past.DeviceInfo.OS] = struct{}{}
			browsers[past.DeviceInfo.Browser] = struct{}{}
		}
		if past.IPAddress != "" {
			ips[past.IPAddress] = struct{}{}
		}
	}
	if n < deviceMinHistory {
		return 0, nil
	}

	current := event.DeviceInfo
	var score float64
	if _, seen := deviceTypes[current.DeviceType]; !seen {
		score += th.UnusualDeviceScore
	}
	if _, seen := systems[current.OS]; !seen {
		score += th.UnusualDeviceScore * 0.8
	}
	if _, seen := browsers[current.Browser]; !seen {
		score += th.UnusualDeviceScore * 0.5
	}
	if event.IPAddress != "" {
		if _, seen := ips[event.IPAddress]; !seen {
			score += th.UnusualDeviceScore * 0.6
		}
	}

	return clampScore(score), nil
}
