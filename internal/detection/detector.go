// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package detection

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/tomtom215/accessguard/internal/models"
)

// ErrEventNotFound is returned by Detect when the event id does not exist.
var ErrEventNotFound = errors.New("event not found")

// historyWindow is how far back the pattern and device detectors look.
const historyWindow = 30 * 24 * time.Hour

// Detector computes one factor's sub-score for an event.
type Detector interface {
	// Factor returns the scoring dimension this detector fills.
	Factor() models.Factor

	// Score returns a sub-score in [0,100]. Insufficient history is not an error.
	Score(ctx context.Context, event *models.AccessEvent, thresholds models.Thresholds) (float64, error)
}

// EventHistory is the read side of the access log the detectors need.
type EventHistory interface {
	QueryByUser(ctx context.Context, userID string, filter models.AccessFilter) ([]models.AccessEvent, error)
	CountByUser(ctx context.Context, userID string, filter models.AccessFilter) (int, error)
}

func clampScore(v float64) float64 {
	return math.Min(math.Max(v, 0), 100)
}
