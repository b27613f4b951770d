// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package detection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/tomtom215/accessguard/internal/accesslog"
	"github.com/tomtom215/accessguard/internal/directory"
	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/metrics"
	"github.com/tomtom215/accessguard/internal/models"
)

// Factor weights for the final score. They sum to 1.
var factorWeights = map[models.Factor]float64{
	models.FactorTime:          0.15,
	models.FactorVolume:        0.25,
	models.FactorPattern:       0.20,
	models.FactorDevice:        0.15,
	models.FactorAuthorization: 0.25,
}

// ReasonLabel returns the human-readable reason prefix for a factor.
func ReasonLabel(f models.Factor) string {
	switch f {
	case models.FactorTime:
		return "Late-night or off-hours access"
	case models.FactorVolume:
		return "Burst access volume"
	case models.FactorPattern:
		return "Unusual access pattern"
	case models.FactorDevice:
		return "Unusual device or network"
	case models.FactorAuthorization:
		return "Unauthorized resource access"
	}
	return string(f)
}

func formatReason(f models.Factor, score float64) string {
	rounded := math.Round(score*100) / 100
	return ReasonLabel(f) + " (score: " + strconv.FormatFloat(rounded, 'f', -1, 64) + ")"
}

// WeightedScore combines factor sub-scores into the final integer score.
func WeightedScore(f models.Factors) int {
	var total float64
	for _, factor := range models.AllFactors {
		total += f.Get(factor) * factorWeights[factor]
	}
	return int(math.Min(math.Round(total), 100))
}

// EventLoader fetches a single event.
type EventLoader interface {
	Get(ctx context.Context, id string) (*models.AccessEvent, error)
}

// EventStore is the access log view the standard engine is built on.
type EventStore interface {
	EventLoader
	EventHistory
}

// EngineConfig configures NewStandardEngine.
type EngineConfig struct {
	// Location is used for hour and weekday evaluation.
	Location           *time.Location
	StatsRowLimit      int
	DeviceHistoryLimit int
}

// DefaultEngineConfig returns the standard engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Location:           time.Local,
		StatsRowLimit:      defaultStatsRowLimit,
		DeviceHistoryLimit: defaultDeviceHistoryRows,
	}
}

// Engine runs the registered detectors and aggregates their sub-scores.
type Engine struct {
	events    EventLoader
	detectors map[models.Factor]Detector

	mu           sync.RWMutex
	metricsStore *EngineMetrics
}

// EngineMetrics tracks scoring activity.
type EngineMetrics struct {
	EventsScored      int64
	AnomaliesDetected int64
	DetectorErrors    int64
	LastScoredAt      time.Time
	DetectorMetrics   map[models.Factor]*DetectorMetrics
	mu                sync.RWMutex
}

// DetectorMetrics tracks one detector.
type DetectorMetrics struct {
	EventsChecked int64
	Triggered     int64
	Errors        int64
}

// NewEngine creates an engine with no detectors. Unregistered factors score 0.
func NewEngine(events EventLoader) *Engine {
	return &Engine{
		events:    events,
		detectors: make(map[models.Factor]Detector),
		metricsStore: &EngineMetrics{
			DetectorMetrics: make(map[models.Factor]*DetectorMetrics),
		},
	}
}

// NewStandardEngine creates an engine with all five detectors registered.
func NewStandardEngine(
	events EventStore,
	users directory.IdentityDirectory,
	careTeam directory.CareTeamDirectory,
	cfg EngineConfig,
) *Engine {
	stats := NewStatsAggregator(events, cfg.Location, cfg.StatsRowLimit)

	e := NewEngine(events)
	e.RegisterDetector(NewTimeDetector(cfg.Location))
	e.RegisterDetector(NewVolumeDetector(events))
	e.RegisterDetector(NewPatternDetector(stats, cfg.Location))
	e.RegisterDetector(NewDeviceDetector(events, cfg.DeviceHistoryLimit))
	e.RegisterDetector(NewAuthorizationDetector(users, careTeam))
	return e
}

// RegisterDetector installs d for its factor, replacing any previous one.
func (e *Engine) RegisterDetector(d Detector) {
	e.mu.Lock()
	defer e.mu.Unlock()

	factor := d.Factor()
	e.detectors[factor] = d

	e.metricsStore.mu.Lock()
	e.metricsStore.DetectorMetrics[factor] = &DetectorMetrics{}
	e.metricsStore.mu.Unlock()

	logging.Debug().Str("factor", string(factor)).Msg("registered detector")
}

// Detect loads an event and scores it. It never writes.
func (e *Engine) Detect(ctx context.Context, eventID string, thresholds models.Thresholds) (*models.DetectionResult, error) {
	event, err := e.events.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, accesslog.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrEventNotFound, err)
		}
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	return e.Score(ctx, event, thresholds)
}

// Score evaluates an already-loaded event. Detector failures degrade to 0;
// only context cancellation is returned as an error.
func (e *Engine) Score(ctx context.Context, event *models.AccessEvent, thresholds models.Thresholds) (*models.DetectionResult, error) {
	start := time.Now()

	e.mu.RLock()
	detectors := make(map[models.Factor]Detector, len(e.detectors))
	for f, d := range e.detectors {
		detectors[f] = d
	}
	e.mu.RUnlock()

	var factors models.Factors
	reasons := make([]string, 0, len(models.AllFactors))

	for _, factor := range models.AllFactors {
		d, ok := detectors[factor]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		score := e.runDetector(ctx, d, event, thresholds)
		factors.Set(factor, score)
		if score > 0 {
			reasons = append(reasons, formatReason(factor, score))
		}
	}

	score := WeightedScore(factors)
	result := &models.DetectionResult{
		IsAnomaly:    score >= models.AnomalyThreshold,
		AnomalyScore: score,
		Reasons:      reasons,
		Factors:      factors,
	}

	e.recordResult(result)
	metrics.RecordScoring(time.Since(start), result.AnomalyScore, result.IsAnomaly)

	return result, nil
}

// runDetector executes one detector and updates its metrics.
func (e *Engine) runDetector(ctx context.Context, d Detector, event *models.AccessEvent, th models.Thresholds) float64 {
	factor := d.Factor()

	score, err := d.Score(ctx, event, th)

	e.metricsStore.mu.Lock()
	m := e.metricsStore.DetectorMetrics[factor]
	if m != nil {
		m.EventsChecked++
	}
	if err != nil {
		e.metricsStore.DetectorErrors++
		if m != nil {
			m.Errors++
		}
	} else if score > 0 && m != nil {
		m.Triggered++
	}
	e.metricsStore.mu.Unlock()

	if err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("factor", string(factor)).
			Str("event_id", event.ID).
			Msg("detector failed, scoring factor as 0")
		metrics.RecordDetectorError(string(factor))
		return 0
	}
	return clampScore(score)
}

func (e *Engine) recordResult(result *models.DetectionResult) {
	e.metricsStore.mu.Lock()
	defer e.metricsStore.mu.Unlock()

	e.metricsStore.EventsScored++
	if result.IsAnomaly {
		e.metricsStore.AnomaliesDetected++
	}
	e.metricsStore.LastScoredAt = time.Now()
}

// Metrics returns a copy of the engine metrics.
func (e *Engine) Metrics() EngineMetrics {
	e.metricsStore.mu.RLock()
	defer e.metricsStore.mu.RUnlock()

	detectorMetrics := make(map[models.Factor]*DetectorMetrics, len(e.metricsStore.DetectorMetrics))
	for f, m := range e.metricsStore.DetectorMetrics {
		copied := *m
		detectorMetrics[f] = &copied
	}

	return EngineMetrics{
		EventsScored:      e.metricsStore.EventsScored,
		AnomaliesDetected: e.metricsStore.AnomaliesDetected,
		DetectorErrors:    e.metricsStore.DetectorErrors,
		LastScoredAt:      e.metricsStore.LastScoredAt,
		DetectorMetrics:   detectorMetrics,
	}
}
