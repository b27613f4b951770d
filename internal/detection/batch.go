// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/accessguard/internal/accesslog"
	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/metrics"
	"github.com/tomtom215/accessguard/internal/models"
)

const (
	defaultBatchPageSize = 500
	progressInterval     = 1000
)

// Scorer scores an already-loaded event.
type Scorer interface {
	Score(ctx context.Context, event *models.AccessEvent, thresholds models.Thresholds) (*models.DetectionResult, error)
}

// UnscoredStore is the access log view the batch analyzer needs.
type UnscoredStore interface {
	ListUnscored(ctx context.Context, orgID string, start, end time.Time, after *accesslog.Cursor, limit int) ([]models.AccessEvent, error)
	Annotate(ctx context.Context, id string, result *models.DetectionResult) error
}

// BatchResult summarizes one analyzer run.
type BatchResult struct {
	TotalAnalyzed     int     `json:"totalAnalyzed"`
	AnomaliesDetected int     `json:"anomaliesDetected"`
	AverageScore      float64 `json:"averageScore"`

	// Failed counts records that could not be scored or annotated.
	Failed int `json:"failed"`

	// Skipped counts records scored concurrently by another writer.
	Skipped int `json:"skipped"`
}

// BatchAnalyzer scores an organization's unscored events page by page.
type BatchAnalyzer struct {
	store    UnscoredStore
	scorer   Scorer
	pageSize int
}

// NewBatchAnalyzer creates an analyzer. pageSize <= 0 uses 500.
func NewBatchAnalyzer(store UnscoredStore, scorer Scorer, pageSize int) *BatchAnalyzer {
	if pageSize <= 0 {
		pageSize = defaultBatchPageSize
	}
	return &BatchAnalyzer{store: store, scorer: scorer, pageSize: pageSize}
}

// Analyze scores every unscored event of orgID created in [start, end],
// newest first. A failing record is logged and counted; the run continues.
// Cancellation stops the run between records and returns the partial result
// together with the context error.
func (b *BatchAnalyzer) Analyze(ctx context.Context, orgID string, start, end time.Time, thresholds models.Thresholds) (*BatchResult, error) {
	began := time.Now()
	log := logging.Ctx(ctx).With().Str("organization_id", orgID).Logger()
	log.Info().
		Time("start", start).
		Time("end", end).
		Msg("batch analysis started")

	result := &BatchResult{}
	var (
		totalScore int
		cursor     *accesslog.Cursor
		runErr     error
	)

scan:
	for {
		page, err := b.store.ListUnscored(ctx, orgID, start, end, cursor, b.pageSize)
		if err != nil {
			runErr = fmt.Errorf("failed to list unscored events: %w", err)
			break
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			if err := ctx.Err(); err != nil {
				runErr = err
				break scan
			}

			event := &page[i]
			score, ok := b.analyzeOne(ctx, event, thresholds, result)
			if !ok {
				continue
			}

			result.TotalAnalyzed++
			totalScore += score.AnomalyScore
			if score.IsAnomaly {
				result.AnomaliesDetected++
			}

			if result.TotalAnalyzed%progressInterval == 0 {
				log.Info().Int("analyzed", result.TotalAnalyzed).Msg("batch analysis progress")
			}
		}

		cursor = accesslog.CursorAfter(&page[len(page)-1])
		if len(page) < b.pageSize {
			break
		}
	}

	if result.TotalAnalyzed > 0 {
		result.AverageScore = float64(totalScore) / float64(result.TotalAnalyzed)
	}

	metrics.RecordBatchRun(time.Since(began), result.TotalAnalyzed, result.AnomaliesDetected, result.Failed, runErr)

	evt := log.Info()
	if runErr != nil {
		evt = log.Error().Err(runErr)
	}
	evt.
		Int("analyzed", result.TotalAnalyzed).
		Int("anomalies", result.AnomaliesDetected).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Float64("average_score", result.AverageScore).
		Dur("duration", time.Since(began)).
		Msg("batch analysis finished")

	return result, runErr
}

// analyzeOne scores and annotates a single event. It reports false when the
// event should not count toward the totals.
func (b *BatchAnalyzer) analyzeOne(ctx context.Context, event *models.AccessEvent, th models.Thresholds, result *BatchResult) (*models.DetectionResult, bool) {
	score, err := b.scorer.Score(ctx, event, th)
	if err != nil {
		result.Failed++
		logging.Ctx(ctx).Warn().Err(err).Str("event_id", event.ID).Msg("failed to score event")
		return nil, false
	}

	if err := b.store.Annotate(ctx, event.ID, score); err != nil {
		if errors.Is(err, accesslog.ErrAlreadyScored) {
			result.Skipped++
			logging.Ctx(ctx).Debug().Str("event_id", event.ID).Msg("event already scored, skipping")
			return nil, false
		}
		result.Failed++
		logging.Ctx(ctx).Warn().Err(err).Str("event_id", event.ID).Msg("failed to annotate event")
		return nil, false
	}
	return score, true
}
