// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package wal

import (
	"context"
	"time"

	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/metrics"
	"github.com/tomtom215/accessguard/internal/models"
)

// Appender is the access log view replay writes through.
type Appender interface {
	Append(ctx context.Context, event *models.AccessEvent) (string, error)
	Get(ctx context.Context, id string) (*models.AccessEvent, error)
}

// ReplayStats summarizes one replay pass.
type ReplayStats struct {
	Replayed  int
	Failed    int
	Abandoned int
}

// Replayer drains the spool into the access log. It runs as a suture
// service: one pass at start, then one per interval.
type Replayer struct {
	spool      *BadgerSpool
	store      Appender
	interval   time.Duration
	maxRetries int
	timeout    time.Duration
}

// NewReplayer creates a replayer. maxRetries bounds the attempts per entry
// before it is abandoned.
func NewReplayer(spool *BadgerSpool, store Appender, interval time.Duration, maxRetries int) *Replayer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 100
	}
	return &Replayer{
		spool:      spool,
		store:      store,
		interval:   interval,
		maxRetries: maxRetries,
		timeout:    5 * time.Second,
	}
}

// Serve implements suture.Service.
func (r *Replayer) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", r.interval).
		Int("max_retries", r.maxRetries).
		Msg("WAL replayer started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.ReplayOnce(ctx); err != nil && ctx.Err() == nil {
			logging.Error().Err(err).Msg("WAL replay pass failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (r *Replayer) String() string {
	return "wal-replayer"
}

// ReplayOnce appends every pending entry. Entries that keep failing are
// abandoned after maxRetries attempts.
func (r *Replayer) ReplayOnce(ctx context.Context) (ReplayStats, error) {
	var stats ReplayStats

	entries, err := r.spool.Pending(ctx)
	if err != nil {
		return stats, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		switch r.replay(ctx, entry) {
		case outcomeReplayed:
			if err := r.spool.Remove(entry.ID()); err != nil {
				logging.Warn().Err(err).Str("event_id", entry.ID()).Msg("WAL failed to remove replayed entry")
			}
			stats.Replayed++
			metrics.RecordWALReplay("success")
		case outcomeAbandoned:
			stats.Failed++
			stats.Abandoned++
		default:
			stats.Failed++
		}
	}

	if stats.Replayed > 0 || stats.Failed > 0 {
		logging.Info().
			Int("replayed", stats.Replayed).
			Int("failed", stats.Failed).
			Int("abandoned", stats.Abandoned).
			Msg("WAL replay pass complete")
	}
	return stats, nil
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeReplayed
	outcomeAbandoned
)

// replay appends one entry. A failed append whose event is already stored
// counts as replayed: the earlier write went through but its
// acknowledgement was lost.
func (r *Replayer) replay(ctx context.Context, entry *Entry) outcome {
	event := entry.Event

	storeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	_, err := r.store.Append(storeCtx, &event)
	cancel()
	if err == nil {
		return outcomeReplayed
	}

	getCtx, cancel := context.WithTimeout(ctx, r.timeout)
	existing, getErr := r.store.Get(getCtx, entry.ID())
	cancel()
	if getErr == nil && existing != nil {
		return outcomeReplayed
	}

	attempts, recErr := r.spool.RecordFailure(entry.ID(), err)
	if recErr != nil {
		logging.Warn().Err(recErr).Str("event_id", entry.ID()).Msg("WAL failed to record attempt")
	}
	metrics.RecordWALReplay("failure")

	if attempts < r.maxRetries {
		return outcomeFailed
	}
	if abErr := r.spool.Abandon(entry.ID()); abErr != nil {
		logging.Error().Err(abErr).Str("event_id", entry.ID()).Msg("WAL failed to abandon entry")
		return outcomeFailed
	}
	metrics.RecordWALReplay("abandoned")
	logging.Error().
		Err(err).
		Str("event_id", entry.ID()).
		Int("attempts", attempts).
		Msg("WAL entry abandoned after max retries")
	return outcomeAbandoned
}
