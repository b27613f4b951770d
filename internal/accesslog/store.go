// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

// Package accesslog is the durable, append-only record of resource access
// events. Only the scoring fields of an event are ever updated.
package accesslog

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/accessguard/internal/models"
)

var (
	// ErrNotFound is returned when an event id does not exist.
	ErrNotFound = errors.New("access event not found")

	// ErrAlreadyScored is returned by Annotate when the event already carries a score.
	ErrAlreadyScored = errors.New("access event already scored")
)

// Cursor marks a position in a created_at DESC, id DESC scan.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorAfter returns the cursor positioned after e.
func CursorAfter(e *models.AccessEvent) *Cursor {
	return &Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
}

// Store is the read/write contract for access events.
type Store interface {
	// Append persists a new event, assigning ID and CreatedAt when empty.
	Append(ctx context.Context, event *models.AccessEvent) (string, error)

	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*models.AccessEvent, error)

	// QueryByUser returns a user's events newest first.
	QueryByUser(ctx context.Context, userID string, filter models.AccessFilter) ([]models.AccessEvent, error)

	// QueryByOrg returns an organization's events. Ordered by score when
	// filter.MinScore or filter.AnomalousOnly is set, else newest first.
	QueryByOrg(ctx context.Context, orgID string, filter models.AccessFilter) ([]models.AccessEvent, error)

	// CountByUser counts a user's events matching filter. Start and End are inclusive.
	CountByUser(ctx context.Context, userID string, filter models.AccessFilter) (int, error)

	// Annotate writes the scoring fields once. It returns ErrAlreadyScored
	// when another writer got there first.
	Annotate(ctx context.Context, id string, result *models.DetectionResult) error

	// ListUnscored pages through an organization's unscored events in
	// [start, end], newest first, resuming after cursor when non-nil.
	ListUnscored(ctx context.Context, orgID string, start, end time.Time, after *Cursor, limit int) ([]models.AccessEvent, error)

	// OrganizationStats aggregates all of an organization's events in [start, end].
	OrganizationStats(ctx context.Context, orgID string, start, end time.Time) (*models.OrganizationStats, error)
}
