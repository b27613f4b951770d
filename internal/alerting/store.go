// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package alerting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/accessguard/internal/metrics"
	"github.com/tomtom215/accessguard/internal/models"
)

// DuckDBNotificationStore persists notifications to the notifications table.
type DuckDBNotificationStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewDuckDBNotificationStore creates a store on an initialized database.
func NewDuckDBNotificationStore(db *sql.DB) *DuckDBNotificationStore {
	return &DuckDBNotificationStore{db: db, now: time.Now}
}

// Name returns the notifier name.
func (s *DuckDBNotificationStore) Name() string {
	return "duckdb"
}

// Create inserts n, assigning an ID and creation time when absent.
func (s *DuckDBNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.CreatedAt = n.CreatedAt.UTC().Truncate(time.Microsecond)

	start := time.Now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO notifications
		(id, user_id, organization_id, type, category, title, message,
		 priority, related_id, related_type, action_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.OrganizationID,
		string(n.Type), n.Category, n.Title, n.Message, string(n.Priority),
		n.RelatedID, string(n.RelatedType), n.ActionURL, n.CreatedAt,
	)
	metrics.RecordDBQuery("INSERT", "notifications", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListForUser returns a recipient's notifications, newest first.
func (s *DuckDBNotificationStore) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, organization_id, type, category,
		title, message, priority, COALESCE(related_id, ''), COALESCE(related_type, ''),
		COALESCE(action_url, ''), created_at
		FROM notifications WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	metrics.RecordDBQuery("SELECT", "notifications", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var (
			n                            models.Notification
			nType, priority, relatedType string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.OrganizationID, &nType, &n.Category,
			&n.Title, &n.Message, &priority, &n.RelatedID, &relatedType,
			&n.ActionURL, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = models.NotificationType(nType)
		n.Priority = models.Priority(priority)
		n.RelatedType = models.RelatedType(relatedType)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}
