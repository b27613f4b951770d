// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements create every table and index. All statements are idempotent.
var schemaStatements = []string{
	// device_info and anomaly_reasons are JSON; scored_at guards against
	// double scoring.
	`CREATE TABLE IF NOT EXISTS access_logs (
		id VARCHAR PRIMARY KEY,
		user_id VARCHAR NOT NULL,
		organization_id VARCHAR NOT NULL,
		resource_type VARCHAR NOT NULL,
		resource_id VARCHAR NOT NULL,
		action VARCHAR NOT NULL,
		ip_address VARCHAR,
		user_agent VARCHAR,
		device_info JSON,
		access_duration INTEGER,
		data_size BIGINT,
		anomaly_score INTEGER NOT NULL DEFAULT 0,
		is_anomaly BOOLEAN NOT NULL DEFAULT false,
		anomaly_reasons JSON,
		scored_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_access_logs_user_time ON access_logs(user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_access_logs_org_time ON access_logs(organization_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR PRIMARY KEY,
		organization_id VARCHAR NOT NULL,
		name VARCHAR NOT NULL DEFAULT '',
		email VARCHAR NOT NULL DEFAULT '',
		role VARCHAR NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_org_role ON users(organization_id, role)`,

	`CREATE TABLE IF NOT EXISTS patient_assignments (
		patient_id VARCHAR NOT NULL,
		user_id VARCHAR NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		PRIMARY KEY (patient_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id VARCHAR PRIMARY KEY,
		user_id VARCHAR NOT NULL,
		organization_id VARCHAR NOT NULL,
		type VARCHAR NOT NULL,
		category VARCHAR NOT NULL,
		title VARCHAR NOT NULL,
		message VARCHAR NOT NULL,
		priority VARCHAR NOT NULL,
		related_id VARCHAR,
		related_type VARCHAR,
		action_url VARCHAR,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at)`,
}

// InitSchema creates all tables on conn. Tests use it to prepare an
// in-memory database without going through New.
func InitSchema(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
