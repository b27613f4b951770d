// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

// Package directory provides read access to users, roles and care-team
// assignments. AccessGuard never mutates directory data during scoring.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomtom215/accessguard/internal/models"
)

// ErrUserNotFound is returned when a user id does not exist.
var ErrUserNotFound = errors.New("user not found")

// IdentityDirectory resolves users and organization administrators.
type IdentityDirectory interface {
	UserByID(ctx context.Context, userID string) (*models.User, error)
	ActiveAdmins(ctx context.Context, orgID string) ([]models.User, error)
}

// CareTeamDirectory answers patient-assignment questions.
type CareTeamDirectory interface {
	HasActiveAssignment(ctx context.Context, userID, patientID string) (bool, error)
}

// DuckDBDirectory implements both directories on the users and
// patient_assignments tables.
type DuckDBDirectory struct {
	db *sql.DB
}

// NewDuckDBDirectory creates a directory on an initialized database.
func NewDuckDBDirectory(db *sql.DB) *DuckDBDirectory {
	return &DuckDBDirectory{db: db}
}

func (d *DuckDBDirectory) UserByID(ctx context.Context, userID string) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, email, role, active FROM users WHERE id = ?`, userID,
	).Scan(&u.ID, &u.OrganizationID, &u.Name, &u.Email, &role, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

func (d *DuckDBDirectory) ActiveAdmins(ctx context.Context, orgID string) ([]models.User, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, organization_id, name, email, role, active FROM users
		 WHERE organization_id = ? AND role = ? AND active = true
		 ORDER BY id`, orgID, string(models.RoleAdmin))
	if err != nil {
		return nil, fmt.Errorf("failed to query admins: %w", err)
	}
	defer rows.Close()

	var admins []models.User
	for rows.Next() {
		var (
			u    models.User
			role string
		)
		if err := rows.Scan(&u.ID, &u.OrganizationID, &u.Name, &u.Email, &role, &u.Active); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		u.Role = models.Role(role)
		admins = append(admins, u)
	}
	return admins, rows.Err()
}

func (d *DuckDBDirectory) HasActiveAssignment(ctx context.Context, userID, patientID string) (bool, error) {
	var ok bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM patient_assignments WHERE user_id = ? AND patient_id = ? AND active = true)`,
		userID, patientID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check patient assignment: %w", err)
	}
	return ok, nil
}

// UpsertUser inserts or replaces a user. Used by directory sync and tests.
func (d *DuckDBDirectory) UpsertUser(ctx context.Context, u *models.User) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO users (id, organization_id, name, email, role, active)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.OrganizationID, u.Name, u.Email, string(u.Role), u.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// AssignPatient inserts or replaces a care-team assignment.
func (d *DuckDBDirectory) AssignPatient(ctx context.Context, a *models.PatientAssignment) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO patient_assignments (patient_id, user_id, active) VALUES (?, ?, ?)`,
		a.PatientID, a.UserID, a.Active)
	if err != nil {
		return fmt.Errorf("failed to assign patient: %w", err)
	}
	return nil
}
