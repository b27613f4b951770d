// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package models

// Role is a user's organizational role.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleProvider Role = "PROVIDER"
	RoleStaff    Role = "STAFF"
)

// User is the directory view of an account.
type User struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           Role   `json:"role"`
	Active         bool   `json:"active"`
}

// DisplayName returns the name, falling back to email.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// PatientAssignment is a care-team membership.
type PatientAssignment struct {
	PatientID string `json:"patientId"`
	UserID    string `json:"userId"`
	Active    bool   `json:"active"`
}
