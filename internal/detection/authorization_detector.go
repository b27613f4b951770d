// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package detection

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/accessguard/internal/directory"
	"github.com/tomtom215/accessguard/internal/models"
)

// AuthorizationDetector flags access by inactive accounts, patient access
// outside the care team, and deletes.
type AuthorizationDetector struct {
	users    directory.IdentityDirectory
	careTeam directory.CareTeamDirectory
}

// NewAuthorizationDetector creates an authorization detector.
func NewAuthorizationDetector(users directory.IdentityDirectory, careTeam directory.CareTeamDirectory) *AuthorizationDetector {
	return &AuthorizationDetector{users: users, careTeam: careTeam}
}

// Factor returns models.FactorAuthorization.
func (d *AuthorizationDetector) Factor() models.Factor {
	return models.FactorAuthorization
}

// Score returns the full base score for an inactive account without
// considering anything else. Unknown users score 0.
func (d *AuthorizationDetector) Score(ctx context.Context, event *models.AccessEvent, th models.Thresholds) (float64, error) {
	user, err := d.users.UserByID(ctx, event.UserID)
	if errors.Is(err, directory.ErrUserNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load user: %w", err)
	}

	if !user.Active {
		return clampScore(th.UnauthorizedAccessScore), nil
	}

	var score float64
	if event.ResourceType == models.ResourceTypePatient {
		assigned, err := d.careTeam.HasActiveAssignment(ctx, event.UserID, event.ResourceID)
		if err != nil {
			return 0, fmt.Errorf("failed to check care team: %w", err)
		}
		if !assigned {
			score += th.UnauthorizedAccessScore * 0.8
		}
	}

	if event.Action == models.ActionDelete {
		score += th.UnauthorizedAccessScore * 0.3
	}

	return clampScore(score), nil
}
