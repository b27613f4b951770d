// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/accessguard/internal/models"
)

const (
	securityAlertPrefix = "[Security Alert] "
	defaultAlertTitle   = "Anomalous access pattern"

	selfNotificationTitle = "Unusual activity on your account"
	highRiskTitle         = "[URGENT] High-risk access detected"
	escalationTitle       = "[URGENT] Repeated anomalous access"

	securityDashboardURL = "/dashboard/security"
	myActivityURL        = "/dashboard/security/my-activity"

	timestampLayout = "2006-01-02 15:04:05 MST"
)

// priorityForScore maps a weighted score to a triage priority.
func priorityForScore(score int) models.Priority {
	switch {
	case score >= 80:
		return models.PriorityUrgent
	case score >= 70:
		return models.PriorityHigh
	case score >= 50:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// typeForScore maps a weighted score to a display severity.
func typeForScore(score int) models.NotificationType {
	switch {
	case score >= 80:
		return models.NotificationUrgent
	case score >= 60:
		return models.NotificationWarning
	default:
		return models.NotificationInfo
	}
}

// alertTitle names the dominant factor. A result with no positive factor
// gets the generic title.
func alertTitle(f models.Factors) string {
	top := f.Highest()
	if f.Get(top) <= 0 {
		return defaultAlertTitle
	}

	switch top {
	case models.FactorTime:
		return "Off-hours access detected"
	case models.FactorVolume:
		return "Bulk data access detected"
	case models.FactorPattern:
		return "Unusual access pattern detected"
	case models.FactorDevice:
		return "Access from an unrecognized device"
	case models.FactorAuthorization:
		return "Unauthorized access attempt"
	}
	return defaultAlertTitle
}

func logDetailURL(eventID string) string {
	return "/dashboard/security/logs/" + eventID
}

func userDetailURL(userID string) string {
	return "/dashboard/users/" + userID
}

func ipOrUnknown(ip string) string {
	if ip == "" {
		return "Unknown"
	}
	return ip
}

func formatTimestamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(timestampLayout)
}

// adminAlertMessage renders the body of an anomaly alert sent to admins.
func adminAlertMessage(user *models.User, event *models.AccessEvent, result *models.DetectionResult, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User: %s (%s)\n", user.DisplayName(), user.Email)
	fmt.Fprintf(&b, "Action: %s %s\n", event.Action, event.ResourceType)
	fmt.Fprintf(&b, "Time: %s\n", formatTimestamp(event.CreatedAt, loc))
	fmt.Fprintf(&b, "Anomaly score: %d/100\n", result.AnomalyScore)
	fmt.Fprintf(&b, "IP address: %s\n", ipOrUnknown(event.IPAddress))

	if len(result.Reasons) > 0 {
		b.WriteString("\nDetected anomalies:\n")
		for i, reason := range result.Reasons {
			fmt.Fprintf(&b, "%d. %s\n", i+1, reason)
		}
	}

	b.WriteString("\nReview the security logs and contact the user if this access is unexpected.")
	return b.String()
}

// selfNotificationMessage asks the acting user to confirm the access.
func selfNotificationMessage(event *models.AccessEvent, loc *time.Location) string {
	return fmt.Sprintf(
		"We noticed unusual activity on your account (%s %s).\n"+
			"If this was you, no action is needed. Otherwise, contact your administrator.\n"+
			"Detected at: %s",
		event.Action, event.ResourceType, formatTimestamp(event.CreatedAt, loc))
}

func highRiskMessage(user *models.User, event *models.AccessEvent, loc *time.Location) string {
	return fmt.Sprintf(
		"User %s (%s) performed a high-risk action: %s %s.\nTime: %s\nIP address: %s",
		user.DisplayName(), user.Email,
		event.Action, event.ResourceType,
		formatTimestamp(event.CreatedAt, loc),
		ipOrUnknown(event.IPAddress))
}

func escalationMessage(user *models.User, count int) string {
	return fmt.Sprintf(
		"User %s (%s) performed %d anomalous accesses within 24 hours.\n"+
			"Consider suspending the account until the activity has been reviewed.",
		user.DisplayName(), user.Email, count)
}
