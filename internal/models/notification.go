// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package models

import "time"

// NotificationType is the display severity of a notification.
type NotificationType string

const (
	NotificationInfo    NotificationType = "INFO"
	NotificationWarning NotificationType = "WARNING"
	NotificationUrgent  NotificationType = "URGENT"
)

// Priority is the triage priority of a notification.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// CategorySecurityAlert is the only category this module emits.
const CategorySecurityAlert = "SECURITY_ALERT"

// RelatedType identifies what a notification's RelatedID refers to.
type RelatedType string

const (
	RelatedAccessLog RelatedType = "ACCESS_LOG"
	RelatedUser      RelatedType = "USER"
)

// Notification is a single message to a single recipient.
type Notification struct {
	ID             string           `json:"id"`
	UserID         string           `json:"userId"`
	OrganizationID string           `json:"organizationId"`
	Type           NotificationType `json:"type"`
	Category       string           `json:"category"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Priority       Priority         `json:"priority"`
	RelatedID      string           `json:"relatedId"`
	RelatedType    RelatedType      `json:"relatedType"`
	ActionURL      string           `json:"actionUrl"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// AlertConfig controls real-time alert dispatch.
type AlertConfig struct {
	EnableRealTimeAlerts bool `json:"enableRealTimeAlerts" koanf:"enable_real_time_alerts"`
	AlertThreshold       int  `json:"alertThreshold" koanf:"alert_threshold" validate:"gte=0,lte=100"`
	NotifyAdminsOnly     bool `json:"notifyAdminsOnly" koanf:"notify_admins_only"`
	NotifyUser           bool `json:"notifyUser" koanf:"notify_user"`
}

// DefaultAlertConfig returns the default dispatch policy.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		EnableRealTimeAlerts: true,
		AlertThreshold:       50,
		NotifyAdminsOnly:     true,
		NotifyUser:           false,
	}
}
