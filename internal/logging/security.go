// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// SecurityEvent is an audit line describing an alerting decision.
type SecurityEvent struct {
	// Event is the decision, e.g. "anomaly_alert", "high_risk_access", "escalation".
	Event          string
	EventID        string
	UserID         string
	UserEmail      string
	OrganizationID string
	IPAddress      string
	Score          int
	Recipients     int
	Reasons        []string
}

// SecurityLogger writes alerting audit lines under component=security.
// E-mail addresses are masked before they reach the log.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger uses the global logger.
func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{logger: WithComponent("security")}
}

// NewSecurityLoggerWithLogger uses a custom logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger.With().Str("component", "security").Logger()}
}

// LogEvent writes ev at warn level.
func (l *SecurityLogger) LogEvent(ev *SecurityEvent) {
	e := l.logger.Warn().
		Str("event", ev.Event).
		Int("score", ev.Score).
		Int("recipients", ev.Recipients)

	if ev.EventID != "" {
		e = e.Str("event_id", ev.EventID)
	}
	if ev.UserID != "" {
		e = e.Str("user_id", ev.UserID)
	}
	if ev.UserEmail != "" {
		e = e.Str("user_email", MaskEmail(ev.UserEmail))
	}
	if ev.OrganizationID != "" {
		e = e.Str("organization_id", ev.OrganizationID)
	}
	if ev.IPAddress != "" {
		e = e.Str("ip", ev.IPAddress)
	}
	if len(ev.Reasons) > 0 {
		e = e.Strs("reasons", ev.Reasons)
	}
	e.Msg("security alert decision")
}

// MaskEmail keeps the first character of the local part and the domain:
// "jane.doe@example.org" becomes "j***@example.org".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
