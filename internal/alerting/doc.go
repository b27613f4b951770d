// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

/*
Package alerting records access events and turns their anomaly scores into
security notifications.

The Dispatcher runs the real-time path for one event:

 1. Validate, clear any caller-supplied scoring fields, derive device info
    from the user agent, and append to the access log (or the spool when
    the log is unavailable). An id already in the log stops here.
 2. Alert admins immediately for high-risk actions. This runs for every
    recorded event, before and independent of scoring.
 3. Score the event and store the result, when real-time alerts are on
    and the event was not spooled.
 4. Alert admins (and optionally the acting user) when the score reaches
    the configured alert threshold.
 5. Escalate when a user accumulates EscalationThreshold anomalous events
    within EscalationWindow.

Notification policy:

	score >= 80   URGENT / URGENT
	score >= 70   HIGH / WARNING, admins notified even without NotifyAdminsOnly
	score >= 60   MEDIUM / WARNING
	score >= 50   MEDIUM / INFO
	50 <= score < 80   self-notification when NotifyUser is set

Notifications are delivered through a NotificationSink. MultiSink writes to
a primary sink (normally DuckDBNotificationStore) synchronously and copies
to secondary sinks such as WebhookSink in the background.

Escalations are rate limited by an EscalationGate: MemoryGate for a single
process, RedisGate when several instances share the access log.
*/
package alerting
