// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

/*
Package metrics provides Prometheus instrumentation for AccessGuard.

All collectors are registered on the default registry via promauto and exposed
by the operational HTTP server at /metrics:

	curl http://localhost:9090/metrics

# Available Metrics

Scoring:
  - accessguard_scoring_duration_seconds: time to score one event (histogram)
  - accessguard_anomaly_score: distribution of final scores (histogram)
  - accessguard_anomalies_detected_total: events at or above the anomaly threshold
  - accessguard_detector_errors_total: detector failures degraded to 0
    Labels: factor

Ingest and storage:
  - accessguard_access_events_total: access records by outcome
    Labels: result (appended, spooled, failed)
  - accessguard_db_query_duration_seconds / accessguard_db_query_errors_total
    Labels: operation, table
  - accessguard_ingest_messages_total: NATS messages by outcome
    Labels: result (processed, invalid, failed)
  - accessguard_wal_*: spool writes, replays and pending depth

Alerting:
  - accessguard_notifications_total: notifications by kind and result
    Labels: kind (admin, self, high_risk, escalation), result (created, failed)
  - accessguard_escalations_suppressed_total: escalations dropped by the gate
  - accessguard_circuit_breaker_*: webhook breaker state and transitions

Batch:
  - accessguard_batch_runs_total, accessguard_batch_records_total,
    accessguard_batch_duration_seconds
*/
package metrics
