// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scoring Metrics
	ScoringDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accessguard_scoring_duration_seconds",
			Help:    "Duration of scoring a single access event",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	AnomalyScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accessguard_anomaly_score",
			Help:    "Distribution of final weighted anomaly scores",
			Buckets: prometheus.LinearBuckets(10, 10, 10), // 10..100
		},
	)

	AnomaliesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accessguard_anomalies_detected_total",
			Help: "Total number of events scored at or above the anomaly threshold",
		},
	)

	DetectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_detector_errors_total",
			Help: "Total number of detector failures degraded to a zero sub-score",
		},
		[]string{"factor"},
	)

	// Storage Metrics
	AccessEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_access_events_total",
			Help: "Total number of access records by persistence outcome",
		},
		[]string{"result"}, // appended, spooled, rejected, failed
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accessguard_db_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_db_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Alerting Metrics
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_notifications_total",
			Help: "Total number of notifications by kind and result",
		},
		[]string{"kind", "result"},
	)

	EscalationsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accessguard_escalations_suppressed_total",
			Help: "Total number of escalations suppressed by the cooldown gate",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "accessguard_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_circuit_breaker_requests_total",
			Help: "Total requests through a circuit breaker by result",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Batch Metrics
	BatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_batch_runs_total",
			Help: "Total batch analysis runs by status",
		},
		[]string{"status"}, // success, error
	)

	BatchRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_batch_records_total",
			Help: "Total records handled by the batch analyzer",
		},
		[]string{"outcome"}, // analyzed, anomalous, failed
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accessguard_batch_duration_seconds",
			Help:    "Duration of batch analysis runs",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900},
		},
	)

	// Ingest Metrics
	IngestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_ingest_messages_total",
			Help: "Total access event messages consumed from NATS by result",
		},
		[]string{"result"}, // processed, invalid, failed
	)

	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_notifications_published_total",
			Help: "Total notifications published to NATS by result",
		},
		[]string{"result"},
	)

	// WAL Metrics
	WALWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_wal_writes_total",
			Help: "Total access records written to the WAL spool",
		},
		[]string{"result"},
	)

	WALReplays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_wal_replays_total",
			Help: "Total WAL replay attempts by result",
		},
		[]string{"result"}, // success, failure, abandoned
	)

	WALPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "accessguard_wal_pending_entries",
			Help: "Number of access records waiting in the WAL spool",
		},
	)
)

// RecordScoring records the outcome of scoring one event.
func RecordScoring(duration time.Duration, score int, isAnomaly bool) {
	ScoringDuration.Observe(duration.Seconds())
	AnomalyScore.Observe(float64(score))
	if isAnomaly {
		AnomaliesDetected.Inc()
	}
}

// RecordDetectorError records a detector failure.
func RecordDetectorError(factor string) {
	DetectorErrors.WithLabelValues(factor).Inc()
}

// RecordAccessEvent records how an access record was persisted.
func RecordAccessEvent(result string) {
	AccessEvents.WithLabelValues(result).Inc()
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordNotification records one notification write.
func RecordNotification(kind string, err error) {
	result := "created"
	if err != nil {
		result = "failed"
	}
	Notifications.WithLabelValues(kind, result).Inc()
}

// RecordEscalationSuppressed records an escalation dropped by the gate.
func RecordEscalationSuppressed() {
	EscalationsSuppressed.Inc()
}

// RecordBatchRun records a finished batch analysis run.
func RecordBatchRun(duration time.Duration, analyzed, anomalous, failed int, err error) {
	BatchDuration.Observe(duration.Seconds())
	BatchRecords.WithLabelValues("analyzed").Add(float64(analyzed))
	BatchRecords.WithLabelValues("anomalous").Add(float64(anomalous))
	BatchRecords.WithLabelValues("failed").Add(float64(failed))
	if err != nil {
		BatchRuns.WithLabelValues("error").Inc()
		return
	}
	BatchRuns.WithLabelValues("success").Inc()
}

// RecordIngest records the outcome of one consumed NATS message.
func RecordIngest(result string) {
	IngestMessages.WithLabelValues(result).Inc()
}

// RecordNotificationPublished records a notification publish attempt.
func RecordNotificationPublished(err error) {
	if err != nil {
		NotificationsPublished.WithLabelValues("failure").Inc()
		return
	}
	NotificationsPublished.WithLabelValues("success").Inc()
}

// RecordWALWrite records a spool write.
func RecordWALWrite(err error) {
	if err != nil {
		WALWrites.WithLabelValues("failure").Inc()
		return
	}
	WALWrites.WithLabelValues("success").Inc()
}

// RecordWALReplay records a replay attempt. result is success, failure or abandoned.
func RecordWALReplay(result string) {
	WALReplays.WithLabelValues(result).Inc()
}

// SetWALPending sets the current spool depth.
func SetWALPending(n int) {
	WALPending.Set(float64(n))
}
