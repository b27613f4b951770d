// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

// Package report rolls scored access logs up into an organization-level
// anomaly report: severity buckets, top offending users, top reasons,
// time trends and recommendations.
package report

import "time"

// Report is the anomaly report for one organization and period.
type Report struct {
	// Summary provides high-level totals for the period
	Summary Summary `json:"summary"`

	// Severity buckets the anomalous events by score
	Severity SeverityDistribution `json:"severityDistribution"`

	// TopUsers are the users with the most anomalous events, at most 10
	TopUsers []UserAnomalies `json:"topAnomalousUsers"`

	// HourlyDistribution counts anomalous events by local hour of day
	HourlyDistribution [24]int `json:"hourlyDistribution"`

	// DailyTrend counts anomalous events per local date, oldest first
	DailyTrend []DailyCount `json:"dailyTrend"`

	// TopReasons are the most frequent detector labels, at most 10
	TopReasons []ReasonCount `json:"topReasons"`

	// ResourceTypes counts anomalous events per resource type, most first
	ResourceTypes []ResourceTypeCount `json:"resourceTypeDistribution"`

	// CriticalAnomalies lists up to 20 events scoring at least 80
	CriticalAnomalies []CriticalAnomaly `json:"criticalAnomalies"`

	Recommendations []string `json:"recommendations"`

	// Metadata provides query provenance
	Metadata Metadata `json:"metadata"`
}

// Period is the reporting window.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// Days is the window length in days, rounded up.
	Days int `json:"days"`
}

// Summary holds the organization totals for the period.
type Summary struct {
	Period         Period `json:"period"`
	TotalAccess    int    `json:"totalAccess"`
	TotalAnomalies int    `json:"totalAnomalies"`
	// AnomalyRate is a percentage rounded to 2 decimals.
	AnomalyRate         float64 `json:"anomalyRate"`
	AverageAnomalyScore float64 `json:"averageAnomalyScore"`
	UniqueUsers         int     `json:"uniqueUsers"`
	UniqueResources     int     `json:"uniqueResources"`
	// UsersWithAnomalies counts distinct users among the sampled anomalies.
	UsersWithAnomalies int `json:"uniqueUsersWithAnomalies"`
}

// SeverityDistribution buckets anomalous events by score.
type SeverityDistribution struct {
	Critical int `json:"critical"` // >= 80
	High     int `json:"high"`     // 70-79
	Medium   int `json:"medium"`   // 50-69
	Low      int `json:"low"`      // < 50
}

// UserAnomalies is one row of the top users table.
type UserAnomalies struct {
	UserID       string  `json:"userId"`
	UserName     string  `json:"userName"`
	UserEmail    string  `json:"userEmail"`
	Count        int     `json:"count"`
	AverageScore float64 `json:"averageScore"`
}

// DailyCount is one day of the anomaly trend. Date is YYYY-MM-DD.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// ReasonCount is a detector label with its frequency.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// ResourceTypeCount is the anomaly count for one resource type.
type ResourceTypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// CriticalAnomaly is a high-scoring event with its actor resolved.
type CriticalAnomaly struct {
	EventID      string    `json:"eventId"`
	Timestamp    time.Time `json:"timestamp"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	Action       string    `json:"action"`
	AnomalyScore int       `json:"anomalyScore"`
	Reasons      []string  `json:"reasons"`
	IPAddress    string    `json:"ipAddress,omitempty"`
}

// Metadata describes how the report was produced.
type Metadata struct {
	GeneratedAt time.Time `json:"generatedAt"`
	MinScore    int       `json:"minScore"`
	// SampledAnomalies is the number of anomalous events aggregated.
	SampledAnomalies int `json:"sampledAnomalies"`
	// Truncated is set when the anomaly sample hit its row limit.
	Truncated bool  `json:"truncated"`
	QueryMS   int64 `json:"queryMs"`
}
