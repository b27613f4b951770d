// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package models

import (
	"time"
)

// ResourceType identifies the kind of object an access event touched.
type ResourceType string

const (
	ResourceTypePatient  ResourceType = "PATIENT"
	ResourceTypeConsent  ResourceType = "CONSENT"
	ResourceTypeRecord   ResourceType = "RECORD"
	ResourceTypeTask     ResourceType = "TASK"
	ResourceTypeDocument ResourceType = "DOCUMENT"
)

// Valid reports whether r is a known resource type.
func (r ResourceType) Valid() bool {
	switch r {
	case ResourceTypePatient, ResourceTypeConsent, ResourceTypeRecord, ResourceTypeTask, ResourceTypeDocument:
		return true
	}
	return false
}

// Action is the operation performed on a resource.
type Action string

const (
	ActionView   Action = "VIEW"
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionExport Action = "EXPORT"
	ActionPrint  Action = "PRINT"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionExport, ActionPrint:
		return true
	}
	return false
}

// DeviceInfo is the classification derived from a raw user agent string.
// IsUnusual is never set by the extractor.
type DeviceInfo struct {
	DeviceType string `json:"deviceType"`
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	IsUnusual  bool   `json:"isUnusual"`
}

// AccessEvent records a single resource access.
type AccessEvent struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId" validate:"required"`
	OrganizationID string       `json:"organizationId" validate:"required"`
	ResourceType   ResourceType `json:"resourceType" validate:"required,resource_type"`
	ResourceID     string       `json:"resourceId" validate:"required"`
	Action         Action       `json:"action" validate:"required,access_action"`
	IPAddress      string       `json:"ipAddress,omitempty" validate:"omitempty,ip"`
	UserAgent      string       `json:"userAgent,omitempty"`
	DeviceInfo     *DeviceInfo  `json:"deviceInfo,omitempty"`

	// AccessDuration is in seconds, DataSize in bytes. Both optional.
	AccessDuration *int   `json:"accessDuration,omitempty" validate:"omitempty,gte=0"`
	DataSize       *int64 `json:"dataSize,omitempty" validate:"omitempty,gte=0"`

	AnomalyScore   int        `json:"anomalyScore"`
	IsAnomaly      bool       `json:"isAnomaly"`
	AnomalyReasons []string   `json:"anomalyReasons"`
	ScoredAt       *time.Time `json:"scoredAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// DataSizeBytes returns the data size or 0 when unknown.
func (e *AccessEvent) DataSizeBytes() int64 {
	if e.DataSize == nil {
		return 0
	}
	return *e.DataSize
}

// ClearScore resets the fields only the scoring engine may set.
func (e *AccessEvent) ClearScore() {
	e.AnomalyScore = 0
	e.IsAnomaly = false
	e.AnomalyReasons = nil
	e.ScoredAt = nil
}

// AccessFilter narrows QueryByUser / QueryByOrg scans. Zero values mean "no filter".
type AccessFilter struct {
	Start          time.Time
	End            time.Time
	ResourceType   ResourceType
	Action         Action
	UserID         string
	OrganizationID string
	MinScore       int
	AnomalousOnly  bool
	Limit          int
}

// AccessStats is a user's access distribution over a time window.
type AccessStats struct {
	TotalAccess           int                  `json:"totalAccess"`
	HourlyAccess          [24]int              `json:"hourlyAccess"`
	ActionCounts          map[Action]int       `json:"actionCounts"`
	ResourceTypeCounts    map[ResourceType]int `json:"resourceTypeCounts"`
	DeviceTypes           map[string]int       `json:"deviceTypes"`
	AverageAccessDuration float64              `json:"averageAccessDuration"`
	AnomalousAccessCount  int                  `json:"anomalousAccessCount"`
	AverageAnomalyScore   float64              `json:"averageAnomalyScore"`
}

// NewAccessStats returns stats with all maps initialized.
func NewAccessStats() *AccessStats {
	return &AccessStats{
		ActionCounts:       make(map[Action]int),
		ResourceTypeCounts: make(map[ResourceType]int),
		DeviceTypes:        make(map[string]int),
	}
}

// OrganizationStats summarizes all access in an organization over a window.
type OrganizationStats struct {
	TotalAccess         int     `json:"totalAccess"`
	TotalAnomalies      int     `json:"totalAnomalies"`
	AverageAnomalyScore float64 `json:"averageAnomalyScore"`
	UniqueUsers         int     `json:"uniqueUsers"`
	UniqueResources     int     `json:"uniqueResources"`
}
