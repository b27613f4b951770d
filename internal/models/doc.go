// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

/*
Package models defines the data structures shared across AccessGuard.

Key Components:

  - AccessEvent: one resource access by one user, the unit of scoring
  - DeviceInfo: normalized device/OS/browser classification of a user agent
  - Thresholds: tunable base scores for the five anomaly factors
  - DetectionResult: weighted score, anomaly flag, reasons and per-factor scores
  - AccessStats / OrganizationStats: historical aggregates for baselining and reports
  - User, PatientAssignment: read-only directory records
  - Notification, AlertConfig: alert sink records and dispatch policy

Scoring fields (AnomalyScore, IsAnomaly, AnomalyReasons, ScoredAt) are the only
AccessEvent fields mutated after creation.
*/
package models
