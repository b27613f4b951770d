// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

/*
Package detection scores access events for suspiciousness.

Five independent detectors each produce a sub-score in [0,100]:

  - TimeDetector: late-night, early-morning, evening and weekend access
  - VolumeDetector: burst volume in the trailing hour and five minutes
  - PatternDetector: deviation from the user's 30-day hourly and action baseline
  - DeviceDetector: device type, OS, browser or IP not seen in the last 30 days
  - AuthorizationDetector: inactive accounts, off-care-team patient access, deletes

The Engine combines them with fixed weights (time 0.15, volume 0.25,
pattern 0.20, device 0.15, authorization 0.25) into an integer score. Events
scoring AnomalyThreshold (50) or more are anomalous.

Scoring is read-only. Callers persist results with accesslog.Store.Annotate.
A detector error degrades that factor to 0 and is counted in metrics; it
never fails the whole computation.

BatchAnalyzer pages through an organization's unscored events and scores
each one, continuing past per-record failures.

Usage:

	engine := detection.NewStandardEngine(store, dir, dir, detection.DefaultEngineConfig())
	result, err := engine.Detect(ctx, eventID, models.DefaultThresholds())
*/
package detection
