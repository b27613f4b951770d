// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package models

// AnomalyThreshold is the weighted score at or above which an event is anomalous.
const AnomalyThreshold = 50

// Thresholds are the tunable base scores used by the anomaly detectors.
type Thresholds struct {
	LateNightAccessScore       float64 `json:"lateNightAccessScore" koanf:"late_night_access_score" validate:"gte=0,lte=100"`
	BulkAccessScore            float64 `json:"bulkAccessScore" koanf:"bulk_access_score" validate:"gte=0,lte=100"`
	UnusualDeviceScore         float64 `json:"unusualDeviceScore" koanf:"unusual_device_score" validate:"gte=0,lte=100"`
	UnauthorizedAccessScore    float64 `json:"unauthorizedAccessScore" koanf:"unauthorized_access_score" validate:"gte=0,lte=100"`
	StandardDeviationThreshold float64 `json:"standardDeviationThreshold" koanf:"standard_deviation_threshold" validate:"gt=0"`
}

// DefaultThresholds returns the standard detector base scores.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LateNightAccessScore:       30,
		BulkAccessScore:            40,
		UnusualDeviceScore:         25,
		UnauthorizedAccessScore:    50,
		StandardDeviationThreshold: 2.0,
	}
}

// Factor names one of the five scoring dimensions.
type Factor string

const (
	FactorTime          Factor = "time"
	FactorVolume        Factor = "volume"
	FactorPattern       Factor = "pattern"
	FactorDevice        Factor = "device"
	FactorAuthorization Factor = "authorization"
)

// AllFactors lists the factors in enumeration order. Ties are broken by this order.
var AllFactors = []Factor{FactorTime, FactorVolume, FactorPattern, FactorDevice, FactorAuthorization}

// Factors holds the per-detector sub-scores, each in [0,100].
type Factors struct {
	Time          float64 `json:"time"`
	Volume        float64 `json:"volume"`
	Pattern       float64 `json:"pattern"`
	Device        float64 `json:"device"`
	Authorization float64 `json:"authorization"`
}

// Get returns the sub-score for f.
func (f Factors) Get(factor Factor) float64 {
	switch factor {
	case FactorTime:
		return f.Time
	case FactorVolume:
		return f.Volume
	case FactorPattern:
		return f.Pattern
	case FactorDevice:
		return f.Device
	case FactorAuthorization:
		return f.Authorization
	}
	return 0
}

// Set assigns the sub-score for f.
func (f *Factors) Set(factor Factor, score float64) {
	switch factor {
	case FactorTime:
		f.Time = score
	case FactorVolume:
		f.Volume = score
	case FactorPattern:
		f.Pattern = score
	case FactorDevice:
		f.Device = score
	case FactorAuthorization:
		f.Authorization = score
	}
}

// Highest returns the factor with the largest sub-score, first in
// enumeration order on ties.
func (f Factors) Highest() Factor {
	best := FactorTime
	bestScore := f.Time
	for _, factor := range AllFactors[1:] {
		if s := f.Get(factor); s > bestScore {
			best, bestScore = factor, s
		}
	}
	return best
}

// DetectionResult is the outcome of scoring one access event.
type DetectionResult struct {
	IsAnomaly    bool     `json:"isAnomaly"`
	AnomalyScore int      `json:"anomalyScore"`
	Reasons      []string `json:"reasons"`
	Factors      Factors  `json:"factors"`
}
