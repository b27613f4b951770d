// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/accessguard/internal/accesslog"
	"github.com/tomtom215/accessguard/internal/models"
)

func standardEngine(h *memoryHistory, dir *mockDirectory) *Engine {
	cfg := DefaultEngineConfig()
	cfg.Location = time.UTC
	return NewStandardEngine(h, dir, dir, cfg)
}

func TestEngine_ScenarioA_NewUserLateNightPatientAccess(t *testing.T) {
	h := &memoryHistory{}
	dir := newMockDirectory()
	dir.addUser("u1", true)

	e := viewEvent("u1", sundayThreeAM)
	e.ResourceType = models.ResourceTypePatient
	e.ResourceID = "patient-7"
	e.DeviceInfo = &models.DeviceInfo{DeviceType: "mobile", OS: "Android", Browser: "Chrome"}
	e.IPAddress = "203.0.113.9"
	event := h.add(e)

	result, err := standardEngine(h, dir).Detect(context.Background(), event.ID, models.DefaultThresholds())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	want := models.Factors{Time: 45, Authorization: 40}
	if result.Factors != want {
		t.Errorf("Factors = %+v, want %+v", result.Factors, want)
	}
	// round(45*0.15 + 40*0.25) = round(16.75)
	if result.AnomalyScore != 17 {
		t.Errorf("AnomalyScore = %d, want 17", result.AnomalyScore)
	}
	if result.IsAnomaly {
		t.Error("IsAnomaly = true, want false")
	}

	wantReasons := []string{
		"Late-night or off-hours access (score: 45)",
		"Unauthorized resource access (score: 40)",
	}
	if len(result.Reasons) != len(wantReasons) {
		t.Fatalf("Reasons = %v, want %v", result.Reasons, wantReasons)
	}
	for i := range wantReasons {
		if result.Reasons[i] != wantReasons[i] {
			t.Errorf("Reasons[%d] = %q, want %q", i, result.Reasons[i], wantReasons[i])
		}
	}
}

func TestEngine_ScenarioB_BurstVolume(t *testing.T) {
	for _, tt := range []struct {
		action models.Action
		want   float64
	}{
		{models.ActionView, 40},
		{models.ActionExport, 52},
	} {
		t.Run(string(tt.action), func(t *testing.T) {
			h := &memoryHistory{}
			dir := newMockDirectory()
			dir.addUser("u1", true)
			event := burst(h, "u1", tuesdayAfternoon, 60, 55*time.Second, tt.action)

			result, err := standardEngine(h, dir).Score(context.Background(), event, models.DefaultThresholds())
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if !approxEqual(result.Factors.Volume, tt.want) {
				t.Errorf("Volume = %v, want %v", result.Factors.Volume, tt.want)
			}
		})
	}
}

func TestEngine_ScenarioC_InactiveUserDelete(t *testing.T) {
	h := &memoryHistory{}
	dir := newMockDirectory()
	dir.addUser("u1", false)

	e := viewEvent("u1", tuesdayAfternoon)
	e.Action = models.ActionDelete
	e.ResourceType = models.ResourceTypePatient
	event := h.add(e)

	result, err := standardEngine(h, dir).Score(context.Background(), event, models.DefaultThresholds())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if result.Factors.Authorization != 50 {
		t.Errorf("Authorization = %v, want 50", result.Factors.Authorization)
	}
}

func TestEngine_DetectNotFound(t *testing.T) {
	engine := standardEngine(&memoryHistory{}, newMockDirectory())

	_, err := engine.Detect(context.Background(), "missing", models.DefaultThresholds())
	if !errors.Is(err, ErrEventNotFound) {
		t.Errorf("Detect() error = %v, want ErrEventNotFound", err)
	}
	if !errors.Is(err, accesslog.ErrNotFound) {
		t.Errorf("Detect() error = %v, should wrap accesslog.ErrNotFound", err)
	}
}

func TestEngine_DetectorFailureDegradesToZero(t *testing.T) {
	h := &memoryHistory{}
	event := h.add(viewEvent("u1", tuesdayAfternoon))

	engine := NewEngine(h)
	engine.RegisterDetector(&fixedDetector{factor: models.FactorTime, score: 100})
	engine.RegisterDetector(&fixedDetector{factor: models.FactorVolume, err: errors.New("boom")})
	engine.RegisterDetector(&fixedDetector{factor: models.FactorAuthorization, score: 100})

	result, err := engine.Score(context.Background(), event, models.DefaultThresholds())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if result.Factors.Volume != 0 {
		t.Errorf("Volume = %v, want 0", result.Factors.Volume)
	}
	if result.AnomalyScore != 40 {
		t.Errorf("AnomalyScore = %d, want 40", result.AnomalyScore)
	}
	if len(result.Reasons) != 2 {
		t.Errorf("Reasons = %v, want 2 entries", result.Reasons)
	}

	m := engine.Metrics()
	if m.DetectorErrors != 1 || m.DetectorMetrics[models.FactorVolume].Errors != 1 {
		t.Errorf("detector errors not recorded: %+v", &m)
	}
	if m.EventsScored != 1 {
		t.Errorf("EventsScored = %d, want 1", m.EventsScored)
	}
}

func TestEngine_ScoresClampedAndThresholdHolds(t *testing.T) {
	h := &memoryHistory{}
	event := h.add(viewEvent("u1", tuesdayAfternoon))

	values := []float64{-20, 0, 10, 33.3, 49.9, 50, 66, 80, 100, 250}
	for _, v := range values {
		for _, w := range values {
			engine := NewEngine(h)
			for i, f := range models.AllFactors {
				score := v
				if i%2 == 1 {
					score = w
				}
				engine.RegisterDetector(&fixedDetector{factor: f, score: score})
			}

			result, err := engine.Score(context.Background(), event, models.DefaultThresholds())
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			for _, f := range models.AllFactors {
				if s := result.Factors.Get(f); s < 0 || s > 100 {
					t.Errorf("factor %s = %v out of range", f, s)
				}
			}
			if result.AnomalyScore < 0 || result.AnomalyScore > 100 {
				t.Errorf("AnomalyScore = %d out of range", result.AnomalyScore)
			}
			if result.IsAnomaly != (result.AnomalyScore >= models.AnomalyThreshold) {
				t.Errorf("IsAnomaly = %v for score %d", result.IsAnomaly, result.AnomalyScore)
			}
		}
	}
}

func TestEngine_ContextCanceled(t *testing.T) {
	h := &memoryHistory{}
	event := h.add(viewEvent("u1", tuesdayAfternoon))
	engine := standardEngine(h, newMockDirectory())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Score(ctx, event, models.DefaultThresholds()); !errors.Is(err, context.Canceled) {
		t.Errorf("Score() error = %v, want context.Canceled", err)
	}
}

func TestWeightedScore(t *testing.T) {
	tests := []struct {
		name    string
		factors models.Factors
		want    int
	}{
		{"zero", models.Factors{}, 0},
		{"all max", models.Factors{Time: 100, Volume: 100, Pattern: 100, Device: 100, Authorization: 100}, 100},
		{"rounds half up", models.Factors{Time: 45, Authorization: 40}, 17},
		{"authorization only", models.Factors{Authorization: 50}, 13},
		{"volume and authorization", models.Factors{Volume: 100, Authorization: 100}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeightedScore(tt.factors); got != tt.want {
				t.Errorf("WeightedScore() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStatsAggregator_Empty(t *testing.T) {
	a := NewStatsAggregator(&memoryHistory{}, time.UTC, 0)
	stats, err := a.UserAccessStats(context.Background(), "nobody", tuesdayAfternoon.AddDate(0, 0, -30), tuesdayAfternoon)
	if err != nil {
		t.Fatalf("UserAccessStats() error = %v", err)
	}
	if stats.TotalAccess != 0 || stats.AverageAccessDuration != 0 || stats.AverageAnomalyScore != 0 {
		t.Errorf("empty stats = %+v", stats)
	}
	if stats.ActionCounts == nil || stats.ResourceTypeCounts == nil || stats.DeviceTypes == nil {
		t.Error("maps should be initialized")
	}
}

func TestStatsAggregator_Aggregates(t *testing.T) {
	h := &memoryHistory{}
	d60, d120 := 60, 120

	e1 := viewEvent("u1", tuesdayAfternoon)
	e1.AccessDuration = &d60
	e1.DeviceInfo = &desktopChrome
	e1.AnomalyScore = 20
	h.add(e1)

	e2 := viewEvent("u1", tuesdayAfternoon.Add(-time.Hour))
	e2.Action = models.ActionExport
	e2.ResourceType = models.ResourceTypePatient
	e2.AccessDuration = &d120
	e2.IsAnomaly = true
	e2.AnomalyScore = 70
	h.add(e2)

	e3 := viewEvent("u1", tuesdayAfternoon.Add(-2*time.Hour))
	h.add(e3)

	stats, err := NewStatsAggregator(h, time.UTC, 0).UserAccessStats(context.Background(), "u1", tuesdayAfternoon.Add(-24*time.Hour), tuesdayAfternoon)
	if err != nil {
		t.Fatalf("UserAccessStats() error = %v", err)
	}

	if stats.TotalAccess != 3 {
		t.Errorf("TotalAccess = %d, want 3", stats.TotalAccess)
	}
	if stats.HourlyAccess[14] != 1 || stats.HourlyAccess[13] != 1 || stats.HourlyAccess[12] != 1 {
		t.Errorf("HourlyAccess = %v", stats.HourlyAccess)
	}
	if stats.ActionCounts[models.ActionView] != 2 || stats.ActionCounts[models.ActionExport] != 1 {
		t.Errorf("ActionCounts = %v", stats.ActionCounts)
	}
	if stats.ResourceTypeCounts[models.ResourceTypePatient] != 1 {
		t.Errorf("ResourceTypeCounts = %v", stats.ResourceTypeCounts)
	}
	if stats.DeviceTypes["desktop"] != 1 {
		t.Errorf("DeviceTypes = %v", stats.DeviceTypes)
	}
	if stats.AverageAccessDuration != 90 {
		t.Errorf("AverageAccessDuration = %v, want 90 (only events with a duration)", stats.AverageAccessDuration)
	}
	if stats.AnomalousAccessCount != 1 {
		t.Errorf("AnomalousAccessCount = %d, want 1", stats.AnomalousAccessCount)
	}
	if stats.AverageAnomalyScore != 30 {
		t.Errorf("AverageAnomalyScore = %v, want 30", stats.AverageAnomalyScore)
	}
}
