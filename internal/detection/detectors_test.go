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

	"github.com/tomtom215/accessguard/internal/models"
)

func TestTimeDetector_Score(t *testing.T) {
	d := NewTimeDetector(time.UTC)
	th := models.DefaultThresholds()

	tests := []struct {
		name string
		at   time.Time
		want float64
	}{
		{"weekday business hours", tuesdayAfternoon, 0},
		{"weekday late night", time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), 30},
		{"weekday 22:00 boundary", time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC), 30},
		{"weekday 05:59", time.Date(2026, 3, 10, 5, 59, 0, 0, time.UTC), 30},
		{"weekday early morning", time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC), 9},
		{"weekday 08:00 is business", time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), 0},
		{"weekday evening", time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC), 15},
		{"saturday afternoon", time.Date(2026, 3, 7, 14, 0, 0, 0, time.UTC), 15},
		{"saturday late night stacks", time.Date(2026, 3, 7, 23, 0, 0, 0, time.UTC), 45},
		{"sunday 03:00", sundayThreeAM, 45},
		{"sunday early morning", time.Date(2026, 3, 8, 6, 30, 0, 0, time.UTC), 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := viewEvent("u1", tt.at)
			got, err := d.Score(context.Background(), &e, th)
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if !approxEqual(got, tt.want) {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeDetector_LateNightAlwaysAtLeastBase(t *testing.T) {
	d := NewTimeDetector(time.UTC)
	th := models.DefaultThresholds()
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	for day := 0; day < 7; day++ {
		for hour := 0; hour < 24; hour++ {
			if !IsLateNight(hour) {
				continue
			}
			at := monday.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)
			e := viewEvent("u1", at)
			got, _ := d.Score(context.Background(), &e, th)

			if got < th.LateNightAccessScore {
				t.Errorf("%s: score %v below late-night base", at, got)
			}
			weekend := at.Weekday() == time.Saturday || at.Weekday() == time.Sunday
			if weekend && got <= th.LateNightAccessScore {
				t.Errorf("%s: weekend late-night score %v not above base", at, got)
			}
		}
	}
}

func TestTimeDetector_UsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	d := NewTimeDetector(tokyo)

	// 14:00 UTC Tuesday is 23:00 JST Tuesday.
	e := viewEvent("u1", tuesdayAfternoon)
	got, _ := d.Score(context.Background(), &e, models.DefaultThresholds())
	if got != 30 {
		t.Errorf("Score() = %v, want 30", got)
	}
}

func TestTimeDetector_Capped(t *testing.T) {
	d := NewTimeDetector(time.UTC)
	th := models.DefaultThresholds()
	th.LateNightAccessScore = 90

	e := viewEvent("u1", sundayThreeAM)
	got, _ := d.Score(context.Background(), &e, th)
	if got != 100 {
		t.Errorf("Score() = %v, want 100", got)
	}
}

// burst adds n events for user ending at end, spaced by gap, the first at end.
func burst(h *memoryHistory, userID string, end time.Time, n int, gap time.Duration, action models.Action) *models.AccessEvent {
	var last *models.AccessEvent
	for i := n - 1; i >= 0; i-- {
		e := viewEvent(userID, end.Add(-time.Duration(i)*gap))
		if i == 0 {
			e.Action = action
		}
		last = h.add(e)
	}
	return last
}

func TestVolumeDetector_Score(t *testing.T) {
	tests := []struct {
		name   string
		count  int
		gap    time.Duration
		action models.Action
		want   float64
	}{
		{"single event", 1, time.Minute, models.ActionView, 0},
		{"19 events", 19, 3 * time.Minute, models.ActionView, 0},
		{"20 events", 20, 3 * time.Minute, models.ActionView, 16},
		{"35 events", 35, 100 * time.Second, models.ActionView, 28},
		{"60 view events", 60, 55 * time.Second, models.ActionView, 40},
		{"60 events ending in export", 60, 55 * time.Second, models.ActionExport, 52},
		{"12 events in two minutes", 12, 10 * time.Second, models.ActionView, 20},
		{"60 tight events ending in print", 60, 5 * time.Second, models.ActionPrint, 78},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &memoryHistory{}
			event := burst(h, "u1", tuesdayAfternoon, tt.count, tt.gap, tt.action)

			got, err := NewVolumeDetector(h).Score(context.Background(), event, models.DefaultThresholds())
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if !approxEqual(got, tt.want) {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVolumeDetector_IgnoresOtherUsersAndOldEvents(t *testing.T) {
	h := &memoryHistory{}
	burst(h, "u2", tuesdayAfternoon, 60, 30*time.Second, models.ActionView)
	burst(h, "u1", tuesdayAfternoon.Add(-2*time.Hour), 60, 30*time.Second, models.ActionView)
	event := h.add(viewEvent("u1", tuesdayAfternoon))

	got, err := NewVolumeDetector(h).Score(context.Background(), event, models.DefaultThresholds())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if got != 0 {
		t.Errorf("Score() = %v, want 0", got)
	}
}

func TestVolumeDetector_Capped(t *testing.T) {
	h := &memoryHistory{}
	event := burst(h, "u1", tuesdayAfternoon, 60, 5*time.Second, models.ActionExport)
	th := models.DefaultThresholds()
	th.BulkAccessScore = 100

	got, _ := NewVolumeDetector(h).Score(context.Background(), event, th)
	if got != 100 {
		t.Errorf("Score() = %v, want 100", got)
	}
}

func TestVolumeDetector_StoreError(t *testing.T) {
	h := &memoryHistory{err: errors.New("store down")}
	e := viewEvent("u1", tuesdayAfternoon)
	if _, err := NewVolumeDetector(h).Score(context.Background(), &e, models.DefaultThresholds()); err == nil {
		t.Error("expected error from failing store")
	}
}

// habitual adds n VIEW events at 14:00 on consecutive days before the event.
func habitual(h *memoryHistory, userID string, n int) {
	for i := 1; i <= n; i++ {
		h.add(viewEvent(userID, tuesdayAfternoon.AddDate(0, 0, -i)))
	}
}

func TestPatternDetector_Score(t *testing.T) {
	bigExport := int64(20 * 1024 * 1024)

	tests := []struct {
		name     string
		history  int
		at       time.Time
		action   models.Action
		dataSize *int64
		want     float64
	}{
		{"insufficient history ignores everything", 5, sundayThreeAM, models.ActionExport, &bigExport, 0},
		{"habitual hour deviates from flat mean", 20, tuesdayAfternoon, models.ActionView, nil, 30},
		{"off hour rare action large transfer", 20, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), models.ActionExport, &bigExport, 45},
		{"all signals", 20, tuesdayAfternoon, models.ActionExport, &bigExport, 75},
		{"rare action needs more than 20 events", 15, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), models.ActionExport, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &memoryHistory{}
			habitual(h, "u1", tt.history)

			e := viewEvent("u1", tt.at)
			e.Action = tt.action
			e.DataSize = tt.dataSize
			event := h.add(e)

			stats := NewStatsAggregator(h, time.UTC, 0)
			got, err := NewPatternDetector(stats, time.UTC).Score(context.Background(), event, models.DefaultThresholds())
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPatternDetector_BelowMinimumAlwaysZero(t *testing.T) {
	bigExport := int64(200 * 1024 * 1024)
	for n := 0; n < patternMinHistory-1; n++ {
		h := &memoryHistory{}
		habitual(h, "u1", n)
		e := viewEvent("u1", sundayThreeAM)
		e.Action = models.ActionDelete
		e.DataSize = &bigExport
		event := h.add(e)

		got, _ := NewPatternDetector(NewStatsAggregator(h, time.UTC, 0), time.UTC).
			Score(context.Background(), event, models.DefaultThresholds())
		if got != 0 {
			t.Errorf("history=%d: Score() = %v, want 0", n+1, got)
		}
	}
}

func TestStandardDeviation(t *testing.T) {
	tests := []struct {
		name   string
		values []int
		want   float64
	}{
		{"empty", nil, 0},
		{"all zero", make([]int, 24), 0},
		{"constant", []int{3, 3, 3, 3}, 0},
		{"population", []int{2, 4, 4, 4, 5, 5, 7, 9}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := standardDeviation(tt.values); !approxEqual(got, tt.want) {
				t.Errorf("standardDeviation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func deviceEvent(userID string, at time.Time, info models.DeviceInfo, ip string) models.AccessEvent {
	e := viewEvent(userID, at)
	e.DeviceInfo = &info
	e.IPAddress = ip
	return e
}

var desktopChrome = models.DeviceInfo{DeviceType: "desktop", OS: "Windows", Browser: "Chrome"}

func TestDeviceDetector_Score(t *testing.T) {
	tests := []struct {
		name    string
		history int
		current models.DeviceInfo
		ip      string
		want    float64
	}{
		{"known device and ip", 6, desktopChrome, "10.0.0.1", 0},
		{"everything new", 6, models.DeviceInfo{DeviceType: "mobile", OS: "iOS", Browser: "Safari"}, "10.9.9.9", 72.5},
		{"new browser only", 6, models.DeviceInfo{DeviceType: "desktop", OS: "Windows", Browser: "Firefox"}, "10.0.0.1", 12.5},
		{"new ip only", 6, desktopChrome, "192.168.1.50", 15},
		{"no ip is not novel", 6, desktopChrome, "", 0},
		{"insufficient history", 4, models.DeviceInfo{DeviceType: "mobile", OS: "iOS", Browser: "Safari"}, "10.9.9.9", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &memoryHistory{}
			for i := 1; i <= tt.history; i++ {
				h.add(deviceEvent("u1", tuesdayAfternoon.Add(-time.Duration(i)*time.Hour), desktopChrome, "10.0.0.1"))
			}
			event := h.add(deviceEvent("u1", tuesdayAfternoon, tt.current, tt.ip))

			got, err := NewDeviceDetector(h, 0).Score(context.Background(), event, models.DefaultThresholds())
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if !approxEqual(got, tt.want) {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeviceDetector_NoDeviceInfo(t *testing.T) {
	h := &memoryHistory{err: errors.New("must not be called")}
	e := viewEvent("u1", tuesdayAfternoon)

	got, err := NewDeviceDetector(h, 0).Score(context.Background(), &e, models.DefaultThresholds())
	if err != nil || got != 0 {
		t.Errorf("Score() = %v, %v; want 0, nil", got, err)
	}
}

func TestDeviceDetector_HistoryOutsideWindowIgnored(t *testing.T) {
	h := &memoryHistory{}
	for i := 0; i < 10; i++ {
		h.add(deviceEvent("u1", tuesdayAfternoon.AddDate(0, 0, -40-i), desktopChrome, "10.0.0.1"))
	}
	event := h.add(deviceEvent("u1", tuesdayAfternoon, desktopChrome, "10.0.0.1"))

	got, _ := NewDeviceDetector(h, 0).Score(context.Background(), event, models.DefaultThresholds())
	if got != 0 {
		t.Errorf("Score() = %v, want 0 (no in-window history)", got)
	}
}

func TestAuthorizationDetector_Score(t *testing.T) {
	tests := []struct {
		name         string
		active       bool
		known        bool
		assigned     bool
		resourceType models.ResourceType
		action       models.Action
		want         float64
	}{
		{"inactive user deleting short-circuits", false, true, false, models.ResourceTypePatient, models.ActionDelete, 50},
		{"inactive user viewing", false, true, true, models.ResourceTypeRecord, models.ActionView, 50},
		{"unknown user", false, false, false, models.ResourceTypePatient, models.ActionDelete, 0},
		{"unassigned patient", true, true, false, models.ResourceTypePatient, models.ActionView, 40},
		{"assigned patient", true, true, true, models.ResourceTypePatient, models.ActionView, 0},
		{"delete non-patient", true, true, false, models.ResourceTypeRecord, models.ActionDelete, 15},
		{"delete unassigned patient", true, true, false, models.ResourceTypePatient, models.ActionDelete, 55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newMockDirectory()
			if tt.known {
				dir.addUser("u1", tt.active)
			}
			if tt.assigned {
				dir.assign("u1", "patient-1")
			}

			e := viewEvent("u1", tuesdayAfternoon)
			e.ResourceType = tt.resourceType
			e.ResourceID = "patient-1"
			e.Action = tt.action

			got, err := NewAuthorizationDetector(dir, dir).Score(context.Background(), &e, models.DefaultThresholds())
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if !approxEqual(got, tt.want) {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthorizationDetector_DirectoryError(t *testing.T) {
	dir := newMockDirectory()
	dir.err = errors.New("directory unavailable")
	e := viewEvent("u1", tuesdayAfternoon)

	if _, err := NewAuthorizationDetector(dir, dir).Score(context.Background(), &e, models.DefaultThresholds()); err == nil {
		t.Error("expected error")
	}
}
