// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package detection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/accessguard/internal/accesslog"
	"github.com/tomtom215/accessguard/internal/directory"
	"github.com/tomtom215/accessguard/internal/models"
)

var (
	tuesdayAfternoon = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	sundayThreeAM    = time.Date(2026, 3, 8, 3, 0, 0, 0, time.UTC)
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// memoryHistory implements EventStore over a slice.
type memoryHistory struct {
	mu     sync.Mutex
	events []models.AccessEvent
	err    error
	seq    int
}

func (m *memoryHistory) add(e models.AccessEvent) *models.AccessEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		m.seq++
		e.ID = fmt.Sprintf("evt-%04d", m.seq)
	}
	m.events = append(m.events, e)
	return &m.events[len(m.events)-1]
}

func (m *memoryHistory) Get(_ context.Context, id string) (*models.AccessEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id {
			e := m.events[i]
			return &e, nil
		}
	}
	return nil, accesslog.ErrNotFound
}

func (m *memoryHistory) QueryByUser(_ context.Context, userID string, f models.AccessFilter) ([]models.AccessEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	var out []models.AccessEvent
	for _, e := range m.events {
		if e.UserID != userID {
			continue
		}
		if !f.Start.IsZero() && e.CreatedAt.Before(f.Start) {
			continue
		}
		if !f.End.IsZero() && e.CreatedAt.After(f.End) {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memoryHistory) CountByUser(ctx context.Context, userID string, f models.AccessFilter) (int, error) {
	f.Limit = 0
	events, err := m.QueryByUser(ctx, userID, f)
	return len(events), err
}

// mockDirectory implements both directory interfaces.
type mockDirectory struct {
	mu          sync.Mutex
	users       map[string]*models.User
	assignments map[string]bool
	err         error
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		users:       make(map[string]*models.User),
		assignments: make(map[string]bool),
	}
}

func (m *mockDirectory) addUser(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &models.User{ID: id, OrganizationID: "org-1", Name: id, Role: models.RoleProvider, Active: active}
}

func (m *mockDirectory) assign(userID, patientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[userID+"/"+patientID] = true
}

func (m *mockDirectory) UserByID(_ context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockDirectory) ActiveAdmins(_ context.Context, _ string) ([]models.User, error) {
	return nil, nil
}

func (m *mockDirectory) HasActiveAssignment(_ context.Context, userID, patientID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.assignments[userID+"/"+patientID], nil
}

func viewEvent(userID string, at time.Time) models.AccessEvent {
	return models.AccessEvent{
		UserID:         userID,
		OrganizationID: "org-1",
		ResourceType:   models.ResourceTypeRecord,
		ResourceID:     "record-1",
		Action:         models.ActionView,
		CreatedAt:      at,
	}
}

// fixedDetector returns a constant score or error.
type fixedDetector struct {
	factor models.Factor
	score  float64
	err    error
}

func (d *fixedDetector) Factor() models.Factor { return d.factor }

func (d *fixedDetector) Score(context.Context, *models.AccessEvent, models.Thresholds) (float64, error) {
	return d.score, d.err
}
