// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package alerting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/accessguard/internal/accesslog"
	"github.com/tomtom215/accessguard/internal/directory"
	"github.com/tomtom215/accessguard/internal/models"
)

var tuesdayAfternoon = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

var (
	errStoreDown    = errors.New("store unavailable")
	errDuplicateKey = errors.New("duplicate key violates primary key constraint")
)

// memoryEvents implements EventStore.
type memoryEvents struct {
	mu          sync.Mutex
	events      map[string]*models.AccessEvent
	order       []string
	appendErr   error
	getErr      error
	annotateErr error
	countErr    error
}

func newMemoryEvents() *memoryEvents {
	return &memoryEvents{events: make(map[string]*models.AccessEvent)}
}

func (m *memoryEvents) Append(_ context.Context, event *models.AccessEvent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return "", m.appendErr
	}
	if _, ok := m.events[event.ID]; ok {
		return "", errDuplicateKey
	}
	copied := *event
	m.events[event.ID] = &copied
	m.order = append(m.order, event.ID)
	return event.ID, nil
}

func (m *memoryEvents) Get(_ context.Context, id string) (*models.AccessEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	e, ok := m.events[id]
	if !ok {
		return nil, accesslog.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *memoryEvents) Annotate(_ context.Context, id string, result *models.DetectionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.annotateErr != nil {
		return m.annotateErr
	}
	e, ok := m.events[id]
	if !ok {
		return accesslog.ErrNotFound
	}
	if e.ScoredAt != nil {
		return accesslog.ErrAlreadyScored
	}
	now := time.Now()
	e.AnomalyScore = result.AnomalyScore
	e.IsAnomaly = result.IsAnomaly
	e.AnomalyReasons = result.Reasons
	e.ScoredAt = &now
	return nil
}

func (m *memoryEvents) CountByUser(_ context.Context, userID string, f models.AccessFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := 0
	for _, e := range m.events {
		if e.UserID != userID {
			continue
		}
		if f.OrganizationID != "" && e.OrganizationID != f.OrganizationID {
			continue
		}
		if !f.Start.IsZero() && e.CreatedAt.Before(f.Start) {
			continue
		}
		if !f.End.IsZero() && e.CreatedAt.After(f.End) {
			continue
		}
		if f.AnomalousOnly && !e.IsAnomaly {
			continue
		}
		n++
	}
	return n, nil
}

func (m *memoryEvents) get(id string) *models.AccessEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil
	}
	copied := *e
	return &copied
}

// scriptedScorer returns a fixed result for every event.
type scriptedScorer struct {
	mu     sync.Mutex
	result models.DetectionResult
	err    error
	calls  int
}

func scoredAs(score int, factors models.Factors, reasons ...string) *scriptedScorer {
	return &scriptedScorer{result: models.DetectionResult{
		AnomalyScore: score,
		IsAnomaly:    score >= models.AnomalyThreshold,
		Factors:      factors,
		Reasons:      reasons,
	}}
}

func (s *scriptedScorer) Score(context.Context, *models.AccessEvent, models.Thresholds) (*models.DetectionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	r := s.result
	return &r, nil
}

// mockDirectory implements directory.IdentityDirectory.
type mockDirectory struct {
	mu    sync.Mutex
	users map[string]*models.User
	err   error
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{users: make(map[string]*models.User)}
}

func (m *mockDirectory) add(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
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

func (m *mockDirectory) ActiveAdmins(_ context.Context, orgID string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.User
	for _, u := range m.users {
		if u.OrganizationID == orgID && u.Role == models.RoleAdmin && u.Active {
			out = append(out, *u)
		}
	}
	return out, nil
}

// recordingSink captures notifications.
type recordingSink struct {
	mu      sync.Mutex
	created []models.Notification
	failFor map[string]error
}

func (s *recordingSink) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[n.UserID]; ok {
		return err
	}
	s.created = append(s.created, *n)
	return nil
}

func (s *recordingSink) all() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, len(s.created))
	copy(out, s.created)
	return out
}

func (s *recordingSink) byTitle(title string) []models.Notification {
	var out []models.Notification
	for _, n := range s.all() {
		if n.Title == title {
			out = append(out, n)
		}
	}
	return out
}

// memorySpool implements Spool.
type memorySpool struct {
	mu     sync.Mutex
	events []models.AccessEvent
	err    error
}

func (s *memorySpool) Write(_ context.Context, event *models.AccessEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, *event)
	return nil
}

// testFixture wires a dispatcher to in-memory fakes with one acting
// provider ("user-1") and two active admins in org-1.
type testFixture struct {
	events     *memoryEvents
	scorer     *scriptedScorer
	directory  *mockDirectory
	sink       *recordingSink
	dispatcher *Dispatcher
}

func newFixture(scorer *scriptedScorer) *testFixture {
	dir := newMockDirectory()
	dir.add(models.User{ID: "user-1", OrganizationID: "org-1", Name: "Jane Doe", Email: "jane@example.org", Role: models.RoleProvider, Active: true})
	dir.add(models.User{ID: "admin-1", OrganizationID: "org-1", Name: "Admin One", Email: "a1@example.org", Role: models.RoleAdmin, Active: true})
	dir.add(models.User{ID: "admin-2", OrganizationID: "org-1", Name: "Admin Two", Email: "a2@example.org", Role: models.RoleAdmin, Active: true})
	dir.add(models.User{ID: "admin-3", OrganizationID: "org-1", Name: "Retired Admin", Email: "a3@example.org", Role: models.RoleAdmin, Active: false})
	dir.add(models.User{ID: "admin-x", OrganizationID: "org-2", Name: "Other Org", Email: "x@example.org", Role: models.RoleAdmin, Active: true})

	f := &testFixture{
		events:    newMemoryEvents(),
		scorer:    scorer,
		directory: dir,
		sink:      &recordingSink{},
	}
	f.dispatcher = NewDispatcher(f.events, scorer, dir, f.sink, DefaultConfig())
	f.dispatcher.SetClock(func() time.Time { return tuesdayAfternoon.Add(time.Hour) })
	return f
}

func viewEvent(at time.Time) *models.AccessEvent {
	return &models.AccessEvent{
		UserID:         "user-1",
		OrganizationID: "org-1",
		ResourceType:   models.ResourceTypeRecord,
		ResourceID:     "record-1",
		Action:         models.ActionView,
		IPAddress:      "10.0.0.7",
		CreatedAt:      at,
	}
}
