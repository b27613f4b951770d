// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/accessguard/internal/detection"
	"github.com/tomtom215/accessguard/internal/directory"
	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/models"
)

const (
	// DefaultMinScore is the lowest score sampled into the report.
	DefaultMinScore = models.AnomalyThreshold
	// DefaultSampleLimit caps the anomalous events aggregated per report.
	DefaultSampleLimit = 1000

	topUsersLimit    = 10
	topReasonsLimit  = 10
	criticalLimit    = 20
	criticalScore    = 80
	highScore        = 70
	unknownUserLabel = "Unknown"
)

// Store is the access log read contract the report needs.
type Store interface {
	OrganizationStats(ctx context.Context, orgID string, start, end time.Time) (*models.OrganizationStats, error)
	QueryByOrg(ctx context.Context, orgID string, filter models.AccessFilter) ([]models.AccessEvent, error)
}

// Generator builds anomaly reports.
type Generator struct {
	store       Store
	users       directory.IdentityDirectory
	loc         *time.Location
	minScore    int
	sampleLimit int
	now         func() time.Time
}

// NewGenerator creates a generator. Hour and date buckets use loc.
func NewGenerator(store Store, users directory.IdentityDirectory, loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{
		store:       store,
		users:       users,
		loc:         loc,
		minScore:    DefaultMinScore,
		sampleLimit: DefaultSampleLimit,
		now:         time.Now,
	}
}

// SetMinScore changes the lowest sampled score.
func (g *Generator) SetMinScore(score int) {
	g.minScore = score
}

// SetSampleLimit changes the anomaly sample size.
func (g *Generator) SetSampleLimit(limit int) {
	if limit > 0 {
		g.sampleLimit = limit
	}
}

// PeriodRange returns the window ending at end for "daily", "weekly" or
// "monthly". Anything else is treated as weekly.
func PeriodRange(period string, end time.Time) (time.Time, time.Time) {
	switch period {
	case "daily":
		return end.Add(-24 * time.Hour), end
	case "monthly":
		return end.Add(-30 * 24 * time.Hour), end
	default:
		return end.Add(-7 * 24 * time.Hour), end
	}
}

// Generate builds the report for orgID over [start, end].
func (g *Generator) Generate(ctx context.Context, orgID string, start, end time.Time) (*Report, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid report period: end %s before start %s", end, start)
	}
	began := time.Now()

	stats, err := g.store.OrganizationStats(ctx, orgID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization stats: %w", err)
	}

	anomalies, err := g.store.QueryByOrg(ctx, orgID, models.AccessFilter{
		Start:         start,
		End:           end,
		MinScore:      g.minScore,
		AnomalousOnly: true,
		Limit:         g.sampleLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load anomalous events: %w", err)
	}

	names := newUserResolver(g.users)

	r := &Report{
		Summary: Summary{
			Period: Period{
				Start: start,
				End:   end,
				Days:  int(math.Ceil(end.Sub(start).Hours() / 24)),
			},
			TotalAccess:         stats.TotalAccess,
			TotalAnomalies:      stats.TotalAnomalies,
			AnomalyRate:         anomalyRate(stats),
			AverageAnomalyScore: round2(stats.AverageAnomalyScore),
			UniqueUsers:         stats.UniqueUsers,
			UniqueResources:     stats.UniqueResources,
		},
		Severity: severityOf(anomalies),
	}

	topUsers, err := g.topUsers(ctx, anomalies, names)
	if err != nil {
		return nil, err
	}
	r.TopUsers = topUsers
	r.Summary.UsersWithAnomalies = countDistinctUsers(anomalies)

	r.HourlyDistribution, r.DailyTrend = g.trends(anomalies)
	r.TopReasons = topReasons(anomalies)
	r.ResourceTypes = resourceTypes(anomalies)

	r.CriticalAnomalies, err = criticalAnomalies(ctx, anomalies, names)
	if err != nil {
		return nil, err
	}

	r.Recommendations = recommendations(r)
	r.Metadata = Metadata{
		GeneratedAt:      g.now(),
		MinScore:         g.minScore,
		SampledAnomalies: len(anomalies),
		Truncated:        len(anomalies) >= g.sampleLimit,
		QueryMS:          time.Since(began).Milliseconds(),
	}

	logging.Ctx(ctx).Info().
		Str("organization_id", orgID).
		Int("total_access", r.Summary.TotalAccess).
		Int("sampled_anomalies", len(anomalies)).
		Int64("query_ms", r.Metadata.QueryMS).
		Msg("Anomaly report generated")

	return r, nil
}

func anomalyRate(stats *models.OrganizationStats) float64 {
	if stats.TotalAccess == 0 {
		return 0
	}
	return round2(float64(stats.TotalAnomalies) / float64(stats.TotalAccess) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func severityOf(events []models.AccessEvent) SeverityDistribution {
	var s SeverityDistribution
	for i := range events {
		switch score := events[i].AnomalyScore; {
		case score >= criticalScore:
			s.Critical++
		case score >= highScore:
			s.High++
		case score >= models.AnomalyThreshold:
			s.Medium++
		default:
			s.Low++
		}
	}
	return s
}

func countDistinctUsers(events []models.AccessEvent) int {
	seen := make(map[string]struct{})
	for i := range events {
		seen[events[i].UserID] = struct{}{}
	}
	return len(seen)
}

func (g *Generator) topUsers(ctx context.Context, events []models.AccessEvent, names *userResolver) ([]UserAnomalies, error) {
	type tally struct {
		count int
		total int
	}
	byUser := make(map[string]*tally)
	for i := range events {
		t, ok := byUser[events[i].UserID]
		if !ok {
			t = &tally{}
			byUser[events[i].UserID] = t
		}
		t.count++
		t.total += events[i].AnomalyScore
	}

	rows := make([]UserAnomalies, 0, len(byUser))
	for userID, t := range byUser {
		rows = append(rows, UserAnomalies{
			UserID:       userID,
			Count:        t.count,
			AverageScore: round2(float64(t.total) / float64(t.count)),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].UserID < rows[j].UserID
	})
	if len(rows) > topUsersLimit {
		rows = rows[:topUsersLimit]
	}

	for i := range rows {
		u, err := names.lookup(ctx, rows[i].UserID)
		if err != nil {
			return nil, err
		}
		rows[i].UserName = u.Name
		rows[i].UserEmail = u.Email
	}
	return rows, nil
}

func (g *Generator) trends(events []models.AccessEvent) ([24]int, []DailyCount) {
	var hourly [24]int
	daily := make(map[string]int)
	for i := range events {
		local := events[i].CreatedAt.In(g.loc)
		hourly[local.Hour()]++
		daily[local.Format(time.DateOnly)]++
	}

	trend := make([]DailyCount, 0, len(daily))
	for date, n := range daily {
		trend = append(trend, DailyCount{Date: date, Count: n})
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Date < trend[j].Date })
	return hourly, trend
}

// reasonKey strips the "(score: N)" suffix from a reason.
func reasonKey(reason string) string {
	if i := strings.Index(reason, "("); i >= 0 {
		reason = reason[:i]
	}
	return strings.TrimSpace(reason)
}

func topReasons(events []models.AccessEvent) []ReasonCount {
	counts := make(map[string]int)
	for i := range events {
		for _, reason := range events[i].AnomalyReasons {
			if key := reasonKey(reason); key != "" {
				counts[key]++
			}
		}
	}

	out := make([]ReasonCount, 0, len(counts))
	for reason, n := range counts {
		out = append(out, ReasonCount{Reason: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	if len(out) > topReasonsLimit {
		out = out[:topReasonsLimit]
	}
	return out
}

func resourceTypes(events []models.AccessEvent) []ResourceTypeCount {
	counts := make(map[string]int)
	for i := range events {
		counts[string(events[i].ResourceType)]++
	}

	out := make([]ResourceTypeCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, ResourceTypeCount{Type: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// criticalAnomalies keeps the store's order (highest score first).
func criticalAnomalies(ctx context.Context, events []models.AccessEvent, names *userResolver) ([]CriticalAnomaly, error) {
	var out []CriticalAnomaly
	for i := range events {
		if len(out) == criticalLimit {
			break
		}
		e := &events[i]
		if e.AnomalyScore < criticalScore {
			continue
		}
		u, err := names.lookup(ctx, e.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, CriticalAnomaly{
			EventID:      e.ID,
			Timestamp:    e.CreatedAt,
			UserID:       e.UserID,
			UserName:     u.Name,
			ResourceType: string(e.ResourceType),
			ResourceID:   e.ResourceID,
			Action:       string(e.Action),
			AnomalyScore: e.AnomalyScore,
			Reasons:      e.AnomalyReasons,
			IPAddress:    e.IPAddress,
		})
	}
	return out, nil
}

func reasonCount(reasons []ReasonCount, label string) int {
	for _, r := range reasons {
		if r.Reason == label {
			return r.Count
		}
	}
	return 0
}

func recommendations(r *Report) []string {
	var out []string

	if r.Summary.AnomalyRate > 10 {
		out = append(out, "The anomaly rate exceeds 10%. Review access control policies.")
	}
	if r.Severity.Critical > 10 {
		out = append(out, fmt.Sprintf(
			"%d critical anomalies (score 80 or higher) were detected. Investigate immediately.",
			r.Severity.Critical))
	}
	if len(r.TopUsers) > 0 && r.TopUsers[0].Count > 10 {
		out = append(out, fmt.Sprintf(
			"User %q accounts for %d anomalous accesses. Review this account.",
			r.TopUsers[0].UserName, r.TopUsers[0].Count))
	}
	if reasonCount(r.TopReasons, detection.ReasonLabel(models.FactorTime)) > 5 {
		out = append(out, "Frequent late-night or off-hours access was detected. Consider restricting access hours.")
	}
	if reasonCount(r.TopReasons, detection.ReasonLabel(models.FactorAuthorization)) > 3 {
		out = append(out, "Access to unassigned or unauthorized resources was detected. Review role and care-team assignments.")
	}
	if reasonCount(r.TopReasons, detection.ReasonLabel(models.FactorDevice)) > 5 {
		out = append(out, "Frequent access from unfamiliar devices or networks was detected. Consider enforcing multi-factor authentication.")
	}

	if len(out) == 0 {
		out = append(out, "No significant security risk was detected. Continue monitoring.")
	}
	return out
}

// userResolver memoizes directory lookups for one report.
type userResolver struct {
	users directory.IdentityDirectory
	seen  map[string]models.User
}

func newUserResolver(users directory.IdentityDirectory) *userResolver {
	return &userResolver{users: users, seen: make(map[string]models.User)}
}

func (r *userResolver) lookup(ctx context.Context, userID string) (models.User, error) {
	if u, ok := r.seen[userID]; ok {
		return u, nil
	}
	u, err := r.users.UserByID(ctx, userID)
	switch {
	case errors.Is(err, directory.ErrUserNotFound):
		unknown := models.User{ID: userID, Name: unknownUserLabel, Email: unknownUserLabel}
		r.seen[userID] = unknown
		return unknown, nil
	case err != nil:
		return models.User{}, fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}
	r.seen[userID] = *u
	return *u, nil
}
