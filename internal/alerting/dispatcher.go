// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/accessguard/internal/accesslog"
	"github.com/tomtom215/accessguard/internal/detection"
	"github.com/tomtom215/accessguard/internal/device"
	"github.com/tomtom215/accessguard/internal/directory"
	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/metrics"
	"github.com/tomtom215/accessguard/internal/models"
	"github.com/tomtom215/accessguard/internal/validation"
)

const (
	// EscalationThreshold is the number of anomalous events in
	// EscalationWindow that triggers an escalation.
	EscalationThreshold = 5
	EscalationWindow    = 24 * time.Hour

	// HighRiskExportBytes is the export size above which an export is high risk.
	HighRiskExportBytes int64 = 50 * 1024 * 1024

	// selfNotifyCeiling is the score at which the user is no longer told
	// about their own access; admins take it from there.
	selfNotifyCeiling = 80
	// adminNotifyFloor sends admin alerts regardless of NotifyAdminsOnly.
	adminNotifyFloor = 70
)

// Notification kinds used for metrics and audit lines.
const (
	kindAnomaly    = "anomaly_alert"
	kindSelf       = "self_notice"
	kindHighRisk   = "high_risk_access"
	kindEscalation = "escalation"
)

// EventStore is the access log view the dispatcher writes through.
type EventStore interface {
	Append(ctx context.Context, event *models.AccessEvent) (string, error)
	Get(ctx context.Context, id string) (*models.AccessEvent, error)
	Annotate(ctx context.Context, id string, result *models.DetectionResult) error
	CountByUser(ctx context.Context, userID string, filter models.AccessFilter) (int, error)
}

// Spool holds access events that could not be appended.
type Spool interface {
	Write(ctx context.Context, event *models.AccessEvent) error
}

// Config holds dispatcher settings that do not change per call.
type Config struct {
	Thresholds models.Thresholds
	// Location is used for late-night checks and message timestamps.
	Location      *time.Location
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
}

// DefaultConfig returns UTC, default thresholds, 5s store and 10s notify timeouts.
func DefaultConfig() Config {
	return Config{
		Thresholds:    models.DefaultThresholds(),
		Location:      time.UTC,
		StoreTimeout:  5 * time.Second,
		NotifyTimeout: 10 * time.Second,
	}
}

// RecordResult describes what happened to one recorded access.
type RecordResult struct {
	EventID string `json:"eventId"`
	// Result is nil when scoring was skipped.
	Result        *models.DetectionResult `json:"result,omitempty"`
	AlertsCreated int                     `json:"alertsCreated"`

	HighRisk       bool `json:"highRisk"`
	HighRiskAlerts int  `json:"highRiskAlerts"`

	Escalated        bool `json:"escalated"`
	EscalationAlerts int  `json:"escalationAlerts"`

	// Spooled is set when the access log was unavailable and the event
	// went to the spool instead. Only the high-risk check ran.
	Spooled bool `json:"spooled"`

	// Duplicate is set when an event with the same id was already in the
	// access log. Nothing else ran.
	Duplicate bool `json:"duplicate"`
}

// Dispatcher records access events, scores them and turns the result into
// notifications.
type Dispatcher struct {
	events   EventStore
	scorer   detection.Scorer
	users    directory.IdentityDirectory
	sink     NotificationSink
	gate     EscalationGate
	spool    Spool
	security *logging.SecurityLogger
	cfg      Config
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. Escalation rate limiting and the
// spool are optional and set with SetEscalationGate and SetSpool.
func NewDispatcher(
	events EventStore,
	scorer detection.Scorer,
	users directory.IdentityDirectory,
	sink NotificationSink,
	cfg Config,
) *Dispatcher {
	defaults := DefaultConfig()
	if cfg.Location == nil {
		cfg.Location = defaults.Location
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaults.StoreTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaults.NotifyTimeout
	}

	return &Dispatcher{
		events:   events,
		scorer:   scorer,
		users:    users,
		sink:     sink,
		security: logging.NewSecurityLogger(),
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetEscalationGate installs a rate limiter for escalations. A nil gate
// lets every qualifying event escalate.
func (d *Dispatcher) SetEscalationGate(g EscalationGate) {
	d.gate = g
}

// SetSpool installs a fallback for failed appends.
func (d *Dispatcher) SetSpool(s Spool) {
	d.spool = s
}

// SetSecurityLogger replaces the audit logger.
func (d *Dispatcher) SetSecurityLogger(l *logging.SecurityLogger) {
	d.security = l
}

// SetClock overrides the time source used for defaults and the escalation window.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// RecordAccessAndDetect appends event, checks it for high-risk access, then
// scores and alerts on it when real-time alerts are enabled. Scoring fields
// supplied by the caller are discarded. Once the event is appended the call
// does not fail; later errors are logged and reflected in the result.
func (d *Dispatcher) RecordAccessAndDetect(ctx context.Context, event *models.AccessEvent, cfg models.AlertConfig) (*RecordResult, error) {
	if err := validation.ValidateStruct(event); err != nil {
		metrics.RecordAccessEvent("rejected")
		return nil, fmt.Errorf("invalid access event: %w", err)
	}

	event.ClearScore()
	if event.DeviceInfo == nil && event.UserAgent != "" {
		info := device.Extract(event.UserAgent)
		event.DeviceInfo = &info
	}
	// IDs and timestamps are fixed here so a spooled copy replays unchanged.
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = d.now()
	}

	ctx = logging.ContextWithEventID(ctx, event.ID)
	out := &RecordResult{EventID: event.ID}

	if err := d.append(ctx, event); err != nil {
		if d.recorded(ctx, event.ID) {
			logging.Ctx(ctx).Debug().Msg("Access event already recorded")
			metrics.RecordAccessEvent("duplicate")
			out.Duplicate = true
			return out, nil
		}
		if d.spool == nil {
			metrics.RecordAccessEvent("failed")
			return nil, fmt.Errorf("failed to record access: %w", err)
		}
		if spoolErr := d.spool.Write(ctx, event); spoolErr != nil {
			metrics.RecordAccessEvent("failed")
			return nil, fmt.Errorf("failed to record access: %w", errors.Join(err, spoolErr))
		}
		logging.Ctx(ctx).Warn().Err(err).Msg("Access log unavailable, event spooled for replay")
		metrics.RecordAccessEvent("spooled")
		out.Spooled = true
	} else {
		metrics.RecordAccessEvent("appended")
	}

	if IsHighRisk(event, d.cfg.Location) {
		out.HighRisk = true
		n, err := d.notifyHighRisk(ctx, event)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Int("created", n).Msg("High-risk notification incomplete")
		}
		out.HighRiskAlerts = n
	}

	if out.Spooled || !cfg.EnableRealTimeAlerts {
		return out, nil
	}

	result, err := d.scorer.Score(ctx, event, d.cfg.Thresholds)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Scoring failed, event left for batch analysis")
		return out, nil
	}
	out.Result = result

	if err := d.annotate(ctx, event.ID, result); err != nil {
		if errors.Is(err, accesslog.ErrAlreadyScored) {
			logging.Ctx(ctx).Debug().Msg("Event already scored by another worker")
		} else {
			logging.Ctx(ctx).Error().Err(err).Msg("Failed to store anomaly score")
		}
	}

	if result.AnomalyScore >= cfg.AlertThreshold {
		n, err := d.GenerateAlerts(ctx, event, result, cfg)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Int("created", n).Msg("Alert generation incomplete")
		}
		out.AlertsCreated = n
	}

	if result.IsAnomaly {
		n, err := d.escalate(ctx, event.UserID, event.OrganizationID)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Escalation check failed")
		}
		out.Escalated = n > 0
		out.EscalationAlerts = n
	}

	return out, nil
}

// GenerateAlerts sends the admin alert and the optional self-notification
// for a scored event and returns how many notifications were created.
// An unknown user yields zero alerts and no error.
func (d *Dispatcher) GenerateAlerts(ctx context.Context, event *models.AccessEvent, result *models.DetectionResult, cfg models.AlertConfig) (int, error) {
	user, err := d.userByID(ctx, event.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			logging.Ctx(ctx).Warn().Str("user_id", event.UserID).Msg("Alert skipped, user not found")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load user: %w", err)
	}

	var (
		created int
		errs    []error
	)

	if cfg.NotifyAdminsOnly || result.AnomalyScore >= adminNotifyFloor {
		title := securityAlertPrefix + alertTitle(result.Factors)
		message := adminAlertMessage(user, event, result, d.cfg.Location)

		n, err := d.notifyAdmins(ctx, kindAnomaly, event.OrganizationID, func(admin *models.User) *models.Notification {
			return &models.Notification{
				UserID:         admin.ID,
				OrganizationID: event.OrganizationID,
				Type:           typeForScore(result.AnomalyScore),
				Category:       models.CategorySecurityAlert,
				Title:          title,
				Message:        message,
				Priority:       priorityForScore(result.AnomalyScore),
				RelatedID:      event.ID,
				RelatedType:    models.RelatedAccessLog,
				ActionURL:      logDetailURL(event.ID),
			}
		})
		created += n
		if err != nil {
			errs = append(errs, err)
		}
		d.audit(kindAnomaly, event, user, result.AnomalyScore, n, result.Reasons)
	}

	if cfg.NotifyUser && result.AnomalyScore >= models.AnomalyThreshold && result.AnomalyScore < selfNotifyCeiling {
		err := d.deliver(ctx, kindSelf, &models.Notification{
			UserID:         user.ID,
			OrganizationID: event.OrganizationID,
			Type:           models.NotificationInfo,
			Category:       models.CategorySecurityAlert,
			Title:          selfNotificationTitle,
			Message:        selfNotificationMessage(event, d.cfg.Location),
			Priority:       models.PriorityMedium,
			RelatedID:      event.ID,
			RelatedType:    models.RelatedAccessLog,
			ActionURL:      myActivityURL,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", user.ID, err))
		} else {
			created++
		}
	}

	return created, errors.Join(errs...)
}

// IsHighRisk reports whether event needs an immediate admin alert
// regardless of its score: any DELETE, an EXPORT larger than
// HighRiskExportBytes, or PATIENT access in the late-night window.
func IsHighRisk(event *models.AccessEvent, loc *time.Location) bool {
	switch {
	case event.Action == models.ActionDelete:
		return true
	case event.Action == models.ActionExport && event.DataSizeBytes() > HighRiskExportBytes:
		return true
	case event.ResourceType == models.ResourceTypePatient:
		if loc == nil {
			loc = time.UTC
		}
		return detection.IsLateNight(event.CreatedAt.In(loc).Hour())
	}
	return false
}

// CheckHighRiskAccess alerts every active admin when event is high risk
// and reports whether it was.
func (d *Dispatcher) CheckHighRiskAccess(ctx context.Context, event *models.AccessEvent) (bool, error) {
	if !IsHighRisk(event, d.cfg.Location) {
		return false, nil
	}
	_, err := d.notifyHighRisk(ctx, event)
	return true, err
}

func (d *Dispatcher) notifyHighRisk(ctx context.Context, event *models.AccessEvent) (int, error) {
	user, err := d.userByID(ctx, event.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			logging.Ctx(ctx).Warn().Str("user_id", event.UserID).Msg("High-risk alert skipped, user not found")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load user: %w", err)
	}

	message := highRiskMessage(user, event, d.cfg.Location)
	n, err := d.notifyAdmins(ctx, kindHighRisk, event.OrganizationID, func(admin *models.User) *models.Notification {
		return &models.Notification{
			UserID:         admin.ID,
			OrganizationID: event.OrganizationID,
			Type:           models.NotificationUrgent,
			Category:       models.CategorySecurityAlert,
			Title:          highRiskTitle,
			Message:        message,
			Priority:       models.PriorityUrgent,
			RelatedID:      user.ID,
			RelatedType:    models.RelatedAccessLog,
			ActionURL:      securityDashboardURL,
		}
	})
	d.audit(kindHighRisk, event, user, 0, n, nil)
	return n, err
}

// CheckEscalation alerts every active admin when the user has reached
// EscalationThreshold anomalous events in the trailing EscalationWindow.
// It reports whether notifications were sent.
func (d *Dispatcher) CheckEscalation(ctx context.Context, userID, orgID string) (bool, error) {
	n, err := d.escalate(ctx, userID, orgID)
	return n > 0, err
}

func (d *Dispatcher) escalate(ctx context.Context, userID, orgID string) (int, error) {
	end := d.now()
	countCtx, cancel := context.WithTimeout(ctx, d.cfg.StoreTimeout)
	count, err := d.events.CountByUser(countCtx, userID, models.AccessFilter{
		OrganizationID: orgID,
		Start:          end.Add(-EscalationWindow),
		End:            end,
		AnomalousOnly:  true,
	})
	cancel()
	if err != nil {
		return 0, fmt.Errorf("failed to count anomalous access: %w", err)
	}
	if count < EscalationThreshold {
		return 0, nil
	}

	if d.gate != nil {
		allowed, err := d.gate.Allow(ctx, escalationKey(orgID, userID))
		switch {
		case err != nil:
			// A broken gate must not hide an escalation.
			logging.Ctx(ctx).Warn().Err(err).Msg("Escalation gate unavailable, escalating anyway")
		case !allowed:
			metrics.RecordEscalationSuppressed()
			logging.Ctx(ctx).Debug().Str("user_id", userID).Int("count", count).Msg("Escalation suppressed by cooldown")
			return 0, nil
		}
	}

	user, err := d.userByID(ctx, userID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			logging.Ctx(ctx).Warn().Str("user_id", userID).Msg("Escalation skipped, user not found")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load user: %w", err)
	}

	message := escalationMessage(user, count)
	n, err := d.notifyAdmins(ctx, kindEscalation, orgID, func(admin *models.User) *models.Notification {
		return &models.Notification{
			UserID:         admin.ID,
			OrganizationID: orgID,
			Type:           models.NotificationUrgent,
			Category:       models.CategorySecurityAlert,
			Title:          escalationTitle,
			Message:        message,
			Priority:       models.PriorityUrgent,
			RelatedID:      userID,
			RelatedType:    models.RelatedUser,
			ActionURL:      userDetailURL(userID),
		}
	})
	d.security.LogEvent(&logging.SecurityEvent{
		Event:          kindEscalation,
		UserID:         userID,
		UserEmail:      user.Email,
		OrganizationID: orgID,
		Score:          count,
		Recipients:     n,
	})
	return n, err
}

// notifyAdmins sends one notification per active admin of orgID and
// returns how many were created. Delivery continues past failures.
func (d *Dispatcher) notifyAdmins(ctx context.Context, kind, orgID string, build func(admin *models.User) *models.Notification) (int, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, d.cfg.StoreTimeout)
	admins, err := d.users.ActiveAdmins(lookupCtx, orgID)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("failed to list admins: %w", err)
	}
	if len(admins) == 0 {
		logging.Ctx(ctx).Warn().Str("organization_id", orgID).Str("kind", kind).Msg("No active admins to notify")
		return 0, nil
	}

	var (
		created int
		errs    []error
	)
	for i := range admins {
		if err := d.deliver(ctx, kind, build(&admins[i])); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", admins[i].ID, err))
			continue
		}
		created++
	}
	return created, errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, kind string, n *models.Notification) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.NotifyTimeout)
	defer cancel()

	err := d.sink.Create(sendCtx, n)
	metrics.RecordNotification(kind, err)
	if err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("kind", kind).
			Str("recipient", n.UserID).
			Msg("Notification delivery failed")
	}
	return err
}

func (d *Dispatcher) append(ctx context.Context, event *models.AccessEvent) error {
	storeCtx, cancel := context.WithTimeout(ctx, d.cfg.StoreTimeout)
	defer cancel()
	_, err := d.events.Append(storeCtx, event)
	return err
}

// recorded reports whether id is already in the access log. Lookup errors
// count as not recorded.
func (d *Dispatcher) recorded(ctx context.Context, id string) bool {
	storeCtx, cancel := context.WithTimeout(ctx, d.cfg.StoreTimeout)
	defer cancel()
	_, err := d.events.Get(storeCtx, id)
	return err == nil
}

func (d *Dispatcher) annotate(ctx context.Context, id string, result *models.DetectionResult) error {
	storeCtx, cancel := context.WithTimeout(ctx, d.cfg.StoreTimeout)
	defer cancel()
	return d.events.Annotate(storeCtx, id, result)
}

func (d *Dispatcher) userByID(ctx context.Context, userID string) (*models.User, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, d.cfg.StoreTimeout)
	defer cancel()
	return d.users.UserByID(lookupCtx, userID)
}

func (d *Dispatcher) audit(kind string, event *models.AccessEvent, user *models.User, score, recipients int, reasons []string) {
	d.security.LogEvent(&logging.SecurityEvent{
		Event:          kind,
		EventID:        event.ID,
		UserID:         user.ID,
		UserEmail:      user.Email,
		OrganizationID: event.OrganizationID,
		IPAddress:      event.IPAddress,
		Score:          score,
		Recipients:     recipients,
		Reasons:        reasons,
	})
}
