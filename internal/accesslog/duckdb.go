// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package accesslog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/metrics"
	"github.com/tomtom215/accessguard/internal/models"
)

// DuckDBStore implements Store on the access_logs table.
type DuckDBStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewDuckDBStore creates a store on an initialized database.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db, now: time.Now}
}

const eventSelectColumns = `
	id, user_id, organization_id, resource_type, resource_id, action,
	COALESCE(ip_address, '') AS ip_address,
	COALESCE(user_agent, '') AS user_agent,
	device_info, access_duration, data_size,
	anomaly_score, is_anomaly, anomaly_reasons, scored_at, created_at`

// normalizeTime drops sub-microsecond precision DuckDB cannot store.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func (s *DuckDBStore) Append(ctx context.Context, event *models.AccessEvent) (string, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	event.CreatedAt = normalizeTime(event.CreatedAt)
	if event.AnomalyReasons == nil {
		event.AnomalyReasons = []string{}
	}

	deviceInfo, err := marshalNullableJSON(event.DeviceInfo)
	if err != nil {
		return "", fmt.Errorf("failed to encode device info: %w", err)
	}
	reasons, err := json.Marshal(event.AnomalyReasons)
	if err != nil {
		return "", fmt.Errorf("failed to encode anomaly reasons: %w", err)
	}

	var scoredAt interface{}
	if event.ScoredAt != nil {
		scoredAt = normalizeTime(*event.ScoredAt)
	}

	start := time.Now()
	_, err = s.db.ExecContext(ctx, `INSERT INTO access_logs
		(id, user_id, organization_id, resource_type, resource_id, action,
		 ip_address, user_agent, device_info, access_duration, data_size,
		 anomaly_score, is_anomaly, anomaly_reasons, scored_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.UserID,
		event.OrganizationID,
		string(event.ResourceType),
		event.ResourceID,
		string(event.Action),
		nullString(event.IPAddress),
		nullString(event.UserAgent),
		deviceInfo,
		nullInt(event.AccessDuration),
		nullInt64(event.DataSize),
		event.AnomalyScore,
		event.IsAnomaly,
		string(reasons),
		scoredAt,
		event.CreatedAt,
	)
	metrics.RecordDBQuery("INSERT", "access_logs", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("failed to insert access event: %w", err)
	}
	return event.ID, nil
}

func (s *DuckDBStore) Get(ctx context.Context, id string) (*models.AccessEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventSelectColumns+` FROM access_logs WHERE id = ?`, id)

	var event models.AccessEvent
	if err := scanEvent(row, &event); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get access event: %w", err)
	}
	return &event, nil
}

func (s *DuckDBStore) QueryByUser(ctx context.Context, userID string, filter models.AccessFilter) ([]models.AccessEvent, error) {
	where, args := buildFilter("user_id = ?", []interface{}{userID}, filter)
	query := `SELECT ` + eventSelectColumns + ` FROM access_logs WHERE ` + where +
		` ORDER BY created_at DESC, id DESC` + limitClause(filter.Limit)
	return s.queryEvents(ctx, query, args...)
}

func (s *DuckDBStore) QueryByOrg(ctx context.Context, orgID string, filter models.AccessFilter) ([]models.AccessEvent, error) {
	where, args := buildFilter("organization_id = ?", []interface{}{orgID}, filter)
	order := ` ORDER BY created_at DESC, id DESC`
	if filter.AnomalousOnly || filter.MinScore > 0 {
		order = ` ORDER BY anomaly_score DESC, created_at DESC, id DESC`
	}
	query := `SELECT ` + eventSelectColumns + ` FROM access_logs WHERE ` + where + order + limitClause(filter.Limit)
	return s.queryEvents(ctx, query, args...)
}

func (s *DuckDBStore) CountByUser(ctx context.Context, userID string, filter models.AccessFilter) (int, error) {
	where, args := buildFilter("user_id = ?", []interface{}{userID}, filter)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_logs WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count access events: %w", err)
	}
	return n, nil
}

func (s *DuckDBStore) Annotate(ctx context.Context, id string, result *models.DetectionResult) error {
	reasons := result.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	encoded, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("failed to encode anomaly reasons: %w", err)
	}

	start := time.Now()
	res, err := s.db.ExecContext(ctx, `UPDATE access_logs
		SET anomaly_score = ?, is_anomaly = ?, anomaly_reasons = ?, scored_at = ?
		WHERE id = ? AND scored_at IS NULL`,
		result.AnomalyScore, result.IsAnomaly, string(encoded), normalizeTime(s.now()), id)
	metrics.RecordDBQuery("UPDATE", "access_logs", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to annotate access event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read annotate result: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Distinguish a missing row from one that lost the race.
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM access_logs WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check access event: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyScored
}

func (s *DuckDBStore) ListUnscored(ctx context.Context, orgID string, start, end time.Time, after *Cursor, limit int) ([]models.AccessEvent, error) {
	query := `SELECT ` + eventSelectColumns + ` FROM access_logs
		WHERE organization_id = ?
		  AND created_at BETWEEN ? AND ?
		  AND is_anomaly = false
		  AND scored_at IS NULL`
	args := []interface{}{orgID, normalizeTime(start), normalizeTime(end)}

	if after != nil {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		ts := normalizeTime(after.CreatedAt)
		args = append(args, ts, ts, after.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC` + limitClause(limit)

	return s.queryEvents(ctx, query, args...)
}

func (s *DuckDBStore) OrganizationStats(ctx context.Context, orgID string, start, end time.Time) (*models.OrganizationStats, error) {
	var stats models.OrganizationStats
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_anomaly),
			COALESCE(AVG(anomaly_score), 0),
			COUNT(DISTINCT user_id),
			COUNT(DISTINCT resource_id)
		FROM access_logs
		WHERE organization_id = ? AND created_at BETWEEN ? AND ?`,
		orgID, normalizeTime(start), normalizeTime(end),
	).Scan(&stats.TotalAccess, &stats.TotalAnomalies, &stats.AverageAnomalyScore, &stats.UniqueUsers, &stats.UniqueResources)
	if err != nil {
		return nil, fmt.Errorf("failed to compute organization stats: %w", err)
	}
	return &stats, nil
}

func (s *DuckDBStore) queryEvents(ctx context.Context, query string, args ...interface{}) ([]models.AccessEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query access events: %w", err)
	}
	defer rows.Close()

	var events []models.AccessEvent
	for rows.Next() {
		var event models.AccessEvent
		if err := scanEvent(rows, &event); err != nil {
			return nil, fmt.Errorf("failed to scan access event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// buildFilter appends AccessFilter conditions to a base condition.
func buildFilter(base string, args []interface{}, f models.AccessFilter) (string, []interface{}) {
	conds := []string{base}
	if f.OrganizationID != "" {
		conds = append(conds, "organization_id = ?")
		args = append(args, f.OrganizationID)
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if !f.Start.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, normalizeTime(f.Start))
	}
	if !f.End.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, normalizeTime(f.End))
	}
	if f.ResourceType != "" {
		conds = append(conds, "resource_type = ?")
		args = append(args, string(f.ResourceType))
	}
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.AnomalousOnly {
		conds = append(conds, "is_anomaly = true")
	}
	if f.MinScore > 0 {
		conds = append(conds, "anomaly_score >= ?")
		args = append(args, f.MinScore)
	}
	return strings.Join(conds, " AND "), args
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEvent scans eventSelectColumns. Malformed JSON columns are logged and
// treated as absent.
func scanEvent(scanner rowScanner, event *models.AccessEvent) error {
	var (
		resourceType, action string
		deviceInfo, reasons  interface{} // DuckDB returns JSON as decoded Go values
		duration             sql.NullInt32
		dataSize             sql.NullInt64
		scoredAt             sql.NullTime
	)

	if err := scanner.Scan(
		&event.ID,
		&event.UserID,
		&event.OrganizationID,
		&resourceType,
		&event.ResourceID,
		&action,
		&event.IPAddress,
		&event.UserAgent,
		&deviceInfo,
		&duration,
		&dataSize,
		&event.AnomalyScore,
		&event.IsAnomaly,
		&reasons,
		&scoredAt,
		&event.CreatedAt,
	); err != nil {
		return err
	}

	event.ResourceType = models.ResourceType(resourceType)
	event.Action = models.Action(action)
	event.CreatedAt = event.CreatedAt.UTC()

	if duration.Valid {
		d := int(duration.Int32)
		event.AccessDuration = &d
	}
	if dataSize.Valid {
		ds := dataSize.Int64
		event.DataSize = &ds
	}
	if scoredAt.Valid {
		ts := scoredAt.Time.UTC()
		event.ScoredAt = &ts
	}

	if deviceInfo != nil {
		var info models.DeviceInfo
		if err := decodeJSONColumn(deviceInfo, &info); err != nil {
			logging.Warn().Err(err).Str("event_id", event.ID).Msg("ignoring malformed device info")
		} else {
			event.DeviceInfo = &info
		}
	}

	event.AnomalyReasons = []string{}
	if reasons != nil {
		var list []string
		if err := decodeJSONColumn(reasons, &list); err != nil {
			logging.Warn().Err(err).Str("event_id", event.ID).Msg("ignoring malformed anomaly reasons")
		} else if list != nil {
			event.AnomalyReasons = list
		}
	}
	return nil
}

// decodeJSONColumn converts a scanned JSON column into dst. The driver may
// hand back a string, raw bytes, or an already-decoded value.
func decodeJSONColumn(src interface{}, dst interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		raw = b
	}
	return json.Unmarshal(raw, dst)
}

func marshalNullableJSON(v *models.DeviceInfo) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
