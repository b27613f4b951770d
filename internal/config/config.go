// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

// Package config loads AccessGuard configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in defaults from defaultConfig()
//  2. Config File: optional YAML file (CONFIG_PATH, ./config.yaml, /etc/accessguard/config.yaml)
//  3. Environment Variables: ACCESSGUARD_SECTION__KEY, plus a few legacy names (DUCKDB_PATH, LOG_LEVEL, ...)
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/accessguard/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Detection DetectionConfig `koanf:"detection"`
	Alerting  AlertingConfig  `koanf:"alerting"`
	Webhook   WebhookConfig   `koanf:"webhook"`
	NATS      NATSConfig      `koanf:"nats"`
	Redis     RedisConfig     `koanf:"redis"`
	WAL       WALConfig       `koanf:"wal"`
	Batch     BatchConfig     `koanf:"batch"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DatabaseConfig configures the DuckDB connection.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory" validate:"required"`
	Threads   int    `koanf:"threads" validate:"gte=0"`
}

// DetectionConfig configures the scoring engine.
type DetectionConfig struct {
	Thresholds models.Thresholds `koanf:"thresholds"`

	// Timezone is the IANA name used for hour-of-day and weekday checks.
	Timezone string `koanf:"timezone" validate:"required"`

	// StatsRowLimit caps history rows read for baselines.
	StatsRowLimit int `koanf:"stats_row_limit" validate:"gt=0"`

	// DeviceHistoryLimit caps history rows read by the device detector.
	DeviceHistoryLimit int `koanf:"device_history_limit" validate:"gt=0"`
}

// Location resolves Timezone.
func (d DetectionConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid detection timezone %q: %w", d.Timezone, err)
	}
	return loc, nil
}

// AlertingConfig configures the alert dispatcher.
type AlertingConfig struct {
	EnableRealTimeAlerts bool `koanf:"enable_real_time_alerts"`
	AlertThreshold       int  `koanf:"alert_threshold" validate:"gte=0,lte=100"`
	NotifyAdminsOnly     bool `koanf:"notify_admins_only"`
	NotifyUser           bool `koanf:"notify_user"`

	// StoreTimeout bounds each store and directory call made while alerting.
	StoreTimeout time.Duration `koanf:"store_timeout" validate:"gt=0"`

	// NotifyTimeout bounds each notification sink call.
	NotifyTimeout time.Duration `koanf:"notify_timeout" validate:"gt=0"`

	// EscalationCooldown suppresses repeat escalations for the same user.
	// Zero disables the gate.
	EscalationCooldown time.Duration `koanf:"escalation_cooldown" validate:"gte=0"`

	// EscalationGateSize bounds the in-process cooldown cache.
	EscalationGateSize int `koanf:"escalation_gate_size" validate:"gt=0"`
}

// Policy returns the dispatch policy portion of the alerting config.
func (a AlertingConfig) Policy() models.AlertConfig {
	return models.AlertConfig{
		EnableRealTimeAlerts: a.EnableRealTimeAlerts,
		AlertThreshold:       a.AlertThreshold,
		NotifyAdminsOnly:     a.NotifyAdminsOnly,
		NotifyUser:           a.NotifyUser,
	}
}

// WebhookConfig configures the optional webhook notification sink.
type WebhookConfig struct {
	Enabled   bool          `koanf:"enabled"`
	URL       string        `koanf:"url" validate:"required_if=Enabled true,omitempty,url"`
	Timeout   time.Duration `koanf:"timeout" validate:"gt=0"`
	RateLimit float64       `koanf:"rate_limit" validate:"gt=0"`
	Burst     int           `koanf:"burst" validate:"gt=0"`
}

// NATSConfig configures JetStream ingest and notification publication.
type NATSConfig struct {
	Enabled             bool          `koanf:"enabled"`
	URL                 string        `koanf:"url" validate:"required_if=Enabled true"`
	EventsTopic         string        `koanf:"events_topic" validate:"required"`
	NotificationsTopic  string        `koanf:"notifications_topic" validate:"required"`
	QueueGroup          string        `koanf:"queue_group"`
	DurableName         string        `koanf:"durable_name"`
	SubscribersCount    int           `koanf:"subscribers_count" validate:"gt=0"`
	AckWaitTimeout      time.Duration `koanf:"ack_wait_timeout" validate:"gt=0"`
	MaxReconnects       int           `koanf:"max_reconnects"`
	ReconnectWait       time.Duration `koanf:"reconnect_wait" validate:"gt=0"`
	CloseTimeout        time.Duration `koanf:"close_timeout" validate:"gt=0"`
	PublishNotification bool          `koanf:"publish_notifications"`
}

// RedisConfig configures the distributed escalation gate. When disabled the
// in-process gate is used.
type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr" validate:"required_if=Enabled true,omitempty,hostname_port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
	Prefix   string `koanf:"prefix"`
}

// WALConfig configures the Badger spool for access records whose primary
// write failed.
type WALConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Path          string        `koanf:"path" validate:"required_if=Enabled true"`
	RetryInterval time.Duration `koanf:"retry_interval" validate:"gt=0"`
	MaxRetries    int           `koanf:"max_retries" validate:"gt=0"`
	SyncWrites    bool          `koanf:"sync_writes"`
}

// BatchConfig configures the scheduled batch analyzer.
type BatchConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Interval      time.Duration `koanf:"interval" validate:"gt=0"`
	Window        time.Duration `koanf:"window" validate:"gt=0"`
	PageSize      int           `koanf:"page_size" validate:"gt=0,lte=10000"`
	Organizations []string      `koanf:"organizations"`
}

// ServerConfig configures the operational HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level    string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format   string `koanf:"format" validate:"oneof=json console"`
	Caller   bool   `koanf:"caller"`
	Instance string `koanf:"instance"` // empty uses the hostname
}
