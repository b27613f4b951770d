// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/accessguard/internal/models"
)

// isolate points CONFIG_PATH at a missing file and runs from a temp dir so
// no stray config.yaml is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(ConfigPathEnvVar, filepath.Join(dir, "missing.yaml"))
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Detection.Thresholds.LateNightAccessScore != 30 {
		t.Errorf("LateNightAccessScore = %v, want 30", cfg.Detection.Thresholds.LateNightAccessScore)
	}
	if cfg.Alerting.AlertThreshold != 50 {
		t.Errorf("AlertThreshold = %d, want 50", cfg.Alerting.AlertThreshold)
	}
	if !cfg.Alerting.NotifyAdminsOnly || cfg.Alerting.NotifyUser {
		t.Error("default notify policy should be admins only")
	}
	if cfg.Detection.StatsRowLimit != 10000 {
		t.Errorf("StatsRowLimit = %d, want 10000", cfg.Detection.StatsRowLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if cfg.Alerting.Policy() != models.DefaultAlertConfig() {
		t.Errorf("Policy() = %+v, want %+v", cfg.Alerting.Policy(), models.DefaultAlertConfig())
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.NATS.EventsTopic != "access.events" {
		t.Errorf("EventsTopic = %q", cfg.NATS.EventsTopic)
	}
	if cfg.Alerting.StoreTimeout != 5*time.Second {
		t.Errorf("StoreTimeout = %v, want 5s", cfg.Alerting.StoreTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("ACCESSGUARD_ALERTING__ALERT_THRESHOLD", "70")
	t.Setenv("ACCESSGUARD_DETECTION__THRESHOLDS__BULK_ACCESS_SCORE", "55")
	t.Setenv("ACCESSGUARD_DETECTION__TIMEZONE", "UTC")
	t.Setenv("DUCKDB_PATH", "/tmp/test.duckdb")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ACCESSGUARD_BATCH__ORGANIZATIONS", "org-a, org-b,,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Alerting.AlertThreshold != 70 {
		t.Errorf("AlertThreshold = %d, want 70", cfg.Alerting.AlertThreshold)
	}
	if cfg.Detection.Thresholds.BulkAccessScore != 55 {
		t.Errorf("BulkAccessScore = %v, want 55", cfg.Detection.Thresholds.BulkAccessScore)
	}
	if cfg.Database.Path != "/tmp/test.duckdb" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if len(cfg.Batch.Organizations) != 2 || cfg.Batch.Organizations[1] != "org-b" {
		t.Errorf("Batch.Organizations = %v", cfg.Batch.Organizations)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	yaml := `
detection:
  timezone: UTC
  thresholds:
    late_night_access_score: 35
alerting:
  notify_user: true
  escalation_cooldown: 30m
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Detection.Thresholds.LateNightAccessScore != 35 {
		t.Errorf("LateNightAccessScore = %v, want 35", cfg.Detection.Thresholds.LateNightAccessScore)
	}
	if !cfg.Alerting.NotifyUser {
		t.Error("NotifyUser should be true from file")
	}
	if cfg.Alerting.EscalationCooldown != 30*time.Minute {
		t.Errorf("EscalationCooldown = %v, want 30m", cfg.Alerting.EscalationCooldown)
	}
	// untouched defaults survive
	if cfg.Detection.Thresholds.UnusualDeviceScore != 25 {
		t.Errorf("UnusualDeviceScore = %v, want 25", cfg.Detection.Thresholds.UnusualDeviceScore)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"threshold above 100", func(c *Config) { c.Alerting.AlertThreshold = 101 }, true},
		{"bad timezone", func(c *Config) { c.Detection.Timezone = "Mars/Olympus" }, true},
		{"webhook without url", func(c *Config) { c.Webhook.Enabled = true }, true},
		{"webhook with url", func(c *Config) {
			c.Webhook.Enabled = true
			c.Webhook.URL = "https://hooks.example.org/alerts"
		}, false},
		{"batch window shorter than interval", func(c *Config) {
			c.Batch.Enabled = true
			c.Batch.Window = time.Minute
		}, true},
		{"redis without cooldown", func(c *Config) {
			c.Redis.Enabled = true
			c.Alerting.EscalationCooldown = 0
		}, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"zero std threshold", func(c *Config) { c.Detection.Thresholds.StandardDeviationThreshold = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"ACCESSGUARD_NATS__URL":        "nats.url",
		"ACCESSGUARD_WAL__SYNC_WRITES": "wal.sync_writes",
		"HTTP_PORT":                    "server.port",
		"LOG_INSTANCE":                 "logging.instance",
		"HOME":                         "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}
