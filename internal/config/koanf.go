// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/accessguard/internal/models"
)

// DefaultConfigPaths lists config file locations in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/accessguard/config.yaml",
	"/etc/accessguard/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix is stripped from structured environment variables.
const EnvPrefix = "ACCESSGUARD_"

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "/data/accessguard.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Detection: DetectionConfig{
			Thresholds:         models.DefaultThresholds(),
			Timezone:           "Local",
			StatsRowLimit:      10000,
			DeviceHistoryLimit: 1000,
		},
		Alerting: AlertingConfig{
			EnableRealTimeAlerts: true,
			AlertThreshold:       50,
			NotifyAdminsOnly:     true,
			NotifyUser:           false,
			StoreTimeout:         5 * time.Second,
			NotifyTimeout:        10 * time.Second,
			EscalationCooldown:   time.Hour,
			EscalationGateSize:   10000,
		},
		Webhook: WebhookConfig{
			Enabled:   false,
			Timeout:   10 * time.Second,
			RateLimit: 5,
			Burst:     10,
		},
		NATS: NATSConfig{
			Enabled:             false,
			URL:                 "nats://127.0.0.1:4222",
			EventsTopic:         "access.events",
			NotificationsTopic:  "access.notifications",
			QueueGroup:          "accessguard",
			DurableName:         "accessguard-ingest",
			SubscribersCount:    4,
			AckWaitTimeout:      30 * time.Second,
			MaxReconnects:       -1,
			ReconnectWait:       2 * time.Second,
			CloseTimeout:        30 * time.Second,
			PublishNotification: true,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "127.0.0.1:6379",
			Prefix:  "accessguard",
		},
		WAL: WALConfig{
			Enabled:       true,
			Path:          "/data/wal",
			RetryInterval: 30 * time.Second,
			MaxRetries:    100,
			SyncWrites:    true,
		},
		Batch: BatchConfig{
			Enabled:  false,
			Interval: time.Hour,
			Window:   24 * time.Hour,
			PageSize: 500,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            9090,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration with precedence ENV > file > defaults and
// validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"batch.organizations",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// legacyEnv maps short operator-facing variable names to config paths.
var legacyEnv = map[string]string{
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"log_level":         "logging.level",
	"log_format":        "logging.format",
	"log_caller":        "logging.caller",
	"log_instance":      "logging.instance",
	"nats_url":          "nats.url",
	"nats_enabled":      "nats.enabled",
	"redis_addr":        "redis.addr",
	"redis_password":    "redis.password",
	"wal_path":          "wal.path",
	"http_port":         "server.port",
	"webhook_url":       "webhook.url",
}

// envTransformFunc maps environment variable names to koanf paths:
//
//   - ACCESSGUARD_ALERTING__ALERT_THRESHOLD -> alerting.alert_threshold
//   - ACCESSGUARD_DETECTION__THRESHOLDS__BULK_ACCESS_SCORE -> detection.thresholds.bulk_access_score
//   - DUCKDB_PATH -> database.path
//
// Anything else is ignored.
func envTransformFunc(key string) string {
	if strings.HasPrefix(key, EnvPrefix) {
		rest := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		return strings.ReplaceAll(rest, "__", ".")
	}
	if mapped, ok := legacyEnv[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
