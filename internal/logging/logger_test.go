// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// captureGlobal swaps the global logger for one writing to a buffer.
func captureGlobal(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger()
	prevLevel := zerolog.GlobalLevel()
	SetLogger(NewTestLogger(&buf))
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() {
		SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", line, err)
	}
	return m
}

func TestInit(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Instance: "node-a", Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	Info().Str("key", "value").Msg("test message")

	m := decodeLine(t, &buf)
	if m["message"] != "test message" || m["key"] != "value" || m["service"] != ServiceName {
		t.Errorf("unexpected log line: %v", m)
	}
	if m["instance"] != "node-a" {
		t.Errorf("instance = %v, want node-a", m["instance"])
	}
}

func TestInit_DefaultInstanceIsHostname(t *testing.T) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		t.Skip("hostname unavailable")
	}
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	l := WithComponent("replayer")
	l.Info().Msg("started")

	m := decodeLine(t, &buf)
	if m["instance"] != host || m["component"] != "replayer" {
		t.Errorf("unexpected log line: %v", m)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"DEBUG":    zerolog.DebugLevel,
		"warning":  zerolog.WarnLevel,
		"Warn":     zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
		"":         zerolog.InfoLevel,
		"bogus":    zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCtx_AddsContextFields(t *testing.T) {
	buf := captureGlobal(t)

	ctx := ContextWithCorrelationID(context.Background(), "abc12345")
	ctx = ContextWithEventID(ctx, "evt-1")
	Ctx(ctx).Info().Msg("scored")

	m := decodeLine(t, buf)
	if m["correlation_id"] != "abc12345" {
		t.Errorf("correlation_id = %v", m["correlation_id"])
	}
	if m["event_id"] != "evt-1" {
		t.Errorf("event_id = %v", m["event_id"])
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	a, b := GenerateCorrelationID(), GenerateCorrelationID()
	if len(a) != 8 || a == b {
		t.Errorf("unexpected correlation ids %q %q", a, b)
	}
	if got := CorrelationIDFromContext(context.Background()); got != "" {
		t.Errorf("empty context should yield empty id, got %q", got)
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewSlogHandlerWithLogger(NewTestLogger(&buf)))

	logger.WithGroup("svc").With("name", "batch").Warn("restarting", "attempt", 3)

	m := decodeLine(t, &buf)
	if m["level"] != "warn" {
		t.Errorf("level = %v, want warn", m["level"])
	}
	if m["svc.name"] != "batch" {
		t.Errorf("svc.name = %v", m["svc.name"])
	}
	if m["svc.attempt"] != float64(3) {
		t.Errorf("svc.attempt = %v", m["svc.attempt"])
	}
	if m["message"] != "restarting" {
		t.Errorf("message = %v", m["message"])
	}
}

func TestSecurityLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewSecurityLoggerWithLogger(NewTestLogger(&buf))

	sl.LogEvent(&SecurityEvent{
		Event:      "anomaly_alert",
		EventID:    "evt-9",
		UserEmail:  "jane.doe@example.org",
		Score:      82,
		Recipients: 2,
		Reasons:    []string{"Unusual access time (score: 45)"},
	})

	m := decodeLine(t, &buf)
	if m["user_email"] != "j***@example.org" {
		t.Errorf("user_email = %v", m["user_email"])
	}
	if m["component"] != "security" || m["score"] != float64(82) {
		t.Errorf("unexpected line %v", m)
	}
}

func TestMaskEmail(t *testing.T) {
	tests := map[string]string{
		"jane@example.org": "j***@example.org",
		"@example.org":     "***",
		"nobody":           "***",
	}
	for in, want := range tests {
		if got := MaskEmail(in); got != want {
			t.Errorf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
