// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

// Package main is the entry point for the AccessGuard server.
//
// AccessGuard records resource access events, scores each one for anomalous
// behavior and notifies organization administrators when a score crosses
// the alert threshold. Startup order:
//
//  1. Configuration (koanf: defaults, config.yaml, ACCESSGUARD_* env)
//  2. Logging
//  3. DuckDB: access log, directory and notification tables
//  4. Scoring engine and alert dispatcher, with the Badger spool, the
//     escalation gate and the notification sinks
//  5. Supervisor tree: WAL replay, NATS ingest, batch analysis and the
//     operational HTTP listener
//
// SIGINT and SIGTERM cancel the tree; resources are closed after every
// service has stopped.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/accessguard/internal/config"
	"github.com/tomtom215/accessguard/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Caller:   cfg.Logging.Caller,
		Instance: cfg.Logging.Instance,
	})
	logging.Info().Msg("Starting AccessGuard")

	app, err := newApp(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor tree stopped unexpectedly")
	}

	if report, err := app.tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}
	logging.Info().Msg("AccessGuard stopped")
}
