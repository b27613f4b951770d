// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

// Command report prints an organization's anomaly report as JSON.
//
//	report -org org-1 -period weekly
//	report -org org-1 -start 2026-03-01T00:00:00Z -end 2026-03-08T00:00:00Z
//
// Database and timezone settings come from the same configuration as the
// server (config.yaml and ACCESSGUARD_* variables).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/accessguard/internal/accesslog"
	"github.com/tomtom215/accessguard/internal/config"
	"github.com/tomtom215/accessguard/internal/database"
	"github.com/tomtom215/accessguard/internal/directory"
	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/report"
)

func main() {
	var (
		orgID    = flag.String("org", "", "organization id (required)")
		period   = flag.String("period", "weekly", "daily, weekly or monthly; ignored when -start is set")
		startArg = flag.String("start", "", "RFC 3339 period start")
		endArg   = flag.String("end", "", "RFC 3339 period end, defaults to now")
		minScore = flag.Int("min-score", report.DefaultMinScore, "lowest score sampled as an anomaly")
		indent   = flag.Bool("indent", true, "indent JSON output")
	)
	flag.Parse()

	if err := run(*orgID, *period, *startArg, *endArg, *minScore, *indent); err != nil {
		fmt.Fprintln(os.Stderr, "report:", err)
		os.Exit(1)
	}
}

func run(orgID, period, startArg, endArg string, minScore int, indent bool) error {
	if orgID == "" {
		return fmt.Errorf("-org is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: "warn", Format: "console"})

	loc, err := cfg.Detection.Location()
	if err != nil {
		return err
	}

	end := time.Now()
	if endArg != "" {
		if end, err = time.Parse(time.RFC3339, endArg); err != nil {
			return fmt.Errorf("invalid -end: %w", err)
		}
	}
	start, end := report.PeriodRange(period, end)
	if startArg != "" {
		if start, err = time.Parse(time.RFC3339, startArg); err != nil {
			return fmt.Errorf("invalid -start: %w", err)
		}
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	gen := report.NewGenerator(accesslog.NewDuckDBStore(db.Conn()), directory.NewDuckDBDirectory(db.Conn()), loc)
	gen.SetMinScore(minScore)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	r, err := gen.Generate(ctx, orgID, start, end)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(r)
}
