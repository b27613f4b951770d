// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/accessguard/internal/accesslog"
	"github.com/tomtom215/accessguard/internal/alerting"
	"github.com/tomtom215/accessguard/internal/api"
	"github.com/tomtom215/accessguard/internal/cache"
	"github.com/tomtom215/accessguard/internal/config"
	"github.com/tomtom215/accessguard/internal/database"
	"github.com/tomtom215/accessguard/internal/detection"
	"github.com/tomtom215/accessguard/internal/directory"
	"github.com/tomtom215/accessguard/internal/eventprocessor"
	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/supervisor"
	"github.com/tomtom215/accessguard/internal/supervisor/services"
	"github.com/tomtom215/accessguard/internal/wal"
)

// app owns every long-lived resource. Close releases them in reverse
// order of creation.
type app struct {
	tree  *supervisor.Tree
	sinks *alerting.MultiSink

	closers []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

func (a *app) onClose(name string, c io.Closer) {
	a.closers = append(a.closers, namedCloser{name: name, c: c})
}

// Close waits for in-flight secondary deliveries, then closes resources.
func (a *app) Close() {
	if a.sinks != nil {
		a.sinks.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			logging.Error().Err(err).Str("resource", nc.name).Msg("Error closing resource")
		}
	}
}

func newApp(cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	loc, err := cfg.Detection.Location()
	if err != nil {
		return nil, err
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, err
	}
	a.onClose("database", db)

	events := accesslog.NewDuckDBStore(db.Conn())
	users := directory.NewDuckDBDirectory(db.Conn())
	engine := detection.NewStandardEngine(events, users, users, detection.EngineConfig{
		Location:           loc,
		StatsRowLimit:      cfg.Detection.StatsRowLimit,
		DeviceHistoryLimit: cfg.Detection.DeviceHistoryLimit,
	})

	sinks, publisher, err := buildSinks(cfg, db)
	if err != nil {
		return nil, err
	}
	a.sinks = sinks
	if publisher != nil {
		a.onClose("nats-publisher", publisher)
	}

	dispatcher := alerting.NewDispatcher(events, engine, users, sinks, alerting.Config{
		Thresholds:    cfg.Detection.Thresholds,
		Location:      loc,
		StoreTimeout:  cfg.Alerting.StoreTimeout,
		NotifyTimeout: cfg.Alerting.NotifyTimeout,
	})

	a.tree = supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	gate, gateCounter, redisClient := buildGate(cfg)
	if gate != nil {
		dispatcher.SetEscalationGate(gate)
	}
	if gateCounter != nil {
		a.tree.AddDataService(gateCounter)
	}
	if redisClient != nil {
		a.onClose("redis", redisClient)
	}

	checks := []api.Check{{Name: "database", Fn: db.Ping}}

	if cfg.WAL.Enabled {
		spool, err := wal.Open(wal.Config{Path: cfg.WAL.Path, SyncWrites: cfg.WAL.SyncWrites})
		if err != nil {
			return nil, err
		}
		a.onClose("wal", spool)
		dispatcher.SetSpool(spool)
		a.tree.AddDataService(wal.NewReplayer(spool, events, cfg.WAL.RetryInterval, cfg.WAL.MaxRetries))
		checks = append(checks, api.Check{Name: "wal", Fn: func(context.Context) error {
			_, err := spool.Len()
			return err
		}})
	}

	if cfg.NATS.Enabled {
		sub, err := eventprocessor.NewSubscriber(&cfg.NATS, nil)
		if err != nil {
			return nil, err
		}
		a.onClose("nats-subscriber", sub)
		a.tree.AddProcessingService(eventprocessor.NewIngester(sub, cfg.NATS.EventsTopic, dispatcher, cfg.Alerting.Policy()))
	}

	if cfg.Batch.Enabled {
		analyzer := detection.NewBatchAnalyzer(events, engine, cfg.Batch.PageSize)
		a.tree.AddProcessingService(services.NewBatchScheduler(analyzer, services.BatchSchedulerConfig{
			Interval:      cfg.Batch.Interval,
			Window:        cfg.Batch.Window,
			Organizations: cfg.Batch.Organizations,
			Thresholds:    cfg.Detection.Thresholds,
		}))
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(checks...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.tree.AddAPIService(services.NewHTTPServerService(server, services.HTTPServiceConfig{
		Name:            "ops-http",
		Addr:            server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}))

	logging.Info().
		Str("addr", server.Addr).
		Bool("wal", cfg.WAL.Enabled).
		Bool("nats", cfg.NATS.Enabled).
		Bool("batch", cfg.Batch.Enabled).
		Bool("webhook", cfg.Webhook.Enabled).
		Bool("redis", cfg.Redis.Enabled).
		Msg("AccessGuard initialized")
	return a, nil
}

// buildSinks returns the DuckDB notification store as primary sink with
// webhook and NATS copies as secondaries.
func buildSinks(cfg *config.Config, db *database.DB) (*alerting.MultiSink, message.Publisher, error) {
	var secondaries []alerting.NotificationSink

	if cfg.Webhook.Enabled {
		secondaries = append(secondaries, alerting.NewWebhookSink(alerting.WebhookConfig{
			URL:       cfg.Webhook.URL,
			Timeout:   cfg.Webhook.Timeout,
			RateLimit: cfg.Webhook.RateLimit,
			Burst:     cfg.Webhook.Burst,
		}))
	}

	var publisher message.Publisher
	if cfg.NATS.Enabled && cfg.NATS.PublishNotification {
		pub, err := eventprocessor.NewPublisher(&cfg.NATS, nil)
		if err != nil {
			return nil, nil, err
		}
		sink, err := eventprocessor.NewNotificationPublisher(pub, cfg.NATS.NotificationsTopic)
		if err != nil {
			return nil, nil, errors.Join(err, pub.Close())
		}
		publisher = pub
		secondaries = append(secondaries, sink)
	}

	primary := alerting.NewDuckDBNotificationStore(db.Conn())
	return alerting.NewMultiSink(primary, cfg.Alerting.NotifyTimeout, secondaries...), publisher, nil
}

// buildGate picks the escalation cooldown gate. A zero cooldown disables
// it; Redis shares it across instances; otherwise a bounded in-process
// counter is used and returned so its sweeper can be supervised.
func buildGate(cfg *config.Config) (alerting.EscalationGate, *cache.WindowCounter, *redis.Client) {
	cooldown := cfg.Alerting.EscalationCooldown
	if cooldown <= 0 {
		logging.Warn().Msg("Escalation cooldown disabled, every qualifying event escalates")
		return nil, nil, nil
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			// The gate fails open, so startup continues.
			logging.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable at startup")
		}
		return alerting.NewRedisGate(client, cfg.Redis.Prefix, cooldown), nil, client
	}

	counter := cache.NewWindowCounter(cooldown, cfg.Alerting.EscalationGateSize)
	return alerting.NewMemoryGate(counter), counter, nil
}
