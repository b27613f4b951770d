// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

// Package services adapts AccessGuard components to suture.Service.
// Components that already own a Serve loop (the WAL replayer, the NATS
// ingester, the window counter) are added to the tree directly; this
// package holds the adapters for those that do not.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/accessguard/internal/logging"
)

// HTTPServer is the lifecycle subset of *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServiceConfig configures an HTTPServerService.
type HTTPServiceConfig struct {
	// Name identifies the listener in supervisor events and logs.
	Name string
	// Addr is only logged.
	Addr            string
	ShutdownTimeout time.Duration
}

// HTTPServerService runs an HTTP listener under supervision and drains it
// when the context is canceled.
type HTTPServerService struct {
	server HTTPServer
	config HTTPServiceConfig
}

// NewHTTPServerService wraps server. An empty Name uses "http-server" and
// a zero ShutdownTimeout uses 10s.
func NewHTTPServerService(server HTTPServer, config HTTPServiceConfig) *HTTPServerService {
	if config.Name == "" {
		config.Name = "http-server"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, config: config}
}

// Serve implements suture.Service. A listener that stops with
// http.ErrServerClosed returns nil.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	listenErr := make(chan error, 1)
	go func() { listenErr <- h.server.ListenAndServe() }()

	logging.Info().Str("listener", h.config.Name).Str("addr", h.config.Addr).Msg("HTTP listener started")

	select {
	case err := <-listenErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s: listen: %w", h.config.Name, err)
	case <-ctx.Done():
	}

	// The parent is already canceled; draining gets its own deadline.
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.config.ShutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", h.config.Name, err)
	}
	if err := <-listenErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Warn().Err(err).Str("listener", h.config.Name).Msg("HTTP listener exited with error during shutdown")
	}
	logging.Info().Str("listener", h.config.Name).Msg("HTTP listener stopped")
	return ctx.Err()
}

// String implements fmt.Stringer for suture logs.
func (h *HTTPServerService) String() string {
	return h.config.Name
}
