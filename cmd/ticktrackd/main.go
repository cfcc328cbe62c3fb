// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

// Package main is the entry point for the ticktrackd daemon.
//
// Ticktrackd is a local companion daemon for time tracking against a Zammad
// helpdesk. It owns a resilient Zammad API client with endpoint fallback and
// feature detection, a persistent multi-tier cache (BadgerDB), and a small
// localhost HTTP surface that UI layers (browser extension, desktop widget,
// scripts) talk to.
//
// # Startup order
//
//  1. Configuration: Koanf v2 layered loading (defaults, config.yaml,
//     environment variables)
//  2. Logging: zerolog global logger
//  3. Store: BadgerDB at STORE_PATH (or in-memory for tests)
//  4. Client: Zammad API client, restoring persisted connection state
//  5. Supervisor tree: background refresher plus the HTTP server
//
// # Configuration
//
// Environment variables (highest priority):
//
//	ZAMMAD_URL, ZAMMAD_TOKEN           connection (optional; can also be set
//	                                   at runtime via POST /api/v1/connection)
//	CACHE_AUTO_REFRESH                 enable the background refresher
//	STORE_PATH                         BadgerDB directory
//	SERVER_HOST, SERVER_PORT           HTTP bind address (default 127.0.0.1:8484)
//	LOG_LEVEL, LOG_FORMAT              logging
//
// # Signal handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, background tasks are canceled, and the store is
// closed last so every cache write lands.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/ticktrack/internal/api"
	"github.com/tomtom215/ticktrack/internal/config"
	"github.com/tomtom215/ticktrack/internal/logging"
	"github.com/tomtom215/ticktrack/internal/store"
	"github.com/tomtom215/ticktrack/internal/supervisor"
	"github.com/tomtom215/ticktrack/internal/supervisor/services"
	"github.com/tomtom215/ticktrack/internal/zammad"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("store", cfg.Store.Path).Msg("starting ticktrackd")

	st, err := store.Open(cfg.Store.Path, cfg.Store.InMemory)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("store close failed")
		}
	}()

	client := zammad.New(st, zammad.Options{
		TicketTTL:         cfg.Cache.TicketTTL,
		CustomerTTL:       cfg.Cache.CustomerTTL,
		TimeEntryTTL:      cfg.Cache.TimeEntryTTL,
		RequestTimeout:    cfg.Zammad.RequestTimeout,
		ValidationTimeout: cfg.Zammad.ValidationTimeout,
		UserPageSize:      cfg.Zammad.UserPageSize,
		HistoryTicketCap:  cfg.Zammad.HistoryTicketCap,
	})
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A preconfigured connection initializes immediately; otherwise the
	// daemon waits for POST /api/v1/connection.
	if cfg.Zammad.URL != "" && cfg.Zammad.Token != "" {
		if err := client.Initialize(ctx, cfg.Zammad.URL, cfg.Zammad.Token); err != nil {
			logging.Fatal().Err(err).Msg("failed to initialize Zammad connection")
		}
		if len(cfg.Zammad.UserIDs) > 0 {
			client.SetExtraUserIDs(cfg.Zammad.UserIDs)
		}
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	if cfg.Cache.AutoRefresh {
		tree.AddWorkerService(services.NewRefreshService(client, cfg.Cache.AutoRefreshInterval, cfg.Cache.RefreshRate))
		logging.Info().Dur("interval", cfg.Cache.AutoRefreshInterval).Msg("background cache refresh enabled")
	}

	mw := api.DefaultMiddlewareConfig()
	mw.CORSAllowedOrigins = cfg.Server.CORSOrigins
	mw.RateLimitRequests = cfg.Server.RateLimit

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(client, mw),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      0, // event stream endpoints hold connections open
		IdleTimeout:       120 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	logging.Info().Str("addr", server.Addr).Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	stop()
	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service missed shutdown timeout")
		}
	}
	logging.Info().Msg("ticktrackd stopped")
}
