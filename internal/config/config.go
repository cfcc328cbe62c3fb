// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package config

import (
	"time"
)

// Config holds all application configuration, loaded in three layers:
// built-in defaults, then an optional YAML config file, then environment
// variables (highest priority).
//
// Config is immutable after Load() and safe for concurrent read access.
//
// Note that the Zammad connection settings here are only the bootstrap:
// the client persists the last connection it was initialized with in its
// key-value store, and a connection configured at runtime through the API
// surface survives restarts independently of this file.
type Config struct {
	Zammad  ZammadConfig  `koanf:"zammad"`
	Cache   CacheConfig   `koanf:"cache"`
	Store   StoreConfig   `koanf:"store"`
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
}

// ZammadConfig holds the remote Zammad deployment settings.
//
// Environment Variables:
//   - ZAMMAD_URL: Deployment base URL (e.g. https://support.example.com)
//   - ZAMMAD_TOKEN: API access token (Profile > Token Access)
//   - ZAMMAD_USER_IDS: Additional user ids whose boards are tracked (comma-separated)
//   - ZAMMAD_REQUEST_TIMEOUT: Per-request timeout (default: 30s)
//   - ZAMMAD_VALIDATION_TIMEOUT: Background token validation timeout (default: 10s)
type ZammadConfig struct {
	URL               string        `koanf:"url"`
	Token             string        `koanf:"token"`
	UserIDs           []int         `koanf:"user_ids"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	ValidationTimeout time.Duration `koanf:"validation_timeout"`
	UserPageSize      int           `koanf:"user_page_size"`
	HistoryTicketCap  int           `koanf:"history_ticket_cap"`
}

// CacheConfig holds the cache TTLs and background refresh settings.
//
// The ticket and customer caches expire as a whole (one shared timestamp
// each); the time-entry cache expires per key. These semantics are fixed;
// only the windows are tunable.
//
// Environment Variables:
//   - CACHE_TICKET_TTL: Ticket cache TTL (default: 5m)
//   - CACHE_CUSTOMER_TTL: Customer cache TTL (default: 1h)
//   - CACHE_TIME_ENTRY_TTL: Time-entry cache TTL (default: 10m)
//   - CACHE_AUTO_REFRESH: Enable background ticket refresh (default: false)
//   - CACHE_AUTO_REFRESH_INTERVAL: Refresh interval (default: 2m)
//   - CACHE_REFRESH_RATE: Max remote calls per second during refresh (default: 2)
type CacheConfig struct {
	TicketTTL           time.Duration `koanf:"ticket_ttl"`
	CustomerTTL         time.Duration `koanf:"customer_ttl"`
	TimeEntryTTL        time.Duration `koanf:"time_entry_ttl"`
	AutoRefresh         bool          `koanf:"auto_refresh"`
	AutoRefreshInterval time.Duration `koanf:"auto_refresh_interval"`
	RefreshRate         float64       `koanf:"refresh_rate"`
}

// StoreConfig holds the BadgerDB persistence settings.
//
// Environment Variables:
//   - STORE_PATH: Database directory (default: /data/ticktrack)
//   - STORE_IN_MEMORY: Run without disk persistence, for tests (default: false)
type StoreConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// ServerConfig holds the local HTTP surface settings.
//
// Environment Variables:
//   - SERVER_HOST, SERVER_PORT: Listen address (default: 127.0.0.1:8484)
//   - SERVER_TIMEOUT: Read/write timeout (default: 30s)
//   - SERVER_CORS_ORIGINS: Allowed CORS origins, comma-separated
//   - SERVER_RATE_LIMIT: Requests per minute per client (default: 300, 0 disables)
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	CORSOrigins []string      `koanf:"cors_origins"`
	RateLimit   int           `koanf:"rate_limit"`
}

// LoggingConfig holds log output settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. These are layered
// first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Zammad: ZammadConfig{
			URL:               "",
			Token:             "",
			RequestTimeout:    30 * time.Second,
			ValidationTimeout: 10 * time.Second,
			UserPageSize:      100,
			HistoryTicketCap:  50,
		},
		Cache: CacheConfig{
			TicketTTL:           5 * time.Minute,
			CustomerTTL:         time.Hour,
			TimeEntryTTL:        10 * time.Minute,
			AutoRefresh:         false,
			AutoRefreshInterval: 2 * time.Minute,
			RefreshRate:         2,
		},
		Store: StoreConfig{
			Path:     "/data/ticktrack",
			InMemory: false,
		},
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8484,
			Timeout:     30 * time.Second,
			CORSOrigins: []string{"*"},
			RateLimit:   300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
