// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Load reads the process environment, so these tests cannot run in
// parallel with each other.

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8484 {
		t.Errorf("port = %d, want 8484", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host = %q, want localhost-only default", cfg.Server.Host)
	}
	if cfg.Cache.TicketTTL != 5*time.Minute {
		t.Errorf("ticket ttl = %v, want 5m", cfg.Cache.TicketTTL)
	}
	if cfg.Cache.CustomerTTL != time.Hour {
		t.Errorf("customer ttl = %v, want 1h", cfg.Cache.CustomerTTL)
	}
	if cfg.Cache.TimeEntryTTL != 10*time.Minute {
		t.Errorf("time entry ttl = %v, want 10m", cfg.Cache.TimeEntryTTL)
	}
	if cfg.Cache.AutoRefresh {
		t.Error("auto refresh should default to off")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("ZAMMAD_URL", "https://support.example.com")
	t.Setenv("ZAMMAD_REQUEST_TIMEOUT", "5s")
	t.Setenv("ZAMMAD_USER_IDS", "7, 9,12")
	t.Setenv("CACHE_AUTO_REFRESH", "true")
	t.Setenv("SERVER_CORS_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Zammad.URL != "https://support.example.com" {
		t.Errorf("url = %q", cfg.Zammad.URL)
	}
	if cfg.Zammad.RequestTimeout != 5*time.Second {
		t.Errorf("request timeout = %v, want 5s", cfg.Zammad.RequestTimeout)
	}
	if len(cfg.Zammad.UserIDs) != 3 || cfg.Zammad.UserIDs[0] != 7 || cfg.Zammad.UserIDs[2] != 12 {
		t.Errorf("user ids = %v, want [7 9 12]", cfg.Zammad.UserIDs)
	}
	if !cfg.Cache.AutoRefresh {
		t.Error("auto refresh should be enabled")
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Errorf("cors origins = %v, want 2 entries", cfg.Server.CORSOrigins)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9999
cache:
  ticket_ttl: 90s
logging:
  format: console
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want the file's 9999", cfg.Server.Port)
	}
	if cfg.Cache.TicketTTL != 90*time.Second {
		t.Errorf("ticket ttl = %v, want 90s", cfg.Cache.TicketTTL)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("format = %q, want console", cfg.Logging.Format)
	}
	// Settings the file does not mention stay at their defaults.
	if cfg.Cache.CustomerTTL != time.Hour {
		t.Errorf("customer ttl = %v, want the 1h default", cfg.Cache.CustomerTTL)
	}
}

func TestEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("SERVER_PORT", "7777")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, environment must beat the file", cfg.Server.Port)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad url", "ZAMMAD_URL", "not a url"},
		{"ftp scheme", "ZAMMAD_URL", "ftp://x.example.com"},
		{"port too large", "SERVER_PORT", "70000"},
		{"zero timeout", "ZAMMAD_REQUEST_TIMEOUT", "0s"},
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"bad log format", "LOG_FORMAT", "xml"},
		{"non-numeric user id", "ZAMMAD_USER_IDS", "7,abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%q loaded without error", tt.key, tt.value)
			}
		})
	}
}

func TestValidateDirectly(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg = defaultConfig()
	cfg.Cache.TicketTTL = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("negative TTL should fail validation")
	}

	cfg = defaultConfig()
	cfg.Cache.AutoRefresh = true
	cfg.Cache.AutoRefreshInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("auto refresh without an interval should fail validation")
	}
}
