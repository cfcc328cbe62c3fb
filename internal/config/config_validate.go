// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that the configuration is structurally sound.
//
// The Zammad URL and token are deliberately NOT required here: the daemon can
// start unconfigured and receive its connection through the API surface (the
// client persists it). Validation only rejects values that are present but
// malformed.
func (c *Config) Validate() error {
	if err := c.validateZammad(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateZammad() error {
	if c.Zammad.URL != "" {
		u, err := url.Parse(c.Zammad.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("ZAMMAD_URL %q is not a valid URL (expected e.g. https://support.example.com)", c.Zammad.URL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("ZAMMAD_URL scheme must be http or https, got %q", u.Scheme)
		}
	}
	if c.Zammad.RequestTimeout <= 0 {
		return fmt.Errorf("ZAMMAD_REQUEST_TIMEOUT must be positive, got %s", c.Zammad.RequestTimeout)
	}
	if c.Zammad.ValidationTimeout <= 0 {
		return fmt.Errorf("ZAMMAD_VALIDATION_TIMEOUT must be positive, got %s", c.Zammad.ValidationTimeout)
	}
	if c.Zammad.UserPageSize <= 0 {
		return fmt.Errorf("ZAMMAD_USER_PAGE_SIZE must be positive, got %d", c.Zammad.UserPageSize)
	}
	if c.Zammad.HistoryTicketCap <= 0 {
		return fmt.Errorf("ZAMMAD_HISTORY_TICKET_CAP must be positive, got %d", c.Zammad.HistoryTicketCap)
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.TicketTTL <= 0 || c.Cache.CustomerTTL <= 0 || c.Cache.TimeEntryTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive (ticket=%s customer=%s time_entry=%s)",
			c.Cache.TicketTTL, c.Cache.CustomerTTL, c.Cache.TimeEntryTTL)
	}
	if c.Cache.AutoRefresh && c.Cache.AutoRefreshInterval <= 0 {
		return fmt.Errorf("CACHE_AUTO_REFRESH_INTERVAL must be positive when auto refresh is enabled")
	}
	if c.Cache.RefreshRate <= 0 {
		return fmt.Errorf("CACHE_REFRESH_RATE must be positive, got %g", c.Cache.RefreshRate)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("SERVER_TIMEOUT must be positive, got %s", c.Server.Timeout)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("SERVER_RATE_LIMIT must be >= 0, got %d", c.Server.RateLimit)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not valid (trace, debug, info, warn, error)", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT %q is not valid (json, console)", c.Logging.Format)
	}
	return nil
}
