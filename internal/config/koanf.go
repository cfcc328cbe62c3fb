// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/ticktrack/config.yaml",
	"/etc/ticktrack/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// envSections maps the leading environment variable segment to its koanf
// section. ZAMMAD_REQUEST_TIMEOUT becomes zammad.request_timeout, LOG_LEVEL
// becomes logging.level. Variables outside these prefixes are ignored.
var envSections = map[string]string{
	"ZAMMAD": "zammad",
	"CACHE":  "cache",
	"STORE":  "store",
	"SERVER": "server",
	"LOG":    "logging",
}

// Load builds the configuration from layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
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

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := normalizeSliceFields(k); err != nil {
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

// envTransformFunc maps environment variable names to koanf paths.
// ZAMMAD_URL -> zammad.url, CACHE_TICKET_TTL -> cache.ticket_ttl.
// Returns "" for variables that do not belong to a known section.
func envTransformFunc(s string) string {
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return ""
	}
	section, ok := envSections[parts[0]]
	if !ok {
		return ""
	}
	return section + "." + strings.ToLower(parts[1])
}

// normalizeSliceFields converts comma-separated string values into slices for
// the fields declared as slices. Environment variables can only carry flat
// strings; "SERVER_CORS_ORIGINS=a,b" must become ["a","b"].
func normalizeSliceFields(k *koanf.Koanf) error {
	if s, ok := k.Get("server.cors_origins").(string); ok {
		var items []string
		for _, item := range strings.Split(s, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}
		if err := k.Set("server.cors_origins", items); err != nil {
			return fmt.Errorf("set server.cors_origins: %w", err)
		}
	}

	if s, ok := k.Get("zammad.user_ids").(string); ok {
		var ids []int
		for _, item := range strings.Split(s, ",") {
			trimmed := strings.TrimSpace(item)
			if trimmed == "" {
				continue
			}
			id, err := strconv.Atoi(trimmed)
			if err != nil {
				return fmt.Errorf("ZAMMAD_USER_IDS entry %q is not an integer", trimmed)
			}
			ids = append(ids, id)
		}
		if err := k.Set("zammad.user_ids", ids); err != nil {
			return fmt.Errorf("set zammad.user_ids: %w", err)
		}
	}
	return nil
}

// findConfigFile returns the first existing config file path, or "".
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
