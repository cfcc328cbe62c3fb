// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

// Package config provides layered configuration management using Koanf v2.
//
// Precedence: environment variables > YAML config file > built-in defaults.
// See Config and its section structs for the supported settings and their
// environment variable names.
package config
