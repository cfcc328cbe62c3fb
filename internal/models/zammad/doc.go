// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

// Package zammad defines the typed response models for the Zammad REST API.
//
// Zammad deployments are not uniform: depending on version and configuration,
// some fields are absent, some endpoints return expanded objects and others
// return id lists with an assets side-table. The models here are intentionally
// permissive (pointer-free, zero values for absent fields) so one struct set
// decodes the shapes of every supported deployment.
package zammad
