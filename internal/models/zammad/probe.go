// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package zammad

// VersionResponse is the /api/v1/version probe response.
type VersionResponse struct {
	Version string `json:"version"`
}

// AboutResponse is the secondary version source. Some deployments expose it
// where /version is admin-only.
type AboutResponse struct {
	Version string `json:"version"`
	Build   string `json:"build,omitempty"`
}
