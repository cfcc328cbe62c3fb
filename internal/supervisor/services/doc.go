// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

/*
Package services provides suture.Service wrappers for ticktrack components.

Each wrapper adapts one component's lifecycle to the supervision model:
HTTPServerService converts the blocking ListenAndServe pattern, and
RefreshService runs the cache auto-refresh loop until cancellation. A wrapper
returning a non-context error counts as a crash and suture restarts it with
its backoff policy.
*/
package services
