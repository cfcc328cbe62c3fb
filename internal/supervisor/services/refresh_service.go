// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package services

import (
	"context"
	"time"
)

// Refresher matches the client's background refresh loop.
type Refresher interface {
	AutoRefresh(ctx context.Context, interval time.Duration, perSecond float64) error
}

// RefreshService runs the cache auto-refresh loop as a supervised service.
// The loop itself only exits on context cancellation; any other return is a
// crash and suture restarts it with backoff.
type RefreshService struct {
	refresher Refresher
	interval  time.Duration
	perSecond float64
	name      string
}

// NewRefreshService creates the refresh service wrapper.
func NewRefreshService(refresher Refresher, interval time.Duration, perSecond float64) *RefreshService {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	if perSecond <= 0 {
		perSecond = 2
	}
	return &RefreshService{
		refresher: refresher,
		interval:  interval,
		perSecond: perSecond,
		name:      "cache-refresher",
	}
}

// Serve implements suture.Service.
func (s *RefreshService) Serve(ctx context.Context) error {
	return s.refresher.AutoRefresh(ctx, s.interval, s.perSecond)
}

// String identifies the service in suture log messages.
func (s *RefreshService) String() string {
	return s.name
}
