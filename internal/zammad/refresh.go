// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package zammad

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/ticktrack/internal/logging"
	"github.com/tomtom215/ticktrack/internal/metrics"
)

// RefreshEvent is emitted on the notification channel after each per-key
// refresh attempt so a UI layer can re-render what changed.
type RefreshEvent struct {
	Key string    `json:"key"`
	At  time.Time `json:"at"`
	Err string    `json:"error,omitempty"`
}

// Notifications returns the refresh event stream. The channel is buffered;
// events are dropped, never blocked on, when no one is listening.
func (c *Client) Notifications() <-chan RefreshEvent {
	return c.notifications
}

func (c *Client) emitRefreshEvent(key string, err error) {
	event := RefreshEvent{Key: key, At: c.now()}
	if err != nil {
		event.Err = err.Error()
	}
	select {
	case c.notifications <- event:
	default:
	}
}

// refreshKeys returns every cache key worth refreshing: the persisted ticket
// snapshot keys plus the two defaults, deduplicated.
func (c *Client) refreshKeys() []string {
	seen := map[string]bool{
		CacheKeyAssignedTickets: true,
		CacheKeyAllTickets:      true,
	}
	keys := []string{CacheKeyAssignedTickets, CacheKeyAllTickets}

	stored, err := c.store.TicketSnapshotKeys()
	if err != nil {
		logging.Warn().Err(err).Msg("failed to enumerate ticket snapshot keys for refresh")
		return keys
	}
	for _, key := range stored {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}

// refreshKey re-fetches one cache key with force semantics.
func (c *Client) refreshKey(ctx context.Context, key string) error {
	switch {
	case key == CacheKeyAssignedTickets:
		_, err := c.GetAssignedTickets(ctx, true)
		return err
	case key == CacheKeyAllTickets:
		_, err := c.GetAllTickets(ctx, true)
		return err
	case strings.HasPrefix(key, "user_tickets_"):
		id, err := strconv.Atoi(strings.TrimPrefix(key, "user_tickets_"))
		if err != nil {
			return err
		}
		_, err = c.GetTicketsForUser(ctx, id, true)
		return err
	default:
		logging.Debug().Str("key", key).Msg("unknown cache key skipped during refresh")
		return nil
	}
}

// RefreshOnce re-fetches every known cache key, staggered through the given
// limiter so a refresh burst cannot monopolize the deployment's rate
// budget. Per-key failures are reported through events and metrics, never
// propagated; only context cancellation aborts the run.
func (c *Client) RefreshOnce(ctx context.Context, limiter *rate.Limiter) error {
	if !c.IsInitialized() {
		return nil
	}

	for _, key := range c.refreshKeys() {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := c.refreshKey(ctx, key)
		c.emitRefreshEvent(key, err)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.RefreshRuns.WithLabelValues(key, "error").Inc()
			logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache refresh failed")
			continue
		}
		metrics.RefreshRuns.WithLabelValues(key, "success").Inc()
		metrics.RefreshLastSuccess.WithLabelValues(key).Set(float64(c.now().Unix()))
	}
	return nil
}

// AutoRefresh runs RefreshOnce on the given interval until the context is
// cancelled. perSecond bounds the request rate within each run.
func (c *Client) AutoRefresh(ctx context.Context, interval time.Duration, perSecond float64) error {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Ctx(ctx).Info().Dur("interval", interval).Msg("background cache refresh started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.RefreshOnce(ctx, limiter); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logging.Ctx(ctx).Warn().Err(err).Msg("cache refresh run aborted")
			}
		}
	}
}
