// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package zammad

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/ticktrack/internal/logging"
	"github.com/tomtom215/ticktrack/internal/metrics"
	"github.com/tomtom215/ticktrack/internal/models/zammad"
)

// timeValueEpsilon is the magnitude below which a submitted time value is
// treated as zero and the submission becomes a successful no-op. Negative
// values above the epsilon are valid corrections.
const timeValueEpsilon = 0.001

// timeHistoryKeyPrefix groups the per-user history keys so a time-entry
// write can blow them all away in one prefix delete.
const timeHistoryKeyPrefix = "timeHistory_"

// TimeEntriesCacheKey is the per-ticket time-entry cache key.
func TimeEntriesCacheKey(ticketID int) string {
	return fmt.Sprintf("timeEntries_%d", ticketID)
}

// TimeHistoryCacheKey is the per-user time-history cache key.
func TimeHistoryCacheKey(userID int) string {
	return timeHistoryKeyPrefix + strconv.Itoa(userID)
}

var timeEntryListCandidates = []Endpoint{
	{Method: http.MethodGet, PathTemplate: "/api/v1/tickets/" + idToken + "/time_accountings"},
	{Method: http.MethodGet, PathTemplate: "/api/v1/time_accountings?ticket_id=" + idToken},
}

var timeEntrySubmitCandidates = []Endpoint{
	{Method: http.MethodPost, PathTemplate: "/api/v1/tickets/" + idToken + "/time_accountings"},
	{Method: http.MethodPost, PathTemplate: "/api/v1/time_accountings"},
}

// timeHistoryAdminCandidates are the cross-ticket listing endpoints that
// only admin-permissioned tokens can use. Their responses cover every user,
// which is why the caller always re-filters to the requested user.
var timeHistoryAdminCandidates = []Endpoint{
	{Method: http.MethodGet, PathTemplate: "/api/v1/time_accountings?limit=1000"},
	{Method: http.MethodGet, PathTemplate: "/api/v1/time_accountings"},
}

// GetTimeEntries returns the time-accounting records of one ticket,
// served from the per-key cache unless forced. Concurrent calls for the
// same ticket collapse into one remote request.
func (c *Client) GetTimeEntries(ctx context.Context, ticketID int, force bool) ([]zammad.TimeEntry, error) {
	if ticketID <= 0 {
		return nil, &ValidationError{Field: "ticket_id", Reason: "ticket id must be positive"}
	}

	key := TimeEntriesCacheKey(ticketID)
	if !force {
		if entries, ok := c.cachedTimeEntries(key); ok {
			return entries, nil
		}
	}

	result, err, shared := c.flight.Do("timeentries:"+key, func() (any, error) {
		raw, err := c.requestWithFallback(ctx, ResourceTimeEntryList, strconv.Itoa(ticketID), nil, timeEntryListCandidates, requestOptions{})
		if err != nil {
			return nil, err
		}

		var entries []zammad.TimeEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("decode time entries for ticket %d: %w", ticketID, err)
		}

		c.cacheTimeEntries(key, entries)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		metrics.DeduplicatedRequests.Inc()
	}
	return result.([]zammad.TimeEntry), nil
}

// SubmitTimeEntry records time on a ticket.
//
// Values within the epsilon of zero are accepted and dropped without a
// remote call; submitting "nothing" is not an error. NaN and infinities are
// rejected. On success the ticket's time-entry cache key is invalidated and
// every time-history key cleared, since history is derived data.
func (c *Client) SubmitTimeEntry(ctx context.Context, req zammad.SubmitTimeEntryRequest) (*zammad.TimeEntry, error) {
	if req.TicketID <= 0 {
		return nil, &ValidationError{Field: "ticket_id", Reason: "ticket id must be positive"}
	}
	if !validTimeValue(req.TimeUnit) {
		return nil, &ValidationError{Field: "time_unit", Reason: "time value must be a finite number"}
	}
	if math.Abs(req.TimeUnit) < timeValueEpsilon {
		logging.Ctx(ctx).Debug().Int("ticket_id", req.TicketID).Msg("near-zero time value, submission skipped")
		return nil, nil
	}

	raw, err := c.requestWithFallback(ctx, ResourceTimeEntrySubmit, strconv.Itoa(req.TicketID), req, timeEntrySubmitCandidates, requestOptions{})
	if err != nil {
		return nil, err
	}

	var entry zammad.TimeEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// Some deployments answer the create with an empty body. The write
		// went through either way.
		entry = zammad.TimeEntry{TicketID: req.TicketID, TimeUnit: zammad.TimeUnit(req.TimeUnit)}
	}

	c.invalidateAfterTimeWrite(req.TicketID)
	return &entry, nil
}

// UpdateTimeEntry changes an existing record. Both ids and a non-empty
// payload are required.
func (c *Client) UpdateTimeEntry(ctx context.Context, entryID, ticketID int, payload map[string]any) (*zammad.TimeEntry, error) {
	if entryID <= 0 {
		return nil, &ValidationError{Field: "entry_id", Reason: "entry id must be positive"}
	}
	if ticketID <= 0 {
		return nil, &ValidationError{Field: "ticket_id", Reason: "ticket id must be positive"}
	}
	if len(payload) == 0 {
		return nil, &ValidationError{Field: "payload", Reason: "update payload must not be empty"}
	}
	if v, ok := payload["time_unit"]; ok {
		if f, isFloat := v.(float64); isFloat && !validTimeValue(f) {
			return nil, &ValidationError{Field: "time_unit", Reason: "time value must be a finite number"}
		}
	}

	paths := []string{
		fmt.Sprintf("/api/v1/tickets/%d/time_accountings/%d", ticketID, entryID),
		fmt.Sprintf("/api/v1/time_accountings/%d", entryID),
	}

	var lastErr error
	for _, path := range paths {
		result, err := c.executeRequest(ctx, http.MethodPut, path, payload, requestOptions{})
		if err != nil {
			lastErr = err
			continue
		}
		var entry zammad.TimeEntry
		if decodeErr := result.Decode(&entry); decodeErr != nil {
			entry = zammad.TimeEntry{ID: entryID, TicketID: ticketID}
		}
		c.invalidateAfterTimeWrite(ticketID)
		return &entry, nil
	}
	return nil, lastErr
}

// DeleteTimeEntry removes a time-accounting record. When the ticket id is
// unknown (zero) it is discovered by fetching the entry first. A 404 from
// the deployment means the record is already gone, which counts as success.
func (c *Client) DeleteTimeEntry(ctx context.Context, entryID, ticketID int) error {
	if entryID <= 0 {
		return &ValidationError{Field: "entry_id", Reason: "entry id must be positive"}
	}

	if ticketID == 0 {
		if entry, err := c.lookupTimeEntry(ctx, entryID); err == nil {
			ticketID = entry.TicketID
		}
	}

	var paths []string
	if ticketID > 0 {
		paths = append(paths, fmt.Sprintf("/api/v1/tickets/%d/time_accountings/%d", ticketID, entryID))
	}
	paths = append(paths, fmt.Sprintf("/api/v1/time_accountings/%d", entryID))

	var lastErr error
	for _, path := range paths {
		_, err := c.executeRequest(ctx, http.MethodDelete, path, nil, requestOptions{})
		if err == nil || isNotFound(err) {
			c.invalidateAfterTimeWrite(ticketID)
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// lookupTimeEntry fetches one record by id, used for ticket discovery
// before a delete.
func (c *Client) lookupTimeEntry(ctx context.Context, entryID int) (*zammad.TimeEntry, error) {
	result, err := c.executeRequest(ctx, http.MethodGet, "/api/v1/time_accountings/"+strconv.Itoa(entryID), nil, requestOptions{})
	if err != nil {
		return nil, err
	}
	var entry zammad.TimeEntry
	if err := result.Decode(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetTimeHistory returns the user's accounted time across tickets, newest
// first.
//
// Admin-permissioned deployments answer from the cross-ticket listing
// endpoints; their responses cover every user and are always re-filtered to
// the requested one. Without admin access the history is derived instead:
// the user's assigned tickets (capped) are enumerated and their time entries
// fetched in parallel. The derived path is memoized so later calls skip the
// admin probing.
func (c *Client) GetTimeHistory(ctx context.Context, userID int, force bool) ([]zammad.TimeEntry, error) {
	if userID <= 0 {
		return nil, &ValidationError{Field: "user_id", Reason: "user id must be positive"}
	}

	key := TimeHistoryCacheKey(userID)
	if !force {
		if entries, ok := c.cachedTimeEntries(key); ok {
			return entries, nil
		}
	}

	result, err, shared := c.flight.Do("timehistory:"+key, func() (any, error) {
		entries, err := c.fetchTimeHistory(ctx, userID)
		if err != nil {
			return nil, err
		}
		c.cacheTimeEntries(key, entries)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		metrics.DeduplicatedRequests.Inc()
	}
	return result.([]zammad.TimeEntry), nil
}

func (c *Client) fetchTimeHistory(ctx context.Context, userID int) ([]zammad.TimeEntry, error) {
	if c.memoFor(ResourceTimeHistory) != derivedHistoryTemplate {
		raw, err := c.requestWithFallback(ctx, ResourceTimeHistory, "", nil, timeHistoryAdminCandidates, requestOptions{})
		if err == nil {
			var all []zammad.TimeEntry
			if decodeErr := json.Unmarshal(raw, &all); decodeErr == nil {
				return filterAndSortHistory(all, userID), nil
			}
		}
		logging.Ctx(ctx).Debug().Int("user_id", userID).
			Msg("admin time listing unavailable, deriving history from assigned tickets")
	}

	entries, err := c.deriveTimeHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.rememberEndpoint(ResourceTimeHistory, derivedHistoryTemplate)
	return entries, nil
}

// deriveTimeHistory reconstructs a user's history from their assigned
// tickets when no cross-ticket listing is available. The enumeration is
// capped and the per-ticket fetches run in parallel; a single failing
// ticket degrades the result instead of failing it.
func (c *Client) deriveTimeHistory(ctx context.Context, userID int) ([]zammad.TimeEntry, error) {
	tickets, err := c.GetTicketsForUser(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	if len(tickets) > c.opts.HistoryTicketCap {
		// Keep the most recently updated tickets; the endpoint's own order
		// is not guaranteed. UpdatedAt is ISO 8601, so string comparison
		// sorts correctly.
		sorted := make([]zammad.Ticket, len(tickets))
		copy(sorted, tickets)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].UpdatedAt > sorted[j].UpdatedAt
		})
		logging.Ctx(ctx).Debug().Int("tickets", len(tickets)).Int("cap", c.opts.HistoryTicketCap).
			Msg("capping ticket enumeration for derived time history")
		tickets = sorted[:c.opts.HistoryTicketCap]
	}

	var mu sync.Mutex
	var all []zammad.TimeEntry
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, ticket := range tickets {
		g.Go(func() error {
			entries, err := c.GetTimeEntries(gctx, ticket.ID, false)
			if err != nil {
				logging.Ctx(gctx).Debug().Err(err).Int("ticket_id", ticket.ID).
					Msg("skipping ticket in derived time history")
				return nil
			}
			mu.Lock()
			all = append(all, entries...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filterAndSortHistory(all, userID), nil
}

// filterAndSortHistory keeps the given user's entries and orders them newest
// first. CreatedAt is ISO 8601, so string comparison sorts correctly.
func filterAndSortHistory(entries []zammad.TimeEntry, userID int) []zammad.TimeEntry {
	out := make([]zammad.TimeEntry, 0, len(entries))
	for _, e := range entries {
		if e.BelongsTo(userID) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out
}

// cachedTimeEntries serves one time-entry key from the in-memory TTL cache,
// warming from the persisted tier when cold. Each key expires on its own
// timestamp.
func (c *Client) cachedTimeEntries(key string) ([]zammad.TimeEntry, bool) {
	if value, ok := c.timeEntries.Get(key); ok {
		metrics.CacheHits.WithLabelValues("time_entries").Inc()
		return value.([]zammad.TimeEntry), true
	}

	entries, stamp, found, err := c.store.LoadTimeEntrySnapshot(key)
	if err == nil && found && !stamp.IsZero() {
		if remaining := c.opts.TimeEntryTTL - c.now().Sub(stamp); remaining > 0 {
			c.timeEntries.SetWithTTL(key, entries, remaining)
			metrics.CacheHits.WithLabelValues("time_entries").Inc()
			return entries, true
		}
		c.store.DeleteTimeEntrySnapshot(key)
	}

	metrics.CacheMisses.WithLabelValues("time_entries").Inc()
	return nil, false
}

// cacheTimeEntries stores one key in both tiers with a fresh timestamp.
func (c *Client) cacheTimeEntries(key string, entries []zammad.TimeEntry) {
	c.timeEntries.Set(key, entries)
	c.store.SaveTimeEntrySnapshot(key, entries, c.now())
}

// invalidateAfterTimeWrite drops the written ticket's time-entry key and
// every history key in both tiers.
func (c *Client) invalidateAfterTimeWrite(ticketID int) {
	if ticketID > 0 {
		key := TimeEntriesCacheKey(ticketID)
		c.timeEntries.Delete(key)
		c.store.DeleteTimeEntrySnapshot(key)
	}
	if n := c.timeEntries.DeletePrefix(timeHistoryKeyPrefix); n > 0 {
		metrics.CacheEvictions.WithLabelValues("time_entries").Add(float64(n))
	}
	c.store.DeleteTimeEntrySnapshots(timeHistoryKeyPrefix)
}

// isNotFound reports whether err is an HTTP 404 from the deployment.
func isNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}
