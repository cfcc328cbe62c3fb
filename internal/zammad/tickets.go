// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package zammad

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ticktrack/internal/logging"
	"github.com/tomtom215/ticktrack/internal/metrics"
	"github.com/tomtom215/ticktrack/internal/models/zammad"
)

// Ticket cache keys. Every key shares the single ticket freshness stamp:
// the whole tier ages as one unit.
const (
	CacheKeyAssignedTickets = "assigned_tickets"
	CacheKeyAllTickets      = "all_tickets"
)

// CacheKeyUserTickets is the ticket cache key for one user's tickets.
func CacheKeyUserTickets(userID int) string {
	return fmt.Sprintf("user_tickets_%d", userID)
}

// ticketShowCandidates resolves a single ticket: direct show first, then
// search by ticket number for deployments where show is restricted.
var ticketShowCandidates = []Endpoint{
	{Method: http.MethodGet, PathTemplate: "/api/v1/tickets/" + idToken},
	{Method: http.MethodGet, PathTemplate: "/api/v1/tickets/search?query=number:" + idToken + "&expand=true&limit=5"},
	{Method: http.MethodGet, PathTemplate: "/api/v1/tickets/search?number=" + idToken + "&limit=5"},
}

// ticketQueryCandidates run a ticket search: expanded search first, plain
// search second, and the unfiltered list endpoint as the last resort (the
// query is ignored there, which is why callers re-filter client-side).
var ticketQueryCandidates = []Endpoint{
	{Method: http.MethodGet, PathTemplate: "/api/v1/tickets/search?query=" + idToken + "&expand=true&limit=200"},
	{Method: http.MethodGet, PathTemplate: "/api/v1/tickets/search?query=" + idToken + "&limit=200"},
	{Method: http.MethodGet, PathTemplate: "/api/v1/tickets?expand=true&per_page=200"},
}

// GetTicket fetches one ticket by id or number.
func (c *Client) GetTicket(ctx context.Context, id string) (*zammad.Ticket, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id", Reason: "ticket id is required"}
	}

	raw, err := c.requestWithFallback(ctx, ResourceTicketShow, url.PathEscape(id), nil, ticketShowCandidates, requestOptions{})
	if err != nil {
		return nil, err
	}

	// Show returns a single object, the search fallbacks return a list.
	var ticket zammad.Ticket
	if decodeErr := json.Unmarshal(raw, &ticket); decodeErr == nil && ticket.ID != 0 {
		enhanced := c.EnhanceTicketsWithCustomerData(ctx, []zammad.Ticket{ticket})
		return &enhanced[0], nil
	}

	tickets, err := zammad.DecodeTicketList(raw)
	if err != nil {
		return nil, fmt.Errorf("decode ticket %s: %w", id, err)
	}
	for _, t := range tickets {
		if strconv.Itoa(t.ID) == id || t.Number == id {
			enhanced := c.EnhanceTicketsWithCustomerData(ctx, []zammad.Ticket{t})
			return &enhanced[0], nil
		}
	}
	return nil, &HTTPError{StatusCode: http.StatusNotFound, Status: "404 Not Found", Detail: "ticket " + id + " not found"}
}

// GetAssignedTickets returns the tickets assigned to the current user.
// force bypasses the cache and the incremental watermark.
func (c *Client) GetAssignedTickets(ctx context.Context, force bool) ([]zammad.Ticket, error) {
	me, err := c.CurrentUser(ctx, false)
	if err != nil {
		return nil, err
	}
	return c.fetchTicketList(ctx, ResourceAssignedTickets, CacheKeyAssignedTickets,
		fmt.Sprintf("owner.id:%d", me.ID), me.ID, force)
}

// GetAllTickets returns all tickets visible to the token.
func (c *Client) GetAllTickets(ctx context.Context, force bool) ([]zammad.Ticket, error) {
	return c.fetchTicketList(ctx, ResourceAllTickets, CacheKeyAllTickets, "*", 0, force)
}

// GetTicketsForUser returns the tickets owned by the given user.
func (c *Client) GetTicketsForUser(ctx context.Context, userID int, force bool) ([]zammad.Ticket, error) {
	if userID <= 0 {
		return nil, &ValidationError{Field: "user_id", Reason: "user id must be positive"}
	}
	return c.fetchTicketList(ctx, ResourceUserTickets, CacheKeyUserTickets(userID),
		fmt.Sprintf("owner.id:%d", userID), userID, force)
}

// fetchTicketList serves one ticket cache key: cache first, then a
// deduplicated remote fetch through the fallback chain.
//
// Unless forced, a non-zero watermark narrows the search to tickets updated
// since the last successful fetch. The narrowed result still replaces the
// cached list wholesale; tickets outside the window drop out until the next
// full fetch, which the log warning makes visible.
func (c *Client) fetchTicketList(ctx context.Context, kind ResourceKind, key, query string, ownerID int, force bool) ([]zammad.Ticket, error) {
	if !force {
		if tickets, ok := c.getCachedTickets(key); ok {
			return c.EnhanceTicketsWithCustomerData(ctx, tickets), nil
		}
	}

	result, err, shared := c.flight.Do("tickets:"+key, func() (any, error) {
		effective := query
		c.mu.RLock()
		watermark := c.lastTicketFetch
		c.mu.RUnlock()

		// The window is inclusive and carries the full timestamp; a
		// date-only strict bound would drop every update made on the
		// watermark's own day.
		incremental := !force && !watermark.IsZero() && query != "*"
		if incremental {
			effective = fmt.Sprintf("%s AND updated_at:>=%s", query, watermark.UTC().Format(time.RFC3339))
		}

		raw, err := c.requestWithFallback(ctx, kind, url.QueryEscape(effective), nil, ticketQueryCandidates, requestOptions{})
		if err != nil {
			return nil, err
		}

		tickets, err := zammad.DecodeTicketList(raw)
		if err != nil {
			return nil, fmt.Errorf("decode ticket list %s: %w", key, err)
		}

		// The plain-list fallback ignores the query, so ownership is
		// enforced here regardless of which endpoint answered.
		if ownerID != 0 {
			filtered := tickets[:0]
			for _, t := range tickets {
				if t.OwnerID == ownerID {
					filtered = append(filtered, t)
				}
			}
			tickets = filtered
		}

		if incremental {
			logging.Ctx(ctx).Warn().Str("key", key).Int("count", len(tickets)).
				Time("since", watermark).
				Msg("incremental ticket fetch replaced cached list wholesale")
		}

		c.cacheTickets(key, tickets)
		c.setLastTicketFetch(c.now())
		return tickets, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		metrics.DeduplicatedRequests.Inc()
	}
	return c.EnhanceTicketsWithCustomerData(ctx, result.([]zammad.Ticket)), nil
}

// getCachedTickets returns the cached list for key when the shared ticket
// stamp is still fresh. A stale stamp evicts the whole in-memory tier; the
// persisted tier is consulted once to warm a cold process.
func (c *Client) getCachedTickets(key string) ([]zammad.Ticket, bool) {
	now := c.now()

	c.mu.Lock()
	if !c.ticketStamp.IsZero() && now.Sub(c.ticketStamp) >= c.opts.TicketTTL {
		c.ticketCache = make(map[string][]zammad.Ticket)
		c.ticketStamp = time.Time{}
		metrics.CacheEvictions.WithLabelValues("tickets").Inc()
	}
	tickets, ok := c.ticketCache[key]
	c.mu.Unlock()

	if ok {
		metrics.CacheHits.WithLabelValues("tickets").Inc()
		return tickets, true
	}

	stored, stamp, found, err := c.store.LoadTicketSnapshot(key)
	if err == nil && found && !stamp.IsZero() && now.Sub(stamp) < c.opts.TicketTTL {
		c.mu.Lock()
		c.ticketCache[key] = stored
		c.ticketStamp = stamp
		c.mu.Unlock()
		metrics.CacheHits.WithLabelValues("tickets").Inc()
		return stored, true
	}

	metrics.CacheMisses.WithLabelValues("tickets").Inc()
	return nil, false
}

// cacheTickets stores tickets under key and advances the shared stamp for
// the whole tier, in memory and in the persisted tier.
func (c *Client) cacheTickets(key string, tickets []zammad.Ticket) {
	stamp := c.now()
	c.mu.Lock()
	c.ticketCache[key] = tickets
	c.ticketStamp = stamp
	c.mu.Unlock()
	c.store.SaveTicketSnapshot(key, tickets, stamp)
}

func (c *Client) setLastTicketFetch(t time.Time) {
	c.mu.Lock()
	c.lastTicketFetch = t
	c.mu.Unlock()
	if err := c.store.SetJSON(lastFetchKey, t); err != nil {
		logging.Warn().Err(err).Msg("failed to persist last-fetch watermark")
	}
}

// EnhanceTicketsWithCustomerData joins customer records onto the given
// tickets. Customers the tickets reference but nothing has resolved yet are
// batch-fetched first; resolution failures degrade to tickets without
// customer data, never to an error. The join itself is pure and idempotent:
// the input slice is not modified, tickets that already carry customer data
// keep it, and tickets whose customer stays unknown come back unchanged.
func (c *Client) EnhanceTicketsWithCustomerData(ctx context.Context, tickets []zammad.Ticket) []zammad.Ticket {
	var missing []int
	seen := make(map[int]bool)
	for _, t := range tickets {
		if t.CustomerData.HasCustomerData() || t.Customer.HasCustomerData() {
			continue
		}
		if t.CustomerID <= 0 || seen[t.CustomerID] {
			continue
		}
		seen[t.CustomerID] = true
		missing = append(missing, t.CustomerID)
	}

	var customers map[int]zammad.User
	if len(missing) > 0 {
		resolved, err := c.BatchFetchCustomers(ctx, missing)
		if err != nil {
			logging.Ctx(ctx).Debug().Err(err).Int("customers", len(missing)).
				Msg("customer resolution failed, serving tickets without customer data")
		}
		customers = resolved
	}

	out := make([]zammad.Ticket, len(tickets))
	for i, t := range tickets {
		if t.CustomerData.HasCustomerData() {
			out[i] = t
			continue
		}
		if t.Customer.HasCustomerData() {
			customer := *t.Customer
			t.CustomerData = &customer
		} else if customer, ok := customers[t.CustomerID]; ok && customer.HasCustomerData() {
			cp := customer
			t.CustomerData = &cp
		}
		out[i] = t
	}
	return out
}

// ticketArticleCandidates list the messages on one ticket.
var ticketArticleCandidates = []Endpoint{
	{Method: http.MethodGet, PathTemplate: "/api/v1/ticket_articles/by_ticket/" + idToken},
	{Method: http.MethodGet, PathTemplate: "/api/v1/ticket_articles?ticket_id=" + idToken},
}

// GetTicketArticles returns the articles on a ticket.
func (c *Client) GetTicketArticles(ctx context.Context, ticketID int) ([]zammad.Article, error) {
	if ticketID <= 0 {
		return nil, &ValidationError{Field: "ticket_id", Reason: "ticket id must be positive"}
	}

	raw, err := c.requestWithFallback(ctx, ResourceTicketArticles, strconv.Itoa(ticketID), nil, ticketArticleCandidates, requestOptions{})
	if err != nil {
		return nil, err
	}

	var articles []zammad.Article
	if err := json.Unmarshal(raw, &articles); err != nil {
		return nil, fmt.Errorf("decode articles for ticket %d: %w", ticketID, err)
	}
	return articles, nil
}
