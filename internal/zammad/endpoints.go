// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package zammad

import (
	"context"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ticktrack/internal/logging"
	"github.com/tomtom215/ticktrack/internal/metrics"
)

// ResourceKind identifies one remote resource for endpoint memoization.
// The memo records, per kind, the last endpoint template that worked against
// this deployment, so later calls skip the fallback probing.
type ResourceKind string

const (
	ResourceTicketShow      ResourceKind = "ticket_show"
	ResourceTimeEntryList   ResourceKind = "time_entry_list"
	ResourceTimeEntrySubmit ResourceKind = "time_entry_submit"
	ResourceTimeEntryDelete ResourceKind = "time_entry_delete"
	ResourceAssignedTickets ResourceKind = "assigned_tickets"
	ResourceAllTickets      ResourceKind = "all_tickets"
	ResourceUserTickets     ResourceKind = "user_tickets"
	ResourceTimeHistory     ResourceKind = "time_history"
	ResourceUserProfile     ResourceKind = "user_profile"
	ResourceTicketArticles  ResourceKind = "ticket_articles"
)

// idToken is the placeholder substituted with a concrete id when an endpoint
// template is instantiated.
const idToken = ":id"

// derivedHistoryTemplate is the sentinel memo value recorded when time
// history had to be derived from per-ticket enumeration because no admin
// endpoint was usable. It never reaches executeRequest; GetTimeHistory
// checks for it before probing admin endpoints again.
const derivedHistoryTemplate = "derived:assigned_tickets"

// Endpoint is one endpoint variant in a fallback chain: a method plus a path
// template with an optional :id placeholder.
type Endpoint struct {
	Method       string
	PathTemplate string
}

// Substitute instantiates the template with the given id. Templates without
// a placeholder ignore the id.
func (e Endpoint) Substitute(id string) string {
	return strings.ReplaceAll(e.PathTemplate, idToken, id)
}

// memoKey is the key-value store key holding the endpoint memo.
const memoKey = "endpoint_memo"

// loadMemo reads the persisted endpoint memo into the client. Called once at
// construction; absence is not an error.
func (c *Client) loadMemo() {
	memo := make(map[ResourceKind]string)
	if err := c.store.GetJSON(memoKey, &memo); err == nil {
		c.mu.Lock()
		c.memo = memo
		c.mu.Unlock()
	}
}

// memoFor returns the memoized template for kind, or "".
func (c *Client) memoFor(kind ResourceKind) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.memo[kind]
}

// rememberEndpoint records template as the working endpoint for kind and
// persists the memo.
func (c *Client) rememberEndpoint(kind ResourceKind, template string) {
	c.mu.Lock()
	if c.memo == nil {
		c.memo = make(map[ResourceKind]string)
	}
	c.memo[kind] = template
	snapshot := make(map[ResourceKind]string, len(c.memo))
	for k, v := range c.memo {
		snapshot[k] = v
	}
	c.mu.Unlock()

	if err := c.store.SetJSON(memoKey, snapshot); err != nil {
		logging.Warn().Err(err).Str("resource", string(kind)).Msg("failed to persist endpoint memo")
	}
}

// forgetEndpoint clears the memo entry for kind after it failed.
func (c *Client) forgetEndpoint(kind ResourceKind) {
	c.mu.Lock()
	delete(c.memo, kind)
	snapshot := make(map[ResourceKind]string, len(c.memo))
	for k, v := range c.memo {
		snapshot[k] = v
	}
	c.mu.Unlock()

	if err := c.store.SetJSON(memoKey, snapshot); err != nil {
		logging.Warn().Err(err).Str("resource", string(kind)).Msg("failed to persist endpoint memo")
	}
}

// clearMemo wipes the whole memo (base URL change).
func (c *Client) clearMemo() {
	c.mu.Lock()
	c.memo = make(map[ResourceKind]string)
	c.mu.Unlock()

	if err := c.store.Delete(memoKey); err != nil {
		logging.Warn().Err(err).Msg("failed to clear endpoint memo")
	}
}

// capabilityFor returns the feature flag gating the given endpoint template,
// or CapabilityUnknown when no probe covers it.
func (f FeatureFlags) capabilityFor(template string) Capability {
	switch {
	case strings.HasPrefix(template, "/api/v1/tickets/search"):
		return f.Search
	case strings.HasPrefix(template, "/api/v1/time_accountings"):
		return f.TimeAccounting
	case strings.HasPrefix(template, "/api/v1/users/me"):
		return f.CurrentUser
	}
	return CapabilityUnknown
}

// filterCandidates drops candidates whose gating capability probed as
// unsupported. A 403 probe answer settles a flag as supported, so
// permission-gated endpoints survive the filter. When the filter would empty
// the chain the original list is kept; a stale flag must not make a resource
// unreachable.
func (c *Client) filterCandidates(candidates []Endpoint) []Endpoint {
	flags := c.Features()
	kept := make([]Endpoint, 0, len(candidates))
	for _, candidate := range candidates {
		if flags.capabilityFor(candidate.PathTemplate) == CapabilityUnsupported {
			continue
		}
		kept = append(kept, candidate)
	}
	if len(kept) == 0 {
		return candidates
	}
	return kept
}

// requestWithFallback runs the standard endpoint-fallback algorithm for one
// resource:
//
//  1. Try the memoized endpoint first, substituting id. A memo success
//     returns immediately; a memo failure clears the entry and falls
//     through. The failed template is never retried within this call.
//  2. Try each candidate in order, skipping those the detected feature
//     flags rule out. The first success is memoized and returned.
//     Individual candidate failures are logged and swallowed.
//  3. When everything failed, return ResourceUnavailableError wrapping the
//     last error.
//
// Candidates are tried strictly sequentially so the memoized determination
// is deterministic and reproducible.
func (c *Client) requestWithFallback(ctx context.Context, kind ResourceKind, id string, body any, candidates []Endpoint, opts requestOptions) (json.RawMessage, error) {
	var lastErr error
	var failedTemplate string

	candidates = c.filterCandidates(candidates)

	if memoTemplate := c.memoFor(kind); memoTemplate != "" {
		if memo, ok := parseMemoTemplate(memoTemplate); ok {
			result, err := c.executeRequest(ctx, memo.Method, memo.Substitute(id), body, opts)
			if err == nil {
				metrics.FallbackAttempts.WithLabelValues(string(kind), "memo_hit").Inc()
				return result.JSON(), nil
			}
			logging.Debug().Err(err).Str("resource", string(kind)).Str("endpoint", memo.PathTemplate).
				Msg("memoized endpoint failed, clearing and probing candidates")
			lastErr = err
			failedTemplate = memoTemplate
		}
		c.forgetEndpoint(kind)
	}

	for _, candidate := range candidates {
		if formatMemoTemplate(candidate) == failedTemplate {
			continue // never retry the failed memo within one call
		}
		result, err := c.executeRequest(ctx, candidate.Method, candidate.Substitute(id), body, opts)
		if err != nil {
			logging.Debug().Err(err).Str("resource", string(kind)).Str("endpoint", candidate.PathTemplate).
				Msg("endpoint candidate failed")
			lastErr = err
			continue
		}
		c.rememberEndpoint(kind, formatMemoTemplate(candidate))
		metrics.FallbackAttempts.WithLabelValues(string(kind), "candidate_hit").Inc()
		return result.JSON(), nil
	}

	metrics.FallbackAttempts.WithLabelValues(string(kind), "exhausted").Inc()
	return nil, &ResourceUnavailableError{Resource: string(kind), Err: lastErr}
}

// memoSeparator joins method and template in the persisted memo value.
const memoSeparator = " "

func formatMemoTemplate(e Endpoint) string {
	return e.Method + memoSeparator + e.PathTemplate
}

func parseMemoTemplate(s string) (Endpoint, bool) {
	method, template, found := strings.Cut(s, memoSeparator)
	if !found || method == "" || template == "" {
		return Endpoint{}, false
	}
	return Endpoint{Method: method, PathTemplate: template}, true
}
