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
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/ticktrack/internal/logging"
	"github.com/tomtom215/ticktrack/internal/metrics"
	"github.com/tomtom215/ticktrack/internal/models/zammad"
)

// individualFetchThreshold caps the number of per-user requests in batch
// customer resolution. More stragglers than this are left unresolved rather
// than hammering the API one id at a time.
const individualFetchThreshold = 5

// bulkCoverageRatio is the share of missing customers the bulk user list
// must resolve for the batch to count it as sufficient.
const bulkCoverageRatio = 0.8

var userProfileCandidates = []Endpoint{
	{Method: http.MethodGet, PathTemplate: "/api/v1/users/me"},
}

// CurrentUser returns the profile of the token's user. The profile is kept
// in memory and persisted; force bypasses both and performs the remote
// round-trip.
func (c *Client) CurrentUser(ctx context.Context, force bool) (*zammad.User, error) {
	if !force {
		c.mu.RLock()
		profile := c.profile
		c.mu.RUnlock()
		if profile != nil {
			cp := *profile
			return &cp, nil
		}
	}

	raw, err := c.requestWithFallback(ctx, ResourceUserProfile, "", nil, userProfileCandidates, requestOptions{})
	if err != nil {
		return nil, err
	}

	var user zammad.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decode user profile: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("user profile response carried no id")
	}

	c.mu.Lock()
	cp := user
	c.profile = &cp
	c.mu.Unlock()

	if err := c.store.SetJSON(profileKey, user); err != nil {
		logging.Warn().Err(err).Msg("failed to persist user profile")
	}
	return &user, nil
}

// GetAllUsers lists every user via explicit pagination, stopping when a page
// comes back shorter than the page size.
func (c *Client) GetAllUsers(ctx context.Context) ([]zammad.User, error) {
	pageSize := c.opts.UserPageSize
	var users []zammad.User

	for page := 1; ; page++ {
		path := fmt.Sprintf("/api/v1/users?per_page=%d&page=%d", pageSize, page)
		result, err := c.executeRequest(ctx, http.MethodGet, path, nil, requestOptions{})
		if err != nil {
			return nil, err
		}

		var batch []zammad.User
		if err := result.Decode(&batch); err != nil {
			return nil, fmt.Errorf("decode users page %d: %w", page, err)
		}

		users = append(users, batch...)
		if len(batch) < pageSize {
			return users, nil
		}
	}
}

// GetAdminAgentUsers returns the active users holding the Admin or Agent
// role. Used for populating tracked-user pickers.
func (c *Client) GetAdminAgentUsers(ctx context.Context) ([]zammad.User, error) {
	roles, err := c.GetAllRoles(ctx)
	if err != nil {
		return nil, err
	}

	staffRoles := make(map[int]bool)
	for _, role := range roles {
		name := strings.ToLower(role.Name)
		if name == "admin" || name == "agent" {
			staffRoles[role.ID] = true
		}
	}

	users, err := c.GetAllUsers(ctx)
	if err != nil {
		return nil, err
	}

	var staff []zammad.User
	for _, user := range users {
		if !user.Active {
			continue
		}
		for _, roleID := range user.RoleIDs {
			if staffRoles[roleID] {
				staff = append(staff, user)
				break
			}
		}
	}
	return staff, nil
}

// BatchFetchCustomers resolves the given customer ids, cheapest source
// first:
//
//  1. The customer cache, when its shared stamp is fresh.
//  2. One bulk user listing, accepted when it covers at least 80% of what
//     was missing.
//  3. One bulk user search for the remainder.
//  4. Individual lookups, only when at most 5 ids remain.
//
// Ids that still cannot be resolved are simply absent from the result;
// callers treat missing customers as display-degraded, never as an error.
// Everything resolved is merged into the customer cache.
func (c *Client) BatchFetchCustomers(ctx context.Context, ids []int) (map[int]zammad.User, error) {
	resolved := make(map[int]zammad.User)
	if len(ids) == 0 {
		return resolved, nil
	}

	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		if id > 0 {
			want[id] = true
		}
	}

	cached := c.cachedCustomers()
	var missing []int
	for id := range want {
		if user, ok := cached[id]; ok && user.HasCustomerData() {
			resolved[id] = user
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		metrics.CacheHits.WithLabelValues("customers").Inc()
		return resolved, nil
	}
	metrics.CacheMisses.WithLabelValues("customers").Inc()

	fetched := make(map[int]zammad.User)

	// Stage 2: one bulk listing, kept only when it pays for itself.
	if users, err := c.GetAllUsers(ctx); err == nil {
		byID := make(map[int]zammad.User, len(users))
		for _, u := range users {
			byID[u.ID] = u
		}
		covered := 0
		for _, id := range missing {
			if _, ok := byID[id]; ok {
				covered++
			}
		}
		if float64(covered) >= bulkCoverageRatio*float64(len(missing)) {
			remaining := missing[:0]
			for _, id := range missing {
				if u, ok := byID[id]; ok {
					fetched[id] = u
				} else {
					remaining = append(remaining, id)
				}
			}
			missing = remaining
		}
	} else {
		logging.Ctx(ctx).Debug().Err(err).Msg("bulk user listing unavailable for customer resolution")
	}

	// Stage 3: one bulk search for whatever the listing left open.
	if len(missing) > 0 {
		if found := c.searchUsersByID(ctx, missing); len(found) > 0 {
			remaining := missing[:0]
			for _, id := range missing {
				if u, ok := found[id]; ok {
					fetched[id] = u
				} else {
					remaining = append(remaining, id)
				}
			}
			missing = remaining
		}
	}

	// Stage 4: individual lookups for a handful of stragglers.
	if n := len(missing); n > 0 && n <= individualFetchThreshold {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, id := range missing {
			g.Go(func() error {
				user, err := c.getUser(gctx, id)
				if err != nil {
					logging.Ctx(gctx).Debug().Err(err).Int("user_id", id).Msg("individual customer fetch failed")
					return nil
				}
				mu.Lock()
				fetched[id] = *user
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	} else if n > individualFetchThreshold {
		logging.Ctx(ctx).Debug().Int("unresolved", n).Msg("skipping individual customer fetches, too many remain")
	}

	if len(fetched) > 0 {
		c.mergeCustomers(fetched)
		for id, user := range fetched {
			resolved[id] = user
		}
	}
	return resolved, nil
}

// searchUsersByID runs one user search covering all given ids.
func (c *Client) searchUsersByID(ctx context.Context, ids []int) map[int]zammad.User {
	terms := make([]string, 0, len(ids))
	for _, id := range ids {
		terms = append(terms, "id:"+strconv.Itoa(id))
	}
	query := url.QueryEscape(strings.Join(terms, " OR "))
	path := fmt.Sprintf("/api/v1/users/search?query=%s&limit=%d", query, len(ids))

	result, err := c.executeRequest(ctx, http.MethodGet, path, nil, requestOptions{})
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("bulk user search unavailable for customer resolution")
		return nil
	}

	var users []zammad.User
	if err := result.Decode(&users); err != nil {
		return nil
	}

	found := make(map[int]zammad.User, len(users))
	for _, u := range users {
		found[u.ID] = u
	}
	return found
}

func (c *Client) getUser(ctx context.Context, id int) (*zammad.User, error) {
	result, err := c.executeRequest(ctx, http.MethodGet, "/api/v1/users/"+strconv.Itoa(id), nil, requestOptions{})
	if err != nil {
		return nil, err
	}
	var user zammad.User
	if err := result.Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user %d: %w", id, err)
	}
	return &user, nil
}

// cachedCustomers returns the in-memory customer map while its shared stamp
// is fresh, warming from the persisted tier on a cold process. A stale
// stamp evicts the whole map.
func (c *Client) cachedCustomers() map[int]zammad.User {
	now := c.now()

	c.mu.Lock()
	if !c.customerStamp.IsZero() && now.Sub(c.customerStamp) >= c.opts.CustomerTTL {
		c.customers = make(map[int]zammad.User)
		c.customerStamp = time.Time{}
		metrics.CacheEvictions.WithLabelValues("customers").Inc()
	}
	if len(c.customers) > 0 {
		snapshot := make(map[int]zammad.User, len(c.customers))
		for id, u := range c.customers {
			snapshot[id] = u
		}
		c.mu.Unlock()
		return snapshot
	}
	c.mu.Unlock()

	stored, stamp, err := c.store.LoadCustomers()
	if err != nil || len(stored) == 0 || stamp.IsZero() || now.Sub(stamp) >= c.opts.CustomerTTL {
		return map[int]zammad.User{}
	}

	c.mu.Lock()
	c.customers = stored
	c.customerStamp = stamp
	snapshot := make(map[int]zammad.User, len(stored))
	for id, u := range stored {
		snapshot[id] = u
	}
	c.mu.Unlock()
	return snapshot
}

// mergeCustomers upserts records into the customer cache and advances the
// shared stamp in both tiers.
func (c *Client) mergeCustomers(customers map[int]zammad.User) {
	stamp := c.now()
	c.mu.Lock()
	for id, u := range customers {
		c.customers[id] = u
	}
	c.customerStamp = stamp
	c.mu.Unlock()
	c.store.MergeCustomers(customers, stamp)
}

// GetAllGroups lists the deployment's groups.
func (c *Client) GetAllGroups(ctx context.Context) ([]zammad.Group, error) {
	result, err := c.executeRequest(ctx, http.MethodGet, "/api/v1/groups?per_page=200", nil, requestOptions{})
	if err != nil {
		return nil, err
	}
	var groups []zammad.Group
	if err := result.Decode(&groups); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	return groups, nil
}

// GetAllOrganizations lists the deployment's organizations.
func (c *Client) GetAllOrganizations(ctx context.Context) ([]zammad.Organization, error) {
	result, err := c.executeRequest(ctx, http.MethodGet, "/api/v1/organizations?per_page=200", nil, requestOptions{})
	if err != nil {
		return nil, err
	}
	var orgs []zammad.Organization
	if err := result.Decode(&orgs); err != nil {
		return nil, fmt.Errorf("decode organizations: %w", err)
	}
	return orgs, nil
}

// GetAllRoles lists the deployment's roles.
func (c *Client) GetAllRoles(ctx context.Context) ([]zammad.Role, error) {
	result, err := c.executeRequest(ctx, http.MethodGet, "/api/v1/roles?per_page=200", nil, requestOptions{})
	if err != nil {
		return nil, err
	}
	var roles []zammad.Role
	if err := result.Decode(&roles); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	return roles, nil
}
