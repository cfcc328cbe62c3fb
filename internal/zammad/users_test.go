// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package zammad

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestCurrentUserCachedAndForced(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handle(http.MethodGet, "/api/v1/users/me",
		jsonHandler(`{"id":7,"login":"agent1","firstname":"Grace","lastname":"Hopper","active":true}`))
	c := newTestClient(t, ts)

	// Token validation already fetched the profile during initialization.
	baseline := ts.count(http.MethodGet, "/api/v1/users/me")

	user, err := c.CurrentUser(context.Background(), false)
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if user.ID != 7 || user.Login != "agent1" {
		t.Errorf("user = %+v, want id 7 login agent1", user)
	}
	if n := ts.count(http.MethodGet, "/api/v1/users/me"); n != baseline {
		t.Errorf("cached profile read hit the deployment (%d -> %d)", baseline, n)
	}

	if _, err := c.CurrentUser(context.Background(), true); err != nil {
		t.Fatalf("forced refresh: %v", err)
	}
	if n := ts.count(http.MethodGet, "/api/v1/users/me"); n != baseline+1 {
		t.Errorf("forced refresh made %d requests, want 1", n-baseline)
	}
}

func TestCurrentUserReturnsCopy(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handle(http.MethodGet, "/api/v1/users/me", jsonHandler(`{"id":7,"login":"agent1"}`))
	c := newTestClient(t, ts)

	first, err := c.CurrentUser(context.Background(), false)
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	first.Login = "mutated"

	second, err := c.CurrentUser(context.Background(), false)
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if second.Login != "agent1" {
		t.Errorf("caller mutation leaked into the cached profile: %q", second.Login)
	}
}

func TestGetAllUsersPagination(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handle(http.MethodGet, "/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = w.Write([]byte(`[{"id":1,"login":"a"},{"id":2,"login":"b"}]`))
		case "2":
			_, _ = w.Write([]byte(`[{"id":3,"login":"c"}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	})

	c := New(newTestStore(t), Options{
		RequestTimeout:    5 * time.Second,
		ValidationTimeout: 5 * time.Second,
		UserPageSize:      2,
	})
	t.Cleanup(c.Close)
	if err := c.Initialize(context.Background(), ts.srv.URL, "test-token-123"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	c.WaitBackground()

	users, err := c.GetAllUsers(context.Background())
	if err != nil {
		t.Fatalf("get all users: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("got %d users, want 3", len(users))
	}
	// The short second page ends the pagination, page 3 is never requested.
	if n := ts.count(http.MethodGet, "/api/v1/users"); n != 2 {
		t.Errorf("pagination made %d requests, want 2", n)
	}
}

func TestGetAdminAgentUsers(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handle(http.MethodGet, "/api/v1/roles",
		jsonHandler(`[{"id":1,"name":"Admin"},{"id":2,"name":"Agent"},{"id":3,"name":"Customer"}]`))
	ts.handle(http.MethodGet, "/api/v1/users", jsonHandler(`[
		{"id":1,"login":"admin1","role_ids":[1],"active":true},
		{"id":2,"login":"agent1","role_ids":[2],"active":true},
		{"id":3,"login":"gone","role_ids":[2],"active":false},
		{"id":4,"login":"customer1","role_ids":[3],"active":true}
	]`))
	c := newTestClient(t, ts)

	staff, err := c.GetAdminAgentUsers(context.Background())
	if err != nil {
		t.Fatalf("staff users: %v", err)
	}
	if len(staff) != 2 {
		t.Fatalf("got %d staff users, want 2", len(staff))
	}
	for _, user := range staff {
		if user.ID != 1 && user.ID != 2 {
			t.Errorf("unexpected staff user %d (%s)", user.ID, user.Login)
		}
	}
}

func TestBatchFetchCustomersBulkCoverage(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handle(http.MethodGet, "/api/v1/users", jsonHandler(`[
		{"id":3,"firstname":"Ada","lastname":"Lovelace","email":"ada@example.com"},
		{"id":4,"firstname":"Alan","lastname":"Turing","email":"alan@example.com"}
	]`))
	c := newTestClient(t, ts)

	resolved, err := c.BatchFetchCustomers(context.Background(), []int{3, 4})
	if err != nil {
		t.Fatalf("batch fetch: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("resolved %d customers, want 2", len(resolved))
	}
	if resolved[3].Firstname != "Ada" || resolved[4].Firstname != "Alan" {
		t.Errorf("resolved = %+v", resolved)
	}
	if n := ts.count(http.MethodGet, "/api/v1/users/search"); n != 0 {
		t.Errorf("full bulk coverage should not search, got %d search requests", n)
	}

	// A second batch is served entirely from the customer cache.
	listHits := ts.count(http.MethodGet, "/api/v1/users")
	again, err := c.BatchFetchCustomers(context.Background(), []int{3, 4})
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if len(again) != 2 {
		t.Fatalf("second batch resolved %d, want 2", len(again))
	}
	if n := ts.count(http.MethodGet, "/api/v1/users"); n != listHits {
		t.Errorf("cached batch still listed users (%d -> %d)", listHits, n)
	}
}

func TestBatchFetchCustomersStragglers(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	// The bulk listing covers nobody we want, so it gets discarded; the
	// search finds one, an individual lookup another, and id 5 stays
	// unresolved without failing the batch.
	ts.handle(http.MethodGet, "/api/v1/users", jsonHandler(`[{"id":100,"login":"unrelated"}]`))
	ts.handle(http.MethodGet, "/api/v1/users/search",
		jsonHandler(`[{"id":3,"firstname":"Ada","email":"ada@example.com"}]`))
	ts.handle(http.MethodGet, "/api/v1/users/4",
		jsonHandler(`{"id":4,"firstname":"Alan","email":"alan@example.com"}`))
	c := newTestClient(t, ts)

	resolved, err := c.BatchFetchCustomers(context.Background(), []int{3, 4, 5})
	if err != nil {
		t.Fatalf("batch fetch: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("resolved %d customers, want 2", len(resolved))
	}
	if resolved[3].Firstname != "Ada" {
		t.Errorf("customer 3 = %+v, want Ada via search", resolved[3])
	}
	if resolved[4].Firstname != "Alan" {
		t.Errorf("customer 4 = %+v, want Alan via individual fetch", resolved[4])
	}
	if _, ok := resolved[5]; ok {
		t.Error("customer 5 does not exist and must be absent, not an error")
	}
}

func TestBatchFetchCustomersEmptyAndInvalidIDs(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	resolved, err := c.BatchFetchCustomers(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if len(resolved) != 0 {
		t.Errorf("empty batch resolved %d customers", len(resolved))
	}
}

func TestGetAllGroupsOrganizationsRoles(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handle(http.MethodGet, "/api/v1/groups", jsonHandler(`[{"id":1,"name":"Support"}]`))
	ts.handle(http.MethodGet, "/api/v1/organizations", jsonHandler(`[{"id":1,"name":"ACME"}]`))
	ts.handle(http.MethodGet, "/api/v1/roles", jsonHandler(`[{"id":1,"name":"Admin"}]`))
	c := newTestClient(t, ts)

	groups, err := c.GetAllGroups(context.Background())
	if err != nil || len(groups) != 1 || groups[0].Name != "Support" {
		t.Errorf("groups = %+v, err = %v", groups, err)
	}
	orgs, err := c.GetAllOrganizations(context.Background())
	if err != nil || len(orgs) != 1 || orgs[0].Name != "ACME" {
		t.Errorf("organizations = %+v, err = %v", orgs, err)
	}
	roles, err := c.GetAllRoles(context.Background())
	if err != nil || len(roles) != 1 || roles[0].Name != "Admin" {
		t.Errorf("roles = %+v, err = %v", roles, err)
	}
}
