// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package zammad

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/ticktrack/internal/models/zammad"
)

func TestGetTicketValidation(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	_, err := c.GetTicket(context.Background(), "")
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for empty id, got %v", err)
	}
}

func TestGetTicketShowEndpoint(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handle(http.MethodGet, "/api/v1/tickets/17", jsonHandler(`{"id":17,"number":"20260817","title":"Printer down","customer_id":3}`))
	c := newTestClient(t, ts)

	ticket, err := c.GetTicket(context.Background(), "17")
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if ticket.ID != 17 || ticket.Title != "Printer down" {
		t.Errorf("ticket = %+v, want id 17", ticket)
	}
}

func TestGetTicketSearchFallback(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	// Direct show is restricted; search by number answers.
	ts.handle(http.MethodGet, "/api/v1/tickets/search", jsonHandler(`[{"id":17,"number":"20260817","title":"Printer down"}]`))
	c := newTestClient(t, ts)

	ticket, err := c.GetTicket(context.Background(), "20260817")
	if err != nil {
		t.Fatalf("get ticket via search: %v", err)
	}
	if ticket.Number != "20260817" {
		t.Errorf("ticket number = %q, want 20260817", ticket.Number)
	}
}

func TestEnhanceTicketsWithCustomerData(t *testing.T) {
	t.Parallel()
	c := newUninitializedClient(t)
	c.mu.Lock()
	c.customers[3] = zammad.User{ID: 3, Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com"}
	c.mu.Unlock()

	input := []zammad.Ticket{
		{ID: 1, CustomerID: 3},
		{ID: 2, CustomerID: 99},
		{ID: 4, CustomerID: 3, CustomerData: &zammad.User{ID: 3, Firstname: "Existing"}},
	}

	out := c.EnhanceTicketsWithCustomerData(context.Background(), input)

	if out[0].CustomerData == nil || out[0].CustomerData.Firstname != "Ada" {
		t.Errorf("ticket 1 customer = %+v, want Ada", out[0].CustomerData)
	}
	if out[1].CustomerData != nil {
		t.Error("unknown customer should stay nil")
	}
	if out[2].CustomerData.Firstname != "Existing" {
		t.Error("already-joined customer data must be kept")
	}
	if input[0].CustomerData != nil {
		t.Error("input slice must not be modified")
	}

	// Idempotence: running the join twice changes nothing.
	again := c.EnhanceTicketsWithCustomerData(context.Background(), out)
	for i := range again {
		if (again[i].CustomerData == nil) != (out[i].CustomerData == nil) {
			t.Fatalf("second enhancement changed ticket %d", again[i].ID)
		}
	}
}

func TestFetchTicketListResolvesCustomers(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handle(http.MethodGet, "/api/v1/users/me", jsonHandler(`{"id":1,"login":"agent","active":true}`))
	ts.handle(http.MethodGet, "/api/v1/tickets/search", jsonHandler(`[{"id":10,"owner_id":1,"customer_id":7},{"id":11,"owner_id":1,"customer_id":7}]`))
	ts.handle(http.MethodGet, "/api/v1/users", jsonHandler(`[{"id":7,"firstname":"Grace","lastname":"Hopper","email":"grace@example.com","active":true}]`))
	c := newTestClient(t, ts)

	listings := ts.count(http.MethodGet, "/api/v1/users")
	tickets, err := c.GetAssignedTickets(context.Background(), false)
	if err != nil {
		t.Fatalf("assigned tickets: %v", err)
	}

	if len(tickets) != 2 {
		t.Fatalf("got %d tickets, want 2", len(tickets))
	}
	for _, ticket := range tickets {
		if ticket.CustomerData == nil || ticket.CustomerData.Firstname != "Grace" {
			t.Errorf("ticket %d customer = %+v, want Grace", ticket.ID, ticket.CustomerData)
		}
	}
	if n := ts.count(http.MethodGet, "/api/v1/users") - listings; n != 1 {
		t.Errorf("user listing hit %d times during enrichment, want 1", n)
	}

	// Subsequent enrichment is served from the customer cache.
	if _, err := c.GetAssignedTickets(context.Background(), true); err != nil {
		t.Fatalf("forced fetch: %v", err)
	}
	if n := ts.count(http.MethodGet, "/api/v1/users") - listings; n != 1 {
		t.Errorf("user listing hit %d times after a cached enrichment, want still 1", n)
	}
}

func TestTicketCacheSharedStamp(t *testing.T) {
	t.Parallel()
	c := newUninitializedClient(t)

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	now := base
	c.mu.Lock()
	c.now = func() time.Time { return now }
	c.mu.Unlock()

	c.cacheTickets("a", []zammad.Ticket{{ID: 1}})

	if _, ok := c.getCachedTickets("a"); !ok {
		t.Fatal("fresh key should hit")
	}

	// A write to a second key advances the shared stamp for both.
	now = base.Add(4 * time.Minute)
	c.cacheTickets("b", []zammad.Ticket{{ID: 2}})

	now = base.Add(6 * time.Minute)
	if _, ok := c.getCachedTickets("a"); !ok {
		t.Error("key a should still be fresh, the shared stamp was advanced at +4m")
	}

	// Past the TTL from the last write, every key expires at once.
	now = base.Add(10 * time.Minute)
	if _, ok := c.getCachedTickets("a"); ok {
		t.Error("key a should be expired")
	}
	if _, ok := c.getCachedTickets("b"); ok {
		t.Error("key b should be expired together with a")
	}
	c.mu.Lock()
	remaining := len(c.ticketCache)
	c.mu.Unlock()
	if remaining != 0 {
		t.Errorf("in-memory ticket cache holds %d keys after expiry, want 0", remaining)
	}
}

func TestTicketCachePersistsAcrossClients(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	c1 := New(st, Options{})
	c1.cacheTickets(CacheKeyAllTickets, []zammad.Ticket{{ID: 5, Title: "persisted"}})
	c1.Close()

	c2 := New(st, Options{})
	defer c2.Close()
	tickets, ok := c2.getCachedTickets(CacheKeyAllTickets)
	if !ok {
		t.Fatal("cold client should warm from the persisted snapshot")
	}
	if len(tickets) != 1 || tickets[0].Title != "persisted" {
		t.Errorf("tickets = %+v, want the persisted ticket", tickets)
	}
}

func TestFetchTicketListDeduplicatesConcurrentCalls(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	// The probe sees a plain handler so search settles as supported; the
	// blocking handler replaces it afterwards. Probe traffic is excluded
	// via baseline.
	ts.handle(http.MethodGet, "/api/v1/tickets/search", jsonHandler(`[]`))
	c := newTestClient(t, ts)

	baseline := ts.count(http.MethodGet, "/api/v1/tickets/search")
	release := make(chan struct{})
	ts.handle(http.MethodGet, "/api/v1/tickets/search", func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"title":"only once"}]`))
	})

	const callers = 6
	var wg sync.WaitGroup
	results := make([][]zammad.Ticket, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tickets, err := c.GetAllTickets(context.Background(), false)
			if err != nil {
				t.Errorf("concurrent fetch: %v", err)
				return
			}
			results[i] = tickets
		}()
	}

	// Give every goroutine a moment to join the in-flight request.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := ts.count(http.MethodGet, "/api/v1/tickets/search") - baseline; n != 1 {
		t.Errorf("remote search hit %d times for %d concurrent callers, want 1", n, callers)
	}
	for i, tickets := range results {
		if len(tickets) != 1 {
			t.Errorf("caller %d got %d tickets, want 1", i, len(tickets))
		}
	}
}

func TestIncrementalFetchSendsFullTimestampWindow(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handle(http.MethodGet, "/api/v1/users/me", jsonHandler(`{"id":1,"login":"agent","active":true}`))

	// The probe hits this handler too; the fetch under test overwrites
	// gotQuery afterwards.
	var gotQuery string
	var mu sync.Mutex
	ts.handle(http.MethodGet, "/api/v1/tickets/search", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotQuery = r.URL.Query().Get("query")
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"owner_id":1}]`))
	})
	c := newTestClient(t, ts)

	watermark := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	c.setLastTicketFetch(watermark)

	if _, err := c.GetAssignedTickets(context.Background(), false); err != nil {
		t.Fatalf("incremental fetch: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := "owner.id:1 AND updated_at:>=2026-08-30T10:00:00Z"
	if gotQuery != want {
		t.Errorf("search query = %q, want %q", gotQuery, want)
	}
}

func TestGetTicketsForUserFiltersOwner(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	// The plain list fallback returns everyone's tickets; the client must
	// keep only the requested owner.
	ts.handle(http.MethodGet, "/api/v1/tickets", jsonHandler(`[{"id":1,"owner_id":7},{"id":2,"owner_id":8},{"id":3,"owner_id":7}]`))
	c := newTestClient(t, ts)

	tickets, err := c.GetTicketsForUser(context.Background(), 7, true)
	if err != nil {
		t.Fatalf("tickets for user: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("got %d tickets, want 2 owned by user 7", len(tickets))
	}
	for _, ticket := range tickets {
		if ticket.OwnerID != 7 {
			t.Errorf("ticket %d has owner %d, want 7", ticket.ID, ticket.OwnerID)
		}
	}
}

func TestFallbackSkipsUnsupportedSearch(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	// No search endpoint: the probe settles it as unsupported, so the
	// fallback chain must go straight to the plain listing instead of
	// burning requests on the search variants.
	ts.handle(http.MethodGet, "/api/v1/tickets", jsonHandler(`[{"id":1,"title":"plain"}]`))
	c := newTestClient(t, ts)

	if got := c.Features().Search; got != CapabilityUnsupported {
		t.Fatalf("search capability = %v, want unsupported", got)
	}

	baseline := ts.count(http.MethodGet, "/api/v1/tickets/search")
	tickets, err := c.GetAllTickets(context.Background(), true)
	if err != nil {
		t.Fatalf("all tickets: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("got %d tickets, want 1", len(tickets))
	}
	if n := ts.count(http.MethodGet, "/api/v1/tickets/search") - baseline; n != 0 {
		t.Errorf("unsupported search endpoint hit %d times, want 0", n)
	}
}

func TestGetTicketsForUserValidation(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	_, err := c.GetTicketsForUser(context.Background(), 0, false)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for user id 0, got %v", err)
	}
}
