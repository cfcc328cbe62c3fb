// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package zammad

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/ticktrack/internal/models/zammad"
)

func TestSubmitTimeEntryValidation(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	tests := []struct {
		name string
		req  zammad.SubmitTimeEntryRequest
	}{
		{"zero ticket id", zammad.SubmitTimeEntryRequest{TicketID: 0, TimeUnit: 15}},
		{"negative ticket id", zammad.SubmitTimeEntryRequest{TicketID: -3, TimeUnit: 15}},
		{"nan time value", zammad.SubmitTimeEntryRequest{TicketID: 5, TimeUnit: math.NaN()}},
		{"positive infinity", zammad.SubmitTimeEntryRequest{TicketID: 5, TimeUnit: math.Inf(1)}},
		{"negative infinity", zammad.SubmitTimeEntryRequest{TicketID: 5, TimeUnit: math.Inf(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.SubmitTimeEntry(context.Background(), tt.req)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestSubmitTimeEntryNearZeroIsSkipped(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	for _, value := range []float64{0, 0.0005, -0.0009} {
		entry, err := c.SubmitTimeEntry(context.Background(), zammad.SubmitTimeEntryRequest{
			TicketID: 5,
			TimeUnit: value,
		})
		if err != nil {
			t.Errorf("value %v: unexpected error %v", value, err)
		}
		if entry != nil {
			t.Errorf("value %v: expected nil entry for a skipped submission", value)
		}
	}
	if n := ts.count(http.MethodPost, "/api/v1/tickets/5/time_accountings"); n != 0 {
		t.Errorf("near-zero submissions reached the deployment %d times, want 0", n)
	}
	if n := ts.count(http.MethodPost, "/api/v1/time_accountings"); n != 0 {
		t.Errorf("near-zero submissions hit the generic endpoint %d times, want 0", n)
	}
}

func TestSubmitTimeEntryNegativeCorrection(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handle(http.MethodPost, "/api/v1/tickets/5/time_accountings",
		jsonHandler(`{"id":42,"ticket_id":5,"time_unit":"-15.0","created_by_id":7}`))
	c := newTestClient(t, ts)

	entry, err := c.SubmitTimeEntry(context.Background(), zammad.SubmitTimeEntryRequest{
		TicketID: 5,
		TimeUnit: -15,
	})
	if err != nil {
		t.Fatalf("negative correction: %v", err)
	}
	if entry == nil || entry.ID != 42 || float64(entry.TimeUnit) != -15 {
		t.Errorf("entry = %+v, want id 42 time -15", entry)
	}
}

func TestSubmitTimeEntryEmptyBodyResponse(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handle(http.MethodPost, "/api/v1/tickets/5/time_accountings", statusHandler(http.StatusOK, ""))
	c := newTestClient(t, ts)

	entry, err := c.SubmitTimeEntry(context.Background(), zammad.SubmitTimeEntryRequest{
		TicketID: 5,
		TimeUnit: 30,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if entry == nil || entry.TicketID != 5 || float64(entry.TimeUnit) != 30 {
		t.Errorf("entry = %+v, want synthesized ticket 5 / 30 minutes", entry)
	}
}

func TestSubmitTimeEntryInvalidatesCaches(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handle(http.MethodPost, "/api/v1/tickets/5/time_accountings",
		jsonHandler(`{"id":1,"ticket_id":5,"time_unit":10,"created_by_id":7}`))
	c := newTestClient(t, ts)

	c.cacheTimeEntries(TimeEntriesCacheKey(5), []zammad.TimeEntry{{ID: 1, TicketID: 5}})
	c.cacheTimeEntries(TimeEntriesCacheKey(9), []zammad.TimeEntry{{ID: 2, TicketID: 9}})
	c.cacheTimeEntries(TimeHistoryCacheKey(7), []zammad.TimeEntry{{ID: 1, TicketID: 5}})
	c.cacheTimeEntries(TimeHistoryCacheKey(8), []zammad.TimeEntry{{ID: 2, TicketID: 9}})

	if _, err := c.SubmitTimeEntry(context.Background(), zammad.SubmitTimeEntryRequest{
		TicketID: 5,
		TimeUnit: 10,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, ok := c.cachedTimeEntries(TimeEntriesCacheKey(5)); ok {
		t.Error("written ticket's time-entry key should be invalidated")
	}
	if _, ok := c.cachedTimeEntries(TimeEntriesCacheKey(9)); !ok {
		t.Error("other tickets' time-entry keys must survive the write")
	}
	if _, ok := c.cachedTimeEntries(TimeHistoryCacheKey(7)); ok {
		t.Error("history key for user 7 should be cleared")
	}
	if _, ok := c.cachedTimeEntries(TimeHistoryCacheKey(8)); ok {
		t.Error("history is derived data, every user's key should be cleared")
	}
}

func TestDeleteTimeEntry404IsSuccess(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	// No handlers registered: the deployment answers 404 everywhere, which
	// means the record is already gone.
	if err := c.DeleteTimeEntry(context.Background(), 99, 5); err != nil {
		t.Fatalf("delete of an already-gone record: %v", err)
	}
}

func TestDeleteTimeEntryDiscoversTicket(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handle(http.MethodGet, "/api/v1/time_accountings/99",
		jsonHandler(`{"id":99,"ticket_id":5,"time_unit":15}`))
	ts.handle(http.MethodDelete, "/api/v1/tickets/5/time_accountings/99", statusHandler(http.StatusOK, ""))
	c := newTestClient(t, ts)

	if err := c.DeleteTimeEntry(context.Background(), 99, 0); err != nil {
		t.Fatalf("delete with discovery: %v", err)
	}
	if n := ts.count(http.MethodDelete, "/api/v1/tickets/5/time_accountings/99"); n != 1 {
		t.Errorf("ticket-scoped delete hit %d times, want 1", n)
	}
}

func TestDeleteTimeEntryValidation(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	err := c.DeleteTimeEntry(context.Background(), 0, 5)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for entry id 0, got %v", err)
	}
}

func TestGetTimeEntriesCaching(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handle(http.MethodGet, "/api/v1/tickets/5/time_accountings",
		jsonHandler(`[{"id":1,"ticket_id":5,"time_unit":"15.0","created_by_id":7}]`))
	c := newTestClient(t, ts)

	first, err := c.GetTimeEntries(context.Background(), 5, false)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if len(first) != 1 || float64(first[0].TimeUnit) != 15 {
		t.Fatalf("entries = %+v, want one entry of 15", first)
	}

	if _, err := c.GetTimeEntries(context.Background(), 5, false); err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if n := ts.count(http.MethodGet, "/api/v1/tickets/5/time_accountings"); n != 1 {
		t.Errorf("remote hit %d times after a cached read, want 1", n)
	}

	if _, err := c.GetTimeEntries(context.Background(), 5, true); err != nil {
		t.Fatalf("forced fetch: %v", err)
	}
	if n := ts.count(http.MethodGet, "/api/v1/tickets/5/time_accountings"); n != 2 {
		t.Errorf("remote hit %d times after force, want 2", n)
	}
}

func TestGetTimeEntriesDeduplicatesConcurrentCalls(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	release := make(chan struct{})
	ts.handle(http.MethodGet, "/api/v1/tickets/42/time_accountings", func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":9,"ticket_id":42,"time_unit":20,"created_by_id":7}]`))
	})

	const callers = 4
	var wg sync.WaitGroup
	results := make([][]zammad.TimeEntry, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries, err := c.GetTimeEntries(context.Background(), 42, false)
			if err != nil {
				t.Errorf("concurrent fetch: %v", err)
				return
			}
			results[i] = entries
		}()
	}

	// Give every goroutine a moment to join the in-flight request.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := ts.count(http.MethodGet, "/api/v1/tickets/42/time_accountings"); n != 1 {
		t.Errorf("remote hit %d times for %d concurrent callers, want 1", n, callers)
	}
	for i, entries := range results {
		if len(entries) != 1 || entries[0].ID != 9 {
			t.Errorf("caller %d got %+v, want the single shared entry", i, entries)
		}
	}
}

func TestGetTimeHistoryAdminListing(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	// The admin listing covers every user; entries for user 8 must be
	// filtered out and the rest ordered newest first.
	ts.handle(http.MethodGet, "/api/v1/time_accountings", jsonHandler(`[
		{"id":1,"ticket_id":5,"time_unit":15,"created_by_id":7,"created_at":"2026-08-01T10:00:00Z"},
		{"id":2,"ticket_id":6,"time_unit":30,"created_by_id":8,"created_at":"2026-08-02T10:00:00Z"},
		{"id":3,"ticket_id":5,"time_unit":45,"created_by_id":7,"created_at":"2026-08-03T10:00:00Z"}
	]`))
	c := newTestClient(t, ts)

	history, err := c.GetTimeHistory(context.Background(), 7, false)
	if err != nil {
		t.Fatalf("time history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d entries, want 2 for user 7", len(history))
	}
	if history[0].ID != 3 || history[1].ID != 1 {
		t.Errorf("order = [%d %d], want newest first [3 1]", history[0].ID, history[1].ID)
	}
}

func TestGetTimeHistoryDerivedFallback(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	// No admin listing. The history is derived from the user's tickets.
	ts.handle(http.MethodGet, "/api/v1/tickets", jsonHandler(`[
		{"id":5,"owner_id":7,"title":"a"},
		{"id":6,"owner_id":7,"title":"b"}
	]`))
	ts.handle(http.MethodGet, "/api/v1/tickets/5/time_accountings", jsonHandler(`[
		{"id":1,"ticket_id":5,"time_unit":15,"created_by_id":7,"created_at":"2026-08-01T10:00:00Z"}
	]`))
	ts.handle(http.MethodGet, "/api/v1/tickets/6/time_accountings", jsonHandler(`[
		{"id":2,"ticket_id":6,"time_unit":30,"created_by_id":7,"created_at":"2026-08-02T10:00:00Z"},
		{"id":3,"ticket_id":6,"time_unit":10,"created_by_id":9,"created_at":"2026-08-03T10:00:00Z"}
	]`))
	c := newTestClient(t, ts)

	history, err := c.GetTimeHistory(context.Background(), 7, false)
	if err != nil {
		t.Fatalf("derived history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d entries, want 2 for user 7", len(history))
	}
	if history[0].ID != 2 || history[1].ID != 1 {
		t.Errorf("order = [%d %d], want newest first [2 1]", history[0].ID, history[1].ID)
	}

	// The derived path is memoized: a later forced fetch must not probe the
	// admin endpoints again.
	adminHits := ts.count(http.MethodGet, "/api/v1/time_accountings")
	if _, err := c.GetTimeHistory(context.Background(), 7, true); err != nil {
		t.Fatalf("second derived history: %v", err)
	}
	if n := ts.count(http.MethodGet, "/api/v1/time_accountings"); n != adminHits {
		t.Errorf("admin listing probed again after the derived path was memoized (%d -> %d hits)", adminHits, n)
	}
}

func TestDerivedHistoryCapsToMostRecentTickets(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	// Three tickets, deliberately not ordered by update time. With a cap of
	// two only the newest two may be enumerated.
	ts.handle(http.MethodGet, "/api/v1/tickets", jsonHandler(`[
		{"id":1,"owner_id":7,"updated_at":"2026-08-01T10:00:00Z"},
		{"id":2,"owner_id":7,"updated_at":"2026-08-29T10:00:00Z"},
		{"id":3,"owner_id":7,"updated_at":"2026-08-15T10:00:00Z"}
	]`))
	for _, id := range []string{"1", "2", "3"} {
		ts.handle(http.MethodGet, "/api/v1/tickets/"+id+"/time_accountings", jsonHandler(
			`[{"id":`+id+`,"ticket_id":`+id+`,"time_unit":5,"created_by_id":7,"created_at":"2026-08-0`+id+`T10:00:00Z"}]`))
	}

	c := New(newTestStore(t), Options{
		RequestTimeout:    5 * time.Second,
		ValidationTimeout: 5 * time.Second,
		HistoryTicketCap:  2,
	})
	t.Cleanup(c.Close)
	if err := c.Initialize(context.Background(), ts.srv.URL, "test-token-123"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	c.WaitBackground()

	history, err := c.GetTimeHistory(context.Background(), 7, false)
	if err != nil {
		t.Fatalf("derived history: %v", err)
	}

	got := make(map[int]bool)
	for _, entry := range history {
		got[entry.TicketID] = true
	}
	if !got[2] || !got[3] || got[1] {
		t.Errorf("entries cover tickets %v, want the two most recently updated (2 and 3)", got)
	}
	if n := ts.count(http.MethodGet, "/api/v1/tickets/1/time_accountings"); n != 0 {
		t.Errorf("oldest ticket was enumerated %d times, want 0", n)
	}
}
