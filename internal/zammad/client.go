// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

/*
client.go - Core Zammad API Client

This file provides the Client struct, its connection lifecycle, and the
single request-execution choke point every remote call goes through.

Client Features:
  - Token authentication (Authorization: Token token=<token>)
  - Ambient credentials excluded on every request (no cookie jar), so the
    browser session and the configured token can never be conflated
  - Unified error classification into the typed errors of errors.go
  - Circuit breaker protection via sony/gobreaker
  - Automatic HTTP 429 handling with exponential backoff (disabled during
    feature probing)
  - Context support for cancellation and timeouts

Resilience Mechanisms:
  - Circuit Breaker: opens at >=60% failure rate over a minimum of 10
    requests; breaker rejections classify as NetworkError
  - Rate Limiting: exponential backoff (1s, 2s, 4s, 8s, 16s) on HTTP 429
  - Endpoint memo + fallback chains: see endpoints.go

Related Files:
  - endpoints.go: endpoint templates, memoization, fallback runner
  - features.go: deployment capability probing, session-conflict detection
  - tickets.go: ticket fetching and the ticket cache
  - timeentries.go: time accounting CRUD, history, per-key caching
  - users.go: user profile, user listing, customer batch resolution
  - refresh.go: background cache refresh
*/
package zammad

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/ticktrack/internal/cache"
	"github.com/tomtom215/ticktrack/internal/logging"
	"github.com/tomtom215/ticktrack/internal/metrics"
	"github.com/tomtom215/ticktrack/internal/models/zammad"
	"github.com/tomtom215/ticktrack/internal/store"
)

// maxErrorBodySize limits how much of a response body is read for error
// reporting, preventing unbounded allocation on large error pages.
const maxErrorBodySize = 64 * 1024 // 64KB

// settingsKey, profileKey and lastFetchKey are the key-value store keys for
// the persisted connection settings, the cached user profile, and the last
// successful ticket-fetch timestamp (incremental query watermark).
const (
	settingsKey  = "settings"
	profileKey   = "user_profile"
	lastFetchKey = "last_ticket_fetch"
)

// Settings is the persisted connection configuration.
type Settings struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
	UserIDs []int  `json:"user_ids,omitempty"`
}

// Options configures a Client.
type Options struct {
	// TicketTTL, CustomerTTL, TimeEntryTTL are the cache freshness windows.
	// Zero values take the defaults (5m, 1h, 10m).
	TicketTTL    time.Duration
	CustomerTTL  time.Duration
	TimeEntryTTL time.Duration

	// RequestTimeout bounds each remote call. Default 30s.
	RequestTimeout time.Duration

	// ValidationTimeout bounds the background token validation spawned by
	// Initialize. Default 10s.
	ValidationTimeout time.Duration

	// UserPageSize is the page size for explicit user pagination. Default 100.
	UserPageSize int

	// HistoryTicketCap bounds the per-ticket enumeration in the time-history
	// fallback. Default 50.
	HistoryTicketCap int

	// HTTPClient overrides the transport. Test hook; leave nil in production.
	HTTPClient *http.Client
}

func (o *Options) applyDefaults() {
	if o.TicketTTL <= 0 {
		o.TicketTTL = 5 * time.Minute
	}
	if o.CustomerTTL <= 0 {
		o.CustomerTTL = time.Hour
	}
	if o.TimeEntryTTL <= 0 {
		o.TimeEntryTTL = 10 * time.Minute
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.ValidationTimeout <= 0 {
		o.ValidationTimeout = 10 * time.Second
	}
	if o.UserPageSize <= 0 {
		o.UserPageSize = 100
	}
	if o.HistoryTicketCap <= 0 {
		o.HistoryTicketCap = 50
	}
}

// Client is the Zammad API client. It owns the connection state, the feature
// flags, the endpoint memo, and all cache tiers; it is the only component
// that talks to the remote deployment.
//
// Thread Safety: all exported methods are safe for concurrent use. The
// ongoing-request registry (singleflight) collapses concurrent identical
// logical fetches into one remote call; it provides no isolation between
// different keys touching overlapping cache state, and requests in flight
// across an Initialize with a new base URL complete against the connection
// they captured at start. Both are accepted, documented races.
type Client struct {
	mu sync.RWMutex

	baseURL     string
	token       string
	initialized bool
	validated   bool

	features   FeatureFlags
	memo       map[ResourceKind]string
	profile    *zammad.User
	extraUsers []int

	// ticket cache: all keys share one freshness timestamp
	ticketCache map[string][]zammad.Ticket
	ticketStamp time.Time

	// customer cache: one shared freshness timestamp
	customers     map[int]zammad.User
	customerStamp time.Time

	lastTicketFetch time.Time

	opts       Options
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	store      *store.Store

	timeEntries *cache.Cache
	flight      singleflight.Group

	notifications chan RefreshEvent

	// now is the clock; replaceable in tests.
	now func() time.Time

	// background task bookkeeping (token validation, feature detection)
	bg       sync.WaitGroup
	bgMu     sync.Mutex
	bgCancel []context.CancelFunc
	closed   bool
}

// New creates a Client backed by the given store. Previously persisted
// connection settings, endpoint memo, feature flags, and user profile are
// loaded so a restarted process resumes where it left off; no remote call is
// made until Initialize (or a data method after restored initialization).
func New(st *store.Store, opts Options) *Client {
	opts.applyDefaults()

	c := &Client{
		memo:          make(map[ResourceKind]string),
		ticketCache:   make(map[string][]zammad.Ticket),
		customers:     make(map[int]zammad.User),
		opts:          opts,
		store:         st,
		timeEntries:   cache.New(opts.TimeEntryTTL),
		notifications: make(chan RefreshEvent, 16),
		now:           time.Now,
	}

	c.httpClient = opts.HTTPClient
	if c.httpClient == nil {
		// No cookie jar: ambient session credentials must never ride along
		// with token-authenticated requests.
		c.httpClient = &http.Client{Timeout: opts.RequestTimeout}
	}

	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "zammad-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", breakerStateString(from)).Str("to", breakerStateString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, breakerStateString(from), breakerStateString(to)).Inc()
		},
	})

	c.restore()
	return c
}

// restore loads persisted state produced by a previous run.
func (c *Client) restore() {
	c.loadMemo()
	c.loadFeatures()

	var settings Settings
	if err := c.store.GetJSON(settingsKey, &settings); err == nil && settings.BaseURL != "" && settings.Token != "" {
		c.mu.Lock()
		c.baseURL = settings.BaseURL
		c.token = settings.Token
		c.extraUsers = settings.UserIDs
		c.initialized = true
		c.mu.Unlock()
	}

	var profile zammad.User
	if err := c.store.GetJSON(profileKey, &profile); err == nil && profile.ID != 0 {
		c.mu.Lock()
		c.profile = &profile
		c.mu.Unlock()
	}

	var lastFetch time.Time
	if err := c.store.GetJSON(lastFetchKey, &lastFetch); err == nil {
		c.mu.Lock()
		c.lastTicketFetch = lastFetch
		c.mu.Unlock()
	}
}

// Initialize configures the connection. Both arguments are required; the
// base URL is normalized by stripping a trailing slash.
//
// When the normalized URL differs from the previous one, all deployment-
// scoped state is reset and the cleared state persisted before the new
// connection is adopted: endpoint memo, feature flags, user profile, and
// every cache tier.
//
// Initialize returns after persisting the connection; token validation and
// feature detection run in the background and report only through logs and
// client state. Poll IsInitialized / IsInitializedButNotValidated for
// status.
func (c *Client) Initialize(ctx context.Context, baseURL, token string) error {
	if strings.TrimSpace(baseURL) == "" {
		return &ConfigurationError{Reason: "base URL is required"}
	}
	if strings.TrimSpace(token) == "" {
		return &ConfigurationError{Reason: "API token is required"}
	}

	normalized := strings.TrimRight(strings.TrimSpace(baseURL), "/")

	c.mu.Lock()
	urlChanged := c.baseURL != "" && c.baseURL != normalized
	c.mu.Unlock()

	if urlChanged {
		logging.Info().Str("base_url", normalized).Msg("base URL changed, resetting deployment-scoped state")
		c.resetDeploymentState()
	}

	c.mu.Lock()
	c.baseURL = normalized
	c.token = token
	c.initialized = true
	c.validated = false
	c.mu.Unlock()

	if err := c.store.SetJSON(settingsKey, Settings{BaseURL: normalized, Token: token, UserIDs: c.ExtraUserIDs()}); err != nil {
		logging.Warn().Err(err).Msg("failed to persist connection settings")
	}

	c.spawn("token-validation", func(ctx context.Context) {
		validateCtx, cancel := context.WithTimeout(ctx, c.opts.ValidationTimeout)
		defer cancel()
		c.validateToken(validateCtx)
	})
	c.spawn("feature-detection", func(ctx context.Context) {
		c.DetectFeatures(ctx)
	})

	return nil
}

// resetDeploymentState clears everything scoped to one deployment: the
// endpoint memo, feature flags, user profile, and all cache tiers, both in
// memory and in the store.
func (c *Client) resetDeploymentState() {
	c.clearMemo()
	c.clearFeatures()

	c.mu.Lock()
	c.profile = nil
	c.validated = false
	c.ticketCache = make(map[string][]zammad.Ticket)
	c.ticketStamp = time.Time{}
	c.customers = make(map[int]zammad.User)
	c.customerStamp = time.Time{}
	c.lastTicketFetch = time.Time{}
	c.mu.Unlock()

	c.timeEntries.Clear()

	if err := c.store.Delete(profileKey); err != nil {
		logging.Warn().Err(err).Msg("failed to clear persisted user profile")
	}
	if err := c.store.Delete(lastFetchKey); err != nil {
		logging.Warn().Err(err).Msg("failed to clear last-fetch watermark")
	}
	c.store.DropTicketSnapshots()
	c.store.DropCustomers()
	c.store.DeleteTimeEntrySnapshots("")
}

// validateToken performs the background authenticated round-trip that flips
// the advisory validated flag. Failures are logged, never surfaced: callers
// may proceed unvalidated.
func (c *Client) validateToken(ctx context.Context) {
	user, err := c.CurrentUser(ctx, true)
	if err != nil {
		logging.Warn().Err(err).Msg("token validation failed; client stays initialized but unvalidated")
		return
	}

	c.mu.Lock()
	c.validated = true
	c.mu.Unlock()
	logging.Info().Int("user_id", user.ID).Str("user", user.DisplayName()).Msg("token validated")
}

// IsInitialized reports whether the connection is configured.
func (c *Client) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// IsInitializedButNotValidated reports whether the connection is configured
// but the background validation round-trip has not (yet) succeeded. The
// validated flag gates UI messaging only, never request execution.
func (c *Client) IsInitializedButNotValidated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized && !c.validated
}

// BaseURL returns the configured base URL ("" before initialization).
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// ExtraUserIDs returns the additional tracked user ids from the settings.
func (c *Client) ExtraUserIDs() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]int(nil), c.extraUsers...)
}

// SetExtraUserIDs replaces the additional tracked user ids and persists them.
func (c *Client) SetExtraUserIDs(ids []int) {
	c.mu.Lock()
	c.extraUsers = append([]int(nil), ids...)
	settings := Settings{BaseURL: c.baseURL, Token: c.token, UserIDs: c.extraUsers}
	c.mu.Unlock()

	if err := c.store.SetJSON(settingsKey, settings); err != nil {
		logging.Warn().Err(err).Msg("failed to persist settings")
	}
}

// spawn starts a tracked background task with its own cancellation handle.
// Close cancels every running task and waits for them; WaitBackground lets
// tests join deterministically.
func (c *Client) spawn(name string, fn func(ctx context.Context)) {
	c.bgMu.Lock()
	if c.closed {
		c.bgMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logging.ContextWithNewCorrelationID(ctx)
	c.bgCancel = append(c.bgCancel, cancel)
	c.bg.Add(1)
	c.bgMu.Unlock()

	go func() {
		defer c.bg.Done()
		defer cancel()
		logging.Ctx(ctx).Debug().Str("task", name).Msg("background task started")
		fn(ctx)
		logging.Ctx(ctx).Debug().Str("task", name).Msg("background task finished")
	}()
}

// WaitBackground blocks until all currently running background tasks finish.
func (c *Client) WaitBackground() {
	c.bg.Wait()
}

// Close cancels background tasks and releases the in-memory caches. The
// store is owned by the caller and stays open.
func (c *Client) Close() {
	c.bgMu.Lock()
	c.closed = true
	for _, cancel := range c.bgCancel {
		cancel()
	}
	c.bgCancel = nil
	c.bgMu.Unlock()

	c.bg.Wait()
	c.timeEntries.Close()
}

// requestOptions tunes one executeRequest call.
type requestOptions struct {
	// noRetry disables the 429 backoff loop. Feature probes set this so a
	// rate-limited deployment cannot stall detection for tens of seconds.
	noRetry bool
}

// Result is the normalized outcome of a successful request. Exactly one of
// the three shapes applies: decoded JSON, plain text, or an empty body
// (which reads as boolean true, matching DELETE-style endpoints).
type Result struct {
	raw    []byte
	isJSON bool
}

// JSON returns the raw JSON bytes, or the literal true for an empty body.
// For non-JSON text responses it returns the text as a JSON string so
// callers decoding into a typed struct fail with a decode error rather than
// silently misreading.
func (r Result) JSON() json.RawMessage {
	if len(r.raw) == 0 {
		return json.RawMessage("true")
	}
	if r.isJSON {
		return json.RawMessage(r.raw)
	}
	quoted, err := json.Marshal(string(r.raw))
	if err != nil {
		return json.RawMessage("true")
	}
	return quoted
}

// Decode unmarshals the JSON result into out.
func (r Result) Decode(out any) error {
	return json.Unmarshal(r.JSON(), out)
}

// Text returns the body as text.
func (r Result) Text() string {
	return string(r.raw)
}

// executeRequest is the single choke point for all remote calls.
//
// It fails fast with NotInitializedError on an unconfigured client,
// normalizes the path, attaches the token header, excludes ambient
// credentials, classifies every failure into the typed errors of errors.go,
// and handles HTTP 429 with exponential backoff unless opts.noRetry is set.
func (c *Client) executeRequest(ctx context.Context, method, path string, body any, opts requestOptions) (Result, error) {
	c.mu.RLock()
	baseURL, token, initialized := c.baseURL, c.token, c.initialized
	c.mu.RUnlock()

	if !initialized || baseURL == "" || token == "" {
		return Result{}, &NotInitializedError{}
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return Result{}, fmt.Errorf("marshal request body: %w", err)
		}
	}

	start := c.now()
	resp, err := c.doWithBackoff(ctx, method, baseURL+path, token, payload, opts)
	metrics.APIRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(method, "network_error").Inc()
		return Result{}, &NetworkError{BaseURL: baseURL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		metrics.APIRequestsTotal.WithLabelValues(method, "auth_error").Inc()
		return Result{}, &AuthError{StatusCode: resp.StatusCode, Detail: extractErrorDetail(resp.Body)}

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		metrics.APIRequestsTotal.WithLabelValues(method, "http_error").Inc()
		return Result{}, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Detail:     truncatedBodyDetail(resp.Body),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(method, "network_error").Inc()
		return Result{}, &NetworkError{BaseURL: baseURL, Err: fmt.Errorf("read response: %w", err)}
	}

	metrics.APIRequestsTotal.WithLabelValues(method, "success").Inc()
	contentType := resp.Header.Get("Content-Type")
	return Result{raw: raw, isJSON: strings.Contains(contentType, "json")}, nil
}

// doWithBackoff performs the HTTP round trip through the circuit breaker,
// retrying only on HTTP 429 with exponential backoff (1s, 2s, 4s, 8s, 16s),
// honoring Retry-After when present.
func (c *Client) doWithBackoff(ctx context.Context, method, reqURL, token string, payload []byte, opts requestOptions) (*http.Response, error) {
	maxRetries := 5
	if opts.noRetry {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			var bodyReader io.Reader = http.NoBody
			if payload != nil {
				bodyReader = bytes.NewReader(payload)
			}
			req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
			if err != nil {
				return nil, fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Authorization", "Token token="+token)
			req.Header.Set("Accept", "application/json")
			req.Header.Set("Cache-Control", "no-cache")
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			return c.httpClient.Do(req)
		})
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_ = resp.Body.Close()
		if attempt == maxRetries {
			lastErr = fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", maxRetries)
			break
		}

		delay := time.Second * time.Duration(1<<uint(attempt))
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				delay = seconds
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("rate limited (HTTP 429)")
	}
	return nil, lastErr
}

// extractErrorDetail pulls a human-readable message out of an auth error
// body: the JSON fields error, error_human, message in that order, then the
// raw text.
func extractErrorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var fields struct {
		Error      string `json:"error"`
		ErrorHuman string `json:"error_human"`
		Message    string `json:"message"`
	}
	if err := json.Unmarshal(raw, &fields); err == nil {
		for _, candidate := range []string{fields.ErrorHuman, fields.Error, fields.Message} {
			if candidate != "" {
				return candidate
			}
		}
	}
	return strings.TrimSpace(string(raw))
}

// truncatedBodyDetail returns a short plain body for HTTPError detail, or ""
// when the body is long or looks like markup.
func truncatedBodyDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 || strings.HasPrefix(text, "<") {
		return ""
	}
	return text
}

// validTimeValue reports whether v is usable as a time amount. Negative
// values are valid (corrections); NaN and infinities are not.
func validTimeValue(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
