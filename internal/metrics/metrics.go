// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

// Package metrics provides Prometheus metrics for the Zammad client and its
// caches. Metrics are exposed at the /metrics endpoint in Prometheus text
// format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zammad_api_requests_total",
			Help: "Total remote Zammad API requests",
		},
		[]string{"method", "outcome"}, // outcome: success, auth_error, http_error, network_error
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zammad_api_request_duration_seconds",
			Help:    "Duration of remote Zammad API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Endpoint-fallback metrics
	FallbackAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zammad_fallback_attempts_total",
			Help: "Endpoint candidates tried per resource kind",
		},
		[]string{"resource", "outcome"}, // outcome: memo_hit, candidate_hit, exhausted
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zammad_cache_hits_total",
			Help: "Cache hits by cache tier",
		},
		[]string{"cache"}, // customer, ticket, time_entry
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zammad_cache_misses_total",
			Help: "Cache misses by cache tier",
		},
		[]string{"cache"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zammad_cache_evictions_total",
			Help: "Whole-cache TTL evictions by cache tier",
		},
		[]string{"cache"},
	)

	DeduplicatedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zammad_deduplicated_requests_total",
			Help: "Logical fetches joined onto an already in-flight request",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zammad_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zammad_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Background refresh metrics
	RefreshRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zammad_refresh_runs_total",
			Help: "Background cache refresh outcomes per cache key",
		},
		[]string{"key", "outcome"}, // outcome: success, error
	)

	RefreshLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zammad_refresh_last_success_timestamp",
			Help: "Unix timestamp of the last successful background refresh per cache key",
		},
		[]string{"key"},
	)
)
