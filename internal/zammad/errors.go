// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package zammad

import (
	"fmt"
	"net/http"
)

// The client reports failures through a small set of typed errors. Callers
// branch with errors.As / errors.Is on the types, never on message text.

// ConfigurationError reports a missing or unusable connection configuration
// (empty base URL or token).
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ValidationError reports a missing or invalid caller-supplied argument.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotInitializedError is returned by every data method called before a
// successful Initialize.
type NotInitializedError struct{}

func (e *NotInitializedError) Error() string {
	return "client not initialized: call Initialize with base URL and token first"
}

// AuthError reports a remote 401 or 403. Detail carries any human-readable
// message extracted from the response body.
type AuthError struct {
	StatusCode int
	Detail     string
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("authentication failed (HTTP %d): %s", e.StatusCode, e.Guidance())
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Guidance distinguishes the two auth failure classes for user-facing
// messaging.
func (e *AuthError) Guidance() string {
	if e.StatusCode == http.StatusForbidden {
		return "token lacks permission for this resource"
	}
	return "token is invalid or expired"
}

// HTTPError reports a non-2xx response outside the auth cases.
type HTTPError struct {
	StatusCode int
	Status     string
	Detail     string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("request failed: %s", e.Status)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// NetworkError reports a transport-level failure: the deployment at BaseURL
// could not be reached at all (DNS failure, refused connection, open circuit
// breaker).
type NetworkError struct {
	BaseURL string
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("cannot reach %s: %v", e.BaseURL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ResourceUnavailableError reports that every endpoint candidate for a
// resource was exhausted. Err wraps the last underlying failure, or is nil
// when the candidate list was empty.
type ResourceUnavailableError struct {
	Resource string
	Err      error
}

func (e *ResourceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("no endpoint available for %s", e.Resource)
	}
	return fmt.Sprintf("failed to get %s: %v", e.Resource, e.Err)
}

func (e *ResourceUnavailableError) Unwrap() error { return e.Err }
