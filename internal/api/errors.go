// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/ticktrack/internal/zammad"
)

// respondClientError maps the client's typed error taxonomy onto HTTP
// statuses and error codes:
//
//	ConfigurationError, ValidationError  -> 400
//	NotInitializedError                  -> 409
//	AuthError                            -> upstream 401/403, passed through
//	HTTPError, NetworkError              -> 502
//	ResourceUnavailableError             -> 503
//
// Anything unrecognized is a 500.
func respondClientError(w http.ResponseWriter, err error) {
	var (
		configErr      *zammad.ConfigurationError
		validationErr  *zammad.ValidationError
		notInitErr     *zammad.NotInitializedError
		authErr        *zammad.AuthError
		httpErr        *zammad.HTTPError
		networkErr     *zammad.NetworkError
		unavailableErr *zammad.ResourceUnavailableError
	)

	switch {
	case errors.As(err, &configErr):
		respondErrorMessage(w, http.StatusBadRequest, "CONFIGURATION_ERROR", configErr.Error(), nil)
	case errors.As(err, &validationErr):
		respondErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", validationErr.Error(), nil)
	case errors.As(err, &notInitErr):
		respondErrorMessage(w, http.StatusConflict, "NOT_INITIALIZED", notInitErr.Error(), nil)
	case errors.As(err, &authErr):
		respondErrorMessage(w, authErr.StatusCode, "AUTH_ERROR", authErr.Guidance(), err)
	case errors.As(err, &httpErr):
		respondErrorMessage(w, http.StatusBadGateway, "UPSTREAM_ERROR", httpErr.Error(), err)
	case errors.As(err, &networkErr):
		respondErrorMessage(w, http.StatusBadGateway, "NETWORK_ERROR", networkErr.Error(), err)
	case errors.As(err, &unavailableErr):
		respondErrorMessage(w, http.StatusServiceUnavailable, "RESOURCE_UNAVAILABLE", unavailableErr.Error(), err)
	default:
		respondErrorMessage(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", err)
	}
}
