// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tomtom215/ticktrack/internal/zammad"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handlers serves the local HTTP surface on top of the Zammad client.
type Handlers struct {
	client *zammad.Client
}

// NewHandlers creates the handler set.
func NewHandlers(client *zammad.Client) *Handlers {
	return &Handlers{client: client}
}

// decodeBody decodes and validates a JSON request body.
func decodeBody(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return err
	}
	return validate.Struct(out)
}

// forceParam reports whether the request asked to bypass caches.
func forceParam(r *http.Request) bool {
	return r.URL.Query().Get("force") == "true"
}

// HealthLive answers liveness probes.
func (h *Handlers) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady answers readiness: ready once the client is initialized.
func (h *Handlers) HealthReady(w http.ResponseWriter, _ *http.Request) {
	if !h.client.IsInitialized() {
		respondErrorMessage(w, http.StatusServiceUnavailable, "NOT_READY", "connection not configured", nil)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "ready"})
}

// connectionStatus is the GET /connection response body.
type connectionStatus struct {
	Initialized bool                `json:"initialized"`
	Validating  bool                `json:"validating"`
	BaseURL     string              `json:"base_url,omitempty"`
	Features    zammad.FeatureFlags `json:"features"`
}

// Connection reports the connection state and detected capabilities.
func (h *Handlers) Connection(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, connectionStatus{
		Initialized: h.client.IsInitialized(),
		Validating:  h.client.IsInitializedButNotValidated(),
		BaseURL:     h.client.BaseURL(),
		Features:    h.client.Features(),
	})
}

// connectRequest is the POST /connection body.
type connectRequest struct {
	URL   string `json:"url" validate:"required,url"`
	Token string `json:"token" validate:"required,min=8"`
}

// Connect configures the Zammad connection. Validation and feature
// detection continue in the background after the response.
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(r, &req); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid connection payload", err)
		return
	}
	if err := h.client.Initialize(r.Context(), req.URL, req.Token); err != nil {
		respondClientError(w, err)
		return
	}
	h.Connection(w, r)
}

// Features returns the detected capability flags.
func (h *Handlers) Features(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, h.client.Features())
}

// DetectFeatures re-probes the deployment synchronously.
func (h *Handlers) DetectFeatures(w http.ResponseWriter, r *http.Request) {
	if !h.client.IsInitialized() {
		respondClientError(w, &zammad.NotInitializedError{})
		return
	}
	respondData(w, http.StatusOK, h.client.DetectFeatures(r.Context()))
}

// Refresh runs one refresh pass over every known cache key.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.client.RefreshOnce(r.Context(), nil); err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
