// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// CurrentUser returns the token's own profile.
func (h *Handlers) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.client.CurrentUser(r.Context(), forceParam(r))
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, user)
}

// Users lists every user.
func (h *Handlers) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.client.GetAllUsers(r.Context())
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, users)
}

// StaffUsers lists the active admin and agent users.
func (h *Handlers) StaffUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.client.GetAdminAgentUsers(r.Context())
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, users)
}

// UserTickets returns the tickets owned by one user.
func (h *Handlers) UserTickets(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "user id must be numeric", nil)
		return
	}
	tickets, err := h.client.GetTicketsForUser(r.Context(), userID, forceParam(r))
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, tickets)
}

// batchCustomersRequest is the POST /customers/batch body.
type batchCustomersRequest struct {
	IDs []int `json:"ids" validate:"required,min=1,max=500,dive,gt=0"`
}

// BatchCustomers resolves customer records for a set of ids. Unresolvable
// ids are absent from the result, not errors.
func (h *Handlers) BatchCustomers(w http.ResponseWriter, r *http.Request) {
	var req batchCustomersRequest
	if err := decodeBody(r, &req); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid batch payload", err)
		return
	}
	customers, err := h.client.BatchFetchCustomers(r.Context(), req.IDs)
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, customers)
}
