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

// AssignedTickets returns the current user's tickets.
func (h *Handlers) AssignedTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.client.GetAssignedTickets(r.Context(), forceParam(r))
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, tickets)
}

// AllTickets returns every ticket visible to the token.
func (h *Handlers) AllTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.client.GetAllTickets(r.Context(), forceParam(r))
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, tickets)
}

// Ticket returns one ticket by id or number.
func (h *Handlers) Ticket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.client.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, ticket)
}

// TicketArticles returns the messages on one ticket.
func (h *Handlers) TicketArticles(w http.ResponseWriter, r *http.Request) {
	ticketID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "ticket id must be numeric", nil)
		return
	}
	articles, err := h.client.GetTicketArticles(r.Context(), ticketID)
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, articles)
}

// TicketTimeEntries returns the time-accounting records on one ticket.
func (h *Handlers) TicketTimeEntries(w http.ResponseWriter, r *http.Request) {
	ticketID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "ticket id must be numeric", nil)
		return
	}
	entries, err := h.client.GetTimeEntries(r.Context(), ticketID, forceParam(r))
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, entries)
}

// Groups returns the deployment's groups.
func (h *Handlers) Groups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.client.GetAllGroups(r.Context())
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, groups)
}

// Organizations returns the deployment's organizations.
func (h *Handlers) Organizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.client.GetAllOrganizations(r.Context())
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, orgs)
}

// Roles returns the deployment's roles.
func (h *Handlers) Roles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.client.GetAllRoles(r.Context())
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, roles)
}
