// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/ticktrack/internal/models/zammad"
)

// submitTimeRequest is the POST /time_entries body.
type submitTimeRequest struct {
	TicketID int     `json:"ticket_id" validate:"required,gt=0"`
	TimeUnit float64 `json:"time_unit"`
	Comment  string  `json:"comment,omitempty" validate:"max=500"`
}

// SubmitTimeEntry records time on a ticket. Near-zero values succeed
// without creating a record.
func (h *Handlers) SubmitTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req submitTimeRequest
	if err := decodeBody(r, &req); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid time entry payload", err)
		return
	}

	entry, err := h.client.SubmitTimeEntry(r.Context(), zammad.SubmitTimeEntryRequest{
		TicketID: req.TicketID,
		TimeUnit: req.TimeUnit,
		Comment:  req.Comment,
	})
	if err != nil {
		respondClientError(w, err)
		return
	}
	if entry == nil {
		respondData(w, http.StatusOK, map[string]string{"status": "skipped"})
		return
	}
	respondData(w, http.StatusCreated, entry)
}

// updateTimeRequest is the PUT /time_entries/{id} body.
type updateTimeRequest struct {
	TicketID int            `json:"ticket_id" validate:"required,gt=0"`
	Fields   map[string]any `json:"fields" validate:"required,min=1"`
}

// UpdateTimeEntry changes an existing time-accounting record.
func (h *Handlers) UpdateTimeEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "entry id must be numeric", nil)
		return
	}

	var req updateTimeRequest
	if err := decodeBody(r, &req); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid update payload", err)
		return
	}

	entry, err := h.client.UpdateTimeEntry(r.Context(), entryID, req.TicketID, req.Fields)
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, entry)
}

// DeleteTimeEntry removes a record. Already-gone records answer as deleted.
func (h *Handlers) DeleteTimeEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "entry id must be numeric", nil)
		return
	}

	ticketID := 0
	if raw := r.URL.Query().Get("ticket_id"); raw != "" {
		if ticketID, err = strconv.Atoi(raw); err != nil {
			respondErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "ticket_id must be numeric", nil)
			return
		}
	}

	if err := h.client.DeleteTimeEntry(r.Context(), entryID, ticketID); err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// TimeHistory returns one user's accounted time, newest first.
func (h *Handlers) TimeHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "VALIDATION_ERROR", "user id must be numeric", nil)
		return
	}
	entries, err := h.client.GetTimeHistory(r.Context(), userID, forceParam(r))
	if err != nil {
		respondClientError(w, err)
		return
	}
	respondData(w, http.StatusOK, entries)
}
