// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package zammad

import (
	"strconv"

	"github.com/goccy/go-json"
)

// Ticket represents a Zammad ticket as returned by the show, list, and
// expanded search endpoints.
//
// CustomerData is not a remote field: the client joins it in from the
// customer cache (see zammad.Client.EnhanceTicketsWithCustomerData). It is
// denormalized convenience data for the UI layer, never authoritative.
type Ticket struct {
	ID             int    `json:"id"`
	Number         string `json:"number"`
	Title          string `json:"title"`
	GroupID        int    `json:"group_id"`
	StateID        int    `json:"state_id"`
	State          string `json:"state,omitempty"`
	PriorityID     int    `json:"priority_id"`
	CustomerID     int    `json:"customer_id"`
	OwnerID        int    `json:"owner_id"`
	OrganizationID int    `json:"organization_id"`
	Customer       *User  `json:"customer,omitempty"`
	CreatedByID    int    `json:"created_by_id"`
	UpdatedByID    int    `json:"updated_by_id"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`

	CustomerData *User `json:"customer_data,omitempty"`
}

// TicketSearchResult is the non-expanded search response shape:
// an id list plus an assets side-table keyed by stringified ticket id.
// Expanded searches return a plain []Ticket instead; DecodeTicketList
// handles both.
type TicketSearchResult struct {
	Tickets      []int              `json:"tickets"`
	TicketsCount int                `json:"tickets_count"`
	Assets       TicketSearchAssets `json:"assets"`
}

type TicketSearchAssets struct {
	Ticket map[string]Ticket `json:"Ticket"`
	User   map[string]User   `json:"User"`
}

// DecodeTicketList normalizes the two search/list response shapes into a
// plain ticket slice. Raw may be a JSON array of tickets (expanded search,
// plain list) or a TicketSearchResult envelope (non-expanded search). The
// envelope's id order is preserved; ids missing from the assets table are
// skipped.
func DecodeTicketList(raw json.RawMessage) ([]Ticket, error) {
	var tickets []Ticket
	if err := json.Unmarshal(raw, &tickets); err == nil {
		return tickets, nil
	}

	var result TicketSearchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}

	tickets = make([]Ticket, 0, len(result.Tickets))
	for _, id := range result.Tickets {
		if ticket, ok := result.Assets.Ticket[strconv.Itoa(id)]; ok {
			tickets = append(tickets, ticket)
		}
	}
	return tickets, nil
}

// Article represents a message on a ticket (email, note, phone memo).
type Article struct {
	ID          int    `json:"id"`
	TicketID    int    `json:"ticket_id"`
	TypeID      int    `json:"type_id"`
	Type        string `json:"type,omitempty"`
	Sender      string `json:"sender,omitempty"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	ContentType string `json:"content_type"`
	Internal    bool   `json:"internal"`
	CreatedByID int    `json:"created_by_id"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Group is a Zammad group (queue).
type Group struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Organization is a Zammad organization.
type Organization struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Note   string `json:"note,omitempty"`
}
