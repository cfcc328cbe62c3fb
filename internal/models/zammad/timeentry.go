// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package zammad

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// TimeUnit is the accounted time value of a time entry, in minutes.
//
// Zammad is inconsistent here across versions: create/update requests accept
// a JSON number, but list/show responses serialize the value as a decimal
// string (e.g. "15.0"). TimeUnit decodes both and always encodes as a number.
type TimeUnit float64

// UnmarshalJSON accepts both the numeric and the quoted-string encoding.
func (t *TimeUnit) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*t = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("time_unit %q is not numeric: %w", s, err)
	}
	*t = TimeUnit(v)
	return nil
}

// MarshalJSON always emits a plain number.
func (t TimeUnit) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(t))
}

// TimeEntry represents one Zammad time-accounting record.
type TimeEntry struct {
	ID              int      `json:"id"`
	TicketID        int      `json:"ticket_id"`
	TicketArticleID int      `json:"ticket_article_id,omitempty"`
	TimeUnit        TimeUnit `json:"time_unit"`
	TypeID          int      `json:"type_id,omitempty"`
	UserID          int      `json:"user_id,omitempty"`
	CreatedByID     int      `json:"created_by_id"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

// BelongsTo reports whether the entry was accounted by the given user.
// Older deployments only populate created_by_id, newer ones also user_id;
// either match counts.
func (e TimeEntry) BelongsTo(userID int) bool {
	return e.CreatedByID == userID || (e.UserID != 0 && e.UserID == userID)
}

// SubmitTimeEntryRequest is the create payload for a time-accounting record.
type SubmitTimeEntryRequest struct {
	TicketID int     `json:"ticket_id"`
	TimeUnit float64 `json:"time_unit"`
	Comment  string  `json:"comment,omitempty"`
}
