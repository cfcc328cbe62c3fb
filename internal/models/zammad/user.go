// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package zammad

import "strings"

// User represents a Zammad user record. The same shape is returned by the
// "me" endpoint, the user show/list endpoints, and user search.
type User struct {
	ID             int    `json:"id"`
	Login          string `json:"login"`
	Firstname      string `json:"firstname"`
	Lastname       string `json:"lastname"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	OrganizationID int    `json:"organization_id"`
	RoleIDs        []int  `json:"role_ids,omitempty"`
	Active         bool   `json:"active"`
	LastLogin      string `json:"last_login,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

// DisplayName returns "Firstname Lastname", falling back to login and then
// email when the name fields are blank (common for auto-provisioned
// customers).
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.Firstname + " " + u.Lastname)
	if name != "" {
		return name
	}
	if u.Login != "" {
		return u.Login
	}
	return u.Email
}

// HasCustomerData reports whether a joined customer record carries anything
// worth displaying. Deployments that restrict agent permissions return
// skeleton user objects containing only an id; those count as empty.
func (u *User) HasCustomerData() bool {
	if u == nil {
		return false
	}
	return u.Firstname != "" || u.Lastname != "" || u.Email != "" || u.Login != ""
}

// Role is a Zammad role (Admin, Agent, Customer, or custom).
type Role struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}
