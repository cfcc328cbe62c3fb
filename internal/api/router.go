// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

// Package api provides the local HTTP surface of ticktrackd, routed with
// chi. The surface is what a UI layer (browser extension popup, desktop
// widget, curl) talks to; it never faces the public internet.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/ticktrack/internal/zammad"
)

// NewRouter builds the full route tree.
func NewRouter(client *zammad.Client, mw MiddlewareConfig) http.Handler {
	handlers := NewHandlers(client)

	r := chi.NewRouter()
	r.Use(CorrelationID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogging)
	r.Use(mw.CORS())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", handlers.HealthLive)
		r.Get("/ready", handlers.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())

		r.Get("/connection", handlers.Connection)
		r.Post("/connection", handlers.Connect)
		r.Get("/features", handlers.Features)
		r.Post("/features/detect", handlers.DetectFeatures)
		r.Post("/refresh", handlers.Refresh)
		r.Get("/events", handlers.Events)

		r.Route("/tickets", func(r chi.Router) {
			r.Get("/assigned", handlers.AssignedTickets)
			r.Get("/all", handlers.AllTickets)
			r.Get("/{id}", handlers.Ticket)
			r.Get("/{id}/articles", handlers.TicketArticles)
			r.Get("/{id}/time_entries", handlers.TicketTimeEntries)
		})

		r.Route("/time_entries", func(r chi.Router) {
			r.Post("/", handlers.SubmitTimeEntry)
			r.Put("/{id}", handlers.UpdateTimeEntry)
			r.Delete("/{id}", handlers.DeleteTimeEntry)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", handlers.CurrentUser)
			r.Get("/", handlers.Users)
			r.Get("/staff", handlers.StaffUsers)
			r.Get("/{id}/tickets", handlers.UserTickets)
			r.Get("/{id}/time_history", handlers.TimeHistory)
		})

		r.Post("/customers/batch", handlers.BatchCustomers)

		r.Get("/groups", handlers.Groups)
		r.Get("/organizations", handlers.Organizations)
		r.Get("/roles", handlers.Roles)
	})

	return r
}
