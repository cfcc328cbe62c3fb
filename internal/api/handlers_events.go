// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ticktrack/internal/logging"
)

// keepAliveInterval is how often the event stream sends a comment line so
// intermediaries do not drop an idle connection.
const keepAliveInterval = 30 * time.Second

// Events streams cache refresh notifications as server-sent events, one
// "refresh" event per attempted key. The stream ends when the client
// disconnects.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondErrorMessage(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "response writer does not support streaming", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	events := h.client.Notifications()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				logging.Ctx(r.Context()).Warn().Err(err).Msg("failed to marshal refresh event")
				continue
			}
			fmt.Fprintf(w, "event: refresh\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
