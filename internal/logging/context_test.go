// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestCorrelationIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := ContextWithCorrelationID(context.Background(), "abc-123")
	if got := CorrelationIDFromContext(ctx); got != "abc-123" {
		t.Errorf("correlation id = %q, want abc-123", got)
	}

	if got := CorrelationIDFromContext(context.Background()); got != "" {
		t.Errorf("empty context returned %q, want empty", got)
	}
}

func TestContextWithNewCorrelationID(t *testing.T) {
	t.Parallel()

	ctx := ContextWithNewCorrelationID(context.Background())
	first := CorrelationIDFromContext(ctx)
	if first == "" {
		t.Fatal("generated correlation id is empty")
	}
	second := CorrelationIDFromContext(ContextWithNewCorrelationID(context.Background()))
	if first == second {
		t.Error("two generated correlation ids collided")
	}
}

func TestCtxAttachesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	old := Logger()
	SetLogger(NewTestLogger(&buf))
	defer SetLogger(old)

	ctx := ContextWithCorrelationID(context.Background(), "req-42")
	Ctx(ctx).Info().Msg("hello")

	if !strings.Contains(buf.String(), "req-42") {
		t.Errorf("log line %q missing the correlation id", buf.String())
	}
}

func TestCtxWithoutCorrelationIDLogs(t *testing.T) {
	var buf bytes.Buffer
	old := Logger()
	SetLogger(NewTestLogger(&buf))
	defer SetLogger(old)

	logger := Ctx(context.Background())
	logger.Debug().Str("component", "test").Msg("plain line")

	out := buf.String()
	if !strings.Contains(out, "plain line") {
		t.Errorf("log output %q missing message", out)
	}
	if strings.Contains(out, "correlation_id") {
		t.Errorf("log output %q carries a correlation id for an empty context", out)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"WARN", "warn"},
		{"warning", "warn"},
		{"nonsense", "info"},
		{"", "info"},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in).String(); got != tt.want {
			t.Errorf("parseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
