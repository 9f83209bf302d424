package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestInitWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := InitWriter(&buf, "engine", slog.LevelInfo)
	defer slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	l.Debug("hidden")
	ctx := WithTraceID(context.Background(), "NIFTY-1")
	slog.Warn("breaker open", LogWithTrace(ctx)...)

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "engine" || rec["trace_id"] != "NIFTY-1" || rec["msg"] != "breaker open" {
		t.Errorf("record = %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()
	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}
	if attrs := LogWithTrace(ctx); attrs != nil {
		t.Errorf("expected nil attrs, got %v", attrs)
	}

	ts := time.Date(2026, 3, 10, 4, 30, 0, 123456789, time.UTC)
	id := NewTraceID("BANKNIFTY", ts)
	if want := "BANKNIFTY-1773117000123456789"; id != want {
		t.Errorf("NewTraceID = %s, want %s", id, want)
	}
	if got := TraceID(WithTraceID(ctx, id)); got != id {
		t.Errorf("round trip = %q", got)
	}
}
