package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestJSONLoggerCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New("info", "json", &buf)
	ctx := WithRequestID(context.Background(), "req-42")

	FromContext(ctx, base).Info("ticket created", "ticket_number", "000001")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if record["request_id"] != "req-42" {
		t.Fatalf("expected request_id req-42, got %v", record["request_id"])
	}
	if record["msg"] != "ticket created" {
		t.Fatalf("unexpected msg %v", record["msg"])
	}
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	New("info", "text", &buf).Debug("noise")
	if buf.Len() != 0 {
		t.Fatalf("expected debug suppressed, got %q", buf.String())
	}
	if NewRequestID() == NewRequestID() {
		t.Fatalf("expected distinct request ids")
	}
}
