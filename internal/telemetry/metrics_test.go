package telemetry

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m := NewMetrics()
	m.TicketCreated("b1")
	m.TicketNumberFallback()
	m.Refund("full")
	m.ExtraMinutes(30)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`rinkdesk_tickets_created_total{branch="b1"} 1`,
		`rinkdesk_ticket_number_fallback_total 1`,
		`rinkdesk_refunds_total{kind="full"} 1`,
		`rinkdesk_extra_time_minutes_total 30`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.TicketCreated("b1")
	m.TicketNumberFallback()
	m.Refund("partial")
	m.ExtraMinutes(10)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil metrics handler, got %d", rec.Code)
	}
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown := Setup("rinkdesk-test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("expected noop shutdown, got %v", err)
	}
}
