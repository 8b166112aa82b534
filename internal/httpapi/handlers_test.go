package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"rinkdesk/backend/internal/calendar"
	"rinkdesk/backend/internal/domain"
	"rinkdesk/backend/internal/logger"
	"rinkdesk/backend/internal/service"
	"rinkdesk/backend/internal/store/memory"
	"rinkdesk/backend/internal/telemetry"
)

// newTestAPI builds the full stack over an in-memory store so handler tests
// exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	return newTestAPIWithClock(t, nil)
}

// newTestAPIWithClock builds the API on a service whose clock is now, or the
// wall clock when now is nil.
func newTestAPIWithClock(t *testing.T, now func() time.Time) *API {
	t.Helper()

	norm, err := calendar.LoadNormalizer(calendar.DefaultTimezone)
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	if now != nil {
		norm = norm.WithClock(now)
	}
	repo, err := memory.NewSeeded("test-branch", logger.Discard())
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	metrics := telemetry.NewMetrics()
	svc := service.New(repo, norm, service.Options{
		DefaultBranchID: "test-branch",
		QuickTicketFee:  decimal.NewFromInt(200),
		Metrics:         metrics,
		Logger:          logger.Discard(),
	})
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)

	return New(svc, auth, "*", logger.Discard(), metrics.Handler())
}

type session struct {
	handler http.Handler
	token   string
	csrf    string
}

func newSession(t *testing.T, api *API, username string, password string) session {
	t.Helper()
	return session{
		handler: api.Handler(),
		token:   login(t, api, username, password),
		csrf:    fetchCSRFToken(t, api),
	}
}

func (s session) do(t *testing.T, method string, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	var req *http.Request
	if reader != nil {
		req = httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-CSRF-Token", s.csrf)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeTicket(t *testing.T, rec *httptest.ResponseRecorder) ticketView {
	t.Helper()
	var view ticketView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	return view
}

func createTestTicket(t *testing.T, s session) ticketView {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/tickets", map[string]any{
		"customer_name":    "Asha",
		"player_names":     []string{"Asha", "Bikash", "Chandra"},
		"number_of_people": 3,
		"ticket_type":      "Group",
		"per_person_fee":   "100",
		"discount":         "50",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create ticket: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	return decodeTicket(t, rec)
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	payload, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestTicketsRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets", nil)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateTicketFillsActorAndStampsServerTime(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "staff", "staff123")

	ticket := createTestTicket(t, s)
	if !ticket.Fee.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("expected fee 250, got %s", ticket.Fee)
	}
	if ticket.StaffID != "staff" || ticket.BranchID != "test-branch" {
		t.Fatalf("expected actor defaults, got staff=%s branch=%s", ticket.StaffID, ticket.BranchID)
	}
	if ticket.BookingDate.LocalDate == "" || ticket.BookingTime == "" || ticket.TicketNumber != "000001" {
		t.Fatalf("expected server stamps, got %+v", ticket.BookingDate)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/tickets/number/"+ticket.TicketNumber, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get by number: expected 200, got %d", rec.Code)
	}
	if got := decodeTicket(t, rec); got.ID != ticket.ID || got.Inactive {
		t.Fatalf("unexpected ticket by number %+v", got)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/tickets", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), ticket.ID) {
		t.Fatalf("list: expected ticket in listing, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateTicketRejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "staff", "staff123")

	rec := s.do(t, http.MethodPost, "/api/v1/tickets", map[string]any{"customer_name": "A", "vip": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/v1/tickets", map[string]any{"customer_name": "A", "ticket_type": "VIP"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad type, got %d", rec.Code)
	}
}

func TestQuickTicket(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "staff", "staff123")

	rec := s.do(t, http.MethodPost, "/api/v1/tickets/quick", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if ticket := decodeTicket(t, rec); !ticket.Fee.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected quick fee 200, got %s", ticket.Fee)
	}
}

func TestExtraTimeAndRefundFlow(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "staff", "staff123")
	ticket := createTestTicket(t, s)
	base := "/api/v1/tickets/" + ticket.ID

	rec := s.do(t, http.MethodPost, base+"/extra-time", map[string]any{"minutes": 30, "charge": "60", "discount": "10"})
	if rec.Code != http.StatusOK {
		t.Fatalf("extra time: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if updated := decodeTicket(t, rec); !updated.Fee.Equal(decimal.NewFromInt(300)) || updated.TotalExtraMinutes != 30 {
		t.Fatalf("unexpected extra time result fee=%s minutes=%d", updated.Fee, updated.TotalExtraMinutes)
	}

	rec = s.do(t, http.MethodPost, base+"/refund/partial", map[string]any{"player_names": []string{"Bikash"}, "reason": "injury", "manager_pin": "000000"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong pin, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, base+"/refund/partial", map[string]any{"player_names": []string{"Bikash"}, "reason": "injury", "manager_pin": "123456"})
	if rec.Code != http.StatusOK {
		t.Fatalf("partial refund: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var result domain.RefundResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode refund: %v", err)
	}
	if !result.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected partial refund 100, got %s", result.Amount)
	}

	rec = s.do(t, http.MethodPost, base+"/refund", map[string]any{"reason": "closing", "manager_pin": "123456"})
	if rec.Code != http.StatusOK {
		t.Fatalf("full refund: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, base+"/refund", map[string]any{"reason": "again", "manager_pin": "123456"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("double refund: expected 400, got %d", rec.Code)
	}
}

func TestPlayerStatusAndTransitions(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "staff", "staff123")
	ticket := createTestTicket(t, s)
	base := "/api/v1/tickets/" + ticket.ID

	rec := s.do(t, http.MethodPost, base+"/players", map[string]any{"played_players": 5})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too many players, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, base+"/players", map[string]any{"played_players": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("players: expected 200, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, base+"/print", nil); rec.Code != http.StatusOK {
		t.Fatalf("print: expected 200, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, base+"/complete", nil); rec.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, base+"/cancel", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("cancel after complete: expected 400, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/tickets/tkt_missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing ticket: expected 404, got %d", rec.Code)
	}
}

func TestDeleteTicketIsAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	staff := newSession(t, api, "staff", "staff123")
	admin := newSession(t, api, "admin", "admin123")
	ticket := createTestTicket(t, staff)
	path := "/api/v1/tickets/" + ticket.ID

	if rec := staff.do(t, http.MethodDelete, path, map[string]any{"manager_pin": "123456"}); rec.Code != http.StatusForbidden {
		t.Fatalf("staff delete: expected 403, got %d", rec.Code)
	}
	if rec := admin.do(t, http.MethodDelete, path, map[string]any{"manager_pin": "123456"}); rec.Code != http.StatusNoContent {
		t.Fatalf("admin delete: expected 204, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec := admin.do(t, http.MethodGet, path, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted ticket: expected 404, got %d", rec.Code)
	}
}

func TestSalesExpensesAndDailyReport(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "admin", "admin123")
	createTestTicket(t, s)

	if rec := s.do(t, http.MethodPost, "/api/v1/sales", map[string]any{"item": "Socks", "quantity": 2, "unit_price": "30"}); rec.Code != http.StatusCreated {
		t.Fatalf("sale: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/expenses", map[string]any{"category": "ice", "amount": "40"}); rec.Code != http.StatusCreated {
		t.Fatalf("expense: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/sales", nil); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Socks") {
		t.Fatalf("list sales: got %d %s", rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodGet, "/api/v1/reports/daily", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var summary domain.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if !summary.Totals.ProfitLoss.Equal(decimal.NewFromInt(270)) {
		t.Fatalf("expected profit 270, got %s", summary.Totals.ProfitLoss)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/reports/daily?format=csv", nil)
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/csv") {
		t.Fatalf("expected csv content type, got %q", got)
	}
	if body := rec.Body.String(); !strings.HasPrefix(body, "date,local_date,") || !strings.Contains(body, "\ntotal,") {
		t.Fatalf("unexpected csv body %q", body)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/reports/daily?format=html", nil)
	if !strings.Contains(rec.Body.String(), "<table>") {
		t.Fatalf("expected printable html, got %q", rec.Body.String())
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/reports/range?from=2025-10-10&to=2025-10-01", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted range: expected 400, got %d", rec.Code)
	}
}

func TestAdminOnlyRoutes(t *testing.T) {
	api := newTestAPI(t)
	staff := newSession(t, api, "staff", "staff123")
	admin := newSession(t, api, "admin", "admin123")

	if rec := staff.do(t, http.MethodGet, "/api/v1/audit-logs", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("staff audit logs: expected 403, got %d", rec.Code)
	}
	createTestTicket(t, staff)
	rec := admin.do(t, http.MethodGet, "/api/v1/audit-logs", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ticket_create") {
		t.Fatalf("admin audit logs: got %d %s", rec.Code, rec.Body.String())
	}

	rec = admin.do(t, http.MethodPost, "/api/v1/users/staff", map[string]any{"username": "skater1", "password": "pass1234"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create staff: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	rec = admin.do(t, http.MethodGet, "/api/v1/users/staff", nil)
	if !strings.Contains(rec.Body.String(), "skater1") {
		t.Fatalf("expected new staff in listing, got %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "staff", "staff123")
	createTestTicket(t, s)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "rinkdesk_tickets_created_total") {
		t.Fatalf("expected ticket counter in metrics, got %d", rec.Code)
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("expected json 404, got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestTicketInactiveUsesServiceClock(t *testing.T) {
	current := time.Date(2025, time.October, 17, 4, 30, 0, 0, time.UTC)
	api := newTestAPIWithClock(t, func() time.Time { return current })
	s := newSession(t, api, "admin", "admin123")

	ticket := createTestTicket(t, s)
	if ticket.Inactive {
		t.Fatalf("expected new ticket to be active")
	}

	current = current.Add(2 * time.Hour)
	rec := s.do(t, http.MethodGet, "/api/v1/tickets/"+ticket.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get ticket: expected 200, got %d", rec.Code)
	}
	if got := decodeTicket(t, rec); !got.Inactive {
		t.Fatalf("expected ticket inactive two hours after booking")
	}
}
