package memory

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"rinkdesk/backend/internal/domain"
	"rinkdesk/backend/internal/store"
)

func TestNextValueConcurrentCallersGetDistinctContiguousValues(t *testing.T) {
	s := New()
	ctx := context.Background()

	const callers = 100
	values := make(chan int64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.NextValue(ctx, "ticketNo")
			if err != nil {
				t.Errorf("next value: %v", err)
				return
			}
			values <- v
		}()
	}
	wg.Wait()
	close(values)

	seen := make(map[int64]bool, callers)
	for v := range values {
		if seen[v] {
			t.Fatalf("duplicate counter value %d", v)
		}
		seen[v] = true
	}
	for want := int64(1); want <= callers; want++ {
		if !seen[want] {
			t.Fatalf("missing counter value %d", want)
		}
	}
}

func TestRaiseCounterNeverLowers(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.RaiseCounter(ctx, "ticketNo", 40); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if err := s.RaiseCounter(ctx, "ticketNo", 10); err != nil {
		t.Fatalf("raise: %v", err)
	}
	next, err := s.NextValue(ctx, "ticketNo")
	if err != nil {
		t.Fatalf("next value: %v", err)
	}
	if next != 41 {
		t.Fatalf("expected 41, got %d", next)
	}
}

func TestCreateTicketRejectsDuplicateNumber(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateTicket(ctx, domain.Ticket{TicketNumber: "000001", BranchID: "b1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.CreateTicket(ctx, domain.Ticket{TicketNumber: "000001", BranchID: "b1"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestMutateTicketBumpsVersionAndIsolatesCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateTicket(ctx, domain.Ticket{TicketNumber: "000007", PlayerNames: []string{"Asha"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	created.PlayerNames[0] = "mutated outside"

	updated, err := s.MutateTicket(ctx, created.ID, func(ticket *domain.Ticket) error {
		ticket.Remarks = "late arrival"
		ticket.TicketNumber = "999999"
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if updated.TicketNumber != "000007" {
		t.Fatalf("ticket number must be immutable, got %s", updated.TicketNumber)
	}
	if updated.PlayerNames[0] != "Asha" {
		t.Fatalf("stored ticket leaked caller mutation: %v", updated.PlayerNames)
	}

	_, err = s.MutateTicket(ctx, created.ID, func(*domain.Ticket) error {
		return store.ErrValidation
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected callback error, got %v", err)
	}
	current, _ := s.GetTicket(ctx, created.ID)
	if current.Version != 2 {
		t.Fatalf("aborted mutation must not persist, version %d", current.Version)
	}
}

func TestListTicketsFiltersByBranchAndWindow(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := time.Date(2026, time.October, 17, 0, 0, 0, 0, time.UTC)

	for i, tc := range []struct {
		branch string
		at     time.Time
	}{
		{"b1", day.Add(2 * time.Hour)},
		{"b1", day.Add(-time.Hour)},
		{"b2", day.Add(3 * time.Hour)},
		{"b1", day.Add(26 * time.Hour)},
	} {
		_, err := s.CreateTicket(ctx, domain.Ticket{
			TicketNumber: string(rune('a' + i)),
			BranchID:     tc.branch,
			BookingDate:  domain.BookingDate{CalendarDate: tc.at},
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	tickets, err := s.ListTickets(ctx, store.TicketFilter{BranchID: "b1", From: day, To: day.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tickets) != 1 || tickets[0].TicketNumber != "a" {
		t.Fatalf("expected only ticket a, got %+v", tickets)
	}
}

func TestSeededUsersCarryBranch(t *testing.T) {
	s, err := NewSeeded("kathmandu-1", slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	users, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 seeded users, got %d", len(users))
	}
	for _, u := range users {
		if u.BranchID != "kathmandu-1" {
			t.Fatalf("expected seeded branch, got %q", u.BranchID)
		}
	}
}

func TestSeededDefaultsWarnThroughLogger(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "")
	t.Setenv("SEED_STAFF_PASSWORD", "")
	var buf bytes.Buffer
	if _, err := NewSeeded("kathmandu-1", slog.New(slog.NewJSONHandler(&buf, nil))); err != nil {
		t.Fatalf("seed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"branch_id":"kathmandu-1"`) {
		t.Fatalf("expected structured warning, got %q", out)
	}
}

func TestSeededRejectsUnhashablePassword(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", strings.Repeat("x", 80))
	t.Setenv("SEED_STAFF_PASSWORD", "staff-secret")
	if _, err := NewSeeded("kathmandu-1", slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))); err == nil {
		t.Fatalf("expected an over-long seed password to fail")
	}
}
