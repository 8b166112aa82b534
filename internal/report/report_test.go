package report

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"rinkdesk/backend/internal/calendar"
	"rinkdesk/backend/internal/domain"
)

func TestBuildAggregatesPerVenueDay(t *testing.T) {
	norm, err := calendar.LoadNormalizer(calendar.DefaultTimezone)
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	loc := norm.Location()
	day1 := time.Date(2026, time.October, 17, 0, 0, 0, 0, loc)
	day2 := day1.AddDate(0, 0, 1)

	in := Input{
		BranchID: "b1",
		From:     day1,
		To:       day1.AddDate(0, 0, 2),
		Tickets: []domain.Ticket{
			{
				NumberOfPeople: 3,
				Fee:            decimal.NewFromInt(400),
				RefundAmount:   decimal.NewFromInt(100),
				PlayerStatus:   domain.PlayerStatus{TotalPlayers: 3, RefundedPlayersCount: 1},
				ExtraTimeEntries: []domain.ExtraTimeEntry{
					{Minutes: 30, Amount: decimal.NewFromInt(150)},
				},
				BookingDate: domain.BookingDate{CalendarDate: day1.Add(10 * time.Hour)},
			},
			{
				NumberOfPeople: 1,
				Fee:            decimal.NewFromInt(100),
				BookingDate:    domain.BookingDate{CalendarDate: day2.Add(9 * time.Hour)},
			},
			{
				NumberOfPeople: 5,
				Fee:            decimal.NewFromInt(500),
				BookingDate:    domain.BookingDate{CalendarDate: day1.Add(-time.Hour)},
			},
		},
		Sales: []domain.Sale{
			{Total: decimal.NewFromInt(60), SoldAt: day1.Add(11 * time.Hour)},
		},
		Expenses: []domain.Expense{
			{Amount: decimal.NewFromInt(80), SpentAt: day2.Add(8 * time.Hour)},
		},
	}

	summary := Build(in, norm)

	if len(summary.Days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(summary.Days))
	}
	if summary.From != "2026-10-17" || summary.To != "2026-10-18" {
		t.Fatalf("unexpected window %s..%s", summary.From, summary.To)
	}
	if summary.Currency != domain.DefaultCurrency {
		t.Fatalf("expected default currency, got %s", summary.Currency)
	}

	first := summary.Days[0]
	if first.LocalDate != "2083-07-01" {
		t.Fatalf("expected local date 2083-07-01, got %s", first.LocalDate)
	}
	if first.Tickets != 1 || first.People != 3 || first.RefundedPlayers != 1 {
		t.Fatalf("unexpected day one counts: %+v", first)
	}
	if !first.NetTicketRevenue.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected net ticket revenue 300, got %s", first.NetTicketRevenue)
	}
	if !first.ExtraTimeRevenue.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected extra time revenue 150, got %s", first.ExtraTimeRevenue)
	}
	if !first.TotalRevenue.Equal(decimal.NewFromInt(360)) {
		t.Fatalf("expected total revenue 360, got %s", first.TotalRevenue)
	}

	second := summary.Days[1]
	if !second.ProfitLoss.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected day two profit 20, got %s", second.ProfitLoss)
	}

	totals := summary.Totals
	if totals.Tickets != 2 {
		t.Fatalf("expected 2 tickets in window, got %d", totals.Tickets)
	}
	if !totals.ProfitLoss.Equal(decimal.NewFromInt(380)) {
		t.Fatalf("expected total profit 380, got %s", totals.ProfitLoss)
	}
}

func TestBuildEmptyWindowHasZeroTotals(t *testing.T) {
	norm := calendar.NewNormalizer(time.UTC)
	day := time.Date(2026, time.October, 17, 0, 0, 0, 0, time.UTC)

	summary := Build(Input{From: day, To: day.AddDate(0, 0, 1)}, norm)

	if len(summary.Days) != 1 {
		t.Fatalf("expected 1 day, got %d", len(summary.Days))
	}
	if !summary.Totals.ProfitLoss.IsZero() || summary.Totals.Tickets != 0 {
		t.Fatalf("expected zero totals, got %+v", summary.Totals)
	}
}
