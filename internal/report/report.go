// Package report folds tickets, sales and expenses into per-day summaries.
package report

import (
	"time"

	"github.com/shopspring/decimal"

	"rinkdesk/backend/internal/calendar"
	"rinkdesk/backend/internal/domain"
)

type Input struct {
	BranchID string
	Currency string
	From     time.Time
	To       time.Time
	Tickets  []domain.Ticket
	Sales    []domain.Sale
	Expenses []domain.Expense
}

// Build aggregates in into one row per venue-local day of [From, To) plus totals.
// Records outside the window are ignored.
func Build(in Input, norm *calendar.Normalizer) domain.Summary {
	start := norm.DayStart(in.From)
	days := make([]domain.DaySummary, 0, 31)
	index := make(map[string]int, 31)
	for day := start; day.Before(in.To); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		row := emptyDay(key)
		if local, err := norm.ToLocalCalendar(day); err == nil {
			row.LocalDate = local
		}
		index[key] = len(days)
		days = append(days, row)
	}

	rowFor := func(at time.Time) *domain.DaySummary {
		if at.Before(in.From) || !at.Before(in.To) {
			return nil
		}
		i, ok := index[norm.DayStart(at).Format("2006-01-02")]
		if !ok {
			return nil
		}
		return &days[i]
	}

	for _, ticket := range in.Tickets {
		row := rowFor(ticket.BookingDate.CalendarDate)
		if row == nil {
			continue
		}
		row.Tickets++
		row.People += ticket.NumberOfPeople
		row.RefundedPlayers += ticket.PlayerStatus.RefundedPlayersCount
		row.TicketRevenue = row.TicketRevenue.Add(ticket.Fee)
		row.ExtraTimeRevenue = row.ExtraTimeRevenue.Add(ticket.ExtraTimeRevenue())
		row.Refunds = row.Refunds.Add(ticket.RefundAmount)
	}
	for _, sale := range in.Sales {
		if row := rowFor(sale.SoldAt); row != nil {
			row.SalesRevenue = row.SalesRevenue.Add(sale.Total)
		}
	}
	for _, expense := range in.Expenses {
		if row := rowFor(expense.SpentAt); row != nil {
			row.Expenses = row.Expenses.Add(expense.Amount)
		}
	}

	totals := emptyDay("")
	for i := range days {
		finish(&days[i])
		accumulate(&totals, days[i])
	}
	finish(&totals)

	currency := in.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	to := in.To.In(norm.Location()).Add(-time.Nanosecond)
	return domain.Summary{
		BranchID: in.BranchID,
		From:     start.Format("2006-01-02"),
		To:       to.Format("2006-01-02"),
		Currency: currency,
		Days:     days,
		Totals:   totals,
	}
}

func emptyDay(date string) domain.DaySummary {
	return domain.DaySummary{
		Date:             date,
		TicketRevenue:    decimal.Zero,
		ExtraTimeRevenue: decimal.Zero,
		Refunds:          decimal.Zero,
		NetTicketRevenue: decimal.Zero,
		SalesRevenue:     decimal.Zero,
		Expenses:         decimal.Zero,
		TotalRevenue:     decimal.Zero,
		ProfitLoss:       decimal.Zero,
	}
}

func finish(row *domain.DaySummary) {
	row.NetTicketRevenue = row.TicketRevenue.Sub(row.Refunds)
	row.TotalRevenue = row.NetTicketRevenue.Add(row.SalesRevenue)
	row.ProfitLoss = row.TotalRevenue.Sub(row.Expenses)
}

func accumulate(total *domain.DaySummary, row domain.DaySummary) {
	total.Tickets += row.Tickets
	total.People += row.People
	total.RefundedPlayers += row.RefundedPlayers
	total.TicketRevenue = total.TicketRevenue.Add(row.TicketRevenue)
	total.ExtraTimeRevenue = total.ExtraTimeRevenue.Add(row.ExtraTimeRevenue)
	total.Refunds = total.Refunds.Add(row.Refunds)
	total.SalesRevenue = total.SalesRevenue.Add(row.SalesRevenue)
	total.Expenses = total.Expenses.Add(row.Expenses)
}
