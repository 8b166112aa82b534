package service

import (
	"context"
	"strings"
	"time"

	"rinkdesk/backend/internal/cache"
	"rinkdesk/backend/internal/domain"
	"rinkdesk/backend/internal/report"
	"rinkdesk/backend/internal/store"
)

const maxReportDays = 92

// DailyReport summarizes one venue-local day. date is Gregorian unless
// local is set, in which case it is read as a Bikram Sambat date.
func (s *Service) DailyReport(ctx context.Context, branchID string, date string, local bool) (domain.Summary, error) {
	return s.RangeReport(ctx, branchID, date, date, local)
}

// RangeReport summarizes the inclusive day range from..to.
func (s *Service) RangeReport(ctx context.Context, branchID string, from string, to string, local bool) (domain.Summary, error) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}
	if err := authorizeBranch(ctx, branchID); err != nil {
		return domain.Summary{}, err
	}

	start, err := s.parseDay(from, local)
	if err != nil {
		return domain.Summary{}, err
	}
	last := start
	if strings.TrimSpace(to) != "" {
		last, err = s.parseDay(to, local)
		if err != nil {
			return domain.Summary{}, err
		}
	}
	if last.Before(start) {
		return domain.Summary{}, invalid("range end is before range start")
	}
	end := last.AddDate(0, 0, 1)
	if end.Sub(start) > maxReportDays*24*time.Hour+time.Hour {
		return domain.Summary{}, invalid("report range is limited to %d days", maxReportDays)
	}

	// generation must be read before the data it keys
	key := ""
	if gen, err := s.reports.Generation(ctx, branchID); err != nil {
		s.log(ctx).WarnContext(ctx, "report cache generation read failed", "branch_id", branchID, "error", err)
	} else {
		key = cache.ReportKey(branchID, gen, start, end)
		if cached, ok, err := s.reports.Get(ctx, key); err != nil {
			s.log(ctx).WarnContext(ctx, "report cache read failed", "key", key, "error", err)
		} else if ok {
			return *cached, nil
		}
	}

	tickets, err := s.repo.ListTickets(ctx, store.TicketFilter{BranchID: branchID, From: start, To: end})
	if err != nil {
		return domain.Summary{}, err
	}
	sales, err := s.repo.ListSales(ctx, branchID, start, end)
	if err != nil {
		return domain.Summary{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, branchID, start, end)
	if err != nil {
		return domain.Summary{}, err
	}

	summary := report.Build(report.Input{
		BranchID: branchID,
		Currency: s.currency,
		From:     start,
		To:       end,
		Tickets:  tickets,
		Sales:    sales,
		Expenses: expenses,
	}, s.clock)

	if key == "" {
		return summary, nil
	}
	if err := s.reports.Set(ctx, key, &summary, s.reportTTL); err != nil {
		s.log(ctx).WarnContext(ctx, "report cache write failed", "key", key, "error", err)
	}
	return summary, nil
}

// window turns inclusive Gregorian days into a half-open [start, end) range.
// Empty bounds default to today.
func (s *Service) window(from string, to string) (time.Time, time.Time, error) {
	start := s.clock.DayStart(s.clock.Now())
	if strings.TrimSpace(from) != "" {
		day, err := s.parseDay(from, false)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = day
	}
	last := start
	if strings.TrimSpace(to) != "" {
		day, err := s.parseDay(to, false)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		last = day
	}
	if last.Before(start) {
		return time.Time{}, time.Time{}, invalid("range end is before range start")
	}
	return start, last.AddDate(0, 0, 1), nil
}

func (s *Service) parseDay(raw string, local bool) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return s.clock.DayStart(s.clock.Now()), nil
	}
	if local {
		day, err := s.clock.FromLocalCalendar(raw)
		if err != nil {
			return time.Time{}, invalid("%v", err)
		}
		return day, nil
	}
	day, err := s.clock.ParseDay(raw)
	if err != nil {
		return time.Time{}, invalid("%v", err)
	}
	return day, nil
}
