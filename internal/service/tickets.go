package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rinkdesk/backend/internal/domain"
	"rinkdesk/backend/internal/fee"
	"rinkdesk/backend/internal/store"
)

const (
	maxCreateAttempts = 3
	maxMutateAttempts = 3
)

var transitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.StatusBooked:  {domain.StatusPlaying, domain.StatusCompleted, domain.StatusCancelled},
	domain.StatusPlaying: {domain.StatusCompleted, domain.StatusCancelled},
}

func ValidTransition(from domain.TicketStatus, to domain.TicketStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateTicket validates req, prices it, stamps server time and persists it
// under a freshly issued ticket number. Client booking date/time are ignored.
func (s *Service) CreateTicket(ctx context.Context, req domain.TicketCreateRequest) (domain.Ticket, error) {
	req.BranchID = strings.TrimSpace(req.BranchID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.ContactNumber = strings.TrimSpace(req.ContactNumber)
	req.PlayerNames = cleanNames(req.PlayerNames)

	if req.BranchID == "" {
		return domain.Ticket{}, invalid("branch_id is required")
	}
	if req.StaffID == "" {
		return domain.Ticket{}, invalid("staff_id is required")
	}
	if err := authorizeBranch(ctx, req.BranchID); err != nil {
		return domain.Ticket{}, err
	}
	if !req.TicketType.Valid() {
		return domain.Ticket{}, invalid("invalid ticket type %q", req.TicketType)
	}
	if req.CustomerName == "" && len(req.PlayerNames) == 0 {
		return domain.Ticket{}, invalid("customer name or player names required")
	}

	people := max(1, len(req.PlayerNames))
	if req.NumberOfPeople != nil {
		if *req.NumberOfPeople < 1 {
			return domain.Ticket{}, invalid("number of people must be at least 1")
		}
		people = *req.NumberOfPeople
	}
	if len(req.PlayerNames) > people {
		return domain.Ticket{}, invalid("%d player names given for %d people", len(req.PlayerNames), people)
	}
	if req.PerPersonFee.IsNegative() {
		return domain.Ticket{}, invalid("per person fee must not be negative")
	}
	discount := req.Discount
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if req.GroupInfo != nil && req.GroupInfo.GroupPrice.IsNegative() {
		return domain.Ticket{}, invalid("group price must not be negative")
	}

	now := s.clock.Now()
	localDate, err := s.clock.ToLocalCalendar(now)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("stamp booking date: %w", err)
	}

	ticket := domain.Ticket{
		CustomerName:   req.CustomerName,
		PlayerNames:    req.PlayerNames,
		ContactNumber:  req.ContactNumber,
		NumberOfPeople: people,
		TicketType:     req.TicketType,
		PerPersonFee:   req.PerPersonFee,
		Discount:       discount,
		Fee:            fee.TotalFee(req.PerPersonFee, people, discount),
		Currency:       s.currency,
		BookingDate: domain.BookingDate{
			CalendarDate: now.UTC(),
			LocalDate:    localDate,
		},
		BookingTime: s.clock.WallClock(now),
		BranchID:    req.BranchID,
		StaffID:     req.StaffID,
		Status:      domain.StatusBooked,
		PlayerStatus: domain.PlayerStatus{
			TotalPlayers:   people,
			WaitingPlayers: people,
		},
		RefundAmount:     decimal.Zero,
		RefundedPlayers:  []string{},
		ExtraTimeEntries: []domain.ExtraTimeEntry{},
		Remarks:          strings.TrimSpace(req.Remarks),
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
	}
	if req.GroupInfo != nil {
		group := *req.GroupInfo
		ticket.GroupInfo = &group
	}
	if ticket.PlayerNames == nil {
		ticket.PlayerNames = []string{}
	}

	var created *domain.Ticket
	for attempt := 1; ; attempt++ {
		number, fallback, err := s.issuer.Next(ctx)
		if err != nil {
			return domain.Ticket{}, err
		}
		ticket.TicketNumber = number
		created, err = s.repo.CreateTicket(ctx, ticket)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= maxCreateAttempts {
			return domain.Ticket{}, err
		}
		s.log(ctx).WarnContext(ctx, "ticket number collision, reissuing", "ticket_number", number, "fallback", fallback)
		if !fallback {
			continue
		}
		// clock-derived numbers only change once the millisecond turns over
		wait := time.NewTimer(time.Millisecond)
		select {
		case <-ctx.Done():
			wait.Stop()
			return domain.Ticket{}, ctx.Err()
		case <-wait.C:
		}
	}

	s.metrics.TicketCreated(created.BranchID)
	s.invalidateReports(ctx, created.BranchID)
	s.logAudit(ctx, created.BranchID, "ticket_create", "ticket", created.ID,
		fmt.Sprintf("number=%s,type=%s,people=%d,fee=%s", created.TicketNumber, created.TicketType, created.NumberOfPeople, money(created.Fee)))
	s.log(ctx).InfoContext(ctx, "ticket created", "ticket_id", created.ID, "ticket_number", created.TicketNumber, "branch_id", created.BranchID)

	return *created, nil
}

// QuickCreateTicket books a single adult at the configured walk-in fee.
func (s *Service) QuickCreateTicket(ctx context.Context, req domain.QuickTicketRequest) (domain.Ticket, error) {
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		name = "Walk-in"
	}
	branchID := strings.TrimSpace(req.BranchID)
	if branchID == "" {
		branchID = s.defaultBranchID
	}
	one := 1
	return s.CreateTicket(ctx, domain.TicketCreateRequest{
		CustomerName:   name,
		NumberOfPeople: &one,
		TicketType:     domain.TicketAdult,
		PerPersonFee:   s.quickTicketFee,
		BranchID:       branchID,
		StaffID:        req.StaffID,
	})
}

func (s *Service) GetTicket(ctx context.Context, id string) (domain.Ticket, error) {
	ticket, err := s.repo.GetTicket(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := authorizeBranch(ctx, ticket.BranchID); err != nil {
		return domain.Ticket{}, err
	}
	return *ticket, nil
}

func (s *Service) GetTicketByNumber(ctx context.Context, number string) (domain.Ticket, error) {
	ticket, err := s.repo.GetTicketByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := authorizeBranch(ctx, ticket.BranchID); err != nil {
		return domain.Ticket{}, err
	}
	return *ticket, nil
}

// ListTickets returns a branch's tickets booked on Gregorian days from..to inclusive.
// Empty from/to default to today.
func (s *Service) ListTickets(ctx context.Context, branchID string, from string, to string, limit int) ([]domain.Ticket, error) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}
	if err := authorizeBranch(ctx, branchID); err != nil {
		return nil, err
	}
	start, end, err := s.window(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTickets(ctx, store.TicketFilter{BranchID: branchID, From: start, To: end, Limit: limit})
}

func (s *Service) AddExtraTime(ctx context.Context, ticketID string, req domain.ExtraTimeRequest) (domain.Ticket, error) {
	if req.Minutes <= 0 {
		return domain.Ticket{}, invalid("extra time minutes must be positive")
	}
	if !req.Charge.IsPositive() {
		return domain.Ticket{}, invalid("extra time charge must be positive")
	}
	discount := req.Discount
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	amount := fee.ExtraTimeAmount(req.Charge, discount)
	addedBy := actorName(ctx)

	updated, err := s.mutate(ctx, ticketID, func(ticket *domain.Ticket) error {
		if ticket.IsRefunded {
			return invalid("cannot add extra time to a refunded ticket")
		}
		if ticket.Status == domain.StatusCancelled || ticket.Status == domain.StatusCompleted {
			return invalid("cannot add extra time to a %s ticket", ticket.Status)
		}

		ticket.ExtraTimeEntries = append(ticket.ExtraTimeEntries, domain.ExtraTimeEntry{
			AddedBy: addedBy,
			Minutes: req.Minutes,
			Amount:  amount,
			Label:   strings.TrimSpace(req.Label),
			Notes:   strings.TrimSpace(req.Notes),
			AddedAt: s.clock.Now().UTC(),
		})
		total := 0
		for _, entry := range ticket.ExtraTimeEntries {
			total += entry.Minutes
		}
		ticket.TotalExtraMinutes = total
		ticket.Fee = ticket.Fee.Add(amount)
		if ticket.Status == domain.StatusBooked {
			ticket.Status = domain.StatusPlaying
		}
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	s.metrics.ExtraMinutes(req.Minutes)
	s.logAudit(ctx, updated.BranchID, "ticket_extra_time", "ticket", updated.ID,
		fmt.Sprintf("minutes=%d,amount=%s,total_minutes=%d", req.Minutes, money(amount), updated.TotalExtraMinutes))
	return updated, nil
}

// RefundFull refunds whatever has not been refunded yet, less the cancellation fee.
func (s *Service) RefundFull(ctx context.Context, ticketID string, req domain.FullRefundRequest) (domain.RefundResult, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.RefundResult{}, invalid("refund reason is required")
	}
	method, err := refundMethod(req.Method)
	if err != nil {
		return domain.RefundResult{}, err
	}
	if req.CancellationFee.IsNegative() {
		return domain.RefundResult{}, invalid("cancellation fee must not be negative")
	}
	refundedBy := actorName(ctx)

	var amount decimal.Decimal
	updated, err := s.mutate(ctx, ticketID, func(ticket *domain.Ticket) error {
		if ticket.IsRefunded {
			return invalid("ticket already refunded")
		}
		remaining := ticket.Fee.Sub(ticket.RefundAmount)
		amount = fee.FullRefund(remaining, req.CancellationFee)

		ticket.RefundAmount = ticket.RefundAmount.Add(amount)
		ticket.PlayerStatus.RefundedPlayersCount += ticket.PlayerStatus.WaitingPlayers
		ticket.PlayerStatus.WaitingPlayers = 0
		ticket.IsRefunded = true
		ticket.RefundReason = reason
		ticket.RefundDetails = &domain.RefundDetails{
			RefundName:       strings.TrimSpace(req.RefundName),
			RefundMethod:     method,
			RefundedBy:       refundedBy,
			PaymentReference: strings.TrimSpace(req.Reference),
			RefundedAt:       s.clock.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return domain.RefundResult{}, err
	}

	s.metrics.Refund("full")
	s.logAudit(ctx, updated.BranchID, "ticket_refund_full", "ticket", updated.ID,
		fmt.Sprintf("amount=%s,method=%s,reason=%s", money(amount), method, reason))
	s.log(ctx).InfoContext(ctx, "ticket refunded", "ticket_id", updated.ID, "kind", "full", "amount", money(amount))
	return domain.RefundResult{Ticket: updated, Amount: amount}, nil
}

// RefundPartial refunds the named players' share of the fee.
func (s *Service) RefundPartial(ctx context.Context, ticketID string, req domain.PartialRefundRequest) (domain.RefundResult, error) {
	names := cleanNames(req.PlayerNames)
	if len(names) == 0 {
		return domain.RefundResult{}, invalid("select at least one player to refund")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.RefundResult{}, invalid("refund reason is required")
	}
	method, err := refundMethod(req.Method)
	if err != nil {
		return domain.RefundResult{}, err
	}
	if req.CancellationFee.IsNegative() {
		return domain.RefundResult{}, invalid("cancellation fee must not be negative")
	}
	refundedBy := actorName(ctx)

	var amount decimal.Decimal
	updated, err := s.mutate(ctx, ticketID, func(ticket *domain.Ticket) error {
		if ticket.IsRefunded {
			return invalid("ticket already refunded")
		}
		available := unrefundedNames(ticket.PlayerNames, ticket.RefundedPlayers)
		for _, name := range names {
			if available[name] == 0 {
				return invalid("player %q is not on this ticket or already refunded", name)
			}
			available[name]--
		}
		if len(names) > ticket.PlayerStatus.WaitingPlayers {
			return invalid("refunded players exceed waiting players")
		}

		refund, err := fee.PartialRefund(ticket.Fee, ticket.PlayerStatus.TotalPlayers, len(names), req.CancellationFee)
		if err != nil {
			return invalid("ticket has no players to prorate")
		}
		amount = refund

		ticket.RefundAmount = ticket.RefundAmount.Add(amount)
		ticket.RefundedPlayers = append(ticket.RefundedPlayers, names...)
		ticket.PlayerStatus.RefundedPlayersCount += len(names)
		ticket.PlayerStatus.WaitingPlayers -= len(names)
		if ticket.PlayerStatus.RefundedPlayersCount == ticket.PlayerStatus.TotalPlayers {
			ticket.IsRefunded = true
		}
		ticket.RefundReason = reason
		ticket.RefundDetails = &domain.RefundDetails{
			RefundName:       strings.Join(names, ", "),
			RefundMethod:     method,
			RefundedBy:       refundedBy,
			PaymentReference: strings.TrimSpace(req.Reference),
			RefundedAt:       s.clock.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return domain.RefundResult{}, err
	}

	s.metrics.Refund("partial")
	s.logAudit(ctx, updated.BranchID, "ticket_refund_partial", "ticket", updated.ID,
		fmt.Sprintf("players=%s,amount=%s,method=%s,reason=%s", strings.Join(names, "|"), money(amount), method, reason))
	s.log(ctx).InfoContext(ctx, "ticket refunded", "ticket_id", updated.ID, "kind", "partial", "players", len(names), "amount", money(amount))
	return domain.RefundResult{Ticket: updated, Amount: amount}, nil
}

func (s *Service) UpdatePlayerStatus(ctx context.Context, ticketID string, played int) (domain.Ticket, error) {
	if played < 0 {
		return domain.Ticket{}, invalid("played players must not be negative")
	}

	updated, err := s.mutate(ctx, ticketID, func(ticket *domain.Ticket) error {
		if ticket.IsRefunded {
			return invalid("ticket already refunded")
		}
		if ticket.Status == domain.StatusCancelled {
			return invalid("ticket is cancelled")
		}
		ps := &ticket.PlayerStatus
		if played > ps.TotalPlayers-ps.RefundedPlayersCount {
			return invalid("played players exceed available players")
		}
		ps.PlayedPlayers = played
		ps.WaitingPlayers = ps.TotalPlayers - played - ps.RefundedPlayersCount
		if played > 0 && ticket.Status == domain.StatusBooked {
			ticket.Status = domain.StatusPlaying
		}
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	s.logAudit(ctx, updated.BranchID, "ticket_player_status", "ticket", updated.ID,
		fmt.Sprintf("played=%d,waiting=%d,refunded=%d", updated.PlayerStatus.PlayedPlayers, updated.PlayerStatus.WaitingPlayers, updated.PlayerStatus.RefundedPlayersCount))
	return updated, nil
}

// UpdateTicketDetails edits descriptive fields. A new calendar date
// re-derives the local date; booking time is kept.
func (s *Service) UpdateTicketDetails(ctx context.Context, ticketID string, req domain.TicketUpdateRequest) (domain.Ticket, error) {
	var localDate string
	if req.CalendarDate != nil {
		if req.CalendarDate.IsZero() {
			return domain.Ticket{}, invalid("calendar date must not be empty")
		}
		derived, err := s.clock.ToLocalCalendar(*req.CalendarDate)
		if err != nil {
			return domain.Ticket{}, invalid("%v", err)
		}
		localDate = derived
	}
	if req.GroupInfo != nil && req.GroupInfo.GroupPrice.IsNegative() {
		return domain.Ticket{}, invalid("group price must not be negative")
	}

	updated, err := s.mutate(ctx, ticketID, func(ticket *domain.Ticket) error {
		if req.CustomerName != nil {
			ticket.CustomerName = strings.TrimSpace(*req.CustomerName)
		}
		if req.PlayerNames != nil {
			names := cleanNames(req.PlayerNames)
			if len(names) > ticket.PlayerStatus.TotalPlayers {
				return invalid("%d player names given for %d people", len(names), ticket.PlayerStatus.TotalPlayers)
			}
			left := unrefundedNames(names, nil)
			for _, refunded := range ticket.RefundedPlayers {
				if left[refunded] == 0 {
					return invalid("refunded player %q cannot be removed", refunded)
				}
				left[refunded]--
			}
			ticket.PlayerNames = names
		}
		if ticket.CustomerName == "" && len(ticket.PlayerNames) == 0 {
			return invalid("customer name or player names required")
		}
		if req.ContactNumber != nil {
			ticket.ContactNumber = strings.TrimSpace(*req.ContactNumber)
		}
		if req.Remarks != nil {
			ticket.Remarks = strings.TrimSpace(*req.Remarks)
		}
		if req.GroupInfo != nil {
			group := *req.GroupInfo
			ticket.GroupInfo = &group
		}
		if req.CalendarDate != nil {
			ticket.BookingDate = domain.BookingDate{CalendarDate: req.CalendarDate.UTC(), LocalDate: localDate}
		}
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	s.logAudit(ctx, updated.BranchID, "ticket_update", "ticket", updated.ID, "details updated")
	return updated, nil
}

func (s *Service) MarkPrinted(ctx context.Context, ticketID string) (domain.Ticket, error) {
	updated, err := s.mutate(ctx, ticketID, func(ticket *domain.Ticket) error {
		ticket.Printed = true
		ticket.PrintCount++
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	s.logAudit(ctx, updated.BranchID, "ticket_print", "ticket", updated.ID, fmt.Sprintf("count=%d", updated.PrintCount))
	return updated, nil
}

func (s *Service) CompleteTicket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	return s.transition(ctx, ticketID, domain.StatusCompleted)
}

func (s *Service) CancelTicket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	return s.transition(ctx, ticketID, domain.StatusCancelled)
}

func (s *Service) transition(ctx context.Context, ticketID string, to domain.TicketStatus) (domain.Ticket, error) {
	var from domain.TicketStatus
	updated, err := s.mutate(ctx, ticketID, func(ticket *domain.Ticket) error {
		from = ticket.Status
		if !ValidTransition(ticket.Status, to) {
			return invalid("cannot move ticket from %s to %s", ticket.Status, to)
		}
		ticket.Status = to
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	s.logAudit(ctx, updated.BranchID, "ticket_status", "ticket", updated.ID, fmt.Sprintf("%s->%s", from, to))
	return updated, nil
}

func (s *Service) DeleteTicket(ctx context.Context, ticketID string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTicket(ctx, ticketID); err != nil {
		return err
	}
	s.invalidateReports(ctx, ticket.BranchID)
	s.logAudit(ctx, ticket.BranchID, "ticket_delete", "ticket", ticket.ID, "number="+ticket.TicketNumber)
	return nil
}

// mutate runs fn through the repository's per-ticket lock, retrying when a
// concurrent writer wins, and checks the player-count balance before saving.
func (s *Service) mutate(ctx context.Context, ticketID string, fn func(ticket *domain.Ticket) error) (domain.Ticket, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return domain.Ticket{}, invalid("ticket id is required")
	}

	var updated *domain.Ticket
	var err error
	for attempt := 1; attempt <= maxMutateAttempts; attempt++ {
		updated, err = s.repo.MutateTicket(ctx, ticketID, func(ticket *domain.Ticket) error {
			if err := authorizeBranch(ctx, ticket.BranchID); err != nil {
				return err
			}
			if err := fn(ticket); err != nil {
				return err
			}
			if !ticket.PlayerStatus.Balanced() {
				return fmt.Errorf("player counts out of balance: %+v", ticket.PlayerStatus)
			}
			ticket.UpdatedAt = s.clock.Now().UTC()
			return nil
		})
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		s.log(ctx).WarnContext(ctx, "ticket write conflict, retrying", "ticket_id", ticketID, "attempt", attempt)
	}
	if err != nil {
		return domain.Ticket{}, err
	}

	s.invalidateReports(ctx, updated.BranchID)
	return *updated, nil
}

func refundMethod(method domain.RefundMethod) (domain.RefundMethod, error) {
	method = domain.RefundMethod(strings.ToLower(strings.TrimSpace(string(method))))
	if method == "" {
		return domain.RefundCash, nil
	}
	if !method.Valid() {
		return "", invalid("unsupported refund method %q", method)
	}
	return method, nil
}

func cleanNames(names []string) []string {
	if names == nil {
		return nil
	}
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

// unrefundedNames counts each player name not yet consumed by a refund.
func unrefundedNames(players []string, refunded []string) map[string]int {
	counts := make(map[string]int, len(players))
	for _, name := range players {
		counts[name]++
	}
	for _, name := range refunded {
		if counts[name] > 0 {
			counts[name]--
		}
	}
	return counts
}
