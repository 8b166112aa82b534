package store

import (
	"context"
	"errors"
	"time"

	"rinkdesk/backend/internal/domain"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("store unavailable")
)

// TicketFilter narrows ListTickets. Zero times leave that bound open.
type TicketFilter struct {
	BranchID string
	From     time.Time
	To       time.Time
	Status   domain.TicketStatus
	Limit    int
}

// MutateFunc edits a ticket in place. Returning an error aborts the write.
type MutateFunc func(ticket *domain.Ticket) error

type Repository interface {
	CreateTicket(ctx context.Context, ticket domain.Ticket) (*domain.Ticket, error)
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	GetTicketByNumber(ctx context.Context, ticketNumber string) (*domain.Ticket, error)
	// MutateTicket applies fn to the current ticket under a per-record lock
	// and persists the result with Version incremented.
	MutateTicket(ctx context.Context, id string, fn MutateFunc) (*domain.Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	DeleteTicket(ctx context.Context, id string) error

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.Sale, error)
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.Expense, error)

	NextValue(ctx context.Context, name string) (int64, error)
	ListCounters(ctx context.Context) ([]domain.Counter, error)
	// RaiseCounter sets a counter to value unless it is already higher.
	RaiseCounter(ctx context.Context, name string, value int64) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
