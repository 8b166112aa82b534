package memory

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"rinkdesk/backend/internal/domain"
	"rinkdesk/backend/internal/store"
	"rinkdesk/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	ticketsByID     map[string]domain.Ticket
	ticketIDsByNo   map[string]string
	sales           []domain.Sale
	expenses        []domain.Expense
	counters        map[string]int64
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD, with a warning when the
// built-in defaults are used.
func seedUsers(branchID string, logger *slog.Logger) (map[string]domain.UserAccount, error) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		logger.Warn("memory store using default dev credentials",
			"branch_id", branchID, "override", "SEED_ADMIN_PASSWORD,SEED_STAFF_PASSWORD")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			BranchID:  branchID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		ticketsByID:     make(map[string]domain.Ticket),
		ticketIDsByNo:   make(map[string]string),
		sales:           make([]domain.Sale, 0, 64),
		expenses:        make([]domain.Expense, 0, 32),
		counters:        make(map[string]int64),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns an empty store with the admin and staff accounts for
// branchID. A nil logger uses slog.Default.
func NewSeeded(branchID string, logger *slog.Logger) (*Store, error) {
	if branchID == "" {
		branchID = "main-branch"
	}
	if logger == nil {
		logger = slog.Default()
	}
	users, err := seedUsers(branchID, logger)
	if err != nil {
		return nil, err
	}
	s := New()
	s.usersByUsername = users
	return s, nil
}

func (s *Store) CreateTicket(_ context.Context, ticket domain.Ticket) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = xid.New("tkt")
	}
	if _, exists := s.ticketsByID[ticket.ID]; exists {
		return nil, fmt.Errorf("%w: ticket %s already exists", store.ErrConflict, ticket.ID)
	}
	if _, exists := s.ticketIDsByNo[ticket.TicketNumber]; exists {
		return nil, fmt.Errorf("%w: ticket number %s already issued", store.ErrConflict, ticket.TicketNumber)
	}
	if ticket.Version < 1 {
		ticket.Version = 1
	}
	stored := ticket.Clone()
	s.ticketsByID[stored.ID] = stored
	s.ticketIDsByNo[stored.TicketNumber] = stored.ID

	created := stored.Clone()
	return &created, nil
}

func (s *Store) GetTicket(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ticket, ok := s.ticketsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := ticket.Clone()
	return &dup, nil
}

func (s *Store) GetTicketByNumber(_ context.Context, ticketNumber string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.ticketIDsByNo[ticketNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := s.ticketsByID[id].Clone()
	return &dup, nil
}

func (s *Store) MutateTicket(_ context.Context, id string, fn store.MutateFunc) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.ticketsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	working := current.Clone()
	if err := fn(&working); err != nil {
		return nil, err
	}
	// identity fields are owned by the store
	working.ID = current.ID
	working.TicketNumber = current.TicketNumber
	working.Version = current.Version + 1
	s.ticketsByID[id] = working

	updated := working.Clone()
	return &updated, nil
}

func (s *Store) ListTickets(_ context.Context, filter store.TicketFilter) ([]domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Ticket, 0, 64)
	for _, ticket := range s.ticketsByID {
		if filter.BranchID != "" && ticket.BranchID != filter.BranchID {
			continue
		}
		if filter.Status != "" && ticket.Status != filter.Status {
			continue
		}
		at := ticket.BookingDate.CalendarDate
		if !filter.From.IsZero() && at.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !at.Before(filter.To) {
			continue
		}
		result = append(result, ticket.Clone())
	}

	slices.SortFunc(result, func(a, b domain.Ticket) int {
		if c := a.BookingDate.CalendarDate.Compare(b.BookingDate.CalendarDate); c != 0 {
			return c
		}
		return cmp.Compare(a.TicketNumber, b.TicketNumber)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) DeleteTicket(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.ticketsByID[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.ticketIDsByNo, ticket.TicketNumber)
	delete(s.ticketsByID, id)
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	for _, existing := range s.sales {
		if existing.ID == sale.ID {
			return nil, fmt.Errorf("%w: sale %s already exists", store.ErrConflict, sale.ID)
		}
	}
	s.sales = append(s.sales, sale)
	created := sale
	return &created, nil
}

func (s *Store) ListSales(_ context.Context, branchID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if branchID != "" && sale.BranchID != branchID {
			continue
		}
		if !inWindow(sale.SoldAt, from, to) {
			continue
		}
		result = append(result, sale)
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		return a.SoldAt.Compare(b.SoldAt)
	})
	return result, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	for _, existing := range s.expenses {
		if existing.ID == expense.ID {
			return nil, fmt.Errorf("%w: expense %s already exists", store.ErrConflict, expense.ID)
		}
	}
	s.expenses = append(s.expenses, expense)
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, branchID string, from time.Time, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, len(s.expenses))
	for _, expense := range s.expenses {
		if branchID != "" && expense.BranchID != branchID {
			continue
		}
		if !inWindow(expense.SpentAt, from, to) {
			continue
		}
		result = append(result, expense)
	}
	slices.SortFunc(result, func(a, b domain.Expense) int {
		return a.SpentAt.Compare(b.SpentAt)
	})
	return result, nil
}

func (s *Store) NextValue(_ context.Context, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("%w: counter name required", store.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[name]++
	return s.counters[name], nil
}

func (s *Store) ListCounters(_ context.Context) ([]domain.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counters := make([]domain.Counter, 0, len(s.counters))
	for name, value := range s.counters {
		counters = append(counters, domain.Counter{Name: name, CurrentValue: value})
	}
	slices.SortFunc(counters, func(a, b domain.Counter) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return counters, nil
}

func (s *Store) RaiseCounter(_ context.Context, name string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counters[name] < value {
		s.counters[name] = value
	}
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if branchID != "" && entry.BranchID != branchID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return fmt.Errorf("%w: username and password required", store.ErrValidation)
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: username already exists", store.ErrConflict)
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: username and password required", store.ErrValidation)
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func inWindow(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}
