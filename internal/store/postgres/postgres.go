package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"rinkdesk/backend/internal/domain"
	"rinkdesk/backend/internal/store"
	"rinkdesk/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateTicket(ctx context.Context, ticket domain.Ticket) (*domain.Ticket, error) {
	if ticket.ID == "" {
		ticket.ID = xid.New("tkt")
	}
	if ticket.Version < 1 {
		ticket.Version = 1
	}
	doc, err := json.Marshal(ticket)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, ticket_number, branch_id, status, booking_at, version, doc, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, ticket.ID, ticket.TicketNumber, ticket.BranchID, string(ticket.Status), ticket.BookingDate.CalendarDate,
		ticket.Version, doc, ticket.CreatedAt, ticket.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: ticket number %s already issued", store.ErrConflict, ticket.TicketNumber)
		}
		return nil, classify(err)
	}

	created := ticket.Clone()
	return &created, nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.findTicket(ctx, "id", id)
}

func (s *Store) GetTicketByNumber(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	return s.findTicket(ctx, "ticket_number", ticketNumber)
}

func (s *Store) findTicket(ctx context.Context, column string, value string) (*domain.Ticket, error) {
	var doc []byte
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT doc, version FROM tickets WHERE `+column+` = $1`, value).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classify(err)
	}
	return decodeTicket(doc, version)
}

// MutateTicket locks the row, applies fn and writes it back only if the
// version it read is still current.
func (s *Store) MutateTicket(ctx context.Context, id string, fn store.MutateFunc) (*domain.Ticket, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	var doc []byte
	var version int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT doc, version
		FROM tickets
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classify(err)
	}

	current, err := decodeTicket(doc, version)
	if err != nil {
		return nil, err
	}
	working := current.Clone()
	if err := fn(&working); err != nil {
		return nil, err
	}
	working.ID = current.ID
	working.TicketNumber = current.TicketNumber
	working.Version = version + 1

	updated, err := json.Marshal(working)
	if err != nil {
		return nil, err
	}
	res, err := pgTx.ExecContext(ctx, `
		UPDATE tickets
		SET doc = $2, branch_id = $3, status = $4, booking_at = $5, version = $6, updated_at = now()
		WHERE id = $1 AND version = $7
	`, id, updated, working.BranchID, string(working.Status), working.BookingDate.CalendarDate, working.Version, version)
	if err != nil {
		return nil, classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, classify(err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: ticket %s was modified concurrently", store.ErrConflict, id)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, classify(err)
	}
	return &working, nil
}

func (s *Store) ListTickets(ctx context.Context, filter store.TicketFilter) ([]domain.Ticket, error) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if filter.BranchID != "" {
		args = append(args, filter.BranchID)
		clauses = append(clauses, fmt.Sprintf("branch_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		clauses = append(clauses, fmt.Sprintf("booking_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		clauses = append(clauses, fmt.Sprintf("booking_at < $%d", len(args)))
	}

	query := `SELECT doc, version FROM tickets`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY booking_at ASC, ticket_number ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	tickets := make([]domain.Ticket, 0, 64)
	for rows.Next() {
		var doc []byte
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, err
		}
		ticket, err := decodeTicket(doc, version)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return tickets, nil
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (id, branch_id, staff_id, item, quantity, unit_price, total, payment_method, sold_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sale.ID, sale.BranchID, sale.StaffID, sale.Item, sale.Quantity, sale.UnitPrice, sale.Total, sale.PaymentMethod, sale.SoldAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sale %s already exists", store.ErrConflict, sale.ID)
		}
		return nil, classify(err)
	}
	created := sale
	return &created, nil
}

func (s *Store) ListSales(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, staff_id, item, quantity, unit_price, total, payment_method, sold_at
		FROM sales
		WHERE ($1 = '' OR branch_id = $1)
			AND sold_at >= $2
			AND sold_at < $3
		ORDER BY sold_at ASC
	`, branchID, from, to)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.BranchID, &sale.StaffID, &sale.Item, &sale.Quantity, &sale.UnitPrice, &sale.Total, &sale.PaymentMethod, &sale.SoldAt); err != nil {
			return nil, err
		}
		sale.SoldAt = sale.SoldAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return sales, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, branch_id, staff_id, category, description, amount, spent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, expense.ID, expense.BranchID, expense.StaffID, expense.Category, expense.Description, expense.Amount, expense.SpentAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: expense %s already exists", store.ErrConflict, expense.ID)
		}
		return nil, classify(err)
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, staff_id, category, description, amount, spent_at
		FROM expenses
		WHERE ($1 = '' OR branch_id = $1)
			AND spent_at >= $2
			AND spent_at < $3
		ORDER BY spent_at ASC
	`, branchID, from, to)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var expense domain.Expense
		if err := rows.Scan(&expense.ID, &expense.BranchID, &expense.StaffID, &expense.Category, &expense.Description, &expense.Amount, &expense.SpentAt); err != nil {
			return nil, err
		}
		expense.SpentAt = expense.SpentAt.UTC()
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return expenses, nil
}

// NextValue increments a named counter in a single statement, creating it at 1.
func (s *Store) NextValue(ctx context.Context, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("%w: counter name required", store.ErrValidation)
	}
	var next int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (name, current_value)
		VALUES ($1, 1)
		ON CONFLICT (name)
		DO UPDATE SET current_value = counters.current_value + 1
		RETURNING current_value
	`, name).Scan(&next)
	if err != nil {
		return 0, classify(err)
	}
	return next, nil
}

func (s *Store) ListCounters(ctx context.Context) ([]domain.Counter, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, current_value FROM counters ORDER BY name ASC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	counters := make([]domain.Counter, 0, 4)
	for rows.Next() {
		var counter domain.Counter
		if err := rows.Scan(&counter.Name, &counter.CurrentValue); err != nil {
			return nil, err
		}
		counters = append(counters, counter)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return counters, nil
}

func (s *Store) RaiseCounter(ctx context.Context, name string, value int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO counters (name, current_value)
		VALUES ($1, $2)
		ON CONFLICT (name)
		DO UPDATE SET current_value = GREATEST(counters.current_value, EXCLUDED.current_value)
	`, name, value)
	return classify(err)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, branch_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.BranchID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return classify(err)
}

func (s *Store) ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR branch_id = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, branchID, from, to, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.BranchID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return fmt.Errorf("%w: username and password required", store.ErrValidation)
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, branch_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.Password, user.Role, user.BranchID, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username already exists", store.ErrConflict)
		}
		return classify(err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, branch_id, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.BranchID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: username and password required", store.ErrValidation)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func decodeTicket(doc []byte, version int64) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := json.Unmarshal(doc, &ticket); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	ticket.Version = version
	return &ticket, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// classify maps driver errors onto the store sentinels: serialization
// failures become ErrConflict and connection failures ErrUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		case "57P01", "57P02", "57P03", "53300":
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		return err
	}
	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
