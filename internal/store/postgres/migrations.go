package postgres

import (
	"context"
	"fmt"
)

// Migrate creates the schema if it does not exist. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		createTicketsTable,
		createTicketsBranchDateIndex,
		createCountersTable,
		createSalesTable,
		createSalesIndex,
		createExpensesTable,
		createExpensesIndex,
		createAuditLogsTable,
		createAuditLogsIndex,
		createUsersTable,
	}

	for i, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

const createTicketsTable = `
CREATE TABLE IF NOT EXISTS tickets (
    id TEXT PRIMARY KEY,
    ticket_number TEXT NOT NULL UNIQUE,
    branch_id TEXT NOT NULL,
    status TEXT NOT NULL,
    booking_at TIMESTAMPTZ NOT NULL,
    version BIGINT NOT NULL DEFAULT 1,
    doc JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const createTicketsBranchDateIndex = `
CREATE INDEX IF NOT EXISTS idx_tickets_branch_booking ON tickets (branch_id, booking_at);`

const createCountersTable = `
CREATE TABLE IF NOT EXISTS counters (
    name TEXT PRIMARY KEY,
    current_value BIGINT NOT NULL
);`

const createSalesTable = `
CREATE TABLE IF NOT EXISTS sales (
    id TEXT PRIMARY KEY,
    branch_id TEXT NOT NULL,
    staff_id TEXT NOT NULL,
    item TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    unit_price NUMERIC(14,2) NOT NULL,
    total NUMERIC(14,2) NOT NULL,
    payment_method TEXT NOT NULL,
    sold_at TIMESTAMPTZ NOT NULL
);`

const createSalesIndex = `
CREATE INDEX IF NOT EXISTS idx_sales_branch_sold ON sales (branch_id, sold_at);`

const createExpensesTable = `
CREATE TABLE IF NOT EXISTS expenses (
    id TEXT PRIMARY KEY,
    branch_id TEXT NOT NULL,
    staff_id TEXT NOT NULL,
    category TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    amount NUMERIC(14,2) NOT NULL,
    spent_at TIMESTAMPTZ NOT NULL
);`

const createExpensesIndex = `
CREATE INDEX IF NOT EXISTS idx_expenses_branch_spent ON expenses (branch_id, spent_at);`

const createAuditLogsTable = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id TEXT PRIMARY KEY,
    branch_id TEXT NOT NULL,
    actor_username TEXT NOT NULL,
    actor_role TEXT NOT NULL,
    action TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    detail TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);`

const createAuditLogsIndex = `
CREATE INDEX IF NOT EXISTS idx_audit_logs_branch_created ON audit_logs (branch_id, created_at);`

const createUsersTable = `
CREATE TABLE IF NOT EXISTS app_users (
    username TEXT PRIMARY KEY,
    password TEXT NOT NULL,
    role TEXT NOT NULL,
    branch_id TEXT NOT NULL DEFAULT '',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`
