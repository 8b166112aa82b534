package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"rinkdesk/backend/internal/domain"
)

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	req.BranchID = strings.TrimSpace(req.BranchID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.Item = strings.TrimSpace(req.Item)

	if req.BranchID == "" {
		req.BranchID = s.defaultBranchID
	}
	if req.StaffID == "" {
		return domain.Sale{}, invalid("staff_id is required")
	}
	if req.Item == "" {
		return domain.Sale{}, invalid("item is required")
	}
	if req.Quantity < 1 {
		return domain.Sale{}, invalid("quantity must be at least 1")
	}
	if req.UnitPrice.IsNegative() {
		return domain.Sale{}, invalid("unit price must not be negative")
	}
	if err := authorizeBranch(ctx, req.BranchID); err != nil {
		return domain.Sale{}, err
	}

	payment := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if payment == "" {
		payment = "cash"
	}

	sale, err := s.repo.CreateSale(ctx, domain.Sale{
		BranchID:      req.BranchID,
		StaffID:       req.StaffID,
		Item:          req.Item,
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice.Round(2),
		Total:         req.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))).Round(2),
		PaymentMethod: payment,
		SoldAt:        s.clock.Now().UTC(),
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateReports(ctx, sale.BranchID)
	s.logAudit(ctx, sale.BranchID, "sale_create", "sale", sale.ID,
		fmt.Sprintf("item=%s,qty=%d,total=%s", sale.Item, sale.Quantity, money(sale.Total)))
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, branchID string, from string, to string) ([]domain.Sale, error) {
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
	return s.repo.ListSales(ctx, branchID, start, end)
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	req.BranchID = strings.TrimSpace(req.BranchID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.Category = strings.TrimSpace(req.Category)

	if req.BranchID == "" {
		req.BranchID = s.defaultBranchID
	}
	if req.StaffID == "" {
		return domain.Expense{}, invalid("staff_id is required")
	}
	if req.Category == "" {
		return domain.Expense{}, invalid("category is required")
	}
	if !req.Amount.IsPositive() {
		return domain.Expense{}, invalid("amount must be positive")
	}
	if err := authorizeBranch(ctx, req.BranchID); err != nil {
		return domain.Expense{}, err
	}

	expense, err := s.repo.CreateExpense(ctx, domain.Expense{
		BranchID:    req.BranchID,
		StaffID:     req.StaffID,
		Category:    req.Category,
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount.Round(2),
		SpentAt:     s.clock.Now().UTC(),
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.invalidateReports(ctx, expense.BranchID)
	s.logAudit(ctx, expense.BranchID, "expense_create", "expense", expense.ID,
		fmt.Sprintf("category=%s,amount=%s", expense.Category, money(expense.Amount)))
	return *expense, nil
}

func (s *Service) ListExpenses(ctx context.Context, branchID string, from string, to string) ([]domain.Expense, error) {
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
	return s.repo.ListExpenses(ctx, branchID, start, end)
}
