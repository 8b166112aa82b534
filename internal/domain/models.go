package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	StatusBooked    TicketStatus = "booked"
	StatusPlaying   TicketStatus = "playing"
	StatusCompleted TicketStatus = "completed"
	StatusCancelled TicketStatus = "cancelled"
)

type TicketType string

const (
	TicketAdult  TicketType = "Adult"
	TicketChild  TicketType = "Child"
	TicketGroup  TicketType = "Group"
	TicketCustom TicketType = "Custom"
)

func (t TicketType) Valid() bool {
	switch t {
	case TicketAdult, TicketChild, TicketGroup, TicketCustom:
		return true
	default:
		return false
	}
}

type RefundMethod string

const (
	RefundCash   RefundMethod = "cash"
	RefundOnline RefundMethod = "online"
	RefundBank   RefundMethod = "bank"
	RefundWallet RefundMethod = "wallet"
	RefundOther  RefundMethod = "other"
)

func (m RefundMethod) Valid() bool {
	switch m {
	case RefundCash, RefundOnline, RefundBank, RefundWallet, RefundOther:
		return true
	default:
		return false
	}
}

const (
	DefaultCurrency = "NPR"
	// InactiveAfter is how long past booking an unrefunded ticket is shown as inactive.
	InactiveAfter = time.Hour
)

type BookingDate struct {
	CalendarDate time.Time `json:"calendar_date"`
	LocalDate    string    `json:"local_date"`
}

type PlayerStatus struct {
	TotalPlayers         int `json:"total_players"`
	PlayedPlayers        int `json:"played_players"`
	WaitingPlayers       int `json:"waiting_players"`
	RefundedPlayersCount int `json:"refunded_players_count"`
}

// Balanced reports whether played + waiting + refunded accounts for every player.
func (p PlayerStatus) Balanced() bool {
	return p.PlayedPlayers >= 0 && p.WaitingPlayers >= 0 && p.RefundedPlayersCount >= 0 &&
		p.PlayedPlayers+p.WaitingPlayers+p.RefundedPlayersCount == p.TotalPlayers
}

type RefundDetails struct {
	RefundName       string       `json:"refund_name,omitempty"`
	RefundMethod     RefundMethod `json:"refund_method,omitempty"`
	RefundedBy       string       `json:"refunded_by,omitempty"`
	PaymentReference string       `json:"payment_reference,omitempty"`
	RefundedAt       time.Time    `json:"refunded_at"`
}

type GroupInfo struct {
	GroupName    string          `json:"group_name"`
	GroupNumber  string          `json:"group_number"`
	GroupPrice   decimal.Decimal `json:"group_price"`
	TotalMembers int             `json:"total_members"`
}

type ExtraTimeEntry struct {
	AddedBy string          `json:"added_by"`
	Minutes int             `json:"minutes"`
	Amount  decimal.Decimal `json:"amount"`
	Label   string          `json:"label,omitempty"`
	Notes   string          `json:"notes,omitempty"`
	AddedAt time.Time       `json:"added_at"`
}

type Ticket struct {
	ID                string           `json:"id"`
	TicketNumber      string           `json:"ticket_number"`
	CustomerName      string           `json:"customer_name"`
	PlayerNames       []string         `json:"player_names"`
	ContactNumber     string           `json:"contact_number,omitempty"`
	NumberOfPeople    int              `json:"number_of_people"`
	TicketType        TicketType       `json:"ticket_type"`
	PerPersonFee      decimal.Decimal  `json:"per_person_fee"`
	Discount          decimal.Decimal  `json:"discount"`
	Fee               decimal.Decimal  `json:"fee"`
	Currency          string           `json:"currency"`
	BookingDate       BookingDate      `json:"booking_date"`
	BookingTime       string           `json:"booking_time"`
	BranchID          string           `json:"branch_id"`
	StaffID           string           `json:"staff_id"`
	Status            TicketStatus     `json:"status"`
	PlayerStatus      PlayerStatus     `json:"player_status"`
	IsRefunded        bool             `json:"is_refunded"`
	RefundReason      string           `json:"refund_reason,omitempty"`
	RefundAmount      decimal.Decimal  `json:"refund_amount"`
	RefundedPlayers   []string         `json:"refunded_players"`
	RefundDetails     *RefundDetails   `json:"refund_details,omitempty"`
	GroupInfo         *GroupInfo       `json:"group_info,omitempty"`
	ExtraTimeEntries  []ExtraTimeEntry `json:"extra_time_entries"`
	TotalExtraMinutes int              `json:"total_extra_minutes"`
	Printed           bool             `json:"printed"`
	PrintCount        int              `json:"print_count"`
	Remarks           string           `json:"remarks,omitempty"`
	Version           int64            `json:"version"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Inactive is a display flag only; it never changes Status. It is measured
// from the booking timestamp, so editing the calendar date moves it too.
func (t Ticket) Inactive(now time.Time) bool {
	booked := t.BookingDate.CalendarDate
	if t.IsRefunded || booked.IsZero() {
		return false
	}
	return now.Sub(booked) > InactiveAfter
}

// ExtraTimeRevenue is the portion of Fee collected through extra-time entries.
func (t Ticket) ExtraTimeRevenue() decimal.Decimal {
	total := decimal.Zero
	for _, entry := range t.ExtraTimeEntries {
		total = total.Add(entry.Amount)
	}
	return total
}

func (t Ticket) Clone() Ticket {
	dup := t
	dup.PlayerNames = slices.Clone(t.PlayerNames)
	dup.RefundedPlayers = slices.Clone(t.RefundedPlayers)
	dup.ExtraTimeEntries = slices.Clone(t.ExtraTimeEntries)
	if t.RefundDetails != nil {
		details := *t.RefundDetails
		dup.RefundDetails = &details
	}
	if t.GroupInfo != nil {
		group := *t.GroupInfo
		dup.GroupInfo = &group
	}
	return dup
}

type Counter struct {
	Name         string `json:"name"`
	CurrentValue int64  `json:"current_value"`
}

type Sale struct {
	ID            string          `json:"id"`
	BranchID      string          `json:"branch_id"`
	StaffID       string          `json:"staff_id"`
	Item          string          `json:"item"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	SoldAt        time.Time       `json:"sold_at"`
}

type Expense struct {
	ID          string          `json:"id"`
	BranchID    string          `json:"branch_id"`
	StaffID     string          `json:"staff_id"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	SpentAt     time.Time       `json:"spent_at"`
}

type TicketCreateRequest struct {
	CustomerName   string          `json:"customer_name"`
	PlayerNames    []string        `json:"player_names"`
	ContactNumber  string          `json:"contact_number"`
	NumberOfPeople *int            `json:"number_of_people"`
	TicketType     TicketType      `json:"ticket_type"`
	PerPersonFee   decimal.Decimal `json:"per_person_fee"`
	Discount       decimal.Decimal `json:"discount"`
	BranchID       string          `json:"branch_id"`
	StaffID        string          `json:"staff_id"`
	Remarks        string          `json:"remarks"`
	GroupInfo      *GroupInfo      `json:"group_info"`
	BookingDate    *BookingDate    `json:"booking_date"`
	BookingTime    string          `json:"booking_time"`
}

type QuickTicketRequest struct {
	CustomerName string `json:"customer_name"`
	BranchID     string `json:"branch_id"`
	StaffID      string `json:"staff_id"`
}

type TicketUpdateRequest struct {
	CustomerName  *string    `json:"customer_name"`
	PlayerNames   []string   `json:"player_names"`
	ContactNumber *string    `json:"contact_number"`
	Remarks       *string    `json:"remarks"`
	GroupInfo     *GroupInfo `json:"group_info"`
	CalendarDate  *time.Time `json:"calendar_date"`
}

type ExtraTimeRequest struct {
	Minutes  int             `json:"minutes"`
	Charge   decimal.Decimal `json:"charge"`
	Discount decimal.Decimal `json:"discount"`
	Label    string          `json:"label"`
	Notes    string          `json:"notes"`
}

type FullRefundRequest struct {
	Reason          string          `json:"reason"`
	CancellationFee decimal.Decimal `json:"cancellation_fee"`
	Method          RefundMethod    `json:"method"`
	Reference       string          `json:"reference"`
	RefundName      string          `json:"refund_name"`
	ManagerPIN      string          `json:"manager_pin"`
}

type PartialRefundRequest struct {
	PlayerNames     []string        `json:"player_names"`
	Reason          string          `json:"reason"`
	CancellationFee decimal.Decimal `json:"cancellation_fee"`
	Method          RefundMethod    `json:"method"`
	Reference       string          `json:"reference"`
	ManagerPIN      string          `json:"manager_pin"`
}

type PlayerStatusRequest struct {
	PlayedPlayers int `json:"played_players"`
}

type TicketDeleteRequest struct {
	ManagerPIN string `json:"manager_pin"`
}

type SaleCreateRequest struct {
	BranchID      string          `json:"branch_id"`
	StaffID       string          `json:"staff_id"`
	Item          string          `json:"item"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	PaymentMethod string          `json:"payment_method"`
}

type ExpenseCreateRequest struct {
	BranchID    string          `json:"branch_id"`
	StaffID     string          `json:"staff_id"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type DaySummary struct {
	Date             string          `json:"date"`
	LocalDate        string          `json:"local_date"`
	Tickets          int             `json:"tickets"`
	People           int             `json:"people"`
	RefundedPlayers  int             `json:"refunded_players"`
	TicketRevenue    decimal.Decimal `json:"ticket_revenue"`
	ExtraTimeRevenue decimal.Decimal `json:"extra_time_revenue"`
	Refunds          decimal.Decimal `json:"refunds"`
	NetTicketRevenue decimal.Decimal `json:"net_ticket_revenue"`
	SalesRevenue     decimal.Decimal `json:"sales_revenue"`
	Expenses         decimal.Decimal `json:"expenses"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	ProfitLoss       decimal.Decimal `json:"profit_loss"`
}

type Summary struct {
	BranchID string       `json:"branch_id"`
	From     string       `json:"from"`
	To       string       `json:"to"`
	Currency string       `json:"currency"`
	Days     []DaySummary `json:"days"`
	Totals   DaySummary   `json:"totals"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	BranchID  string    `json:"branch_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	BranchID  string    `json:"branch_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	BranchID string `json:"branch_id"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	BranchID    string `json:"branch_id"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	BranchID string `json:"branch_id"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	BranchID      string    `json:"branch_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type RefundResult struct {
	Ticket Ticket          `json:"ticket"`
	Amount decimal.Decimal `json:"amount"`
}
