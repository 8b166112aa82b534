// Package fee holds the money arithmetic for tickets: totals, refunds and
// extra-time charges. Every function is pure.
package fee

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidInput = errors.New("invalid fee input")

// TotalFee returns perPersonFee*people - discount, never below zero.
// people below 1 counts as 1 and a negative discount counts as 0.
func TotalFee(perPersonFee decimal.Decimal, people int, discount decimal.Decimal) decimal.Decimal {
	if people < 1 {
		people = 1
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	total := perPersonFee.Mul(decimal.NewFromInt(int64(people))).Sub(discount)
	return nonNegative(total).Round(2)
}

func FullRefund(amountPaid decimal.Decimal, cancellationFee decimal.Decimal) decimal.Decimal {
	return nonNegative(amountPaid.Sub(cancellationFee)).Round(2)
}

// PartialRefund prorates amountPaid over totalPeople and refunds the share of
// refundedPeople minus cancellationFee, rounded to 2 decimals.
func PartialRefund(amountPaid decimal.Decimal, totalPeople int, refundedPeople int, cancellationFee decimal.Decimal) (decimal.Decimal, error) {
	if totalPeople <= 0 {
		return decimal.Zero, ErrInvalidInput
	}
	if refundedPeople < 0 {
		refundedPeople = 0
	}
	perPerson := amountPaid.Div(decimal.NewFromInt(int64(totalPeople)))
	share := perPerson.Mul(decimal.NewFromInt(int64(refundedPeople)))
	return nonNegative(share.Sub(cancellationFee)).Round(2), nil
}

func ExtraTimeAmount(charge decimal.Decimal, discount decimal.Decimal) decimal.Decimal {
	return nonNegative(charge.Sub(discount)).Round(2)
}

// FallbackSequence derives a ticket number from the wall clock when the
// counter store is unreachable. Values are not guaranteed unique.
func FallbackSequence(now time.Time) int64 {
	return now.UnixMilli() % 1_000_000
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
