package fee

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("decimal %q: %v", raw, err)
	}
	return v
}

func TestTotalFee(t *testing.T) {
	cases := []struct {
		name     string
		perHead  string
		people   int
		discount string
		want     string
	}{
		{"three people with discount", "100", 3, "50", "250"},
		{"zero people counts as one", "100", 0, "0", "100"},
		{"negative discount ignored", "100", 2, "-30", "200"},
		{"discount larger than total", "100", 1, "150", "0"},
		{"fractional fee", "99.995", 1, "0", "100"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TotalFee(dec(t, tc.perHead), tc.people, dec(t, tc.discount))
			if !got.Equal(dec(t, tc.want)) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestFullRefund(t *testing.T) {
	if got := FullRefund(dec(t, "250"), decimal.Zero); !got.Equal(dec(t, "250")) {
		t.Fatalf("expected 250, got %s", got)
	}
	if got := FullRefund(dec(t, "250"), dec(t, "50")); !got.Equal(dec(t, "200")) {
		t.Fatalf("expected 200, got %s", got)
	}
	if got := FullRefund(dec(t, "40"), dec(t, "50")); !got.IsZero() {
		t.Fatalf("expected 0 when fee exceeds paid amount, got %s", got)
	}
}

func TestPartialRefund(t *testing.T) {
	got, err := PartialRefund(dec(t, "300"), 3, 1, decimal.Zero)
	if err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if got.StringFixed(2) != "100.00" {
		t.Fatalf("expected 100.00, got %s", got.StringFixed(2))
	}

	got, err = PartialRefund(dec(t, "100"), 3, 1, decimal.Zero)
	if err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if got.StringFixed(2) != "33.33" {
		t.Fatalf("expected 33.33, got %s", got.StringFixed(2))
	}

	got, err = PartialRefund(dec(t, "300"), 3, 1, dec(t, "150"))
	if err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("expected refund clamped to 0, got %s", got)
	}
}

func TestPartialRefundRejectsEmptyTicket(t *testing.T) {
	_, err := PartialRefund(dec(t, "300"), 0, 1, decimal.Zero)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPartialRefundsSumToSingleRefund(t *testing.T) {
	paid := dec(t, "300")
	one, _ := PartialRefund(paid, 3, 1, decimal.Zero)
	two, _ := PartialRefund(paid, 3, 1, decimal.Zero)
	both, _ := PartialRefund(paid, 3, 2, decimal.Zero)
	if !one.Add(two).Equal(both) {
		t.Fatalf("expected %s + %s == %s", one, two, both)
	}
}

func TestExtraTimeAmount(t *testing.T) {
	if got := ExtraTimeAmount(dec(t, "60"), dec(t, "10")); !got.Equal(dec(t, "50")) {
		t.Fatalf("expected 50, got %s", got)
	}
	if got := ExtraTimeAmount(dec(t, "10"), dec(t, "60")); !got.IsZero() {
		t.Fatalf("expected 0, got %s", got)
	}
}

func TestFallbackSequence(t *testing.T) {
	at := time.UnixMilli(1_700_000_123_456)
	if got := FallbackSequence(at); got != 123456 {
		t.Fatalf("expected 123456, got %d", got)
	}
}
