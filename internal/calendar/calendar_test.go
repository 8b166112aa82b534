package calendar

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestFromGregorianKnownDates(t *testing.T) {
	cases := []struct {
		ad   time.Time
		want string
	}{
		{time.Date(1943, time.April, 14, 0, 0, 0, 0, time.UTC), "2000-01-01"},
		{time.Date(2013, time.April, 14, 0, 0, 0, 0, time.UTC), "2070-01-01"},
		{time.Date(2020, time.April, 13, 0, 0, 0, 0, time.UTC), "2077-01-01"},
		{time.Date(2023, time.October, 24, 0, 0, 0, 0, time.UTC), "2080-07-07"},
		{time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), "2080-09-16"},
		{time.Date(2024, time.April, 12, 0, 0, 0, 0, time.UTC), "2080-12-30"},
		{time.Date(2024, time.April, 13, 0, 0, 0, 0, time.UTC), "2081-01-01"},
		{time.Date(2025, time.October, 17, 0, 0, 0, 0, time.UTC), "2082-07-01"},
		{time.Date(2026, time.October, 17, 0, 0, 0, 0, time.UTC), "2083-07-01"},
		{time.Date(2034, time.April, 13, 0, 0, 0, 0, time.UTC), "2090-12-30"},
	}
	for _, tc := range cases {
		got, err := FromGregorian(tc.ad.Year(), tc.ad.Month(), tc.ad.Day())
		if err != nil {
			t.Fatalf("%s: %v", tc.ad.Format("2006-01-02"), err)
		}
		if got.String() != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.ad.Format("2006-01-02"), tc.want, got)
		}
		back, err := ToGregorian(got)
		if err != nil {
			t.Fatalf("round trip %s: %v", tc.want, err)
		}
		if !back.Equal(tc.ad) {
			t.Fatalf("round trip %s: expected %s, got %s", tc.want, tc.ad, back)
		}
	}
}

func TestFromGregorianOutOfRange(t *testing.T) {
	if _, err := FromGregorian(1943, time.April, 13); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange before table start, got %v", err)
	}
	if _, err := FromGregorian(2034, time.April, 14); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange after table end, got %v", err)
	}
}

func TestToGregorianRejectsImpossibleDay(t *testing.T) {
	// Baisakh 2000 has 30 days.
	if _, err := ToGregorian(Date{Year: 2000, Month: 1, Day: 31}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestNormalizerUsesVenueTimezone(t *testing.T) {
	n, err := LoadNormalizer("")
	if err != nil {
		t.Fatalf("load normalizer: %v", err)
	}

	// 20:00 UTC on 16 Oct is 01:45 on 17 Oct in Kathmandu.
	at := time.Date(2025, time.October, 16, 20, 0, 0, 0, time.UTC)
	local, err := n.ToLocalCalendar(at)
	if err != nil {
		t.Fatalf("to local calendar: %v", err)
	}
	if local != "2082-07-01" {
		t.Fatalf("expected 2082-07-01, got %s", local)
	}
	if got := n.WallClock(at); got != "01:45:00" {
		t.Fatalf("expected 01:45:00, got %s", got)
	}
}

func TestNormalizerClockAndDayHelpers(t *testing.T) {
	fixed := time.Date(2026, time.October, 17, 6, 30, 0, 0, time.UTC)
	n, err := LoadNormalizer(DefaultTimezone)
	if err != nil {
		t.Fatalf("load normalizer: %v", err)
	}
	n = n.WithClock(func() time.Time { return fixed })

	if !n.Now().Equal(fixed) {
		t.Fatalf("expected injected clock, got %s", n.Now())
	}
	start := n.DayStart(fixed)
	if start.Hour() != 0 || start.Day() != 17 || start.Location() != n.Location() {
		t.Fatalf("unexpected day start %s", start)
	}

	fromLocal, err := n.FromLocalCalendar("2083-07-01")
	if err != nil {
		t.Fatalf("from local calendar: %v", err)
	}
	if !fromLocal.Equal(start) {
		t.Fatalf("expected %s, got %s", start, fromLocal)
	}

	parsed, err := n.ParseDay("2026-10-17")
	if err != nil {
		t.Fatalf("parse day: %v", err)
	}
	if !parsed.Equal(start) {
		t.Fatalf("expected %s, got %s", start, parsed)
	}
	if _, err := n.ParseDay("17/10/2026"); err == nil {
		t.Fatalf("expected invalid date error")
	}
}

func TestLoadNormalizerRejectsUnknownZone(t *testing.T) {
	if _, err := LoadNormalizer("Mars/Olympus"); err == nil {
		t.Fatalf("expected unknown zone error")
	}
}
