// Package calendar converts instants into the venue's local calendar
// (Bikram Sambat) and wall-clock strings.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTimezone = "Asia/Kathmandu"
	firstYear       = 2000
	secondsPerDay   = 24 * 60 * 60
)

var ErrOutOfRange = errors.New("date outside supported local calendar range")

// epoch is 2000-01-01 BS.
var epoch = time.Date(1943, time.April, 14, 0, 0, 0, 0, time.UTC)

type Date struct {
	Year  int
	Month int
	Day   int
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func lastYear() int {
	return firstYear + len(monthDays) - 1
}

// FromGregorian converts a Gregorian calendar day to Bikram Sambat.
func FromGregorian(year int, month time.Month, day int) (Date, error) {
	days := dayNumber(time.Date(year, month, day, 0, 0, 0, 0, time.UTC)) - dayNumber(epoch)
	if days < 0 {
		return Date{}, ErrOutOfRange
	}
	for i, months := range monthDays {
		for m, length := range months {
			if days < int64(length) {
				return Date{Year: firstYear + i, Month: m + 1, Day: int(days) + 1}, nil
			}
			days -= int64(length)
		}
	}
	return Date{}, ErrOutOfRange
}

// ToGregorian converts a Bikram Sambat date to the Gregorian day it falls on (UTC midnight).
func ToGregorian(d Date) (time.Time, error) {
	if d.Year < firstYear || d.Year > lastYear() || d.Month < 1 || d.Month > 12 {
		return time.Time{}, ErrOutOfRange
	}
	months := monthDays[d.Year-firstYear]
	if d.Day < 1 || d.Day > int(months[d.Month-1]) {
		return time.Time{}, fmt.Errorf("%w: day %d of month %d", ErrOutOfRange, d.Day, d.Month)
	}
	offset := 0
	for y := firstYear; y < d.Year; y++ {
		for _, length := range monthDays[y-firstYear] {
			offset += int(length)
		}
	}
	for m := 0; m < d.Month-1; m++ {
		offset += int(months[m])
	}
	offset += d.Day - 1
	return epoch.AddDate(0, 0, offset), nil
}

func ParseDate(raw string) (Date, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 3 {
		return Date{}, fmt.Errorf("invalid local date %q", raw)
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Date{}, fmt.Errorf("invalid local date %q", raw)
		}
		nums[i] = n
	}
	return Date{Year: nums[0], Month: nums[1], Day: nums[2]}, nil
}

func dayNumber(t time.Time) int64 {
	return t.Unix() / secondsPerDay
}

// Normalizer stamps instants in the venue timezone.
type Normalizer struct {
	loc *time.Location
	now func() time.Time
}

func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc, now: time.Now}
}

// LoadNormalizer resolves an IANA zone name; empty means DefaultTimezone.
func LoadNormalizer(zone string) (*Normalizer, error) {
	if strings.TrimSpace(zone) == "" {
		zone = DefaultTimezone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load venue timezone %q: %w", zone, err)
	}
	return NewNormalizer(loc), nil
}

// WithClock returns a copy that reads the current time from now.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	dup := *n
	dup.now = now
	return &dup
}

func (n *Normalizer) Location() *time.Location {
	return n.loc
}

func (n *Normalizer) Now() time.Time {
	return n.now().In(n.loc)
}

// ToLocalCalendar renders the venue-local day of t as "YYYY-MM-DD" in Bikram Sambat.
func (n *Normalizer) ToLocalCalendar(t time.Time) (string, error) {
	local := t.In(n.loc)
	d, err := FromGregorian(local.Year(), local.Month(), local.Day())
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

// FromLocalCalendar returns venue-local midnight of a Bikram Sambat date.
func (n *Normalizer) FromLocalCalendar(raw string) (time.Time, error) {
	d, err := ParseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	day, err := ToGregorian(d)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, n.loc), nil
}

func (n *Normalizer) WallClock(t time.Time) string {
	return t.In(n.loc).Format("15:04:05")
}

// DayStart truncates t to venue-local midnight.
func (n *Normalizer) DayStart(t time.Time) time.Time {
	local := t.In(n.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, n.loc)
}

// ParseDay parses a Gregorian "2006-01-02" day as venue-local midnight.
func (n *Normalizer) ParseDay(raw string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(raw), n.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	return day, nil
}
