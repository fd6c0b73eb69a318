package model

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD key into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

// DateOf truncates t to its calendar date, keeping the wall-clock date of t's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// Dates lists every date in [from, to] inclusive.
func Dates(from, to time.Time) []time.Time {
	from, to = DateOf(from), DateOf(to)
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// WeeklyBlock is one open range of a shop's week; days are 0=Sunday..6=Saturday.
type WeeklyBlock struct {
	ShopID       string
	DayOfWeek    int
	OpenMinute   int
	CloseMinute  int
	IsWorkingDay bool
	BlockOrder   int
}

// ScheduleException overrides one date. Override minutes are nil when absent.
type ScheduleException struct {
	ID          string
	ShopID      string
	Date        time.Time
	IsClosed    bool
	OpenMinute  *int
	CloseMinute *int
	Reason      string
}
