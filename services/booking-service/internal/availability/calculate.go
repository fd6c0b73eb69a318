package availability

import (
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// Occupied converts the active bookings of one date into intervals.
func Occupied(bookings []model.Booking, date time.Time) []interval.Interval {
	key := model.DateKey(date)
	var out []interval.Interval
	for _, b := range bookings {
		if !b.Active() || model.DateKey(b.Date) != key {
			continue
		}
		out = append(out, interval.Interval{Start: b.StartMinute, End: b.EndMinute})
	}
	return out
}

// Free subtracts occupied time from a day's open intervals. The result is chronological.
func Free(open, occupied []interval.Interval) []interval.Interval {
	if len(open) == 0 {
		return []interval.Interval{}
	}
	free := interval.SubtractAll(open, occupied)
	interval.Sort(free)
	if free == nil {
		free = []interval.Interval{}
	}
	return free
}

// Calculate returns the free intervals of every date in [from, to], keyed by YYYY-MM-DD.
// open is keyed the same way; a missing date is closed. Cancelled bookings are ignored.
func Calculate(from, to time.Time, open map[string][]interval.Interval, bookings []model.Booking) map[string][]interval.Interval {
	byDate := make(map[string][]model.Booking)
	for _, b := range bookings {
		if b.Active() {
			k := model.DateKey(b.Date)
			byDate[k] = append(byDate[k], b)
		}
	}

	out := make(map[string][]interval.Interval)
	for _, d := range model.Dates(from, to) {
		k := model.DateKey(d)
		out[k] = Free(open[k], Occupied(byDate[k], d))
	}
	return out
}
