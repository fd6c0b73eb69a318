package calendar

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

type Day struct {
	Date          string
	OpenIntervals []interval.Interval
	FreeIntervals []interval.Interval
	Bookings      []model.Booking
}

// Build lays out one Day per date in [from, to], ascending. open and free are keyed by
// YYYY-MM-DD; bookings on each day are ordered by start time. free is taken as given.
func Build(from, to time.Time, open, free map[string][]interval.Interval, bookings []model.Booking) []Day {
	byDate := make(map[string][]model.Booking)
	for _, b := range bookings {
		k := model.DateKey(b.Date)
		byDate[k] = append(byDate[k], b)
	}

	dates := model.Dates(from, to)
	days := make([]Day, 0, len(dates))
	for _, d := range dates {
		k := model.DateKey(d)
		dayBookings := byDate[k]
		sort.SliceStable(dayBookings, func(i, j int) bool {
			if dayBookings[i].StartMinute != dayBookings[j].StartMinute {
				return dayBookings[i].StartMinute < dayBookings[j].StartMinute
			}
			return dayBookings[i].ID < dayBookings[j].ID
		})
		days = append(days, Day{
			Date:          k,
			OpenIntervals: nonNil(open[k]),
			FreeIntervals: nonNil(free[k]),
			Bookings:      nonNilBookings(dayBookings),
		})
	}
	return days
}

func nonNil(in []interval.Interval) []interval.Interval {
	if in == nil {
		return []interval.Interval{}
	}
	return in
}

func nonNilBookings(in []model.Booking) []model.Booking {
	if in == nil {
		return []model.Booking{}
	}
	return in
}
