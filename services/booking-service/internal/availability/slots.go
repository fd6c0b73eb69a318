package availability

import (
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/interval"
)

// AvailableSlots returns start minutes within window, stepping from window.Start, where a
// booking of duration minutes fits without overlapping busy. Starts before notBefore are skipped.
func AvailableSlots(window interval.Interval, duration, step int, busy []interval.Interval, notBefore int) []int {
	if duration <= 0 || step <= 0 || window.Empty() {
		return nil
	}
	if window.Start+duration > window.End {
		return nil
	}

	var slots []int
	for t := window.Start; t+duration <= window.End; t += step {
		if t < notBefore {
			continue
		}
		if !interval.OverlapsAny(interval.Interval{Start: t, End: t + duration}, busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

// SlotsForDay runs AvailableSlots over every open window of a day, in window order.
func SlotsForDay(open []interval.Interval, duration, step int, busy []interval.Interval, notBefore int) []int {
	var out []int
	for _, w := range open {
		out = append(out, AvailableSlots(w, duration, step, busy, notBefore)...)
	}
	return out
}
