package booking

import (
	"fmt"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

type Interval = interval.Interval

// Span builds [start, start+duration) and rejects ranges that leave the calendar date.
func Span(start, duration int) (Interval, error) {
	if duration <= 0 {
		return Interval{}, fmt.Errorf("%w: duration must be positive", ErrInvalidInterval)
	}
	if start < 0 || start >= interval.MinutesPerDay {
		return Interval{}, fmt.Errorf("%w: start %d outside the day", ErrInvalidInterval, start)
	}
	end := start + duration
	if end > interval.MinutesPerDay {
		return Interval{}, fmt.Errorf("%w: %s + %d min crosses midnight", ErrInvalidInterval, interval.FormatClock(start), duration)
	}
	return Interval{Start: start, End: end}, nil
}

// Validate checks a proposed range against a date's open intervals and existing bookings.
// Cancelled bookings never conflict; touching bookings are allowed.
func Validate(open []Interval, existing []model.Booking, proposed Interval) error {
	if len(open) == 0 {
		return ErrShopClosed
	}
	if !interval.ContainedInAny(proposed, open) {
		return fmt.Errorf("%w: %s", ErrOutsideOpenHours, proposed)
	}
	for _, b := range existing {
		if !b.Active() {
			continue
		}
		if proposed.Overlaps(Interval{Start: b.StartMinute, End: b.EndMinute}) {
			return fmt.Errorf("%w: %s overlaps booking %s", ErrSlotConflict, proposed, b.ID)
		}
	}
	return nil
}
