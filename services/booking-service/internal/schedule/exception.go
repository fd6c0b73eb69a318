package schedule

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// ApplyException overlays a date's exception on its weekly intervals:
// closed wins, a complete override replaces the day with one window,
// and an exception without both times leaves the weekly intervals alone.
// An override whose close is not after its open yields no window.
func ApplyException(weekly []interval.Interval, exc *model.ScheduleException) []interval.Interval {
	if exc == nil {
		return weekly
	}
	if exc.IsClosed {
		return nil
	}
	if exc.OpenMinute == nil || exc.CloseMinute == nil {
		return weekly
	}
	iv, err := interval.New(*exc.OpenMinute, *exc.CloseMinute)
	if err != nil {
		return nil
	}
	return []interval.Interval{iv}
}

// OpenIntervals resolves a date end to end. exc must belong to date or be nil.
func OpenIntervals(blocks []model.WeeklyBlock, exc *model.ScheduleException, date time.Time) []interval.Interval {
	return ApplyException(ResolveWeekly(blocks, date), exc)
}

func ValidateException(exc model.ScheduleException) error {
	if exc.IsClosed {
		return nil
	}
	if (exc.OpenMinute == nil) != (exc.CloseMinute == nil) {
		return fmt.Errorf("%w: open_time and close_time must be given together", ErrInvalidSchedule)
	}
	if exc.OpenMinute != nil {
		if _, err := interval.New(*exc.OpenMinute, *exc.CloseMinute); err != nil {
			return fmt.Errorf("%w: override open must be before close", ErrInvalidSchedule)
		}
	}
	return nil
}
