package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

func TestBuildOrdersDaysAndBookings(t *testing.T) {
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 2)

	open := map[string][]interval.Interval{"2026-03-02": {{Start: 540, End: 1020}}}
	free := map[string][]interval.Interval{"2026-03-02": {{Start: 540, End: 600}, {Start: 720, End: 1020}}}
	bookings := []model.Booking{
		{ID: "b2", Date: from, StartMinute: 660, EndMinute: 720, Status: model.StatusPending},
		{ID: "b1", Date: from, StartMinute: 600, EndMinute: 660, Status: model.StatusConfirmed},
		{ID: "b3", Date: from.AddDate(0, 0, 2), StartMinute: 600, EndMinute: 630, Status: model.StatusCancelled},
	}

	days := Build(from, to, open, free, bookings)
	require.Len(t, days, 3)
	assert.Equal(t, []string{"2026-03-02", "2026-03-03", "2026-03-04"}, []string{days[0].Date, days[1].Date, days[2].Date})

	require.Len(t, days[0].Bookings, 2)
	assert.Equal(t, "b1", days[0].Bookings[0].ID)
	assert.Equal(t, "b2", days[0].Bookings[1].ID)
	assert.Len(t, days[0].FreeIntervals, 2)

	assert.NotNil(t, days[1].OpenIntervals)
	assert.Empty(t, days[1].Bookings)
	assert.Len(t, days[2].Bookings, 1)
}
