package availability

import (
	"testing"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/interval"
)

func TestAvailableSlots_Basic(t *testing.T) {
	window := interval.Interval{Start: 540, End: 600}
	busy := []interval.Interval{{Start: 555, End: 585}}

	slots := AvailableSlots(window, 15, 15, busy, 0)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %v", slots)
	}
	if slots[0] != 540 || slots[1] != 585 {
		t.Fatalf("expected 09:00 and 09:45, got %v", slots)
	}
}

func TestAvailableSlots_SkipsPast(t *testing.T) {
	window := interval.Interval{Start: 540, End: 600}

	// 09:00, 09:15 and 09:30 start before 09:31.
	slots := AvailableSlots(window, 15, 15, nil, 571)
	if len(slots) != 1 || slots[0] != 585 {
		t.Fatalf("expected only 09:45, got %v", slots)
	}
}

func TestAvailableSlots_DurationLongerThanWindow(t *testing.T) {
	if slots := AvailableSlots(interval.Interval{Start: 540, End: 570}, 60, 15, nil, 0); len(slots) != 0 {
		t.Fatalf("expected none, got %v", slots)
	}
}

func TestSlotsForDay_BackToBack(t *testing.T) {
	open := []interval.Interval{{Start: 540, End: 660}, {Start: 780, End: 840}}
	busy := []interval.Interval{{Start: 600, End: 660}}

	slots := SlotsForDay(open, 60, 30, busy, 0)
	want := []int{540, 780}
	if len(slots) != len(want) {
		t.Fatalf("expected %v, got %v", want, slots)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, slots)
		}
	}
}
