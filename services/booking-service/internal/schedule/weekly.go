package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

// ResolveWeekly returns the open intervals of date's weekday. Non-working and malformed
// blocks contribute nothing, and a weekday without blocks is closed.
//
// Overlapping or touching blocks are merged. Each merged interval is ordered by the
// smallest (block_order, open) of the blocks it absorbed.
func ResolveWeekly(blocks []model.WeeklyBlock, date time.Time) []interval.Interval {
	day := int(date.Weekday())

	var todays []model.WeeklyBlock
	for _, b := range blocks {
		if b.DayOfWeek != day || !b.IsWorkingDay {
			continue
		}
		if _, err := interval.New(b.OpenMinute, b.CloseMinute); err != nil {
			continue
		}
		todays = append(todays, b)
	}
	if len(todays) == 0 {
		return nil
	}

	sort.SliceStable(todays, func(i, j int) bool {
		if todays[i].BlockOrder != todays[j].BlockOrder {
			return todays[i].BlockOrder < todays[j].BlockOrder
		}
		return todays[i].OpenMinute < todays[j].OpenMinute
	})

	raw := make([]interval.Interval, len(todays))
	for i, b := range todays {
		raw[i] = interval.Interval{Start: b.OpenMinute, End: b.CloseMinute}
	}
	merged := interval.Merge(raw)
	if len(merged) == len(raw) {
		return raw
	}

	// rank[k] is the position of the first block (in block order) that falls in merged[k].
	rank := make([]int, len(merged))
	for k := range rank {
		rank[k] = len(raw)
	}
	for pos, r := range raw {
		for k, m := range merged {
			if m.Contains(r) {
				if pos < rank[k] {
					rank[k] = pos
				}
				break
			}
		}
	}
	idx := make([]int, len(merged))
	for k := range idx {
		idx[k] = k
	}
	sort.Slice(idx, func(a, b int) bool { return rank[idx[a]] < rank[idx[b]] })

	out := make([]interval.Interval, len(merged))
	for k, i := range idx {
		out[k] = merged[i]
	}
	return out
}

// ValidateWeek enforces the write-path rules for a full weekly replacement.
func ValidateWeek(blocks []model.WeeklyBlock) error {
	perDay := make(map[int][]interval.Interval)
	for i, b := range blocks {
		if b.DayOfWeek < 0 || b.DayOfWeek > 6 {
			return fmt.Errorf("%w: block %d: day_of_week %d out of range", ErrInvalidSchedule, i, b.DayOfWeek)
		}
		if !b.IsWorkingDay {
			continue
		}
		iv, err := interval.New(b.OpenMinute, b.CloseMinute)
		if err != nil {
			return fmt.Errorf("%w: block %d: open must be before close", ErrInvalidSchedule, i)
		}
		if interval.OverlapsAny(iv, perDay[b.DayOfWeek]) {
			return fmt.Errorf("%w: block %d overlaps another block on day %d", ErrInvalidSchedule, i, b.DayOfWeek)
		}
		perDay[b.DayOfWeek] = append(perDay[b.DayOfWeek], iv)
	}
	return nil
}
