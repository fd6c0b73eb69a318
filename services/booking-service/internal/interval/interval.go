package interval

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// MinutesPerDay is the exclusive upper bound of a same-day interval.
const MinutesPerDay = 24 * 60

var ErrInvalid = errors.New("invalid interval")

// Interval is a half-open range [Start, End) in minutes after midnight of a single date.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// New validates 0 <= start < end <= MinutesPerDay.
func New(start, end int) (Interval, error) {
	if start < 0 || end > MinutesPerDay || end <= start {
		return Interval{}, fmt.Errorf("%w: [%d,%d)", ErrInvalid, start, end)
	}
	return Interval{Start: start, End: end}, nil
}

// ParseClock parses "HH:MM" (or "HH:MM:SS", seconds ignored) into minutes after midnight.
// "24:00" is accepted as the end of the day.
func ParseClock(s string) (int, error) {
	if s == "24:00" || s == "24:00:00" {
		return MinutesPerDay, nil
	}
	layout := "15:04"
	if len(s) == len("15:04:05") {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func FormatClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func (i Interval) Duration() int { return i.End - i.Start }

func (i Interval) Empty() bool { return i.End <= i.Start }

// Overlaps is strict: touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

func (i Interval) String() string {
	return "[" + FormatClock(i.Start) + "," + FormatClock(i.End) + ")"
}

// Sort orders by start, then end.
func Sort(in []Interval) {
	sort.Slice(in, func(a, b int) bool {
		if in[a].Start != in[b].Start {
			return in[a].Start < in[b].Start
		}
		return in[a].End < in[b].End
	})
}

// Merge returns a sorted copy of in with overlapping and adjacent intervals coalesced.
// Empty intervals are dropped.
func Merge(in []Interval) []Interval {
	b := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Empty() {
			b = append(b, iv)
		}
	}
	if len(b) == 0 {
		return nil
	}
	Sort(b)

	merged := b[:1]
	for _, cur := range b[1:] {
		last := &merged[len(merged)-1]
		if cur.Start > last.End {
			merged = append(merged, cur)
			continue
		}
		if cur.End > last.End {
			last.End = cur.End
		}
	}
	return merged
}

// Subtract returns the maximal sub-intervals of window not covered by occupied, in order.
func Subtract(window Interval, occupied []Interval) []Interval {
	if window.Empty() {
		return nil
	}
	var out []Interval
	cursor := window.Start
	for _, m := range Merge(occupied) {
		if m.End <= window.Start || m.Start >= window.End {
			continue
		}
		if m.Start > cursor {
			out = append(out, Interval{Start: cursor, End: m.Start})
		}
		if m.End > cursor {
			cursor = m.End
		}
	}
	if cursor < window.End {
		out = append(out, Interval{Start: cursor, End: window.End})
	}
	return out
}

// SubtractAll applies Subtract to every window and concatenates the results in window order.
func SubtractAll(windows, occupied []Interval) []Interval {
	merged := Merge(occupied)
	var out []Interval
	for _, w := range windows {
		out = append(out, Subtract(w, merged)...)
	}
	return out
}

// OverlapsAny reports whether iv overlaps at least one of others.
func OverlapsAny(iv Interval, others []Interval) bool {
	for _, o := range others {
		if iv.Overlaps(o) {
			return true
		}
	}
	return false
}

// ContainedInAny reports whether iv lies fully inside at least one window.
func ContainedInAny(iv Interval, windows []Interval) bool {
	for _, w := range windows {
		if w.Contains(iv) {
			return true
		}
	}
	return false
}
