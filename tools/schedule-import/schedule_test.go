package main

import (
	"testing"
)

const sample = `
shop_id: 6f1c2d9e-0000-4000-8000-000000000001
weekly:
  - day: monday
    open: "09:00"
    close: "12:00"
  - day: mon
    open: "13:00"
    close: "17:00"
    order: 1
  - day: 0
    open: "00:00"
    close: "00:00"
    working: false
exceptions:
  - date: "2026-12-25"
    closed: true
    reason: Christmas
  - date: "2026-12-24"
    open: "09:00"
    close: "13:00"
`

func TestParseSchedule(t *testing.T) {
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	body := f.scheduleBody()
	if len(body.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(body.Blocks))
	}
	if body.Blocks[0].DayOfWeek != 1 || body.Blocks[1].DayOfWeek != 1 || body.Blocks[1].BlockOrder != 1 {
		t.Fatalf("unexpected blocks: %+v", body.Blocks)
	}
	if !body.Blocks[0].IsWorkingDay || body.Blocks[2].IsWorkingDay {
		t.Fatalf("unexpected working flags: %+v", body.Blocks)
	}

	excs := f.exceptionBodies()
	if len(excs) != 2 || !excs[0].IsClosed || excs[1].OpenTime != "09:00" || excs[1].ShopID != f.ShopID {
		t.Fatalf("unexpected exceptions: %+v", excs)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"missing shop":  "weekly: []",
		"bad day":       "shop_id: s\nweekly:\n  - day: funday\n    open: \"09:00\"\n    close: \"10:00\"",
		"day range":     "shop_id: s\nweekly:\n  - day: 7\n    open: \"09:00\"\n    close: \"10:00\"",
		"bad clock":     "shop_id: s\nweekly:\n  - day: 1\n    open: \"9am\"\n    close: \"10:00\"",
		"unknown field": "shop_id: s\nholidays: []",
		"half override": "shop_id: s\nexceptions:\n  - date: 2026-12-24\n    open: \"09:00\"",
		"bad date":      "shop_id: s\nexceptions:\n  - date: 24/12/2026\n    closed: true",
	}
	for name, in := range cases {
		if _, err := Parse([]byte(in)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
