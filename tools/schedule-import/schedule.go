package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout:
//
//	shop_id: 6f1c...
//	weekly:
//	  - day: monday
//	    open: "09:00"
//	    close: "17:00"
//	exceptions:
//	  - date: 2026-12-25
//	    closed: true
//	    reason: Christmas
type File struct {
	ShopID     string      `yaml:"shop_id"`
	Weekly     []Block     `yaml:"weekly"`
	Exceptions []Exception `yaml:"exceptions"`
}

type Block struct {
	Day     Weekday `yaml:"day"`
	Open    string  `yaml:"open"`
	Close   string  `yaml:"close"`
	Order   int     `yaml:"order"`
	Working *bool   `yaml:"working"`
}

type Exception struct {
	Date   string `yaml:"date"`
	Closed bool   `yaml:"closed"`
	Open   string `yaml:"open"`
	Close  string `yaml:"close"`
	Reason string `yaml:"reason"`
}

// Weekday accepts 0..6 (Sunday first) or an English day name.
type Weekday int

func (d *Weekday) UnmarshalYAML(node *yaml.Node) error {
	v := strings.ToLower(strings.TrimSpace(node.Value))
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 || n > 6 {
			return fmt.Errorf("line %d: day %d out of range 0..6", node.Line, n)
		}
		*d = Weekday(n)
		return nil
	}
	for i := time.Sunday; i <= time.Saturday; i++ {
		name := strings.ToLower(i.String())
		if v == name || v == name[:3] {
			*d = Weekday(i)
			return nil
		}
	}
	return fmt.Errorf("line %d: unknown day %q", node.Line, node.Value)
}

func Load(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("parse schedule: %w", err)
	}
	f.ShopID = strings.TrimSpace(f.ShopID)
	if f.ShopID == "" {
		return File{}, fmt.Errorf("shop_id is required")
	}
	for i, b := range f.Weekly {
		if !validClock(b.Open) || !validClock(b.Close) {
			return File{}, fmt.Errorf("weekly[%d]: open and close must be HH:MM", i)
		}
	}
	for i, e := range f.Exceptions {
		if _, err := time.Parse("2006-01-02", e.Date); err != nil {
			return File{}, fmt.Errorf("exceptions[%d]: invalid date %q", i, e.Date)
		}
		if e.Closed {
			continue
		}
		if (e.Open == "") != (e.Close == "") || (e.Open != "" && (!validClock(e.Open) || !validClock(e.Close))) {
			return File{}, fmt.Errorf("exceptions[%d]: open and close must both be HH:MM", i)
		}
	}
	return f, nil
}

func validClock(s string) bool {
	if s == "24:00" {
		return true
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}

type blockBody struct {
	DayOfWeek    int    `json:"day_of_week"`
	OpenTime     string `json:"open_time"`
	CloseTime    string `json:"close_time"`
	IsWorkingDay bool   `json:"is_working_day"`
	BlockOrder   int    `json:"block_order"`
}

type scheduleBody struct {
	ShopID string      `json:"shop_id"`
	Blocks []blockBody `json:"blocks"`
}

type exceptionBody struct {
	ShopID    string `json:"shop_id"`
	Date      string `json:"date"`
	IsClosed  bool   `json:"is_closed"`
	OpenTime  string `json:"open_time,omitempty"`
	CloseTime string `json:"close_time,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (f File) scheduleBody() scheduleBody {
	body := scheduleBody{ShopID: f.ShopID, Blocks: make([]blockBody, 0, len(f.Weekly))}
	for _, b := range f.Weekly {
		working := true
		if b.Working != nil {
			working = *b.Working
		}
		body.Blocks = append(body.Blocks, blockBody{
			DayOfWeek:    int(b.Day),
			OpenTime:     b.Open,
			CloseTime:    b.Close,
			IsWorkingDay: working,
			BlockOrder:   b.Order,
		})
	}
	return body
}

func (f File) exceptionBodies() []exceptionBody {
	out := make([]exceptionBody, 0, len(f.Exceptions))
	for _, e := range f.Exceptions {
		out = append(out, exceptionBody{
			ShopID:    f.ShopID,
			Date:      e.Date,
			IsClosed:  e.Closed,
			OpenTime:  e.Open,
			CloseTime: e.Close,
			Reason:    e.Reason,
		})
	}
	return out
}
