package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// AdminHandler serves the shop-side calendar, status and schedule endpoints.
type AdminHandler struct {
	engine *booking.Engine
	logger *slog.Logger
}

func NewAdminHandler(engine *booking.Engine, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{engine: engine, logger: logger}
}

type calendarDayItem struct {
	Date          string         `json:"date"`
	OpenIntervals []intervalItem `json:"open_intervals"`
	FreeIntervals []intervalItem `json:"free_intervals"`
	Bookings      []bookingItem  `json:"bookings"`
}

func toCalendarItems(days []calendar.Day) []calendarDayItem {
	out := make([]calendarDayItem, 0, len(days))
	for _, d := range days {
		item := calendarDayItem{
			Date:          d.Date,
			OpenIntervals: intervalItems(d.OpenIntervals),
			FreeIntervals: intervalItems(d.FreeIntervals),
			Bookings:      make([]bookingItem, 0, len(d.Bookings)),
		}
		for _, b := range d.Bookings {
			item.Bookings = append(item.Bookings, toBookingItem(b))
		}
		out = append(out, item)
	}
	return out
}

func (h *AdminHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	shopID := shopIDFrom(r)
	if shopID == "" {
		http.Error(w, "shop_id is required", http.StatusBadRequest)
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	days, err := h.engine.GetCalendar(r.Context(), shopID, from, to)
	if err != nil {
		writeError(w, h.logger, "failed to build calendar", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shop_id": shopID, "days": toCalendarItems(days)})
}

type statusRequest struct {
	ShopID    string `json:"shop_id"`
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ShopID = strings.TrimSpace(req.ShopID); req.ShopID == "" {
		req.ShopID = strings.TrimSpace(r.Header.Get("X-Shop-Id"))
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.ShopID == "" || req.BookingID == "" || req.Status == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	b, err := h.engine.UpdateStatus(r.Context(), req.ShopID, req.BookingID, model.Status(strings.ToLower(strings.TrimSpace(req.Status))))
	if err != nil {
		writeError(w, h.logger, "failed to update booking status", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(b))
}

type blockItem struct {
	DayOfWeek    int    `json:"day_of_week"`
	OpenTime     string `json:"open_time"`
	CloseTime    string `json:"close_time"`
	IsWorkingDay *bool  `json:"is_working_day"`
	BlockOrder   int    `json:"block_order"`
}

type scheduleRequest struct {
	ShopID string      `json:"shop_id"`
	Blocks []blockItem `json:"blocks"`
}

// parseBlocks converts wire blocks to model blocks; is_working_day defaults to true.
func parseBlocks(items []blockItem) ([]model.WeeklyBlock, error) {
	out := make([]model.WeeklyBlock, 0, len(items))
	for _, it := range items {
		open, err := interval.ParseClock(strings.TrimSpace(it.OpenTime))
		if err != nil {
			return nil, err
		}
		closeAt, err := interval.ParseClock(strings.TrimSpace(it.CloseTime))
		if err != nil {
			return nil, err
		}
		working := true
		if it.IsWorkingDay != nil {
			working = *it.IsWorkingDay
		}
		out = append(out, model.WeeklyBlock{
			DayOfWeek:    it.DayOfWeek,
			OpenMinute:   open,
			CloseMinute:  closeAt,
			IsWorkingDay: working,
			BlockOrder:   it.BlockOrder,
		})
	}
	return out, nil
}

func (h *AdminHandler) ReplaceSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req scheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ShopID = strings.TrimSpace(req.ShopID); req.ShopID == "" {
		http.Error(w, "shop_id is required", http.StatusBadRequest)
		return
	}
	blocks, err := parseBlocks(req.Blocks)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.engine.ReplaceWeeklySchedule(r.Context(), req.ShopID, blocks); err != nil {
		writeError(w, h.logger, "failed to replace schedule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type exceptionRequest struct {
	ShopID    string `json:"shop_id"`
	Date      string `json:"date"`
	IsClosed  bool   `json:"is_closed"`
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
	Reason    string `json:"reason"`
}

// Exceptions handles PUT (create or replace the exception for a date) and DELETE
// (?shop_id&date).
func (h *AdminHandler) Exceptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		h.putException(w, r)
	case http.MethodDelete:
		h.deleteException(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) putException(w http.ResponseWriter, r *http.Request) {
	var req exceptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ShopID = strings.TrimSpace(req.ShopID); req.ShopID == "" {
		http.Error(w, "shop_id is required", http.StatusBadRequest)
		return
	}
	date, err := model.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	exc := model.ScheduleException{ShopID: req.ShopID, Date: date, IsClosed: req.IsClosed, Reason: req.Reason}
	if !req.IsClosed {
		if exc.OpenMinute, err = optionalClock(req.OpenTime); err != nil {
			http.Error(w, "invalid open_time", http.StatusBadRequest)
			return
		}
		if exc.CloseMinute, err = optionalClock(req.CloseTime); err != nil {
			http.Error(w, "invalid close_time", http.StatusBadRequest)
			return
		}
	}
	if err := h.engine.SetException(r.Context(), exc); err != nil {
		writeError(w, h.logger, "failed to set schedule exception", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) deleteException(w http.ResponseWriter, r *http.Request) {
	shopID := shopIDFrom(r)
	if shopID == "" {
		http.Error(w, "shop_id is required", http.StatusBadRequest)
		return
	}
	date, err := model.ParseDate(strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	if err := h.engine.DeleteException(r.Context(), shopID, date); err != nil {
		writeError(w, h.logger, "failed to delete schedule exception", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func optionalClock(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	m, err := interval.ParseClock(s)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
