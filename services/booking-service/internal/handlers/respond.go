package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/verification"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps engine and verification errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrInvalidInterval),
		errors.Is(err, booking.ErrInvalidRange),
		errors.Is(err, booking.ErrInvalidSchedule):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrUnknownShop),
		errors.Is(err, booking.ErrUnknownService),
		errors.Is(err, booking.ErrBookingNotFound),
		errors.Is(err, booking.ErrExceptionNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrShopClosed),
		errors.Is(err, booking.ErrOutsideOpenHours),
		errors.Is(err, booking.ErrInvalidModifierCondition),
		errors.Is(err, verification.ErrCodeMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, booking.ErrSlotConflict),
		errors.Is(err, booking.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, booking.ErrLinkInvalid),
		errors.Is(err, verification.ErrNotVerified):
		return http.StatusForbidden
	case errors.Is(err, verification.ErrCodeExpired):
		return http.StatusGone
	case errors.Is(err, verification.ErrRateLimited),
		errors.Is(err, verification.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(msg, "err", err)
		http.Error(w, msg, status)
		return
	}
	http.Error(w, err.Error(), status)
}

type intervalItem struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func intervalItems(in []interval.Interval) []intervalItem {
	out := make([]intervalItem, 0, len(in))
	for _, iv := range in {
		out = append(out, intervalItem{Start: interval.FormatClock(iv.Start), End: interval.FormatClock(iv.End)})
	}
	return out
}

type bookingServiceItem struct {
	ServiceID       string `json:"service_id"`
	ServiceName     string `json:"service_name,omitempty"`
	AppliedDuration int    `json:"applied_duration"`
	AppliedPrice    string `json:"applied_price"`
}

type appliedModifierItem struct {
	ModifierID      string `json:"modifier_id"`
	ServiceID       string `json:"service_id"`
	Position        int    `json:"position"`
	AppliedDuration int    `json:"applied_duration"`
	AppliedPrice    string `json:"applied_price"`
}

type bookingItem struct {
	BookingID        string                `json:"booking_id"`
	ShopID           string                `json:"shop_id"`
	Date             string                `json:"date"`
	StartTime        string                `json:"start_time"`
	EndTime          string                `json:"end_time"`
	Status           string                `json:"status"`
	TotalPrice       string                `json:"total_price"`
	CustomerName     string                `json:"customer_name,omitempty"`
	CustomerEmail    string                `json:"customer_email,omitempty"`
	CustomerPhone    string                `json:"customer_phone,omitempty"`
	Notes            string                `json:"notes,omitempty"`
	Services         []bookingServiceItem  `json:"services"`
	AppliedModifiers []appliedModifierItem `json:"applied_modifiers"`
	CreatedAt        string                `json:"created_at,omitempty"`
}

func toBookingItem(b model.Booking) bookingItem {
	item := bookingItem{
		BookingID:        b.ID,
		ShopID:           b.ShopID,
		Date:             model.DateKey(b.Date),
		StartTime:        interval.FormatClock(b.StartMinute),
		EndTime:          interval.FormatClock(b.EndMinute),
		Status:           string(b.Status),
		TotalPrice:       b.TotalPrice.StringFixed(2),
		CustomerName:     b.CustomerName,
		CustomerEmail:    b.CustomerEmail,
		CustomerPhone:    b.CustomerPhone,
		Notes:            b.Notes,
		Services:         make([]bookingServiceItem, 0, len(b.Services)),
		AppliedModifiers: make([]appliedModifierItem, 0, len(b.AppliedModifiers)),
	}
	if !b.CreatedAt.IsZero() {
		item.CreatedAt = b.CreatedAt.UTC().Format(time.RFC3339)
	}
	for _, s := range b.Services {
		item.Services = append(item.Services, bookingServiceItem{
			ServiceID:       s.ServiceID,
			ServiceName:     s.ServiceName,
			AppliedDuration: s.AppliedDuration,
			AppliedPrice:    s.AppliedPrice.StringFixed(2),
		})
	}
	for _, m := range b.AppliedModifiers {
		item.AppliedModifiers = append(item.AppliedModifiers, appliedModifierItem{
			ModifierID:      m.ServiceModifierID,
			ServiceID:       m.ServiceID,
			Position:        m.Position,
			AppliedDuration: m.AppliedDuration,
			AppliedPrice:    m.AppliedPrice.StringFixed(2),
		})
	}
	return item
}

// shopIDFrom prefers the query parameter and falls back to the X-Shop-Id header.
func shopIDFrom(r *http.Request) string {
	if v := strings.TrimSpace(r.URL.Query().Get("shop_id")); v != "" {
		return v
	}
	return strings.TrimSpace(r.Header.Get("X-Shop-Id"))
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	from, err := model.ParseDate(q.Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to := from
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		if to, err = model.ParseDate(raw); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from, to, nil
}
