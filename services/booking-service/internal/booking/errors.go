package booking

import (
	"errors"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/modifier"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/schedule"
)

// Rejection kinds. Callers match with errors.Is; the wrapped message carries detail.
var (
	ErrInvalidInterval          = errors.New("invalid interval")
	ErrOutsideOpenHours         = errors.New("outside open hours")
	ErrShopClosed               = errors.New("shop closed")
	ErrSlotConflict             = errors.New("slot conflict")
	ErrUnknownService           = errors.New("unknown service")
	ErrUnknownShop              = errors.New("unknown shop")
	ErrInvalidModifierCondition = modifier.ErrInvalidCondition
)

var (
	ErrInvalidSchedule   = schedule.ErrInvalidSchedule
	ErrInvalidRange      = errors.New("invalid date range")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrExceptionNotFound = errors.New("schedule exception not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrLinkInvalid       = errors.New("booking link invalid or expired")
)

// Reason returns a stable label for a rejection error, or "internal".
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInterval):
		return "invalid_interval"
	case errors.Is(err, ErrOutsideOpenHours):
		return "outside_open_hours"
	case errors.Is(err, ErrShopClosed):
		return "shop_closed"
	case errors.Is(err, ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, ErrUnknownService):
		return "unknown_service"
	case errors.Is(err, ErrUnknownShop):
		return "unknown_shop"
	case errors.Is(err, ErrInvalidModifierCondition):
		return "invalid_modifier_condition"
	case errors.Is(err, ErrLinkInvalid):
		return "link_invalid"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrBookingNotFound):
		return "booking_not_found"
	case errors.Is(err, ErrExceptionNotFound):
		return "exception_not_found"
	case errors.Is(err, ErrInvalidSchedule):
		return "invalid_schedule"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	default:
		return "internal"
	}
}

// IsRejection reports whether err is a domain rejection rather than an infrastructure failure.
func IsRejection(err error) bool {
	return err != nil && Reason(err) != "internal"
}
