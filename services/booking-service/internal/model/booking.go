package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// CanTransition lists the allowed status changes. Cancelled and completed are terminal.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCancelled || to == StatusCompleted
	default:
		return false
	}
}

// Booking times are minutes after midnight of Date.
type Booking struct {
	ID               string
	ShopID           string
	Date             time.Time
	StartMinute      int
	EndMinute        int
	Status           Status
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	Notes            string
	LinkToken        string
	TotalPrice       decimal.Decimal
	Services         []BookingService
	AppliedModifiers []AppliedModifier
	CreatedAt        time.Time
}

// BookingService is the per-service snapshot stored with a booking.
type BookingService struct {
	ServiceID       string
	ServiceName     string
	AppliedDuration int
	AppliedPrice    decimal.Decimal
}

// AppliedModifier belongs to the service line at Position in Booking.Services.
type AppliedModifier struct {
	ServiceModifierID string
	ServiceID         string
	Position          int
	AppliedDuration   int
	AppliedPrice      decimal.Decimal
}

// Active reports whether the booking occupies its slot.
func (b Booking) Active() bool {
	return b.Status != StatusCancelled
}

// DurationSum is the total of all snapshot durations; EndMinute-StartMinute always equals it.
func (b Booking) DurationSum() int {
	total := 0
	for _, s := range b.Services {
		total += s.AppliedDuration
	}
	for _, m := range b.AppliedModifiers {
		total += m.AppliedDuration
	}
	return total
}
