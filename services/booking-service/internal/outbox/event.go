package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// The Kafka topic of an event equals its EventType.
const (
	TypeBookingCreated        = "booking.booking.created.v1"
	TypeBookingStatusChanged  = "booking.booking.status_changed.v1"
	TypeVerificationRequested = "booking.verification.requested.v1"
)

type Event struct {
	AggregateType string
	AggregateID   string
	ShopID        string
	EventType     string
	Payload       []byte
}

type bookingServicePayload struct {
	ServiceID       string `json:"service_id"`
	AppliedDuration int    `json:"applied_duration"`
	AppliedPrice    string `json:"applied_price"`
}

type bookingCreatedPayload struct {
	BookingID     string                  `json:"booking_id"`
	ShopID        string                  `json:"shop_id"`
	Date          string                  `json:"date"`
	StartTime     string                  `json:"start_time"`
	EndTime       string                  `json:"end_time"`
	Status        string                  `json:"status"`
	TotalPrice    string                  `json:"total_price"`
	CustomerEmail string                  `json:"customer_email,omitempty"`
	CustomerPhone string                  `json:"customer_phone,omitempty"`
	Services      []bookingServicePayload `json:"services"`
}

func BookingCreated(b model.Booking) (Event, error) {
	p := bookingCreatedPayload{
		BookingID:     b.ID,
		ShopID:        b.ShopID,
		Date:          model.DateKey(b.Date),
		StartTime:     interval.FormatClock(b.StartMinute),
		EndTime:       interval.FormatClock(b.EndMinute),
		Status:        string(b.Status),
		TotalPrice:    b.TotalPrice.StringFixed(2),
		CustomerEmail: b.CustomerEmail,
		CustomerPhone: b.CustomerPhone,
	}
	for _, s := range b.Services {
		p.Services = append(p.Services, bookingServicePayload{
			ServiceID:       s.ServiceID,
			AppliedDuration: s.AppliedDuration,
			AppliedPrice:    s.AppliedPrice.StringFixed(2),
		})
	}
	return newEvent("booking", b.ID, b.ShopID, TypeBookingCreated, p)
}

func BookingStatusChanged(b model.Booking, from model.Status, at time.Time) (Event, error) {
	return newEvent("booking", b.ID, b.ShopID, TypeBookingStatusChanged, map[string]any{
		"booking_id":  b.ID,
		"shop_id":     b.ShopID,
		"date":        model.DateKey(b.Date),
		"start_time":  interval.FormatClock(b.StartMinute),
		"from_status": string(from),
		"to_status":   string(b.Status),
		"changed_at":  at.UTC().Format(time.RFC3339),
	})
}

// VerificationRequested carries the plain code to the notification channel; it is never stored elsewhere.
func VerificationRequested(shopID, recipient, code string, expiresAt time.Time) (Event, error) {
	return newEvent("verification", recipient, shopID, TypeVerificationRequested, map[string]any{
		"shop_id":    shopID,
		"recipient":  recipient,
		"code":       code,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

func newEvent(aggregateType, aggregateID, shopID, eventType string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		ShopID:        shopID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}
