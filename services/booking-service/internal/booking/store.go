package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
)

// Store is everything the engine reads and writes. Lookups of absent rows return
// nil with a nil error.
type Store interface {
	Shop(ctx context.Context, shopID string) (*model.Shop, error)
	WeeklySchedule(ctx context.Context, shopID string) ([]model.WeeklyBlock, error)
	Exception(ctx context.Context, shopID string, date time.Time) (*model.ScheduleException, error)
	Exceptions(ctx context.Context, shopID string, from, to time.Time) ([]model.ScheduleException, error)
	// Bookings returns non-cancelled bookings dated within [from, to].
	Bookings(ctx context.Context, shopID string, from, to time.Time) ([]model.Booking, error)
	Service(ctx context.Context, serviceID string) (*model.Service, error)
	Modifiers(ctx context.Context, serviceID string) ([]model.ServiceModifier, error)
	BookingLink(ctx context.Context, token string) (*model.BookingLink, error)

	// PlaceBooking runs place while holding the shop's booking lock, passing the shop's
	// non-cancelled bookings on req.Date and a context whose reads join the locked
	// transaction. The returned placement is persisted atomically
	// together with its events, a link redemption and the idempotency record. If the
	// idempotency key was already used, the earlier booking is returned with replayed set
	// and place is not called.
	PlaceBooking(ctx context.Context, req PlaceRequest, place func(ctx context.Context, existing []model.Booking) (Placement, error)) (b model.Booking, replayed bool, err error)
	// UpdateBookingStatus loads the booking under lock and persists the status change
	// applies to it, with the returned events.
	UpdateBookingStatus(ctx context.Context, shopID, bookingID string, change func(b *model.Booking) ([]outbox.Event, error)) (model.Booking, error)

	ReplaceWeeklySchedule(ctx context.Context, shopID string, blocks []model.WeeklyBlock) error
	UpsertException(ctx context.Context, exc model.ScheduleException) error
	DeleteException(ctx context.Context, shopID string, date time.Time) (bool, error)
}

type PlaceRequest struct {
	ShopID         string
	Date           time.Time
	LinkToken      string
	IdempotencyKey string
	Now            time.Time
}

type Placement struct {
	Booking model.Booking
	Events  []outbox.Event
}

// AvailabilityCache stores computed availability per shop and range. Implementations may
// serve stale data; every schedule or booking write invalidates the shop.
//
// Get also returns the shop's cache generation as of the lookup. Set stores under that
// generation, so a value computed before an Invalidate is never visible after it.
// A negative generation means the cache is unusable and Set does nothing.
type AvailabilityCache interface {
	Get(ctx context.Context, shopID string, from, to time.Time) (v map[string][]Interval, gen int64, ok bool)
	Set(ctx context.Context, shopID string, gen int64, from, to time.Time, v map[string][]Interval)
	Invalidate(ctx context.Context, shopID string)
}
