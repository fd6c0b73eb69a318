//go:build integration

package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/modifier"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/migrations"
)

// Run with: DATABASE_URL=postgres://... go test -tags integration ./services/booking-service/internal/storage/

var pgMonday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type pgFixture struct {
	pool      *db.Pool
	repo      *BookingRepository
	engine    *booking.Engine
	shopID    string
	serviceID string
}

func newPGFixture(t *testing.T) pgFixture {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pool, err := db.Open(ctx, url, db.Options{MaxConns: 20})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, migrations.Apply(ctx, pool, logger))

	var shopID, serviceID string
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO shops (name) VALUES ($1) RETURNING id::text`, "it-"+uuid.NewString()).Scan(&shopID))
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DELETE FROM shops WHERE id = $1`, shopID) })
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO services (shop_id, name, duration_minutes, price)
		VALUES ($1, 'Haircut', 30, 25.00) RETURNING id::text
	`, shopID).Scan(&serviceID))
	_, err = pool.Exec(ctx, `
		INSERT INTO service_modifiers (service_id, name, condition_type, duration_modifier, price_modifier, auto_apply)
		VALUES ($1, 'First visit', 'first_visit', 20, 5, true)
	`, serviceID)
	require.NoError(t, err)

	repo := NewBookingRepository(pool, outbox.NewRepository(pool))
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	engine := booking.NewEngine(repo, logger, booking.WithClock(func() time.Time { return now }))
	require.NoError(t, engine.ReplaceWeeklySchedule(ctx, shopID, []model.WeeklyBlock{
		{DayOfWeek: 1, OpenMinute: 540, CloseMinute: 1020, IsWorkingDay: true},
	}))
	return pgFixture{pool: pool, repo: repo, engine: engine, shopID: shopID, serviceID: serviceID}
}

func (f pgFixture) create(ctx context.Context, start int, key string, services ...string) (booking.CreateResult, error) {
	sel := make([]booking.ServiceSelection, len(services))
	for i, s := range services {
		sel[i] = booking.ServiceSelection{ServiceID: s}
	}
	return f.engine.CreateBooking(ctx, booking.CreateRequest{
		ShopID:         f.shopID,
		Date:           pgMonday,
		StartMinute:    start,
		Services:       sel,
		Context:        modifier.Context{IsFirstVisit: true},
		CustomerName:   "Ana",
		IdempotencyKey: key,
	})
}

func TestPostgresConcurrentSameSlot(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.create(ctx, 600, "", f.serviceID)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, booking.ErrSlotConflict)
	}
	assert.Equal(t, 1, succeeded)

	var events int
	require.NoError(t, f.pool.QueryRow(ctx,
		`SELECT count(*) FROM outbox_events WHERE shop_id = $1 AND event_type = $2`, f.shopID, outbox.TypeBookingCreated).Scan(&events))
	assert.Equal(t, 1, events)
}

func TestPostgresExclusionConstraintMapsToConflict(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	_, err := f.create(ctx, 600, "", f.serviceID)
	require.NoError(t, err)

	// The placement ignores existing bookings, so only the constraint can reject it.
	_, _, err = f.repo.PlaceBooking(ctx, booking.PlaceRequest{ShopID: f.shopID, Date: pgMonday, Now: time.Now()},
		func(context.Context, []model.Booking) (booking.Placement, error) {
			return booking.Placement{Booking: model.Booking{
				ID:           uuid.NewString(),
				ShopID:       f.shopID,
				Date:         pgMonday,
				StartMinute:  610,
				EndMinute:    640,
				Status:       model.StatusPending,
				CustomerName: "Bo",
				TotalPrice:   decimal.Zero,
				CreatedAt:    time.Now().UTC(),
			}}, nil
		})
	assert.ErrorIs(t, err, booking.ErrSlotConflict)
}

func TestPostgresIdempotentReplay(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	key := uuid.NewString()

	first, err := f.create(ctx, 540, key, f.serviceID)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := f.create(ctx, 700, key, f.serviceID)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Booking.ID, second.Booking.ID)
	assert.Equal(t, 540, second.Booking.StartMinute)
}

func TestPostgresSameServiceTwice(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	res, err := f.create(ctx, 540, "", f.serviceID, f.serviceID)
	require.NoError(t, err)
	assert.Equal(t, 640, res.Booking.EndMinute)

	stored, err := f.repo.Bookings(ctx, f.shopID, pgMonday, pgMonday)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Len(t, stored[0].Services, 2)
	require.Len(t, stored[0].AppliedModifiers, 2)
	assert.Equal(t, 0, stored[0].AppliedModifiers[0].Position)
	assert.Equal(t, 1, stored[0].AppliedModifiers[1].Position)
}
