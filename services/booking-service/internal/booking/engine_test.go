package booking_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/modifier"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

const shopID = "shop-1"

var (
	// 2026-03-02 is a Monday.
	monday  = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	tuesday = monday.AddDate(0, 0, 1)
	now     = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
)

type fixture struct {
	store  *storage.MemoryStore
	engine *booking.Engine
}

func newFixture(t *testing.T, opts ...booking.Option) fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	store.PutShop(model.Shop{ID: shopID, Name: "Corner Salon", IsActive: true})
	store.PutShop(model.Shop{ID: "shop-2", Name: "Other", IsActive: true})
	store.PutService(model.Service{ID: "cut", ShopID: shopID, Name: "Haircut", DurationMinutes: 30, Price: decimal.RequireFromString("25.00"), IsActive: true})
	store.PutService(model.Service{ID: "color", ShopID: shopID, Name: "Color", DurationMinutes: 60, Price: decimal.RequireFromString("80.00"), IsActive: true})
	store.PutService(model.Service{ID: "retired", ShopID: shopID, Name: "Perm", DurationMinutes: 90, Price: decimal.NewFromInt(90), IsActive: false})
	store.PutService(model.Service{ID: "foreign", ShopID: "shop-2", Name: "Massage", DurationMinutes: 60, Price: decimal.NewFromInt(70), IsActive: true})
	store.PutService(model.Service{ID: "marathon", ShopID: shopID, Name: "Bridal", DurationMinutes: 120, Price: decimal.NewFromInt(300), IsActive: true})
	store.PutModifier(model.ServiceModifier{ID: "first-visit", ServiceID: "cut", ConditionType: model.ConditionFirstVisit, DurationModifier: 20, PriceModifier: decimal.NewFromInt(5), AutoApply: true, IsActive: true})
	store.PutModifier(model.ServiceModifier{ID: "long-hair", ServiceID: "cut", ConditionType: model.ConditionCustomerTag, ConditionValue: json.RawMessage(`{"tag":"long-hair"}`), DurationModifier: 10, PriceModifier: decimal.NewFromInt(10), AutoApply: true, IsActive: true})
	store.PutModifier(model.ServiceModifier{ID: "wash", ServiceID: "cut", ConditionType: model.ConditionManual, DurationModifier: 15, PriceModifier: decimal.NewFromInt(8), IsActive: true})

	engine := booking.NewEngine(store, slog.New(slog.NewTextHandler(io.Discard, nil)),
		append([]booking.Option{booking.WithClock(func() time.Time { return now })}, opts...)...)
	require.NoError(t, engine.ReplaceWeeklySchedule(context.Background(), shopID, []model.WeeklyBlock{
		{DayOfWeek: 1, OpenMinute: 540, CloseMinute: 1020, IsWorkingDay: true},
	}))
	return fixture{store: store, engine: engine}
}

func (f fixture) book(t *testing.T, date time.Time, start int, services ...string) (model.Booking, error) {
	t.Helper()
	sel := make([]booking.ServiceSelection, len(services))
	for i, s := range services {
		sel[i] = booking.ServiceSelection{ServiceID: s}
	}
	res, err := f.engine.CreateBooking(context.Background(), booking.CreateRequest{
		ShopID:      shopID,
		Date:        date,
		StartMinute: start,
		Services:    sel,
	})
	return res.Booking, err
}

func (f fixture) availability(t *testing.T, from, to time.Time) map[string][]interval.Interval {
	t.Helper()
	got, err := f.engine.GetAvailability(context.Background(), shopID, from, to)
	require.NoError(t, err)
	return got
}

func TestScenarioA_WeeklyBlockOnly(t *testing.T) {
	f := newFixture(t)
	got := f.availability(t, monday, monday)
	assert.Equal(t, []interval.Interval{{Start: 540, End: 1020}}, got["2026-03-02"])
}

func TestScenarioB_BookingSplitsWindow(t *testing.T) {
	f := newFixture(t)
	_, err := f.book(t, monday, 600, "color")
	require.NoError(t, err)

	got := f.availability(t, monday, monday)
	assert.Equal(t, []interval.Interval{{Start: 540, End: 600}, {Start: 660, End: 1020}}, got["2026-03-02"])
}

func TestScenarioC_ClosedExceptionDominates(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SetException(context.Background(), model.ScheduleException{ShopID: shopID, Date: monday, IsClosed: true}))

	got := f.availability(t, monday, monday)
	assert.Empty(t, got["2026-03-02"])

	_, err := f.book(t, monday, 600, "color")
	assert.ErrorIs(t, err, booking.ErrShopClosed)
}

func TestScenarioD_ModifiersExtendDuration(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.CreateBooking(context.Background(), booking.CreateRequest{
		ShopID:      shopID,
		Date:        monday,
		StartMinute: 540,
		Services:    []booking.ServiceSelection{{ServiceID: "cut"}},
		Context:     modifier.Context{IsFirstVisit: true, CustomerTags: map[string]string{"long-hair": ""}},
	})
	require.NoError(t, err)

	b := res.Booking
	assert.Equal(t, 540, b.StartMinute)
	assert.Equal(t, 600, b.EndMinute)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Equal(t, b.EndMinute-b.StartMinute, b.DurationSum())
	assert.True(t, b.TotalPrice.Equal(decimal.NewFromInt(40)), b.TotalPrice.String())
	require.Len(t, b.Services, 1)
	assert.Equal(t, 30, b.Services[0].AppliedDuration)
	assert.Len(t, b.AppliedModifiers, 2)
}

func TestScenarioE_RunsPastClose(t *testing.T) {
	f := newFixture(t)
	_, err := f.book(t, monday, 990, "color")
	assert.ErrorIs(t, err, booking.ErrOutsideOpenHours)
}

func TestScenarioF_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.book(t, monday, 600, "color")
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
}

func TestAcceptedBookingsNeverOverlap(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(7))
	services := []string{"cut", "color", "marathon"}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		start := 540 + rng.Intn(480)
		svc := services[rng.Intn(len(services))]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.book(t, monday, start, svc)
		}()
	}
	wg.Wait()

	accepted, err := f.store.Bookings(context.Background(), shopID, monday, monday)
	require.NoError(t, err)
	require.NotEmpty(t, accepted)
	for i := range accepted {
		a := interval.Interval{Start: accepted[i].StartMinute, End: accepted[i].EndMinute}
		assert.True(t, a.End <= 1020 && a.Start >= 540, "booking %v outside open hours", a)
		for j := i + 1; j < len(accepted); j++ {
			b := interval.Interval{Start: accepted[j].StartMinute, End: accepted[j].EndMinute}
			assert.False(t, a.Overlaps(b), "%v overlaps %v", a, b)
		}
	}
}

func TestDateWithoutScheduleIsEmpty(t *testing.T) {
	f := newFixture(t)
	got := f.availability(t, tuesday, tuesday.AddDate(0, 0, 4))
	require.Len(t, got, 5)
	for date, free := range got {
		assert.Empty(t, free, date)
	}

	_, err := f.book(t, tuesday, 600, "cut")
	assert.ErrorIs(t, err, booking.ErrShopClosed)
}

func TestAvailabilityIsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, err := f.book(t, monday, 700, "cut")
	require.NoError(t, err)

	first := f.availability(t, monday, monday.AddDate(0, 0, 13))
	second := f.availability(t, monday, monday.AddDate(0, 0, 13))
	assert.Equal(t, first, second)
}

func TestBackToBackAllowed(t *testing.T) {
	f := newFixture(t)
	_, err := f.book(t, monday, 600, "color")
	require.NoError(t, err)
	_, err = f.book(t, monday, 660, "color")
	require.NoError(t, err)
	_, err = f.book(t, monday, 570, "cut")
	require.NoError(t, err)

	_, err = f.book(t, monday, 630, "cut")
	assert.ErrorIs(t, err, booking.ErrSlotConflict)
}

func TestCrossMidnightRejected(t *testing.T) {
	f := newFixture(t)
	openAt, closeAt := 1320, interval.MinutesPerDay
	require.NoError(t, f.engine.SetException(context.Background(), model.ScheduleException{
		ShopID: shopID, Date: tuesday, OpenMinute: &openAt, CloseMinute: &closeAt, Reason: "late night event",
	}))

	_, err := f.book(t, tuesday, 1380, "marathon")
	assert.ErrorIs(t, err, booking.ErrInvalidInterval)

	b, err := f.book(t, tuesday, 1320, "marathon")
	require.NoError(t, err)
	assert.Equal(t, interval.MinutesPerDay, b.EndMinute)
}

func TestUnknownEntities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateBooking(ctx, booking.CreateRequest{ShopID: "nope", Date: monday, StartMinute: 600, Services: []booking.ServiceSelection{{ServiceID: "cut"}}})
	assert.ErrorIs(t, err, booking.ErrUnknownShop)

	for _, svc := range []string{"missing", "retired", "foreign"} {
		_, err := f.book(t, monday, 600, svc)
		assert.ErrorIs(t, err, booking.ErrUnknownService, svc)
	}
	_, err = f.book(t, monday, 600)
	assert.ErrorIs(t, err, booking.ErrUnknownService)

	_, err = f.engine.GetAvailability(ctx, "nope", monday, monday)
	assert.ErrorIs(t, err, booking.ErrUnknownShop)
}

func TestMultipleServicesSumDurations(t *testing.T) {
	f := newFixture(t)
	b, err := f.book(t, monday, 540, "cut", "color")
	require.NoError(t, err)
	assert.Equal(t, 630, b.EndMinute)
	assert.True(t, b.TotalPrice.Equal(decimal.NewFromInt(105)))
	require.Len(t, b.Services, 2)
}

func TestSameServiceTwice(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.CreateBooking(context.Background(), booking.CreateRequest{
		ShopID:      shopID,
		Date:        monday,
		StartMinute: 540,
		Services:    []booking.ServiceSelection{{ServiceID: "cut"}, {ServiceID: "cut"}},
		Context:     modifier.Context{IsFirstVisit: true},
	})
	require.NoError(t, err)

	b := res.Booking
	assert.Equal(t, 640, b.EndMinute)
	assert.True(t, b.TotalPrice.Equal(decimal.NewFromInt(60)), b.TotalPrice.String())
	require.Len(t, b.Services, 2)
	require.Len(t, b.AppliedModifiers, 2)
	for i, a := range b.AppliedModifiers {
		assert.Equal(t, "first-visit", a.ServiceModifierID)
		assert.Equal(t, i, a.Position)
		assert.Equal(t, b.Services[a.Position].ServiceID, a.ServiceID)
	}
}

func TestManualModifierSelectedByStaff(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.CreateBooking(context.Background(), booking.CreateRequest{
		ShopID:      shopID,
		Date:        monday,
		StartMinute: 540,
		Services:    []booking.ServiceSelection{{ServiceID: "cut", ManualModifierIDs: []string{"wash", "not-a-modifier"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 585, res.Booking.EndMinute)
	require.Len(t, res.Booking.AppliedModifiers, 1)
	assert.Equal(t, "wash", res.Booking.AppliedModifiers[0].ServiceModifierID)
}

func TestQuoteSurfacesManualModifiers(t *testing.T) {
	f := newFixture(t)
	q, err := f.engine.Quote(context.Background(), shopID, []booking.ServiceSelection{{ServiceID: "cut"}}, modifier.Context{})
	require.NoError(t, err)
	assert.Equal(t, 30, q.Duration)
	require.Len(t, q.Lines, 1)
	require.Len(t, q.Lines[0].Result.Manual, 1)
	assert.Equal(t, "wash", q.Lines[0].Result.Manual[0].ID)
}

func TestSlots(t *testing.T) {
	f := newFixture(t)
	_, err := f.book(t, monday, 600, "color")
	require.NoError(t, err)

	slots, q, err := f.engine.Slots(context.Background(), shopID, monday, []booking.ServiceSelection{{ServiceID: "color"}}, modifier.Context{}, 30)
	require.NoError(t, err)
	assert.Equal(t, 60, q.Duration)
	assert.Equal(t, 540, slots[0])
	assert.NotContains(t, slots, 570)
	assert.NotContains(t, slots, 600)
	assert.Contains(t, slots, 660)
	assert.Equal(t, 960, slots[len(slots)-1])

	past, _, err := f.engine.Slots(context.Background(), shopID, now.AddDate(0, 0, -7), []booking.ServiceSelection{{ServiceID: "color"}}, modifier.Context{}, 30)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.book(t, monday, 600, "color")
	require.NoError(t, err)

	_, err = f.engine.UpdateStatus(ctx, shopID, b.ID, model.StatusCompleted)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	updated, err := f.engine.UpdateStatus(ctx, shopID, b.ID, model.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, updated.Status)

	_, err = f.engine.UpdateStatus(ctx, shopID, b.ID, model.StatusCancelled)
	require.NoError(t, err)

	// The cancelled booking frees its slot.
	_, err = f.book(t, monday, 600, "color")
	require.NoError(t, err)

	_, err = f.engine.UpdateStatus(ctx, shopID, "missing", model.StatusCancelled)
	assert.ErrorIs(t, err, booking.ErrBookingNotFound)

	var types []string
	for _, evt := range f.store.Events() {
		types = append(types, evt.EventType)
	}
	assert.Equal(t, []string{
		outbox.TypeBookingCreated,
		outbox.TypeBookingStatusChanged,
		outbox.TypeBookingStatusChanged,
		outbox.TypeBookingCreated,
	}, types)
}

func TestBookingLinkRedemption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	one := 1
	f.store.PutLink(model.BookingLink{ID: "l1", ShopID: shopID, Token: "share-me", IsActive: true, ExpiresAt: now.Add(48 * time.Hour), MaxUses: &one})

	_, err := f.engine.ValidateLink(ctx, "share-me")
	require.NoError(t, err)

	req := booking.CreateRequest{ShopID: shopID, Date: monday, StartMinute: 600, Services: []booking.ServiceSelection{{ServiceID: "color"}}, LinkToken: "share-me"}
	res, err := f.engine.CreateBooking(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "share-me", res.Booking.LinkToken)

	req.StartMinute = 720
	_, err = f.engine.CreateBooking(ctx, req)
	assert.ErrorIs(t, err, booking.ErrLinkInvalid)

	_, err = f.engine.ValidateLink(ctx, "share-me")
	assert.ErrorIs(t, err, booking.ErrLinkInvalid)
}

func TestIdempotentCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := booking.CreateRequest{ShopID: shopID, Date: monday, StartMinute: 600, Services: []booking.ServiceSelection{{ServiceID: "color"}}, IdempotencyKey: "req-1"}

	first, err := f.engine.CreateBooking(ctx, req)
	require.NoError(t, err)
	second, err := f.engine.CreateBooking(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Booking.ID, second.Booking.ID)
	assert.Len(t, f.store.Events(), 1)
}

func TestScheduleWritesValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.engine.ReplaceWeeklySchedule(ctx, shopID, []model.WeeklyBlock{
		{DayOfWeek: 1, OpenMinute: 540, CloseMinute: 720, IsWorkingDay: true},
		{DayOfWeek: 1, OpenMinute: 700, CloseMinute: 900, IsWorkingDay: true},
	})
	assert.ErrorIs(t, err, booking.ErrInvalidSchedule)

	// The failed write leaves the old week in place.
	assert.Equal(t, []interval.Interval{{Start: 540, End: 1020}}, f.availability(t, monday, monday)["2026-03-02"])

	require.NoError(t, f.engine.ReplaceWeeklySchedule(ctx, shopID, []model.WeeklyBlock{
		{DayOfWeek: 1, OpenMinute: 780, CloseMinute: 1020, IsWorkingDay: true, BlockOrder: 1},
		{DayOfWeek: 1, OpenMinute: 540, CloseMinute: 720, IsWorkingDay: true, BlockOrder: 0},
	}))
	assert.Equal(t, []interval.Interval{{Start: 540, End: 720}, {Start: 780, End: 1020}}, f.availability(t, monday, monday)["2026-03-02"])

	_, err = f.book(t, monday, 700, "color")
	assert.ErrorIs(t, err, booking.ErrOutsideOpenHours)

	err = f.engine.DeleteException(ctx, shopID, monday)
	assert.ErrorIs(t, err, booking.ErrExceptionNotFound)
}

func TestReplaceWeeklyScheduleLeavesInputUntouched(t *testing.T) {
	f := newFixture(t)
	blocks := []model.WeeklyBlock{{DayOfWeek: 2, OpenMinute: 600, CloseMinute: 720, IsWorkingDay: true}}
	require.NoError(t, f.engine.ReplaceWeeklySchedule(context.Background(), shopID, blocks))
	assert.Empty(t, blocks[0].ShopID)

	stored, err := f.store.WeeklySchedule(context.Background(), shopID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, shopID, stored[0].ShopID)
}

func TestRangeLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.GetAvailability(ctx, shopID, tuesday, monday)
	assert.ErrorIs(t, err, booking.ErrInvalidRange)
	_, err = f.engine.GetAvailability(ctx, shopID, monday, monday.AddDate(0, 0, booking.MaxRangeDays))
	assert.ErrorIs(t, err, booking.ErrInvalidRange)
	_, err = f.engine.GetAvailability(ctx, shopID, monday, monday.AddDate(0, 0, booking.MaxRangeDays-1))
	assert.NoError(t, err)
}

func TestCalendar(t *testing.T) {
	f := newFixture(t)
	_, err := f.book(t, monday, 660, "color")
	require.NoError(t, err)
	_, err = f.book(t, monday, 540, "cut")
	require.NoError(t, err)

	days, err := f.engine.GetCalendar(context.Background(), shopID, monday, tuesday)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-03-02", days[0].Date)
	require.Len(t, days[0].Bookings, 2)
	assert.Equal(t, 540, days[0].Bookings[0].StartMinute)
	assert.Equal(t, "Haircut", days[0].Bookings[0].Services[0].ServiceName)
	assert.Equal(t, []interval.Interval{{Start: 540, End: 1020}}, days[0].OpenIntervals)
	assert.Equal(t, []interval.Interval{{Start: 570, End: 660}, {Start: 720, End: 1020}}, days[0].FreeIntervals)
	assert.Empty(t, days[1].OpenIntervals)
}

type countingCache struct {
	mu          sync.Mutex
	data        map[string]map[string][]interval.Interval
	gen         int64
	hits        int
	invalidated int
}

func (c *countingCache) key(shopID string, from, to time.Time) string {
	return fmt.Sprintf("%s|%s|%s", shopID, model.DateKey(from), model.DateKey(to))
}

func (c *countingCache) Get(_ context.Context, shopID string, from, to time.Time) (map[string][]interval.Interval, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[c.key(shopID, from, to)]
	if ok {
		c.hits++
	}
	return v, c.gen, ok
}

func (c *countingCache) Set(_ context.Context, shopID string, gen int64, from, to time.Time, v map[string][]interval.Interval) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.data[c.key(shopID, from, to)] = v
}

func (c *countingCache) Invalidate(context.Context, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	c.gen++
	c.data = make(map[string]map[string][]interval.Interval)
}

func TestCacheInvalidatedOnWrites(t *testing.T) {
	cache := &countingCache{data: make(map[string]map[string][]interval.Interval)}
	f := newFixture(t, booking.WithCache(cache))

	f.availability(t, monday, monday)
	f.availability(t, monday, monday)
	assert.Equal(t, 1, cache.hits)

	_, err := f.book(t, monday, 600, "color")
	require.NoError(t, err)
	got := f.availability(t, monday, monday)
	assert.Equal(t, []interval.Interval{{Start: 540, End: 600}, {Start: 660, End: 1020}}, got["2026-03-02"])
	assert.Equal(t, 1, cache.hits)
	assert.GreaterOrEqual(t, cache.invalidated, 2)
}

func TestRejectionReasons(t *testing.T) {
	assert.Equal(t, "slot_conflict", booking.Reason(fmt.Errorf("%w: x", booking.ErrSlotConflict)))
	assert.Equal(t, "internal", booking.Reason(errors.New("db down")))
	assert.False(t, booking.IsRejection(nil))
}
