package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/modifier"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/schedule"
)

// MaxRangeDays caps availability and calendar queries.
const MaxRangeDays = 92

type Engine struct {
	store  Store
	cache  AvailabilityCache
	logger *slog.Logger
	now    func() time.Time
	tracer trace.Tracer
}

type Option func(*Engine)

func WithCache(c AvailabilityCache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: logger,
		now:    time.Now,
		tracer: otel.Tracer("salonbook/booking"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type ServiceSelection struct {
	ServiceID string
	// ManualModifierIDs are staff-selected modifiers applied regardless of their condition.
	ManualModifierIDs []string
}

type CreateRequest struct {
	ShopID         string
	Date           time.Time
	StartMinute    int
	Services       []ServiceSelection
	Context        modifier.Context
	InitialStatus  model.Status // pending when empty
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	Notes          string
	LinkToken      string
	IdempotencyKey string
}

type CreateResult struct {
	Booking  model.Booking
	Replayed bool
}

// CreateBooking validates and places a booking. Rejections wrap one of the Err* kinds;
// nothing is written unless every check passes.
func (e *Engine) CreateBooking(ctx context.Context, req CreateRequest) (CreateResult, error) {
	start := time.Now()
	defer metrics.ObserveSince("create_booking", start)
	ctx, span := e.tracer.Start(ctx, "booking.CreateBooking", trace.WithAttributes(
		attribute.String("shop_id", req.ShopID),
		attribute.String("date", model.DateKey(req.Date)),
		attribute.Int("start_minute", req.StartMinute),
	))
	defer span.End()

	res, err := e.createBooking(ctx, req)
	if err != nil {
		e.recordFailure(span, "create booking", req.ShopID, err)
		if IsRejection(err) {
			metrics.IncBookingRejected(Reason(err))
		}
		return CreateResult{}, err
	}
	if !res.Replayed {
		metrics.IncBookingCreated(string(res.Booking.Status))
		e.invalidate(ctx, req.ShopID)
		e.logger.Info("booking created",
			"shop_id", req.ShopID,
			"booking_id", res.Booking.ID,
			"date", model.DateKey(res.Booking.Date),
			"start", res.Booking.StartMinute,
			"end", res.Booking.EndMinute,
		)
	}
	span.SetAttributes(attribute.String("booking_id", res.Booking.ID), attribute.Bool("replayed", res.Replayed))
	return res, nil
}

func (e *Engine) createBooking(ctx context.Context, req CreateRequest) (CreateResult, error) {
	shop, err := e.requireShop(ctx, req.ShopID)
	if err != nil {
		return CreateResult{}, err
	}

	status := req.InitialStatus
	if status == "" {
		status = model.StatusPending
	}
	if status != model.StatusPending && status != model.StatusConfirmed {
		return CreateResult{}, fmt.Errorf("%w: initial status %q", ErrInvalidTransition, status)
	}

	q, err := e.quote(ctx, shop.ID, req.Services, req.Context)
	if err != nil {
		return CreateResult{}, err
	}
	slot, err := Span(req.StartMinute, q.Duration)
	if err != nil {
		return CreateResult{}, err
	}

	date := model.DateOf(req.Date)
	now := e.now().UTC()
	placeReq := PlaceRequest{
		ShopID:         shop.ID,
		Date:           date,
		LinkToken:      strings.TrimSpace(req.LinkToken),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		Now:            now,
	}

	b, replayed, err := e.store.PlaceBooking(ctx, placeReq, func(ctx context.Context, existing []model.Booking) (Placement, error) {
		open, err := e.openIntervals(ctx, shop.ID, date)
		if err != nil {
			return Placement{}, err
		}
		if err := Validate(open, existing, slot); err != nil {
			return Placement{}, err
		}

		b := q.snapshot(model.Booking{
			ID:            uuid.NewString(),
			ShopID:        shop.ID,
			Date:          date,
			StartMinute:   slot.Start,
			EndMinute:     slot.End,
			Status:        status,
			CustomerName:  strings.TrimSpace(req.CustomerName),
			CustomerEmail: strings.TrimSpace(req.CustomerEmail),
			CustomerPhone: strings.TrimSpace(req.CustomerPhone),
			Notes:         strings.TrimSpace(req.Notes),
			LinkToken:     placeReq.LinkToken,
			CreatedAt:     now,
		})
		evt, err := outbox.BookingCreated(b)
		if err != nil {
			return Placement{}, err
		}
		return Placement{Booking: b, Events: []outbox.Event{evt}}, nil
	})
	if err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Booking: b, Replayed: replayed}, nil
}

// GetAvailability returns free intervals for every date in [from, to]. Dates without
// schedule data are closed, never an error.
func (e *Engine) GetAvailability(ctx context.Context, shopID string, from, to time.Time) (map[string][]Interval, error) {
	start := time.Now()
	defer metrics.ObserveSince("get_availability", start)
	ctx, span := e.tracer.Start(ctx, "booking.GetAvailability", trace.WithAttributes(attribute.String("shop_id", shopID)))
	defer span.End()

	from, to, err := checkRange(from, to)
	if err != nil {
		return nil, err
	}
	if _, err := e.requireShop(ctx, shopID); err != nil {
		e.recordFailure(span, "get availability", shopID, err)
		return nil, err
	}

	gen := int64(-1)
	if e.cache != nil {
		v, g, ok := e.cache.Get(ctx, shopID, from, to)
		if ok {
			metrics.IncAvailabilityCache(true)
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return v, nil
		}
		metrics.IncAvailabilityCache(false)
		gen = g
	}

	open, bookings, err := e.loadRange(ctx, shopID, from, to)
	if err != nil {
		e.recordFailure(span, "get availability", shopID, err)
		return nil, err
	}
	free := availability.Calculate(from, to, open, bookings)
	if e.cache != nil {
		e.cache.Set(ctx, shopID, gen, from, to, free)
	}
	return free, nil
}

// GetCalendar returns one day view per date in [from, to], ascending.
func (e *Engine) GetCalendar(ctx context.Context, shopID string, from, to time.Time) ([]calendar.Day, error) {
	start := time.Now()
	defer metrics.ObserveSince("get_calendar", start)
	ctx, span := e.tracer.Start(ctx, "booking.GetCalendar", trace.WithAttributes(attribute.String("shop_id", shopID)))
	defer span.End()

	from, to, err := checkRange(from, to)
	if err != nil {
		return nil, err
	}
	if _, err := e.requireShop(ctx, shopID); err != nil {
		e.recordFailure(span, "get calendar", shopID, err)
		return nil, err
	}
	open, bookings, err := e.loadRange(ctx, shopID, from, to)
	if err != nil {
		e.recordFailure(span, "get calendar", shopID, err)
		return nil, err
	}
	free := availability.Calculate(from, to, open, bookings)
	return calendar.Build(from, to, open, free, bookings), nil
}

// CheckShop returns ErrUnknownShop unless shopID names an active shop.
func (e *Engine) CheckShop(ctx context.Context, shopID string) error {
	_, err := e.requireShop(ctx, shopID)
	return err
}

func (e *Engine) requireShop(ctx context.Context, shopID string) (*model.Shop, error) {
	if strings.TrimSpace(shopID) == "" {
		return nil, fmt.Errorf("%w: shop id is empty", ErrUnknownShop)
	}
	shop, err := e.store.Shop(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("load shop: %w", err)
	}
	if shop == nil || !shop.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrUnknownShop, shopID)
	}
	return shop, nil
}

func (e *Engine) openIntervals(ctx context.Context, shopID string, date time.Time) ([]Interval, error) {
	blocks, err := e.store.WeeklySchedule(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("load weekly schedule: %w", err)
	}
	exc, err := e.store.Exception(ctx, shopID, date)
	if err != nil {
		return nil, fmt.Errorf("load schedule exception: %w", err)
	}
	return schedule.OpenIntervals(blocks, exc, date), nil
}

// loadRange resolves open intervals per date and fetches the range's bookings.
func (e *Engine) loadRange(ctx context.Context, shopID string, from, to time.Time) (map[string][]Interval, []model.Booking, error) {
	blocks, err := e.store.WeeklySchedule(ctx, shopID)
	if err != nil {
		return nil, nil, fmt.Errorf("load weekly schedule: %w", err)
	}
	excs, err := e.store.Exceptions(ctx, shopID, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("load schedule exceptions: %w", err)
	}
	bookings, err := e.store.Bookings(ctx, shopID, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("load bookings: %w", err)
	}

	byDate := make(map[string]*model.ScheduleException, len(excs))
	for i := range excs {
		byDate[model.DateKey(excs[i].Date)] = &excs[i]
	}
	open := make(map[string][]Interval)
	for _, d := range model.Dates(from, to) {
		k := model.DateKey(d)
		open[k] = schedule.OpenIntervals(blocks, byDate[k], d)
	}
	return open, bookings, nil
}

func checkRange(from, to time.Time) (time.Time, time.Time, error) {
	from, to = model.DateOf(from), model.DateOf(to)
	if to.Before(from) {
		return from, to, fmt.Errorf("%w: to is before from", ErrInvalidRange)
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > MaxRangeDays {
		return from, to, fmt.Errorf("%w: %d days exceeds %d", ErrInvalidRange, days, MaxRangeDays)
	}
	return from, to, nil
}

func (e *Engine) invalidate(ctx context.Context, shopID string) {
	if e.cache != nil {
		e.cache.Invalidate(ctx, shopID)
	}
}

// recordFailure logs rejections at info and infrastructure failures at error.
func (e *Engine) recordFailure(span trace.Span, op, shopID string, err error) {
	if IsRejection(err) {
		span.SetAttributes(attribute.String("rejection", Reason(err)))
		e.logger.Info(op+" rejected", "shop_id", shopID, "reason", Reason(err), "err", err)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.logger.Error(op+" failed", "shop_id", shopID, "err", err)
}
