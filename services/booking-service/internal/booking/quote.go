package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/modifier"
)

// Quote is the effective duration and price of a set of services for one customer.
type Quote struct {
	Duration int
	Price    decimal.Decimal
	Lines    []QuoteLine
}

type QuoteLine struct {
	Service model.Service
	Result  modifier.Result
}

// snapshot fills the per-service and per-modifier records of b. A service line carries
// its effective value minus its applied deltas, so the lines always add up to the
// clamped totals.
func (q Quote) snapshot(b model.Booking) model.Booking {
	b.TotalPrice = q.Price
	for pos, line := range q.Lines {
		durationDelta := 0
		priceDelta := decimal.Zero
		for _, a := range line.Result.Applied {
			durationDelta += a.Duration
			priceDelta = priceDelta.Add(a.Price)
			b.AppliedModifiers = append(b.AppliedModifiers, model.AppliedModifier{
				ServiceModifierID: a.ModifierID,
				ServiceID:         line.Service.ID,
				Position:          pos,
				AppliedDuration:   a.Duration,
				AppliedPrice:      a.Price,
			})
		}
		b.Services = append(b.Services, model.BookingService{
			ServiceID:       line.Service.ID,
			ServiceName:     line.Service.Name,
			AppliedDuration: line.Result.EffectiveDuration - durationDelta,
			AppliedPrice:    line.Result.EffectivePrice.Sub(priceDelta),
		})
	}
	return b
}

// Quote evaluates services for a customer without writing anything.
func (e *Engine) Quote(ctx context.Context, shopID string, selections []ServiceSelection, mctx modifier.Context) (Quote, error) {
	if _, err := e.requireShop(ctx, shopID); err != nil {
		return Quote{}, err
	}
	return e.quote(ctx, shopID, selections, mctx)
}

func (e *Engine) quote(ctx context.Context, shopID string, selections []ServiceSelection, mctx modifier.Context) (Quote, error) {
	if len(selections) == 0 {
		return Quote{}, fmt.Errorf("%w: no service selected", ErrUnknownService)
	}
	q := Quote{Price: decimal.Zero}
	for _, sel := range selections {
		id := strings.TrimSpace(sel.ServiceID)
		svc, err := e.store.Service(ctx, id)
		if err != nil {
			return Quote{}, fmt.Errorf("load service: %w", err)
		}
		if svc == nil || !svc.IsActive || svc.ShopID != shopID {
			return Quote{}, fmt.Errorf("%w: %s", ErrUnknownService, id)
		}
		rows, err := e.store.Modifiers(ctx, svc.ID)
		if err != nil {
			return Quote{}, fmt.Errorf("load modifiers: %w", err)
		}
		mods := modifier.Load(rows)
		for _, m := range mods {
			if m.DecodeErr != nil && m.IsActive {
				e.logger.Warn("modifier condition ignored", "modifier_id", m.ID, "service_id", svc.ID, "err", m.DecodeErr)
			}
		}

		res := modifier.Evaluate(svc.DurationMinutes, svc.Price, mods, mctx, sel.ManualModifierIDs...)
		q.Duration += res.EffectiveDuration
		q.Price = q.Price.Add(res.EffectivePrice)
		q.Lines = append(q.Lines, QuoteLine{Service: *svc, Result: res})
	}
	return q, nil
}

// Slots lists start minutes on date where the quoted services fit. step defaults to 15.
// On the shop's current date, starts already past are omitted.
func (e *Engine) Slots(ctx context.Context, shopID string, date time.Time, selections []ServiceSelection, mctx modifier.Context, step int) ([]int, Quote, error) {
	shop, err := e.requireShop(ctx, shopID)
	if err != nil {
		return nil, Quote{}, err
	}
	q, err := e.quote(ctx, shopID, selections, mctx)
	if err != nil {
		return nil, Quote{}, err
	}
	if step <= 0 {
		step = 15
	}

	date = model.DateOf(date)
	notBefore := 0
	today := model.DateOf(e.now().In(shopLocation(shop)))
	switch {
	case date.Before(today):
		return []int{}, q, nil
	case date.Equal(today):
		local := e.now().In(shopLocation(shop))
		notBefore = local.Hour()*60 + local.Minute() + 1
	}

	open, err := e.openIntervals(ctx, shopID, date)
	if err != nil {
		return nil, Quote{}, err
	}
	bookings, err := e.store.Bookings(ctx, shopID, date, date)
	if err != nil {
		return nil, Quote{}, fmt.Errorf("load bookings: %w", err)
	}
	slots := availability.SlotsForDay(open, q.Duration, step, availability.Occupied(bookings, date), notBefore)
	if slots == nil {
		slots = []int{}
	}
	return slots, q, nil
}

func shopLocation(shop *model.Shop) *time.Location {
	if shop.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(shop.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
