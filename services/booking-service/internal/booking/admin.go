package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/schedule"
)

// UpdateStatus moves a booking to status to. Setting the current status again is a no-op.
func (e *Engine) UpdateStatus(ctx context.Context, shopID, bookingID string, to model.Status) (model.Booking, error) {
	if !to.Valid() {
		return model.Booking{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	var from model.Status
	b, err := e.store.UpdateBookingStatus(ctx, shopID, bookingID, func(b *model.Booking) ([]outbox.Event, error) {
		from = b.Status
		if b.Status == to {
			return nil, nil
		}
		if !b.Status.CanTransition(to) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
		}
		b.Status = to
		evt, err := outbox.BookingStatusChanged(*b, from, e.now())
		if err != nil {
			return nil, err
		}
		return []outbox.Event{evt}, nil
	})
	if err != nil {
		if IsRejection(err) {
			e.logger.Info("status change rejected", "shop_id", shopID, "booking_id", bookingID, "err", err)
		} else {
			e.logger.Error("status change failed", "shop_id", shopID, "booking_id", bookingID, "err", err)
		}
		return model.Booking{}, err
	}
	if from != to {
		metrics.IncStatusChanged(string(to))
		e.invalidate(ctx, shopID)
		e.logger.Info("booking status changed", "shop_id", shopID, "booking_id", bookingID, "from", from, "to", to)
	}
	return b, nil
}

// ReplaceWeeklySchedule swaps the shop's whole week for blocks.
func (e *Engine) ReplaceWeeklySchedule(ctx context.Context, shopID string, blocks []model.WeeklyBlock) error {
	if _, err := e.requireShop(ctx, shopID); err != nil {
		return err
	}
	if err := schedule.ValidateWeek(blocks); err != nil {
		return err
	}
	stamped := make([]model.WeeklyBlock, len(blocks))
	for i, blk := range blocks {
		blk.ShopID = shopID
		stamped[i] = blk
	}
	if err := e.store.ReplaceWeeklySchedule(ctx, shopID, stamped); err != nil {
		e.logger.Error("replace weekly schedule failed", "shop_id", shopID, "err", err)
		return err
	}
	e.invalidate(ctx, shopID)
	e.logger.Info("weekly schedule replaced", "shop_id", shopID, "blocks", len(blocks))
	return nil
}

// SetException creates or replaces the exception for exc.Date.
func (e *Engine) SetException(ctx context.Context, exc model.ScheduleException) error {
	if _, err := e.requireShop(ctx, exc.ShopID); err != nil {
		return err
	}
	if err := schedule.ValidateException(exc); err != nil {
		return err
	}
	if exc.ID == "" {
		exc.ID = uuid.NewString()
	}
	exc.Date = model.DateOf(exc.Date)
	exc.Reason = strings.TrimSpace(exc.Reason)
	if exc.IsClosed {
		exc.OpenMinute, exc.CloseMinute = nil, nil
	}
	if err := e.store.UpsertException(ctx, exc); err != nil {
		e.logger.Error("set schedule exception failed", "shop_id", exc.ShopID, "err", err)
		return err
	}
	e.invalidate(ctx, exc.ShopID)
	return nil
}

func (e *Engine) DeleteException(ctx context.Context, shopID string, date time.Time) error {
	if _, err := e.requireShop(ctx, shopID); err != nil {
		return err
	}
	found, err := e.store.DeleteException(ctx, shopID, model.DateOf(date))
	if err != nil {
		e.logger.Error("delete schedule exception failed", "shop_id", shopID, "err", err)
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrExceptionNotFound, model.DateKey(date))
	}
	e.invalidate(ctx, shopID)
	return nil
}

// ValidateLink returns the link for token if it can still be used to book.
func (e *Engine) ValidateLink(ctx context.Context, token string) (*model.BookingLink, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrLinkInvalid
	}
	link, err := e.store.BookingLink(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load booking link: %w", err)
	}
	if link == nil || !link.Valid(e.now()) {
		return nil, ErrLinkInvalid
	}
	return link, nil
}
