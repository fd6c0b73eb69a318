package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
)

// BookingRepository is the Postgres booking.Store. Booking writes for a shop are
// serialised with a transaction-scoped advisory lock on the shop id; the bookings
// exclusion constraint rejects any overlap that slips past it.
type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var _ booking.Store = (*BookingRepository)(nil)

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// q returns the transaction carried by ctx, or the pool.
func (r *BookingRepository) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (r *BookingRepository) Shop(ctx context.Context, shopID string) (*model.Shop, error) {
	var s model.Shop
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id::text, name, timezone, is_active
		FROM shops
		WHERE id = $1
	`, shopID).Scan(&s.ID, &s.Name, &s.Timezone, &s.IsActive)
	if err != nil {
		if IsNotFound(err) || isInvalidText(err) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *BookingRepository) WeeklySchedule(ctx context.Context, shopID string) ([]model.WeeklyBlock, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT shop_id::text, day_of_week, open_minute, close_minute, is_working_day, block_order
		FROM weekly_schedule_blocks
		WHERE shop_id = $1
		ORDER BY day_of_week, block_order, open_minute
	`, shopID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.WeeklyBlock, error) {
		var b model.WeeklyBlock
		err := row.Scan(&b.ShopID, &b.DayOfWeek, &b.OpenMinute, &b.CloseMinute, &b.IsWorkingDay, &b.BlockOrder)
		return b, err
	})
}

const exceptionColumns = `id::text, shop_id::text, exception_date, is_closed, open_minute, close_minute, COALESCE(reason, '')`

func scanException(row pgx.Row) (model.ScheduleException, error) {
	var e model.ScheduleException
	err := row.Scan(&e.ID, &e.ShopID, &e.Date, &e.IsClosed, &e.OpenMinute, &e.CloseMinute, &e.Reason)
	e.Date = model.DateOf(e.Date)
	return e, err
}

func (r *BookingRepository) Exception(ctx context.Context, shopID string, date time.Time) (*model.ScheduleException, error) {
	e, err := scanException(r.q(ctx).QueryRow(ctx, `
		SELECT `+exceptionColumns+`
		FROM schedule_exceptions
		WHERE shop_id = $1 AND exception_date = $2
	`, shopID, model.DateKey(date)))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *BookingRepository) Exceptions(ctx context.Context, shopID string, from, to time.Time) ([]model.ScheduleException, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+exceptionColumns+`
		FROM schedule_exceptions
		WHERE shop_id = $1 AND exception_date BETWEEN $2 AND $3
		ORDER BY exception_date
	`, shopID, model.DateKey(from), model.DateKey(to))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ScheduleException, error) {
		return scanException(row)
	})
}

func (r *BookingRepository) Service(ctx context.Context, serviceID string) (*model.Service, error) {
	var s model.Service
	var price string
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id::text, shop_id::text, name, duration_minutes, price::text, is_active
		FROM services
		WHERE id = $1
	`, serviceID).Scan(&s.ID, &s.ShopID, &s.Name, &s.DurationMinutes, &price, &s.IsActive)
	if err != nil {
		if IsNotFound(err) || isInvalidText(err) {
			return nil, nil
		}
		return nil, err
	}
	if s.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("service %s price: %w", s.ID, err)
	}
	return &s, nil
}

func (r *BookingRepository) Modifiers(ctx context.Context, serviceID string) ([]model.ServiceModifier, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id::text, service_id::text, name, condition_type, COALESCE(condition_value::text, ''),
			duration_modifier, price_modifier::text, auto_apply, is_active
		FROM service_modifiers
		WHERE service_id = $1
		ORDER BY id
	`, serviceID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ServiceModifier, error) {
		var m model.ServiceModifier
		var condType, condValue, price string
		if err := row.Scan(&m.ID, &m.ServiceID, &m.Name, &condType, &condValue, &m.DurationModifier, &price, &m.AutoApply, &m.IsActive); err != nil {
			return m, err
		}
		m.ConditionType = model.ConditionType(condType)
		if condValue != "" {
			m.ConditionValue = json.RawMessage(condValue)
		}
		var err error
		m.PriceModifier, err = decimal.NewFromString(price)
		return m, err
	})
}

func (r *BookingRepository) BookingLink(ctx context.Context, token string) (*model.BookingLink, error) {
	return r.selectLink(ctx, r.q(ctx), token, false)
}

func (r *BookingRepository) selectLink(ctx context.Context, q querier, token string, forUpdate bool) (*model.BookingLink, error) {
	sql := `
		SELECT id::text, shop_id::text, token, is_active, expires_at, max_uses, current_uses, created_at
		FROM booking_links
		WHERE token = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var l model.BookingLink
	err := q.QueryRow(ctx, sql, token).Scan(&l.ID, &l.ShopID, &l.Token, &l.IsActive, &l.ExpiresAt, &l.MaxUses, &l.CurrentUses, &l.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
