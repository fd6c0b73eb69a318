package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
)

const bookingColumns = `id::text, shop_id::text, booking_date, start_minute, end_minute, status,
	customer_name, customer_email, customer_phone, notes, COALESCE(link_token, ''), total_price::text, created_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var status, total string
	err := row.Scan(&b.ID, &b.ShopID, &b.Date, &b.StartMinute, &b.EndMinute, &status,
		&b.CustomerName, &b.CustomerEmail, &b.CustomerPhone, &b.Notes, &b.LinkToken, &total, &b.CreatedAt)
	if err != nil {
		return b, err
	}
	b.Date = model.DateOf(b.Date)
	b.Status = model.Status(status)
	b.TotalPrice, err = decimal.NewFromString(total)
	return b, err
}

func (r *BookingRepository) Bookings(ctx context.Context, shopID string, from, to time.Time) ([]model.Booking, error) {
	q := r.q(ctx)
	rows, err := q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE shop_id = $1
			AND booking_date BETWEEN $2 AND $3
			AND status <> 'cancelled'
		ORDER BY booking_date, start_minute
	`, shopID, model.DateKey(from), model.DateKey(to))
	if err != nil {
		return nil, err
	}
	bookings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Booking, error) {
		return scanBooking(row)
	})
	if err != nil {
		return nil, err
	}
	if err := r.attachLines(ctx, q, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// attachLines loads the service and modifier snapshots of bookings in two queries.
func (r *BookingRepository) attachLines(ctx context.Context, q querier, bookings []model.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	ids := make([]string, len(bookings))
	index := make(map[string]int, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
		index[b.ID] = i
	}

	rows, err := q.Query(ctx, `
		SELECT booking_id::text, service_id::text, service_name, applied_duration, applied_price::text
		FROM booking_services
		WHERE booking_id = ANY($1::uuid[])
		ORDER BY booking_id, position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var bookingID, price string
		var s model.BookingService
		if err := rows.Scan(&bookingID, &s.ServiceID, &s.ServiceName, &s.AppliedDuration, &price); err != nil {
			return err
		}
		if s.AppliedPrice, err = decimal.NewFromString(price); err != nil {
			return err
		}
		i := index[bookingID]
		bookings[i].Services = append(bookings[i].Services, s)
	}
	if rows.Err() != nil {
		return rows.Err()
	}

	modRows, err := q.Query(ctx, `
		SELECT booking_id::text, position, service_modifier_id::text, service_id::text, applied_duration, applied_price::text
		FROM booking_applied_modifiers
		WHERE booking_id = ANY($1::uuid[])
		ORDER BY booking_id, position, service_modifier_id
	`, ids)
	if err != nil {
		return err
	}
	defer modRows.Close()
	for modRows.Next() {
		var bookingID, price string
		var m model.AppliedModifier
		if err := modRows.Scan(&bookingID, &m.Position, &m.ServiceModifierID, &m.ServiceID, &m.AppliedDuration, &price); err != nil {
			return err
		}
		if m.AppliedPrice, err = decimal.NewFromString(price); err != nil {
			return err
		}
		i := index[bookingID]
		bookings[i].AppliedModifiers = append(bookings[i].AppliedModifiers, m)
	}
	return modRows.Err()
}

func (r *BookingRepository) loadBooking(ctx context.Context, q querier, shopID, bookingID string, forUpdate bool) (model.Booking, error) {
	sql := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 AND shop_id = $2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	b, err := scanBooking(q.QueryRow(ctx, sql, bookingID, shopID))
	if err != nil {
		if IsNotFound(err) || isInvalidText(err) {
			return model.Booking{}, booking.ErrBookingNotFound
		}
		return model.Booking{}, err
	}
	list := []model.Booking{b}
	if err := r.attachLines(ctx, q, list); err != nil {
		return model.Booking{}, err
	}
	return list[0], nil
}

func (r *BookingRepository) PlaceBooking(ctx context.Context, req booking.PlaceRequest, place func(ctx context.Context, existing []model.Booking) (booking.Placement, error)) (model.Booking, bool, error) {
	var out model.Booking
	var replayed bool
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, req.ShopID); err != nil {
			return fmt.Errorf("lock shop: %w", err)
		}
		txCtx := context.WithValue(ctx, txKey{}, tx)

		if req.IdempotencyKey != "" {
			var bookingID string
			err := tx.QueryRow(ctx, `
				SELECT booking_id::text
				FROM booking_idempotency_keys
				WHERE shop_id = $1 AND idempotency_key = $2
			`, req.ShopID, req.IdempotencyKey).Scan(&bookingID)
			if err == nil {
				b, err := r.loadBooking(ctx, tx, req.ShopID, bookingID, false)
				if err != nil {
					return err
				}
				out, replayed = b, true
				return nil
			}
			if !IsNotFound(err) {
				return err
			}
		}

		var link *model.BookingLink
		if req.LinkToken != "" {
			l, err := r.selectLink(ctx, tx, req.LinkToken, true)
			if err != nil {
				return err
			}
			if l == nil || l.ShopID != req.ShopID || !l.Valid(req.Now) {
				return booking.ErrLinkInvalid
			}
			link = l
		}

		existing, err := r.Bookings(txCtx, req.ShopID, req.Date, req.Date)
		if err != nil {
			return err
		}
		p, err := place(txCtx, existing)
		if err != nil {
			return err
		}
		if err := insertBooking(ctx, tx, p.Booking); err != nil {
			if IsConflict(err) {
				return fmt.Errorf("%w: concurrent booking", booking.ErrSlotConflict)
			}
			return err
		}

		if link != nil {
			if _, err := tx.Exec(ctx, `UPDATE booking_links SET current_uses = current_uses + 1 WHERE id = $1`, link.ID); err != nil {
				return err
			}
		}
		if req.IdempotencyKey != "" {
			if _, err := tx.Exec(ctx, `
				INSERT INTO booking_idempotency_keys (shop_id, idempotency_key, booking_id)
				VALUES ($1, $2, $3)
			`, req.ShopID, req.IdempotencyKey, p.Booking.ID); err != nil {
				return err
			}
		}
		if err := r.outbox.InsertAll(ctx, tx, p.Events); err != nil {
			return fmt.Errorf("write outbox: %w", err)
		}
		out = p.Booking
		return nil
	})
	if err != nil {
		return model.Booking{}, false, err
	}
	return out, replayed, nil
}

func insertBooking(ctx context.Context, tx pgx.Tx, b model.Booking) error {
	var linkToken *string
	if b.LinkToken != "" {
		linkToken = &b.LinkToken
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO bookings
			(id, shop_id, booking_date, start_minute, end_minute, status, customer_name, customer_email,
			 customer_phone, notes, link_token, total_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::numeric, $13)
	`, b.ID, b.ShopID, model.DateKey(b.Date), b.StartMinute, b.EndMinute, string(b.Status), b.CustomerName,
		b.CustomerEmail, b.CustomerPhone, b.Notes, linkToken, b.TotalPrice.String(), b.CreatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, s := range b.Services {
		batch.Queue(`
			INSERT INTO booking_services (booking_id, position, service_id, service_name, applied_duration, applied_price)
			VALUES ($1, $2, $3, $4, $5, $6::numeric)
		`, b.ID, i, s.ServiceID, s.ServiceName, s.AppliedDuration, s.AppliedPrice.String())
	}
	for _, m := range b.AppliedModifiers {
		batch.Queue(`
			INSERT INTO booking_applied_modifiers (booking_id, position, service_modifier_id, service_id, applied_duration, applied_price)
			VALUES ($1, $2, $3, $4, $5, $6::numeric)
		`, b.ID, m.Position, m.ServiceModifierID, m.ServiceID, m.AppliedDuration, m.AppliedPrice.String())
	}
	if batch.Len() == 0 {
		return nil
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *BookingRepository) UpdateBookingStatus(ctx context.Context, shopID, bookingID string, change func(b *model.Booking) ([]outbox.Event, error)) (model.Booking, error) {
	var out model.Booking
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		b, err := r.loadBooking(ctx, tx, shopID, bookingID, true)
		if err != nil {
			return err
		}
		before := b.Status
		events, err := change(&b)
		if err != nil {
			return err
		}
		if b.Status != before {
			if _, err := tx.Exec(ctx, `
				UPDATE bookings SET status = $3, updated_at = now()
				WHERE id = $1 AND shop_id = $2
			`, bookingID, shopID, string(b.Status)); err != nil {
				return err
			}
		}
		if err := r.outbox.InsertAll(ctx, tx, events); err != nil {
			return fmt.Errorf("write outbox: %w", err)
		}
		out = b
		return nil
	})
	return out, err
}
