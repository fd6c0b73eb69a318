package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// ReplaceWeeklySchedule deletes every block of the shop and inserts blocks in one transaction.
func (r *BookingRepository) ReplaceWeeklySchedule(ctx context.Context, shopID string, blocks []model.WeeklyBlock) error {
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM weekly_schedule_blocks WHERE shop_id = $1`, shopID); err != nil {
			return err
		}
		if len(blocks) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, b := range blocks {
			batch.Queue(`
				INSERT INTO weekly_schedule_blocks (shop_id, day_of_week, open_minute, close_minute, is_working_day, block_order)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, shopID, b.DayOfWeek, b.OpenMinute, b.CloseMinute, b.IsWorkingDay, b.BlockOrder)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (r *BookingRepository) UpsertException(ctx context.Context, exc model.ScheduleException) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO schedule_exceptions (id, shop_id, exception_date, is_closed, open_minute, close_minute, reason)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		ON CONFLICT (shop_id, exception_date) DO UPDATE
		SET is_closed = EXCLUDED.is_closed,
			open_minute = EXCLUDED.open_minute,
			close_minute = EXCLUDED.close_minute,
			reason = EXCLUDED.reason,
			updated_at = now()
	`, exc.ID, exc.ShopID, model.DateKey(exc.Date), exc.IsClosed, exc.OpenMinute, exc.CloseMinute, exc.Reason)
	return err
}

func (r *BookingRepository) DeleteException(ctx context.Context, shopID string, date time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM schedule_exceptions
		WHERE shop_id = $1 AND exception_date = $2
	`, shopID, model.DateKey(date))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
