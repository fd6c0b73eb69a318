package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

const DefaultTTL = 2 * time.Minute

// Availability caches computed free intervals in Redis. Entries are keyed under a
// per-shop generation counter; Invalidate bumps the counter so every range cached
// for the shop is orphaned at once and expires on its own TTL.
//
// Redis errors are logged and treated as misses.
type Availability struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

var _ booking.AvailabilityCache = (*Availability)(nil)

func NewAvailability(rdb redis.Cmdable, prefix string, ttl time.Duration, logger *slog.Logger) *Availability {
	if prefix == "" {
		prefix = "salonbook:avail"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Availability{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (a *Availability) genKey(shopID string) string {
	return fmt.Sprintf("%s:%s:gen", a.prefix, shopID)
}

func (a *Availability) entryKey(shopID string, gen int64, from, to time.Time) string {
	return fmt.Sprintf("%s:%s:%d:%s:%s", a.prefix, shopID, gen, model.DateKey(from), model.DateKey(to))
}

func (a *Availability) generation(ctx context.Context, shopID string) (int64, error) {
	gen, err := a.rdb.Get(ctx, a.genKey(shopID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get returns the cached value and the generation it was looked up under. On a miss the
// generation is still returned so the caller can Set the value it computes.
func (a *Availability) Get(ctx context.Context, shopID string, from, to time.Time) (map[string][]interval.Interval, int64, bool) {
	gen, err := a.generation(ctx, shopID)
	if err != nil {
		a.logger.Warn("availability cache generation read failed", "shop_id", shopID, "err", err)
		return nil, -1, false
	}
	raw, err := a.rdb.Get(ctx, a.entryKey(shopID, gen, from, to)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			a.logger.Warn("availability cache read failed", "shop_id", shopID, "err", err)
		}
		return nil, gen, false
	}
	var v map[string][]interval.Interval
	if err := json.Unmarshal(raw, &v); err != nil {
		a.logger.Warn("availability cache entry corrupt", "shop_id", shopID, "err", err)
		return nil, gen, false
	}
	return v, gen, true
}

// Set stores v under gen. A value for an older generation lands on an orphaned key.
func (a *Availability) Set(ctx context.Context, shopID string, gen int64, from, to time.Time, v map[string][]interval.Interval) {
	if gen < 0 {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		a.logger.Error("availability cache encode failed", "shop_id", shopID, "err", err)
		return
	}
	if err := a.rdb.Set(ctx, a.entryKey(shopID, gen, from, to), raw, a.ttl).Err(); err != nil {
		a.logger.Warn("availability cache write failed", "shop_id", shopID, "err", err)
	}
}

func (a *Availability) Invalidate(ctx context.Context, shopID string) {
	if err := a.rdb.Incr(ctx, a.genKey(shopID)).Err(); err != nil {
		a.logger.Error("availability cache invalidate failed", "shop_id", shopID, "err", err)
	}
}
