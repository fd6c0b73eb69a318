package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
)

var (
	ErrRateLimited     = errors.New("too many verification requests")
	ErrCodeMismatch    = errors.New("verification code mismatch")
	ErrCodeExpired     = errors.New("verification code expired or not requested")
	ErrTooManyAttempts = errors.New("too many verification attempts")
	ErrNotVerified     = errors.New("recipient not verified")
)

// EventWriter persists a domain event outside a booking transaction.
type EventWriter interface {
	InsertNow(ctx context.Context, evt outbox.Event) error
}

type Config struct {
	CodeTTL     time.Duration
	VerifiedTTL time.Duration
	MaxAttempts int
	KeyPrefix   string
}

// Service issues and checks 6-digit codes. Only a bcrypt hash of a code is stored.
type Service struct {
	rdb     redis.Cmdable
	limiter *Limiter
	events  EventWriter
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
}

func NewService(rdb redis.Cmdable, limiter *Limiter, events EventWriter, logger *slog.Logger, cfg Config) *Service {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	if cfg.VerifiedTTL <= 0 {
		cfg.VerifiedTTL = 30 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "salonbook:verify"
	}
	return &Service{rdb: rdb, limiter: limiter, events: events, logger: logger, cfg: cfg, now: time.Now}
}

func (s *Service) codeKey(shopID, recipient string) string {
	return fmt.Sprintf("%s:code:%s:%s", s.cfg.KeyPrefix, shopID, recipient)
}

func (s *Service) okKey(shopID, recipient string) string {
	return fmt.Sprintf("%s:ok:%s:%s", s.cfg.KeyPrefix, shopID, recipient)
}

func normalize(recipient string) string {
	return strings.ToLower(strings.TrimSpace(recipient))
}

// Request issues a fresh code for recipient, replacing any outstanding one, and
// emits a verification event carrying the plain code for delivery.
func (s *Service) Request(ctx context.Context, shopID, recipient string) (time.Time, error) {
	recipient = normalize(recipient)
	if recipient == "" {
		return time.Time{}, errors.New("recipient is required")
	}
	now := s.now()
	if ok, retry := s.limiter.Allow(shopID+"|"+recipient, now); !ok {
		metrics.IncVerification("rate_limited")
		return time.Time{}, fmt.Errorf("%w: retry in %s", ErrRateLimited, retry.Round(time.Second))
	}

	code, err := newCode()
	if err != nil {
		return time.Time{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return time.Time{}, err
	}

	key := s.codeKey(shopID, recipient)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "hash", string(hash), "attempts", 0)
		pipe.Expire(ctx, key, s.cfg.CodeTTL)
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("store verification code: %w", err)
	}

	expiresAt := now.Add(s.cfg.CodeTTL).UTC()
	evt, err := outbox.VerificationRequested(shopID, recipient, code, expiresAt)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.events.InsertNow(ctx, evt); err != nil {
		s.rdb.Del(ctx, key)
		return time.Time{}, fmt.Errorf("record verification event: %w", err)
	}
	metrics.IncVerification("requested")
	s.logger.Info("verification code issued", "shop_id", shopID, "expires_at", expiresAt)
	return expiresAt, nil
}

// Confirm checks code against the outstanding one. A match marks recipient verified
// for VerifiedTTL; attempts past MaxAttempts burn the code.
func (s *Service) Confirm(ctx context.Context, shopID, recipient, code string) error {
	recipient = normalize(recipient)
	key := s.codeKey(shopID, recipient)
	hash, attempts, err := s.countAttempt(ctx, key)
	if errors.Is(err, redis.Nil) {
		metrics.IncVerification("expired")
		return ErrCodeExpired
	}
	if err != nil {
		return fmt.Errorf("count verification attempt: %w", err)
	}
	if attempts > int64(s.cfg.MaxAttempts) {
		s.rdb.Del(ctx, key)
		metrics.IncVerification("locked")
		return ErrTooManyAttempts
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(code))) != nil {
		metrics.IncVerification("mismatch")
		return ErrCodeMismatch
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.Set(ctx, s.okKey(shopID, recipient), "1", s.cfg.VerifiedTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	metrics.IncVerification("confirmed")
	return nil
}

// attemptScript bumps the attempt counter only while the code still exists, so an expired
// code is never recreated without a TTL.
var attemptScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return false
end
local attempts = redis.call("HINCRBY", KEYS[1], "attempts", 1)
return {redis.call("HGET", KEYS[1], "hash"), attempts}
`)

// countAttempt returns the stored hash and the attempt count including this one, or
// redis.Nil when no code is outstanding.
func (s *Service) countAttempt(ctx context.Context, key string) (string, int64, error) {
	res, err := attemptScript.Run(ctx, s.rdb, []string{key}).Slice()
	if err != nil {
		return "", 0, err
	}
	if len(res) != 2 {
		return "", 0, fmt.Errorf("unexpected attempt reply %v", res)
	}
	hash, _ := res[0].(string)
	attempts, _ := res[1].(int64)
	if hash == "" {
		return "", 0, redis.Nil
	}
	return hash, attempts, nil
}

// Consume spends a recipient's verified mark. It is used once per booking and returns
// the lifetime the mark had left, for Restore.
func (s *Service) Consume(ctx context.Context, shopID, recipient string) (time.Duration, error) {
	key := s.okKey(shopID, normalize(recipient))
	var ttl *redis.DurationCmd
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		ttl = pipe.PTTL(ctx, key)
		del = pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("consume verification: %w", err)
	}
	if del.Val() == 0 {
		return 0, ErrNotVerified
	}
	left := ttl.Val()
	if left <= 0 {
		left = s.cfg.VerifiedTTL
	}
	return left, nil
}

// Restore hands back a mark spent by Consume when the booking it was spent on was not
// stored. The mark keeps the lifetime it had when consumed.
func (s *Service) Restore(ctx context.Context, shopID, recipient string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.SetNX(ctx, s.okKey(shopID, normalize(recipient)), "1", ttl).Err(); err != nil {
		return fmt.Errorf("restore verification: %w", err)
	}
	return nil
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	s := strconv.FormatInt(n.Int64(), 10)
	return strings.Repeat("0", 6-len(s)) + s, nil
}
