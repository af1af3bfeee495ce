package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indicates the limiter backend is unreachable.
var ErrUnavailable = errors.New("rate limiter backend unavailable")

// LimitedError reports an exhausted budget and the wait before the next
// allowed consumption.
type LimitedError struct {
	RetryAfter time.Duration
	Limit      int
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Millisecond))
}

// Config governs one limiter class.
type Config struct {
	KeyPrefix     string
	Points        int           // budget per window
	Duration      time.Duration // counting window
	BlockDuration time.Duration // penalty once the budget is exceeded
}

// Result is returned by a successful [Limiter.Consume].
type Result struct {
	ConsumedPoints  int64
	RemainingPoints int64
	WindowReset     time.Duration
}

// Status is returned by [Limiter.Status].
type Status struct {
	ConsumedPoints  int64
	RemainingPoints int64
	Blocked         bool
	RetryAfter      time.Duration
}

// Limiter consumes points against per-key fixed windows.
type Limiter struct {
	redis redis.UniversalClient
}

// New creates a limiter on the given client.
func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{redis: redisClient}
}

func (l *Limiter) key(cfg Config, key string) string {
	return cfg.KeyPrefix + ":" + key
}

func (l *Limiter) blockKey(cfg Config, key string) string {
	return cfg.KeyPrefix + ":block:" + key
}

// Consume takes points from the key's budget. While a block marker holds,
// every call fails immediately with [*LimitedError] carrying the marker's
// remaining TTL. Exceeding the budget creates the block marker (SET NX) and
// fails likewise. The window TTL starts when the counter is created.
func (l *Limiter) Consume(ctx context.Context, cfg Config, key string, points int) (*Result, error) {
	if points <= 0 {
		points = 1
	}

	blockTTL, err := l.redis.TTL(ctx, l.blockKey(cfg, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if blockTTL > 0 {
		return nil, &LimitedError{RetryAfter: blockTTL, Limit: cfg.Points}
	}

	count, err := l.redis.IncrBy(ctx, l.key(cfg, key), int64(points)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// count equals this call's points exactly when the counter was fresh.
	if count == int64(points) {
		if err := l.redis.Expire(ctx, l.key(cfg, key), cfg.Duration).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count > int64(cfg.Points) {
		if err := l.redis.SetNX(ctx, l.blockKey(cfg, key), "1", cfg.BlockDuration).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, &LimitedError{RetryAfter: cfg.BlockDuration, Limit: cfg.Points}
	}

	reset, err := l.redis.TTL(ctx, l.key(cfg, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if reset < 0 {
		reset = cfg.Duration
	}

	return &Result{
		ConsumedPoints:  count,
		RemainingPoints: int64(cfg.Points) - count,
		WindowReset:     reset,
	}, nil
}

// Status reads the key's current window without consuming. Absent keys read
// as a full budget.
func (l *Limiter) Status(ctx context.Context, cfg Config, key string) (*Status, error) {
	blockTTL, err := l.redis.TTL(ctx, l.blockKey(cfg, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if blockTTL > 0 {
		return &Status{
			ConsumedPoints:  int64(cfg.Points),
			RemainingPoints: 0,
			Blocked:         true,
			RetryAfter:      blockTTL,
		}, nil
	}

	count, err := l.redis.Get(ctx, l.key(cfg, key)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	remaining := int64(cfg.Points) - count
	if remaining < 0 {
		remaining = 0
	}
	return &Status{ConsumedPoints: count, RemainingPoints: remaining}, nil
}

// Reset drops the counter and any block marker for the key.
func (l *Limiter) Reset(ctx context.Context, cfg Config, key string) error {
	if err := l.redis.Del(ctx, l.key(cfg, key), l.blockKey(cfg, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
