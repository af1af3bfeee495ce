package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indicates the lockout backend is unreachable.
var ErrUnavailable = errors.New("lockout backend unavailable")

// Config holds attempt-tracking parameters for one security domain.
type Config struct {
	MaxAttempts  int           // failures before a lock is created
	Window       time.Duration // rolling window the failure counter lives in
	LockDuration time.Duration // how long a lock blocks the identifier
}

// Result is returned by [Tracker.RecordFailure].
type Result struct {
	Attempts     int
	AttemptsLeft int

	// AlreadyLocked is set when a lock predates this call; no increment happened.
	AlreadyLocked bool
	// LockedNow is set when this call crossed the threshold and created the lock.
	LockedNow bool
	// RetryAfter is the remaining lock duration when either flag is set.
	RetryAfter time.Duration
}

// Status is returned by [Tracker.Status].
type Status struct {
	Locked    bool
	Remaining time.Duration
	Attempts  int
}

// Tracker counts failures for one (domain, identifier) namespace.
type Tracker struct {
	redis  redis.UniversalClient
	domain string
	config Config
}

// New creates a tracker for the given security domain ("login", "reset", ...).
func New(redisClient redis.UniversalClient, domain string, cfg Config) *Tracker {
	return &Tracker{redis: redisClient, domain: domain, config: cfg}
}

func (t *Tracker) key(identifier string) string {
	return "security:" + t.domain + ":" + identifier
}

func (t *Tracker) lockKey(identifier string) string {
	return "security:" + t.domain + ":lock:" + identifier
}

// RecordFailure registers one failed attempt. If a lock already exists the
// counter is untouched and AlreadyLocked is reported. If the post-increment
// count reaches the maximum, a lock is created (SET NX, so a concurrent racer
// doing the same is harmless), the counter is deleted, and LockedNow is
// reported. Otherwise the result carries the attempts remaining.
func (t *Tracker) RecordFailure(ctx context.Context, identifier string) (Result, error) {
	remaining, locked, err := t.lockTTL(ctx, identifier)
	if err != nil {
		return Result{}, err
	}
	if locked {
		return Result{AlreadyLocked: true, RetryAfter: remaining}, nil
	}

	count, err := t.redis.Incr(ctx, t.key(identifier)).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// TTL only on the first increment: the window starts at counter creation.
	if count == 1 {
		if err := t.redis.Expire(ctx, t.key(identifier), t.config.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count >= int64(t.config.MaxAttempts) {
		// Both racers past the threshold re-check the post-increment value, so
		// lock creation must be idempotent.
		if err := t.redis.SetNX(ctx, t.lockKey(identifier), "1", t.config.LockDuration).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if err := t.redis.Del(ctx, t.key(identifier)).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Result{
			Attempts:   int(count),
			LockedNow:  true,
			RetryAfter: t.config.LockDuration,
		}, nil
	}

	return Result{
		Attempts:     int(count),
		AttemptsLeft: t.config.MaxAttempts - int(count),
	}, nil
}

// Clear deletes the failure counter. It never touches an existing lock: once
// triggered, a lockout runs its full duration.
func (t *Tracker) Clear(ctx context.Context, identifier string) error {
	if err := t.redis.Del(ctx, t.key(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Status reports whether the identifier is locked and the current attempt count.
// Absent keys read as unlocked/zero.
func (t *Tracker) Status(ctx context.Context, identifier string) (Status, error) {
	remaining, locked, err := t.lockTTL(ctx, identifier)
	if err != nil {
		return Status{}, err
	}

	attempts, err := t.redis.Get(ctx, t.key(identifier)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Status{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return Status{Locked: locked, Remaining: remaining, Attempts: int(attempts)}, nil
}

// Keys returns every key the tracker may hold for the identifier, for
// administrative bulk clearing.
func (t *Tracker) Keys(identifier string) []string {
	return []string{t.key(identifier), t.lockKey(identifier)}
}

func (t *Tracker) lockTTL(ctx context.Context, identifier string) (time.Duration, bool, error) {
	ttl, err := t.redis.TTL(ctx, t.lockKey(identifier)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// TTL returns negative durations for missing keys.
	if ttl <= 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}
