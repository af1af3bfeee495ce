package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client), mr
}

func testLimitConfig() Config {
	return Config{
		KeyPrefix:     "rl_test",
		Points:        3,
		Duration:      time.Minute,
		BlockDuration: 2 * time.Minute,
	}
}

func TestConsumeWithinBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	cfg := testLimitConfig()

	for i := int64(1); i <= 3; i++ {
		res, err := limiter.Consume(ctx, cfg, "1.2.3.4", 1)
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if res.ConsumedPoints != i || res.RemainingPoints != 3-i {
			t.Fatalf("consume %d: got %+v", i, res)
		}
		if res.WindowReset <= 0 || res.WindowReset > time.Minute {
			t.Fatalf("consume %d: unexpected window reset %v", i, res)
		}
	}
}

func TestExceedingBudgetBlocks(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()
	cfg := testLimitConfig()

	for i := 0; i < 3; i++ {
		limiter.Consume(ctx, cfg, "1.2.3.4", 1)
	}

	_, err := limiter.Consume(ctx, cfg, "1.2.3.4", 1)
	var limited *LimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected LimitedError, got %v", err)
	}
	if limited.RetryAfter != 2*time.Minute || limited.Limit != 3 {
		t.Fatalf("unexpected limited detail %+v", limited)
	}
	if !mr.Exists("rl_test:block:1.2.3.4") {
		t.Fatal("block marker missing")
	}

	// While blocked, retry-after shrinks with the marker's TTL.
	mr.FastForward(30 * time.Second)
	_, err = limiter.Consume(ctx, cfg, "1.2.3.4", 1)
	if !errors.As(err, &limited) {
		t.Fatalf("expected LimitedError under block, got %v", err)
	}
	if limited.RetryAfter > 2*time.Minute-30*time.Second+time.Second {
		t.Fatalf("retry-after should track block TTL, got %v", limited.RetryAfter)
	}
}

func TestBlockExpiryRestoresBudget(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()
	cfg := testLimitConfig()

	for i := 0; i < 4; i++ {
		limiter.Consume(ctx, cfg, "1.2.3.4", 1)
	}

	mr.FastForward(2*time.Minute + time.Second)

	res, err := limiter.Consume(ctx, cfg, "1.2.3.4", 1)
	if err != nil {
		t.Fatalf("post-block consume: %v", err)
	}
	if res.ConsumedPoints != 1 {
		t.Fatalf("expected fresh window, got %+v", res)
	}
}

func TestMultiPointConsume(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	cfg := testLimitConfig()

	res, err := limiter.Consume(ctx, cfg, "k", 2)
	if err != nil {
		t.Fatalf("consume 2: %v", err)
	}
	if res.RemainingPoints != 1 {
		t.Fatalf("expected 1 remaining, got %+v", res)
	}

	if _, err := limiter.Consume(ctx, cfg, "k", 2); err == nil {
		t.Fatal("expected budget exceeded")
	}
}

func TestStatusDoesNotConsume(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	cfg := testLimitConfig()

	status, err := limiter.Status(ctx, cfg, "k")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.ConsumedPoints != 0 || status.RemainingPoints != 3 || status.Blocked {
		t.Fatalf("expected full budget, got %+v", status)
	}

	limiter.Consume(ctx, cfg, "k", 1)

	status, err = limiter.Status(ctx, cfg, "k")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.ConsumedPoints != 1 || status.RemainingPoints != 2 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestStatusWhileBlocked(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	cfg := testLimitConfig()

	for i := 0; i < 4; i++ {
		limiter.Consume(ctx, cfg, "k", 1)
	}

	status, err := limiter.Status(ctx, cfg, "k")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Blocked || status.RetryAfter <= 0 || status.RemainingPoints != 0 {
		t.Fatalf("expected blocked status, got %+v", status)
	}
}

func TestResetClearsCounterAndBlock(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	cfg := testLimitConfig()

	for i := 0; i < 4; i++ {
		limiter.Consume(ctx, cfg, "k", 1)
	}

	if err := limiter.Reset(ctx, cfg, "k"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	res, err := limiter.Consume(ctx, cfg, "k", 1)
	if err != nil {
		t.Fatalf("post-reset consume: %v", err)
	}
	if res.ConsumedPoints != 1 {
		t.Fatalf("expected fresh window after reset, got %+v", res)
	}
}
