package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestManager(t *testing.T, cfg Config) (*Manager, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewManager(client, cfg), mr
}

func testOTPConfig() Config {
	return Config{
		Secret:        []byte("test-secret"),
		Digits:        6,
		Validity:      10 * time.Minute,
		MaxAttempts:   3,
		LockDuration:  time.Hour,
		RequestWindow: 6 * time.Hour,
		CooldownSteps: []CooldownStep{
			{MinRequests: 1, Cooldown: time.Minute},
			{MinRequests: 3, Cooldown: 30 * time.Minute},
		},
	}
}

func TestEscalate(t *testing.T) {
	steps := testOTPConfig().CooldownSteps

	cases := []struct {
		count int64
		want  time.Duration
	}{
		{0, 0},
		{1, time.Minute},
		{2, time.Minute},
		{3, 30 * time.Minute},
		{10, 30 * time.Minute},
	}
	for _, tc := range cases {
		if got := Escalate(steps, tc.count); got != tc.want {
			t.Errorf("Escalate(%d) = %v, want %v", tc.count, got, tc.want)
		}
	}

	if got := Escalate(nil, 5); got != 0 {
		t.Errorf("Escalate with no steps = %v, want 0", got)
	}
}

func TestRequestAndVerify(t *testing.T) {
	m, mr := newTestManager(t, testOTPConfig())
	ctx := context.Background()

	issue, err := m.Request(ctx, "alice")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if len(issue.Code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", issue.Code)
	}
	if issue.Code[0] == '0' {
		t.Fatalf("leading zero in code %q", issue.Code)
	}
	if issue.Cooldown != time.Minute {
		t.Fatalf("expected 1m cooldown, got %v", issue.Cooldown)
	}
	if issue.RequestCount != 1 {
		t.Fatalf("expected request count 1, got %d", issue.RequestCount)
	}

	// Issuance leaves both the record and the cooldown marker behind.
	for _, key := range []string{"otp:data:alice", "otp:cooldown:alice"} {
		if !mr.Exists(key) {
			t.Errorf("key %s missing after issuance", key)
		}
	}

	if err := m.Verify(ctx, "alice", issue.Code); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	// Success consumes the record and both cooldown keys.
	for _, key := range []string{"otp:data:alice", "otp:cooldown:alice", "otp:cooldown:count:alice"} {
		if mr.Exists(key) {
			t.Errorf("key %s should be gone after successful verification", key)
		}
	}

	if err := m.Verify(ctx, "alice", issue.Code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("replayed code: expected ErrNotFound, got %v", err)
	}
}

func TestCooldownBlocksReissue(t *testing.T) {
	m, mr := newTestManager(t, testOTPConfig())
	ctx := context.Background()

	if _, err := m.Request(ctx, "alice"); err != nil {
		t.Fatalf("first request: %v", err)
	}

	_, err := m.Request(ctx, "alice")
	var cooldown *CooldownError
	if !errors.As(err, &cooldown) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	if cooldown.Wait <= 0 || cooldown.Wait > time.Minute {
		t.Fatalf("unexpected cooldown wait %v", cooldown.Wait)
	}

	mr.FastForward(time.Minute + time.Second)

	issue, err := m.Request(ctx, "alice")
	if err != nil {
		t.Fatalf("post-cooldown request: %v", err)
	}
	if issue.RequestCount != 2 {
		t.Fatalf("expected request count 2, got %d", issue.RequestCount)
	}
}

func TestCooldownEscalatesAtThirdRequest(t *testing.T) {
	m, mr := newTestManager(t, testOTPConfig())
	ctx := context.Background()

	m.Request(ctx, "alice")
	mr.FastForward(time.Minute + time.Second)
	m.Request(ctx, "alice")
	mr.FastForward(time.Minute + time.Second)

	issue, err := m.Request(ctx, "alice")
	if err != nil {
		t.Fatalf("third request: %v", err)
	}
	if issue.Cooldown != 30*time.Minute {
		t.Fatalf("expected escalated 30m cooldown, got %v", issue.Cooldown)
	}
}

func TestMismatchBudgetAndLock(t *testing.T) {
	m, mr := newTestManager(t, testOTPConfig())
	ctx := context.Background()

	if _, err := m.Request(ctx, "alice"); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	for want := 2; want >= 1; want-- {
		err := m.Verify(ctx, "alice", "000000")
		var mismatch *MismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected MismatchError, got %v", err)
		}
		if mismatch.AttemptsLeft != want {
			t.Fatalf("expected %d attempts left, got %d", want, mismatch.AttemptsLeft)
		}
	}

	if err := m.Verify(ctx, "alice", "000000"); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected ErrAttemptsExceeded, got %v", err)
	}
	if !mr.Exists("otp:lock:alice") {
		t.Fatal("lock key missing after exhaustion")
	}
	if mr.Exists("otp:data:alice") {
		t.Fatal("record should be deleted after exhaustion")
	}

	var locked *LockedError
	if err := m.Verify(ctx, "alice", "000000"); !errors.As(err, &locked) {
		t.Fatalf("expected LockedError under lock, got %v", err)
	}
	if _, err := m.Request(ctx, "alice"); !errors.As(err, &locked) {
		t.Fatalf("expected LockedError for request under lock, got %v", err)
	}
}

func TestMismatchRestartsValidity(t *testing.T) {
	m, mr := newTestManager(t, testOTPConfig())
	ctx := context.Background()

	m.Request(ctx, "alice")
	mr.FastForward(5 * time.Minute)

	if err := m.Verify(ctx, "alice", "000000"); err == nil {
		t.Fatal("expected mismatch")
	}

	if ttl := mr.TTL("otp:data:alice"); ttl <= 9*time.Minute {
		t.Fatalf("mismatch rewrite should restore the full window, TTL %v", ttl)
	}
}

func TestFixedExpiryKeepsDeadline(t *testing.T) {
	cfg := testOTPConfig()
	cfg.FixedExpiry = true
	m, mr := newTestManager(t, cfg)
	ctx := context.Background()

	m.Request(ctx, "alice")

	// Advance the manager's clock in step with the store server's.
	base := time.Now()
	m.setClock(func() time.Time { return base.Add(5 * time.Minute) })
	mr.FastForward(5 * time.Minute)

	if err := m.Verify(ctx, "alice", "000000"); err == nil {
		t.Fatal("expected mismatch")
	}

	if ttl := mr.TTL("otp:data:alice"); ttl > 5*time.Minute+time.Second {
		t.Fatalf("fixed-expiry rewrite must not extend the deadline, TTL %v", ttl)
	}
}

func TestFixedExpiryPassedDeadlineDropsRecord(t *testing.T) {
	cfg := testOTPConfig()
	cfg.FixedExpiry = true
	m, mr := newTestManager(t, cfg)
	ctx := context.Background()

	m.Request(ctx, "alice")

	// Past the deadline on the manager's clock, before the store expires the
	// key on its own.
	base := time.Now()
	m.setClock(func() time.Time { return base.Add(11 * time.Minute) })

	if err := m.Verify(ctx, "alice", "000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound past the deadline, got %v", err)
	}
	if mr.Exists("otp:data:alice") {
		t.Fatal("stale record should be deleted")
	}
}

func TestExpiredRecord(t *testing.T) {
	m, mr := newTestManager(t, testOTPConfig())
	ctx := context.Background()

	issue, err := m.Request(ctx, "alice")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	mr.FastForward(11 * time.Minute)

	if err := m.Verify(ctx, "alice", issue.Code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestAttemptsRead(t *testing.T) {
	m, _ := newTestManager(t, testOTPConfig())
	ctx := context.Background()

	if n, err := m.Attempts(ctx, "alice"); err != nil || n != 0 {
		t.Fatalf("absent record: got %d, %v", n, err)
	}

	m.Request(ctx, "alice")
	m.Verify(ctx, "alice", "000000")

	if n, err := m.Attempts(ctx, "alice"); err != nil || n != 1 {
		t.Fatalf("after one mismatch: got %d, %v", n, err)
	}
}
