package otp

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockedError reports an active OTP-domain lock. Issued and verification
// requests both fail with it until the lock's TTL lapses.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("otp locked, retry after %s", e.RetryAfter.Round(time.Second))
}

// CooldownError reports that re-issuance is throttled.
type CooldownError struct {
	Wait time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otp cooldown, wait %s", e.Wait.Round(time.Second))
}

// CooldownStep maps a request count to the cooldown applied after it. Steps
// are evaluated highest threshold first; the table is the whole escalation
// policy and is trivially unit-testable without a store.
type CooldownStep struct {
	MinRequests int64
	Cooldown    time.Duration
}

// Config holds the OTP lifecycle parameters.
type Config struct {
	Secret        []byte        // HMAC key for code hashing
	Digits        int           // code length
	Validity      time.Duration // record TTL from issuance
	MaxAttempts   int           // verification budget before lockout
	LockDuration  time.Duration
	RequestWindow time.Duration // window the issuance counter lives in
	CooldownSteps []CooldownStep
	// FixedExpiry keeps the record's deadline pinned to issuance time on
	// mismatch rewrites. Default (false) restores the full validity window on
	// every wrong guess, matching the historical behavior.
	FixedExpiry bool
}

// Escalate returns the cooldown for the given request count: the step with the
// highest MinRequests not exceeding count wins. Counts below every step get no
// cooldown.
func Escalate(steps []CooldownStep, count int64) time.Duration {
	var best time.Duration
	var bestMin int64 = -1
	for _, step := range steps {
		if count >= step.MinRequests && step.MinRequests > bestMin {
			best = step.Cooldown
			bestMin = step.MinRequests
		}
	}
	return best
}

// IssueResult is returned by [Manager.Request].
type IssueResult struct {
	Code         string
	Cooldown     time.Duration
	RequestCount int64
}

// Manager drives the issuance/verification state machine per identifier.
type Manager struct {
	redis  redis.UniversalClient
	store  *Store
	config Config
	now    func() time.Time
}

// NewManager creates an OTP manager on the given client.
func NewManager(redisClient redis.UniversalClient, cfg Config) *Manager {
	return &Manager{redis: redisClient, store: NewStore(redisClient), config: cfg, now: time.Now}
}

// setClock overrides the wall clock for deadline arithmetic. Tests advance it
// in step with the store server's clock.
func (m *Manager) setClock(now func() time.Time) {
	m.now = now
	m.store.now = now
}

func (m *Manager) lockKey(identifier string) string {
	return "otp:lock:" + identifier
}

func (m *Manager) cooldownKey(identifier string) string {
	return "otp:cooldown:" + identifier
}

func (m *Manager) countKey(identifier string) string {
	return "otp:cooldown:count:" + identifier
}

// Request issues a fresh code. It fails with [*LockedError] under an active
// lock and [*CooldownError] while the issuance cooldown holds. Otherwise it
// bumps the request counter (window TTL on first bump), stores
// {hash, attempts: 0} for the validity window, applies the escalated cooldown,
// and returns the plaintext code for external delivery.
func (m *Manager) Request(ctx context.Context, identifier string) (*IssueResult, error) {
	if ttl, locked, err := m.keyTTL(ctx, m.lockKey(identifier)); err != nil {
		return nil, err
	} else if locked {
		return nil, &LockedError{RetryAfter: ttl}
	}

	if ttl, active, err := m.keyTTL(ctx, m.cooldownKey(identifier)); err != nil {
		return nil, err
	} else if active {
		return nil, &CooldownError{Wait: ttl}
	}

	count, err := m.redis.Incr(ctx, m.countKey(identifier)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := m.redis.Expire(ctx, m.countKey(identifier), m.config.RequestWindow).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	code, err := randomCode(m.config.Digits)
	if err != nil {
		return nil, err
	}

	record := &Record{
		CodeHash:  m.hash(code),
		Attempts:  0,
		ExpiresAt: m.now().Add(m.config.Validity).Unix(),
	}
	if err := m.store.Save(ctx, identifier, record, m.config.Validity); err != nil {
		return nil, err
	}

	// The cooldown starts only once the record is stored; a save failure never
	// leaves the caller throttled without a code.
	cooldown := Escalate(m.config.CooldownSteps, count)
	if cooldown > 0 {
		if err := m.redis.Set(ctx, m.cooldownKey(identifier), "1", cooldown).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return &IssueResult{Code: code, Cooldown: cooldown, RequestCount: count}, nil
}

// Verify checks a candidate code. Outcomes:
//
//   - active lock: [*LockedError], record untouched
//   - no record: [ErrNotFound]
//   - mismatch with budget left: [*MismatchError], attempt counter bumped
//   - budget exhausted: lock created, all OTP keys deleted, [ErrAttemptsExceeded]
//   - match: record plus cooldown keys deleted, nil
func (m *Manager) Verify(ctx context.Context, identifier, code string) error {
	if ttl, locked, err := m.keyTTL(ctx, m.lockKey(identifier)); err != nil {
		return err
	} else if locked {
		return &LockedError{RetryAfter: ttl}
	}

	err := m.store.Consume(
		ctx,
		identifier,
		m.hash(code),
		m.config.MaxAttempts,
		m.config.Validity,
		m.config.FixedExpiry,
		m.cooldownKey(identifier),
		m.countKey(identifier),
	)
	if errors.Is(err, ErrAttemptsExceeded) {
		if lockErr := m.redis.SetNX(ctx, m.lockKey(identifier), "1", m.config.LockDuration).Err(); lockErr != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, lockErr)
		}
	}
	return err
}

// Attempts exposes the active record's mismatch count for diagnostics.
func (m *Manager) Attempts(ctx context.Context, identifier string) (int, error) {
	return m.store.Attempts(ctx, identifier)
}

// Keys returns every key the manager may hold for the identifier.
func (m *Manager) Keys(identifier string) []string {
	return []string{
		m.store.key(identifier),
		m.lockKey(identifier),
		m.cooldownKey(identifier),
		m.countKey(identifier),
	}
}

func (m *Manager) hash(code string) [32]byte {
	mac := hmac.New(sha256.New, m.config.Secret)
	mac.Write([]byte(code))
	var sum [32]byte
	copy(sum[:], mac.Sum(nil))
	return sum
}

func (m *Manager) keyTTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := m.redis.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl <= 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

// randomCode draws a uniform numeric code of the given length from crypto/rand.
// The first digit is never zero so the code survives naive integer handling.
func randomCode(digits int) (string, error) {
	if digits < 4 {
		digits = 6
	}
	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits-1)), nil)
	span := new(big.Int).Mul(low, big.NewInt(9))

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	return n.Add(n, low).String(), nil
}
