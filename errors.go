package authgate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLocked indicates the identifier is under an active lockout. Match with
	// errors.Is; retry-after metadata is available via errors.As with [*LockedError].
	ErrLocked = errors.New("identifier locked")
	// ErrCooldownActive indicates OTP re-issuance is throttled for the identifier.
	ErrCooldownActive = errors.New("otp cooldown active")
	// ErrInvalidCode indicates an OTP mismatch with attempts remaining.
	ErrInvalidCode = errors.New("invalid otp code")
	// ErrOTPExpired indicates no active OTP record exists for the identifier.
	ErrOTPExpired = errors.New("otp expired")
	// ErrRateLimited indicates the point budget for the key is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrFlagged indicates the suspicious-activity flag is set; terminal until
	// the flag's TTL lapses or an administrative clear.
	ErrFlagged = errors.New("identifier flagged for suspicious activity")
	// ErrStoreUnavailable is the only infrastructure failure class: the shared
	// store is unreachable. Security gates should fail closed on it.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// LockedError carries the remaining lockout duration. It unwraps to [ErrLocked].
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("identifier locked, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// CooldownError carries the remaining issuance cooldown. It unwraps to
// [ErrCooldownActive].
type CooldownError struct {
	Wait time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otp cooldown active, wait %s", e.Wait.Round(time.Second))
}

func (e *CooldownError) Unwrap() error { return ErrCooldownActive }

// InvalidCodeError carries the number of verification attempts remaining.
// It unwraps to [ErrInvalidCode].
type InvalidCodeError struct {
	AttemptsLeft int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid otp code, %d attempts left", e.AttemptsLeft)
}

func (e *InvalidCodeError) Unwrap() error { return ErrInvalidCode }

// RateLimitError carries the wait until the next allowed consumption and the
// configured budget. It unwraps to [ErrRateLimited].
type RateLimitError struct {
	RetryAfter time.Duration
	Limit      int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
