package authgate

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/authgate/internal/otp"
)

// RequestOTP issues a fresh one-time code for the identifier. The returned
// plaintext code is handed to the caller for delivery and is never stored or
// logged; only its HMAC lives in the store.
//
// Failure modes: [*LockedError] under an active OTP lock, [*CooldownError]
// while issuance is throttled, [ErrStoreUnavailable].
func (e *Engine) RequestOTP(ctx context.Context, identifier string) (*OTPIssue, error) {
	res, err := e.otp.Request(ctx, identifier)
	if err != nil {
		var locked *otp.LockedError
		if errors.As(err, &locked) {
			return nil, &LockedError{RetryAfter: locked.RetryAfter}
		}
		var cooldown *otp.CooldownError
		if errors.As(err, &cooldown) {
			return nil, &CooldownError{Wait: cooldown.Wait}
		}
		return nil, e.storeErr(err)
	}

	e.metrics.inc(MetricOTPIssued)
	e.log.WithFields(logrus.Fields{
		"identifier":    identifier,
		"request_count": res.RequestCount,
		"cooldown":      res.Cooldown,
	}).Info("otp issued")

	return &OTPIssue{
		Code:         res.Code,
		Cooldown:     res.Cooldown,
		RequestCount: res.RequestCount,
	}, nil
}

// VerifyOTP checks a candidate code against the identifier's active record.
//
// Outcomes:
//   - match: all OTP state for the identifier is consumed, nil
//   - mismatch with budget left: [*InvalidCodeError] with the attempts remaining
//   - budget exhausted: OTP lock created, suspicious event recorded,
//     [*LockedError]
//   - no active record: [ErrOTPExpired]
//   - active lock: [*LockedError]
func (e *Engine) VerifyOTP(ctx context.Context, identifier, code string) error {
	err := e.otp.Verify(ctx, identifier, code)
	if err == nil {
		e.metrics.inc(MetricOTPVerified)
		e.log.WithField("identifier", identifier).Info("otp verified")
		return nil
	}

	var locked *otp.LockedError
	if errors.As(err, &locked) {
		return &LockedError{RetryAfter: locked.RetryAfter}
	}

	if errors.Is(err, otp.ErrNotFound) {
		return ErrOTPExpired
	}

	var mismatch *otp.MismatchError
	if errors.As(err, &mismatch) {
		e.metrics.inc(MetricOTPMismatches)
		e.log.WithFields(logrus.Fields{
			"identifier":    identifier,
			"attempts_left": mismatch.AttemptsLeft,
		}).Warn("otp mismatch")
		return &InvalidCodeError{AttemptsLeft: mismatch.AttemptsLeft}
	}

	if errors.Is(err, otp.ErrAttemptsExceeded) {
		e.metrics.inc(MetricOTPLockouts)
		e.emit(ctx, EventMultipleFailedOTPs, identifier, "otp", int64(e.config.OTP.MaxAttempts))
		e.log.WithField("identifier", identifier).Error("otp attempts exhausted, lock created")

		if _, nerr := e.notifySuspicious(ctx, identifier, EventMultipleFailedOTPs); nerr != nil {
			return nerr
		}
		return &LockedError{RetryAfter: e.config.OTP.LockDuration}
	}

	return e.storeErr(err)
}

// OTPAttempts exposes the active record's mismatch count for diagnostics.
// Absent records read as zero.
func (e *Engine) OTPAttempts(ctx context.Context, identifier string) (int, error) {
	attempts, err := e.otp.Attempts(ctx, identifier)
	if err != nil {
		return 0, e.storeErr(err)
	}
	return attempts, nil
}
