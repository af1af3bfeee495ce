package authgate

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/authgate/internal/lockout"
)

// RecordLoginFailure registers one failed login for the identifier.
//
// Outcomes:
//   - lock already active: [*LockedError], the counter is untouched
//   - this failure crossed the threshold: lock created, suspicious event
//     recorded, [*LockedError]
//   - otherwise: nil with the attempts remaining
func (e *Engine) RecordLoginFailure(ctx context.Context, identifier string) (*AttemptResult, error) {
	return e.recordFailure(ctx, e.login, identifier, "login", EventMultipleFailedLogins, MetricLoginFailures, MetricLoginLockouts)
}

// ClearLoginFailures drops the failure counter after a successful login. An
// active lock is never shortened.
func (e *Engine) ClearLoginFailures(ctx context.Context, identifier string) error {
	if err := e.login.Clear(ctx, identifier); err != nil {
		return e.storeErr(err)
	}
	return nil
}

// LoginLockStatus reports the login lockout state without mutating anything.
func (e *Engine) LoginLockStatus(ctx context.Context, identifier string) (*LockStatus, error) {
	return e.lockStatus(ctx, e.login, identifier)
}

// RecordResetFailure registers one failed password-reset attempt. Same state
// machine as login failures, with the reset domain's tighter budget.
func (e *Engine) RecordResetFailure(ctx context.Context, identifier string) (*AttemptResult, error) {
	return e.recordFailure(ctx, e.reset, identifier, "reset", EventMultipleFailedResets, MetricResetFailures, MetricResetLockouts)
}

// ClearResetFailures drops the reset failure counter.
func (e *Engine) ClearResetFailures(ctx context.Context, identifier string) error {
	if err := e.reset.Clear(ctx, identifier); err != nil {
		return e.storeErr(err)
	}
	return nil
}

// ResetLockStatus reports the password-reset lockout state.
func (e *Engine) ResetLockStatus(ctx context.Context, identifier string) (*LockStatus, error) {
	return e.lockStatus(ctx, e.reset, identifier)
}

func (e *Engine) recordFailure(
	ctx context.Context,
	tracker *lockout.Tracker,
	identifier, domain, eventType string,
	failureMetric, lockoutMetric MetricID,
) (*AttemptResult, error) {
	res, err := tracker.RecordFailure(ctx, identifier)
	if err != nil {
		return nil, e.storeErr(err)
	}

	if res.AlreadyLocked {
		return nil, &LockedError{RetryAfter: res.RetryAfter}
	}

	if res.LockedNow {
		e.metrics.inc(lockoutMetric)
		e.emit(ctx, eventType, identifier, domain, int64(res.Attempts))
		e.log.WithFields(logrus.Fields{
			"identifier": identifier,
			"domain":     domain,
			"attempts":   res.Attempts,
		}).Error("lockout triggered")

		if _, err := e.notifySuspicious(ctx, identifier, eventType); err != nil {
			return nil, err
		}
		return nil, &LockedError{RetryAfter: res.RetryAfter}
	}

	e.metrics.inc(failureMetric)
	e.log.WithFields(logrus.Fields{
		"identifier":    identifier,
		"domain":        domain,
		"attempts":      res.Attempts,
		"attempts_left": res.AttemptsLeft,
	}).Warn("failed attempt recorded")

	return &AttemptResult{Attempts: res.Attempts, AttemptsLeft: res.AttemptsLeft}, nil
}

func (e *Engine) lockStatus(ctx context.Context, tracker *lockout.Tracker, identifier string) (*LockStatus, error) {
	status, err := tracker.Status(ctx, identifier)
	if err != nil {
		return nil, e.storeErr(err)
	}
	return &LockStatus{
		Locked:    status.Locked,
		Remaining: status.Remaining,
		Attempts:  status.Attempts,
	}, nil
}
