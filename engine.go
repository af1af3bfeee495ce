package authgate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/authgate/internal/audit"
	"github.com/MrEthical07/authgate/internal/lockout"
	"github.com/MrEthical07/authgate/internal/otp"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/internal/suspicion"
)

// Engine is the authentication abuse-mitigation control plane. All state lives
// in the shared store; the engine itself is stateless apart from counters and
// is safe for concurrent use.
type Engine struct {
	config  Config
	redis   redis.UniversalClient
	log     logrus.FieldLogger
	login   *lockout.Tracker
	reset   *lockout.Tracker
	otp     *otp.Manager
	scorer  *suspicion.Scorer
	limiter *rate.Limiter
	audit   *audit.Dispatcher
	metrics *Metrics
}

// Close drains the audit dispatcher. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.audit.Close()
}

// Metrics exposes the engine's in-process counters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Gate runs the standard pre-checks for a caller-facing flow: consume one
// point from the flow's rate budget, then refuse flagged identifiers. It is
// the recommended first call of every handler:
//
//	if err := eng.Gate(ctx, authgate.FlowLogin, email); err != nil { ... }
//
// Failure modes, in order: [*RateLimitError], [ErrFlagged],
// [ErrStoreUnavailable].
func (e *Engine) Gate(ctx context.Context, flow Flow, identifier string) error {
	cfg, ok := e.gateConfig(flow)
	if ok {
		if _, err := e.consume(ctx, cfg, string(flow)+":"+identifier, 1); err != nil {
			e.metrics.inc(MetricGateDenials)
			return err
		}
	}

	res, err := e.scorer.IsFlagged(ctx, identifier)
	if err != nil {
		return e.storeErr(err)
	}
	if res.Flagged {
		e.metrics.inc(MetricGateDenials)
		e.log.WithFields(logrus.Fields{
			"identifier": identifier,
			"flow":       flow,
			"count":      res.Count,
		}).Warn("flagged identifier refused")
		return ErrFlagged
	}
	return nil
}

func (e *Engine) gateConfig(flow Flow) (RateLimitConfig, bool) {
	var cfg RateLimitConfig
	switch flow {
	case FlowLogin:
		cfg = e.config.Gates.Login
	case FlowOTPRequest:
		cfg = e.config.Gates.OTPRequest
	case FlowOTPVerify:
		cfg = e.config.Gates.OTPVerify
	case FlowPasswordReset:
		cfg = e.config.Gates.PasswordReset
	default:
		return RateLimitConfig{}, false
	}
	return cfg, cfg.Points > 0
}

// SecurityStatus aggregates every security dimension for the identifier with
// read-only store access. The reads are independent; the result is a best
// effort view, not a snapshot.
func (e *Engine) SecurityStatus(ctx context.Context, identifier string) (*SecurityStatus, error) {
	loginStatus, err := e.login.Status(ctx, identifier)
	if err != nil {
		return nil, e.storeErr(err)
	}
	resetStatus, err := e.reset.Status(ctx, identifier)
	if err != nil {
		return nil, e.storeErr(err)
	}
	otpAttempts, err := e.otp.Attempts(ctx, identifier)
	if err != nil {
		return nil, e.storeErr(err)
	}
	susp, err := e.scorer.IsFlagged(ctx, identifier)
	if err != nil {
		return nil, e.storeErr(err)
	}

	status := &SecurityStatus{
		Identifier: identifier,
		Login: LockStatus{
			Locked:    loginStatus.Locked,
			Remaining: loginStatus.Remaining,
			Attempts:  loginStatus.Attempts,
		},
		Reset: LockStatus{
			Locked:    resetStatus.Locked,
			Remaining: resetStatus.Remaining,
			Attempts:  resetStatus.Attempts,
		},
		Suspicion: SuspicionStatus{
			Flagged: susp.Flagged,
			Count:   susp.Count,
		},
		CheckedAt: time.Now().UTC(),
	}
	status.OTP.Attempts = otpAttempts
	return status, nil
}

// ClearSecurityState removes every key the engine holds for the identifier:
// lockouts, locks, OTP state, score, flag, and activity log. Administrative
// use only; it deliberately bypasses the no-early-unlock rule. Idempotent.
func (e *Engine) ClearSecurityState(ctx context.Context, identifier string) error {
	groups := [][]string{
		e.login.Keys(identifier),
		e.reset.Keys(identifier),
		e.otp.Keys(identifier),
		e.scorer.Keys(identifier),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(groups))
	for i, keys := range groups {
		wg.Add(1)
		go func(i int, keys []string) {
			defer wg.Done()
			errs[i] = e.redis.Del(ctx, keys...).Err()
		}(i, keys)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return e.storeErr(err)
	}

	e.log.WithField("identifier", identifier).Info("security state cleared")
	return nil
}

// notifySuspicious records a qualifying event with the scorer and fans out to
// metrics, audit, and the log. The returned result carries the post-increment
// count; the caller's primary outcome already happened by the time this runs.
func (e *Engine) notifySuspicious(ctx context.Context, identifier, eventType string) (suspicion.Result, error) {
	res, err := e.scorer.Record(ctx, identifier, eventType)
	if err != nil {
		return suspicion.Result{}, e.storeErr(err)
	}

	e.metrics.inc(MetricSuspiciousEvents)
	e.emit(ctx, eventType, identifier, "suspicion", res.Count)

	if res.FlaggedNow {
		e.metrics.inc(MetricFlagsRaised)
		e.emit(ctx, EventSuspiciousFlagRaised, identifier, "suspicion", res.Count)
		e.log.WithFields(logrus.Fields{
			"identifier": identifier,
			"count":      res.Count,
		}).Error("suspicious activity flag raised")
	}
	return res, nil
}

// storeErr maps any backend failure onto the public [ErrStoreUnavailable]
// class, preserving detail in the message.
func (e *Engine) storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
