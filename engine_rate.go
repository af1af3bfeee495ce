package authgate

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/authgate/internal/rate"
)

// Consume takes points from the key's budget under the given limiter class.
// Keys are caller-defined (user ID, IP, route+IP). Exhausting the budget
// starts the class's block duration; until it lapses every call fails with
// [*RateLimitError].
func (e *Engine) Consume(ctx context.Context, cfg RateLimitConfig, key string, points int) (*RateResult, error) {
	return e.consume(ctx, cfg, key, points)
}

// RateLimitStatus reads the key's current window without consuming.
func (e *Engine) RateLimitStatus(ctx context.Context, cfg RateLimitConfig, key string) (*RateStatus, error) {
	status, err := e.limiter.Status(ctx, rateConfig(cfg), key)
	if err != nil {
		return nil, e.storeErr(err)
	}
	return &RateStatus{
		ConsumedPoints:  status.ConsumedPoints,
		RemainingPoints: status.RemainingPoints,
		Blocked:         status.Blocked,
		RetryAfter:      status.RetryAfter,
	}, nil
}

// ResetRateLimit drops the key's counter and any block marker. Administrative
// use only.
func (e *Engine) ResetRateLimit(ctx context.Context, cfg RateLimitConfig, key string) error {
	if err := e.limiter.Reset(ctx, rateConfig(cfg), key); err != nil {
		return e.storeErr(err)
	}
	return nil
}

func (e *Engine) consume(ctx context.Context, cfg RateLimitConfig, key string, points int) (*RateResult, error) {
	res, err := e.limiter.Consume(ctx, rateConfig(cfg), key, points)
	if err != nil {
		var limited *rate.LimitedError
		if errors.As(err, &limited) {
			e.metrics.inc(MetricRateLimitHits)
			e.log.WithFields(logrus.Fields{
				"key":         key,
				"prefix":      cfg.KeyPrefix,
				"retry_after": limited.RetryAfter,
			}).Warn("rate limit hit")
			return nil, &RateLimitError{RetryAfter: limited.RetryAfter, Limit: limited.Limit}
		}
		return nil, e.storeErr(err)
	}

	return &RateResult{
		ConsumedPoints:  res.ConsumedPoints,
		RemainingPoints: res.RemainingPoints,
		WindowReset:     res.WindowReset,
	}, nil
}

func rateConfig(cfg RateLimitConfig) rate.Config {
	return rate.Config{
		KeyPrefix:     cfg.KeyPrefix,
		Points:        cfg.Points,
		Duration:      cfg.Duration,
		BlockDuration: cfg.BlockDuration,
	}
}
