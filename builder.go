package authgate

import (
	"errors"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/authgate/internal/lockout"
	"github.com/MrEthical07/authgate/internal/otp"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/internal/suspicion"
)

// Builder assembles an [Engine]. Zero value is not usable; start with [New].
type Builder struct {
	config    Config
	hasConfig bool
	redis     redis.UniversalClient
	logger    logrus.FieldLogger
	auditSink Sink
}

// New returns a builder carrying the default configuration.
func New() *Builder {
	return &Builder{}
}

// WithConfig replaces the entire configuration. Callers usually start from the
// defaults and override selectively:
//
//	b := authgate.New().WithOTPSecret(secret)
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	b.hasConfig = true
	return b
}

// WithRedis sets the shared store client. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithOTPSecret sets the HMAC key used to hash stored codes, keeping the rest
// of the configuration at its defaults.
func (b *Builder) WithOTPSecret(secret []byte) *Builder {
	if !b.hasConfig {
		b.config = DefaultConfig()
		b.hasConfig = true
	}
	b.config.OTP.Secret = secret
	return b
}

// WithLogger sets the structured logger. Defaults to a discarding logger.
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the destination for asynchronous security events.
func (b *Builder) WithAuditSink(sink Sink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetrics toggles the in-process counters.
func (b *Builder) WithMetrics(enabled bool) *Builder {
	if !b.hasConfig {
		b.config = DefaultConfig()
		b.hasConfig = true
	}
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and constructs the engine. The builder can
// be discarded afterwards.
func (b *Builder) Build() (*Engine, error) {
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}

	cfg := b.config
	if !b.hasConfig {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cloneConfig(cfg)

	logger := b.logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	return &Engine{
		config: cfg,
		redis:  b.redis,
		log:    logger,
		login: lockout.New(b.redis, "login", lockout.Config{
			MaxAttempts:  cfg.Login.MaxAttempts,
			Window:       cfg.Login.Window,
			LockDuration: cfg.Login.LockDuration,
		}),
		reset: lockout.New(b.redis, "reset", lockout.Config{
			MaxAttempts:  cfg.Reset.MaxAttempts,
			Window:       cfg.Reset.Window,
			LockDuration: cfg.Reset.LockDuration,
		}),
		otp: otp.NewManager(b.redis, otp.Config{
			Secret:        cfg.OTP.Secret,
			Digits:        cfg.OTP.Digits,
			Validity:      cfg.OTP.Validity,
			MaxAttempts:   cfg.OTP.MaxAttempts,
			LockDuration:  cfg.OTP.LockDuration,
			RequestWindow: cfg.OTP.RequestWindow,
			CooldownSteps: cfg.OTP.CooldownSteps,
			FixedExpiry:   cfg.OTP.FixedExpiry,
		}),
		scorer: suspicion.New(b.redis, suspicion.Config{
			Threshold: cfg.Suspicion.Threshold,
			Window:    cfg.Suspicion.Window,
			LogCap:    cfg.Suspicion.LogCap,
		}),
		limiter: rate.New(b.redis),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: newMetrics(cfg.Metrics),
	}, nil
}
