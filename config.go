package authgate

import (
	"errors"
	"time"

	"github.com/MrEthical07/authgate/internal/otp"
)

// Config is the full engine configuration. It is cloned by [Builder.Build]
// and immutable afterwards.
type Config struct {
	Login     LockoutConfig
	Reset     LockoutConfig
	OTP       OTPConfig
	Suspicion SuspicionConfig
	Gates     GateConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// LockoutConfig holds failed-attempt tracking parameters for one domain.
type LockoutConfig struct {
	MaxAttempts  int           // failures inside Window before a lock
	Window       time.Duration // rolling counting window
	LockDuration time.Duration // full block once triggered; never renewed
}

// CooldownStep maps an issuance count to the cooldown applied after it.
type CooldownStep = otp.CooldownStep

// OTPConfig holds the one-time-code lifecycle parameters.
type OTPConfig struct {
	Secret        []byte        // HMAC key for code hashing; required
	Digits        int           // code length
	Validity      time.Duration // record TTL from issuance
	MaxAttempts   int           // verification budget before lockout
	LockDuration  time.Duration
	RequestWindow time.Duration // window the issuance counter lives in
	CooldownSteps []CooldownStep
	// FixedExpiry pins the record's deadline to issuance time. Default (false)
	// restores the full validity window on every mismatch rewrite.
	FixedExpiry bool
}

// SuspicionConfig holds the abuse-scoring parameters.
type SuspicionConfig struct {
	Threshold int           // score at which the durable flag is set
	Window    time.Duration // score, flag, and activity-log TTL
	LogCap    int           // activity-log entries retained
}

// RateLimitConfig governs one rate-limiter class.
//
//   - Points: consumptions allowed per window (the budget)
//   - Duration: the counting window
//   - BlockDuration: penalty once the budget is exceeded; may exceed Duration
type RateLimitConfig struct {
	KeyPrefix     string
	Points        int
	Duration      time.Duration
	BlockDuration time.Duration
}

// GateConfig assigns a limiter class to each caller-facing flow consumed by
// [Engine.Gate].
type GateConfig struct {
	Login         RateLimitConfig
	OTPRequest    RateLimitConfig
	OTPVerify     RateLimitConfig
	PasswordReset RateLimitConfig
}

// AuditConfig controls the asynchronous event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
RATE LIMIT PRESETS
====================================
*/

// PresetStrict is the budget for highly sensitive operations.
func PresetStrict() RateLimitConfig {
	return RateLimitConfig{KeyPrefix: "rl_strict", Points: 3, Duration: time.Hour, BlockDuration: time.Hour}
}

// PresetAuth is the budget for authentication endpoints.
func PresetAuth() RateLimitConfig {
	return RateLimitConfig{KeyPrefix: "rl_auth", Points: 5, Duration: 15 * time.Minute, BlockDuration: 15 * time.Minute}
}

// PresetGeneral is the budget for general API endpoints.
func PresetGeneral() RateLimitConfig {
	return RateLimitConfig{KeyPrefix: "rl_api", Points: 20, Duration: time.Minute, BlockDuration: 5 * time.Minute}
}

// PresetPublic is the budget for public endpoints.
func PresetPublic() RateLimitConfig {
	return RateLimitConfig{KeyPrefix: "rl_public", Points: 100, Duration: time.Minute, BlockDuration: time.Minute}
}

// PresetOTP is the budget for OTP endpoints.
func PresetOTP() RateLimitConfig {
	return RateLimitConfig{KeyPrefix: "rl_otp", Points: 3, Duration: 10 * time.Minute, BlockDuration: 30 * time.Minute}
}

// PresetLogin is the budget for login endpoints.
func PresetLogin() RateLimitConfig {
	return RateLimitConfig{KeyPrefix: "rl_login", Points: 5, Duration: 15 * time.Minute, BlockDuration: 15 * time.Minute}
}

// PresetPasswordReset is the budget for password-reset endpoints.
func PresetPasswordReset() RateLimitConfig {
	return RateLimitConfig{KeyPrefix: "rl_password_reset", Points: 3, Duration: time.Hour, BlockDuration: time.Hour}
}

// PresetEmail is the budget for outbound-mail-triggering endpoints.
func PresetEmail() RateLimitConfig {
	return RateLimitConfig{KeyPrefix: "rl_email", Points: 5, Duration: time.Hour, BlockDuration: time.Hour}
}

// DefaultConfig returns the stock configuration. OTP.Secret has no usable
// default and must be set by the caller.
func DefaultConfig() Config {
	return Config{
		Login: LockoutConfig{
			MaxAttempts:  5,
			Window:       15 * time.Minute,
			LockDuration: time.Hour,
		},
		Reset: LockoutConfig{
			MaxAttempts:  3,
			Window:       15 * time.Minute,
			LockDuration: 30 * time.Minute,
		},
		OTP: OTPConfig{
			Digits:        6,
			Validity:      10 * time.Minute,
			MaxAttempts:   6,
			LockDuration:  time.Hour,
			RequestWindow: 6 * time.Hour,
			CooldownSteps: []CooldownStep{
				{MinRequests: 1, Cooldown: time.Minute},
				{MinRequests: 3, Cooldown: 30 * time.Minute},
			},
		},
		Suspicion: SuspicionConfig{
			Threshold: 10,
			Window:    24 * time.Hour,
			LogCap:    100,
		},
		Gates: GateConfig{
			Login:         PresetLogin(),
			OTPRequest:    PresetOTP(),
			OTPVerify:     PresetOTP(),
			PasswordReset: PresetPasswordReset(),
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for internally inconsistent or unusable
// values. Called by [Builder.Build].
func (c *Config) Validate() error {
	if err := c.Login.validate("Login"); err != nil {
		return err
	}
	if err := c.Reset.validate("Reset"); err != nil {
		return err
	}

	if len(c.OTP.Secret) == 0 {
		return errors.New("OTP.Secret is required")
	}
	if c.OTP.Validity <= 0 {
		return errors.New("OTP.Validity must be positive")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP.MaxAttempts must be positive")
	}
	if c.OTP.LockDuration <= 0 {
		return errors.New("OTP.LockDuration must be positive")
	}
	if c.OTP.RequestWindow <= 0 {
		return errors.New("OTP.RequestWindow must be positive")
	}

	if c.Suspicion.Threshold <= 0 {
		return errors.New("Suspicion.Threshold must be positive")
	}
	if c.Suspicion.Window <= 0 {
		return errors.New("Suspicion.Window must be positive")
	}
	if c.Suspicion.LogCap <= 0 {
		return errors.New("Suspicion.LogCap must be positive")
	}

	return nil
}

func (c LockoutConfig) validate(name string) error {
	if c.MaxAttempts <= 0 {
		return errors.New(name + ".MaxAttempts must be positive")
	}
	if c.Window <= 0 {
		return errors.New(name + ".Window must be positive")
	}
	if c.LockDuration <= 0 {
		return errors.New(name + ".LockDuration must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.OTP.Secret = cloneBytes(cfg.OTP.Secret)
	out.OTP.CooldownSteps = append([]CooldownStep(nil), cfg.OTP.CooldownSteps...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
