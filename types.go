package authgate

import (
	"io"
	"time"

	"github.com/MrEthical07/authgate/internal/audit"
	"github.com/MrEthical07/authgate/internal/suspicion"
)

// Flow identifies a caller-facing operation gated by [Engine.Gate].
type Flow string

const (
	FlowLogin         Flow = "login"
	FlowOTPRequest    Flow = "otp_request"
	FlowOTPVerify     Flow = "otp_verify"
	FlowPasswordReset Flow = "password_reset"
)

// Activity event types recorded by the suspicion scorer and emitted to the
// audit sink.
const (
	EventMultipleFailedLogins = "multiple_failed_logins"
	EventMultipleFailedOTPs   = "multiple_failed_otps"
	EventMultipleFailedResets = "multiple_failed_resets"
	EventSuspiciousFlagRaised = "suspicious_flag_raised"
)

// AttemptResult is returned by the failure-recording operations when the
// identifier is not (yet) locked.
type AttemptResult struct {
	Attempts     int
	AttemptsLeft int
}

// LockStatus reports one lockout domain for an identifier.
type LockStatus struct {
	Locked    bool
	Remaining time.Duration
	Attempts  int
}

// OTPIssue is returned by [Engine.RequestOTP]. Code is the plaintext code for
// external delivery; it is never persisted or logged.
type OTPIssue struct {
	Code         string
	Cooldown     time.Duration
	RequestCount int64
}

// SuspicionStatus reports the abuse score and flag for an identifier.
type SuspicionStatus struct {
	Flagged bool
	Count   int64
}

// ActivityEntry is one suspicious-activity log line, most recent first.
type ActivityEntry = suspicion.Entry

// RateResult is returned by a successful [Engine.Consume].
type RateResult struct {
	ConsumedPoints  int64
	RemainingPoints int64
	WindowReset     time.Duration
}

// RateStatus is a non-consuming read of one rate-limiter key.
type RateStatus struct {
	ConsumedPoints  int64
	RemainingPoints int64
	Blocked         bool
	RetryAfter      time.Duration
}

// SecurityStatus aggregates every security dimension for an identifier. It is
// assembled from independent reads, not a snapshot; under concurrent writes the
// dimensions may be mutually inconsistent.
type SecurityStatus struct {
	Identifier string
	Login      LockStatus
	Reset      LockStatus
	OTP        struct {
		Attempts int
	}
	Suspicion SuspicionStatus
	CheckedAt time.Time
}

// Event is the audit event model delivered to sinks.
type Event = audit.Event

// Sink receives audit events. Implementations must be safe for concurrent use.
type Sink = audit.Sink

// NoOpSink drops all events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events in a channel for in-process consumers.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per event line.
type JSONWriterSink = audit.JSONWriterSink

// NewChannelSink creates a sink backed by a buffered channel.
func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

// NewJSONWriterSink creates a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }
