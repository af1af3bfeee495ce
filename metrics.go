package authgate

import "sync/atomic"

// MetricID indexes one engine counter.
type MetricID uint8

const (
	MetricLoginFailures MetricID = iota
	MetricLoginLockouts
	MetricResetFailures
	MetricResetLockouts
	MetricOTPIssued
	MetricOTPVerified
	MetricOTPMismatches
	MetricOTPLockouts
	MetricSuspiciousEvents
	MetricFlagsRaised
	MetricRateLimitHits
	MetricGateDenials

	metricCount
)

var metricNames = [metricCount]string{
	"login_failures",
	"login_lockouts",
	"reset_failures",
	"reset_lockouts",
	"otp_issued",
	"otp_verified",
	"otp_mismatches",
	"otp_lockouts",
	"suspicious_events",
	"flags_raised",
	"rate_limit_hits",
	"gate_denials",
}

// String returns the stable snake_case name of the metric.
func (id MetricID) String() string {
	if id >= metricCount {
		return "unknown"
	}
	return metricNames[id]
}

// paddedCounter occupies its own cache line to avoid false sharing between
// hot counters.
type paddedCounter struct {
	value atomic.Uint64
	_     [56]byte
}

// Metrics holds the engine's in-process counters. A nil or disabled Metrics
// makes every operation a no-op.
type Metrics struct {
	enabled  bool
	counters [metricCount]paddedCounter
}

func newMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricCount {
		return
	}
	m.counters[id].value.Add(1)
}

// Value returns the current count for one metric.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricCount {
		return 0
	}
	return m.counters[id].value.Load()
}

// Snapshot returns all counters keyed by their stable names.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, metricCount)
	for id := MetricID(0); id < metricCount; id++ {
		out[id.String()] = m.Value(id)
	}
	return out
}
