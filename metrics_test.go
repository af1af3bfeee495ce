package authgate

import (
	"context"
	"testing"
)

func TestMetricsTrackEngineOperations(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		engine.RecordLoginFailure(ctx, "alice")
	}
	engine.RequestOTP(ctx, "alice")
	engine.VerifyOTP(ctx, "alice", "000000")

	m := engine.Metrics()
	if got := m.Value(MetricLoginFailures); got != 4 {
		t.Errorf("login failures: got %d, want 4", got)
	}
	if got := m.Value(MetricLoginLockouts); got != 1 {
		t.Errorf("login lockouts: got %d, want 1", got)
	}
	if got := m.Value(MetricOTPIssued); got != 1 {
		t.Errorf("otp issued: got %d, want 1", got)
	}
	if got := m.Value(MetricOTPMismatches); got != 1 {
		t.Errorf("otp mismatches: got %d, want 1", got)
	}
	if got := m.Value(MetricSuspiciousEvents); got != 1 {
		t.Errorf("suspicious events: got %d, want 1", got)
	}
}

func TestMetricsSnapshotNames(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig())

	snapshot := engine.Metrics().Snapshot()
	for _, name := range []string{"login_failures", "otp_issued", "rate_limit_hits", "flags_raised"} {
		if _, ok := snapshot[name]; !ok {
			t.Errorf("snapshot missing %q", name)
		}
	}
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	engine, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	engine.RecordLoginFailure(ctx, "alice")

	if got := engine.Metrics().Value(MetricLoginFailures); got != 0 {
		t.Fatalf("disabled metrics incremented: %d", got)
	}
}
