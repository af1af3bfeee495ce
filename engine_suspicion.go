package authgate

import "context"

// RecordSuspicious registers one qualifying event against the identifier's
// abuse score and reports the post-increment count. Internal failure paths
// (lockouts, OTP exhaustion) call this automatically; expose it for callers
// with their own signals.
func (e *Engine) RecordSuspicious(ctx context.Context, identifier, eventType string) (*SuspicionStatus, error) {
	res, err := e.notifySuspicious(ctx, identifier, eventType)
	if err != nil {
		return nil, err
	}
	return &SuspicionStatus{Flagged: res.Flagged, Count: res.Count}, nil
}

// IsFlagged is a pure read of the identifier's flag and current score.
func (e *Engine) IsFlagged(ctx context.Context, identifier string) (*SuspicionStatus, error) {
	res, err := e.scorer.IsFlagged(ctx, identifier)
	if err != nil {
		return nil, e.storeErr(err)
	}
	return &SuspicionStatus{Flagged: res.Flagged, Count: res.Count}, nil
}

// ActivityLog returns the identifier's retained suspicious-activity entries,
// most recent first.
func (e *Engine) ActivityLog(ctx context.Context, identifier string) ([]ActivityEntry, error) {
	entries, err := e.scorer.Log(ctx, identifier)
	if err != nil {
		return nil, e.storeErr(err)
	}
	return entries, nil
}
