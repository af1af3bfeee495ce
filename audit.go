package authgate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authgate/internal/audit"
)

func newAuditDispatcher(cfg AuditConfig, sink Sink) *audit.Dispatcher {
	return audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
	}, sink)
}

// emit forwards one event to the audit dispatcher. Events are advisory; a full
// buffer never blocks or fails the security operation that produced them.
func (e *Engine) emit(ctx context.Context, eventType, identifier, domain string, count int64) {
	if e.audit == nil {
		return
	}
	e.audit.Emit(ctx, Event{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		Identifier: identifier,
		Domain:     domain,
		Count:      count,
	})
}

// AuditDropped reports how many events were discarded because the audit
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}
