// Package authgate is an authentication abuse-mitigation control plane: it protects
// login, OTP, and password-reset flows against credential stuffing, OTP brute force,
// and request flooding, using a shared Redis store as the only coordination substrate.
//
// The package is designed for concurrent server workloads: Engine methods are safe to
// call from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config], result
// value types, and the error taxonomy. All coordination logic (attempt tracking,
// OTP lifecycle, suspicious-activity scoring, point-based rate limiting, audit
// dispatch) lives under internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Decide how a caller responds to a block. Every operation returns a decision
//     plus metadata (retry-after, attempts left); HTTP status codes and UI copy are
//     the caller's problem.
//   - Deliver notifications. Lock and flag events are emitted to a [Sink];
//     mail/SMS/queue delivery belongs to the consumer.
//   - Hold mutable state outside Redis. The engine owns no in-process locks and no
//     per-identifier memory; any number of processes may share one store.
//
// # Failure model
//
// All policy failures (locked, cooldown, invalid code, rate limited, flagged) are
// recoverable sentinel errors matchable with errors.Is; detail types carrying
// retry-after metadata are matchable with errors.As. Store unavailability is the
// only infrastructure failure class and always wraps [ErrStoreUnavailable];
// security-critical callers should fail closed on it.
package authgate
