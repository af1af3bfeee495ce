// Package lockout tracks failed attempts per identifier inside a rolling window
// and escalates to a timed lock when the configured maximum is reached.
//
// State is held entirely in Redis: one counter key (TTL = attempt window, created
// on first increment) and one lock key (TTL = lock duration, created with SET NX
// so concurrent threshold-crossers collapse to a single lock).
//
// # What this package must NOT do
//
//   - Notify the suspicious-activity scorer or any sink. The tracker reports
//     LockedNow and the engine owns the fan-out.
//   - Lift a lock. Clear only deletes the counter; a lock always runs its full
//     TTL.
package lockout
