// Package otp implements the one-time-code lifecycle: issuance with escalating
// request cooldowns, verification with a bounded retry budget, and a timed lock
// on exhaustion.
//
// Per identifier the package owns four Redis keys: the code record
// ({codeHash, attempts}, binary-encoded, TTL = validity window), a lock, a
// cooldown marker, and a request counter whose value drives the cooldown step
// table. Record mutation (attempt increment on mismatch) runs under WATCH with
// bounded optimistic retries so concurrent guesses cannot lose an increment.
//
// The plaintext code is returned to the caller exactly once, at issuance, for
// delivery by an external channel; only an HMAC-SHA256 hash is stored.
package otp
