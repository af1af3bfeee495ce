// Package suspicion accumulates abuse signals per identifier into a long-window
// score, a capped most-recent-first activity log, and a durable flag once the
// score crosses its threshold.
//
// The flag is the cross-flow circuit breaker: every gated flow consults it
// before its own logic, and nothing clears it early except its own TTL or an
// administrative bulk clear. Flag creation uses SET NX so concurrent
// threshold-crossers collapse to one effect.
package suspicion
