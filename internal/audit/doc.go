// Package audit asynchronously forwards security events (lockouts, flag
// raises, rate-limit blocks) to a pluggable sink. The control plane only
// records state; whatever delivers notifications (a mail worker, a message
// queue, a log shipper) consumes events from the sink.
package audit
