// Package rate implements a generic point-budget limiter over Redis: at most
// Points consumptions per Duration window per (prefix, key), with a separate
// block marker for BlockDuration once the budget is exhausted.
//
// The limiter bounds raw call frequency before any correctness-based tracker
// runs, defeating probes too slow to trip an attempt counter but too fast for
// normal use. It is fully config-driven; named presets live in the root
// package.
package rate
