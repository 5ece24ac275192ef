// Package rate provides the Redis-backed login throttle used by the engine.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key layout
// under the configured prefix (default "ae:rl:"):
//   - u:<username> failed logins per account
//   - ip:<addr>    failed logins per client IP (when enabled)
//
// # What this package must NOT do
//
//   - Decide which operations are throttled (the engine does).
//   - Be imported outside the authengine module.
package rate
