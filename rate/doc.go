// Package rate provides a Redis-backed, policy-scoped request limiter used to
// throttle credential and API traffic.
//
// # Window semantics
//
// Counters are fixed-window with accept-side refresh: an accepted request
// increments the counter and re-arms the window TTL; a rejected request
// touches nothing, so a saturated identity recovers only after the window
// drains. Key layout is rl:<policy>:<identity>.
//
// # What this package must NOT do
//
//   - Inspect HTTP requests (identity extraction lives in middleware).
//   - Decide what a rejection means for callers (the engine maps decisions
//     to its own error types).
package rate
