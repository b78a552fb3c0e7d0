// Package authcore provides an authentication and session lifecycle engine with
// JWT access tokens, a Redis-backed refresh token rotation ledger, credential
// lockout, TOTP two-factor step-up, and policy-scoped rate limiting.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (LoginResult, TokenPair, MetricsSnapshot, etc.). Account persistence is the caller's:
// integrations implement [UserStore] over their own database. Refresh token state lives in
// the ledger subpackage behind the [ledger.Store] contract.
//
// # What this package must NOT do
//
//   - Expose Redis clients, ledger rows, or hash encodings in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Import any sub-package that re-imports authcore (no import cycles).
//
// # Performance contract
//
// ValidateAccess is the hot path: pure JWT verification, no store round-trips. Login,
// Rotate, and the two-factor operations are allowed store round-trips per call.
package authcore
