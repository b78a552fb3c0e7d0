// Package middleware exposes HTTP adapters for access token enforcement and
// policy-scoped rate limiting built on top of authcore.Engine validation.
//
// # Guards
//
//   - [RequireAuth] — bearer token verification via Engine.ValidateAccess.
//   - [RateLimit] — per-client request windows under a named rate.Policy.
//
// RequireAuth reads the Authorization header, calls Engine.ValidateAccess, and
// injects the validated result into the request context. RateLimit resolves the
// client identity from X-Forwarded-For or the remote address and answers 429
// with a Retry-After header when the window is exhausted.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine and Limiter calls. It does
// NOT implement authentication logic itself — all decisions are delegated.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine and Limiter handle I/O).
//   - Make authorization decisions beyond pass/reject from ValidateAccess.
package middleware
