// Package ledger stores refresh tokens as an append-style rotation ledger:
// every issued value is a row, rotation revokes the old row and creates its
// successor in one atomic step, and revoked rows stay readable for a
// retention window so late arrivals fail cleanly instead of vanishing.
//
// # Storage model
//
// The client-held value never touches storage; rows are keyed by its sha256.
// Key layout:
//   - rt:<hash>      — JSON token record
//   - art:<account>  — set of row hashes per account
//
// Row TTL is expiry plus retention, so the ledger is self-pruning.
//
// # What this package must NOT do
//
//   - Mint access tokens or decide session policy (Engine concerns).
//   - Log token values or hashes.
package ledger
