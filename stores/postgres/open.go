package postgres

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Schema is the DDL expected by [Users] and [Tokens]. Apply it through
// the migration tooling of the host application.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id                  TEXT PRIMARY KEY,
	email               TEXT NOT NULL UNIQUE,
	password_hash       TEXT NOT NULL,
	role                TEXT NOT NULL DEFAULT 'user',
	active              BOOLEAN NOT NULL DEFAULT TRUE,
	twofactor_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
	twofactor_secret    BYTEA,
	twofactor_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
	failed_attempts     INTEGER NOT NULL DEFAULT 0,
	lockout_end         TIMESTAMPTZ,
	last_login_at       TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS backup_codes (
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	code_hash  BYTEA NOT NULL,
	PRIMARY KEY (account_id, code_hash)
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	value_hash  TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	issued_at   TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	revoked_at  TIMESTAMPTZ,
	replaced_by TEXT
);

CREATE INDEX IF NOT EXISTS refresh_tokens_account_idx ON refresh_tokens (account_id);
`

// Open describes the open operation and its observable behavior.
//
// Open returns derived values or handles for continued use when successful.
// Open may return an error when input validation, dependency calls, or security checks fail.
func Open(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}
