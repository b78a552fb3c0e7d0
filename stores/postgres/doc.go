// Package postgres provides database/sql implementations of
// authcore.UserStore and ledger.Store backed by PostgreSQL through the
// pgx driver. Open wires the driver; Schema carries the DDL the two
// stores expect.
//
// The stores push the concurrency-sensitive transitions into SQL:
// failed-attempt increments are single-statement RETURNING updates,
// backup code consumption is a compare-and-delete, and token rotation
// runs under SELECT ... FOR UPDATE so one rotation wins.
package postgres
