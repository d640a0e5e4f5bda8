// Package database is the sqlite-backed store for the media catalog.
//
// It owns the schema (applied through embedded migrations), all row
// types, and every query the rest of the system runs. Denormalized
// counters such as tag usage counts, unread counts, and series lengths
// are maintained by database triggers so they stay correct no matter
// which code path mutates the underlying rows.
//
// Reads take a shared lock and may run concurrently; writes go through
// Begin/End (or WithTx) so a catalog mutation is always one atomic
// transaction. Mutation helpers that enforce exact row counts return
// ConsistencyError when the database disagrees with the catalog's
// invariants.
package database
