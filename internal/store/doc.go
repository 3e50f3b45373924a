// Package store provides the vault: durable storage for disguise undo logs
// and subject identities, on SQLite or PostgreSQL.
//
// The vault holds three tables:
//   - vault: one row per subject, with the JSON locator of their placeholder row
//   - disguise: one header per applied policy
//   - disguise_function: the header's row-level undo steps
//
// # Ordering
//
// Functions are numbered by seq within their disguise at append time and
// are always read back ORDER BY seq ASC, so recovery sees exactly the order
// in which the engine emitted them.
//
// # Placeholders
//
// Queries are written with ? placeholders and passed through sqlx's Rebind,
// which converts them to $n for PostgreSQL.
//
// # Database Configuration
//
// SQLite vaults use WAL mode, synchronous=NORMAL, a 5-second busy timeout,
// foreign-key enforcement and a single open connection.
package store
