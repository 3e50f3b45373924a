// Package target reads and writes the relational store being disguised.
//
// Store is the narrow set of primitives the engine needs from the target
// database. SQLStore implements it over database/sql for SQLite and
// PostgreSQL. Predicate and assignment strings are passed to the database
// verbatim; values the engine itself produces (restored snapshots, inserted
// placeholder rows) are always bound as parameters.
//
// Accessor layers typed snapshots on top of Store: it introspects the schema
// once per call into ir.Column values and turns selected rows into ir.Target
// snapshots with a known primary-key index.
package target
