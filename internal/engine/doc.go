// Package engine implements the disguise transformation engine.
//
// The engine turns policy-level requests into row-level writes against the
// target store and records enough in the vault to undo them exactly.
//
// ARCHITECTURE:
//
//	Planner   expands an age-based policy into concrete transformations
//	Executor  applies transformations and returns one change record each
//	Recovery  replays a stored undo log against the target
//	Engine    wires the three to the target accessor and the vault ledger
//
// Apply flow:
//
//	[Templates] → Planner.Expand → [Transformations]
//	                                      ↓
//	                      Accessor.SelectRows (snapshot each)
//	                                      ↓
//	                              Executor.Execute
//	                                      ↓
//	                              Ledger.Append (one Function per row)
//
// Recover flow:
//
//	Ledger.Lookup → verify digest → Recovery.Recover (reverse order) → Ledger.Delete
//
// ORDERING RULES:
//
// The planner emits every dependent-table transformation before any owner
// transformation, so a dependent row is never touched after the row it
// references has been removed. Recovery walks the stored Functions in the
// opposite direction: owner rows are reinstated before the dependent rows
// that reference them.
//
// FAILURE MODEL:
//
// No transaction spans a batch. The first failing transformation aborts the
// batch and the writes before it stay committed. The target store and the
// vault are separate databases, so a crash between the target writes and the
// ledger append loses the undo log for that batch. Recovery marks each
// Function restored as soon as its target write succeeds, which makes a
// retried recovery skip the steps already undone.
//
// A failed batch is never appended to the vault: its committed writes have
// no undo log. In planned (expiration) batches, transformations whose
// selection matches no rows are dropped before execution, so the executor's
// "at least one row affected" check applies only to the ones that remain.
package engine
