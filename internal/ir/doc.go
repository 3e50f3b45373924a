// Package ir holds the value types shared by every layer of the disguise
// engine: transformations, row snapshots, ledger records and vault identities.
//
// ir imports nothing internal. The target accessor, the vault ledger, the
// engine and the transports all depend on it, never the other way round.
//
// Key constraints:
//   - Column semantics are a closed enumeration (SemanticType)
//   - A Target always knows which of its fields is the primary key
//   - Function predicates are row-local primary-key predicates
//   - All JSON tags use snake_case
package ir
