// Package harness runs disguise scenarios end to end.
//
// A scenario is a YAML file that builds a scratch target database, generates
// vaults, runs a flow of policy operations and then asserts on the resulting
// target rows, vault ledger and step trace:
//
//	name: scrub_and_recover
//	description: "userscrub removes bea and recover brings the row back"
//	policies: policies
//	schema:
//	  - CREATE TABLE contact_info (contact_id INTEGER PRIMARY KEY, name TEXT)
//	seed:
//	  - INSERT INTO contact_info VALUES (19, 'bea')
//	vaults:
//	  - vault_id: "19"
//	    email: bea@example.com
//	    table: contact_info
//	    fields: [name]
//	    values: [anonymous]
//	flow:
//	  - op: apply
//	    policy: userscrub
//	    vault_id: "19"
//	  - op: recover
//	    policy: userscrub
//	    vault_id: "19"
//	    expect: {restored: 1}
//	assertions:
//	  - type: row_values
//	    table: contact_info
//	    where: contact_id=19
//	    expect: {name: bea}
//
// Flow ops are apply, plan, recover, clearvault and advance. A step without
// an expect clause must succeed; expect.error names the error code a step
// must fail with.
//
// Assertion types:
//
//   - row_count: rows of a target table matching a predicate
//   - row_values: column values every matching row must hold
//   - ledger_count: disguises recorded for a vault, optionally for one policy
//   - trace_count: steps matching op, policy and outcome
//   - trace_order: ops occurring in order
//
// Every run uses a fixed clock and sequential disguise ids, so the trace
// transcript is stable and can be compared against golden files.
package harness
