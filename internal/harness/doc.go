// Package harness runs YAML scenarios against an offline storage provider
// and records a deterministic trace for golden-file comparison.
//
// # Scenario Format
//
//	name: sync_layout
//	description: "Creates append pairs in insertion order"
//	store:
//	  backend: local
//	  version: 1
//	  tables:
//	    formData: "uuid, fullName, species"
//	setup:
//	  - op: create
//	    table: formData
//	    record: { species: grouper }
//	flow:
//	  - op: find
//	    table: formData
//	    where: { species: grouper }
//	    expect:
//	      count: 1
//	  - op: find
//	    table: formData
//	    where: { age: 3 }
//	    expect:
//	      error: schema_mismatch
//	assertions:
//	  - type: final_state
//	    table: formData
//	    count: 1
//	  - type: trace_count
//	    op: create
//	    count: 1
//
// Steps run in order. Supported ops are create, find, update, delete and
// reopen. reopen closes the provider and opens the same file again with a
// new version and table set, which is how upgrades are exercised.
//
// Primary keys are generated as id-000001, id-000002, ... in creation
// order so later steps and golden files can refer to them.
//
// # Assertions
//
//   - final_state: find on a table (optionally with where) returns count
//     records and every record contains the expect fields
//   - trace_count: op appears exactly count times in the trace
//   - trace_order: ops appear in the given order, not necessarily adjacent
//
// Each scenario runs against a fresh database file in a temporary
// directory that is removed afterwards.
package harness
