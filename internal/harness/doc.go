// Package harness runs YAML scenarios against a real chainvault node and
// checks the outcome.
//
// # Scenario Format
//
//	name: transfer
//	description: "alice pays bob"
//	setup:
//	  - id: bal:alice
//	    value: { balance: 100 }
//	    encrypted: false
//	flow:
//	  - execute: token.transfer
//	    args: { from: alice, to: bob, amount: 40 }
//	    expect:
//	      ok: true
//	      result: { from: { balance: 60 } }
//	  - execute: token.transfer
//	    args: { from: alice, to: bob, amount: 1000 }
//	    expect:
//	      ok: false
//	      kind: PROCEDURE
//	      message: insufficient
//	assertions:
//	  - type: record_equals
//	    id: bal:bob
//	    expect: { balance: 40 }
//	  - type: block_contains
//	    block_type: token-transfer
//	    body: { amount: 40 }
//	  - type: chain_valid
//
// # Assertion Types
//
//   - record_equals: the record under id equals expect exactly
//   - record_attested: the record under id validates against its block
//   - chain_valid: the whole chain verifies
//   - block_count: count blocks, optionally of one block_type
//   - block_contains: some block of block_type has a body matching body
//   - trace_order: contracts were executed in the listed order
//
// # Deterministic Testing
//
// Every scenario runs on a fresh memory chain and a temporary SQLite
// database, with a fixed-step clock and sequential execution ids
// (exec-0001, exec-0002, ...). Block hashes are therefore identical across
// runs, which makes the chain itself a golden artifact.
package harness
