// Package store is the SQLite-backed record store layered on the chain.
//
// Every write registers the record's content digest with the chain as a
// storage-write block before it becomes visible, so any value read back can
// be cross-checked against the block that attests to it.
//
// # Write order
//
//  1. Canonicalize the value and compute its digest over the plaintext.
//  2. Seal the payload when encryption is requested.
//  3. Stage the record row inside a SQL transaction.
//  4. Append the storage-write block to the chain.
//  5. Stamp the block hash, append a history row and commit.
//
// A failure in steps 1-4 rolls the transaction back, leaving neither a
// record nor a block. A commit failure after step 4 leaves an attestation
// block with no record; it is logged and reported as an error.
//
// Cancellation is honoured only before step 3. From step 3 on the write
// runs to completion on a context detached from the caller's.
//
// # Tables
//
//   - records: latest payload and metadata per id
//   - record_history: every attesting write, ordered by seq
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: Record rows are as durable as chain blocks
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - one open connection: writes are serialized by database/sql. The
//     write transaction keeps that connection for the whole chain append,
//     so LoadData and Validate calls from other goroutines wait behind the
//     block store's fsync. Chain appends are serialized anyway.
package store
