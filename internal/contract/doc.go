// Package contract is the contract runtime: it runs named procedures
// against a read-only view of storage, one execution at a time.
//
// # Execution model
//
// Every Execute call is queued on the Runtime's global FIFO and served by a
// single worker goroutine. The procedure of one execution therefore never
// overlaps another's, and all chain and storage effects of an execution are
// durable before the next procedure begins. This is what makes the
// read-check-write sequences of procedures (read a balance, compare, write
// it back) safe without per-key locks.
//
// Each execution moves through
//
//	Pending -> Reading -> Computing -> Committing -> Done | Failed
//
// Pending while queued, Reading once dequeued and handed its view,
// Computing while the procedure runs and Committing from its first write.
// Executions that never write go from Computing straight to Done.
//
// # Capabilities
//
// A procedure receives a Call. Call.View can only read. Writes go through
// Call.Storage and Call.Chain, the capabilities the contract was built
// with, so every write point is explicit in procedure source.
//
// # Failures
//
// A procedure error is returned unchanged inside a Failure. Writes the
// procedure made before failing stay in place: there is no rollback across
// storage and chain.
package contract
