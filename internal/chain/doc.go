// Package chain implements the local append-only, hash-linked block log.
//
// # Block Model
//
// Each block carries a sequence ID, a tagged payload (ir.BlockData), the
// hash of its predecessor and a millisecond timestamp. Its own hash is
//
//	H = SHA256("chainvault/block/v1" || 0x00 || canonical({data, id, prev_hash, timestamp}))
//
// The first block (ID 0, type "genesis") links to ir.GenesisPrevHash.
//
// # Single Writer
//
// AddBlock never touches the tail directly. Requests are enqueued on an
// unbounded FIFO queue and served one at a time by a single writer
// goroutine, which computes prev_hash/hash, persists the block and then
// advances the tail. Block order on disk therefore equals commit order.
//
// # Tamper Evidence
//
// IsValid never trusts a stored hash. It re-reads every block in range,
// recomputes its digest from the stored fields, checks it against both the
// stored hash and the key it was fetched by, and checks each link. Any
// mismatch, missing block or undecodable block yields false; corruption is
// never reported as an error.
//
// # Storage Backends
//
// Blocks are persisted through a BlockStore:
//   - FileStore: one JSON file per block plus a TAIL pointer file
//   - LevelDBStore: one LevelDB entry per block plus a tail key
//   - MemoryStore: for tests and ephemeral scenario runs
package chain
