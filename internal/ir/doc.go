// Package ir provides the value model shared by every chainvault layer.
//
// Block payloads, stored records and contract arguments are all IRValues.
// The package owns the one serialization used for content addressing
// (MarshalCanonical) and the digest functions built on top of it, so the
// chain, the record store and the contract runtime agree byte-for-byte on
// what a value hashes to.
//
// Constraints:
//   - Whole numbers in the int64 range are IRInt and encode exactly; every
//     other finite number is IRFloat and encodes per ECMAScript. NaN and
//     infinities are rejected.
//   - Object keys are ordered by UTF-16 code units (RFC 8785).
//   - Strings are NFC normalized at the serialization boundary.
//   - ir imports nothing internal.
package ir
