// Package term defines the immutable process-term model the rheo engine
// executes.
//
// A term is a tree of Proc nodes produced by an external parser or by the
// CUE compiler in internal/compiler. The engine never mutates a term; all
// runtime progress lives in machine.Instance state.
//
// # Sealed sums
//
// Proc, Value, and Pattern are sealed interfaces: only the types in this
// package implement them. This keeps the machine's transition switch
// exhaustive and exhaustively testable.
//
// # Constrained values
//
// Values are deliberately constrained:
//   - Integers are always int64. NO floats - floats break deterministic
//     replay and canonical hashing.
//   - Maps and sets are ordered structures, not Go maps, so iteration and
//     serialization are deterministic.
//   - Channels are opaque unforgeable identifiers minted by the machine's
//     name generator, carrying read/write capability bits set by bundles.
//
// # Canonical serialization
//
// MarshalCanonical produces RFC 8785 canonical JSON (UTF-16 key ordering,
// NFC normalized strings, no HTML escaping, no floats). It is the ONLY
// serialization used for content-addressed identity: term hashes, run ids,
// and match ids all go through hash.go.
package term
