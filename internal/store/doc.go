// Package store provides SQLite-backed durable storage for rheo run logs.
//
// The store implements an append-only log with:
//   - Runs: one header per engine run (canonical term, content address,
//     external channel names, final outcome)
//   - Trace events: every applied transition, keyed by logical clock seq
//   - Injections: the external messages a run consumed, in arrival order
//
// A recorded run is self-contained: the stored canonical term decodes
// back to an executable process, and re-running it with the recorded
// injections and the run-id-seeded name generator reproduces the trace
// byte-for-byte. Replay compares the two streams event-for-event.
//
// All ordering uses seq INTEGER (logical clock), never timestamps, and
// every query carries an explicit ORDER BY so results are identical
// across replays.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Term content addresses are computed in internal/term/hash.go using
// RFC 8785 canonical JSON and SHA-256 with domain separation.
package store
