// Package machine implements the rheo process-execution engine.
//
// Every running process is an explicit finite state machine. The engine
// drives many machines concurrently through a shared event system instead
// of interpreting terms with native call-stack recursion.
//
// ARCHITECTURE:
//
// Single-Writer Step Loop:
// The Scheduler processes all steps in a single goroutine for deterministic
// behavior. This ensures:
//   - Predictable transition order (round-robin across instances, FIFO
//     within an instance's own queued events)
//   - Reproducible trace on replay
//   - Simple reasoning about causality
//
// Step Processing Flow:
//  1. External messages arrive on a thread-safe inbox and are published
//     through the channel store like any other send.
//  2. Scheduler picks the next (instance, event) pair under the fairness
//     policy and invokes the transition function.
//  3. The transition computes the next state and an ordered effect list:
//     spawn children, publish/request/select on the channel store, enqueue
//     events. Effects are applied atomically with respect to that step.
//  4. The loop repeats until every reachable instance is TERMINATED, the
//     run quiesces with only persistent services registered, or the run
//     deadlocks (reported, never silently treated as success).
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every applied step, match, and injection is stamped with a monotonic seq
// from Clock.Next(). NEVER use wall-clock timestamps for ordering.
//
// Deterministic Scheduling:
// Round-robin across instances in spawn order, FIFO within an instance,
// FIFO matching on both sides of every channel, select resolution in
// registration order. No randomness: non-determinism is resolved entirely
// by the order in which events arrive, never by internal choice.
//
// Environment Snapshots:
// Child machines inherit a frozen snapshot of the parent's environment
// extended with new bindings - never a shared mutable reference - so one
// branch's bindings cannot leak into a sibling.
package machine
