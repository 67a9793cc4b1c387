package machine

import (
	"errors"
	"fmt"
	"strings"
)

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeMatchExhausted indicates no match arm accepted the value.
	ErrCodeMatchExhausted RuntimeErrorCode = "MATCH_EXHAUSTED"

	// ErrCodeCapabilityViolation indicates a bundle-restricted channel
	// operation was attempted.
	ErrCodeCapabilityViolation RuntimeErrorCode = "CAPABILITY_VIOLATION"

	// ErrCodeDeadlock indicates the ready set drained with reachable
	// instances still unterminated.
	ErrCodeDeadlock RuntimeErrorCode = "DEADLOCK"

	// ErrCodeMalformedEvent indicates an external injection was rejected
	// at the boundary, before mutating the channel store.
	ErrCodeMalformedEvent RuntimeErrorCode = "MALFORMED_EVENT"

	// ErrCodeUnboundName indicates a variable read with no binding.
	ErrCodeUnboundName RuntimeErrorCode = "UNBOUND_NAME"

	// ErrCodeMovedValue indicates a read of a binding consumed by a move
	// reference.
	ErrCodeMovedValue RuntimeErrorCode = "MOVED_VALUE"

	// ErrCodeTypeMismatch indicates an operand of the wrong kind.
	ErrCodeTypeMismatch RuntimeErrorCode = "TYPE_MISMATCH"

	// ErrCodeQuotaExceeded indicates the run exceeded its step quota.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"
)

// RuntimeError represents a failure detected during engine execution.
// Instance-level errors terminate only the affected subtree; the parent's
// JOINING observes the failure and surfaces it as its own error rather
// than waiting forever.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Instance identifies the machine the error originated in.
	Instance int64

	// Details contains additional context (attempted patterns, bundle
	// mode, blocked instances, ...).
	Details map[string]string
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Instance != 0 {
		return fmt.Sprintf("%s: %s (instance=%d)", e.Code, e.Message, e.Instance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// propagated wraps a child error as the parent's own, keeping the
// original code and details so the run's caller sees the root cause.
func (e *RuntimeError) propagated(parent int64) *RuntimeError {
	return &RuntimeError{
		Code:     e.Code,
		Message:  e.Message,
		Instance: parent,
		Details:  e.Details,
	}
}

// NewMatchExhaustedError reports an unmatched value with the patterns
// that were attempted.
func NewMatchExhaustedError(instance int64, value string, attempted []string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeMatchExhausted,
		Message:  fmt.Sprintf("no pattern matched value %s", value),
		Instance: instance,
		Details: map[string]string{
			"value":    value,
			"patterns": strings.Join(attempted, "; "),
		},
	}
}

// NewCapabilityError reports a bundle-restricted operation attempt.
func NewCapabilityError(instance int64, channel, operation string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeCapabilityViolation,
		Message:  fmt.Sprintf("%s not permitted on bundled channel %s", operation, channel),
		Instance: instance,
		Details: map[string]string{
			"channel":   channel,
			"operation": operation,
		},
	}
}

// BlockedInstance describes one stuck machine in a deadlock report.
type BlockedInstance struct {
	ID     int64
	State  string
	Reason string
}

// DeadlockError is the whole-run diagnostic produced when the ready set
// drains while reachable instances are still unterminated.
type DeadlockError struct {
	Blocked []BlockedInstance
}

// Error implements the error interface.
func (e *DeadlockError) Error() string {
	parts := make([]string, len(e.Blocked))
	for i, b := range e.Blocked {
		parts[i] = fmt.Sprintf("instance %d in %s: %s", b.ID, b.State, b.Reason)
	}
	return "DEADLOCK: " + strings.Join(parts, "; ")
}

// IsDeadlockError returns true if the error is a deadlock report.
// Uses errors.As to handle wrapped errors.
func IsDeadlockError(err error) bool {
	var de *DeadlockError
	return errors.As(err, &de)
}

// IsRuntimeError returns the RuntimeError with the given code, if any.
func IsRuntimeError(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}
