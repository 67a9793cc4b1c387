package machine

import (
	"fmt"

	"github.com/roach88/rheo/internal/term"
)

// EventKind enumerates the closed set of event kinds.
type EventKind int

const (
	// EventSignal drives local progress: start, continue, join-complete.
	EventSignal EventKind = iota + 1
	// EventMessageAvailable delivers a matched channel message with its
	// pattern bindings to a registered receiver.
	EventMessageAvailable
	// EventConditionMet acknowledges consumption of a synchronous send.
	EventConditionMet
	// EventExpressionEvaluated delivers a terminated child's value to its
	// parent.
	EventExpressionEvaluated
	// EventTimeout is an externally injected expiry signal.
	EventTimeout
	// EventError propagates a child machine's failure to its parent.
	EventError
)

// Event is an immutable record placed on an instance's event queue.
// Fields beyond Kind and Target are populated per kind.
type Event struct {
	Kind     EventKind
	Target   int64 // destination instance id
	Channel  string
	Payload  term.Value
	Bindings map[string]term.Value
	Value    term.Value // EventExpressionEvaluated
	Child    int64      // terminated child id
	ArmIndex int        // select arm that won; -1 otherwise
	Err      *RuntimeError
}

func (k EventKind) String() string {
	switch k {
	case EventSignal:
		return "SIGNAL"
	case EventMessageAvailable:
		return "MESSAGE_AVAILABLE"
	case EventConditionMet:
		return "CONDITION_MET"
	case EventExpressionEvaluated:
		return "EXPRESSION_EVALUATED"
	case EventTimeout:
		return "TIMEOUT"
	case EventError:
		return "ERROR"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// signalEvent builds the generic progress event for an instance.
func signalEvent(target int64) Event {
	return Event{Kind: EventSignal, Target: target, ArmIndex: -1}
}
