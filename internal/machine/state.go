package machine

import (
	"fmt"

	"github.com/roach88/rheo/internal/term"
)

// StateKind enumerates the closed set of machine states.
type StateKind int

const (
	// StateInitial is the birth state. No transition enters it.
	StateInitial StateKind = iota + 1
	// StateEvaluating waits for the operand at State.Index to produce a
	// value via a child machine.
	StateEvaluating
	// StateSending publishes an evaluated message on the channel store.
	StateSending
	// StateReceiving holds a registered receive (State.Mode) until a
	// message arrives.
	StateReceiving
	// StateWaiting suspends a synchronous send until its message is
	// consumed.
	StateWaiting
	// StateBranching picks exactly one conditional branch.
	StateBranching
	// StateForking spawns one child per parallel operand.
	StateForking
	// StateJoining suspends until every pending child has terminated.
	StateJoining
	// StateBinding extends the environment with one name (State.Name).
	StateBinding
	// StateMatching tries the match case at State.Index.
	StateMatching
	// StateConstructing assembles an evaluated message payload.
	StateConstructing
	// StateOperating applies State.Op to the collected operands.
	StateOperating
	// StateBundling restricts an evaluated channel per State.BundleMode.
	StateBundling
	// StateReferencing reads a binding with copy or move semantics.
	StateReferencing
	// StateInterpolating substitutes bindings into a template string.
	StateInterpolating
	// StateConjoining builds a conjunction connective.
	StateConjoining
	// StateDisjoining builds a disjunction connective.
	StateDisjoining
	// StateNegating negates a boolean or builds a negation connective.
	StateNegating
	// StateCollecting builds a collection of State.CollectKind.
	StateCollecting
	// StateTerminating tears the instance down (error or cancellation).
	StateTerminating
	// StateTerminated is absorbing: no transition leaves it.
	StateTerminated
)

// RaceMode marks a select registration; it is a receive mode that never
// appears on a plain Receive node.
const RaceMode term.ReceiveMode = "race"

// State is a tagged machine state. Kind selects which parameter fields
// are meaningful.
type State struct {
	Kind        StateKind
	Index       int              // operand / match-case cursor
	Mode        term.ReceiveMode // StateReceiving
	BundleMode  term.BundleMode  // StateBundling
	RefMode     term.RefMode     // StateReferencing
	CollectKind term.CollectKind // StateCollecting
	Op          string           // StateOperating
	Name        string           // StateBinding
}

// Terminal reports whether the state is absorbing.
func (s State) Terminal() bool {
	return s.Kind == StateTerminated
}

// Suspended reports whether the instance may legally sit in this state
// with no local progress, waiting on an enabling event.
func (s State) Suspended() bool {
	switch s.Kind {
	case StateReceiving, StateWaiting, StateJoining, StateEvaluating:
		return true
	default:
		return false
	}
}

func (k StateKind) String() string {
	switch k {
	case StateInitial:
		return "INITIAL"
	case StateEvaluating:
		return "EVALUATING"
	case StateSending:
		return "SENDING"
	case StateReceiving:
		return "RECEIVING"
	case StateWaiting:
		return "WAITING"
	case StateBranching:
		return "BRANCHING"
	case StateForking:
		return "FORKING"
	case StateJoining:
		return "JOINING"
	case StateBinding:
		return "BINDING"
	case StateMatching:
		return "MATCHING"
	case StateConstructing:
		return "CONSTRUCTING"
	case StateOperating:
		return "OPERATING"
	case StateBundling:
		return "BUNDLING"
	case StateReferencing:
		return "REFERENCING"
	case StateInterpolating:
		return "INTERPOLATING"
	case StateConjoining:
		return "CONJOINING"
	case StateDisjoining:
		return "DISJOINING"
	case StateNegating:
		return "NEGATING"
	case StateCollecting:
		return "COLLECTING"
	case StateTerminating:
		return "TERMINATING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("StateKind(%d)", int(k))
	}
}

// String renders the state with its parameter for diagnostics, e.g.
// "RECEIVING(persistent)" or "MATCHING(2)".
func (s State) String() string {
	switch s.Kind {
	case StateEvaluating, StateMatching:
		return fmt.Sprintf("%s(%d)", s.Kind, s.Index)
	case StateReceiving:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Mode)
	case StateBundling:
		return fmt.Sprintf("%s(%s)", s.Kind, s.BundleMode)
	case StateReferencing:
		return fmt.Sprintf("%s(%s)", s.Kind, s.RefMode)
	case StateCollecting:
		return fmt.Sprintf("%s(%s)", s.Kind, s.CollectKind)
	case StateOperating:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Op)
	case StateBinding:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Name)
	default:
		return s.Kind.String()
	}
}
