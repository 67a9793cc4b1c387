package term

// Proc is the sealed interface for process-term nodes.
// Only the node types in this package implement it.
type Proc interface {
	proc() // Sealed - only these types implement it
}

// ReceiveMode selects the consumption semantics of a receive.
type ReceiveMode string

const (
	// ReceiveOnce consumes one message and terminates the receiver.
	ReceiveOnce ReceiveMode = "once"
	// ReceivePersistent re-registers the receiver after every match
	// (replication). A persistent receiver never stops listening until
	// its owner is cancelled.
	ReceivePersistent ReceiveMode = "persistent"
	// ReceivePeek matches a message without removing the underlying send.
	ReceivePeek ReceiveMode = "peek"
)

// BundleMode restricts which channel operations flow through a bundle.
type BundleMode string

const (
	// BundleWrite permits sends only (bundle+).
	BundleWrite BundleMode = "write"
	// BundleRead permits receives only (bundle-).
	BundleRead BundleMode = "read"
	// BundleEquiv permits neither direction; the channel is usable only
	// as an opaque value (bundle0).
	BundleEquiv BundleMode = "equiv"
	// BundleReadWrite permits both directions (plain bundle).
	BundleReadWrite BundleMode = "rw"
)

// RefMode selects reference semantics for a Ref node.
type RefMode string

const (
	// RefCopy yields a deep copy of the referenced value.
	RefCopy RefMode = "copy"
	// RefMove yields the referenced value and tombstones the source
	// binding; later reads of the moved name are an error.
	RefMove RefMode = "move"
)

// CollectKind names a collection constructor.
type CollectKind string

const (
	CollectList  CollectKind = "list"
	CollectSet   CollectKind = "set"
	CollectMap   CollectKind = "map"
	CollectTuple CollectKind = "tuple"
)

// Stop is the inert process. It terminates immediately with a nil value.
type Stop struct{}

// Literal evaluates to a fixed value.
type Literal struct {
	Value Value
}

// Var evaluates to the value bound to Name in the current environment.
// Reading an unbound or moved name is an error.
type Var struct {
	Name string
}

// Par is parallel composition: fork one child per operand, join on the
// collective termination of all of them.
type Par struct {
	Procs []Proc
}

// New introduces fresh unforgeable channel names, one per entry in Names,
// then runs Body with those names bound.
type New struct {
	Names []string
	Body  Proc
}

// Send publishes the evaluated Args (as a tuple for arity > 1) on the
// evaluated Chan.
//
// Async sends terminate immediately after publishing. Sync sends suspend
// in WAITING until the message is consumed, then run Then.
// Persistent sends survive matching and stay eligible forever.
type Send struct {
	Chan       Proc
	Args       []Proc
	Sync       bool
	Persistent bool
	Then       Proc // continuation for sync sends; nil means Stop
}

// Receive registers interest on one channel and runs Body with the
// pattern's bindings once a message matches.
//
// Mode selects once/persistent/peek semantics per ReceiveMode.
type Receive struct {
	Chan     Proc
	Patterns []Pattern
	Mode     ReceiveMode
	Body     Proc
}

// SelectArm is one alternative of a Select.
type SelectArm struct {
	Chan     Proc
	Patterns []Pattern
	Body     Proc
}

// Select races one-shot receives across all arms; the first channel that
// independently matches wins and the other registrations are retracted
// atomically. Exactly one arm's body runs.
type Select struct {
	Arms []SelectArm
}

// Cond evaluates If and runs exactly one of Then or Else. The untaken
// branch is never instantiated.
type Cond struct {
	If   Proc
	Then Proc
	Else Proc // nil means Stop
}

// MatchCase is one arm of a Match.
type MatchCase struct {
	Pattern Pattern
	Body    Proc
}

// Match evaluates Target and tries Cases in source order; the first
// pattern that matches wins. No match is a fatal error for the instance.
type Match struct {
	Target Proc
	Cases  []MatchCase
}

// Bundle evaluates Target to a channel and yields that channel with its
// capabilities restricted per Mode. Restriction only ever removes
// capabilities; re-bundling cannot restore a stripped direction.
type Bundle struct {
	Mode   BundleMode
	Target Proc
}

// Operation applies Op to the evaluated operands, left to right.
//
// "and"/"or" short-circuit: the right operand is not instantiated when the
// left alone decides the result. All other ops evaluate every operand.
type Operation struct {
	Op       string
	Operands []Proc
}

// Collect builds a collection value of the given kind from the evaluated
// elements. For maps, Elems alternate key, value, key, value.
type Collect struct {
	Kind  CollectKind
	Elems []Proc
}

// Interpolate evaluates Template to a string and Args to a map, then
// substitutes ${key} occurrences in the template.
type Interpolate struct {
	Template Proc
	Args     Proc
}

// Conjoin builds the conjunction connective of its evaluated operands.
type Conjoin struct {
	Left, Right Proc
}

// Disjoin builds the disjunction connective of its evaluated operands.
type Disjoin struct {
	Left, Right Proc
}

// Negate builds the negation connective of its evaluated operand.
type Negate struct {
	Body Proc
}

// Ref reads the named binding with copy or move semantics.
type Ref struct {
	Mode RefMode
	Name string
}

func (Stop) proc()        {}
func (Literal) proc()     {}
func (Var) proc()         {}
func (Par) proc()         {}
func (New) proc()         {}
func (Send) proc()        {}
func (Receive) proc()     {}
func (Select) proc()      {}
func (Cond) proc()        {}
func (Match) proc()       {}
func (Bundle) proc()      {}
func (Operation) proc()   {}
func (Collect) proc()     {}
func (Interpolate) proc() {}
func (Conjoin) proc()     {}
func (Disjoin) proc()     {}
func (Negate) proc()      {}
func (Ref) proc()         {}
