package machine

import "github.com/roach88/rheo/internal/term"

// Role records why an instance was spawned, which determines how its
// termination is delivered to the parent.
type Role int

const (
	// RoleRoot is the top-level instance of a run.
	RoleRoot Role = iota
	// RoleOperand children deliver their value to a parent suspended in
	// EVALUATING.
	RoleOperand
	// RoleFork children are counted by a parent suspended in JOINING.
	RoleFork
	// RoleDetached children (bodies of persistent receivers) report only
	// errors; the parent does not await them.
	RoleDetached
)

// Instance is one running process machine: its term, current state, a
// frozen environment snapshot, and the fork/join links to parent and
// children.
//
// Instances live in the Scheduler's arena, indexed by id. The parent is
// an id reference, never an owning pointer, so the process tree stays a
// tree. An instance is destroyed (removed from the arena) only after
// reaching TERMINATED and after its parent has observed the termination.
type Instance struct {
	ID     int64
	Term   term.Proc
	State  State
	Env    *Env
	Parent int64 // 0 for the root
	Role   Role

	// PendingChildren holds ids of live children, recomputed as children
	// terminate. JOINING drains it; cancellation walks it.
	PendingChildren map[int64]bool

	// Operands collects child-evaluated values in operand order.
	Operands []term.Value

	// Result is the value produced on termination; nil until then.
	Result term.Value

	// Err is set when the instance terminated with a failure.
	Err *RuntimeError

	// queue is the instance's FIFO event queue; deferred holds events
	// that did not enable a transition, re-examined after the next
	// progressed step. Both are owned by the scheduler's single writer.
	queue    []Event
	deferred []Event

	// bindNames/bindValues step the BINDING chain after a match.
	bindNames  []string
	bindValues map[string]term.Value

	// payload carries the matched message through the BINDING chain so a
	// select arm or receive body sees exactly what was consumed.
	payload term.Value

	// armIndex remembers which select arm or match case won.
	armIndex int
}

func newInstance(id int64, p term.Proc, env *Env, parent int64, role Role) *Instance {
	return &Instance{
		ID:              id,
		Term:            p,
		State:           State{Kind: StateInitial},
		Env:             env,
		Parent:          parent,
		Role:            role,
		PendingChildren: make(map[int64]bool),
	}
}

// enqueue appends an event to the instance's FIFO queue.
func (inst *Instance) enqueue(ev Event) {
	inst.queue = append(inst.queue, ev)
}

// dequeue pops the front event.
func (inst *Instance) dequeue() (Event, bool) {
	if len(inst.queue) == 0 {
		return Event{}, false
	}
	ev := inst.queue[0]
	inst.queue[0] = Event{}
	inst.queue = inst.queue[1:]
	return ev, true
}

// defer_ parks an event that did not enable a transition. Deferred events
// are requeued in arrival order after the instance next progresses.
func (inst *Instance) defer_(ev Event) {
	inst.deferred = append(inst.deferred, ev)
}

// requeueDeferred moves deferred events back onto the queue, preserving
// their original order ahead of nothing (they rejoin at the back; FIFO
// among themselves).
func (inst *Instance) requeueDeferred() {
	if len(inst.deferred) == 0 {
		return
	}
	inst.queue = append(inst.queue, inst.deferred...)
	inst.deferred = inst.deferred[:0]
}
