package machine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/rheo/internal/term"
)

// DefaultMaxSteps bounds a run that never quiesces.
const DefaultMaxSteps = 1_000_000

// Result is the outcome of a completed run.
type Result struct {
	// Value is the root instance's produced value, Nil when the root is
	// still servicing persistent receives at quiescence.
	Value term.Value

	// Bindings is the root scope's final environment: every name visible
	// at the root when the run quiesced, externals included. Shadowed and
	// moved entries are already resolved away.
	Bindings map[string]term.Value

	// Trace is the full step trace in clock order.
	Trace []TraceEvent

	// Steps is the number of progressed transitions taken.
	Steps int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxSteps overrides the step quota.
func WithMaxSteps(n int64) Option {
	return func(s *Scheduler) { s.maxSteps = n }
}

// WithNameGenerator overrides fresh-channel naming. Tests use
// FixedGenerator for reproducible channel ids.
func WithNameGenerator(gen NameGenerator) Option {
	return func(s *Scheduler) { s.gen = gen }
}

// WithClock overrides the logical clock, letting replays resume the seq
// space of a recorded run.
func WithClock(c *Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithTraceSink adds a sink that receives every trace event as it is
// recorded, in clock order.
func WithTraceSink(sink Sink) Option {
	return func(s *Scheduler) { s.sinks = append(s.sinks, sink) }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithExternalNames pre-binds names in the root environment to channels
// whose id equals the name, so Inject can address them from outside the
// run.
func WithExternalNames(names ...string) Option {
	return func(s *Scheduler) { s.external = append(s.external, names...) }
}

// Scheduler owns a run: the instance arena, the channel store, the
// logical clock, and the event dispatch loop. All mutation happens on the
// goroutine that called Run; Inject is the only concurrent entry point
// and only touches the inbox.
type Scheduler struct {
	arena    map[int64]*Instance
	store    *ChannelStore
	clock    *Clock
	nextID   int64
	gen      NameGenerator
	logger   *slog.Logger
	maxSteps int64
	sinks    []Sink
	external []string
	inbox    *inbox

	// ready is the round-robin dispatch order: instance ids with at least
	// one queued event, FIFO by readiness.
	ready    []int64
	readySet map[int64]bool

	memory *MemorySink
	steps  int64
}

// NewScheduler creates a scheduler with an empty arena.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		arena:    make(map[int64]*Instance),
		store:    NewChannelStore(),
		clock:    NewClock(),
		gen:      UUIDv7Generator{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxSteps: DefaultMaxSteps,
		inbox:    newInbox(),
		readySet: make(map[int64]bool),
		memory:   NewMemorySink(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sinks = append(s.sinks, s.memory)
	return s
}

// Store exposes the channel store for inspection in tests.
func (s *Scheduler) Store() *ChannelStore {
	return s.store
}

// Inject offers a payload on an externally named channel. Safe to call
// from any goroutine; the running loop picks it up on its next pass.
// Malformed injections are rejected here, before anything is mutated.
func (s *Scheduler) Inject(channel string, payload term.Value) error {
	if channel == "" {
		return &RuntimeError{
			Code:    ErrCodeMalformedEvent,
			Message: "injection requires a channel name",
		}
	}
	if payload == nil {
		return &RuntimeError{
			Code:    ErrCodeMalformedEvent,
			Message: fmt.Sprintf("injection on %q carries no payload", channel),
		}
	}
	if !s.inbox.Enqueue(Injection{Channel: channel, Payload: payload}) {
		return &RuntimeError{
			Code:    ErrCodeMalformedEvent,
			Message: "injection after run completion",
		}
	}
	return nil
}

// Run executes a root term to quiescence and returns its result. The
// loop is strictly sequential: one event consumed per iteration, chosen
// round-robin over ready instances, so a fixed term and injection order
// always produces an identical trace.
func (s *Scheduler) Run(ctx context.Context, root term.Proc) (*Result, error) {
	defer s.inbox.Close()

	var env *Env
	for _, name := range s.external {
		env = env.Extend(name, term.Channel{ID: name, Caps: term.AllCaps})
	}

	rootInst := s.spawn(root, env, 0, RoleRoot)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.drainInbox()

		id, ok := s.nextReady()
		if !ok {
			if s.inbox.Len() > 0 {
				continue
			}
			break
		}

		inst := s.arena[id]
		if inst == nil {
			continue // cancelled while queued
		}
		ev, ok := inst.dequeue()
		if !ok {
			continue
		}

		out := step(inst, ev, s.gen)
		if !out.Progressed {
			inst.defer_(ev)
			s.markReady(inst)
			continue
		}

		s.steps++
		if s.steps > s.maxSteps {
			return nil, &RuntimeError{
				Code:    ErrCodeQuotaExceeded,
				Message: fmt.Sprintf("run exceeded %d steps", s.maxSteps),
				Details: map[string]string{"max_steps": fmt.Sprintf("%d", s.maxSteps)},
			}
		}

		if err := s.apply(inst, ev, out); err != nil {
			return nil, err
		}
	}

	if err := s.classifyQuiescence(); err != nil {
		return nil, err
	}
	if rootInst.Err != nil {
		return nil, rootInst.Err
	}

	value := term.Value(term.Nil{})
	if rootInst.Result != nil {
		value = rootInst.Result
	}
	return &Result{
		Value:    value,
		Bindings: rootInst.Env.Flatten(),
		Trace:    s.memory.Events(),
		Steps:    s.steps,
	}, nil
}

// apply commits one progressed transition: records the trace event,
// installs the new state and environment, applies the effect sequence in
// order, and handles termination. Nothing else runs in between, so the
// whole commit is atomic with respect to every other step.
func (s *Scheduler) apply(inst *Instance, ev Event, out Outcome) error {
	prev := inst.State
	inst.State = out.State
	inst.Env = out.Env

	trace := TraceEvent{
		Seq:      s.clock.Next(),
		Instance: inst.ID,
		Parent:   inst.Parent,
		Event:    ev.Kind.String(),
		From:     prev.String(),
		To:       out.State.String(),
		Channel:  ev.Channel,
	}
	if ev.Payload != nil {
		trace.Payload = term.Format(ev.Payload)
	}
	if out.State.Terminal() {
		if out.Err != nil {
			trace.Err = out.Err.Error()
		} else if out.Result != nil {
			trace.Result = term.Format(out.Result)
		}
	}
	if err := s.record(trace); err != nil {
		return err
	}

	for _, effect := range out.Effects {
		s.applyEffect(inst, effect)
	}

	if out.State.Terminal() {
		s.finish(inst, out)
		return nil
	}

	inst.requeueDeferred()
	if out.Kick {
		s.deliver(signalEvent(inst.ID))
	} else if len(inst.queue) > 0 {
		s.markReady(inst)
	}
	return nil
}

// applyEffect executes one effect against the arena and channel store.
// Store errors surface as an ERROR event on the requesting instance, so
// capability violations terminate the violator, not the run loop.
func (s *Scheduler) applyEffect(inst *Instance, effect Effect) {
	switch effect.Kind {
	case EffectSpawn:
		child := s.spawn(effect.Term, effect.Env, inst.ID, effect.Role)
		inst.PendingChildren[child.ID] = true

	case EffectPublish:
		var notify int64
		if effect.Notify {
			notify = inst.ID
		}
		match, rerr := s.store.Publish(effect.Chan, effect.Payload, effect.Persistent, inst.ID, notify)
		if rerr != nil {
			s.deliver(Event{Kind: EventError, Target: inst.ID, Err: rerr})
			return
		}
		s.deliverMatch(match)

	case EffectRequest:
		match, rerr := s.store.Request(effect.Chan, effect.Patterns, effect.Mode, inst.ID)
		if rerr != nil {
			s.deliver(Event{Kind: EventError, Target: inst.ID, Err: rerr})
			return
		}
		s.deliverMatch(match)

	case EffectSelect:
		match, rerr := s.store.SelectRace(effect.Arms, inst.ID)
		if rerr != nil {
			s.deliver(Event{Kind: EventError, Target: inst.ID, Err: rerr})
			return
		}
		s.deliverMatch(match)

	case EffectRecheck:
		s.deliverMatch(s.store.Recheck(inst.ID))
	}
}

// deliverMatch turns a resolved rendezvous into events: the receiver gets
// MESSAGE_AVAILABLE with the bindings, and a consumed sync send's owner
// gets CONDITION_MET.
func (s *Scheduler) deliverMatch(match *Match) {
	if match == nil {
		return
	}
	s.deliver(Event{
		Kind:     EventMessageAvailable,
		Target:   match.Continuation,
		Channel:  match.Channel,
		Payload:  match.Payload,
		Bindings: match.Bindings,
		ArmIndex: match.ArmIndex,
	})
	if match.NotifySender != 0 {
		s.deliver(Event{
			Kind:    EventConditionMet,
			Target:  match.NotifySender,
			Channel: match.Channel,
		})
	}
}

// finish handles a terminated instance: records its result, notifies the
// parent per the spawn role, cancels any live descendants on failure, and
// removes the instance from the arena.
func (s *Scheduler) finish(inst *Instance, out Outcome) {
	inst.Result = out.Result
	inst.Err = out.Err

	if inst.Err != nil {
		s.logger.Debug("instance failed",
			slog.Int64("instance", inst.ID),
			slog.String("code", string(inst.Err.Code)),
			slog.String("error", inst.Err.Message))
		s.cancelChildren(inst)
		// Failure teardown retracts the instance's channel entries.
		// Successful termination must not: published messages outlive
		// their sender.
		s.store.RetractOwner(inst.ID)
	}

	parent := s.arena[inst.Parent]
	if parent != nil {
		delete(parent.PendingChildren, inst.ID)
		switch {
		case inst.Err != nil:
			s.deliver(Event{Kind: EventError, Target: parent.ID, Child: inst.ID, Err: inst.Err})
		case inst.Role == RoleOperand, inst.Role == RoleFork:
			s.deliver(Event{
				Kind:   EventExpressionEvaluated,
				Target: parent.ID,
				Child:  inst.ID,
				Value:  inst.Result,
			})
		}
		// Detached successes report nothing; the parent never awaits them.
	}

	s.unready(inst.ID)
	if inst.Role != RoleRoot {
		delete(s.arena, inst.ID)
	}
}

// cancelChildren tears down an instance's live descendant subtree:
// depth-first removal from the arena plus retraction of every channel
// entry the subtree owns. No partial teardown is observable because the
// loop is single-threaded.
func (s *Scheduler) cancelChildren(inst *Instance) {
	var doomed []int64
	var walk func(id int64)
	walk = func(id int64) {
		child := s.arena[id]
		if child == nil {
			return
		}
		doomed = append(doomed, id)
		for grandchild := range child.PendingChildren {
			walk(grandchild)
		}
	}
	for id := range inst.PendingChildren {
		walk(id)
	}
	if len(doomed) == 0 {
		return
	}

	s.store.RetractOwner(doomed...)
	for _, id := range doomed {
		child := s.arena[id]
		child.State = State{Kind: StateTerminated}
		s.unready(id)
		delete(s.arena, id)
	}
	inst.PendingChildren = make(map[int64]bool)
	s.logger.Debug("cancelled subtree",
		slog.Int64("instance", inst.ID),
		slog.Int("count", len(doomed)))
}

// spawn creates an instance in INITIAL and queues its first signal.
func (s *Scheduler) spawn(p term.Proc, env *Env, parent int64, role Role) *Instance {
	s.nextID++
	inst := newInstance(s.nextID, p, env, parent, role)
	s.arena[inst.ID] = inst
	s.deliver(signalEvent(inst.ID))
	return inst
}

// deliver appends an event to its target's queue and marks the target
// ready. Events for unknown (cancelled) instances are dropped.
func (s *Scheduler) deliver(ev Event) {
	inst := s.arena[ev.Target]
	if inst == nil || inst.State.Terminal() {
		return
	}
	inst.enqueue(ev)
	s.markReady(inst)
}

// drainInbox publishes queued external injections. Each injection is one
// async publish on the named channel with full capabilities.
func (s *Scheduler) drainInbox() {
	for {
		inj, ok := s.inbox.TryDequeue()
		if !ok {
			return
		}
		ch := term.Channel{ID: inj.Channel, Caps: term.AllCaps}
		match, rerr := s.store.Publish(ch, inj.Payload, false, 0, 0)
		if rerr != nil {
			// Injections publish with full caps; a store error here is a
			// programming error worth surfacing loudly.
			s.logger.Error("injection rejected",
				slog.String("channel", inj.Channel),
				slog.String("error", rerr.Error()))
			continue
		}
		s.logger.Debug("injected",
			slog.String("channel", inj.Channel),
			slog.String("payload", term.Format(inj.Payload)))
		s.deliverMatch(match)
	}
}

func (s *Scheduler) markReady(inst *Instance) {
	if inst.State.Terminal() || s.readySet[inst.ID] {
		return
	}
	s.readySet[inst.ID] = true
	s.ready = append(s.ready, inst.ID)
}

func (s *Scheduler) nextReady() (int64, bool) {
	for len(s.ready) > 0 {
		id := s.ready[0]
		s.ready = s.ready[1:]
		delete(s.readySet, id)
		inst := s.arena[id]
		if inst == nil || len(inst.queue) == 0 {
			continue
		}
		return id, true
	}
	return 0, false
}

func (s *Scheduler) unready(id int64) {
	delete(s.readySet, id)
}

// classifyQuiescence inspects the arena after the ready set drains. A
// quiet run is fine when every live instance is idle by intent: a
// persistent receiver waiting for work, or an ancestor joining on one.
// Anything else still live is a deadlock and is reported with its state
// and the channels it is stuck on.
func (s *Scheduler) classifyQuiescence() error {
	idleOK := make(map[int64]bool)
	var isIdleOK func(inst *Instance) bool
	isIdleOK = func(inst *Instance) bool {
		if done, seen := idleOK[inst.ID]; seen {
			return done
		}
		idleOK[inst.ID] = false // cycle guard; the tree has none, but cheap
		ok := false
		switch inst.State.Kind {
		case StateReceiving:
			ok = inst.State.Mode == term.ReceivePersistent
		case StateJoining, StateEvaluating:
			ok = true
			for id := range inst.PendingChildren {
				child := s.arena[id]
				if child == nil {
					continue
				}
				if !isIdleOK(child) {
					ok = false
					break
				}
			}
		}
		idleOK[inst.ID] = ok
		return ok
	}

	var blocked []BlockedInstance
	for _, inst := range s.arena {
		if inst.State.Terminal() || isIdleOK(inst) {
			continue
		}
		reason := "no enabling event can arrive"
		if channels := s.store.WaitingChannels(inst.ID); len(channels) > 0 {
			reason = fmt.Sprintf("waiting on channels %v with no matching send", channels)
		} else if inst.State.Kind == StateWaiting {
			reason = "synchronous send never consumed"
		}
		blocked = append(blocked, BlockedInstance{
			ID:     inst.ID,
			State:  inst.State.String(),
			Reason: reason,
		})
	}
	if len(blocked) == 0 {
		return nil
	}
	// Deterministic report order.
	for i := 1; i < len(blocked); i++ {
		for j := i; j > 0 && blocked[j].ID < blocked[j-1].ID; j-- {
			blocked[j], blocked[j-1] = blocked[j-1], blocked[j]
		}
	}
	return &DeadlockError{Blocked: blocked}
}

func (s *Scheduler) record(ev TraceEvent) error {
	if err := multiSink(s.sinks).Record(ev); err != nil {
		return fmt.Errorf("recording trace event %d: %w", ev.Seq, err)
	}
	return nil
}
