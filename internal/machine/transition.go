package machine

import (
	"fmt"

	"github.com/roach88/rheo/internal/term"
)

// step is the transition function: given an instance's state and an
// available event, it computes the next state and an ordered effect
// sequence. It never blocks; suspension is modeled by remaining in a
// non-terminal state until an enabling event arrives.
//
// Determinism: for a fixed (state, event, environment, store snapshot)
// tuple the result is identical on every invocation. Non-determinism
// (select races) is resolved entirely by event arrival order, never by
// an internal choice here.
func step(inst *Instance, ev Event, gen NameGenerator) Outcome {
	// TERMINATED is absorbing: no transition leaves it.
	if inst.State.Terminal() {
		return notReady()
	}

	// A child failure terminates this subtree; the error surfaces as the
	// parent's own so a JOINING ancestor never hangs on it.
	if ev.Kind == EventError {
		return fail(inst.Env, ev.Err.propagated(inst.ID))
	}

	switch t := inst.Term.(type) {
	case term.Stop:
		if inst.State.Kind == StateInitial && ev.Kind == EventSignal {
			return terminate(inst.Env, term.Nil{})
		}

	case term.Literal:
		if inst.State.Kind == StateInitial && ev.Kind == EventSignal {
			return terminate(inst.Env, t.Value)
		}

	case term.Var:
		if inst.State.Kind == StateInitial && ev.Kind == EventSignal {
			return readBinding(inst, t.Name, term.RefCopy, false)
		}

	case term.Ref:
		switch {
		case inst.State.Kind == StateInitial && ev.Kind == EventSignal:
			return progress(inst.Env, State{Kind: StateReferencing, RefMode: t.Mode}, true)
		case inst.State.Kind == StateReferencing && ev.Kind == EventSignal:
			return readBinding(inst, t.Name, t.Mode, true)
		}

	case term.Par:
		return stepPar(inst, ev, t)

	case term.New:
		return stepNew(inst, ev, t, gen)

	case term.Send:
		return stepSend(inst, ev, t)

	case term.Receive:
		return stepReceive(inst, ev, t)

	case term.Select:
		return stepSelect(inst, ev, t)

	case term.Cond:
		return stepCond(inst, ev, t)

	case term.Match:
		return stepMatch(inst, ev, t)

	case term.Bundle:
		return stepBundle(inst, ev, t)

	case term.Operation:
		return stepOperation(inst, ev, t)

	case term.Collect:
		return stepCollect(inst, ev, t)

	case term.Interpolate:
		return stepInterpolate(inst, ev, t)

	case term.Conjoin:
		return stepConnective(inst, ev, StateConjoining, t.Left, t.Right)

	case term.Disjoin:
		return stepConnective(inst, ev, StateDisjoining, t.Left, t.Right)

	case term.Negate:
		return stepNegate(inst, ev, t)
	}

	return notReady()
}

// readBinding resolves a variable or reference read against the
// environment, applying copy or move semantics.
func readBinding(inst *Instance, name string, mode term.RefMode, isRef bool) Outcome {
	val, res := inst.Env.Lookup(name)
	switch res {
	case envMoved:
		return fail(inst.Env, &RuntimeError{
			Code:     ErrCodeMovedValue,
			Message:  fmt.Sprintf("read of moved binding %q", name),
			Instance: inst.ID,
		})
	case envUnbound:
		return fail(inst.Env, &RuntimeError{
			Code:     ErrCodeUnboundName,
			Message:  fmt.Sprintf("unbound name %q", name),
			Instance: inst.ID,
		})
	}
	if isRef && mode == term.RefMove {
		return terminate(inst.Env.Move(name), val)
	}
	if isRef && mode == term.RefCopy {
		return terminate(inst.Env, term.Copy(val))
	}
	return terminate(inst.Env, val)
}

// evalOperand suspends in EVALUATING(index) and spawns a child machine
// for the operand. Operands run strictly sequentially: the child reaches
// TERMINATED before the next operand starts.
func evalOperand(inst *Instance, index int, operand term.Proc) Outcome {
	return progress(inst.Env, State{Kind: StateEvaluating, Index: index}, false,
		spawnEffect(operand, inst.Env, RoleOperand))
}

// stepPar drives parallel composition:
// INITIAL -> FORKING (spawn one child per operand) -> JOINING -> TERMINATED.
// Join is all-or-nothing: a single unterminated child keeps the parent in
// JOINING indefinitely.
func stepPar(inst *Instance, ev Event, t term.Par) Outcome {
	switch inst.State.Kind {
	case StateInitial:
		if ev.Kind != EventSignal {
			return notReady()
		}
		effects := make([]Effect, len(t.Procs))
		for i, p := range t.Procs {
			effects[i] = spawnEffect(p, inst.Env, RoleFork)
		}
		return progress(inst.Env, State{Kind: StateForking}, true, effects...)

	case StateForking:
		if ev.Kind != EventSignal {
			return notReady()
		}
		if len(inst.PendingChildren) == 0 {
			return terminate(inst.Env, term.Nil{})
		}
		return progress(inst.Env, State{Kind: StateJoining}, false)

	case StateJoining:
		// Children report termination as EXPRESSION_EVALUATED; the
		// scheduler has already removed them from PendingChildren.
		if ev.Kind != EventExpressionEvaluated && ev.Kind != EventSignal {
			return notReady()
		}
		if len(inst.PendingChildren) == 0 {
			return terminate(inst.Env, term.Nil{})
		}
		return progress(inst.Env, State{Kind: StateJoining}, false)
	}
	return notReady()
}

// stepNew drives name creation: a chain of BINDING states, one per
// introduced name, each minting a fresh unforgeable channel, then a child
// machine for the body.
func stepNew(inst *Instance, ev Event, t term.New, gen NameGenerator) Outcome {
	switch inst.State.Kind {
	case StateInitial:
		if ev.Kind != EventSignal {
			return notReady()
		}
		if len(t.Names) == 0 {
			return evalOperand(inst, 0, t.Body)
		}
		return progress(inst.Env, State{Kind: StateBinding, Index: 0, Name: t.Names[0]}, true)

	case StateBinding:
		if ev.Kind != EventSignal {
			return notReady()
		}
		i := inst.State.Index
		env := inst.Env.Extend(t.Names[i], term.Channel{ID: gen.Fresh(), Caps: term.AllCaps})
		if i+1 < len(t.Names) {
			return progress(env, State{Kind: StateBinding, Index: i + 1, Name: t.Names[i+1]}, true)
		}
		return progress(env, State{Kind: StateEvaluating, Index: 0}, false,
			spawnEffect(t.Body, env, RoleOperand))

	case StateEvaluating:
		if ev.Kind != EventExpressionEvaluated {
			return notReady()
		}
		return terminate(inst.Env, ev.Value)
	}
	return notReady()
}

// stepSend drives a send:
// INITIAL -> EVALUATING(chan) -> EVALUATING(arg...) -> CONSTRUCTING ->
// SENDING -> TERMINATED (async) or WAITING -> continuation (sync).
func stepSend(inst *Instance, ev Event, t term.Send) Outcome {
	thenIndex := len(t.Args) + 1

	switch inst.State.Kind {
	case StateInitial:
		if ev.Kind != EventSignal {
			return notReady()
		}
		return evalOperand(inst, 0, t.Chan)

	case StateEvaluating:
		switch {
		case ev.Kind == EventExpressionEvaluated && inst.State.Index < thenIndex:
			inst.Operands = append(inst.Operands, ev.Value)
			next := inst.State.Index + 1
			if next <= len(t.Args) {
				return evalOperand(inst, next, t.Args[next-1])
			}
			return progress(inst.Env, State{Kind: StateConstructing}, true)
		case ev.Kind == EventExpressionEvaluated && inst.State.Index == thenIndex:
			// Sync-send continuation finished.
			return terminate(inst.Env, ev.Value)
		}

	case StateConstructing:
		if ev.Kind != EventSignal {
			return notReady()
		}
		if _, ok := inst.Operands[0].(term.Channel); !ok {
			return fail(inst.Env, typeMismatch(inst.ID, "send target", "channel", inst.Operands[0]))
		}
		switch len(t.Args) {
		case 0:
			inst.payload = term.Nil{}
		case 1:
			inst.payload = inst.Operands[1]
		default:
			inst.payload = term.Tuple(append([]term.Value(nil), inst.Operands[1:]...))
		}
		return progress(inst.Env, State{Kind: StateSending}, true)

	case StateSending:
		if ev.Kind != EventSignal {
			return notReady()
		}
		publish := Effect{
			Kind:       EffectPublish,
			Chan:       inst.Operands[0].(term.Channel),
			Payload:    inst.payload,
			Persistent: t.Persistent,
			Notify:     t.Sync,
		}
		if t.Sync {
			return progress(inst.Env, State{Kind: StateWaiting}, false, publish)
		}
		// Async sends terminate immediately; they never wait for a
		// matching receiver.
		return terminate(inst.Env, term.Nil{}, publish)

	case StateWaiting:
		if ev.Kind != EventConditionMet {
			return notReady()
		}
		if t.Then == nil {
			return terminate(inst.Env, term.Nil{})
		}
		return evalOperand(inst, thenIndex, t.Then)
	}
	return notReady()
}

// stepReceive drives a receive:
// INITIAL -> EVALUATING(chan) -> RECEIVING(mode) -> BINDING(name...) ->
// body -> TERMINATED. Persistent receivers re-enter RECEIVING after
// spawning each body instead of terminating (replication).
func stepReceive(inst *Instance, ev Event, t term.Receive) Outcome {
	switch inst.State.Kind {
	case StateInitial:
		if ev.Kind != EventSignal {
			return notReady()
		}
		return evalOperand(inst, 0, t.Chan)

	case StateEvaluating:
		switch inst.State.Index {
		case 0:
			if ev.Kind != EventExpressionEvaluated {
				return notReady()
			}
			ch, ok := ev.Value.(term.Channel)
			if !ok {
				return fail(inst.Env, typeMismatch(inst.ID, "receive source", "channel", ev.Value))
			}
			inst.Operands = append(inst.Operands, ch)
			return progress(inst.Env, State{Kind: StateReceiving, Mode: t.Mode}, false, Effect{
				Kind:     EffectRequest,
				Chan:     ch,
				Patterns: t.Patterns,
				Mode:     t.Mode,
			})
		case 1:
			if ev.Kind != EventExpressionEvaluated {
				return notReady()
			}
			return terminate(inst.Env, ev.Value)
		}

	case StateReceiving:
		if ev.Kind != EventMessageAvailable {
			return notReady()
		}
		if t.Mode == term.ReceivePersistent {
			// Replication: spawn a detached body per match and keep
			// listening. The parent environment is untouched; each body
			// gets its own snapshot extended with this match's bindings.
			body := spawnEffect(t.Body, inst.Env.ExtendAll(ev.Bindings), RoleDetached)
			return progress(inst.Env, State{Kind: StateReceiving, Mode: t.Mode}, false,
				body, Effect{Kind: EffectRecheck})
		}
		return startBinding(inst, term.BoundNames(patternRow(t.Patterns)), ev)

	case StateBinding:
		if ev.Kind != EventSignal {
			return notReady()
		}
		return continueBinding(inst, func(env *Env) Outcome {
			return progress(env, State{Kind: StateEvaluating, Index: 1}, false,
				spawnEffect(t.Body, env, RoleOperand))
		})
	}
	return notReady()
}

// stepSelect drives non-deterministic choice:
// INITIAL -> EVALUATING(every arm channel) -> RECEIVING(RACE) -> exactly
// one arm's BINDING/body -> TERMINATED.
func stepSelect(inst *Instance, ev Event, t term.Select) Outcome {
	bodyIndex := len(t.Arms)

	switch inst.State.Kind {
	case StateInitial:
		if ev.Kind != EventSignal {
			return notReady()
		}
		return evalOperand(inst, 0, t.Arms[0].Chan)

	case StateEvaluating:
		if ev.Kind != EventExpressionEvaluated {
			return notReady()
		}
		if inst.State.Index == bodyIndex {
			return terminate(inst.Env, ev.Value)
		}
		ch, ok := ev.Value.(term.Channel)
		if !ok {
			return fail(inst.Env, typeMismatch(inst.ID, "select source", "channel", ev.Value))
		}
		inst.Operands = append(inst.Operands, ch)
		next := inst.State.Index + 1
		if next < len(t.Arms) {
			return evalOperand(inst, next, t.Arms[next].Chan)
		}
		arms := make([]RaceArm, len(t.Arms))
		for i, arm := range t.Arms {
			arms[i] = RaceArm{
				Chan:     inst.Operands[i].(term.Channel),
				Patterns: arm.Patterns,
				ArmIndex: i,
			}
		}
		return progress(inst.Env, State{Kind: StateReceiving, Mode: RaceMode}, false,
			Effect{Kind: EffectSelect, Arms: arms})

	case StateReceiving:
		if ev.Kind != EventMessageAvailable {
			return notReady()
		}
		inst.armIndex = ev.ArmIndex
		arm := t.Arms[ev.ArmIndex]
		return startBinding(inst, term.BoundNames(patternRow(arm.Patterns)), ev)

	case StateBinding:
		if ev.Kind != EventSignal {
			return notReady()
		}
		return continueBinding(inst, func(env *Env) Outcome {
			return progress(env, State{Kind: StateEvaluating, Index: bodyIndex}, false,
				spawnEffect(t.Arms[inst.armIndex].Body, env, RoleOperand))
		})
	}
	return notReady()
}

// stepCond drives a conditional: exactly one branch is instantiated; the
// other is never spawned (no speculative execution).
func stepCond(inst *Instance, ev Event, t term.Cond) Outcome {
	switch inst.State.Kind {
	case StateInitial:
		if ev.Kind != EventSignal {
			return notReady()
		}
		return evalOperand(inst, 0, t.If)

	case StateEvaluating:
		if ev.Kind != EventExpressionEvaluated {
			return notReady()
		}
		if inst.State.Index == 1 {
			return terminate(inst.Env, ev.Value)
		}
		inst.Operands = append(inst.Operands, ev.Value)
		return progress(inst.Env, State{Kind: StateBranching}, true)

	case StateBranching:
		if ev.Kind != EventSignal {
			return notReady()
		}
		cond, ok := inst.Operands[0].(term.Bool)
		if !ok {
			return fail(inst.Env, typeMismatch(inst.ID, "condition", "bool", inst.Operands[0]))
		}
		branch := t.Then
		if !bool(cond) {
			branch = t.Else
		}
		if branch == nil {
			return terminate(inst.Env, term.Nil{})
		}
		return evalOperand(inst, 1, branch)
	}
	return notReady()
}

// stepMatch drives pattern dispatch: cases are tried in source order, the
// first success wins, and exhaustion is a fatal error for this instance
// (unmatched value), not silent termination.
func stepMatch(inst *Instance, ev Event, t term.Match) Outcome {
	switch inst.State.Kind {
	case StateInitial:
		if ev.Kind != EventSignal {
			return notReady()
		}
		return evalOperand(inst, 0, t.Target)

	case StateEvaluating:
		if ev.Kind != EventExpressionEvaluated {
			return notReady()
		}
		if inst.State.Index == 1 {
			return terminate(inst.Env, ev.Value)
		}
		inst.Operands = append(inst.Operands, ev.Value)
		return progress(inst.Env, State{Kind: StateMatching, Index: 0}, true)

	case StateMatching:
		if ev.Kind != EventSignal {
			return notReady()
		}
		i := inst.State.Index
		target := inst.Operands[0]
		if i >= len(t.Cases) {
			attempted := make([]string, len(t.Cases))
			for j, c := range t.Cases {
				b, err := term.MarshalPattern(c.Pattern)
				if err != nil {
					attempted[j] = fmt.Sprintf("<unrenderable: %v>", err)
					continue
				}
				attempted[j] = string(b)
			}
			return fail(inst.Env, NewMatchExhaustedError(inst.ID, term.Format(target), attempted))
		}
		bindings, ok := MatchPattern(t.Cases[i].Pattern, target)
		if !ok {
			// Match failure is not an error - silently retry the next
			// candidate in source order.
			return progress(inst.Env, State{Kind: StateMatching, Index: i + 1}, true)
		}
		inst.armIndex = i
		return startBinding(inst, term.BoundNames(t.Cases[i].Pattern), Event{
			Kind:     EventMessageAvailable,
			Bindings: bindings,
			Payload:  target,
		})

	case StateBinding:
		if ev.Kind != EventSignal {
			return notReady()
		}
		return continueBinding(inst, func(env *Env) Outcome {
			return progress(env, State{Kind: StateEvaluating, Index: 1}, false,
				spawnEffect(t.Cases[inst.armIndex].Body, env, RoleOperand))
		})
	}
	return notReady()
}

// stepBundle restricts an evaluated channel's capabilities. Violations of
// the restriction are detected later, at the point a forbidden publish or
// request is attempted.
func stepBundle(inst *Instance, ev Event, t term.Bundle) Outcome {
	switch inst.State.Kind {
	case StateInitial:
		if ev.Kind != EventSignal {
			return notReady()
		}
		return evalOperand(inst, 0, t.Target)

	case StateEvaluating:
		if ev.Kind != EventExpressionEvaluated {
			return notReady()
		}
		inst.Operands = append(inst.Operands, ev.Value)
		return progress(inst.Env, State{Kind: StateBundling, BundleMode: t.Mode}, true)

	case StateBundling:
		if ev.Kind != EventSignal {
			return notReady()
		}
		ch, ok := inst.Operands[0].(term.Channel)
		if !ok {
			return fail(inst.Env, typeMismatch(inst.ID, "bundle target", "channel", inst.Operands[0]))
		}
		return terminate(inst.Env, term.Channel{ID: ch.ID, Caps: ch.Caps.Restrict(t.Mode)})
	}
	return notReady()
}

// stepOperation evaluates operands left to right, then applies the
// operator. "and"/"or" short-circuit: the right operand is never
// instantiated when the left alone decides the result.
func stepOperation(inst *Instance, ev Event, t term.Operation) Outcome {
	switch inst.State.Kind {
	case StateInitial:
		if ev.Kind != EventSignal {
			return notReady()
		}
		if len(t.Operands) == 0 {
			return progress(inst.Env, State{Kind: StateOperating, Op: t.Op}, true)
		}
		return evalOperand(inst, 0, t.Operands[0])

	case StateEvaluating:
		if ev.Kind != EventExpressionEvaluated {
			return notReady()
		}
		inst.Operands = append(inst.Operands, ev.Value)
		i := inst.State.Index

		// Short-circuit: false and Q never instantiates Q; true or Q
		// likewise.
		if i == 0 && len(t.Operands) == 2 {
			if left, ok := ev.Value.(term.Bool); ok {
				if (t.Op == "and" && !bool(left)) || (t.Op == "or" && bool(left)) {
					return progress(inst.Env, State{Kind: StateOperating, Op: t.Op}, true)
				}
			}
		}

		if i+1 < len(t.Operands) {
			return evalOperand(inst, i+1, t.Operands[i+1])
		}
		return progress(inst.Env, State{Kind: StateOperating, Op: t.Op}, true)

	case StateOperating:
		if ev.Kind != EventSignal {
			return notReady()
		}
		result, rerr := applyOp(inst.ID, t.Op, inst.Operands)
		if rerr != nil {
			return fail(inst.Env, rerr)
		}
		return terminate(inst.Env, result)
	}
	return notReady()
}

// stepCollect evaluates each element, then builds the collection.
func stepCollect(inst *Instance, ev Event, t term.Collect) Outcome {
	switch inst.State.Kind {
	case StateInitial:
		if ev.Kind != EventSignal {
			return notReady()
		}
		if len(t.Elems) == 0 {
			return progress(inst.Env, State{Kind: StateCollecting, CollectKind: t.Kind}, true)
		}
		return evalOperand(inst, 0, t.Elems[0])

	case StateEvaluating:
		if ev.Kind != EventExpressionEvaluated {
			return notReady()
		}
		inst.Operands = append(inst.Operands, ev.Value)
		next := inst.State.Index + 1
		if next < len(t.Elems) {
			return evalOperand(inst, next, t.Elems[next])
		}
		return progress(inst.Env, State{Kind: StateCollecting, CollectKind: t.Kind}, true)

	case StateCollecting:
		if ev.Kind != EventSignal {
			return notReady()
		}
		elems := append([]term.Value(nil), inst.Operands...)
		switch t.Kind {
		case term.CollectList:
			return terminate(inst.Env, term.List(elems))
		case term.CollectTuple:
			return terminate(inst.Env, term.Tuple(elems))
		case term.CollectSet:
			return terminate(inst.Env, term.NewSet(elems...))
		case term.CollectMap:
			if len(elems)%2 != 0 {
				return fail(inst.Env, &RuntimeError{
					Code:     ErrCodeTypeMismatch,
					Message:  "map constructor requires an even number of elements",
					Instance: inst.ID,
				})
			}
			return terminate(inst.Env, term.NewMap(elems...))
		}
	}
	return notReady()
}

// stepInterpolate evaluates the template and argument map, then
// substitutes ${key} occurrences.
func stepInterpolate(inst *Instance, ev Event, t term.Interpolate) Outcome {
	switch inst.State.Kind {
	case StateInitial:
		if ev.Kind != EventSignal {
			return notReady()
		}
		return evalOperand(inst, 0, t.Template)

	case StateEvaluating:
		if ev.Kind != EventExpressionEvaluated {
			return notReady()
		}
		inst.Operands = append(inst.Operands, ev.Value)
		if inst.State.Index == 0 {
			return evalOperand(inst, 1, t.Args)
		}
		return progress(inst.Env, State{Kind: StateInterpolating}, true)

	case StateInterpolating:
		if ev.Kind != EventSignal {
			return notReady()
		}
		tmpl, ok := inst.Operands[0].(term.String)
		if !ok {
			return fail(inst.Env, typeMismatch(inst.ID, "interpolation template", "string", inst.Operands[0]))
		}
		args, ok := inst.Operands[1].(term.Map)
		if !ok {
			return fail(inst.Env, typeMismatch(inst.ID, "interpolation arguments", "map", inst.Operands[1]))
		}
		out, rerr := interpolate(inst.ID, string(tmpl), args)
		if rerr != nil {
			return fail(inst.Env, rerr)
		}
		return terminate(inst.Env, term.String(out))
	}
	return notReady()
}

// stepConnective evaluates both operands then builds a conjunction or
// disjunction connective, flattening nested connectives of the same op.
func stepConnective(inst *Instance, ev Event, kind StateKind, left, right term.Proc) Outcome {
	op := term.ConnAnd
	if kind == StateDisjoining {
		op = term.ConnOr
	}

	switch inst.State.Kind {
	case StateInitial:
		if ev.Kind != EventSignal {
			return notReady()
		}
		return evalOperand(inst, 0, left)

	case StateEvaluating:
		if ev.Kind != EventExpressionEvaluated {
			return notReady()
		}
		inst.Operands = append(inst.Operands, ev.Value)
		if inst.State.Index == 0 {
			return evalOperand(inst, 1, right)
		}
		return progress(inst.Env, State{Kind: kind}, true)

	case kind:
		if ev.Kind != EventSignal {
			return notReady()
		}
		var operands []term.Value
		for _, v := range inst.Operands {
			if conn, ok := v.(term.Connective); ok && conn.Op == op {
				operands = append(operands, conn.Operands...)
				continue
			}
			operands = append(operands, v)
		}
		return terminate(inst.Env, term.Connective{Op: op, Operands: operands})
	}
	return notReady()
}

// stepNegate negates a boolean directly; any other value becomes a
// negation connective usable as a pattern.
func stepNegate(inst *Instance, ev Event, t term.Negate) Outcome {
	switch inst.State.Kind {
	case StateInitial:
		if ev.Kind != EventSignal {
			return notReady()
		}
		return evalOperand(inst, 0, t.Body)

	case StateEvaluating:
		if ev.Kind != EventExpressionEvaluated {
			return notReady()
		}
		inst.Operands = append(inst.Operands, ev.Value)
		return progress(inst.Env, State{Kind: StateNegating}, true)

	case StateNegating:
		if ev.Kind != EventSignal {
			return notReady()
		}
		if b, ok := inst.Operands[0].(term.Bool); ok {
			return terminate(inst.Env, term.Bool(!bool(b)))
		}
		return terminate(inst.Env, term.Connective{Op: term.ConnNot, Operands: []term.Value{inst.Operands[0]}})
	}
	return notReady()
}

// startBinding begins the BINDING chain for a delivered match: one
// BINDING state per received name, in pattern declaration order, then the
// continuation supplied by the construct.
func startBinding(inst *Instance, names []string, ev Event) Outcome {
	inst.bindValues = ev.Bindings
	inst.payload = ev.Payload
	inst.bindNames = inst.bindNames[:0]
	for _, name := range names {
		if _, ok := ev.Bindings[name]; ok {
			inst.bindNames = append(inst.bindNames, name)
		}
	}
	if len(inst.bindNames) == 0 {
		// Nothing to bind; jump straight to the post-binding stage via
		// an empty BINDING step.
		return progress(inst.Env, State{Kind: StateBinding, Index: 0}, true)
	}
	return progress(inst.Env, State{Kind: StateBinding, Index: 0, Name: inst.bindNames[0]}, true)
}

// continueBinding advances the BINDING chain one name per step; when the
// chain is exhausted it hands the extended environment to the
// construct-specific continuation.
func continueBinding(inst *Instance, done func(env *Env) Outcome) Outcome {
	i := inst.State.Index
	env := inst.Env
	if i < len(inst.bindNames) {
		name := inst.bindNames[i]
		env = env.Extend(name, inst.bindValues[name])
		if i+1 < len(inst.bindNames) {
			return progress(env, State{Kind: StateBinding, Index: i + 1, Name: inst.bindNames[i+1]}, true)
		}
	}
	return done(env)
}

// patternRow wraps a receive's pattern list so BoundNames sees the
// declaration order across the whole row.
func patternRow(patterns []term.Pattern) term.Pattern {
	if len(patterns) == 1 {
		return patterns[0]
	}
	return term.PTuple{Elems: patterns}
}

func typeMismatch(instance int64, what, want string, got term.Value) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeTypeMismatch,
		Message:  fmt.Sprintf("%s must be a %s, got %s", what, want, term.Format(got)),
		Instance: instance,
		Details:  map[string]string{"got": term.Format(got)},
	}
}
