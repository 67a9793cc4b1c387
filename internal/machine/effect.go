package machine

import "github.com/roach88/rheo/internal/term"

// EffectKind enumerates the effect operations a transition may request.
type EffectKind int

const (
	// EffectSpawn creates a child instance.
	EffectSpawn EffectKind = iota + 1
	// EffectPublish offers a message through the channel store.
	EffectPublish
	// EffectRequest registers a receive through the channel store.
	EffectRequest
	// EffectSelect registers a racing receive across several channels.
	EffectSelect
	// EffectRecheck retries a registered persistent receive against the
	// pending sends.
	EffectRecheck
)

// Effect is one element of a transition's ordered effect sequence. The
// scheduler applies effects atomically with respect to the step that
// produced them: no other step observes a partially applied sequence.
type Effect struct {
	Kind EffectKind

	// EffectSpawn
	Term term.Proc
	Env  *Env
	Role Role

	// EffectPublish / EffectRequest / EffectSelect
	Chan       term.Channel
	Payload    term.Value
	Persistent bool
	Notify     bool // acknowledge the publishing instance on consumption
	Patterns   []term.Pattern
	Mode       term.ReceiveMode
	Arms       []RaceArm
}

// Outcome is the result of one transition invocation: either Progressed
// with a new state and effects, or NotReady (Progressed == false), which
// means the event does not enable any transition from the current state.
// NotReady is not an error; the event stays available.
type Outcome struct {
	Progressed bool
	State      State
	Env        *Env
	Result     term.Value    // set when State is TERMINATED successfully
	Err        *RuntimeError // set when State is TERMINATED with a failure
	Kick       bool          // self-signal: the machine can take another local step
	Effects    []Effect
}

func notReady() Outcome {
	return Outcome{}
}

func progress(env *Env, s State, kick bool, effects ...Effect) Outcome {
	return Outcome{Progressed: true, State: s, Env: env, Kick: kick, Effects: effects}
}

func terminate(env *Env, result term.Value, effects ...Effect) Outcome {
	return Outcome{
		Progressed: true,
		State:      State{Kind: StateTerminated},
		Env:        env,
		Result:     result,
		Effects:    effects,
	}
}

func fail(env *Env, err *RuntimeError) Outcome {
	return Outcome{
		Progressed: true,
		State:      State{Kind: StateTerminated},
		Env:        env,
		Err:        err,
	}
}

func spawnEffect(p term.Proc, env *Env, role Role) Effect {
	return Effect{Kind: EffectSpawn, Term: p, Env: env, Role: role}
}
