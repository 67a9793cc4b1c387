package machine

import "github.com/roach88/rheo/internal/term"

// Env is an immutable-on-write environment: a chain of single-binding
// frames. Extend returns a new frame pointing at the old chain, so child
// machines inherit a frozen snapshot - never a shared mutable reference.
//
// A nil *Env is the valid empty environment.
type Env struct {
	parent *Env
	name   string
	val    term.Value
	moved  bool // tombstone written by a move reference
}

// Extend returns a new environment with name bound to val, shadowing any
// outer binding of the same name. The receiver is unchanged.
func (e *Env) Extend(name string, val term.Value) *Env {
	return &Env{parent: e, name: name, val: val}
}

// ExtendAll binds every entry of bindings in deterministic (sorted name)
// order. The receiver is unchanged.
func (e *Env) ExtendAll(bindings map[string]term.Value) *Env {
	out := e
	for _, name := range term.SortedNames(bindings) {
		out = out.Extend(name, bindings[name])
	}
	return out
}

// Move returns an environment in which name is tombstoned: subsequent
// lookups report the binding as moved. The receiver is unchanged; sibling
// machines holding earlier snapshots still see the original binding.
func (e *Env) Move(name string) *Env {
	return &Env{parent: e, name: name, moved: true}
}

// Lookup resolves a name. The second result distinguishes the three
// outcomes: (value, envFound) for a live binding, (nil, envMoved) for a
// tombstone, (nil, envUnbound) when no frame binds the name.
func (e *Env) Lookup(name string) (term.Value, lookupResult) {
	for frame := e; frame != nil; frame = frame.parent {
		if frame.name == name {
			if frame.moved {
				return nil, envMoved
			}
			return frame.val, envFound
		}
	}
	return nil, envUnbound
}

type lookupResult int

const (
	envFound lookupResult = iota
	envMoved
	envUnbound
)

// Flatten materializes the visible bindings as a map, honoring shadowing
// and tombstones. Used to report a scope's final bindings.
func (e *Env) Flatten() map[string]term.Value {
	out := make(map[string]term.Value)
	seen := make(map[string]bool)
	for frame := e; frame != nil; frame = frame.parent {
		if seen[frame.name] {
			continue
		}
		seen[frame.name] = true
		if !frame.moved {
			out[frame.name] = frame.val
		}
	}
	return out
}
