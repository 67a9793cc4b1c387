package term

import (
	"fmt"
	"sort"
	"strings"
)

// Value is the sealed interface for runtime values.
// Only Nil, Bool, Int, String, List, Tuple, Set, Map, Channel, and
// Connective implement it. NO floats - floats are forbidden (they break
// deterministic replay and canonical hashing).
type Value interface {
	value() // Sealed - only these types implement it
}

// Nil is the absent value, the result of Stop and of processes that
// produce nothing.
type Nil struct{}

// Bool is a boolean value.
type Bool bool

// Int is an integer value. Always int64, never float.
type Int int64

// String is a string value.
type String string

// List is an ordered sequence of values.
type List []Value

// Tuple is a fixed-arity ordered sequence of values.
type Tuple []Value

// Set is a deduplicated collection with deterministic (insertion) order.
// Construct with NewSet to enforce deduplication.
type Set []Value

// MapPair is one key/value entry of a Map.
type MapPair struct {
	Key Value
	Val Value
}

// Map is an ordered sequence of key/value pairs with unique keys.
// Ordering is deterministic (insertion order, last write wins in place),
// never Go map iteration order. Construct with NewMap.
type Map []MapPair

// Caps are the channel capability bits a bundle may strip.
type Caps struct {
	Read  bool
	Write bool
}

// AllCaps is the unrestricted capability set fresh channels carry.
var AllCaps = Caps{Read: true, Write: true}

// Restrict intersects the capability set with a bundle mode.
// Restriction only removes bits; it can never restore them.
func (c Caps) Restrict(mode BundleMode) Caps {
	switch mode {
	case BundleWrite:
		return Caps{Read: false, Write: c.Write}
	case BundleRead:
		return Caps{Read: c.Read, Write: false}
	case BundleEquiv:
		return Caps{}
	default:
		return c
	}
}

// Channel is an opaque unforgeable channel identifier plus the capability
// bits the holder obtained it with. Identity is the ID alone; two values
// with the same ID name the same rendezvous point regardless of caps.
type Channel struct {
	ID   string
	Caps Caps
}

// ConnOp tags a connective value.
type ConnOp string

const (
	ConnAnd ConnOp = "and"
	ConnOr  ConnOp = "or"
	ConnNot ConnOp = "not"
)

// Connective is a logical combination of values usable as a pattern:
// a payload matches ConnAnd if it matches every operand, ConnOr if it
// matches any operand, ConnNot if it matches no operand.
type Connective struct {
	Op       ConnOp
	Operands []Value
}

func (Nil) value()        {}
func (Bool) value()       {}
func (Int) value()        {}
func (String) value()     {}
func (List) value()       {}
func (Tuple) value()      {}
func (Set) value()        {}
func (Map) value()        {}
func (Channel) value()    {}
func (Connective) value() {}

// NewSet builds a Set from values, dropping structural duplicates while
// preserving first-occurrence order.
func NewSet(vals ...Value) Set {
	out := make(Set, 0, len(vals))
	for _, v := range vals {
		dup := false
		for _, have := range out {
			if Equal(have, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

// NewMap builds a Map from alternating key, value arguments. Later
// occurrences of a structurally equal key overwrite in place.
func NewMap(kvs ...Value) Map {
	if len(kvs)%2 != 0 {
		panic("NewMap: odd number of arguments")
	}
	out := make(Map, 0, len(kvs)/2)
	for i := 0; i < len(kvs); i += 2 {
		out = out.Put(kvs[i], kvs[i+1])
	}
	return out
}

// Put returns the map with key set to val, overwriting in place if a
// structurally equal key exists. The receiver is not mutated.
func (m Map) Put(key, val Value) Map {
	out := make(Map, len(m), len(m)+1)
	copy(out, m)
	for i, p := range out {
		if Equal(p.Key, key) {
			out[i].Val = val
			return out
		}
	}
	return append(out, MapPair{Key: key, Val: val})
}

// Get looks up a structurally equal key.
func (m Map) Get(key Value) (Value, bool) {
	for _, p := range m {
		if Equal(p.Key, key) {
			return p.Val, true
		}
	}
	return nil, false
}

// Equal reports structural equality of two values.
// Channels compare by ID only - capability bits do not change identity.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Nil:
		_, ok := b.(Nil)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		return ok && equalSeq(av, bv)
	case Tuple:
		bv, ok := b.(Tuple)
		return ok && equalSeq(av, bv)
	case Set:
		bv, ok := b.(Set)
		return ok && equalSetElems(av, bv)
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av) != len(bv) {
			return false
		}
		for _, p := range av {
			got, found := bv.Get(p.Key)
			if !found || !Equal(p.Val, got) {
				return false
			}
		}
		return true
	case Channel:
		bv, ok := b.(Channel)
		return ok && av.ID == bv.ID
	case Connective:
		bv, ok := b.(Connective)
		return ok && av.Op == bv.Op && equalSeq(av.Operands, bv.Operands)
	default:
		return false
	}
}

func equalSeq(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// equalSetElems compares sets as unordered collections.
func equalSetElems(a, b Set) bool {
	if len(a) != len(b) {
		return false
	}
	for _, av := range a {
		found := false
		for _, bv := range b {
			if Equal(av, bv) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Copy produces a deep copy of a value. Channels are identifiers, so the
// copy names the same channel.
func Copy(v Value) Value {
	switch val := v.(type) {
	case List:
		out := make(List, len(val))
		for i, e := range val {
			out[i] = Copy(e)
		}
		return out
	case Tuple:
		out := make(Tuple, len(val))
		for i, e := range val {
			out[i] = Copy(e)
		}
		return out
	case Set:
		out := make(Set, len(val))
		for i, e := range val {
			out[i] = Copy(e)
		}
		return out
	case Map:
		out := make(Map, len(val))
		for i, p := range val {
			out[i] = MapPair{Key: Copy(p.Key), Val: Copy(p.Val)}
		}
		return out
	case Connective:
		out := Connective{Op: val.Op, Operands: make([]Value, len(val.Operands))}
		for i, e := range val.Operands {
			out.Operands[i] = Copy(e)
		}
		return out
	default:
		// Nil, Bool, Int, String, Channel are immutable scalars.
		return v
	}
}

// Format renders a value for diagnostics and string interpolation.
func Format(v Value) string {
	switch val := v.(type) {
	case nil:
		return "<invalid>"
	case Nil:
		return "Nil"
	case Bool:
		if val {
			return "true"
		}
		return "false"
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case String:
		return string(val)
	case List:
		return "[" + formatSeq(val) + "]"
	case Tuple:
		return "(" + formatSeq(val) + ")"
	case Set:
		return "Set(" + formatSeq(val) + ")"
	case Map:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = Format(p.Key) + ": " + Format(p.Val)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case Channel:
		return "@" + val.ID
	case Connective:
		return string(val.Op) + "(" + formatSeq(val.Operands) + ")"
	default:
		return fmt.Sprintf("<%T>", v)
	}
}

func formatSeq(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = Format(v)
	}
	return strings.Join(parts, ", ")
}

// SortedNames returns binding names in lexical order for deterministic
// reporting of final environments.
func SortedNames(bindings map[string]Value) []string {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
