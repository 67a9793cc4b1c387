package term

// Pattern is the sealed interface for structural patterns.
// Only the pattern types in this package implement it.
type Pattern interface {
	pattern() // Sealed - only these types implement it
}

// PWildcard matches any value and binds nothing.
type PWildcard struct{}

// PBind matches any value and binds it to Name.
type PBind struct {
	Name string
}

// PValue matches a value structurally equal to Value. If Value is a
// Connective the match follows connective semantics instead.
type PValue struct {
	Value Value
}

// PList matches a List with the same arity, element-wise. If Rest is
// non-empty the pattern matches lists of length >= len(Elems) and binds
// the remainder to Rest.
type PList struct {
	Elems []Pattern
	Rest  string
}

// PTuple matches a Tuple with the same arity, element-wise.
type PTuple struct {
	Elems []Pattern
}

// PMapEntry is one required entry of a PMap.
type PMapEntry struct {
	Key Value
	Val Pattern
}

// PMap matches a Map containing every listed entry. Extra entries are
// permitted unless Exact is set.
type PMap struct {
	Entries []PMapEntry
	Exact   bool
}

// PAnd matches when every sub-pattern matches; bindings accumulate across
// operands and must agree on shared names.
type PAnd struct {
	Pats []Pattern
}

// POr matches when any sub-pattern matches; the first matching operand's
// bindings win.
type POr struct {
	Pats []Pattern
}

// PNot matches when the sub-pattern does not. It binds nothing.
type PNot struct {
	Pat Pattern
}

func (PWildcard) pattern() {}
func (PBind) pattern()     {}
func (PValue) pattern()    {}
func (PList) pattern()     {}
func (PTuple) pattern()    {}
func (PMap) pattern()      {}
func (PAnd) pattern()      {}
func (POr) pattern()       {}
func (PNot) pattern()      {}

// BoundNames collects the names a pattern can bind, in left-to-right
// order without duplicates. Used by validation and by receive binding.
func BoundNames(p Pattern) []string {
	var names []string
	seen := make(map[string]bool)
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	var walk func(Pattern)
	walk = func(p Pattern) {
		switch pat := p.(type) {
		case PBind:
			add(pat.Name)
		case PList:
			for _, e := range pat.Elems {
				walk(e)
			}
			add(pat.Rest)
		case PTuple:
			for _, e := range pat.Elems {
				walk(e)
			}
		case PMap:
			for _, e := range pat.Entries {
				walk(e.Val)
			}
		case PAnd:
			for _, e := range pat.Pats {
				walk(e)
			}
		case POr:
			for _, e := range pat.Pats {
				walk(e)
			}
		case PNot:
			// Negation binds nothing.
		}
	}
	walk(p)
	return names
}
