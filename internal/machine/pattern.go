package machine

import "github.com/roach88/rheo/internal/term"

// MatchPattern structurally matches a value against a pattern, producing
// a binding set on success and nothing on failure. Failure is not an
// error - it just means "no match" and the caller tries the next
// candidate.
func MatchPattern(pat term.Pattern, val term.Value) (map[string]term.Value, bool) {
	switch p := pat.(type) {
	case term.PWildcard:
		return map[string]term.Value{}, true

	case term.PBind:
		return map[string]term.Value{p.Name: val}, true

	case term.PValue:
		if conn, ok := p.Value.(term.Connective); ok {
			if matchConnective(conn, val) {
				return map[string]term.Value{}, true
			}
			return nil, false
		}
		if term.Equal(p.Value, val) {
			return map[string]term.Value{}, true
		}
		return nil, false

	case term.PList:
		list, ok := val.(term.List)
		if !ok {
			return nil, false
		}
		if p.Rest == "" {
			if len(list) != len(p.Elems) {
				return nil, false
			}
		} else if len(list) < len(p.Elems) {
			return nil, false
		}
		bindings := map[string]term.Value{}
		for i, elem := range p.Elems {
			sub, ok := MatchPattern(elem, list[i])
			if !ok {
				return nil, false
			}
			if !mergeBindings(bindings, sub) {
				return nil, false
			}
		}
		if p.Rest != "" {
			rest := make(term.List, len(list)-len(p.Elems))
			copy(rest, list[len(p.Elems):])
			if !mergeBindings(bindings, map[string]term.Value{p.Rest: rest}) {
				return nil, false
			}
		}
		return bindings, true

	case term.PTuple:
		tup, ok := val.(term.Tuple)
		if !ok || len(tup) != len(p.Elems) {
			return nil, false
		}
		bindings := map[string]term.Value{}
		for i, elem := range p.Elems {
			sub, ok := MatchPattern(elem, tup[i])
			if !ok {
				return nil, false
			}
			if !mergeBindings(bindings, sub) {
				return nil, false
			}
		}
		return bindings, true

	case term.PMap:
		m, ok := val.(term.Map)
		if !ok {
			return nil, false
		}
		if p.Exact && len(m) != len(p.Entries) {
			return nil, false
		}
		bindings := map[string]term.Value{}
		for _, entry := range p.Entries {
			got, found := m.Get(entry.Key)
			if !found {
				return nil, false
			}
			sub, ok := MatchPattern(entry.Val, got)
			if !ok {
				return nil, false
			}
			if !mergeBindings(bindings, sub) {
				return nil, false
			}
		}
		return bindings, true

	case term.PAnd:
		bindings := map[string]term.Value{}
		for _, sub := range p.Pats {
			got, ok := MatchPattern(sub, val)
			if !ok {
				return nil, false
			}
			if !mergeBindings(bindings, got) {
				return nil, false
			}
		}
		return bindings, true

	case term.POr:
		for _, sub := range p.Pats {
			if got, ok := MatchPattern(sub, val); ok {
				return got, true
			}
		}
		return nil, false

	case term.PNot:
		if _, ok := MatchPattern(p.Pat, val); ok {
			return nil, false
		}
		return map[string]term.Value{}, true

	default:
		return nil, false
	}
}

// MatchMessage matches a message payload against a receive's pattern row.
// A single pattern matches the payload directly; multiple patterns
// require a tuple payload of the same arity matched element-wise.
func MatchMessage(patterns []term.Pattern, payload term.Value) (map[string]term.Value, bool) {
	if len(patterns) == 1 {
		return MatchPattern(patterns[0], payload)
	}
	tup, ok := payload.(term.Tuple)
	if !ok || len(tup) != len(patterns) {
		return nil, false
	}
	bindings := map[string]term.Value{}
	for i, pat := range patterns {
		sub, ok := MatchPattern(pat, tup[i])
		if !ok {
			return nil, false
		}
		if !mergeBindings(bindings, sub) {
			return nil, false
		}
	}
	return bindings, true
}

// matchConnective evaluates a connective value used as a pattern:
// conjunction matches when every operand matches, disjunction when any
// does, negation when none do. Operands are themselves values-as-patterns.
func matchConnective(conn term.Connective, val term.Value) bool {
	switch conn.Op {
	case term.ConnAnd:
		for _, op := range conn.Operands {
			if !valueMatches(op, val) {
				return false
			}
		}
		return true
	case term.ConnOr:
		for _, op := range conn.Operands {
			if valueMatches(op, val) {
				return true
			}
		}
		return false
	case term.ConnNot:
		for _, op := range conn.Operands {
			if valueMatches(op, val) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func valueMatches(pat term.Value, val term.Value) bool {
	if conn, ok := pat.(term.Connective); ok {
		return matchConnective(conn, val)
	}
	return term.Equal(pat, val)
}

// mergeBindings folds sub into dst. Shared names must agree structurally;
// a disagreement fails the whole match.
func mergeBindings(dst, sub map[string]term.Value) bool {
	for name, val := range sub {
		if have, ok := dst[name]; ok {
			if !term.Equal(have, val) {
				return false
			}
			continue
		}
		dst[name] = val
	}
	return true
}
