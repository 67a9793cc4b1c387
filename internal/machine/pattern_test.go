package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rheo/internal/term"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		name     string
		pat      term.Pattern
		val      term.Value
		ok       bool
		bindings map[string]term.Value
	}{
		{
			name:     "wildcard matches anything",
			pat:      term.PWildcard{},
			val:      term.Int(5),
			ok:       true,
			bindings: map[string]term.Value{},
		},
		{
			name:     "bind captures the value",
			pat:      term.PBind{Name: "x"},
			val:      term.String("hi"),
			ok:       true,
			bindings: map[string]term.Value{"x": term.String("hi")},
		},
		{
			name:     "literal equality",
			pat:      term.PValue{Value: term.Int(7)},
			val:      term.Int(7),
			ok:       true,
			bindings: map[string]term.Value{},
		},
		{
			name: "literal mismatch",
			pat:  term.PValue{Value: term.Int(7)},
			val:  term.Int(8),
			ok:   false,
		},
		{
			name: "list element-wise",
			pat:  term.PList{Elems: []term.Pattern{term.PBind{Name: "a"}, term.PValue{Value: term.Int(2)}}},
			val:  term.List{term.Int(1), term.Int(2)},
			ok:   true,
			bindings: map[string]term.Value{
				"a": term.Int(1),
			},
		},
		{
			name: "list arity mismatch",
			pat:  term.PList{Elems: []term.Pattern{term.PWildcard{}}},
			val:  term.List{term.Int(1), term.Int(2)},
			ok:   false,
		},
		{
			name: "list rest binding",
			pat:  term.PList{Elems: []term.Pattern{term.PBind{Name: "h"}}, Rest: "t"},
			val:  term.List{term.Int(1), term.Int(2), term.Int(3)},
			ok:   true,
			bindings: map[string]term.Value{
				"h": term.Int(1),
				"t": term.List{term.Int(2), term.Int(3)},
			},
		},
		{
			name: "tuple element-wise",
			pat:  term.PTuple{Elems: []term.Pattern{term.PBind{Name: "a"}, term.PBind{Name: "b"}}},
			val:  term.Tuple{term.Int(1), term.Int(2)},
			ok:   true,
			bindings: map[string]term.Value{
				"a": term.Int(1),
				"b": term.Int(2),
			},
		},
		{
			name: "map entry subset",
			pat: term.PMap{Entries: []term.PMapEntry{
				{Key: term.String("k"), Val: term.PBind{Name: "v"}},
			}},
			val: term.NewMap(term.String("k"), term.Int(1), term.String("extra"), term.Int(2)),
			ok:  true,
			bindings: map[string]term.Value{
				"v": term.Int(1),
			},
		},
		{
			name: "exact map rejects extra keys",
			pat: term.PMap{Exact: true, Entries: []term.PMapEntry{
				{Key: term.String("k"), Val: term.PWildcard{}},
			}},
			val: term.NewMap(term.String("k"), term.Int(1), term.String("extra"), term.Int(2)),
			ok:  false,
		},
		{
			name: "conjunction binds from every branch",
			pat:  term.PAnd{Pats: []term.Pattern{term.PBind{Name: "x"}, term.PValue{Value: term.Int(3)}}},
			val:  term.Int(3),
			ok:   true,
			bindings: map[string]term.Value{
				"x": term.Int(3),
			},
		},
		{
			name: "disjunction takes the first success",
			pat:  term.POr{Pats: []term.Pattern{term.PValue{Value: term.Int(1)}, term.PBind{Name: "x"}}},
			val:  term.Int(2),
			ok:   true,
			bindings: map[string]term.Value{
				"x": term.Int(2),
			},
		},
		{
			name: "negation inverts",
			pat:  term.PNot{Pat: term.PValue{Value: term.Int(1)}},
			val:  term.Int(2),
			ok:   true,
			bindings: map[string]term.Value{},
		},
		{
			name: "negation rejects a match",
			pat:  term.PNot{Pat: term.PWildcard{}},
			val:  term.Int(2),
			ok:   false,
		},
		{
			name: "shared names must agree",
			pat:  term.PTuple{Elems: []term.Pattern{term.PBind{Name: "x"}, term.PBind{Name: "x"}}},
			val:  term.Tuple{term.Int(1), term.Int(2)},
			ok:   false,
		},
		{
			name: "shared names that agree merge",
			pat:  term.PTuple{Elems: []term.Pattern{term.PBind{Name: "x"}, term.PBind{Name: "x"}}},
			val:  term.Tuple{term.Int(1), term.Int(1)},
			ok:   true,
			bindings: map[string]term.Value{
				"x": term.Int(1),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchPattern(tt.pat, tt.val)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.bindings, got)
			}
		})
	}
}

func TestMatchPatternConnectiveValue(t *testing.T) {
	// A connective value used as a literal pattern applies its logic.
	either := term.Connective{Op: term.ConnOr, Operands: []term.Value{term.Int(1), term.Int(2)}}

	_, ok := MatchPattern(term.PValue{Value: either}, term.Int(2))
	assert.True(t, ok)
	_, ok = MatchPattern(term.PValue{Value: either}, term.Int(3))
	assert.False(t, ok)

	neither := term.Connective{Op: term.ConnNot, Operands: []term.Value{term.Int(1)}}
	_, ok = MatchPattern(term.PValue{Value: neither}, term.Int(1))
	assert.False(t, ok)
	_, ok = MatchPattern(term.PValue{Value: neither}, term.Int(9))
	assert.True(t, ok)
}

func TestMatchMessage(t *testing.T) {
	single := []term.Pattern{term.PBind{Name: "x"}}
	got, ok := MatchMessage(single, term.Int(4))
	require.True(t, ok)
	assert.Equal(t, term.Int(4), got["x"])

	row := []term.Pattern{term.PBind{Name: "a"}, term.PBind{Name: "b"}}
	got, ok = MatchMessage(row, term.Tuple{term.Int(1), term.Int(2)})
	require.True(t, ok)
	assert.Equal(t, term.Int(1), got["a"])
	assert.Equal(t, term.Int(2), got["b"])

	_, ok = MatchMessage(row, term.Int(1))
	assert.False(t, ok, "multi-pattern rows require a tuple payload")

	_, ok = MatchMessage(row, term.Tuple{term.Int(1)})
	assert.False(t, ok, "arity must agree")
}
