package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rheo/internal/term"
)

func TestEnvLookup(t *testing.T) {
	var env *Env
	_, res := env.Lookup("x")
	assert.Equal(t, envUnbound, res, "nil env is the valid empty environment")

	env = env.Extend("x", term.Int(1))
	val, res := env.Lookup("x")
	require.Equal(t, envFound, res)
	assert.Equal(t, term.Int(1), val)
}

func TestEnvShadowing(t *testing.T) {
	env := (*Env)(nil).Extend("x", term.Int(1)).Extend("x", term.Int(2))
	val, res := env.Lookup("x")
	require.Equal(t, envFound, res)
	assert.Equal(t, term.Int(2), val)
}

func TestEnvSnapshotIsolation(t *testing.T) {
	base := (*Env)(nil).Extend("x", term.Int(1))

	// A sibling extension does not leak into the original snapshot.
	child := base.Extend("y", term.Int(2))
	_, res := base.Lookup("y")
	assert.Equal(t, envUnbound, res)

	val, res := child.Lookup("x")
	require.Equal(t, envFound, res)
	assert.Equal(t, term.Int(1), val)
}

func TestEnvMoveTombstone(t *testing.T) {
	base := (*Env)(nil).Extend("x", term.Int(1))
	moved := base.Move("x")

	_, res := moved.Lookup("x")
	assert.Equal(t, envMoved, res)

	// The original snapshot still sees the binding.
	val, res := base.Lookup("x")
	require.Equal(t, envFound, res)
	assert.Equal(t, term.Int(1), val)
}

func TestEnvExtendAllDeterministic(t *testing.T) {
	bindings := map[string]term.Value{
		"b": term.Int(2),
		"a": term.Int(1),
		"c": term.Int(3),
	}
	env := (*Env)(nil).ExtendAll(bindings)
	assert.Equal(t, bindings, env.Flatten())
}

func TestEnvFlattenHonorsShadowingAndMoves(t *testing.T) {
	env := (*Env)(nil).
		Extend("x", term.Int(1)).
		Extend("y", term.Int(2)).
		Extend("x", term.Int(3)).
		Move("y")

	assert.Equal(t, map[string]term.Value{"x": term.Int(3)}, env.Flatten())
}
