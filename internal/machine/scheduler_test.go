package machine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rheo/internal/term"
)

func runTerm(t *testing.T, root term.Proc, opts ...Option) (*Result, error) {
	t.Helper()
	opts = append([]Option{WithNameGenerator(NewFixedGenerator("ch"))}, opts...)
	s := NewScheduler(opts...)
	return s.Run(context.Background(), root)
}

func lit(v term.Value) term.Proc { return term.Literal{Value: v} }

func TestRunStop(t *testing.T) {
	res, err := runTerm(t, term.Stop{})
	require.NoError(t, err)
	assert.Equal(t, term.Nil{}, res.Value)
	assert.Equal(t, int64(1), res.Steps)
}

func TestRunLiteral(t *testing.T) {
	res, err := runTerm(t, lit(term.Int(42)))
	require.NoError(t, err)
	assert.Equal(t, term.Int(42), res.Value)
}

func TestRunUnboundVariable(t *testing.T) {
	_, err := runTerm(t, term.Var{Name: "nope"})
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err, ErrCodeUnboundName))
}

func TestRunSendReceive(t *testing.T) {
	// new ch { ch!(7) | for(x <- ch) { x } }
	root := term.New{
		Names: []string{"ch"},
		Body: term.Par{Procs: []term.Proc{
			term.Send{Chan: term.Var{Name: "ch"}, Args: []term.Proc{lit(term.Int(7))}},
			term.Receive{
				Chan:     term.Var{Name: "ch"},
				Patterns: []term.Pattern{term.PBind{Name: "x"}},
				Mode:     term.ReceiveOnce,
				Body:     term.Var{Name: "x"},
			},
		}},
	}
	res, err := runTerm(t, root)
	require.NoError(t, err)
	assert.Equal(t, term.Nil{}, res.Value, "parallel composition joins to nil")

	var delivered []string
	for _, ev := range res.Trace {
		if ev.Event == "MESSAGE_AVAILABLE" {
			delivered = append(delivered, ev.Payload)
		}
	}
	assert.Equal(t, []string{"7"}, delivered)
}

func TestRunReceiveValueFromInjection(t *testing.T) {
	root := term.Receive{
		Chan:     term.Var{Name: "in"},
		Patterns: []term.Pattern{term.PBind{Name: "x"}},
		Mode:     term.ReceiveOnce,
		Body:     term.Var{Name: "x"},
	}
	s := NewScheduler(
		WithNameGenerator(NewFixedGenerator("ch")),
		WithExternalNames("in"),
	)
	require.NoError(t, s.Inject("in", term.Int(99)))

	res, err := s.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, term.Int(99), res.Value)
}

func TestRunDeterministicTrace(t *testing.T) {
	program := func() term.Proc {
		return term.New{
			Names: []string{"a", "b"},
			Body: term.Par{Procs: []term.Proc{
				term.Send{Chan: term.Var{Name: "a"}, Args: []term.Proc{lit(term.Int(1))}},
				term.Send{Chan: term.Var{Name: "b"}, Args: []term.Proc{lit(term.Int(2))}},
				term.Receive{
					Chan:     term.Var{Name: "a"},
					Patterns: []term.Pattern{term.PBind{Name: "x"}},
					Mode:     term.ReceiveOnce,
					Body: term.Receive{
						Chan:     term.Var{Name: "b"},
						Patterns: []term.Pattern{term.PBind{Name: "y"}},
						Mode:     term.ReceiveOnce,
						Body:     term.Operation{Op: "add", Operands: []term.Proc{term.Var{Name: "x"}, term.Var{Name: "y"}}},
					},
				},
			}},
		}
	}

	first, err := runTerm(t, program())
	require.NoError(t, err)
	second, err := runTerm(t, program())
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace, "same term and injections yield an identical trace")
	assert.Equal(t, first.Steps, second.Steps)
}

func TestRunFIFOMatching(t *testing.T) {
	// Two queued sends drain to two receivers in arrival order.
	root := term.New{
		Names: []string{"ch"},
		Body: term.Par{Procs: []term.Proc{
			term.Send{Chan: term.Var{Name: "ch"}, Args: []term.Proc{lit(term.Int(1))}},
			term.Send{Chan: term.Var{Name: "ch"}, Args: []term.Proc{lit(term.Int(2))}},
			term.Receive{Chan: term.Var{Name: "ch"}, Patterns: []term.Pattern{term.PBind{Name: "x"}}, Mode: term.ReceiveOnce, Body: term.Stop{}},
			term.Receive{Chan: term.Var{Name: "ch"}, Patterns: []term.Pattern{term.PBind{Name: "x"}}, Mode: term.ReceiveOnce, Body: term.Stop{}},
		}},
	}
	res, err := runTerm(t, root)
	require.NoError(t, err)

	var payloads []string
	for _, ev := range res.Trace {
		if ev.Event == "MESSAGE_AVAILABLE" && ev.Channel == "ch-1" {
			payloads = append(payloads, ev.Payload)
		}
	}
	assert.Equal(t, []string{"1", "2"}, payloads)
}

func TestRunPersistentReceiveServicesBacklog(t *testing.T) {
	// contract: every message on ch is forwarded to out.
	root := term.New{
		Names: []string{"ch"},
		Body: term.Par{Procs: []term.Proc{
			term.Receive{
				Chan:     term.Var{Name: "ch"},
				Patterns: []term.Pattern{term.PBind{Name: "x"}},
				Mode:     term.ReceivePersistent,
				Body:     term.Send{Chan: term.Var{Name: "out"}, Args: []term.Proc{term.Var{Name: "x"}}},
			},
			term.Send{Chan: term.Var{Name: "ch"}, Args: []term.Proc{lit(term.Int(1))}},
			term.Send{Chan: term.Var{Name: "ch"}, Args: []term.Proc{lit(term.Int(2))}},
			term.Send{Chan: term.Var{Name: "ch"}, Args: []term.Proc{lit(term.Int(3))}},
		}},
	}
	s := NewScheduler(
		WithNameGenerator(NewFixedGenerator("ch")),
		WithExternalNames("out"),
	)
	res, err := s.Run(context.Background(), root)
	require.NoError(t, err, "idle persistent receivers are quiescence, not deadlock")
	assert.Equal(t, term.Nil{}, res.Value)
	assert.Equal(t, 3, s.Store().PendingSends("out"), "one body instantiation per message")
	assert.Equal(t, 1, s.Store().PendingReceives("ch-1"), "receiver still registered")
}

func TestRunJoinWaitsForAllChildren(t *testing.T) {
	root := term.New{
		Names: []string{"ch"},
		Body: term.Par{Procs: []term.Proc{
			term.Stop{},
			term.Send{Chan: term.Var{Name: "ch"}, Args: []term.Proc{lit(term.Int(1))}},
			term.Receive{Chan: term.Var{Name: "ch"}, Patterns: []term.Pattern{term.PWildcard{}}, Mode: term.ReceiveOnce, Body: term.Stop{}},
		}},
	}
	res, err := runTerm(t, root)
	require.NoError(t, err)

	// The join transition fires exactly once, after every child is done.
	joins := 0
	for _, ev := range res.Trace {
		if ev.To == "TERMINATED" && ev.From == "JOINING" {
			joins++
		}
	}
	assert.Equal(t, 1, joins)
}

func TestRunSelectExactlyOneArm(t *testing.T) {
	root := term.Select{Arms: []term.SelectArm{
		{Chan: term.Var{Name: "a"}, Patterns: []term.Pattern{term.PBind{Name: "x"}}, Body: lit(term.String("left"))},
		{Chan: term.Var{Name: "b"}, Patterns: []term.Pattern{term.PBind{Name: "x"}}, Body: lit(term.String("right"))},
	}}
	s := NewScheduler(
		WithNameGenerator(NewFixedGenerator("ch")),
		WithExternalNames("a", "b"),
	)
	require.NoError(t, s.Inject("b", term.Int(5)))

	res, err := s.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, term.String("right"), res.Value)

	// The losing arm's registration is gone; a later send on it would sit
	// unmatched rather than resurrect the select.
	assert.Equal(t, 0, s.Store().PendingReceives("a"))
	assert.Equal(t, 0, s.Store().PendingReceives("b"))
}

func TestRunCondTakesOneBranch(t *testing.T) {
	tests := []struct {
		name string
		cond term.Value
		want term.Value
	}{
		{"true branch", term.Bool(true), term.Int(1)},
		{"false branch", term.Bool(false), term.Int(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The untaken branch reads an unbound name; taking it would
			// fail the run.
			other := term.Proc(term.Var{Name: "boom"})
			thenP, elseP := term.Proc(lit(term.Int(1))), other
			if tt.cond == term.Bool(false) {
				thenP, elseP = other, lit(term.Int(2))
			}
			res, err := runTerm(t, term.Cond{If: lit(tt.cond), Then: thenP, Else: elseP})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Value)
		})
	}
}

func TestRunShortCircuit(t *testing.T) {
	tests := []struct {
		name string
		op   string
		left term.Value
		want term.Value
	}{
		{"false and never evaluates right", "and", term.Bool(false), term.Bool(false)},
		{"true or never evaluates right", "or", term.Bool(true), term.Bool(true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := term.Operation{Op: tt.op, Operands: []term.Proc{
				lit(tt.left),
				term.Var{Name: "boom"}, // would be UNBOUND_NAME if instantiated
			}}
			res, err := runTerm(t, root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Value)
		})
	}
}

func TestRunMatchDispatch(t *testing.T) {
	root := term.Match{
		Target: lit(term.Int(2)),
		Cases: []term.MatchCase{
			{Pattern: term.PValue{Value: term.Int(1)}, Body: lit(term.String("one"))},
			{Pattern: term.PValue{Value: term.Int(2)}, Body: lit(term.String("two"))},
			{Pattern: term.PBind{Name: "n"}, Body: lit(term.String("many"))},
		},
	}
	res, err := runTerm(t, root)
	require.NoError(t, err)
	assert.Equal(t, term.String("two"), res.Value)
}

func TestRunMatchExhausted(t *testing.T) {
	root := term.Match{
		Target: lit(term.Int(5)),
		Cases: []term.MatchCase{
			{Pattern: term.PValue{Value: term.Int(1)}, Body: term.Stop{}},
		},
	}
	_, err := runTerm(t, root)
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err, ErrCodeMatchExhausted))
}

func TestRunBundleWriteOnlyRejectsReceive(t *testing.T) {
	root := term.New{
		Names: []string{"ch"},
		Body: term.Receive{
			Chan:     term.Bundle{Mode: term.BundleWrite, Target: term.Var{Name: "ch"}},
			Patterns: []term.Pattern{term.PBind{Name: "x"}},
			Mode:     term.ReceiveOnce,
			Body:     term.Stop{},
		},
	}
	_, err := runTerm(t, root)
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err, ErrCodeCapabilityViolation))
}

func TestRunBundleRestrictionNeverRestores(t *testing.T) {
	// Re-bundling a read-only channel as rw must not restore writes.
	root := term.New{
		Names: []string{"ch"},
		Body: term.Send{
			Chan: term.Bundle{
				Mode:   term.BundleReadWrite,
				Target: term.Bundle{Mode: term.BundleRead, Target: term.Var{Name: "ch"}},
			},
			Args: []term.Proc{lit(term.Int(1))},
		},
	}
	_, err := runTerm(t, root)
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err, ErrCodeCapabilityViolation))
}

func TestRunSyncSendAcknowledged(t *testing.T) {
	root := term.New{
		Names: []string{"ch"},
		Body: term.Par{Procs: []term.Proc{
			term.Send{
				Chan: term.Var{Name: "ch"},
				Args: []term.Proc{lit(term.Int(1))},
				Sync: true,
				Then: term.Send{Chan: term.Var{Name: "out"}, Args: []term.Proc{lit(term.String("acked"))}},
			},
			term.Receive{Chan: term.Var{Name: "ch"}, Patterns: []term.Pattern{term.PBind{Name: "x"}}, Mode: term.ReceiveOnce, Body: term.Stop{}},
		}},
	}
	s := NewScheduler(
		WithNameGenerator(NewFixedGenerator("ch")),
		WithExternalNames("out"),
	)
	res, err := s.Run(context.Background(), root)
	require.NoError(t, err)

	var acked, waited bool
	for _, ev := range res.Trace {
		if ev.Event == "CONDITION_MET" {
			acked = true
		}
		if ev.To == "WAITING" {
			waited = true
		}
	}
	assert.True(t, waited, "sync send suspends until consumption")
	assert.True(t, acked, "consumption wakes the sender")
	assert.Equal(t, 1, s.Store().PendingSends("out"), "continuation ran after the ack")
}

func TestRunDeadlockReported(t *testing.T) {
	root := term.New{
		Names: []string{"ch"},
		Body: term.Receive{
			Chan:     term.Var{Name: "ch"},
			Patterns: []term.Pattern{term.PBind{Name: "x"}},
			Mode:     term.ReceiveOnce,
			Body:     term.Stop{},
		},
	}
	_, err := runTerm(t, root)
	require.Error(t, err)
	require.True(t, IsDeadlockError(err))

	var de *DeadlockError
	require.ErrorAs(t, err, &de)
	require.NotEmpty(t, de.Blocked)
	states := make([]string, 0, len(de.Blocked))
	for _, b := range de.Blocked {
		states = append(states, b.State)
	}
	assert.Contains(t, states, "RECEIVING(once)")
}

func TestRunSyncSendDeadlocks(t *testing.T) {
	root := term.New{
		Names: []string{"ch"},
		Body: term.Send{
			Chan: term.Var{Name: "ch"},
			Args: []term.Proc{lit(term.Int(1))},
			Sync: true,
		},
	}
	_, err := runTerm(t, root)
	require.Error(t, err)
	assert.True(t, IsDeadlockError(err), "an unconsumed sync send blocks forever")
}

func TestRunChildErrorCancelsSiblings(t *testing.T) {
	// One fork fails; the join surfaces the failure instead of hanging on
	// the sibling that would otherwise wait forever.
	root := term.New{
		Names: []string{"ch"},
		Body: term.Par{Procs: []term.Proc{
			term.Var{Name: "boom"},
			term.Receive{Chan: term.Var{Name: "ch"}, Patterns: []term.Pattern{term.PBind{Name: "x"}}, Mode: term.ReceiveOnce, Body: term.Stop{}},
		}},
	}
	s := NewScheduler(WithNameGenerator(NewFixedGenerator("ch")))
	_, err := s.Run(context.Background(), root)
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err, ErrCodeUnboundName), "root cause survives propagation")
	assert.Equal(t, 0, s.Store().PendingReceives("ch-1"), "cancelled sibling's registration retracted")
}

func TestRunStepQuota(t *testing.T) {
	// Persistent send meets persistent receive: unbounded replication,
	// stopped only by the quota.
	root := term.New{
		Names: []string{"ch"},
		Body: term.Par{Procs: []term.Proc{
			term.Send{Chan: term.Var{Name: "ch"}, Args: []term.Proc{lit(term.Int(1))}, Persistent: true},
			term.Receive{
				Chan:     term.Var{Name: "ch"},
				Patterns: []term.Pattern{term.PBind{Name: "x"}},
				Mode:     term.ReceivePersistent,
				Body:     term.Stop{},
			},
		}},
	}
	_, err := runTerm(t, root, WithMaxSteps(200))
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err, ErrCodeQuotaExceeded))
}

func TestRunContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScheduler(WithNameGenerator(NewFixedGenerator("ch")))
	_, err := s.Run(ctx, term.Stop{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunInjectValidation(t *testing.T) {
	s := NewScheduler()
	err := s.Inject("", term.Int(1))
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err, ErrCodeMalformedEvent))

	err = s.Inject("ch", nil)
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err, ErrCodeMalformedEvent))
}

func TestRunFreshNamesAreDistinct(t *testing.T) {
	// Two new-scopes over the same source name mint distinct channels:
	// the send in one scope cannot match the receive in the other.
	root := term.Par{Procs: []term.Proc{
		term.New{Names: []string{"ch"}, Body: term.Send{Chan: term.Var{Name: "ch"}, Args: []term.Proc{lit(term.Int(1))}}},
		term.New{Names: []string{"ch"}, Body: term.Receive{
			Chan:     term.Var{Name: "ch"},
			Patterns: []term.Pattern{term.PBind{Name: "x"}},
			Mode:     term.ReceiveOnce,
			Body:     term.Stop{},
		}},
	}}
	_, err := runTerm(t, root)
	require.Error(t, err)
	assert.True(t, IsDeadlockError(err))
}

func TestRunCollectAndInterpolate(t *testing.T) {
	res, err := runTerm(t, term.Collect{Kind: term.CollectList, Elems: []term.Proc{
		lit(term.Int(1)),
		term.Operation{Op: "add", Operands: []term.Proc{lit(term.Int(1)), lit(term.Int(1))}},
	}})
	require.NoError(t, err)
	assert.Equal(t, term.List{term.Int(1), term.Int(2)}, res.Value)

	res, err = runTerm(t, term.Interpolate{
		Template: lit(term.String("n=${n}")),
		Args:     lit(term.NewMap(term.String("n"), term.Int(7))),
	})
	require.NoError(t, err)
	assert.Equal(t, term.String("n=7"), res.Value)
}

func TestRunConnectiveValues(t *testing.T) {
	res, err := runTerm(t, term.Conjoin{Left: lit(term.Int(1)), Right: lit(term.Int(2))})
	require.NoError(t, err)
	assert.Equal(t, term.Connective{Op: term.ConnAnd, Operands: []term.Value{term.Int(1), term.Int(2)}}, res.Value)

	res, err = runTerm(t, term.Negate{Body: lit(term.Bool(true))})
	require.NoError(t, err)
	assert.Equal(t, term.Bool(false), res.Value)
}

func TestRunReportsRootBindings(t *testing.T) {
	// A root receive leaves its bound name in the root scope, alongside
	// the pre-bound external channel.
	root := term.Receive{
		Chan:     term.Var{Name: "in"},
		Patterns: []term.Pattern{term.PBind{Name: "x"}},
		Mode:     term.ReceiveOnce,
		Body:     term.Var{Name: "x"},
	}
	s := NewScheduler(
		WithNameGenerator(NewFixedGenerator("ch")),
		WithExternalNames("in"),
	)
	require.NoError(t, s.Inject("in", term.String("hello")))

	res, err := s.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, term.String("hello"), res.Bindings["x"])
	assert.Equal(t, term.Channel{ID: "in", Caps: term.AllCaps}, res.Bindings["in"])
}

func TestRunBindingsAreRootScopeOnly(t *testing.T) {
	// A nested receive rebinds x inside the body's child scope; the root
	// scope keeps its own binding while the value flows up from the child.
	root := term.Receive{
		Chan:     term.Var{Name: "in"},
		Patterns: []term.Pattern{term.PBind{Name: "x"}},
		Mode:     term.ReceiveOnce,
		Body: term.Receive{
			Chan:     term.Var{Name: "in"},
			Patterns: []term.Pattern{term.PBind{Name: "x"}},
			Mode:     term.ReceiveOnce,
			Body:     term.Var{Name: "x"},
		},
	}
	s := NewScheduler(
		WithNameGenerator(NewFixedGenerator("ch")),
		WithExternalNames("in"),
	)
	require.NoError(t, s.Inject("in", term.Int(1)))
	require.NoError(t, s.Inject("in", term.Int(2)))

	res, err := s.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, term.Int(2), res.Value)
	assert.Equal(t, term.Int(1), res.Bindings["x"])
}

func TestRunBindingsEmptyForClosedTerm(t *testing.T) {
	res, err := runTerm(t, lit(term.Int(42)))
	require.NoError(t, err)
	assert.Empty(t, res.Bindings)
}
