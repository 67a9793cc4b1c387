package machine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rheo/internal/term"
)

type failingSink struct{ err error }

func (s failingSink) Record(TraceEvent) error { return s.err }

func TestMultiSinkFansOut(t *testing.T) {
	a := NewMemorySink()
	b := NewMemorySink()
	m := multiSink{a, b}

	require.NoError(t, m.Record(TraceEvent{Seq: 1, Event: "SIGNAL"}))
	require.NoError(t, m.Record(TraceEvent{Seq: 2, Event: "SIGNAL"}))

	assert.Len(t, a.Events(), 2)
	assert.Equal(t, a.Events(), b.Events())
}

func TestMultiSinkStopsOnError(t *testing.T) {
	boom := errors.New("disk full")
	after := NewMemorySink()
	m := multiSink{failingSink{err: boom}, after}

	err := m.Record(TraceEvent{Seq: 1})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, after.Events())
}

func TestRunSinkErrorAbortsRun(t *testing.T) {
	boom := errors.New("disk full")
	s := NewScheduler(
		WithNameGenerator(NewFixedGenerator("ch")),
		WithTraceSink(failingSink{err: boom}),
	)
	_, err := s.Run(context.Background(), term.Stop{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestRunExtraSinkSeesFullTrace(t *testing.T) {
	extra := NewMemorySink()
	res, err := runTerm(t, lit(term.Int(5)), WithTraceSink(extra))
	require.NoError(t, err)
	assert.Equal(t, res.Trace, extra.Events())
}
