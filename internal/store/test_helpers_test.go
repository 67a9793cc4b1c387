package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/rheo/internal/machine"
	"github.com/roach88/rheo/internal/term"
)

// createTestStore creates a temp-file store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// echoTerm builds a small deterministic term: read one message from the
// external channel "in" and forward it to "out".
func echoTerm() term.Proc {
	return term.Receive{
		Chan:     term.Var{Name: "in"},
		Patterns: []term.Pattern{term.PBind{Name: "x"}},
		Body: term.Send{
			Chan: term.Var{Name: "out"},
			Args: []term.Proc{term.Var{Name: "x"}},
		},
	}
}

// createTestEvent builds a trace event with the given seq.
func createTestEvent(seq, instance int64) machine.TraceEvent {
	return machine.TraceEvent{
		Seq:      seq,
		Instance: instance,
		Event:    "SIGNAL",
		From:     "INITIAL",
		To:       "TERMINATED",
	}
}
