package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/roach88/rheo/internal/term"
)

func TestGetRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetRun(context.Background(), "nonexistent")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestListRuns_Empty(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}

	// Should return empty slice, not nil
	if runs == nil {
		t.Error("runs is nil, want empty slice")
	}
	if len(runs) != 0 {
		t.Errorf("len(runs) = %d, want 0", len(runs))
	}
}

func TestListRuns_Limit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("run%d", i)
		if err := s.BeginRun(ctx, id, echoTerm(), nil); err != nil {
			t.Fatalf("BeginRun(%s) failed: %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx, 3)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("len(runs) = %d, want 3", len(runs))
	}

	all, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns(0) failed: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("len(all) = %d, want 5", len(all))
	}
}

func TestListRuns_DeterministicOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Same created_at second for all rows, so ordering falls back to id
	for _, id := range []string{"b", "a", "c"} {
		if err := s.BeginRun(ctx, id, echoTerm(), nil); err != nil {
			t.Fatalf("BeginRun(%s) failed: %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}

	// id DESC within equal timestamps
	want := []string{"c", "b", "a"}
	for i, id := range want {
		if runs[i].ID != id {
			t.Errorf("runs[%d].ID = %q, want %q", i, runs[i].ID, id)
		}
	}
}

func TestReadTrace_EmptyRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.BeginRun(ctx, "run1", echoTerm(), nil); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}

	events, err := s.ReadTrace(ctx, "run1")
	if err != nil {
		t.Fatalf("ReadTrace() failed: %v", err)
	}
	if events == nil {
		t.Error("events is nil, want empty slice")
	}
	if len(events) != 0 {
		t.Errorf("len(events) = %d, want 0", len(events))
	}
}

func TestReadTrace_SeqOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.BeginRun(ctx, "run1", echoTerm(), nil); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}

	// Write out of order; reads come back in seq order
	for _, seq := range []int64{3, 1, 2} {
		if err := s.WriteEvent(ctx, "run1", createTestEvent(seq, 1)); err != nil {
			t.Fatalf("WriteEvent(seq=%d) failed: %v", seq, err)
		}
	}

	events, err := s.ReadTrace(ctx, "run1")
	if err != nil {
		t.Fatalf("ReadTrace() failed: %v", err)
	}
	for i, ev := range events {
		if ev.Seq != int64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, ev.Seq, i+1)
		}
	}
}

func TestReadTrace_RoundTripsAllFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.BeginRun(ctx, "run1", echoTerm(), nil); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}

	in := createTestEvent(1, 4)
	in.Parent = 2
	in.Event = "MESSAGE_AVAILABLE"
	in.From = "RECEIVING"
	in.To = "BINDING"
	in.Channel = "in"
	in.Payload = `"hello"`
	in.Result = ""
	in.Err = ""
	if err := s.WriteEvent(ctx, "run1", in); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}

	events, err := s.ReadTrace(ctx, "run1")
	if err != nil {
		t.Fatalf("ReadTrace() failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0] != in {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", events[0], in)
	}
}

func TestReadInjections_ArrivalOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.BeginRun(ctx, "run1", echoTerm(), []string{"in"}); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.WriteInjection(ctx, "run1", i, "in", term.Int(i)); err != nil {
			t.Fatalf("WriteInjection(%d) failed: %v", i, err)
		}
	}

	injections, err := s.ReadInjections(ctx, "run1")
	if err != nil {
		t.Fatalf("ReadInjections() failed: %v", err)
	}
	if len(injections) != 3 {
		t.Fatalf("len(injections) = %d, want 3", len(injections))
	}
	for i, inj := range injections {
		if inj.Ordinal != i {
			t.Errorf("injections[%d].Ordinal = %d, want %d", i, inj.Ordinal, i)
		}
		if !term.Equal(inj.Payload, term.Int(i)) {
			t.Errorf("injections[%d].Payload = %v, want %d", i, inj.Payload, i)
		}
	}
}

func TestReadTerm_DecodesStoredTerm(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	root := echoTerm()
	if err := s.BeginRun(ctx, "run1", root, nil); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}

	decoded, err := s.ReadTerm(ctx, "run1")
	if err != nil {
		t.Fatalf("ReadTerm() failed: %v", err)
	}

	// Structural equality via canonical encoding
	a, err := term.MarshalProc(root)
	if err != nil {
		t.Fatalf("MarshalProc(root) failed: %v", err)
	}
	b, err := term.MarshalProc(decoded)
	if err != nil {
		t.Fatalf("MarshalProc(decoded) failed: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("decoded term differs:\ngot  %s\nwant %s", b, a)
	}
}

func TestReadTerm_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadTerm(context.Background(), "nonexistent")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}
