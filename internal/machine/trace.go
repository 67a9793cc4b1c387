package machine

import "sync"

// TraceEvent is one recorded step of a run: which instance consumed which
// event, and the state transition it caused. Seq is the logical clock
// tick, so a recorded run replays in exactly one order.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Instance int64  `json:"instance"`
	Parent   int64  `json:"parent,omitempty"`
	Event    string `json:"event"`
	From     string `json:"from"`
	To       string `json:"to"`
	Channel  string `json:"channel,omitempty"`
	Payload  string `json:"payload,omitempty"`
	Result   string `json:"result,omitempty"`
	Err      string `json:"err,omitempty"`
}

// Sink receives trace events as the scheduler records them. Record is
// called from the scheduler's single writer goroutine, in seq order.
type Sink interface {
	Record(ev TraceEvent) error
}

// MemorySink accumulates trace events in memory, for tests and for the
// run result's trace.
type MemorySink struct {
	mu     sync.Mutex
	events []TraceEvent
}

// NewMemorySink creates an empty in-memory trace sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record implements Sink.
func (s *MemorySink) Record(ev TraceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a snapshot of the recorded trace in seq order.
func (s *MemorySink) Events() []TraceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TraceEvent, len(s.events))
	copy(out, s.events)
	return out
}

// multiSink fans each event out to several sinks.
type multiSink []Sink

func (m multiSink) Record(ev TraceEvent) error {
	for _, s := range m {
		if err := s.Record(ev); err != nil {
			return err
		}
	}
	return nil
}
