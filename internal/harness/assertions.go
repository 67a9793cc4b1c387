package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/rheo/internal/machine"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string               // Assertion type for categorization
	Expected string               // Human-readable expected outcome
	Actual   string               // Human-readable actual outcome
	Trace    []machine.TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] inst=%d %s %s→%s", event.Seq, event.Instance, event.Event, event.From, event.To)
		if event.Channel != "" {
			fmt.Fprintf(&buf, " chan=%s", event.Channel)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// EvaluateAssertions checks all assertions against a trace and returns
// the failure messages. An empty slice means every assertion held.
func EvaluateAssertions(trace []machine.TraceEvent, assertions []Assertion) []string {
	var errs []string
	for _, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(trace, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// matchEvent checks whether an event satisfies an assertion's field
// filters. Empty filter fields match anything.
func matchEvent(event machine.TraceEvent, assertion Assertion) bool {
	if assertion.Event != "" && event.Event != assertion.Event {
		return false
	}
	if assertion.Channel != "" && event.Channel != assertion.Channel {
		return false
	}
	if assertion.State != "" && event.To != assertion.State {
		return false
	}
	return true
}

// describeFilter renders an assertion's field filters for error messages.
func describeFilter(assertion Assertion) string {
	var parts []string
	if assertion.Event != "" {
		parts = append(parts, "event "+assertion.Event)
	}
	if assertion.Channel != "" {
		parts = append(parts, "channel "+assertion.Channel)
	}
	if assertion.State != "" {
		parts = append(parts, "state "+assertion.State)
	}
	return strings.Join(parts, ", ")
}

// assertTraceContains checks if the trace contains an event matching
// the assertion's field filters.
func assertTraceContains(trace []machine.TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchEvent(event, assertion) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeFilter(assertion),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if channels appear in the specified order.
// Channel activity doesn't need to be consecutive; intervening events
// are allowed.
func assertTraceOrder(trace []machine.TraceEvent, assertion Assertion) error {
	// First position of each expected channel, 1-indexed for readability
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Channel == "" {
			continue
		}
		for _, channel := range assertion.Channels {
			if event.Channel == channel && positions[channel] == 0 {
				positions[channel] = i + 1
			}
		}
	}

	for _, channel := range assertion.Channels {
		if positions[channel] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all channels present: %v", assertion.Channels),
				Actual:   fmt.Sprintf("missing channel: %s", channel),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Channels); i++ {
		prev := assertion.Channels[i-1]
		curr := assertion.Channels[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("channels in order: %v", assertion.Channels),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if matching events appear exactly the
// specified number of times.
func assertTraceCount(trace []machine.TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchEvent(event, assertion) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s appears %d time(s)", describeFilter(assertion), assertion.Count),
			Actual:   fmt.Sprintf("appears %d time(s)", count),
			Trace:    trace,
		}
	}

	return nil
}
