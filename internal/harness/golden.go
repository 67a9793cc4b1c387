package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rheo/internal/machine"
	"github.com/roach88/rheo/internal/term"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// Serialized with canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	Value        string
	Trace        []machine.TraceEvent
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for
// canonical JSON serialization. Zero-valued event fields are omitted so
// golden files stay readable.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"seq":      event.Seq,
			"instance": event.Instance,
			"event":    event.Event,
			"from":     event.From,
			"to":       event.To,
		}
		if event.Parent != 0 {
			eventMap["parent"] = event.Parent
		}
		if event.Channel != "" {
			eventMap["channel"] = event.Channel
		}
		if event.Payload != "" {
			eventMap["payload"] = event.Payload
		}
		if event.Result != "" {
			eventMap["result"] = event.Result
		}
		if event.Err != "" {
			eventMap["err"] = event.Err
		}
		traceList[i] = eventMap
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
	if s.Value != "" {
		result["value"] = s.Value
	}
	return result
}

// MarshalCanonical serializes the snapshot as canonical JSON, the byte
// representation golden files store.
func (s *TraceSnapshot) MarshalCanonical() ([]byte, error) {
	return term.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares a result's trace against a golden file. Useful
// when a scenario has already run and the result should be compared
// without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Value:        result.Value,
		Trace:        result.Trace,
	}

	traceJSON, err := snapshot.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
