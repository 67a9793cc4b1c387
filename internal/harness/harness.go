// Package harness runs conformance scenarios against the scheduler.
//
// A scenario names a CUE term file, a scripted injection sequence, and
// expectations over the run outcome and trace. Each scenario runs in a
// fresh scheduler with a fixed name generator seeded from the scenario
// name, so a scenario always produces an identical trace and golden
// files stay stable across runs.
package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/rheo/internal/compiler"
	"github.com/roach88/rheo/internal/machine"
	"github.com/roach88/rheo/internal/term"
)

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Compile the term file
//  2. Build a scheduler with a fixed name generator and the file's
//     external channels bound
//  3. Enqueue the scripted injections in order
//  4. Run to quiescence
//  5. Check the expect clause and evaluate trace assertions
func Run(scenario *Scenario) (*Result, error) {
	file, err := compiler.LoadFile(scenario.Term)
	if err != nil {
		return nil, fmt.Errorf("failed to compile term file: %w", err)
	}

	opts := []machine.Option{
		machine.WithNameGenerator(machine.NewFixedGenerator("scenario:" + scenario.Name)),
		machine.WithExternalNames(file.Externals...),
	}
	if scenario.MaxSteps > 0 {
		opts = append(opts, machine.WithMaxSteps(scenario.MaxSteps))
	}
	sink := machine.NewMemorySink()
	opts = append(opts, machine.WithTraceSink(sink))

	sched := machine.NewScheduler(opts...)

	for i, send := range scenario.Sends {
		payload, err := convertToValue(send.Value)
		if err != nil {
			return nil, fmt.Errorf("sends[%d]: %w", i, err)
		}
		if err := sched.Inject(send.Channel, payload); err != nil {
			return nil, fmt.Errorf("sends[%d]: %w", i, err)
		}
	}

	result := NewResult()
	runResult, runErr := sched.Run(context.Background(), file.Root)
	result.Trace = sink.Events()

	if runErr != nil {
		checkExpectedError(scenario, runErr, result)
	} else {
		result.Value = term.Format(runResult.Value)
		result.Bindings = make(map[string]string, len(runResult.Bindings))
		for name, bound := range runResult.Bindings {
			result.Bindings[name] = term.Format(bound)
		}
		result.Steps = runResult.Steps
		checkExpectedValue(scenario, result)
	}

	for _, errMsg := range EvaluateAssertions(result.Trace, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// checkExpectedError validates a failed run against the expect clause.
// A run error is a scenario failure unless the clause expected it.
func checkExpectedError(scenario *Scenario, runErr error, result *Result) {
	if scenario.Expect == nil || scenario.Expect.Error == "" {
		result.AddError(fmt.Sprintf("unexpected run error: %v", runErr))
		return
	}
	if !strings.Contains(runErr.Error(), scenario.Expect.Error) {
		result.AddError(fmt.Sprintf("run error %q does not contain %q", runErr, scenario.Expect.Error))
	}
}

// checkExpectedValue validates a completed run against the expect clause.
func checkExpectedValue(scenario *Scenario, result *Result) {
	if scenario.Expect == nil {
		return
	}
	if scenario.Expect.Error != "" {
		result.AddError(fmt.Sprintf("expected run error containing %q, run completed with %s", scenario.Expect.Error, result.Value))
		return
	}
	if scenario.Expect.Value != "" && result.Value != scenario.Expect.Value {
		result.AddError(fmt.Sprintf("expected final value %s, got %s", scenario.Expect.Value, result.Value))
	}
	for _, name := range sortedKeys(scenario.Expect.Bindings) {
		want := scenario.Expect.Bindings[name]
		got, bound := result.Bindings[name]
		if !bound {
			result.AddError(fmt.Sprintf("expected binding %s = %s, name is unbound", name, want))
			continue
		}
		if got != want {
			result.AddError(fmt.Sprintf("expected binding %s = %s, got %s", name, want, got))
		}
	}
}

// sortedKeys keeps binding-check error order deterministic.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// convertToValue converts a YAML-parsed value to a runtime value.
// Floats are rejected because payloads must round-trip through the
// canonical encoding, which has no float representation.
func convertToValue(val interface{}) (term.Value, error) {
	if val == nil {
		return nil, fmt.Errorf("null values are not representable")
	}

	switch v := val.(type) {
	case string:
		return term.String(v), nil
	case int:
		return term.Int(int64(v)), nil
	case int64:
		return term.Int(v), nil
	case float64:
		// YAML parses large numbers as float64
		if v == float64(int64(v)) {
			return term.Int(int64(v)), nil
		}
		return nil, fmt.Errorf("float values are not representable, use int: %v", v)
	case bool:
		return term.Bool(v), nil
	case []interface{}:
		list := make(term.List, len(v))
		for i, elem := range v {
			converted, err := convertToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = converted
		}
		return list, nil
	case map[string]interface{}:
		m := term.NewMap()
		for key, elem := range v {
			converted, err := convertToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", key, err)
			}
			m = m.Put(term.String(key), converted)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", val)
	}
}
