package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios run a term to quiescence with a scripted injection
// sequence, then assert on the resulting trace and final value.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Term is the path to the CUE term file to run.
	// Relative paths are resolved against the scenario file location.
	Term string `yaml:"term"`

	// Sends contains injections offered to external channels, in order,
	// before the run starts.
	Sends []SendStep `yaml:"sends,omitempty"`

	// MaxSteps overrides the step quota. Zero means the default quota.
	MaxSteps int64 `yaml:"max_steps,omitempty"`

	// Expect specifies the expected run outcome.
	// If nil, the run only has to complete without error.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Assertions validate the trace.
	// Supported types: trace_contains, trace_order, trace_count
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SendStep is one injection: a payload offered on an external channel.
type SendStep struct {
	// Channel is the external channel name.
	Channel string `yaml:"channel"`

	// Value is the payload. YAML values are converted to runtime
	// values during execution; floats are rejected.
	Value interface{} `yaml:"value"`
}

// ExpectClause specifies the expected run outcome.
type ExpectClause struct {
	// Value is the expected final value, in display form
	// (e.g. `42`, `"hello"`, `(1, 2)`). Checked only when non-empty.
	Value string `yaml:"value,omitempty"`

	// Bindings maps root-scope names to their expected final values in
	// display form. Checked per name; names absent here are not checked.
	Bindings map[string]string `yaml:"bindings,omitempty"`

	// Error is a substring the run error must contain. When set, the
	// run is expected to fail.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event with the given fields appears
	// - "trace_order": channels appear in the given order
	// - "trace_count": matching events appear exactly N times
	Type string `yaml:"type"`

	// Event is the event name to match (e.g. "MESSAGE_AVAILABLE").
	// Empty matches any event.
	Event string `yaml:"event,omitempty"`

	// Channel is the channel name to match.
	// Empty matches any channel.
	Channel string `yaml:"channel,omitempty"`

	// State is the destination state to match (e.g. "TERMINATED").
	// Empty matches any state.
	State string `yaml:"state,omitempty"`

	// Count is the expected number of matches (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Channels is the expected channel order (used by trace_order).
	Channels []string `yaml:"channels,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the term path against the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Term != "" && !filepath.IsAbs(scenario.Term) && basePath != "" {
		scenario.Term = filepath.Join(basePath, scenario.Term)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Term == "" {
		return fmt.Errorf("term is required")
	}
	if _, err := os.Stat(s.Term); os.IsNotExist(err) {
		return fmt.Errorf("term file not found: %s", s.Term)
	}

	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	for i, send := range s.Sends {
		if send.Channel == "" {
			return fmt.Errorf("sends[%d]: channel is required", i)
		}
		if send.Value == nil {
			return fmt.Errorf("sends[%d]: value is required", i)
		}
	}

	if s.Expect != nil && s.Expect.Value == "" && s.Expect.Error == "" && len(s.Expect.Bindings) == 0 {
		return fmt.Errorf("expect: value, bindings, or error is required")
	}
	if s.Expect != nil && s.Expect.Error != "" && (s.Expect.Value != "" || len(s.Expect.Bindings) > 0) {
		return fmt.Errorf("expect: error is mutually exclusive with value and bindings")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" && a.Channel == "" && a.State == "" {
			return fmt.Errorf("assertions[%d]: event, channel, or state is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Channels) < 2 {
			return fmt.Errorf("assertions[%d]: at least two channels are required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" && a.Channel == "" && a.State == "" {
			return fmt.Errorf("assertions[%d]: event, channel, or state is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
