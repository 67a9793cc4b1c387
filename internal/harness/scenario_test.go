package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenarioFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/echo.yaml")
	require.NoError(t, err)

	assert.Equal(t, "echo", scenario.Name)
	assert.Equal(t, filepath.Join("testdata", "scenarios", "..", "terms", "echo.cue"), scenario.Term)
	require.Len(t, scenario.Sends, 1)
	assert.Equal(t, "in", scenario.Sends[0].Channel)
	assert.Equal(t, "hello", scenario.Sends[0].Value)
	require.NotNil(t, scenario.Expect)
	assert.Equal(t, "hello", scenario.Expect.Value)
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, AssertTraceContains, scenario.Assertions[0].Type)
}

func TestLoadScenario_ResolvesTermAgainstScenarioDir(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/sum.yaml")
	require.NoError(t, err)

	_, statErr := os.Stat(scenario.Term)
	assert.NoError(t, statErr)
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/does-not-exist.yaml")
	require.Error(t, err)
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	// "assertion" instead of "assertions" is a typo the strict decoder
	// must reject
	path := writeScenarioFile(t, `
name: typo
description: typo in assertions key
term: term.cue
assertion:
  - type: trace_contains
    event: SIGNAL
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"missing name",
			"description: d\nterm: t.cue\n",
			"name is required",
		},
		{
			"missing description",
			"name: n\nterm: t.cue\n",
			"description is required",
		},
		{
			"missing term",
			"name: n\ndescription: d\n",
			"term is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenarioFile(t, tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_TermFileMustExist(t *testing.T) {
	path := writeScenarioFile(t, `
name: missing-term
description: the term file does not exist
term: nowhere.cue
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "term file not found")
}

func TestValidateScenario_ExpectClause(t *testing.T) {
	base := Scenario{Name: "n", Description: "d", Term: "testdata/terms/sum.cue"}

	empty := base
	empty.Expect = &ExpectClause{}
	err := validateScenario(&empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value, bindings, or error is required")

	both := base
	both.Expect = &ExpectClause{Value: "3", Error: "boom"}
	err = validateScenario(&both)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")

	errorWithBindings := base
	errorWithBindings.Expect = &ExpectClause{Error: "boom", Bindings: map[string]string{"x": "1"}}
	err = validateScenario(&errorWithBindings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")

	bindingsOnly := base
	bindingsOnly.Expect = &ExpectClause{Bindings: map[string]string{"x": "1"}}
	assert.NoError(t, validateScenario(&bindingsOnly))
}

func TestValidateScenario_Sends(t *testing.T) {
	s := Scenario{
		Name:        "n",
		Description: "d",
		Term:        "testdata/terms/echo.cue",
		Sends:       []SendStep{{Channel: "", Value: 1}},
	}
	err := validateScenario(&s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sends[0]: channel is required")

	s.Sends = []SendStep{{Channel: "in", Value: nil}}
	err = validateScenario(&s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sends[0]: value is required")
}

func TestValidateAssertion(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"missing type", Assertion{}, "type is required"},
		{"unknown type", Assertion{Type: "final_state"}, "unknown assertion type"},
		{
			"contains without filter",
			Assertion{Type: AssertTraceContains},
			"event, channel, or state is required",
		},
		{
			"order with one channel",
			Assertion{Type: AssertTraceOrder, Channels: []string{"a"}},
			"at least two channels",
		},
		{
			"count negative",
			Assertion{Type: AssertTraceCount, Event: "SIGNAL", Count: -1},
			"count must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAssertion(0, &tt.assertion)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.NoError(t, validateAssertion(0, &Assertion{Type: AssertTraceOrder, Channels: []string{"a", "b"}}))
	assert.NoError(t, validateAssertion(0, &Assertion{Type: AssertTraceCount, Channel: "a", Count: 0}))
}
