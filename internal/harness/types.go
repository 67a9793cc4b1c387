package harness

import "github.com/roach88/rheo/internal/machine"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True when the expect clause and all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains the full step trace in clock order.
	// Used for trace assertions and golden comparison.
	Trace []machine.TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Value is the final value in display form, empty when the run
	// failed.
	Value string `json:"value,omitempty"`

	// Bindings is the root scope's final environment in display form,
	// empty when the run failed.
	Bindings map[string]string `json:"bindings,omitempty"`

	// Steps is the number of progressed transitions.
	Steps int64 `json:"steps"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []machine.TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
