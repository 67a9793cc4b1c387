package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/rheo/internal/term"
)

// Validation error codes (E100-E199)
const (
	// Structural errors (E100-E109)
	ErrEmptyPar        = "E100" // par with no operands
	ErrEmptyNew        = "E101" // new with no names
	ErrDuplicateBinder = "E102" // duplicate name in one binder
	ErrNoSelectArms    = "E103" // select with no arms
	ErrNoMatchCases    = "E104" // match with no cases
	ErrNoPatterns      = "E105" // receive or select arm with no patterns
	ErrOddMapCollect   = "E106" // map collect with odd element count
	ErrUnknownOp       = "E107" // operation with unrecognized op name
	ErrNoOperands      = "E108" // operation with no operands

	// Scope errors (E110-E119)
	ErrUnboundName = "E110" // free variable with no external binding
)

// ValidationError represents a structural validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// knownOps is the set of operation names the evaluator implements.
var knownOps = map[string]bool{
	"add": true, "sub": true, "mul": true, "div": true, "mod": true,
	"neg": true, "eq": true, "neq": true,
	"lt": true, "lte": true, "gt": true, "gte": true,
	"and": true, "or": true, "not": true,
	"length": true, "nth": true, "contains": true, "get": true,
	"union": true, "slice": true, "concat": true, "to_string": true,
}

// Validate checks a compiled term against structural rules.
// Returns all errors found (does not fail-fast). Externals are channel
// names bound by the runtime before the root term runs; any other free
// variable is an unbound name.
func Validate(root term.Proc, externals []string) []ValidationError {
	var errs []ValidationError

	bound := make(map[string]bool, len(externals))
	for _, name := range externals {
		bound[name] = true
	}

	walkProc(root, "term", bound, &errs)
	return errs
}

// walkProc validates one node and recurses into children. The bound map
// is copied before descending into a scope that introduces bindings so
// sibling branches do not observe each other's names.
func walkProc(p term.Proc, path string, bound map[string]bool, errs *[]ValidationError) {
	switch node := p.(type) {
	case nil, term.Stop, term.Literal:

	case term.Var:
		if !bound[node.Name] {
			*errs = append(*errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("unbound name %q", node.Name),
				Code:    ErrUnboundName,
			})
		}

	case term.Ref:
		if !bound[node.Name] {
			*errs = append(*errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("unbound name %q", node.Name),
				Code:    ErrUnboundName,
			})
		}

	case term.Par:
		if len(node.Procs) == 0 {
			*errs = append(*errs, ValidationError{
				Field:   path,
				Message: "par requires at least one operand",
				Code:    ErrEmptyPar,
			})
		}
		for i, child := range node.Procs {
			walkProc(child, fmt.Sprintf("%s.procs[%d]", path, i), bound, errs)
		}

	case term.New:
		if len(node.Names) == 0 {
			*errs = append(*errs, ValidationError{
				Field:   path,
				Message: "new requires at least one name",
				Code:    ErrEmptyNew,
			})
		}
		seen := make(map[string]bool)
		inner := extend(bound, node.Names)
		for _, name := range node.Names {
			if seen[name] {
				*errs = append(*errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("duplicate name %q in new", name),
					Code:    ErrDuplicateBinder,
				})
			}
			seen[name] = true
		}
		walkProc(node.Body, path+".body", inner, errs)

	case term.Send:
		walkProc(node.Chan, path+".chan", bound, errs)
		for i, arg := range node.Args {
			walkProc(arg, fmt.Sprintf("%s.args[%d]", path, i), bound, errs)
		}
		if node.Then != nil {
			walkProc(node.Then, path+".then", bound, errs)
		}

	case term.Receive:
		walkProc(node.Chan, path+".chan", bound, errs)
		if len(node.Patterns) == 0 {
			*errs = append(*errs, ValidationError{
				Field:   path,
				Message: "receive requires at least one pattern",
				Code:    ErrNoPatterns,
			})
		}
		walkBoundBody(node.Patterns, node.Body, path, bound, errs)

	case term.Select:
		if len(node.Arms) == 0 {
			*errs = append(*errs, ValidationError{
				Field:   path,
				Message: "select requires at least one arm",
				Code:    ErrNoSelectArms,
			})
		}
		for i, arm := range node.Arms {
			armPath := fmt.Sprintf("%s.arms[%d]", path, i)
			walkProc(arm.Chan, armPath+".chan", bound, errs)
			if len(arm.Patterns) == 0 {
				*errs = append(*errs, ValidationError{
					Field:   armPath,
					Message: "select arm requires at least one pattern",
					Code:    ErrNoPatterns,
				})
			}
			walkBoundBody(arm.Patterns, arm.Body, armPath, bound, errs)
		}

	case term.Cond:
		walkProc(node.If, path+".if", bound, errs)
		walkProc(node.Then, path+".then", bound, errs)
		if node.Else != nil {
			walkProc(node.Else, path+".else", bound, errs)
		}

	case term.Match:
		walkProc(node.Target, path+".target", bound, errs)
		if len(node.Cases) == 0 {
			*errs = append(*errs, ValidationError{
				Field:   path,
				Message: "match requires at least one case",
				Code:    ErrNoMatchCases,
			})
		}
		for i, c := range node.Cases {
			casePath := fmt.Sprintf("%s.cases[%d]", path, i)
			inner := extend(bound, term.BoundNames(c.Pattern))
			walkProc(c.Body, casePath+".body", inner, errs)
		}

	case term.Bundle:
		walkProc(node.Target, path+".target", bound, errs)

	case term.Operation:
		if !knownOps[node.Op] {
			*errs = append(*errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("unknown operation %q, known ops: %s", node.Op, knownOpNames()),
				Code:    ErrUnknownOp,
			})
		}
		if len(node.Operands) == 0 {
			*errs = append(*errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("operation %q requires operands", node.Op),
				Code:    ErrNoOperands,
			})
		}
		for i, operand := range node.Operands {
			walkProc(operand, fmt.Sprintf("%s.operands[%d]", path, i), bound, errs)
		}

	case term.Collect:
		if node.Kind == term.CollectMap && len(node.Elems)%2 != 0 {
			*errs = append(*errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("map collect requires an even element count, got %d", len(node.Elems)),
				Code:    ErrOddMapCollect,
			})
		}
		for i, elem := range node.Elems {
			walkProc(elem, fmt.Sprintf("%s.elems[%d]", path, i), bound, errs)
		}

	case term.Interpolate:
		walkProc(node.Template, path+".template", bound, errs)
		walkProc(node.Args, path+".args", bound, errs)

	case term.Conjoin:
		walkProc(node.Left, path+".left", bound, errs)
		walkProc(node.Right, path+".right", bound, errs)

	case term.Disjoin:
		walkProc(node.Left, path+".left", bound, errs)
		walkProc(node.Right, path+".right", bound, errs)

	case term.Negate:
		walkProc(node.Body, path+".body", bound, errs)
	}
}

// walkBoundBody validates a receive or select-arm body with the
// patterns' bindings in scope.
func walkBoundBody(patterns []term.Pattern, body term.Proc, path string, bound map[string]bool, errs *[]ValidationError) {
	var names []string
	for _, pat := range patterns {
		names = append(names, term.BoundNames(pat)...)
	}
	walkProc(body, path+".body", extend(bound, names), errs)
}

func extend(bound map[string]bool, names []string) map[string]bool {
	inner := make(map[string]bool, len(bound)+len(names))
	for name := range bound {
		inner[name] = true
	}
	for _, name := range names {
		inner[name] = true
	}
	return inner
}

func knownOpNames() string {
	names := make([]string, 0, len(knownOps))
	for op := range knownOps {
		names = append(names, op)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
