package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rheo/internal/term"
)

// CompileTerm parses a CUE value into a process term.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the term struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`term: {node: "stop"}`)
//	root, err := CompileTerm(v.LookupPath(cue.ParsePath("term")))
//
// The data shape mirrors the canonical JSON encoding: every process node
// carries a "node" tag, every pattern a "pat" tag.
func CompileTerm(v cue.Value) (term.Proc, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileProc(v)
}

func compileProc(v cue.Value) (term.Proc, error) {
	node, err := stringField(v, "node")
	if err != nil {
		return nil, err
	}

	switch node {
	case "stop":
		return term.Stop{}, nil

	case "literal":
		val, err := compileValue(v.LookupPath(cue.ParsePath("value")))
		if err != nil {
			return nil, err
		}
		return term.Literal{Value: val}, nil

	case "var":
		name, err := stringField(v, "name")
		if err != nil {
			return nil, err
		}
		return term.Var{Name: name}, nil

	case "par":
		procs, err := compileProcList(v, "procs")
		if err != nil {
			return nil, err
		}
		return term.Par{Procs: procs}, nil

	case "new":
		names, err := stringListField(v, "names")
		if err != nil {
			return nil, err
		}
		body, err := compileProc(v.LookupPath(cue.ParsePath("body")))
		if err != nil {
			return nil, err
		}
		return term.New{Names: names, Body: body}, nil

	case "send":
		ch, err := compileProc(v.LookupPath(cue.ParsePath("chan")))
		if err != nil {
			return nil, err
		}
		args, err := compileProcList(v, "args")
		if err != nil {
			return nil, err
		}
		s := term.Send{Chan: ch, Args: args}
		if syncVal := v.LookupPath(cue.ParsePath("sync")); syncVal.Exists() {
			if s.Sync, err = syncVal.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if persVal := v.LookupPath(cue.ParsePath("persistent")); persVal.Exists() {
			if s.Persistent, err = persVal.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if thenVal := v.LookupPath(cue.ParsePath("then")); thenVal.Exists() {
			if s.Then, err = compileProc(thenVal); err != nil {
				return nil, err
			}
		}
		return s, nil

	case "receive":
		ch, err := compileProc(v.LookupPath(cue.ParsePath("chan")))
		if err != nil {
			return nil, err
		}
		pats, err := compilePatternList(v, "patterns")
		if err != nil {
			return nil, err
		}
		mode := term.ReceiveOnce
		if modeVal := v.LookupPath(cue.ParsePath("mode")); modeVal.Exists() {
			raw, err := modeVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			mode = term.ReceiveMode(raw)
			switch mode {
			case term.ReceiveOnce, term.ReceivePersistent, term.ReceivePeek:
			default:
				return nil, &CompileError{
					Field:   "mode",
					Message: fmt.Sprintf("invalid receive mode %q, must be \"once\", \"persistent\", or \"peek\"", raw),
					Pos:     modeVal.Pos(),
				}
			}
		}
		body, err := compileProc(v.LookupPath(cue.ParsePath("body")))
		if err != nil {
			return nil, err
		}
		return term.Receive{Chan: ch, Patterns: pats, Mode: mode, Body: body}, nil

	case "select":
		armsVal := v.LookupPath(cue.ParsePath("arms"))
		if !armsVal.Exists() {
			return nil, &CompileError{
				Field:   "arms",
				Message: "select requires arms",
				Pos:     v.Pos(),
			}
		}
		iter, err := armsVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var arms []term.SelectArm
		for iter.Next() {
			armVal := iter.Value()
			ch, err := compileProc(armVal.LookupPath(cue.ParsePath("chan")))
			if err != nil {
				return nil, err
			}
			pats, err := compilePatternList(armVal, "patterns")
			if err != nil {
				return nil, err
			}
			body, err := compileProc(armVal.LookupPath(cue.ParsePath("body")))
			if err != nil {
				return nil, err
			}
			arms = append(arms, term.SelectArm{Chan: ch, Patterns: pats, Body: body})
		}
		return term.Select{Arms: arms}, nil

	case "cond":
		cond, err := compileProc(v.LookupPath(cue.ParsePath("if")))
		if err != nil {
			return nil, err
		}
		then, err := compileProc(v.LookupPath(cue.ParsePath("then")))
		if err != nil {
			return nil, err
		}
		c := term.Cond{If: cond, Then: then}
		if elseVal := v.LookupPath(cue.ParsePath("else")); elseVal.Exists() {
			if c.Else, err = compileProc(elseVal); err != nil {
				return nil, err
			}
		}
		return c, nil

	case "match":
		target, err := compileProc(v.LookupPath(cue.ParsePath("target")))
		if err != nil {
			return nil, err
		}
		casesVal := v.LookupPath(cue.ParsePath("cases"))
		if !casesVal.Exists() {
			return nil, &CompileError{
				Field:   "cases",
				Message: "match requires cases",
				Pos:     v.Pos(),
			}
		}
		iter, err := casesVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var cases []term.MatchCase
		for iter.Next() {
			caseVal := iter.Value()
			pat, err := compilePattern(caseVal.LookupPath(cue.ParsePath("pattern")))
			if err != nil {
				return nil, err
			}
			body, err := compileProc(caseVal.LookupPath(cue.ParsePath("body")))
			if err != nil {
				return nil, err
			}
			cases = append(cases, term.MatchCase{Pattern: pat, Body: body})
		}
		return term.Match{Target: target, Cases: cases}, nil

	case "bundle":
		raw, err := stringField(v, "mode")
		if err != nil {
			return nil, err
		}
		mode := term.BundleMode(raw)
		switch mode {
		case term.BundleWrite, term.BundleRead, term.BundleEquiv, term.BundleReadWrite:
		default:
			return nil, &CompileError{
				Field:   "mode",
				Message: fmt.Sprintf("invalid bundle mode %q, must be \"write\", \"read\", \"equiv\", or \"rw\"", raw),
				Pos:     v.Pos(),
			}
		}
		target, err := compileProc(v.LookupPath(cue.ParsePath("target")))
		if err != nil {
			return nil, err
		}
		return term.Bundle{Mode: mode, Target: target}, nil

	case "operation":
		op, err := stringField(v, "op")
		if err != nil {
			return nil, err
		}
		operands, err := compileProcList(v, "operands")
		if err != nil {
			return nil, err
		}
		return term.Operation{Op: op, Operands: operands}, nil

	case "collect":
		raw, err := stringField(v, "kind")
		if err != nil {
			return nil, err
		}
		kind := term.CollectKind(raw)
		switch kind {
		case term.CollectList, term.CollectSet, term.CollectMap, term.CollectTuple:
		default:
			return nil, &CompileError{
				Field:   "kind",
				Message: fmt.Sprintf("invalid collect kind %q, must be \"list\", \"set\", \"map\", or \"tuple\"", raw),
				Pos:     v.Pos(),
			}
		}
		elems, err := compileProcList(v, "elems")
		if err != nil {
			return nil, err
		}
		return term.Collect{Kind: kind, Elems: elems}, nil

	case "interpolate":
		tmpl, err := compileProc(v.LookupPath(cue.ParsePath("template")))
		if err != nil {
			return nil, err
		}
		args, err := compileProc(v.LookupPath(cue.ParsePath("args")))
		if err != nil {
			return nil, err
		}
		return term.Interpolate{Template: tmpl, Args: args}, nil

	case "conjoin":
		left, right, err := compilePair(v)
		if err != nil {
			return nil, err
		}
		return term.Conjoin{Left: left, Right: right}, nil

	case "disjoin":
		left, right, err := compilePair(v)
		if err != nil {
			return nil, err
		}
		return term.Disjoin{Left: left, Right: right}, nil

	case "negate":
		body, err := compileProc(v.LookupPath(cue.ParsePath("body")))
		if err != nil {
			return nil, err
		}
		return term.Negate{Body: body}, nil

	case "ref":
		raw, err := stringField(v, "mode")
		if err != nil {
			return nil, err
		}
		mode := term.RefMode(raw)
		if mode != term.RefCopy && mode != term.RefMove {
			return nil, &CompileError{
				Field:   "mode",
				Message: fmt.Sprintf("invalid ref mode %q, must be \"copy\" or \"move\"", raw),
				Pos:     v.Pos(),
			}
		}
		name, err := stringField(v, "name")
		if err != nil {
			return nil, err
		}
		return term.Ref{Mode: mode, Name: name}, nil

	default:
		return nil, &CompileError{
			Field:   "node",
			Message: fmt.Sprintf("unknown process node %q", node),
			Pos:     v.Pos(),
		}
	}
}

// compilePattern parses a pattern struct tagged by "pat".
func compilePattern(v cue.Value) (term.Pattern, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	pat, err := stringField(v, "pat")
	if err != nil {
		return nil, err
	}

	switch pat {
	case "wildcard":
		return term.PWildcard{}, nil

	case "bind":
		name, err := stringField(v, "name")
		if err != nil {
			return nil, err
		}
		return term.PBind{Name: name}, nil

	case "value":
		val, err := compileValue(v.LookupPath(cue.ParsePath("value")))
		if err != nil {
			return nil, err
		}
		return term.PValue{Value: val}, nil

	case "list":
		elems, err := compilePatternList(v, "elems")
		if err != nil {
			return nil, err
		}
		p := term.PList{Elems: elems}
		if restVal := v.LookupPath(cue.ParsePath("rest")); restVal.Exists() {
			if p.Rest, err = restVal.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		return p, nil

	case "tuple":
		elems, err := compilePatternList(v, "elems")
		if err != nil {
			return nil, err
		}
		return term.PTuple{Elems: elems}, nil

	case "map":
		entriesVal := v.LookupPath(cue.ParsePath("entries"))
		if !entriesVal.Exists() {
			return nil, &CompileError{
				Field:   "entries",
				Message: "map pattern requires entries",
				Pos:     v.Pos(),
			}
		}
		iter, err := entriesVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var entries []term.PMapEntry
		for iter.Next() {
			entryVal := iter.Value()
			key, err := compileValue(entryVal.LookupPath(cue.ParsePath("key")))
			if err != nil {
				return nil, err
			}
			val, err := compilePattern(entryVal.LookupPath(cue.ParsePath("val")))
			if err != nil {
				return nil, err
			}
			entries = append(entries, term.PMapEntry{Key: key, Val: val})
		}
		p := term.PMap{Entries: entries}
		if exactVal := v.LookupPath(cue.ParsePath("exact")); exactVal.Exists() {
			if p.Exact, err = exactVal.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		return p, nil

	case "and":
		pats, err := compilePatternList(v, "pats")
		if err != nil {
			return nil, err
		}
		return term.PAnd{Pats: pats}, nil

	case "or":
		pats, err := compilePatternList(v, "pats")
		if err != nil {
			return nil, err
		}
		return term.POr{Pats: pats}, nil

	case "not":
		sub, err := compilePattern(v.LookupPath(cue.ParsePath("sub")))
		if err != nil {
			return nil, err
		}
		return term.PNot{Pat: sub}, nil

	default:
		return nil, &CompileError{
			Field:   "pat",
			Message: fmt.Sprintf("unknown pattern %q", pat),
			Pos:     v.Pos(),
		}
	}
}

// compileValue parses a CUE value into a runtime value. Scalars map
// directly; structured values use the "%" tag of the canonical encoding.
// Floats are not representable - use int.
func compileValue(v cue.Value) (term.Value, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.Exists() {
		return nil, &CompileError{
			Field:   "value",
			Message: "missing value",
			Pos:     v.Pos(),
		}
	}

	switch v.Kind() {
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return term.Bool(b), nil

	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return term.Int(i), nil

	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return term.String(s), nil

	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "value",
			Message: "float values are not representable, use int",
			Pos:     v.Pos(),
		}

	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		list := term.List{}
		for iter.Next() {
			elem, err := compileValue(iter.Value())
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		return list, nil

	case cue.StructKind:
		return compileTaggedValue(v)

	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// compileTaggedValue handles the structured values of the canonical
// encoding: {"%": "nil" | "tuple" | "set" | "map" | "chan" | "conn"}.
func compileTaggedValue(v cue.Value) (term.Value, error) {
	// "%" is not a CUE identifier, so the tag needs an explicit string
	// selector rather than ParsePath
	tagVal := v.LookupPath(cue.MakePath(cue.Str("%")))
	if !tagVal.Exists() {
		return nil, &CompileError{
			Field:   "%",
			Message: "structured value requires a \"%\" tag",
			Pos:     v.Pos(),
		}
	}
	tag, err := tagVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}

	switch tag {
	case "nil":
		return term.Nil{}, nil

	case "tuple":
		elems, err := compileValueList(v, "elems")
		if err != nil {
			return nil, err
		}
		return term.Tuple(elems), nil

	case "set":
		elems, err := compileValueList(v, "elems")
		if err != nil {
			return nil, err
		}
		return term.NewSet(elems...), nil

	case "map":
		pairsVal := v.LookupPath(cue.ParsePath("pairs"))
		if !pairsVal.Exists() {
			return nil, &CompileError{
				Field:   "pairs",
				Message: "map value requires pairs",
				Pos:     v.Pos(),
			}
		}
		iter, err := pairsVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		m := term.Map{}
		for iter.Next() {
			pairVal := iter.Value()
			key, err := compileValue(pairVal.LookupPath(cue.ParsePath("key")))
			if err != nil {
				return nil, err
			}
			val, err := compileValue(pairVal.LookupPath(cue.ParsePath("val")))
			if err != nil {
				return nil, err
			}
			m = m.Put(key, val)
		}
		return m, nil

	case "chan":
		id, err := stringField(v, "id")
		if err != nil {
			return nil, err
		}
		// Capabilities are not part of the encoding; a decoded channel
		// regains full caps
		return term.Channel{ID: id, Caps: term.AllCaps}, nil

	case "conn":
		return nil, &CompileError{
			Field:   "%",
			Message: "connective values cannot appear in source terms",
			Pos:     v.Pos(),
		}

	default:
		return nil, &CompileError{
			Field:   "%",
			Message: fmt.Sprintf("unknown value tag %q", tag),
			Pos:     v.Pos(),
		}
	}
}

func compilePair(v cue.Value) (term.Proc, term.Proc, error) {
	left, err := compileProc(v.LookupPath(cue.ParsePath("left")))
	if err != nil {
		return nil, nil, err
	}
	right, err := compileProc(v.LookupPath(cue.ParsePath("right")))
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func compileProcList(v cue.Value, field string) ([]term.Proc, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var procs []term.Proc
	for iter.Next() {
		p, err := compileProc(iter.Value())
		if err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	return procs, nil
}

func compilePatternList(v cue.Value, field string) ([]term.Pattern, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var pats []term.Pattern
	for iter.Next() {
		p, err := compilePattern(iter.Value())
		if err != nil {
			return nil, err
		}
		pats = append(pats, p)
	}
	return pats, nil
}

func compileValueList(v cue.Value, field string) ([]term.Value, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var vals []term.Value
	for iter.Next() {
		val, err := compileValue(iter.Value())
		if err != nil {
			return nil, err
		}
		vals = append(vals, val)
	}
	return vals, nil
}

func stringField(v cue.Value, field string) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Pos:     v.Pos(),
		}
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func stringListField(v cue.Value, field string) ([]string, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Pos:     v.Pos(),
		}
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
