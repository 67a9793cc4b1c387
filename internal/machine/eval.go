package machine

import (
	"fmt"
	"strings"

	"github.com/roach88/rheo/internal/term"
)

// applyOp applies a primitive operator to fully evaluated operands.
// Operators are total over the kinds listed for them; anything else is a
// type mismatch terminating the instance.
func applyOp(instance int64, op string, operands []term.Value) (term.Value, *RuntimeError) {
	switch op {
	case "add":
		return applyAdd(instance, operands)
	case "sub", "mul", "div", "mod":
		return applyArith(instance, op, operands)
	case "neg":
		n, err := wantInt(instance, op, operands, 0)
		if err != nil {
			return nil, err
		}
		return term.Int(-n), nil
	case "eq":
		if err := wantArity(instance, op, operands, 2); err != nil {
			return nil, err
		}
		return term.Bool(term.Equal(operands[0], operands[1])), nil
	case "neq":
		if err := wantArity(instance, op, operands, 2); err != nil {
			return nil, err
		}
		return term.Bool(!term.Equal(operands[0], operands[1])), nil
	case "lt", "lte", "gt", "gte":
		return applyCompare(instance, op, operands)
	case "and", "or":
		return applyBool(instance, op, operands)
	case "not":
		b, err := wantBool(instance, op, operands, 0)
		if err != nil {
			return nil, err
		}
		return term.Bool(!b), nil
	case "length":
		return applyLength(instance, operands)
	case "nth":
		return applyNth(instance, operands)
	case "contains":
		return applyContains(instance, operands)
	case "get":
		return applyGet(instance, operands)
	case "union":
		return applyUnion(instance, operands)
	case "slice":
		return applySlice(instance, operands)
	case "concat":
		return applyAdd(instance, operands)
	case "to_string":
		if err := wantArity(instance, op, operands, 1); err != nil {
			return nil, err
		}
		return term.String(term.Format(operands[0])), nil
	}
	return nil, &RuntimeError{
		Code:     ErrCodeTypeMismatch,
		Message:  fmt.Sprintf("unknown operator %q", op),
		Instance: instance,
	}
}

// applyAdd adds integers or concatenates strings and lists, depending on
// the left operand's kind.
func applyAdd(instance int64, operands []term.Value) (term.Value, *RuntimeError) {
	if err := wantArity(instance, "add", operands, 2); err != nil {
		return nil, err
	}
	switch left := operands[0].(type) {
	case term.Int:
		right, ok := operands[1].(term.Int)
		if !ok {
			return nil, opMismatch(instance, "add", "int", operands[1])
		}
		return term.Int(int64(left) + int64(right)), nil
	case term.String:
		right, ok := operands[1].(term.String)
		if !ok {
			return nil, opMismatch(instance, "add", "string", operands[1])
		}
		return term.String(string(left) + string(right)), nil
	case term.List:
		right, ok := operands[1].(term.List)
		if !ok {
			return nil, opMismatch(instance, "add", "list", operands[1])
		}
		out := make(term.List, 0, len(left)+len(right))
		out = append(out, left...)
		out = append(out, right...)
		return out, nil
	}
	return nil, opMismatch(instance, "add", "int, string or list", operands[0])
}

func applyArith(instance int64, op string, operands []term.Value) (term.Value, *RuntimeError) {
	if err := wantArity(instance, op, operands, 2); err != nil {
		return nil, err
	}
	a, err := wantInt(instance, op, operands, 0)
	if err != nil {
		return nil, err
	}
	b, err := wantInt(instance, op, operands, 1)
	if err != nil {
		return nil, err
	}
	switch op {
	case "sub":
		return term.Int(a - b), nil
	case "mul":
		return term.Int(a * b), nil
	case "div":
		if b == 0 {
			return nil, &RuntimeError{
				Code:     ErrCodeTypeMismatch,
				Message:  "division by zero",
				Instance: instance,
			}
		}
		return term.Int(a / b), nil
	case "mod":
		if b == 0 {
			return nil, &RuntimeError{
				Code:     ErrCodeTypeMismatch,
				Message:  "modulo by zero",
				Instance: instance,
			}
		}
		return term.Int(a % b), nil
	}
	return nil, opMismatch(instance, op, "int", operands[0])
}

// applyCompare orders integers and strings.
func applyCompare(instance int64, op string, operands []term.Value) (term.Value, *RuntimeError) {
	if err := wantArity(instance, op, operands, 2); err != nil {
		return nil, err
	}

	var cmp int
	switch left := operands[0].(type) {
	case term.Int:
		right, ok := operands[1].(term.Int)
		if !ok {
			return nil, opMismatch(instance, op, "int", operands[1])
		}
		switch {
		case left < right:
			cmp = -1
		case left > right:
			cmp = 1
		}
	case term.String:
		right, ok := operands[1].(term.String)
		if !ok {
			return nil, opMismatch(instance, op, "string", operands[1])
		}
		cmp = strings.Compare(string(left), string(right))
	default:
		return nil, opMismatch(instance, op, "int or string", operands[0])
	}

	switch op {
	case "lt":
		return term.Bool(cmp < 0), nil
	case "lte":
		return term.Bool(cmp <= 0), nil
	case "gt":
		return term.Bool(cmp > 0), nil
	}
	return term.Bool(cmp >= 0), nil
}

// applyBool handles the non-short-circuited tail of and/or: when both
// operands were evaluated, or when the left alone decided the result and
// it is the only operand collected.
func applyBool(instance int64, op string, operands []term.Value) (term.Value, *RuntimeError) {
	left, err := wantBool(instance, op, operands, 0)
	if err != nil {
		return nil, err
	}
	if len(operands) == 1 {
		// Short-circuited: the left operand decided the result.
		return term.Bool(left), nil
	}
	right, err := wantBool(instance, op, operands, 1)
	if err != nil {
		return nil, err
	}
	if op == "and" {
		return term.Bool(left && right), nil
	}
	return term.Bool(left || right), nil
}

func applyLength(instance int64, operands []term.Value) (term.Value, *RuntimeError) {
	if err := wantArity(instance, "length", operands, 1); err != nil {
		return nil, err
	}
	switch v := operands[0].(type) {
	case term.String:
		return term.Int(int64(len(v))), nil
	case term.List:
		return term.Int(int64(len(v))), nil
	case term.Tuple:
		return term.Int(int64(len(v))), nil
	case term.Set:
		return term.Int(int64(len(v))), nil
	case term.Map:
		return term.Int(int64(len(v))), nil
	}
	return nil, opMismatch(instance, "length", "string, list, tuple, set or map", operands[0])
}

func applyNth(instance int64, operands []term.Value) (term.Value, *RuntimeError) {
	if err := wantArity(instance, "nth", operands, 2); err != nil {
		return nil, err
	}
	idx, err := wantInt(instance, "nth", operands, 1)
	if err != nil {
		return nil, err
	}
	var n int64
	pick := func(get func(int64) term.Value) (term.Value, *RuntimeError) {
		if idx < 0 || idx >= n {
			return nil, &RuntimeError{
				Code:     ErrCodeTypeMismatch,
				Message:  fmt.Sprintf("index %d out of range for length %d", idx, n),
				Instance: instance,
			}
		}
		return get(idx), nil
	}
	switch v := operands[0].(type) {
	case term.List:
		n = int64(len(v))
		return pick(func(i int64) term.Value { return v[i] })
	case term.Tuple:
		n = int64(len(v))
		return pick(func(i int64) term.Value { return v[i] })
	}
	return nil, opMismatch(instance, "nth", "list or tuple", operands[0])
}

func applyContains(instance int64, operands []term.Value) (term.Value, *RuntimeError) {
	if err := wantArity(instance, "contains", operands, 2); err != nil {
		return nil, err
	}
	needle := operands[1]
	switch v := operands[0].(type) {
	case term.String:
		s, ok := needle.(term.String)
		if !ok {
			return nil, opMismatch(instance, "contains", "string", needle)
		}
		return term.Bool(strings.Contains(string(v), string(s))), nil
	case term.List:
		for _, elem := range v {
			if term.Equal(elem, needle) {
				return term.Bool(true), nil
			}
		}
		return term.Bool(false), nil
	case term.Set:
		for _, elem := range v {
			if term.Equal(elem, needle) {
				return term.Bool(true), nil
			}
		}
		return term.Bool(false), nil
	case term.Map:
		_, found := v.Get(needle)
		return term.Bool(found), nil
	}
	return nil, opMismatch(instance, "contains", "string, list, set or map", operands[0])
}

func applyGet(instance int64, operands []term.Value) (term.Value, *RuntimeError) {
	if err := wantArity(instance, "get", operands, 2); err != nil {
		return nil, err
	}
	m, ok := operands[0].(term.Map)
	if !ok {
		return nil, opMismatch(instance, "get", "map", operands[0])
	}
	val, found := m.Get(operands[1])
	if !found {
		return nil, &RuntimeError{
			Code:     ErrCodeTypeMismatch,
			Message:  fmt.Sprintf("key %s not present in map", term.Format(operands[1])),
			Instance: instance,
		}
	}
	return val, nil
}

// applyUnion merges two sets or two maps; for maps the right operand wins
// on key collisions.
func applyUnion(instance int64, operands []term.Value) (term.Value, *RuntimeError) {
	if err := wantArity(instance, "union", operands, 2); err != nil {
		return nil, err
	}
	switch left := operands[0].(type) {
	case term.Set:
		right, ok := operands[1].(term.Set)
		if !ok {
			return nil, opMismatch(instance, "union", "set", operands[1])
		}
		elems := make([]term.Value, 0, len(left)+len(right))
		elems = append(elems, left...)
		elems = append(elems, right...)
		return term.NewSet(elems...), nil
	case term.Map:
		right, ok := operands[1].(term.Map)
		if !ok {
			return nil, opMismatch(instance, "union", "map", operands[1])
		}
		out := left
		for _, pair := range right {
			out = out.Put(pair.Key, pair.Val)
		}
		return out, nil
	}
	return nil, opMismatch(instance, "union", "set or map", operands[0])
}

func applySlice(instance int64, operands []term.Value) (term.Value, *RuntimeError) {
	if err := wantArity(instance, "slice", operands, 3); err != nil {
		return nil, err
	}
	lo, err := wantInt(instance, "slice", operands, 1)
	if err != nil {
		return nil, err
	}
	hi, err := wantInt(instance, "slice", operands, 2)
	if err != nil {
		return nil, err
	}
	bounds := func(n int64) *RuntimeError {
		if lo < 0 || hi < lo || hi > n {
			return &RuntimeError{
				Code:     ErrCodeTypeMismatch,
				Message:  fmt.Sprintf("slice bounds [%d:%d] out of range for length %d", lo, hi, n),
				Instance: instance,
			}
		}
		return nil
	}
	switch v := operands[0].(type) {
	case term.String:
		if err := bounds(int64(len(v))); err != nil {
			return nil, err
		}
		return term.String(v[lo:hi]), nil
	case term.List:
		if err := bounds(int64(len(v))); err != nil {
			return nil, err
		}
		out := make(term.List, hi-lo)
		copy(out, v[lo:hi])
		return out, nil
	}
	return nil, opMismatch(instance, "slice", "string or list", operands[0])
}

// interpolate substitutes ${key} occurrences in tmpl with the rendered
// value bound to the string key in args. A key with no binding is an
// error; literal "$" without a brace passes through unchanged.
func interpolate(instance int64, tmpl string, args term.Map) (string, *RuntimeError) {
	var out strings.Builder
	for i := 0; i < len(tmpl); {
		if tmpl[i] != '$' || i+1 >= len(tmpl) || tmpl[i+1] != '{' {
			out.WriteByte(tmpl[i])
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i+2:], '}')
		if end < 0 {
			return "", &RuntimeError{
				Code:     ErrCodeTypeMismatch,
				Message:  fmt.Sprintf("unterminated interpolation at offset %d", i),
				Instance: instance,
			}
		}
		key := tmpl[i+2 : i+2+end]
		val, found := args.Get(term.String(key))
		if !found {
			return "", &RuntimeError{
				Code:     ErrCodeUnboundName,
				Message:  fmt.Sprintf("interpolation key %q has no binding", key),
				Instance: instance,
			}
		}
		if s, ok := val.(term.String); ok {
			out.WriteString(string(s))
		} else {
			out.WriteString(term.Format(val))
		}
		i += 2 + end + 1
	}
	return out.String(), nil
}

func wantArity(instance int64, op string, operands []term.Value, n int) *RuntimeError {
	if len(operands) != n {
		return &RuntimeError{
			Code:     ErrCodeTypeMismatch,
			Message:  fmt.Sprintf("operator %q wants %d operands, got %d", op, n, len(operands)),
			Instance: instance,
		}
	}
	return nil
}

func wantInt(instance int64, op string, operands []term.Value, i int) (int64, *RuntimeError) {
	if i >= len(operands) {
		return 0, wantArity(instance, op, operands, i+1)
	}
	n, ok := operands[i].(term.Int)
	if !ok {
		return 0, opMismatch(instance, op, "int", operands[i])
	}
	return int64(n), nil
}

func wantBool(instance int64, op string, operands []term.Value, i int) (bool, *RuntimeError) {
	if i >= len(operands) {
		return false, wantArity(instance, op, operands, i+1)
	}
	b, ok := operands[i].(term.Bool)
	if !ok {
		return false, opMismatch(instance, op, "bool", operands[i])
	}
	return bool(b), nil
}

func opMismatch(instance int64, op, want string, got term.Value) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeTypeMismatch,
		Message:  fmt.Sprintf("operator %q wants %s, got %s", op, want, term.Format(got)),
		Instance: instance,
		Details:  map[string]string{"op": op, "got": term.Format(got)},
	}
}
