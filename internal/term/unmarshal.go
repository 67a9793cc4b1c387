package term

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnmarshalProc decodes the canonical JSON encoding of a process term.
// It is the inverse of MarshalProc and accepts exactly the shapes that
// function produces, so a stored term always round-trips.
func UnmarshalProc(data []byte) (Proc, error) {
	raw, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	return decodeProc(raw)
}

// UnmarshalPattern decodes the canonical JSON encoding of a pattern.
func UnmarshalPattern(data []byte) (Pattern, error) {
	raw, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	return decodePattern(raw)
}

// UnmarshalValue decodes the canonical JSON encoding of a value.
func UnmarshalValue(data []byte) (Value, error) {
	raw, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	return decodeValue(raw)
}

// decodeJSON parses with json.Number so integers survive without a float
// round-trip.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse canonical JSON: %w", err)
	}
	return raw, nil
}

func decodeProc(raw any) (Proc, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("process node must be an object, got %T", raw)
	}
	node, _ := obj["node"].(string)
	switch node {
	case "stop":
		return Stop{}, nil
	case "literal":
		val, err := decodeValue(obj["value"])
		if err != nil {
			return nil, fmt.Errorf("literal: %w", err)
		}
		return Literal{Value: val}, nil
	case "var":
		name, err := stringField(obj, "name")
		if err != nil {
			return nil, fmt.Errorf("var: %w", err)
		}
		return Var{Name: name}, nil
	case "par":
		procs, err := decodeProcSeq(obj["procs"])
		if err != nil {
			return nil, fmt.Errorf("par: %w", err)
		}
		return Par{Procs: procs}, nil
	case "new":
		names, err := stringSeq(obj["names"])
		if err != nil {
			return nil, fmt.Errorf("new: %w", err)
		}
		body, err := decodeProc(obj["body"])
		if err != nil {
			return nil, fmt.Errorf("new body: %w", err)
		}
		return New{Names: names, Body: body}, nil
	case "send":
		ch, err := decodeProc(obj["chan"])
		if err != nil {
			return nil, fmt.Errorf("send chan: %w", err)
		}
		args, err := decodeProcSeq(obj["args"])
		if err != nil {
			return nil, fmt.Errorf("send args: %w", err)
		}
		out := Send{Chan: ch, Args: args}
		out.Sync, _ = obj["sync"].(bool)
		out.Persistent, _ = obj["persistent"].(bool)
		if then, present := obj["then"]; present {
			out.Then, err = decodeProc(then)
			if err != nil {
				return nil, fmt.Errorf("send then: %w", err)
			}
		}
		return out, nil
	case "receive":
		ch, err := decodeProc(obj["chan"])
		if err != nil {
			return nil, fmt.Errorf("receive chan: %w", err)
		}
		pats, err := decodePatternSeq(obj["patterns"])
		if err != nil {
			return nil, fmt.Errorf("receive patterns: %w", err)
		}
		mode, err := stringField(obj, "mode")
		if err != nil {
			return nil, fmt.Errorf("receive: %w", err)
		}
		body, err := decodeProc(obj["body"])
		if err != nil {
			return nil, fmt.Errorf("receive body: %w", err)
		}
		return Receive{Chan: ch, Patterns: pats, Mode: ReceiveMode(mode), Body: body}, nil
	case "select":
		rawArms, ok := obj["arms"].([]any)
		if !ok {
			return nil, fmt.Errorf("select arms must be an array")
		}
		arms := make([]SelectArm, len(rawArms))
		for i, rawArm := range rawArms {
			armObj, ok := rawArm.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("select arm %d must be an object", i)
			}
			ch, err := decodeProc(armObj["chan"])
			if err != nil {
				return nil, fmt.Errorf("select arm %d chan: %w", i, err)
			}
			pats, err := decodePatternSeq(armObj["patterns"])
			if err != nil {
				return nil, fmt.Errorf("select arm %d patterns: %w", i, err)
			}
			body, err := decodeProc(armObj["body"])
			if err != nil {
				return nil, fmt.Errorf("select arm %d body: %w", i, err)
			}
			arms[i] = SelectArm{Chan: ch, Patterns: pats, Body: body}
		}
		return Select{Arms: arms}, nil
	case "cond":
		cond, err := decodeProc(obj["if"])
		if err != nil {
			return nil, fmt.Errorf("cond if: %w", err)
		}
		then, err := decodeProc(obj["then"])
		if err != nil {
			return nil, fmt.Errorf("cond then: %w", err)
		}
		out := Cond{If: cond, Then: then}
		if els, present := obj["else"]; present {
			out.Else, err = decodeProc(els)
			if err != nil {
				return nil, fmt.Errorf("cond else: %w", err)
			}
		}
		return out, nil
	case "match":
		target, err := decodeProc(obj["target"])
		if err != nil {
			return nil, fmt.Errorf("match target: %w", err)
		}
		rawCases, ok := obj["cases"].([]any)
		if !ok {
			return nil, fmt.Errorf("match cases must be an array")
		}
		cases := make([]MatchCase, len(rawCases))
		for i, rawCase := range rawCases {
			caseObj, ok := rawCase.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("match case %d must be an object", i)
			}
			pat, err := decodePattern(caseObj["pattern"])
			if err != nil {
				return nil, fmt.Errorf("match case %d pattern: %w", i, err)
			}
			body, err := decodeProc(caseObj["body"])
			if err != nil {
				return nil, fmt.Errorf("match case %d body: %w", i, err)
			}
			cases[i] = MatchCase{Pattern: pat, Body: body}
		}
		return Match{Target: target, Cases: cases}, nil
	case "bundle":
		mode, err := stringField(obj, "mode")
		if err != nil {
			return nil, fmt.Errorf("bundle: %w", err)
		}
		target, err := decodeProc(obj["target"])
		if err != nil {
			return nil, fmt.Errorf("bundle target: %w", err)
		}
		return Bundle{Mode: BundleMode(mode), Target: target}, nil
	case "operation":
		op, err := stringField(obj, "op")
		if err != nil {
			return nil, fmt.Errorf("operation: %w", err)
		}
		operands, err := decodeProcSeq(obj["operands"])
		if err != nil {
			return nil, fmt.Errorf("operation operands: %w", err)
		}
		return Operation{Op: op, Operands: operands}, nil
	case "collect":
		kind, err := stringField(obj, "kind")
		if err != nil {
			return nil, fmt.Errorf("collect: %w", err)
		}
		elems, err := decodeProcSeq(obj["elems"])
		if err != nil {
			return nil, fmt.Errorf("collect elems: %w", err)
		}
		return Collect{Kind: CollectKind(kind), Elems: elems}, nil
	case "interpolate":
		tmpl, err := decodeProc(obj["template"])
		if err != nil {
			return nil, fmt.Errorf("interpolate template: %w", err)
		}
		args, err := decodeProc(obj["args"])
		if err != nil {
			return nil, fmt.Errorf("interpolate args: %w", err)
		}
		return Interpolate{Template: tmpl, Args: args}, nil
	case "conjoin", "disjoin":
		left, err := decodeProc(obj["left"])
		if err != nil {
			return nil, fmt.Errorf("%s left: %w", node, err)
		}
		right, err := decodeProc(obj["right"])
		if err != nil {
			return nil, fmt.Errorf("%s right: %w", node, err)
		}
		if node == "conjoin" {
			return Conjoin{Left: left, Right: right}, nil
		}
		return Disjoin{Left: left, Right: right}, nil
	case "negate":
		body, err := decodeProc(obj["body"])
		if err != nil {
			return nil, fmt.Errorf("negate body: %w", err)
		}
		return Negate{Body: body}, nil
	case "ref":
		mode, err := stringField(obj, "mode")
		if err != nil {
			return nil, fmt.Errorf("ref: %w", err)
		}
		name, err := stringField(obj, "name")
		if err != nil {
			return nil, fmt.Errorf("ref: %w", err)
		}
		return Ref{Mode: RefMode(mode), Name: name}, nil
	default:
		return nil, fmt.Errorf("unknown process node %q", node)
	}
}

func decodePattern(raw any) (Pattern, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("pattern must be an object, got %T", raw)
	}
	pat, _ := obj["pat"].(string)
	switch pat {
	case "wildcard":
		return PWildcard{}, nil
	case "bind":
		name, err := stringField(obj, "name")
		if err != nil {
			return nil, fmt.Errorf("bind: %w", err)
		}
		return PBind{Name: name}, nil
	case "value":
		val, err := decodeValue(obj["value"])
		if err != nil {
			return nil, fmt.Errorf("value pattern: %w", err)
		}
		return PValue{Value: val}, nil
	case "list":
		elems, err := decodePatternSeq(obj["elems"])
		if err != nil {
			return nil, fmt.Errorf("list pattern: %w", err)
		}
		out := PList{Elems: elems}
		out.Rest, _ = obj["rest"].(string)
		return out, nil
	case "tuple":
		elems, err := decodePatternSeq(obj["elems"])
		if err != nil {
			return nil, fmt.Errorf("tuple pattern: %w", err)
		}
		return PTuple{Elems: elems}, nil
	case "map":
		rawEntries, ok := obj["entries"].([]any)
		if !ok {
			return nil, fmt.Errorf("map pattern entries must be an array")
		}
		entries := make([]PMapEntry, len(rawEntries))
		for i, rawEntry := range rawEntries {
			entryObj, ok := rawEntry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("map pattern entry %d must be an object", i)
			}
			key, err := decodeValue(entryObj["key"])
			if err != nil {
				return nil, fmt.Errorf("map pattern entry %d key: %w", i, err)
			}
			val, err := decodePattern(entryObj["val"])
			if err != nil {
				return nil, fmt.Errorf("map pattern entry %d val: %w", i, err)
			}
			entries[i] = PMapEntry{Key: key, Val: val}
		}
		exact, _ := obj["exact"].(bool)
		return PMap{Entries: entries, Exact: exact}, nil
	case "and":
		pats, err := decodePatternSeq(obj["pats"])
		if err != nil {
			return nil, fmt.Errorf("and pattern: %w", err)
		}
		return PAnd{Pats: pats}, nil
	case "or":
		pats, err := decodePatternSeq(obj["pats"])
		if err != nil {
			return nil, fmt.Errorf("or pattern: %w", err)
		}
		return POr{Pats: pats}, nil
	case "not":
		sub, err := decodePattern(obj["sub"])
		if err != nil {
			return nil, fmt.Errorf("not pattern: %w", err)
		}
		return PNot{Pat: sub}, nil
	default:
		return nil, fmt.Errorf("unknown pattern %q", pat)
	}
}

func decodeValue(raw any) (Value, error) {
	switch val := raw.(type) {
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("non-integer number %s (floats are forbidden)", val)
		}
		return Int(n), nil
	case []any:
		elems, err := decodeValueSeq(val)
		if err != nil {
			return nil, err
		}
		return List(elems), nil
	case map[string]any:
		tag, _ := val["%"].(string)
		switch tag {
		case "nil":
			return Nil{}, nil
		case "tuple":
			elems, err := decodeValueSeq(val["elems"])
			if err != nil {
				return nil, fmt.Errorf("tuple: %w", err)
			}
			return Tuple(elems), nil
		case "set":
			elems, err := decodeValueSeq(val["elems"])
			if err != nil {
				return nil, fmt.Errorf("set: %w", err)
			}
			return NewSet(elems...), nil
		case "map":
			rawEntries, ok := val["entries"].([]any)
			if !ok {
				return nil, fmt.Errorf("map entries must be an array")
			}
			out := make(Map, 0, len(rawEntries))
			for i, rawEntry := range rawEntries {
				pair, ok := rawEntry.([]any)
				if !ok || len(pair) != 2 {
					return nil, fmt.Errorf("map entry %d must be a [key, value] pair", i)
				}
				key, err := decodeValue(pair[0])
				if err != nil {
					return nil, fmt.Errorf("map entry %d key: %w", i, err)
				}
				v, err := decodeValue(pair[1])
				if err != nil {
					return nil, fmt.Errorf("map entry %d value: %w", i, err)
				}
				out = out.Put(key, v)
			}
			return out, nil
		case "chan":
			id, err := stringField(val, "id")
			if err != nil {
				return nil, fmt.Errorf("chan: %w", err)
			}
			// Decoded channels carry full capabilities; the encoding
			// deliberately drops the bits because identity is the id alone.
			return Channel{ID: id, Caps: AllCaps}, nil
		case "conn":
			op, err := stringField(val, "op")
			if err != nil {
				return nil, fmt.Errorf("conn: %w", err)
			}
			operands, err := decodeValueSeq(val["operands"])
			if err != nil {
				return nil, fmt.Errorf("conn operands: %w", err)
			}
			return Connective{Op: ConnOp(op), Operands: operands}, nil
		default:
			return nil, fmt.Errorf("unknown value tag %q", tag)
		}
	default:
		return nil, fmt.Errorf("unsupported value shape %T", raw)
	}
}

func decodeProcSeq(raw any) ([]Proc, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array, got %T", raw)
	}
	out := make([]Proc, len(items))
	for i, item := range items {
		p, err := decodeProc(item)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

func decodePatternSeq(raw any) ([]Pattern, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array, got %T", raw)
	}
	out := make([]Pattern, len(items))
	for i, item := range items {
		p, err := decodePattern(item)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

func decodeValueSeq(raw any) ([]Value, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array, got %T", raw)
	}
	out := make([]Value, len(items))
	for i, item := range items {
		v, err := decodeValue(item)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func stringSeq(raw any) ([]string, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array, got %T", raw)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("[%d]: expected a string, got %T", i, item)
		}
		out[i] = s
	}
	return out, nil
}

func stringField(obj map[string]any, key string) (string, error) {
	s, ok := obj[key].(string)
	if !ok {
		return "", fmt.Errorf("missing or non-string %q field", key)
	}
	return s, nil
}
