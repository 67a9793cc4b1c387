package term

import "fmt"

// MarshalProc produces the canonical JSON encoding of a process term.
// Each node is a tagged object; the encoding is the input to TermHash and
// the output of `rheo compile`.
func MarshalProc(p Proc) ([]byte, error) {
	obj, err := procCanonical(p)
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(obj)
}

// MarshalPattern produces the canonical JSON encoding of a pattern.
func MarshalPattern(p Pattern) ([]byte, error) {
	obj, err := patternCanonical(p)
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(obj)
}

func procCanonical(p Proc) (any, error) {
	switch node := p.(type) {
	case nil:
		return nil, fmt.Errorf("nil process node")
	case Stop:
		return map[string]any{"node": "stop"}, nil
	case Literal:
		return map[string]any{"node": "literal", "value": node.Value}, nil
	case Var:
		return map[string]any{"node": "var", "name": node.Name}, nil
	case Par:
		procs, err := procSeq(node.Procs)
		if err != nil {
			return nil, err
		}
		return map[string]any{"node": "par", "procs": procs}, nil
	case New:
		body, err := procCanonical(node.Body)
		if err != nil {
			return nil, err
		}
		names := make([]any, len(node.Names))
		for i, n := range node.Names {
			names[i] = n
		}
		return map[string]any{"node": "new", "names": names, "body": body}, nil
	case Send:
		ch, err := procCanonical(node.Chan)
		if err != nil {
			return nil, err
		}
		args, err := procSeq(node.Args)
		if err != nil {
			return nil, err
		}
		obj := map[string]any{
			"node":       "send",
			"chan":       ch,
			"args":       args,
			"sync":       node.Sync,
			"persistent": node.Persistent,
		}
		if node.Then != nil {
			then, err := procCanonical(node.Then)
			if err != nil {
				return nil, err
			}
			obj["then"] = then
		}
		return obj, nil
	case Receive:
		ch, err := procCanonical(node.Chan)
		if err != nil {
			return nil, err
		}
		pats, err := patternSeq(node.Patterns)
		if err != nil {
			return nil, err
		}
		body, err := procCanonical(node.Body)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"node":     "receive",
			"chan":     ch,
			"patterns": pats,
			"mode":     string(node.Mode),
			"body":     body,
		}, nil
	case Select:
		arms := make([]any, len(node.Arms))
		for i, arm := range node.Arms {
			ch, err := procCanonical(arm.Chan)
			if err != nil {
				return nil, err
			}
			pats, err := patternSeq(arm.Patterns)
			if err != nil {
				return nil, err
			}
			body, err := procCanonical(arm.Body)
			if err != nil {
				return nil, err
			}
			arms[i] = map[string]any{"chan": ch, "patterns": pats, "body": body}
		}
		return map[string]any{"node": "select", "arms": arms}, nil
	case Cond:
		cond, err := procCanonical(node.If)
		if err != nil {
			return nil, err
		}
		then, err := procCanonical(node.Then)
		if err != nil {
			return nil, err
		}
		obj := map[string]any{"node": "cond", "if": cond, "then": then}
		if node.Else != nil {
			els, err := procCanonical(node.Else)
			if err != nil {
				return nil, err
			}
			obj["else"] = els
		}
		return obj, nil
	case Match:
		target, err := procCanonical(node.Target)
		if err != nil {
			return nil, err
		}
		cases := make([]any, len(node.Cases))
		for i, c := range node.Cases {
			pat, err := patternCanonical(c.Pattern)
			if err != nil {
				return nil, err
			}
			body, err := procCanonical(c.Body)
			if err != nil {
				return nil, err
			}
			cases[i] = map[string]any{"pattern": pat, "body": body}
		}
		return map[string]any{"node": "match", "target": target, "cases": cases}, nil
	case Bundle:
		target, err := procCanonical(node.Target)
		if err != nil {
			return nil, err
		}
		return map[string]any{"node": "bundle", "mode": string(node.Mode), "target": target}, nil
	case Operation:
		operands, err := procSeq(node.Operands)
		if err != nil {
			return nil, err
		}
		return map[string]any{"node": "operation", "op": node.Op, "operands": operands}, nil
	case Collect:
		elems, err := procSeq(node.Elems)
		if err != nil {
			return nil, err
		}
		return map[string]any{"node": "collect", "kind": string(node.Kind), "elems": elems}, nil
	case Interpolate:
		tmpl, err := procCanonical(node.Template)
		if err != nil {
			return nil, err
		}
		args, err := procCanonical(node.Args)
		if err != nil {
			return nil, err
		}
		return map[string]any{"node": "interpolate", "template": tmpl, "args": args}, nil
	case Conjoin:
		return connCanonical("conjoin", node.Left, node.Right)
	case Disjoin:
		return connCanonical("disjoin", node.Left, node.Right)
	case Negate:
		body, err := procCanonical(node.Body)
		if err != nil {
			return nil, err
		}
		return map[string]any{"node": "negate", "body": body}, nil
	case Ref:
		return map[string]any{"node": "ref", "mode": string(node.Mode), "name": node.Name}, nil
	default:
		return nil, fmt.Errorf("unknown process node type: %T", p)
	}
}

func connCanonical(node string, left, right Proc) (any, error) {
	l, err := procCanonical(left)
	if err != nil {
		return nil, err
	}
	r, err := procCanonical(right)
	if err != nil {
		return nil, err
	}
	return map[string]any{"node": node, "left": l, "right": r}, nil
}

func procSeq(procs []Proc) ([]any, error) {
	out := make([]any, len(procs))
	for i, p := range procs {
		obj, err := procCanonical(p)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = obj
	}
	return out, nil
}

func patternCanonical(p Pattern) (any, error) {
	switch pat := p.(type) {
	case nil:
		return nil, fmt.Errorf("nil pattern")
	case PWildcard:
		return map[string]any{"pat": "wildcard"}, nil
	case PBind:
		return map[string]any{"pat": "bind", "name": pat.Name}, nil
	case PValue:
		return map[string]any{"pat": "value", "value": pat.Value}, nil
	case PList:
		elems, err := patternSeq(pat.Elems)
		if err != nil {
			return nil, err
		}
		obj := map[string]any{"pat": "list", "elems": elems}
		if pat.Rest != "" {
			obj["rest"] = pat.Rest
		}
		return obj, nil
	case PTuple:
		elems, err := patternSeq(pat.Elems)
		if err != nil {
			return nil, err
		}
		return map[string]any{"pat": "tuple", "elems": elems}, nil
	case PMap:
		entries := make([]any, len(pat.Entries))
		for i, e := range pat.Entries {
			val, err := patternCanonical(e.Val)
			if err != nil {
				return nil, err
			}
			entries[i] = map[string]any{"key": e.Key, "val": val}
		}
		return map[string]any{"pat": "map", "entries": entries, "exact": pat.Exact}, nil
	case PAnd:
		pats, err := patternSeq(pat.Pats)
		if err != nil {
			return nil, err
		}
		return map[string]any{"pat": "and", "pats": pats}, nil
	case POr:
		pats, err := patternSeq(pat.Pats)
		if err != nil {
			return nil, err
		}
		return map[string]any{"pat": "or", "pats": pats}, nil
	case PNot:
		sub, err := patternCanonical(pat.Pat)
		if err != nil {
			return nil, err
		}
		return map[string]any{"pat": "not", "sub": sub}, nil
	default:
		return nil, fmt.Errorf("unknown pattern type: %T", p)
	}
}

func patternSeq(pats []Pattern) ([]any, error) {
	out := make([]any, len(pats))
	for i, p := range pats {
		obj, err := patternCanonical(p)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = obj
	}
	return out, nil
}
