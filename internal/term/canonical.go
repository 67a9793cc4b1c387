package term

import (
	"bytes"
	"fmt"
	"slices"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for hashing and golden
// comparison. CRITICAL: this is the ONLY serialization that may feed
// content-addressed identity computation (hash.go).
//
// Key differences from standard json.Marshal:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. No floats (returns error)
//
// Accepts Value, plain Go scalars, []any, and map[string]any (the shapes
// trace snapshots use).
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case Value:
		return writeCanonicalValue(buf, val)
	case string:
		writeCanonicalString(buf, val)
		return nil
	case int:
		fmt.Fprintf(buf, "%d", val)
		return nil
	case int64:
		fmt.Fprintf(buf, "%d", val)
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		return writeCanonicalObject(buf, val)
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// writeCanonicalValue encodes a term value. Non-JSON-native kinds use a
// tagged object with a "%" discriminator so every value round-trips
// unambiguously. Sets and maps serialize in canonical-byte order so that
// structurally equal collections hash identically regardless of
// construction order.
func writeCanonicalValue(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case Nil:
		buf.WriteString(`{"%":"nil"}`)
		return nil
	case Bool:
		return writeCanonical(buf, bool(val))
	case Int:
		return writeCanonical(buf, int64(val))
	case String:
		writeCanonicalString(buf, string(val))
		return nil
	case List:
		return writeValueSeq(buf, val)
	case Tuple:
		buf.WriteString(`{"%":"tuple","elems":`)
		if err := writeValueSeq(buf, val); err != nil {
			return err
		}
		buf.WriteByte('}')
		return nil
	case Set:
		encoded, err := sortedEncodings(val)
		if err != nil {
			return err
		}
		buf.WriteString(`{"%":"set","elems":[`)
		for i, e := range encoded {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(e)
		}
		buf.WriteString(`]}`)
		return nil
	case Map:
		entries := make([][]byte, 0, len(val))
		for _, p := range val {
			var entry bytes.Buffer
			entry.WriteByte('[')
			if err := writeCanonicalValue(&entry, p.Key); err != nil {
				return err
			}
			entry.WriteByte(',')
			if err := writeCanonicalValue(&entry, p.Val); err != nil {
				return err
			}
			entry.WriteByte(']')
			entries = append(entries, entry.Bytes())
		}
		slices.SortFunc(entries, bytes.Compare)
		buf.WriteString(`{"%":"map","entries":[`)
		for i, e := range entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(e)
		}
		buf.WriteString(`]}`)
		return nil
	case Channel:
		// Capability bits are excluded: identity is the ID alone, and a
		// restricted alias must hash equal to the unrestricted channel.
		buf.WriteString(`{"%":"chan","id":`)
		writeCanonicalString(buf, val.ID)
		buf.WriteByte('}')
		return nil
	case Connective:
		buf.WriteString(`{"%":"conn","op":`)
		writeCanonicalString(buf, string(val.Op))
		buf.WriteString(`,"operands":`)
		if err := writeValueSeq(buf, val.Operands); err != nil {
			return err
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("unsupported value type for canonical JSON: %T", v)
	}
}

func writeValueSeq(buf *bytes.Buffer, vals []Value) error {
	buf.WriteByte('[')
	for i, e := range vals {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalValue(buf, e); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func sortedEncodings(vals []Value) ([][]byte, error) {
	encoded := make([][]byte, len(vals))
	for i, e := range vals {
		var b bytes.Buffer
		if err := writeCanonicalValue(&b, e); err != nil {
			return nil, err
		}
		encoded[i] = b.Bytes()
	}
	slices.SortFunc(encoded, bytes.Compare)
	return encoded, nil
}

func writeCanonicalObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeCanonicalString(buf, k)
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("object[%q]: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeCanonicalString emits an NFC-normalized string per RFC 8785:
// only quote, backslash, and control characters are escaped. < > & and
// U+2028/U+2029 stay literal.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	normalized := norm.NFC.String(s)
	buf.WriteByte('"')
	for _, r := range normalized {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\t':
			buf.WriteString(`\t`)
		case '\n':
			buf.WriteString(`\n`)
		case '\f':
			buf.WriteString(`\f`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering as
// required by RFC 8785. CRITICAL: Go's native string comparison uses
// UTF-8 bytes, which produces a DIFFERENT order for non-BMP keys.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
