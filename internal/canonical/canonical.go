// Package canonical produces deterministic JSON for content addressing.
//
// Atom contents are opaque structured values; two atoms with the same
// content must hash identically regardless of map iteration order or the
// encoder that produced them. The rules follow RFC 8785 where it matters
// for stability:
//
//  1. Object keys sorted by UTF-16 code units (NOT UTF-8 bytes)
//  2. No HTML escaping (< > & are written verbatim)
//  3. Strings are NFC normalized before encoding
//  4. Numbers use shortest round-trip formatting
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Marshal produces canonical JSON for v. Supported types are the JSON
// scalar types, []any, and map[string]any (recursively). NaN and infinities
// are rejected since JSON cannot represent them.
func Marshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return marshalString(val)
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case int:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case int64:
		return []byte(strconv.FormatInt(val, 10)), nil
	case json.Number:
		return []byte(val.String()), nil
	case float64:
		return marshalFloat(val)
	case float32:
		return marshalFloat(float64(val))
	case []any:
		return marshalArray(val)
	case map[string]any:
		return marshalObject(val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func marshalFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number cannot be canonicalized: %v", f)
	}
	// Shortest representation that round-trips; integral floats print as ints.
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func marshalString(s string) ([]byte, error) {
	// NFC normalize first so visually identical strings hash identically.
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("encode string: %w", err)
	}
	// Encoder appends a newline.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func marshalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := Marshal(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalObject(obj map[string]any) ([]byte, error) {
	keys := sortedKeys(obj)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := marshalString(k)
		if err != nil {
			return nil, fmt.Errorf("object key %q: %w", k, err)
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')

		data, err := Marshal(obj[k])
		if err != nil {
			return nil, fmt.Errorf("object[%q]: %w", k, err)
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// sortedKeys returns keys ordered by UTF-16 code units per RFC 8785.
// Go's sort.Strings compares UTF-8 bytes which produces a DIFFERENT order
// for strings containing supplementary-plane characters.
func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
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
