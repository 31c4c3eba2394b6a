package dsl

import (
	"fmt"

	"github.com/roach88/lattice/internal/fault"
)

// Value is the sealed runtime value interface.
// Only Number, Bool, String, and Object implement it.
type Value interface {
	value() // sealed
}

// Number is an IEEE-754 double.
type Number float64

// Bool is a boolean value.
type Bool bool

// String is a string value.
type String string

// Object is a structured value supporting field access.
type Object map[string]Value

func (Number) value() {}
func (Bool) value()   {}
func (String) value() {}
func (Object) value() {}

// FromAny converts decoded JSON (float64/bool/string/map[string]any) into a
// Value. Integers are widened to Number. nil and unsupported types fail.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case float64:
		return Number(val), nil
	case int:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			converted, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			obj[k] = converted
		}
		return obj, nil
	default:
		return nil, fault.New(fault.CodeInvalidTransform, "unsupported value type %T", v)
	}
}

// ToAny converts a Value back to plain JSON-compatible Go types.
func ToAny(v Value) any {
	switch val := v.(type) {
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	case String:
		return string(val)
	case Object:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			m[k] = ToAny(elem)
		}
		return m
	default:
		return nil
	}
}

// TypeName returns a human-readable type label for error messages.
func TypeName(v Value) string {
	switch v.(type) {
	case Number:
		return "number"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}
