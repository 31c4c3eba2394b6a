package dsl

import (
	"math"

	"github.com/roach88/lattice/internal/fault"
)

// Bindings maps variable names to their values for one evaluation.
type Bindings map[string]Value

// Evaluate computes the value of expr under bindings.
//
// Pure and deterministic: identical inputs always yield identical outputs.
// Unbound variables, missing object fields, and operand type mismatches
// produce InvalidTransform faults. Division by zero follows IEEE-754
// (yields an infinity), matching the language's double-precision semantics.
func Evaluate(expr Expr, bindings Bindings) (Value, error) {
	switch e := expr.(type) {
	case *Literal:
		return e.Value, nil

	case *Variable:
		v, ok := bindings[e.Name]
		if !ok {
			return nil, fault.New(fault.CodeInvalidTransform, "unbound variable %q", e.Name)
		}
		return v, nil

	case *FieldAccess:
		obj, err := Evaluate(e.Object, bindings)
		if err != nil {
			return nil, err
		}
		objVal, ok := obj.(Object)
		if !ok {
			return nil, fault.New(fault.CodeInvalidTransform,
				"cannot access field %q on %s", e.Field, TypeName(obj))
		}
		v, ok := objVal[e.Field]
		if !ok {
			return nil, fault.New(fault.CodeInvalidTransform, "object has no field %q", e.Field)
		}
		return v, nil

	case *BinaryOp:
		return evalBinary(e, bindings)

	case *UnaryOp:
		operand, err := Evaluate(e.Operand, bindings)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case "-":
			n, ok := operand.(Number)
			if !ok {
				return nil, fault.New(fault.CodeInvalidTransform, "unary '-' needs a number, got %s", TypeName(operand))
			}
			return Number(-float64(n)), nil
		case "!":
			b, ok := operand.(Bool)
			if !ok {
				return nil, fault.New(fault.CodeInvalidTransform, "unary '!' needs a bool, got %s", TypeName(operand))
			}
			return Bool(!bool(b)), nil
		}
		return nil, fault.New(fault.CodeInvalidTransform, "unknown unary operator %q", e.Op)

	case *LetBinding:
		value, err := Evaluate(e.Value, bindings)
		if err != nil {
			return nil, err
		}
		// Shadow without mutating the caller's bindings.
		inner := make(Bindings, len(bindings)+1)
		for k, v := range bindings {
			inner[k] = v
		}
		inner[e.Name] = value
		return Evaluate(e.Body, inner)

	case *IfElse:
		cond, err := Evaluate(e.Cond, bindings)
		if err != nil {
			return nil, err
		}
		b, ok := cond.(Bool)
		if !ok {
			return nil, fault.New(fault.CodeInvalidTransform, "if condition must be bool, got %s", TypeName(cond))
		}
		if b {
			return Evaluate(e.Then, bindings)
		}
		return Evaluate(e.Else, bindings)

	case *FunctionCall:
		return evalCall(e, bindings)

	default:
		return nil, fault.New(fault.CodeInvalidTransform, "unknown expression node %T", expr)
	}
}

func evalBinary(e *BinaryOp, bindings Bindings) (Value, error) {
	left, err := Evaluate(e.Left, bindings)
	if err != nil {
		return nil, err
	}

	// Short-circuit boolean operators before evaluating the right side.
	if e.Op == "&&" || e.Op == "||" {
		lb, ok := left.(Bool)
		if !ok {
			return nil, fault.New(fault.CodeInvalidTransform, "%q needs bool operands, got %s", e.Op, TypeName(left))
		}
		if e.Op == "&&" && !bool(lb) {
			return Bool(false), nil
		}
		if e.Op == "||" && bool(lb) {
			return Bool(true), nil
		}
		right, err := Evaluate(e.Right, bindings)
		if err != nil {
			return nil, err
		}
		rb, ok := right.(Bool)
		if !ok {
			return nil, fault.New(fault.CodeInvalidTransform, "%q needs bool operands, got %s", e.Op, TypeName(right))
		}
		return rb, nil
	}

	right, err := Evaluate(e.Right, bindings)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case "==":
		return valueEquals(left, right), nil
	case "!=":
		return !valueEquals(left, right), nil
	}

	// Remaining operators are numeric.
	ln, lok := left.(Number)
	rn, rok := right.(Number)
	if !lok || !rok {
		return nil, fault.New(fault.CodeInvalidTransform,
			"operator %q needs numbers, got %s and %s", e.Op, TypeName(left), TypeName(right))
	}
	l, r := float64(ln), float64(rn)

	switch e.Op {
	case "+":
		return Number(l + r), nil
	case "-":
		return Number(l - r), nil
	case "*":
		return Number(l * r), nil
	case "/":
		return Number(l / r), nil
	case "^":
		return Number(math.Pow(l, r)), nil
	case "<":
		return Bool(l < r), nil
	case ">":
		return Bool(l > r), nil
	case "<=":
		return Bool(l <= r), nil
	case ">=":
		return Bool(l >= r), nil
	default:
		return nil, fault.New(fault.CodeInvalidTransform, "unknown operator %q", e.Op)
	}
}

// valueEquals implements "==" across types: values of different types are
// unequal, objects compare structurally.
func valueEquals(a, b Value) Bool {
	switch av := a.(type) {
	case Number:
		bv, ok := b.(Number)
		return Bool(ok && av == bv)
	case Bool:
		bv, ok := b.(Bool)
		return Bool(ok && av == bv)
	case String:
		bv, ok := b.(String)
		return Bool(ok && av == bv)
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, present := bv[k]
			if !present || !bool(valueEquals(v, other)) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
