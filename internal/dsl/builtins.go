package dsl

import (
	"math"

	"github.com/roach88/lattice/internal/fault"
)

// builtins maps function names to their implementations. All built-ins are
// numeric; argument counts are checked before dispatch.
var builtins = map[string]struct {
	arity int
	fn    func(args []float64) float64
}{
	"min":   {2, func(a []float64) float64 { return math.Min(a[0], a[1]) }},
	"max":   {2, func(a []float64) float64 { return math.Max(a[0], a[1]) }},
	"clamp": {3, func(a []float64) float64 { return math.Min(math.Max(a[0], a[1]), a[2]) }},
	"abs":   {1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"floor": {1, func(a []float64) float64 { return math.Floor(a[0]) }},
	"ceil":  {1, func(a []float64) float64 { return math.Ceil(a[0]) }},
	"sqrt":  {1, func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"pow":   {2, func(a []float64) float64 { return math.Pow(a[0], a[1]) }},
}

func evalCall(e *FunctionCall, bindings Bindings) (Value, error) {
	builtin, ok := builtins[e.Name]
	if !ok {
		return nil, fault.New(fault.CodeInvalidTransform, "unknown function %q", e.Name)
	}
	if len(e.Args) != builtin.arity {
		return nil, fault.New(fault.CodeInvalidTransform,
			"%s expects %d arguments, got %d", e.Name, builtin.arity, len(e.Args))
	}

	nums := make([]float64, len(e.Args))
	for i, arg := range e.Args {
		v, err := Evaluate(arg, bindings)
		if err != nil {
			return nil, err
		}
		n, ok := v.(Number)
		if !ok {
			return nil, fault.New(fault.CodeInvalidTransform,
				"%s argument %d must be a number, got %s", e.Name, i+1, TypeName(v))
		}
		nums[i] = float64(n)
	}
	return Number(builtin.fn(nums)), nil
}
