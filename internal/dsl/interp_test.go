package dsl

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/fault"
)

// eval is a test helper: parse then evaluate in one step.
func eval(t *testing.T, source string, bindings Bindings) (Value, error) {
	t.Helper()
	expr, err := Parse(source)
	require.NoError(t, err)
	return Evaluate(expr, bindings)
}

func TestEvaluateArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		bindings Bindings
		expected Value
	}{
		{"addition", "a + b", Bindings{"a": Number(15), "b": Number(25)}, Number(40)},
		{"subtraction", "10 - 4", nil, Number(6)},
		{"multiplication", "6 * 7", nil, Number(42)},
		{"division", "1 / 4", nil, Number(0.25)},
		{"power", "2 ^ 10", nil, Number(1024)},
		{"precedence", "2 + 3 * 4", nil, Number(14)},
		{"unary minus", "-x", Bindings{"x": Number(5)}, Number(-5)},
		{"string literal", `"hi"`, nil, String("hi")},
		{"comparison", "3 <= 3", nil, Bool(true)},
		{"equality mixed types", `1 == "1"`, nil, Bool(false)},
		{"inequality", "1 != 2", nil, Bool(true)},
		{"not", "!false", nil, Bool(true)},
		{"if then", "if true then 1 else 2", nil, Number(1)},
		{"if else", "if 1 > 2 then 1 else 2", nil, Number(2)},
		{"let", "let x = 3; x * x", nil, Number(9)},
		{"let shadowing", "let x = 1; let x = 2; x", nil, Number(2)},
		{"nested let", "let a = 2; let b = a + 1; a * b", nil, Number(6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval(t, tt.source, tt.bindings)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEvaluateDivisionByZeroIsIEEE(t *testing.T) {
	got, err := eval(t, "1 / 0", nil)
	require.NoError(t, err)
	assert.True(t, math.IsInf(float64(got.(Number)), 1))
}

func TestEvaluateShortCircuit(t *testing.T) {
	// The right side references an unbound variable; short-circuiting must
	// keep it unevaluated.
	got, err := eval(t, "false && missing", nil)
	require.NoError(t, err)
	assert.Equal(t, Bool(false), got)

	got, err = eval(t, "true || missing", nil)
	require.NoError(t, err)
	assert.Equal(t, Bool(true), got)

	// Without short-circuiting the unbound variable is an error.
	_, err = eval(t, "true && missing", nil)
	require.Error(t, err)
	assert.Equal(t, fault.CodeInvalidTransform, fault.CodeOf(err))
}

func TestEvaluateFieldAccess(t *testing.T) {
	bindings := Bindings{
		"order": Object{"total": Number(99), "meta": Object{"region": String("eu")}},
	}

	got, err := eval(t, "order.total + 1", bindings)
	require.NoError(t, err)
	assert.Equal(t, Number(100), got)

	got, err = eval(t, "order.meta.region", bindings)
	require.NoError(t, err)
	assert.Equal(t, String("eu"), got)

	_, err = eval(t, "order.absent", bindings)
	require.Error(t, err)
	assert.Equal(t, fault.CodeInvalidTransform, fault.CodeOf(err))
}

func TestEvaluateBuiltins(t *testing.T) {
	tests := []struct {
		source   string
		expected Number
	}{
		{"min(3, 5)", 3},
		{"max(3, 5)", 5},
		{"clamp(12, 0, 10)", 10},
		{"clamp(-2, 0, 10)", 0},
		{"clamp(7, 0, 10)", 7},
		{"abs(-4)", 4},
		{"floor(2.9)", 2},
		{"ceil(2.1)", 3},
		{"sqrt(16)", 4},
		{"pow(2, 8)", 256},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got, err := eval(t, tt.source, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEvaluateBuiltinErrors(t *testing.T) {
	for _, source := range []string{
		"min(1)",
		"nope(1, 2)",
		`abs("x")`,
	} {
		_, err := eval(t, source, nil)
		require.Error(t, err, source)
		assert.Equal(t, fault.CodeInvalidTransform, fault.CodeOf(err))
	}
}

func TestEvaluateTypeMismatch(t *testing.T) {
	for _, source := range []string{
		`1 + "a"`,
		"-true",
		"!3",
		"if 1 then 2 else 3",
		"true && 1",
	} {
		_, err := eval(t, source, nil)
		require.Error(t, err, source)
		assert.Equal(t, fault.CodeInvalidTransform, fault.CodeOf(err))
	}
}

func TestEvaluateObjectEquality(t *testing.T) {
	bindings := Bindings{
		"a": Object{"x": Number(1), "y": Object{"z": Bool(true)}},
		"b": Object{"y": Object{"z": Bool(true)}, "x": Number(1)},
		"c": Object{"x": Number(2)},
	}

	got, err := eval(t, "a == b", bindings)
	require.NoError(t, err)
	assert.Equal(t, Bool(true), got)

	got, err = eval(t, "a == c", bindings)
	require.NoError(t, err)
	assert.Equal(t, Bool(false), got)
}

func TestEvaluateDeterministic(t *testing.T) {
	expr, err := Parse("let t = clamp(a * 2, 0, 100); if t > 50 then t else t / 2")
	require.NoError(t, err)

	bindings := Bindings{"a": Number(30)}
	first, err := Evaluate(expr, bindings)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := Evaluate(expr, bindings)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEvaluateLetDoesNotLeak(t *testing.T) {
	bindings := Bindings{"a": Number(1)}
	_, err := eval(t, "let x = 2; x + a", bindings)
	require.NoError(t, err)

	_, leaked := bindings["x"]
	assert.False(t, leaked, "let must not mutate caller bindings")
}
