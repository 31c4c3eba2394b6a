package model

import (
	"sync"

	"github.com/roach88/lattice/internal/dsl"
)

// Transform computes one field's value from one or more other fields.
//
// Logic is DSL source text; the AST is built lazily and cached. Inputs is
// the declared field-key list; when empty, the effective inputs are derived
// by static dependency analysis of the parsed expression.
type Transform struct {
	Logic  string   `json:"logic"`
	Inputs []string `json:"inputs,omitempty"`
	Output string   `json:"output"`

	parseOnce sync.Once
	parsed    dsl.Expr
	parseErr  error
}

// NewTransform builds a transform from its persisted parts.
func NewTransform(logic string, inputs []string, output string) *Transform {
	return &Transform{Logic: logic, Inputs: inputs, Output: output}
}

// Parsed returns the cached AST, parsing on first use. Safe for concurrent
// use; the source is parsed exactly once per Transform and the result,
// error included, is sticky.
func (t *Transform) Parsed() (dsl.Expr, error) {
	t.parseOnce.Do(func() {
		t.parsed, t.parseErr = dsl.Parse(t.Logic)
	})
	return t.parsed, t.parseErr
}

// EffectiveInputs returns the declared inputs, or the statically analyzed
// dependency set when no inputs were declared. Analysis yields bare names;
// they are interpreted as field keys relative to the caller's context.
func (t *Transform) EffectiveInputs() ([]string, error) {
	if len(t.Inputs) > 0 {
		return t.Inputs, nil
	}
	expr, err := t.Parsed()
	if err != nil {
		return nil, err
	}
	deps := dsl.AnalyzeDependencies(expr)
	inputs := make([]string, 0, len(deps))
	for name := range deps {
		inputs = append(inputs, name)
	}
	return inputs, nil
}
